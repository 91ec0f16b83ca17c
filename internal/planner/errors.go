package planner

import "fmt"

type Reason string

const (
	ReasonUnknownField    Reason = "unknown field"
	ReasonUnknownArgument Reason = "unknown argument"
	ReasonMissingArgument Reason = "missing argument"
	ReasonSelection       Reason = "invalid selection"
	ReasonUnresolvable    Reason = "unresolvable field"
	ReasonCyclic          Reason = "cyclic dependency"
	ReasonUnsupportedOp   Reason = "unsupported operation"
)

// PlanningError means no plan exists for the selection. The whole
// operation fails before any subgraph is called.
type PlanningError struct {
	Reason  Reason
	Type    string
	Field   string
	Message string
}

func (e *PlanningError) Error() string {
	return "planning failed: " + e.Message
}

func errUnknownField(typeName, field string) *PlanningError {
	return &PlanningError{
		Reason:  ReasonUnknownField,
		Type:    typeName,
		Field:   field,
		Message: fmt.Sprintf("cannot query field %q on type %q", field, typeName),
	}
}

func errUnknownArgument(typeName, field, arg string) *PlanningError {
	return &PlanningError{
		Reason:  ReasonUnknownArgument,
		Type:    typeName,
		Field:   field,
		Message: fmt.Sprintf("unknown argument %q on field %s.%s", arg, typeName, field),
	}
}

func errMissingArgument(typeName, field, arg, typ string) *PlanningError {
	return &PlanningError{
		Reason:  ReasonMissingArgument,
		Type:    typeName,
		Field:   field,
		Message: fmt.Sprintf("field %s.%s argument %q of type %s is required", typeName, field, arg, typ),
	}
}

func errSelectionRequired(typeName, field, fieldType string) *PlanningError {
	return &PlanningError{
		Reason:  ReasonSelection,
		Type:    typeName,
		Field:   field,
		Message: fmt.Sprintf("field %s.%s of type %s must have a selection of subfields", typeName, field, fieldType),
	}
}

func errLeafSelection(typeName, field, fieldType string) *PlanningError {
	return &PlanningError{
		Reason:  ReasonSelection,
		Type:    typeName,
		Field:   field,
		Message: fmt.Sprintf("field %s.%s of type %s cannot have a selection", typeName, field, fieldType),
	}
}

func errUnresolvable(typeName, field, owner, from string) *PlanningError {
	return &PlanningError{
		Reason:  ReasonUnresolvable,
		Type:    typeName,
		Field:   field,
		Message: fmt.Sprintf("field %s.%s is owned by %q but %s is not an entity reachable from %q", typeName, field, owner, typeName, from),
	}
}

func errNoSharedKey(typeName, field, from, to string) *PlanningError {
	return &PlanningError{
		Reason:  ReasonUnresolvable,
		Type:    typeName,
		Field:   field,
		Message: fmt.Sprintf("no @key of %s is resolvable by both %q and %q to fetch %s", typeName, from, to, field),
	}
}

func errCyclic(ids []int) *PlanningError {
	return &PlanningError{
		Reason:  ReasonCyclic,
		Message: fmt.Sprintf("steps %v depend on each other", ids),
	}
}

func errUnsupportedOperation(op string) *PlanningError {
	return &PlanningError{
		Reason:  ReasonUnsupportedOp,
		Message: fmt.Sprintf("the supergraph has no root type for %s operations", op),
	}
}
