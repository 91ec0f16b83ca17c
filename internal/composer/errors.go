package composer

import (
	"fmt"
	"strings"
)

type ViolationKind string

const (
	KeyMismatch       ViolationKind = "KEY_MISMATCH"
	FieldCollision    ViolationKind = "FIELD_COLLISION"
	MissingOwner      ViolationKind = "MISSING_OWNER"
	CyclicDependency  ViolationKind = "CYCLIC_DEPENDENCY"
	TypeMismatch      ViolationKind = "TYPE_MISMATCH"
	UnresolvedField   ViolationKind = "UNRESOLVED_FIELD"
	DuplicateSubgraph ViolationKind = "DUPLICATE_SUBGRAPH"
)

type Violation struct {
	Kind     ViolationKind
	TypeName string
	Field    string
	Services []string
	Message  string
}

// CompositionError lists every violation found in one composition attempt.
type CompositionError struct {
	Violations []*Violation
}

func (e *CompositionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "composition failed with %d violation(s):\n", len(e.Violations))
	for _, v := range e.Violations {
		b.WriteString("- ")
		b.WriteString(v.Message)
		b.WriteString("\n")
	}
	return b.String()
}

func violationKeyMismatch(typeName, service string, key []string, owner string, ownerKeys [][]string) *Violation {
	declared := "no @key"
	if key != nil {
		declared = fmt.Sprintf("@key(fields: %q)", strings.Join(key, " "))
	}
	want := "no @key"
	if len(ownerKeys) > 0 {
		parts := make([]string, len(ownerKeys))
		for i, k := range ownerKeys {
			parts[i] = fmt.Sprintf("@key(fields: %q)", strings.Join(k, " "))
		}
		want = strings.Join(parts, ", ")
	}
	return &Violation{
		Kind:     KeyMismatch,
		TypeName: typeName,
		Services: []string{owner, service},
		Message: fmt.Sprintf("key mismatch on %s: %q declares %s but owner %q declares %s",
			typeName, service, declared, owner, want),
	}
}

func violationFieldCollision(typeName, field, first, second string) *Violation {
	return &Violation{
		Kind:     FieldCollision,
		TypeName: typeName,
		Field:    field,
		Services: []string{first, second},
		Message:  fmt.Sprintf("field collision on %s.%s: owned by both %q and %q", typeName, field, first, second),
	}
}

func violationMissingOwner(typeName string, extenders []string) *Violation {
	return &Violation{
		Kind:     MissingOwner,
		TypeName: typeName,
		Services: extenders,
		Message:  fmt.Sprintf("type %s is extended by %s but no service owns it", typeName, quoteAll(extenders)),
	}
}

func violationTypeKind(typeName string, services []string, kinds []string) *Violation {
	return &Violation{
		Kind:     TypeMismatch,
		TypeName: typeName,
		Services: services,
		Message:  fmt.Sprintf("type %s is declared with different kinds: %s", typeName, strings.Join(kinds, ", ")),
	}
}

func violationFieldType(typeName, field, first, firstType, second, secondType string) *Violation {
	return &Violation{
		Kind:     TypeMismatch,
		TypeName: typeName,
		Field:    field,
		Services: []string{first, second},
		Message: fmt.Sprintf("field %s.%s has type %s in %q but %s in %q",
			typeName, field, firstType, first, secondType, second),
	}
}

func violationUnresolvedExternal(typeName, field, service string) *Violation {
	return &Violation{
		Kind:     UnresolvedField,
		TypeName: typeName,
		Field:    field,
		Services: []string{service},
		Message:  fmt.Sprintf("field %s.%s is marked @external in %q but no service resolves it", typeName, field, service),
	}
}

func violationDuplicateSubgraph(name string) *Violation {
	return &Violation{
		Kind:     DuplicateSubgraph,
		Services: []string{name},
		Message:  fmt.Sprintf("subgraph %q is listed more than once", name),
	}
}

func violationCycle(cycle []Coordinate, services []string) *Violation {
	parts := make([]string, len(cycle))
	for i, c := range cycle {
		parts[i] = fmt.Sprintf("%s (%s)", c, services[i])
	}
	return &Violation{
		Kind:     CyclicDependency,
		TypeName: cycle[0].Type,
		Field:    cycle[0].Field,
		Services: services,
		Message:  "cyclic extension dependency: " + strings.Join(parts, " -> "),
	}
}

func quoteAll(list []string) string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(out, ", ")
}
