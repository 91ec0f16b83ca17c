package subgraph

import (
	"fmt"

	language "github.com/hanpama/fedgraph/internal/language"
	planner "github.com/hanpama/fedgraph/internal/planner"
	result "github.com/hanpama/fedgraph/internal/result"
	schema "github.com/hanpama/fedgraph/internal/schema"
)

const (
	entitiesField        = "_entities"
	representationsVar   = "representations"
	typenameField        = "__typename"
	mutationRootTypeName = "Mutation"
)

// Representation identifies one entity for an entity step: __typename plus
// key and required field values. Paths are the response locations where
// the entity appears; several locations may share one representation.
type Representation struct {
	Value map[string]any
	Paths []result.Path
}

// BuildRequest renders the step as a GraphQL request. Arguments travel as
// variables so values never need escaping.
func BuildRequest(step *planner.Step, reps []Representation) *Request {
	b := &requestBuilder{vars: map[string]any{}}
	op := &language.OperationDefinition{Operation: language.Query}
	if step.Kind == planner.KindRoot && step.TypeName == mutationRootTypeName {
		op.Operation = language.Mutation
	}

	if step.Kind == planner.KindEntity {
		values := make([]any, len(reps))
		for i, r := range reps {
			values[i] = r.Value
		}
		b.vars[representationsVar] = values
		b.defs = append(b.defs, &language.VariableDefinition{
			Variable: representationsVar,
			Type:     language.NonNullListType(language.NonNullNamedType("_Any")),
		})
		op.SelectionSet = language.SelectionSet{&language.Field{
			Name: entitiesField,
			Arguments: language.ArgumentList{{
				Name:  representationsVar,
				Value: &language.Value{Kind: language.Variable, Raw: representationsVar},
			}},
			SelectionSet: language.SelectionSet{&language.InlineFragment{
				TypeCondition: step.TypeName,
				SelectionSet:  b.selection(step.Selection),
			}},
		}}
	} else {
		op.SelectionSet = b.selection(step.Selection)
	}
	op.VariableDefinitions = b.defs

	req := &Request{Query: language.FormatQuery(&language.QueryDocument{Operations: language.OperationList{op}})}
	if len(b.vars) > 0 {
		req.Variables = b.vars
	}
	return req
}

type requestBuilder struct {
	vars map[string]any
	defs language.VariableDefinitions
}

func (b *requestBuilder) selection(fields []*planner.Field) language.SelectionSet {
	set := make(language.SelectionSet, 0, len(fields))
	for _, f := range fields {
		field := &language.Field{Name: f.Name, Alias: f.Alias}
		for _, a := range f.Arguments {
			name := fmt.Sprintf("a%d", len(b.defs))
			b.vars[name] = a.Value
			b.defs = append(b.defs, &language.VariableDefinition{Variable: name, Type: schema.ToAST(a.Type)})
			field.Arguments = append(field.Arguments, &language.Argument{
				Name:  a.Name,
				Value: &language.Value{Kind: language.Variable, Raw: name},
			})
		}
		if len(f.Selection) > 0 {
			field.SelectionSet = b.selection(f.Selection)
		}
		set = append(set, field)
	}
	return set
}
