package query

import (
	"fmt"
	"strings"

	language "github.com/hanpama/fedgraph/internal/language"
)

// FromDocument builds the selection tree of the named operation (or the only
// operation when name is empty). Fragments are inlined, @skip/@include are
// applied and variables are substituted into argument values.
func FromDocument(doc *language.QueryDocument, operationName string, variables map[string]any) (*Node, error) {
	op := getOperation(doc, operationName)
	if op == nil {
		if operationName == "" {
			return nil, fmt.Errorf("document must contain exactly one operation when no operation name is given")
		}
		return nil, fmt.Errorf("operation %q not found", operationName)
	}
	vars, err := coerceVariableValues(op, variables)
	if err != nil {
		return nil, err
	}
	b := &builder{document: doc, variables: vars}

	root := &Node{}
	switch op.Operation {
	case language.Query, "":
		root.Name = OperationQuery
	case language.Mutation:
		root.Name = OperationMutation
	default:
		return nil, fmt.Errorf("unsupported operation type: %s", op.Operation)
	}
	root.Children = b.selectionSet(op.SelectionSet)
	return root, nil
}

// Parse is a convenience wrapper combining language.ParseQuery and FromDocument.
func Parse(source, operationName string, variables map[string]any) (*Node, error) {
	doc, err := language.ParseQuery(source)
	if err != nil {
		return nil, err
	}
	return FromDocument(doc, operationName, variables)
}

type builder struct {
	document  *language.QueryDocument
	variables map[string]any
}

// selectionSet collects fields, merging same-response-key fields so that
// `a { x } a { y }` becomes `a { x y }`.
func (b *builder) selectionSet(set language.SelectionSet) []*Node {
	grouped := newCollectedFieldMap()
	b.collectFields(set, grouped, make(map[string]bool))

	out := make([]*Node, 0, len(grouped.fields))
	for _, cf := range grouped.fields {
		first := cf.Fields[0]
		n := &Node{Name: first.Name}
		if first.Alias != "" && first.Alias != first.Name {
			n.Alias = first.Alias
		}
		if len(first.Arguments) > 0 {
			n.Arguments = make(map[string]any, len(first.Arguments))
			for _, arg := range first.Arguments {
				n.Arguments[arg.Name] = valueFromASTWithVars(arg.Value, b.variables)
			}
		}
		var merged language.SelectionSet
		for _, f := range cf.Fields {
			merged = append(merged, f.SelectionSet...)
		}
		if len(merged) > 0 {
			n.Children = b.selectionSet(merged)
		}
		out = append(out, n)
	}
	return out
}

type collectedFieldMap struct {
	fields []collectedField
	index  map[string]int
}

type collectedField struct {
	ResponseName string
	Fields       []*language.Field
}

func newCollectedFieldMap() *collectedFieldMap {
	return &collectedFieldMap{index: make(map[string]int)}
}

func (cfm *collectedFieldMap) add(responseName string, field *language.Field) {
	if idx, exists := cfm.index[responseName]; exists {
		cfm.fields[idx].Fields = append(cfm.fields[idx].Fields, field)
		return
	}
	cfm.index[responseName] = len(cfm.fields)
	cfm.fields = append(cfm.fields, collectedField{
		ResponseName: responseName,
		Fields:       []*language.Field{field},
	})
}

// collectFields flattens fragments. Type conditions are not checked: the
// planner resolves every field against the parent type, so fragments on
// other types surface there as unknown fields.
func (b *builder) collectFields(set language.SelectionSet, grouped *collectedFieldMap, visited map[string]bool) {
	for _, selection := range set {
		switch sel := selection.(type) {
		case *language.Field:
			if !b.shouldInclude(sel.Directives) {
				continue
			}
			responseName := sel.Alias
			if responseName == "" {
				responseName = sel.Name
			}
			grouped.add(responseName, sel)

		case *language.InlineFragment:
			if !b.shouldInclude(sel.Directives) {
				continue
			}
			b.collectFields(sel.SelectionSet, grouped, visited)

		case *language.FragmentSpread:
			if !b.shouldInclude(sel.Directives) {
				continue
			}
			if visited[sel.Name] {
				continue
			}
			visited[sel.Name] = true

			def := b.document.Fragments.ForName(sel.Name)
			if def == nil || !b.shouldInclude(def.Directives) {
				continue
			}
			b.collectFields(def.SelectionSet, grouped, visited)
		}
	}
}

func (b *builder) shouldInclude(directives language.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil {
		if v, ok := b.directiveArgument(skip, "if").(bool); ok && v {
			return false
		}
	}
	if include := directives.ForName("include"); include != nil {
		if v, ok := b.directiveArgument(include, "if").(bool); ok && !v {
			return false
		}
	}
	return true
}

func (b *builder) directiveArgument(directive *language.Directive, name string) any {
	for _, arg := range directive.Arguments {
		if arg.Name == name {
			return valueFromASTWithVars(arg.Value, b.variables)
		}
	}
	return nil
}

func getOperation(document *language.QueryDocument, operationName string) *language.OperationDefinition {
	if operationName == "" {
		if len(document.Operations) == 1 {
			return document.Operations[0]
		}
		return nil
	}
	return document.Operations.ForName(operationName)
}

func coerceVariableValues(op *language.OperationDefinition, values map[string]any) (map[string]any, error) {
	coerced := make(map[string]any)
	for _, def := range op.VariableDefinitions {
		name := def.Variable
		val, ok := values[name]
		if !ok {
			val, ok = values[strings.TrimPrefix(name, "$")]
		}
		if !ok {
			if def.DefaultValue != nil {
				val = astValueToGo(def.DefaultValue)
			} else if def.Type.NonNull {
				return nil, fmt.Errorf("variable $%s of required type %s was not provided", name, def.Type.String())
			} else {
				continue
			}
		}
		if val == nil && def.Type.NonNull {
			return nil, fmt.Errorf("variable $%s of type %s cannot be null", name, def.Type.String())
		}
		coerced[name] = val
	}
	return coerced, nil
}
