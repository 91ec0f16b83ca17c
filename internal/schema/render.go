package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Render prints s as SDL. Root operation types come first, then the
// remaining types and directives in name order. Builtin scalars and
// directives are omitted. Ownership is printed as trailing comments:
// "# owner: <service>" on entity types and "# <service>" on fields.
func Render(s *Schema) string {
	if s == nil {
		return ""
	}
	p := &printer{}
	for _, name := range typeOrder(s) {
		p.typ(s.Types[name])
	}
	names := make([]string, 0, len(s.Directives))
	for name, d := range s.Directives {
		if !isBuiltinDirective(d) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		p.directive(s.Directives[name])
	}
	return strings.TrimRight(p.String(), "\n") + "\n"
}

func typeOrder(s *Schema) []string {
	var roots []string
	for _, name := range []string{s.QueryType, s.MutationType, s.SubscriptionType} {
		if _, ok := s.Types[name]; ok && name != "" {
			roots = append(roots, name)
		}
	}
	rest := make([]string, 0, len(s.Types))
	for name, t := range s.Types {
		if isBuiltinType(t) || contains(roots, name) {
			continue
		}
		rest = append(rest, name)
	}
	sort.Strings(rest)
	return append(roots, rest...)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type printer struct {
	strings.Builder
}

func (p *printer) typ(t *Type) {
	p.description(t.Description, "")
	switch t.Kind {
	case TypeKindScalar:
		p.WriteString("scalar " + t.Name)
		if t.SpecifiedByURL != nil {
			p.WriteString(" @specifiedBy(url: " + strconv.Quote(*t.SpecifiedByURL) + ")")
		}
		p.WriteString("\n\n")
	case TypeKindEnum:
		p.WriteString("enum " + t.Name + " {\n")
		for _, v := range t.EnumValues {
			p.description(v.Description, "  ")
			p.WriteString("  " + v.Name)
			p.deprecated(v.IsDeprecated, v.DeprecationReason)
			p.WriteString("\n")
		}
		p.WriteString("}\n\n")
	case TypeKindInputObject:
		p.WriteString("input " + t.Name)
		if t.OneOf {
			p.WriteString(" @oneOf")
		}
		p.WriteString(" {\n")
		for _, f := range t.InputFields {
			p.description(f.Description, "  ")
			p.WriteString("  ")
			p.inputValue(f)
			p.deprecated(f.IsDeprecated, f.DeprecationReason)
			p.WriteString("\n")
		}
		p.WriteString("}\n\n")
	case TypeKindObject, TypeKindInterface:
		keyword := "type "
		if t.Kind == TypeKindInterface {
			keyword = "interface "
		}
		p.WriteString(keyword + t.Name)
		if len(t.Interfaces) > 0 {
			p.WriteString(" implements " + strings.Join(t.Interfaces, " & "))
		}
		p.WriteString(" {")
		if t.Owner != "" {
			p.WriteString(" # owner: " + t.Owner)
		}
		p.WriteString("\n")
		for _, f := range t.Fields {
			p.field(f)
		}
		p.WriteString("}\n\n")
	case TypeKindUnion:
		p.WriteString("union " + t.Name + " = " + strings.Join(t.PossibleTypes, " | ") + "\n\n")
	}
}

func (p *printer) field(f *Field) {
	p.description(f.Description, "  ")
	p.WriteString("  " + f.Name)
	p.arguments(f.Arguments)
	p.WriteString(": " + renderTypeRef(f.Type))
	p.deprecated(f.IsDeprecated, f.DeprecationReason)
	if f.Source != "" {
		p.WriteString(" # " + f.Source)
	}
	p.WriteString("\n")
}

func (p *printer) directive(d *Directive) {
	p.description(d.Description, "")
	p.WriteString("directive @" + d.Name)
	p.arguments(d.Arguments)
	if d.IsRepeatable {
		p.WriteString(" repeatable")
	}
	p.WriteString(" on " + strings.Join(d.Locations, " | ") + "\n\n")
}

func (p *printer) arguments(args []*InputValue) {
	if len(args) == 0 {
		return
	}
	p.WriteString("(")
	for i, arg := range args {
		if i > 0 {
			p.WriteString(", ")
		}
		p.inputValue(arg)
	}
	p.WriteString(")")
}

func (p *printer) inputValue(v *InputValue) {
	p.WriteString(v.Name + ": " + renderTypeRef(v.Type))
	if v.DefaultValue != nil {
		p.WriteString(" = " + renderValue(v.DefaultValue))
	}
}

func (p *printer) deprecated(is bool, reason string) {
	if !is {
		return
	}
	p.WriteString(" @deprecated")
	if reason != "" {
		p.WriteString("(reason: " + strconv.Quote(reason) + ")")
	}
}

func (p *printer) description(desc, indent string) {
	if desc == "" {
		return
	}
	p.WriteString(indent + `"""` + "\n")
	for _, line := range strings.Split(strings.ReplaceAll(desc, `"""`, `\"""`), "\n") {
		p.WriteString(indent + line + "\n")
	}
	p.WriteString(indent + `"""` + "\n")
}

func renderTypeRef(t *TypeRef) string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case TypeRefKindNamed:
		return t.Named
	case TypeRefKindList:
		return "[" + renderTypeRef(t.OfType) + "]"
	case TypeRefKindNonNull:
		return renderTypeRef(t.OfType) + "!"
	}
	return ""
}

// renderValue prints a default value or directive argument. Object keys
// are sorted so output is stable.
func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = renderValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + renderValue(v[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return fmt.Sprint(value)
}
