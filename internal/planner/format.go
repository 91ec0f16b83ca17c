package planner

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// String renders the step compactly, e.g.
//
//	users:{user(id:"u1"){name id}}
//	products:User@user{products{name}}
func (s *Step) String() string {
	var b strings.Builder
	b.WriteString(s.Service)
	b.WriteString(":")
	if s.Kind == KindEntity {
		b.WriteString(s.TypeName)
		b.WriteString("@")
		b.WriteString(strings.Join(s.Path, "."))
	}
	writeSelection(&b, s.Selection)
	return b.String()
}

func writeSelection(b *strings.Builder, sel []*Field) {
	b.WriteString("{")
	for i, f := range sel {
		if i > 0 {
			b.WriteString(" ")
		}
		if f.Alias != "" {
			b.WriteString(f.Alias)
			b.WriteString(":")
		}
		b.WriteString(f.Name)
		if len(f.Arguments) > 0 {
			b.WriteString("(")
			for j, a := range f.Arguments {
				if j > 0 {
					b.WriteString(",")
				}
				b.WriteString(a.Name)
				b.WriteString(":")
				b.WriteString(formatValue(a.Value))
			}
			b.WriteString(")")
		}
		if len(f.Selection) > 0 {
			writeSelection(b, f.Selection)
		}
	}
	b.WriteString("}")
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = formatValue(item)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ":" + formatValue(v[k])
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return fmt.Sprint(v)
	}
}
