package registry

import (
	"fmt"
	"sort"
	"strings"

	language "github.com/hanpama/fedgraph/internal/language"
	schema "github.com/hanpama/fedgraph/internal/schema"
)

// Federation plumbing that services publish alongside their own types.
var plumbingTypes = map[string]bool{
	"_Any":      true,
	"_FieldSet": true,
	"_Entity":   true,
	"_Service":  true,
}

var plumbingRootFields = map[string]bool{
	"_entities": true,
	"_service":  true,
}

// Parse reads one service's SDL into a SubgraphSchema. Directive misuse is
// reported as a ValidationError listing every violation.
func Parse(name, url, sdl string) (*SubgraphSchema, error) {
	doc, err := language.ParseSchema(name+".graphql", sdl)
	if err != nil {
		return nil, fmt.Errorf("parse schema of %q: %w", name, err)
	}
	p := &parser{
		service:   name,
		types:     make(map[string]*TypeDefinition),
		positions: make(map[string]*language.Position),
		roots: map[string]string{
			string(language.Query):    "Query",
			string(language.Mutation): "Mutation",
		},
	}
	p.readRootNames(doc)
	for _, def := range doc.Definitions {
		p.definition(def, false)
	}
	for _, def := range doc.Extensions {
		p.definition(def, true)
	}
	p.validate()
	if len(p.violations) > 0 {
		return nil, p.violations
	}
	return p.build(url), nil
}

type parser struct {
	service    string
	types      map[string]*TypeDefinition
	positions  map[string]*language.Position
	roots      map[string]string // operation -> declared root type name
	violations ValidationError
}

func (p *parser) readRootNames(doc *language.SchemaDocument) {
	for _, list := range [][]*language.SchemaDefinition{doc.Schema, doc.SchemaExtension} {
		for _, sd := range list {
			for _, ot := range sd.OperationTypes {
				p.roots[string(ot.Operation)] = ot.Type
			}
		}
	}
}

// canonicalName maps custom root type names onto Query and Mutation.
func (p *parser) canonicalName(name string) string {
	switch name {
	case p.roots[string(language.Query)]:
		return "Query"
	case p.roots[string(language.Mutation)]:
		return "Mutation"
	}
	return name
}

func (p *parser) definition(def *language.Definition, extension bool) {
	if plumbingTypes[def.Name] || def.BuiltIn {
		return
	}
	name := p.canonicalName(def.Name)
	if def.Directives.ForName("extends") != nil {
		extension = true
	}

	t := p.types[name]
	if t == nil {
		t = &TypeDefinition{
			Name:        name,
			Kind:        kindOf(def.Kind),
			Description: def.Description,
			Extension:   extension,
		}
		p.types[name] = t
		p.positions[name] = def.Position
	} else if !extension {
		// `type T` and `extend type T` in one document: the service owns T.
		t.Extension = false
		if t.Description == "" {
			t.Description = def.Description
		}
	}

	for _, d := range def.Directives {
		if d.Name != "key" {
			continue
		}
		arg := d.Arguments.ForName("fields")
		if arg == nil || arg.Value == nil {
			p.violations = append(p.violations, violationInvalidFieldSet("key", name, fmt.Errorf("missing fields argument"), d.Position))
			continue
		}
		fields, err := ParseFieldSet(arg.Value.Raw)
		if err != nil {
			p.violations = append(p.violations, violationInvalidFieldSet("key", name, err, d.Position))
			continue
		}
		t.Keys = append(t.Keys, fields)
	}

	t.Interfaces = appendUnique(t.Interfaces, def.Interfaces...)
	t.PossibleTypes = appendUnique(t.PossibleTypes, def.Types...)
	for _, ev := range def.EnumValues {
		t.EnumValues = appendUnique(t.EnumValues, ev.Name)
	}

	for _, fd := range def.Fields {
		if name == "Query" && plumbingRootFields[fd.Name] {
			continue
		}
		if t.Field(fd.Name) != nil {
			p.violations = append(p.violations, violationDuplicateField(name, fd.Name, fd.Position))
			continue
		}
		t.Fields = append(t.Fields, p.field(name, fd))
	}
}

func (p *parser) field(typeName string, fd *language.FieldDefinition) *FieldDefinition {
	f := &FieldDefinition{
		Name:        fd.Name,
		Description: fd.Description,
		Type:        schema.FromAST(fd.Type),
		External:    fd.Directives.ForName("external") != nil,
	}
	if fd.DefaultValue != nil {
		f.DefaultValue, _ = fd.DefaultValue.Value(nil)
	}
	for _, ad := range fd.Arguments {
		arg := &ArgumentDefinition{
			Name:        ad.Name,
			Description: ad.Description,
			Type:        schema.FromAST(ad.Type),
		}
		if ad.DefaultValue != nil {
			arg.DefaultValue, _ = ad.DefaultValue.Value(nil)
		}
		f.Arguments = append(f.Arguments, arg)
	}
	for _, directive := range []string{"requires", "provides"} {
		d := fd.Directives.ForName(directive)
		if d == nil {
			continue
		}
		arg := d.Arguments.ForName("fields")
		if arg == nil || arg.Value == nil {
			p.violations = append(p.violations, violationInvalidFieldSet(directive, typeName, fmt.Errorf("missing fields argument"), d.Position))
			continue
		}
		set, err := ParseFieldSet(arg.Value.Raw)
		if err != nil {
			p.violations = append(p.violations, violationInvalidFieldSet(directive, typeName, err, d.Position))
			continue
		}
		if directive == "requires" {
			f.Requires = set
		} else {
			f.Provides = set
		}
	}
	return f
}

func (p *parser) validate() {
	names := p.sortedTypeNames()
	for _, name := range names {
		t := p.types[name]
		pos := p.positions[name]
		for _, key := range t.Keys {
			for _, k := range key {
				if t.Field(k) == nil {
					p.violations = append(p.violations, violationUnknownKeyField(name, k, pos))
				}
			}
		}
		for _, f := range t.Fields {
			if len(f.Requires) > 0 && len(t.Keys) == 0 {
				p.violations = append(p.violations, violationDirectiveOutsideEntity("requires", name, f.Name, pos))
				continue
			}
			for _, r := range f.Requires {
				if rf := t.Field(r); rf == nil || !rf.External {
					p.violations = append(p.violations, violationRequiresNotExternal(name, f.Name, r, pos))
				}
			}
		}
	}
}

func (p *parser) sortedTypeNames() []string {
	names := make([]string, 0, len(p.types))
	for name := range p.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *parser) build(url string) *SubgraphSchema {
	s := &SubgraphSchema{Name: p.service, URL: url}
	for _, name := range p.sortedTypeNames() {
		t := p.types[name]
		s.Types = append(s.Types, t)
		for _, key := range t.Keys {
			s.Keys = append(s.Keys, &EntityKey{TypeName: name, Fields: key, Service: p.service})
		}
		if !t.Extension {
			continue
		}
		ext := &TypeExtension{TypeName: name, Service: p.service}
		if len(t.Keys) > 0 {
			ext.Key = t.Keys[0]
		}
		for _, f := range t.Fields {
			if f.External {
				continue
			}
			deps := append([]string(nil), ext.Key...)
			deps = appendUnique(deps, f.Requires...)
			ext.Fields = append(ext.Fields, &ExtensionField{Name: f.Name, Dependencies: deps})
		}
		s.Extensions = append(s.Extensions, ext)
	}
	return s
}

// ParseFieldSet splits a flat field set such as "id sku". Nested selections
// are rejected.
func ParseFieldSet(raw string) ([]string, error) {
	if strings.ContainsAny(raw, "{}") {
		return nil, fmt.Errorf("nested field sets are not supported: %q", raw)
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool { return r == ' ' || r == ',' || r == '\n' || r == '\t' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty field set")
	}
	return fields, nil
}

func kindOf(kind language.DefinitionKind) schema.TypeKind {
	switch kind {
	case language.Object:
		return schema.TypeKindObject
	case language.Interface:
		return schema.TypeKindInterface
	case language.Union:
		return schema.TypeKindUnion
	case language.Enum:
		return schema.TypeKindEnum
	case language.InputObject:
		return schema.TypeKindInputObject
	default:
		return schema.TypeKindScalar
	}
}

func appendUnique(list []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, existing := range list {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			list = append(list, v)
		}
	}
	return list
}
