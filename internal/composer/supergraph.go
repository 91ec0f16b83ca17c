// Package composer merges subgraph schemas into a supergraph.
package composer

import (
	"sort"

	schema "github.com/hanpama/fedgraph/internal/schema"
)

// Supergraph is the composed, read-only view of every subgraph. A value is
// never mutated after Compose returns it.
type Supergraph struct {
	QueryType    string
	MutationType string
	Types        map[string]*Type
	Services     []*Service // sorted by name
	// Ownership maps every resolvable field to the service that owns it.
	Ownership map[Coordinate]string
	// Schema is the client-facing API schema.
	Schema *schema.Schema
	Hash   uint64
}

type Service struct {
	Name string
	URL  string
}

// Coordinate names a field of a type.
type Coordinate struct {
	Type  string
	Field string
}

func (c Coordinate) String() string { return c.Type + "." + c.Field }

type Type struct {
	Name string
	Kind schema.TypeKind
	// Owner is empty for value types, which every declaring service
	// resolves locally.
	Owner     string
	Keys      [][]string
	Extenders []string
	// Fields are ordered by source service, then name.
	Fields []*Field
}

type Field struct {
	Name      string
	Type      *schema.TypeRef
	Arguments []*schema.InputValue
	// Service is the source tag: the service that owns the field.
	Service string
	// Resolvers lists every service able to return the field when it
	// already holds the parent object, sorted by name.
	Resolvers []string
	Requires  []string
	Extension bool
}

// ResolvableBy reports whether service can return f without an entity fetch.
func (f *Field) ResolvableBy(service string) bool {
	for _, s := range f.Resolvers {
		if s == service {
			return true
		}
	}
	return false
}

// Field returns the named field or nil.
func (t *Type) Field(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (t *Type) IsEntity() bool { return len(t.Keys) > 0 }

// IsComposite reports whether selections on the type need sub-fields.
func (t *Type) IsComposite() bool {
	switch t.Kind {
	case schema.TypeKindObject, schema.TypeKindInterface, schema.TypeKindUnion:
		return true
	}
	return false
}

// PrimaryKey is the first key declared by the owner.
func (t *Type) PrimaryKey() []string {
	if len(t.Keys) == 0 {
		return nil
	}
	return t.Keys[0]
}

// Owner returns the service owning typeName.field.
func (g *Supergraph) Owner(typeName, field string) (string, bool) {
	s, ok := g.Ownership[Coordinate{Type: typeName, Field: field}]
	return s, ok
}

// Service returns the named service or nil.
func (g *Supergraph) Service(name string) *Service {
	i := sort.Search(len(g.Services), func(i int) bool { return g.Services[i].Name >= name })
	if i < len(g.Services) && g.Services[i].Name == name {
		return g.Services[i]
	}
	return nil
}

// RootType returns the root type for "query" or "mutation".
func (g *Supergraph) RootType(operation string) *Type {
	switch operation {
	case "mutation":
		return g.Types[g.MutationType]
	default:
		return g.Types[g.QueryType]
	}
}
