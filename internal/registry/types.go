package registry

import schema "github.com/hanpama/fedgraph/internal/schema"

// SubgraphSchema is the declarative view of one service's SDL. It is
// immutable once returned by Parse.
type SubgraphSchema struct {
	Name       string
	URL        string
	Types      []*TypeDefinition // sorted by name
	Keys       []*EntityKey
	Extensions []*TypeExtension
}

// Type returns the named type definition or nil.
func (s *SubgraphSchema) Type(name string) *TypeDefinition {
	for _, t := range s.Types {
		if t.Name == name {
			return t
		}
	}
	return nil
}

type TypeDefinition struct {
	Name        string
	Kind        schema.TypeKind
	Description string
	// Extension is set when the type is declared with `extend type` or
	// @extends, i.e. the service does not claim ownership.
	Extension     bool
	Keys          [][]string
	Fields        []*FieldDefinition // declaration order
	Interfaces    []string
	PossibleTypes []string
	EnumValues    []string
}

// Field returns the named field or nil.
func (t *TypeDefinition) Field(name string) *FieldDefinition {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// IsKeyField reports whether name is part of any @key on the type.
func (t *TypeDefinition) IsKeyField(name string) bool {
	for _, key := range t.Keys {
		for _, k := range key {
			if k == name {
				return true
			}
		}
	}
	return false
}

type FieldDefinition struct {
	Name         string
	Description  string
	Type         *schema.TypeRef
	Arguments    []*ArgumentDefinition
	DefaultValue any // input fields only
	// External fields are declared for reference only; another service
	// resolves them.
	External bool
	Requires []string
	Provides []string
}

func (f *FieldDefinition) Owned() bool { return !f.External }

type ArgumentDefinition struct {
	Name         string
	Description  string
	Type         *schema.TypeRef
	DefaultValue any
}

// EntityKey is one @key declaration.
type EntityKey struct {
	TypeName string
	Fields   []string
	Service  string
}

// TypeExtension records the fields a service contributes to a type it does
// not own.
type TypeExtension struct {
	TypeName string
	Service  string
	Key      []string
	Fields   []*ExtensionField
}

// ExtensionField is a contributed field together with the fields the
// extending service needs in each representation to resolve it.
type ExtensionField struct {
	Name         string
	Dependencies []string
}
