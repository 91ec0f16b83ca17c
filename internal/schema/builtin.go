package schema

// Every schema starts with the specified scalars and the @include and
// @skip directives. Render leaves them out.
var (
	builtinScalars = []*Type{
		{Name: "String", Kind: TypeKindScalar, Description: "UTF-8 character sequence."},
		{Name: "Int", Kind: TypeKindScalar, Description: "Signed 32-bit integer."},
		{Name: "Float", Kind: TypeKindScalar, Description: "Signed double-precision floating point value."},
		{Name: "Boolean", Kind: TypeKindScalar, Description: "true or false."},
		{Name: "ID", Kind: TypeKindScalar, Description: "Unique identifier, serialized as a string."},
	}
	builtinDirectives = []*Directive{
		conditionDirective("include", "Includes the selection only when `if` is true."),
		conditionDirective("skip", "Skips the selection when `if` is true."),
	}
)

func conditionDirective(name, desc string) *Directive {
	return &Directive{
		Name:        name,
		Description: desc,
		Arguments: []*InputValue{
			{Name: "if", Type: NonNullType(NamedType("Boolean"))},
		},
		Locations: []string{"FIELD", "FRAGMENT_SPREAD", "INLINE_FRAGMENT"},
	}
}

// IsBuiltinScalar reports whether name is one of the specified scalars.
func IsBuiltinScalar(name string) bool {
	for _, t := range builtinScalars {
		if t.Name == name {
			return true
		}
	}
	return false
}

func isBuiltinType(t *Type) bool {
	for _, b := range builtinScalars {
		if b == t {
			return true
		}
	}
	return false
}

func isBuiltinDirective(d *Directive) bool {
	for _, b := range builtinDirectives {
		if b == d {
			return true
		}
	}
	return false
}
