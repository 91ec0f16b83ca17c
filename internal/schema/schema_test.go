package schema

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	language "github.com/hanpama/fedgraph/internal/language"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	s := NewSchema("")
	s.SetQueryType("Query")

	status := NewType("Status", TypeKindEnum, "").
		AddEnumValue(NewEnumValue("ACTIVE", "")).
		AddEnumValue(NewEnumValue("BANNED", "").Deprecate("use ACTIVE"))
	filter := NewType("UserFilter", TypeKindInputObject, "").
		AddInputField(NewInputValue("status", "", NamedType("Status")).SetDefault("ACTIVE")).
		AddInputField(NewInputValue("range", "", NamedType("Int")).SetDefault(map[string]any{"to": 10, "from": 1}))
	user := NewType("User", TypeKindObject, "A registered user.").
		SetOwner("users").
		AddField(NewField("id", "", NonNullType(NamedType("ID"))).SetSource("users")).
		AddField(NewField("name", "", NamedType("String")).SetSource("users"))
	query := NewType("Query", TypeKindObject, "").
		AddField(NewField("users", "", NonNullType(ListType(NonNullType(NamedType("User"))))).
			AddArgument(NewInputValue("filter", "", NamedType("UserFilter"))).
			SetSource("users"))
	s.AddType(status).AddType(filter).AddType(user).AddType(query)

	want := `type Query {
  users(filter: UserFilter): [User!]! # users
}

enum Status {
  ACTIVE
  BANNED @deprecated(reason: "use ACTIVE")
}

"""
A registered user.
"""
type User { # owner: users
  id: ID! # users
  name: String # users
}

input UserFilter {
  status: Status = "ACTIVE"
  range: Int = {from: 1, to: 10}
}
`
	if diff := cmp.Diff(want, Render(s)); diff != "" {
		t.Errorf("render mismatch (-want +got):\n%s", diff)
	}
}

func TestTypeRefRoundTrip(t *testing.T) {
	for _, src := range []string{"ID", "ID!", "[String]", "[User!]!", "[[Int!]]"} {
		doc, err := language.ParseQuery("query($v: " + src + ") { a }")
		require.NoError(t, err)
		ref := FromAST(doc.Operations[0].VariableDefinitions[0].Type)
		require.Equal(t, src, ref.String())
		require.Equal(t, src, ToAST(ref).String())
	}
}

func TestNamedTypeUnwrapsWrappers(t *testing.T) {
	ref := NonNullType(ListType(NonNullType(NamedType("Product"))))
	require.Equal(t, "Product", ref.GetNamedType())
	require.True(t, ref.IsNonNull())
	require.True(t, ref.Unwrap().IsList())
	require.True(t, IsList(ref))
}

func TestRenderPutsRootTypesFirst(t *testing.T) {
	s := NewSchema("")
	s.SetQueryType("Query").SetMutationType("Mutation")
	s.AddType(NewType("Review", TypeKindObject, "").AddField(NewField("body", "", NamedType("String")))).
		AddType(NewType("Mutation", TypeKindObject, "").AddField(NewField("addReview", "", NamedType("Review")))).
		AddType(NewType("Query", TypeKindObject, "").AddField(NewField("ok", "", NamedType("Boolean"))))

	want := `type Query {
  ok: Boolean
}

type Mutation {
  addReview: Review
}

type Review {
  body: String
}
`
	require.Equal(t, want, Render(s))
}
