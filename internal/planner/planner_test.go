package planner_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hanpama/fedgraph/internal/composer"
	"github.com/hanpama/fedgraph/internal/fedtest"
	"github.com/hanpama/fedgraph/internal/planner"
	"github.com/hanpama/fedgraph/internal/query"
	"github.com/stretchr/testify/require"
)

func mustPlan(t *testing.T, src string, graph func(testing.TB) *composer.Supergraph) *planner.ExecutionPlan {
	t.Helper()
	root, err := query.Parse(src, "", nil)
	require.NoError(t, err)
	plan, err := planner.Plan(root, graph(t))
	require.NoError(t, err)
	checkWaves(t, plan)
	return plan
}

func stepStrings(plan *planner.ExecutionPlan) []string {
	out := make([]string, len(plan.Steps))
	for i, s := range plan.Steps {
		out[i] = s.String()
	}
	return out
}

// checkWaves asserts every step runs exactly one wave after its latest
// predecessor.
func checkWaves(t *testing.T, plan *planner.ExecutionPlan) {
	t.Helper()
	for _, s := range plan.Steps {
		want := 0
		for _, d := range s.DependsOn {
			pred := plan.Step(d)
			require.NotNil(t, pred)
			if pred.Wave+1 > want {
				want = pred.Wave + 1
			}
		}
		require.Equal(t, want, s.Wave, "step %d", s.ID)
	}
}

func TestPlanEntityExtension(t *testing.T) {
	plan := mustPlan(t, `{ user(id: "u1") { name products { name } } }`, fedtest.UsersProducts)

	want := []string{
		`users:{user(id:"u1"){name id}}`,
		`products:User@user{products{name}}`,
	}
	if diff := cmp.Diff(want, stepStrings(plan)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, [][]int{{0}, {1}}, plan.Waves)

	entity := plan.Step(1)
	require.Equal(t, planner.KindEntity, entity.Kind)
	require.Equal(t, "User", entity.TypeName)
	require.Equal(t, []string{"user"}, entity.Path)
	require.Equal(t, []int{0}, entity.DependsOn)
	require.Equal(t, []string{"id"}, entity.KeyFields)

	require.Len(t, plan.Shape, 1)
	user := plan.Shape[0]
	require.Equal(t, "user", user.ResponseKey)
	require.Equal(t, "User", user.Type.String())
	require.Len(t, user.Children, 2)
	require.Equal(t, "[Product!]!", user.Children[1].Type.String())
}

func TestPlanUnknownField(t *testing.T) {
	root, err := query.Parse(`{ user(id: "u1") { age } }`, "", nil)
	require.NoError(t, err)

	_, err = planner.Plan(root, fedtest.UsersProducts(t))
	var perr *planner.PlanningError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, planner.ReasonUnknownField, perr.Reason)
	require.Equal(t, "age", perr.Field)
	require.Contains(t, err.Error(), `"age"`)
}

func TestPlanIndependentRoots(t *testing.T) {
	plan := mustPlan(t, `{ user(id: "u1") { name } products(userId: "u1") { name } }`, fedtest.UsersProducts)

	want := []string{
		`products:{products(userId:"u1"){name}}`,
		`users:{user(id:"u1"){name}}`,
	}
	if diff := cmp.Diff(want, stepStrings(plan)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, [][]int{{0, 1}}, plan.Waves)
}

func TestPlanRequires(t *testing.T) {
	plan := mustPlan(t, `{ products(userId: "u1") { summary reviews { body } } }`, fedtest.WithReviews)

	want := []string{
		`products:{products(userId:"u1"){id name}}`,
		`reviews:Product@products.@{summary reviews{body}}`,
	}
	if diff := cmp.Diff(want, stepStrings(plan)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	reviews := plan.Step(1)
	require.Equal(t, []string{"name"}, reviews.RequiredFields)
	require.Equal(t, []string{"id", "name"}, reviews.RepresentationFields())
}

func TestPlanChainedEntities(t *testing.T) {
	plan := mustPlan(t, `{ user(id: "u1") { products { summary } } }`, fedtest.WithReviews)

	want := []string{
		`users:{user(id:"u1"){id}}`,
		`products:User@user{products{id name}}`,
		`reviews:Product@user.products.@{summary}`,
	}
	if diff := cmp.Diff(want, stepStrings(plan)); diff != "" {
		t.Errorf("steps mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, [][]int{{0}, {1}, {2}}, plan.Waves)
	require.Len(t, plan.Dependents(1), 1)
}

func TestPlanAliasesAndTypename(t *testing.T) {
	plan := mustPlan(t, `{ __typename me: user(id: "u1") { who: name __typename } }`, fedtest.UsersProducts)

	require.Equal(t, []string{`users:{me:user(id:"u1"){who:name __typename}}`}, stepStrings(plan))
	require.Equal(t, "Query", plan.Shape[0].Typename)
	require.Equal(t, "me", plan.Shape[1].ResponseKey)
	require.Equal(t, "User", plan.Shape[1].Children[1].Typename)
}

func TestPlanAliasedKeyField(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
		input string
	}{
		{
			name:  "alias over key",
			query: `{ user(id: "u1") { id: email products { name } } }`,
			want: []string{
				`users:{user(id:"u1"){id:email __key_id:id}}`,
				`products:User@user{products{name}}`,
			},
			input: planner.InputPrefix + "id",
		},
		{
			name:  "plain key reused",
			query: `{ user(id: "u1") { id products { name } } }`,
			want: []string{
				`users:{user(id:"u1"){id}}`,
				`products:User@user{products{name}}`,
			},
			input: "id",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := mustPlan(t, tt.query, fedtest.UsersProducts)
			if diff := cmp.Diff(tt.want, stepStrings(plan)); diff != "" {
				t.Errorf("steps mismatch (-want +got):\n%s", diff)
			}
			require.Equal(t, tt.input, plan.Step(1).InputKey("id"))
		})
	}
}

func TestPlanMutation(t *testing.T) {
	plan := mustPlan(t, `mutation { first: addReview(productId: "p1", body: "great") { body } second: addReview(productId: "p2", body: "meh") { rating } }`, fedtest.WithReviews)

	require.Equal(t, "mutation", plan.Operation)
	require.Equal(t, []string{
		`reviews:{first:addReview(body:"great",productId:"p1"){body} second:addReview(body:"meh",productId:"p2"){rating}}`,
	}, stepStrings(plan))
}

func TestPlanRejectsInvalidSelections(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		reason planner.Reason
	}{
		{"missing subselection", `{ user(id: "u1") }`, planner.ReasonSelection},
		{"leaf subselection", `{ user(id: "u1") { name { first } } }`, planner.ReasonSelection},
		{"unknown argument", `{ users(first: 10) { name } }`, planner.ReasonUnknownArgument},
		{"missing argument", `{ user { name } }`, planner.ReasonMissingArgument},
		{"no mutation type", `mutation { addUser { id } }`, planner.ReasonUnsupportedOp},
	}
	g := fedtest.UsersProducts(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := query.Parse(tt.query, "", nil)
			require.NoError(t, err)
			_, err = planner.Plan(root, g)
			var perr *planner.PlanningError
			require.True(t, errors.As(err, &perr), "got %v", err)
			require.Equal(t, tt.reason, perr.Reason)
		})
	}
}

func TestPlanDeterministic(t *testing.T) {
	g := fedtest.WithReviews(t)
	src := `{ user(id: "u1") { name products { summary reviews { body } } } products(userId: "u1") { name } }`

	root, err := query.Parse(src, "", nil)
	require.NoError(t, err)
	first, err := planner.Plan(root, g)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := planner.Plan(root, g)
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("plans differ (-first +again):\n%s", diff)
		}
	}
}
