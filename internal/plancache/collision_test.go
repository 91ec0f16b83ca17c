package plancache

import (
	"context"
	"testing"

	"github.com/hanpama/fedgraph/internal/fedtest"
	"github.com/hanpama/fedgraph/internal/planner"
	"github.com/hanpama/fedgraph/internal/query"
	"github.com/stretchr/testify/require"
)

func TestPlanIgnoresEntryWithOtherFingerprint(t *testing.T) {
	c, err := New(8)
	require.NoError(t, err)
	g := fedtest.UsersProducts(t)
	root, err := query.Parse(`{ user(id: "u1") { name } }`, "", nil)
	require.NoError(t, err)

	stale := &planner.ExecutionPlan{}
	c.plans.Add(Key(root, g), &entry{fingerprint: "other selection", plan: stale})

	plan, err := c.Plan(context.Background(), root, g)
	require.NoError(t, err)
	require.NotSame(t, stale, plan)
	require.Len(t, plan.Steps, 1)

	again, err := c.Plan(context.Background(), root, g)
	require.NoError(t, err)
	require.Same(t, plan, again)
	require.Equal(t, 1, c.Len())
}
