package plancache_test

import (
	"context"
	"sync"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/hanpama/fedgraph/internal/eventbus"
	"github.com/hanpama/fedgraph/internal/events"
	"github.com/hanpama/fedgraph/internal/fedtest"
	"github.com/hanpama/fedgraph/internal/plancache"
	"github.com/hanpama/fedgraph/internal/planner"
	"github.com/hanpama/fedgraph/internal/query"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *query.Node {
	t.Helper()
	root, err := query.Parse(src, "", nil)
	require.NoError(t, err)
	return root
}

func TestPlanReusesCachedPlan(t *testing.T) {
	bus := eventbus.New()
	eventbus.Use(bus)
	t.Cleanup(func() { eventbus.Use(nil) })
	var mu sync.Mutex
	var hits []bool
	defer eventbus.SubscribeTo(bus, func(_ context.Context, e events.PlanCacheLookup) {
		mu.Lock()
		defer mu.Unlock()
		hits = append(hits, e.Hit)
	})()

	c, err := plancache.New(8)
	require.NoError(t, err)
	g := fedtest.UsersProducts(t)

	first, err := c.Plan(context.Background(), parse(t, `{ user(id: "u1") { name } }`), g)
	require.NoError(t, err)
	second, err := c.Plan(context.Background(), parse(t, `query { user(id: "u1") { name } }`), g)
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, 1, c.Len())
	require.Equal(t, []bool{false, true}, hits)
}

func TestFingerprintDistinguishesSelections(t *testing.T) {
	g := fedtest.UsersProducts(t)
	base := plancache.Fingerprint(parse(t, `{ user(id: "u1") { name } }`), g)

	tests := []struct {
		name string
		fp   string
	}{
		{"argument", plancache.Fingerprint(parse(t, `{ user(id: "u2") { name } }`), g)},
		{"field", plancache.Fingerprint(parse(t, `{ user(id: "u1") { email } }`), g)},
		{"alias", plancache.Fingerprint(parse(t, `{ user(id: "u1") { name: email } }`), g)},
		{"supergraph", plancache.Fingerprint(parse(t, `{ user(id: "u1") { name } }`), fedtest.WithReviews(t))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotEqual(t, base, tt.fp)
		})
	}

	require.Equal(t, base, plancache.Fingerprint(parse(t, `query { user(id: "u1") { name } }`), g))
	require.Equal(t, xxhash.Sum64String(base), plancache.Key(parse(t, `{ user(id: "u1") { name } }`), g))
}

func TestPlanDoesNotCacheErrors(t *testing.T) {
	c, err := plancache.New(8)
	require.NoError(t, err)

	_, err = c.Plan(context.Background(), parse(t, `{ user(id: "u1") { age } }`), fedtest.UsersProducts(t))
	var pe *planner.PlanningError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, 0, c.Len())
}

func TestPlanConcurrentMisses(t *testing.T) {
	c, err := plancache.New(8)
	require.NoError(t, err)
	g := fedtest.UsersProducts(t)

	var wg sync.WaitGroup
	plans := make([]*planner.ExecutionPlan, 8)
	for i := range plans {
		wg.Add(1)
		go func() {
			defer wg.Done()
			root, err := query.Parse(`{ user(id: "u1") { name products { name } } }`, "", nil)
			if err != nil {
				return
			}
			plans[i], _ = c.Plan(context.Background(), root, g)
		}()
	}
	wg.Wait()

	for _, p := range plans {
		require.NotNil(t, p)
	}
	require.Equal(t, 1, c.Len())
}
