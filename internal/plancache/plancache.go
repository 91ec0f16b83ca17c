// Package plancache memoizes execution plans per supergraph and selection.
package plancache

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	composer "github.com/hanpama/fedgraph/internal/composer"
	eventbus "github.com/hanpama/fedgraph/internal/eventbus"
	events "github.com/hanpama/fedgraph/internal/events"
	planner "github.com/hanpama/fedgraph/internal/planner"
	query "github.com/hanpama/fedgraph/internal/query"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

const DefaultSize = 1024

// Cache holds plans keyed by supergraph hash and selection fingerprint.
// Cached plans are shared between requests and must not be modified.
type Cache struct {
	plans *lru.Cache
	group singleflight.Group
}

// New returns a cache holding up to size plans.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultSize
	}
	plans, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Cache{plans: plans}, nil
}

type entry struct {
	fingerprint string
	plan        *planner.ExecutionPlan
}

// Plan returns the cached plan for root against g, planning it on a miss.
// Concurrent misses for the same selection plan once. Planning errors are
// not cached.
func (c *Cache) Plan(ctx context.Context, root *query.Node, g *composer.Supergraph) (*planner.ExecutionPlan, error) {
	fp := Fingerprint(root, g)
	key := xxhash.Sum64String(fp)
	if v, ok := c.plans.Get(key); ok && v.(*entry).fingerprint == fp {
		eventbus.Publish(ctx, events.PlanCacheLookup{Hit: true})
		return v.(*entry).plan, nil
	}
	eventbus.Publish(ctx, events.PlanCacheLookup{Hit: false})

	v, err, _ := c.group.Do(fp, func() (any, error) {
		plan, err := planner.Plan(root, g)
		if err != nil {
			return nil, err
		}
		c.plans.Add(key, &entry{fingerprint: fp, plan: plan})
		return plan, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*planner.ExecutionPlan), nil
}

// Purge drops every cached plan.
func (c *Cache) Purge() { c.plans.Purge() }

func (c *Cache) Len() int { return c.plans.Len() }

// Key is the hash the cache files root under. Distinct selections may
// share a key; entries are told apart by Fingerprint.
func Key(root *query.Node, g *composer.Supergraph) uint64 {
	return xxhash.Sum64String(Fingerprint(root, g))
}

// Fingerprint encodes root together with the supergraph hash. Two
// selections plan identically iff their fingerprints are equal.
func Fingerprint(root *query.Node, g *composer.Supergraph) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(g.Hash, 16))
	writeNode(&b, root)
	return b.String()
}

func writeNode(b *strings.Builder, n *query.Node) {
	b.WriteString("\x00")
	b.WriteString(n.Name)
	b.WriteString("\x00")
	b.WriteString(n.Alias)
	if len(n.Arguments) > 0 {
		// Map keys are sorted by encoding/json.
		raw, err := json.Marshal(n.Arguments)
		if err != nil {
			raw = []byte(strconv.Quote(err.Error()))
		}
		b.WriteString("(")
		b.Write(raw)
		b.WriteString(")")
	}
	b.WriteString("{")
	for _, c := range n.Children {
		writeNode(b, c)
	}
	b.WriteString("}")
}
