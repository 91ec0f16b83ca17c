// Package gateway ties composition, planning and execution together behind
// one hot-swappable supergraph.
package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	composer "github.com/hanpama/fedgraph/internal/composer"
	eventbus "github.com/hanpama/fedgraph/internal/eventbus"
	events "github.com/hanpama/fedgraph/internal/events"
	executor "github.com/hanpama/fedgraph/internal/executor"
	httptp "github.com/hanpama/fedgraph/internal/httptp"
	plancache "github.com/hanpama/fedgraph/internal/plancache"
	planner "github.com/hanpama/fedgraph/internal/planner"
	query "github.com/hanpama/fedgraph/internal/query"
	registry "github.com/hanpama/fedgraph/internal/registry"
	result "github.com/hanpama/fedgraph/internal/result"
	"go.uber.org/zap"
)

// ErrNotReady is returned by Execute before the first successful Reload.
var ErrNotReady = errors.New("gateway: no supergraph composed yet")

type Gateway struct {
	discovery registry.Discovery
	exec      *executor.Executor
	plans     *plancache.Cache
	endpoints *httptp.StaticEndpoints
	logger    *zap.Logger

	graph    atomic.Pointer[composer.Supergraph]
	reloadMu sync.Mutex
}

type Option func(*Gateway)

// WithEndpoints keeps the given table in sync with the composed services.
func WithEndpoints(e *httptp.StaticEndpoints) Option { return func(g *Gateway) { g.endpoints = e } }

func WithPlanCache(c *plancache.Cache) Option { return func(g *Gateway) { g.plans = c } }

func WithLogger(l *zap.Logger) Option { return func(g *Gateway) { g.logger = l } }

// New creates a gateway. Call Reload to compose the first supergraph.
func New(discovery registry.Discovery, exec *executor.Executor, opts ...Option) (*Gateway, error) {
	g := &Gateway{discovery: discovery, exec: exec, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	if g.plans == nil {
		plans, err := plancache.New(plancache.DefaultSize)
		if err != nil {
			return nil, err
		}
		g.plans = plans
	}
	return g, nil
}

// Supergraph returns the live supergraph, or nil before the first Reload.
func (g *Gateway) Supergraph() *composer.Supergraph { return g.graph.Load() }

// Reload recomposes every subgraph the discovery lists. On success the
// new supergraph replaces the live one; on failure the live one is kept.
func (g *Gateway) Reload(ctx context.Context) error {
	g.reloadMu.Lock()
	defer g.reloadMu.Unlock()

	start := time.Now()
	sg, err := g.compose(ctx)
	finish := events.CompositionFinish{Err: err, Duration: time.Since(start)}
	if err != nil {
		var ce *composer.CompositionError
		if errors.As(err, &ce) {
			finish.Violations = len(ce.Violations)
			for _, v := range ce.Violations {
				g.logger.Error("composition violation", zap.String("kind", string(v.Kind)), zap.Strings("services", v.Services), zap.String("message", v.Message))
			}
		} else {
			g.logger.Error("composition failed", zap.Error(err))
		}
		eventbus.Publish(ctx, finish)
		return err
	}

	finish.Hash = sg.Hash
	for _, s := range sg.Services {
		finish.Services = append(finish.Services, s.Name)
	}
	eventbus.Publish(ctx, finish)

	if old := g.graph.Load(); old != nil && old.Hash == sg.Hash {
		g.logger.Debug("supergraph unchanged", zap.Uint64("hash", sg.Hash))
		return nil
	}
	if g.endpoints != nil {
		urls := make(map[string]string, len(sg.Services))
		for _, s := range sg.Services {
			urls[s.Name] = s.URL
		}
		g.endpoints.Set(urls)
	}
	g.graph.Store(sg)
	g.plans.Purge()
	g.logger.Info("supergraph swapped", zap.Strings("services", finish.Services), zap.Uint64("hash", sg.Hash))
	return nil
}

func (g *Gateway) compose(ctx context.Context) (*composer.Supergraph, error) {
	reg, err := registry.Load(ctx, g.discovery)
	if err != nil {
		return nil, err
	}
	return composer.Compose(reg.GetAll())
}

// Plan returns the (possibly cached) plan for root.
func (g *Gateway) Plan(ctx context.Context, root *query.Node) (*planner.ExecutionPlan, error) {
	sg := g.graph.Load()
	if sg == nil {
		return nil, ErrNotReady
	}
	return g.plans.Plan(ctx, root, sg)
}

// Execute plans and runs root against the live supergraph. A
// *planner.PlanningError aborts before any subgraph is called; step
// failures are reported inside the response.
func (g *Gateway) Execute(ctx context.Context, root *query.Node) (*result.MergedResponse, error) {
	plan, err := g.Plan(ctx, root)
	if err != nil {
		return nil, err
	}
	return g.exec.Run(ctx, plan)
}

// ExecuteRequest parses a GraphQL document and executes the selected
// operation.
func (g *Gateway) ExecuteRequest(ctx context.Context, source, operationName string, variables map[string]any) (*result.MergedResponse, error) {
	root, err := query.Parse(source, operationName, variables)
	if err != nil {
		return nil, err
	}
	return g.Execute(ctx, root)
}

// Watch reloads the supergraph whenever a schema file under paths
// changes. It blocks until ctx is done.
func (g *Gateway) Watch(ctx context.Context, paths []string, opts ...registry.WatchOption) error {
	w, err := registry.NewWatcher(paths, func(changed []string) {
		g.logger.Info("schema files changed", zap.Strings("paths", changed))
		if err := g.Reload(ctx); err != nil {
			g.logger.Warn("keeping previous supergraph", zap.Error(err))
		}
	}, opts...)
	if err != nil {
		return err
	}
	defer w.Close()
	w.Run(ctx)
	return nil
}
