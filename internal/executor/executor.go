// Package executor runs an ExecutionPlan wave by wave and assembles the
// merged response.
//
// Steps of one wave are dispatched concurrently and the wave is awaited in
// full before the next begins. Entity steps read their representations from
// the per-request arena, so a dependent step only sees data merged by
// earlier waves. When a step fails, entity steps that depend on it are never
// sent; their locations are reported once as UNREACHABLE.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	eventbus "github.com/hanpama/fedgraph/internal/eventbus"
	events "github.com/hanpama/fedgraph/internal/events"
	merger "github.com/hanpama/fedgraph/internal/merger"
	planner "github.com/hanpama/fedgraph/internal/planner"
	result "github.com/hanpama/fedgraph/internal/result"
	subgraph "github.com/hanpama/fedgraph/internal/subgraph"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Executor struct {
	sub           *subgraph.Executor
	stepTimeout   time.Duration
	maxAttempts   uint
	retryInterval time.Duration
	concurrency   int
	logger        *zap.Logger
}

type Option func(*Executor)

// WithStepTimeout bounds each step, retries included. Zero disables it.
func WithStepTimeout(d time.Duration) Option { return func(e *Executor) { e.stepTimeout = d } }

// WithRetry sets how many times a step failing with TRANSPORT_ERROR is
// attempted in total, and the first backoff interval.
func WithRetry(attempts uint, interval time.Duration) Option {
	return func(e *Executor) {
		if attempts == 0 {
			attempts = 1
		}
		e.maxAttempts = attempts
		e.retryInterval = interval
	}
}

// WithConcurrency limits in-flight steps per wave. Zero means no limit.
func WithConcurrency(n int) Option { return func(e *Executor) { e.concurrency = n } }

func WithLogger(l *zap.Logger) Option { return func(e *Executor) { e.logger = l } }

func New(sub *subgraph.Executor, opts ...Option) *Executor {
	e := &Executor{
		sub:           sub,
		maxAttempts:   1,
		retryInterval: 100 * time.Millisecond,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes plan and returns the response projected onto plan.Shape.
// Step failures are contained in the response; the error is non-nil only
// when a *subgraph.PreconditionViolation aborts the request, which means
// the representations were built inconsistently with the plan.
func (e *Executor) Run(ctx context.Context, plan *planner.ExecutionPlan) (*result.MergedResponse, error) {
	arena := merger.NewArena(merger.WithLogger(e.logger))
	failed := map[int]bool{}

	for wave, ids := range plan.Waves {
		if ctx.Err() != nil {
			return interrupted(ctx), nil
		}
		start := time.Now()
		eventbus.Publish(ctx, events.WaveStart{Wave: wave, Steps: ids})

		results := make([]*result.PartialResult, len(ids))
		g, gctx := errgroup.WithContext(ctx)
		if e.concurrency > 0 {
			g.SetLimit(e.concurrency)
		}
		for i, id := range ids {
			step := plan.Step(id)
			if step.Kind == planner.KindEntity && anyFailed(step.DependsOn, failed) {
				results[i] = unreachable(step, arena, failed)
				continue
			}
			var reps []subgraph.Representation
			if step.Kind == planner.KindEntity {
				var skipped []result.Path
				reps, skipped = representations(step, arena)
				if len(skipped) > 0 {
					e.logger.Debug("entities without key or required fields",
						zap.Int("step", step.ID),
						zap.String("service", step.Service),
						zap.Stringer("path", skipped[0]),
						zap.Int("count", len(skipped)))
				}
				if len(reps) == 0 {
					e.logger.Debug("no entities to resolve", zap.Int("step", step.ID), zap.String("service", step.Service))
					continue
				}
			}
			g.Go(func() error {
				pr, err := e.runStep(gctx, step, reps)
				if err != nil {
					return err
				}
				results[i] = pr
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		nfailed := 0
		for _, pr := range results {
			if pr == nil {
				continue
			}
			if pr.Failed() {
				nfailed++
				failed[pr.StepID] = true
				e.reportFailure(ctx, plan.Step(pr.StepID), pr.Failure)
			}
			arena.Add(pr)
		}
		eventbus.Publish(ctx, events.WaveFinish{Wave: wave, Failed: nfailed, Duration: time.Since(start)})
	}

	if ctx.Err() != nil {
		return interrupted(ctx), nil
	}
	return arena.Resolve(plan.Shape), nil
}

// retryable carries a failed attempt through backoff.Retry.
type retryable struct{ failure *result.Failure }

func (r *retryable) Error() string { return r.failure.Message }

func (e *Executor) runStep(ctx context.Context, step *planner.Step, reps []subgraph.Representation) (*result.PartialResult, error) {
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	attempt := 0
	op := func() (*result.PartialResult, error) {
		attempt++
		pr, err := e.sub.Execute(ctx, step, reps)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		if pr.Failed() && subgraph.Retryable(pr.Failure.Kind) {
			return pr, &retryable{failure: pr.Failure}
		}
		return pr, nil
	}
	notify := func(err error, next time.Duration) {
		e.logger.Debug("retrying step",
			zap.Int("step", step.ID),
			zap.String("service", step.Service),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", next),
			zap.Error(err))
		eventbus.Publish(ctx, events.StepRetry{StepID: step.ID, Service: step.Service, Attempt: attempt + 1, Err: err})
	}

	pr, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(&backoff.ExponentialBackOff{
			InitialInterval:     e.retryInterval,
			RandomizationFactor: backoff.DefaultRandomizationFactor,
			Multiplier:          backoff.DefaultMultiplier,
			MaxInterval:         10 * e.retryInterval,
		}),
		backoff.WithMaxTries(e.maxAttempts),
		backoff.WithNotify(notify))
	if pr != nil {
		return pr, nil
	}
	var pv *subgraph.PreconditionViolation
	if errors.As(err, &pv) {
		return nil, pv
	}
	// Cancelled before the first reply arrived.
	return &result.PartialResult{
		StepID:  step.ID,
		Service: step.Service,
		Failure: &result.Failure{Kind: subgraph.Classify(err), Message: err.Error()},
	}, nil
}

func (e *Executor) reportFailure(ctx context.Context, step *planner.Step, f *result.Failure) {
	fields := []zap.Field{
		zap.Int("step", step.ID),
		zap.String("service", step.Service),
		zap.String("kind", string(f.Kind)),
		zap.String("message", f.Message),
	}
	if len(f.Paths) > 0 {
		fields = append(fields, zap.Stringer("path", f.Paths[0]))
	}
	e.logger.Warn("step failed", fields...)
	eventbus.Publish(ctx, events.StepFailure{StepID: step.ID, Service: step.Service, Kind: string(f.Kind), Message: f.Message})
}

func anyFailed(ids []int, failed map[int]bool) bool {
	for _, id := range ids {
		if failed[id] {
			return true
		}
	}
	return false
}

// unreachable fails step without sending it. Its dependents are
// unreachable in turn.
func unreachable(step *planner.Step, arena *merger.Arena, failed map[int]bool) *result.PartialResult {
	var paths []result.Path
	for _, loc := range locations(step, arena) {
		for _, f := range step.Selection {
			paths = append(paths, loc.path.Append(f.ResponseKey()))
		}
	}
	if len(paths) == 0 {
		// Nothing of the step's parent survived; no location to report.
		failed[step.ID] = true
		return nil
	}
	return &result.PartialResult{
		StepID:  step.ID,
		Service: step.Service,
		Failure: &result.Failure{
			Kind:    result.KindUnreachable,
			Message: fmt.Sprintf("%s was not queried because a step it depends on failed", step.Service),
			Paths:   paths,
		},
	}
}

func interrupted(ctx context.Context) *result.MergedResponse {
	err := ctx.Err()
	return &result.MergedResponse{Errors: []result.Error{{
		Message: err.Error(),
		Kind:    subgraph.Classify(err),
	}}}
}
