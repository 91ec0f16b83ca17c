package subgraph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	planner "github.com/hanpama/fedgraph/internal/planner"
	result "github.com/hanpama/fedgraph/internal/result"
	"go.uber.org/zap"
)

// Executor runs single plan steps. It makes exactly one transport call per
// Execute and never retries.
type Executor struct {
	transport Transport
	logger    *zap.Logger
}

type Option func(*Executor)

func WithLogger(l *zap.Logger) Option { return func(e *Executor) { e.logger = l } }

func New(transport Transport, opts ...Option) *Executor {
	e := &Executor{transport: transport, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute sends step to its service. Subgraph and transport failures are
// reported in the returned PartialResult; the error is non-nil only for a
// *PreconditionViolation.
func (e *Executor) Execute(ctx context.Context, step *planner.Step, reps []Representation) (*result.PartialResult, error) {
	if step.Kind == planner.KindEntity {
		if err := checkRepresentations(step, reps); err != nil {
			e.logger.Error("invalid representations", zap.Error(err), zap.Int("step", step.ID), zap.String("service", step.Service))
			return nil, err
		}
	}

	pr := &result.PartialResult{StepID: step.ID, Service: step.Service}
	resp, err := e.transport.Send(WithStep(ctx, step.ID), step.Service, BuildRequest(step, reps))
	if err != nil {
		kind := Classify(err)
		pr.Failure = &result.Failure{Kind: kind, Message: err.Error(), Paths: failurePaths(step, reps)}
		return pr, nil
	}

	if resp.Data == nil {
		pr.Failure = replyFailure(step, reps, resp)
		return pr, nil
	}
	if step.Kind == planner.KindRoot {
		pr.Fragments = []result.Fragment{{Path: result.Path{}, Value: resp.Data}}
		for _, re := range resp.Errors {
			pr.Errors = append(pr.Errors, e.responseError(step, re, toPath(re.Path)))
		}
		return pr, nil
	}
	e.mapEntities(pr, step, reps, resp)
	return pr, nil
}

func (e *Executor) mapEntities(pr *result.PartialResult, step *planner.Step, reps []Representation, resp *Response) {
	raw, ok := resp.Data[entitiesField].([]any)
	if !ok || len(raw) != len(reps) {
		pr.Failure = &result.Failure{
			Kind:    result.KindMalformedReply,
			Message: fmt.Sprintf("%s returned %d entities for %d representations", step.Service, len(raw), len(reps)),
			Paths:   failurePaths(step, reps),
		}
		return
	}

	failed := map[int]bool{}
	for _, re := range resp.Errors {
		path := toPath(re.Path)
		if len(path) >= 2 && path[0] == entitiesField {
			if i, ok := path[1].(int); ok && i >= 0 && i < len(reps) && len(reps[i].Paths) > 0 {
				failed[i] = true
				pr.Errors = append(pr.Errors, e.responseError(step, re, reps[i].Paths[0].Append(path[2:]...)))
				continue
			}
		}
		pr.Errors = append(pr.Errors, e.responseError(step, re, nil))
	}

	for i, v := range raw {
		obj, ok := v.(map[string]any)
		if !ok {
			if v == nil && !failed[i] {
				e.logger.Debug("entity not found",
					zap.String("service", step.Service),
					zap.String("type", step.TypeName),
					zap.Any("representation", reps[i].Value))
			}
			continue
		}
		for _, p := range reps[i].Paths {
			pr.Fragments = append(pr.Fragments, result.Fragment{Path: p, Value: obj})
		}
	}
}

func (e *Executor) responseError(step *planner.Step, re ResponseError, path result.Path) result.Error {
	return result.Error{Message: re.Message, Path: path, Kind: result.KindSubgraph, Service: step.Service}
}

func replyFailure(step *planner.Step, reps []Representation, resp *Response) *result.Failure {
	if len(resp.Errors) == 0 {
		return &result.Failure{
			Kind:    result.KindMalformedReply,
			Message: step.Service + " returned neither data nor errors",
			Paths:   failurePaths(step, reps),
		}
	}
	msgs := make([]string, len(resp.Errors))
	for i, re := range resp.Errors {
		msgs[i] = re.Message
	}
	return &result.Failure{
		Kind:    result.KindSubgraph,
		Message: strings.Join(msgs, "; "),
		Paths:   failurePaths(step, reps),
	}
}

// failurePaths lists every location a failed step leaves unresolved.
func failurePaths(step *planner.Step, reps []Representation) []result.Path {
	var out []result.Path
	if step.Kind == planner.KindRoot {
		for _, f := range step.Selection {
			out = append(out, result.Path{f.ResponseKey()})
		}
		return out
	}
	for _, r := range reps {
		for _, p := range r.Paths {
			for _, f := range step.Selection {
				out = append(out, p.Append(f.ResponseKey()))
			}
		}
	}
	return out
}

// checkRepresentations requires non-null key fields. Required fields must
// be present but may be null.
func checkRepresentations(step *planner.Step, reps []Representation) error {
	keys := append([]string{typenameField}, step.KeyFields...)
	for i, r := range reps {
		for _, f := range keys {
			if v, ok := r.Value[f]; !ok || v == nil {
				return &PreconditionViolation{StepID: step.ID, Service: step.Service, TypeName: step.TypeName, Field: f, Index: i}
			}
		}
		for _, f := range step.RequiredFields {
			if _, ok := r.Value[f]; !ok {
				return &PreconditionViolation{StepID: step.ID, Service: step.Service, TypeName: step.TypeName, Field: f, Index: i}
			}
		}
	}
	return nil
}

// toPath normalizes a decoded JSON path; numbers become int indexes.
func toPath(raw []any) result.Path {
	if len(raw) == 0 {
		return nil
	}
	out := make(result.Path, 0, len(raw))
	for _, elem := range raw {
		switch v := elem.(type) {
		case string:
			out = append(out, v)
		case int:
			out = append(out, v)
		case float64:
			out = append(out, int(v))
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				out = append(out, v.String())
				continue
			}
			out = append(out, int(n))
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out
}
