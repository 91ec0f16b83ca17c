// Package merger assembles partial results into the client response.
package merger

import (
	"fmt"
	"reflect"
	"sort"

	planner "github.com/hanpama/fedgraph/internal/planner"
	result "github.com/hanpama/fedgraph/internal/result"
	"go.uber.org/zap"
)

// Arena is the per-request response store. Values are addressed by
// response path; nothing outside the arena holds pointers into it. An
// Arena is not safe for concurrent use.
type Arena struct {
	data    map[string]any
	errors  []result.Error
	covered []result.Path
	logger  *zap.Logger
}

type Option func(*Arena)

func WithLogger(l *zap.Logger) Option { return func(a *Arena) { a.logger = l } }

func NewArena(opts ...Option) *Arena {
	a := &Arena{data: map[string]any{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Merge folds results, in order, into a fresh arena and projects it onto
// shape.
func Merge(results []*result.PartialResult, shape []*planner.ShapeField, opts ...Option) *result.MergedResponse {
	a := NewArena(opts...)
	for _, r := range results {
		a.Add(r)
	}
	return a.Resolve(shape)
}

// Add merges the fragments of r, or records its failure.
func (a *Arena) Add(r *result.PartialResult) {
	if r == nil {
		return
	}
	if r.Failure != nil {
		a.Fail(r.Failure, r.Service)
	}
	for _, f := range r.Fragments {
		a.insert(f.Path, clone(f.Value), r.Service)
	}
	for _, e := range r.Errors {
		a.errors = append(a.errors, e)
		if len(e.Path) > 0 {
			a.covered = append(a.covered, e.Path)
		}
	}
}

// Fail records one error for f. Its paths stay unresolved and read as null.
func (a *Arena) Fail(f *result.Failure, service string) {
	e := result.Error{Message: f.Message, Kind: f.Kind, Service: service}
	if len(f.Paths) > 0 {
		e.Path = f.Paths[0]
	}
	a.errors = append(a.errors, e)
	a.covered = append(a.covered, f.Paths...)
}

// AddError appends a response error without touching data.
func (a *Arena) AddError(e result.Error) {
	a.errors = append(a.errors, e)
	if len(e.Path) > 0 {
		a.covered = append(a.covered, e.Path)
	}
}

// Data exposes the merged tree. Callers must treat it as read-only.
func (a *Arena) Data() map[string]any { return a.data }

// Lookup returns the value at path and whether it exists and is non-null.
func (a *Arena) Lookup(path result.Path) (any, bool) {
	var cur any = a.data
	for _, elem := range path {
		switch e := elem.(type) {
		case string:
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur = m[e]
		case int:
			l, ok := cur.([]any)
			if !ok || e < 0 || e >= len(l) {
				return nil, false
			}
			cur = l[e]
		default:
			return nil, false
		}
		if cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// insert merges value into the object at path. Targets that are missing
// or null are left alone: a fragment never creates its own location.
func (a *Arena) insert(path result.Path, value any, service string) {
	obj, ok := value.(map[string]any)
	if !ok {
		a.malformed(path, service, "fragment is not an object")
		return
	}
	var target any = a.data
	if len(path) > 0 {
		target, ok = a.Lookup(path)
		if !ok {
			a.logger.Debug("dropping fragment without a target", zap.Stringer("path", path), zap.String("service", service))
			return
		}
	}
	if _, isObj := target.(map[string]any); !isObj {
		a.conflict(path, service)
		return
	}
	a.mergeValue(target, obj, path, service)
}

// mergeValue deep-merges incoming into existing. On conflicting leaves the
// existing value wins.
func (a *Arena) mergeValue(existing, incoming any, path result.Path, service string) any {
	if incoming == nil {
		return existing
	}
	switch ex := existing.(type) {
	case nil:
		return incoming
	case map[string]any:
		in, ok := incoming.(map[string]any)
		if !ok {
			a.conflict(path, service)
			return existing
		}
		keys := make([]string, 0, len(in))
		for k := range in {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ex[k] = a.mergeValue(ex[k], in[k], path.Append(k), service)
		}
		return ex
	case []any:
		in, ok := incoming.([]any)
		if !ok || len(in) != len(ex) {
			a.conflict(path, service)
			return existing
		}
		for i := range ex {
			ex[i] = a.mergeValue(ex[i], in[i], path.Append(i), service)
		}
		return ex
	default:
		if !reflect.DeepEqual(existing, incoming) {
			a.conflict(path, service)
		}
		return existing
	}
}

func (a *Arena) conflict(path result.Path, service string) {
	a.logger.Warn("conflicting values while merging", zap.Stringer("path", path), zap.String("service", service))
	a.errors = append(a.errors, result.Error{
		Message: fmt.Sprintf("conflicting value at %s from %q; keeping the first value", pathLabel(path), service),
		Path:    path,
		Kind:    result.KindMergeConflict,
		Service: service,
	})
}

func (a *Arena) malformed(path result.Path, service, msg string) {
	a.errors = append(a.errors, result.Error{Message: msg, Path: path, Kind: result.KindMalformedReply, Service: service})
	if len(path) > 0 {
		a.covered = append(a.covered, path)
	}
}

func pathLabel(p result.Path) string {
	if len(p) == 0 {
		return "the root"
	}
	return p.String()
}

func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = clone(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = clone(item)
		}
		return out
	default:
		return v
	}
}
