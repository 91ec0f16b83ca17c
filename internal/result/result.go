// Package result holds the values exchanged between the subgraph executor,
// the plan executor and the response merger.
package result

import (
	"encoding/json"
	"fmt"
)

type ErrorKind string

const (
	KindSubgraph       ErrorKind = "SUBGRAPH_ERROR"
	KindTransport      ErrorKind = "TRANSPORT_ERROR"
	KindTimeout        ErrorKind = "TIMEOUT"
	KindNotFound       ErrorKind = "NOT_FOUND"
	KindUnreachable    ErrorKind = "UNREACHABLE"
	KindMergeConflict  ErrorKind = "MERGE_CONFLICT"
	KindNullViolation  ErrorKind = "NULL_VIOLATION"
	KindCancelled      ErrorKind = "CANCELLED"
	KindPlanning       ErrorKind = "PLANNING_ERROR"
	KindInternal       ErrorKind = "INTERNAL_ERROR"
	KindMalformedReply ErrorKind = "MALFORMED_RESPONSE"
)

// Error is one entry of a response's errors list.
type Error struct {
	Message string
	Path    Path
	Kind    ErrorKind
	Service string
}

func (e Error) Error() string {
	if len(e.Path) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func (e Error) MarshalJSON() ([]byte, error) {
	type wire struct {
		Message    string         `json:"message"`
		Path       []any          `json:"path,omitempty"`
		Extensions map[string]any `json:"extensions,omitempty"`
	}
	w := wire{Message: e.Message}
	for _, p := range e.Path {
		w.Path = append(w.Path, p)
	}
	if e.Kind != "" || e.Service != "" {
		w.Extensions = map[string]any{}
		if e.Kind != "" {
			w.Extensions["kind"] = string(e.Kind)
		}
		if e.Service != "" {
			w.Extensions["service"] = e.Service
		}
	}
	return json.Marshal(w)
}

// Fragment is a value tree to be merged at a concrete response path.
type Fragment struct {
	Path  Path
	Value any
}

// Failure describes why a step produced no data. Paths lists every concrete
// response location the step was responsible for; the first one is reported.
type Failure struct {
	Kind    ErrorKind
	Message string
	Paths   []Path
}

// PartialResult is the outcome of a single plan step.
type PartialResult struct {
	StepID    int
	Service   string
	Fragments []Fragment
	Failure   *Failure
	// Errors are non-fatal errors reported by the subgraph alongside data.
	Errors []Error
}

func (r *PartialResult) Failed() bool { return r != nil && r.Failure != nil }

// MergedResponse is the final response for one request.
type MergedResponse struct {
	Data   map[string]any
	Errors []Error
}

func (r *MergedResponse) MarshalJSON() ([]byte, error) {
	type wire struct {
		Data   map[string]any `json:"data"`
		Errors []Error        `json:"errors,omitempty"`
	}
	return json.Marshal(wire{Data: r.Data, Errors: r.Errors})
}
