// Package subgraph sends plan steps to subgraph services and maps their
// replies into partial results.
package subgraph

import "context"

// Request is a GraphQL request as sent over the wire.
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// Response is a decoded GraphQL response.
type Response struct {
	Data   map[string]any
	Errors []ResponseError
}

type ResponseError struct {
	Message    string
	Path       []any
	Extensions map[string]any
}

type stepKey struct{}

// WithStep records the id of the step a request belongs to.
func WithStep(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, stepKey{}, id)
}

// StepFromContext returns the step id recorded by WithStep.
func StepFromContext(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(stepKey{}).(int)
	return id, ok
}

// Transport delivers one request to the named service. Implementations
// return a *StepError for failures they can classify.
type Transport interface {
	Send(ctx context.Context, service string, req *Request) (*Response, error)
}
