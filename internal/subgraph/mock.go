package subgraph

import (
	"context"
	"fmt"
	"sync"

	result "github.com/hanpama/fedgraph/internal/result"
)

// CallRecord captures a single Send invocation for assertions.
type CallRecord struct {
	Service string
	Request *Request
}

// HandlerFunc answers a request in place of a real subgraph.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

// MockTransport implements Transport with per-service handlers and records
// every call. It is safe for concurrent use.
type MockTransport struct {
	mu       sync.Mutex
	handlers map[string]HandlerFunc
	calls    []CallRecord
}

func NewMockTransport() *MockTransport {
	return &MockTransport{handlers: make(map[string]HandlerFunc)}
}

// Handle installs the handler for service and returns m.
func (m *MockTransport) Handle(service string, h HandlerFunc) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[service] = h
	return m
}

// Reply makes service answer every request with data.
func (m *MockTransport) Reply(service string, data map[string]any) *MockTransport {
	return m.Handle(service, func(context.Context, *Request) (*Response, error) {
		return &Response{Data: data}, nil
	})
}

// Fail makes every request to service return err.
func (m *MockTransport) Fail(service string, err error) *MockTransport {
	return m.Handle(service, func(context.Context, *Request) (*Response, error) {
		return nil, err
	})
}

func (m *MockTransport) Send(ctx context.Context, service string, req *Request) (*Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, CallRecord{Service: service, Request: req})
	h := m.handlers[service]
	m.mu.Unlock()

	if h == nil {
		return nil, &StepError{Kind: result.KindTransport, Service: service, Message: "no handler installed"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return h(ctx, req)
}

// Calls returns a snapshot of recorded calls.
func (m *MockTransport) Calls() []CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallRecord, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallsTo returns the requests sent to service, in order.
func (m *MockTransport) CallsTo(service string) []*Request {
	var out []*Request
	for _, c := range m.Calls() {
		if c.Service == service {
			out = append(out, c.Request)
		}
	}
	return out
}

func (c CallRecord) String() string { return fmt.Sprintf("%s: %s", c.Service, c.Request.Query) }
