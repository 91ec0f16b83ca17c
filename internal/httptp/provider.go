package httptp

import (
	"context"
	"errors"
	"sync"
)

// ErrNoEndpoints indicates the provider has no URL for a service.
var ErrNoEndpoints = errors.New("httptp: no endpoint available")

// EndpointProvider resolves a subgraph name to its GraphQL URL.
// Implementations must be safe for concurrent use.
type EndpointProvider interface {
	Endpoint(ctx context.Context, service string) (string, error)
}

// StaticEndpoints is a provider backed by an in-memory map. Set replaces
// the whole table, e.g. after the supergraph is recomposed.
type StaticEndpoints struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewStaticEndpoints(m map[string]string) *StaticEndpoints {
	s := &StaticEndpoints{}
	s.Set(m)
	return s
}

func (s *StaticEndpoints) Set(m map[string]string) {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	s.mu.Lock()
	s.data = cp
	s.mu.Unlock()
}

func (s *StaticEndpoints) Endpoint(ctx context.Context, service string) (string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	url := s.data[service]
	if url == "" {
		return "", ErrNoEndpoints
	}
	return url, nil
}
