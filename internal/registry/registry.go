// Package registry holds the subgraph schemas participating in the
// supergraph.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry stores one SubgraphSchema per service. Registration is expected
// to happen from a single goroutine at startup or reload; reads are safe at
// any time.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*SubgraphSchema
}

func New() *Registry {
	return &Registry{schemas: make(map[string]*SubgraphSchema)}
}

// Conflict is one type/field pair claimed by two services.
type Conflict struct {
	TypeName string
	Field    string
	Owner    string
}

// SchemaConflict is returned by Register when the new schema claims
// ownership of fields another service already owns.
type SchemaConflict struct {
	Service   string
	Conflicts []Conflict
}

func (e *SchemaConflict) Error() string {
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = fmt.Sprintf("%s.%s is already owned by %q", c.TypeName, c.Field, c.Owner)
	}
	return fmt.Sprintf("schema conflict registering %q: %s", e.Service, strings.Join(parts, "; "))
}

// Register parses sdl and stores it under name, replacing an earlier
// registration of the same service.
func (r *Registry) Register(name, url, sdl string) (*SubgraphSchema, error) {
	s, err := Parse(name, url, sdl)
	if err != nil {
		return nil, err
	}
	if err := r.Add(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Add stores an already parsed schema.
func (r *Registry) Add(s *SubgraphSchema) error {
	if s.Name == "" {
		return fmt.Errorf("subgraph name cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var conflicts []Conflict
	for _, other := range r.sortedLocked() {
		if other.Name == s.Name {
			continue
		}
		conflicts = append(conflicts, ownershipConflicts(s, other)...)
	}
	if len(conflicts) > 0 {
		return &SchemaConflict{Service: s.Name, Conflicts: conflicts}
	}
	r.schemas[s.Name] = s
	return nil
}

// Unregister removes a service. It reports whether the service was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.schemas[name]
	delete(r.schemas, name)
	return ok
}

func (r *Registry) Get(name string) (*SubgraphSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	return s, ok
}

// GetAll returns every registered schema ordered by service name.
func (r *Registry) GetAll() []*SubgraphSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

func (r *Registry) sortedLocked() []*SubgraphSchema {
	out := make([]*SubgraphSchema, 0, len(r.schemas))
	for _, s := range r.schemas {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ownershipConflicts lists fields both schemas own without an extension
// marker. Only root and entity types carry ownership; key fields and value
// types may be shared.
func ownershipConflicts(s, other *SubgraphSchema) []Conflict {
	var out []Conflict
	for _, t := range s.Types {
		if t.Extension {
			continue
		}
		ot := other.Type(t.Name)
		if ot == nil || ot.Extension {
			continue
		}
		if !IsRootType(t.Name) && len(t.Keys) == 0 && len(ot.Keys) == 0 {
			continue
		}
		for _, f := range t.Fields {
			if f.External || t.IsKeyField(f.Name) || ot.IsKeyField(f.Name) {
				continue
			}
			if of := ot.Field(f.Name); of != nil && of.Owned() {
				out = append(out, Conflict{TypeName: t.Name, Field: f.Name, Owner: other.Name})
			}
		}
	}
	return out
}

// IsRootType reports whether name is an operation root type.
func IsRootType(name string) bool {
	return name == "Query" || name == "Mutation"
}
