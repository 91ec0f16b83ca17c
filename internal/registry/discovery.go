package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

type ServiceMetadata struct {
	Name     string
	URL      string
	FilePath string
}

// Discovery lists subgraphs and reads their SDL.
type Discovery interface {
	ListMetadata(ctx context.Context) ([]*ServiceMetadata, error)
	ReadServiceSDL(ctx context.Context, name string) (string, error)
}

// Load registers every schema the discovery yields into a fresh Registry.
// All failures are reported together.
func Load(ctx context.Context, disc Discovery) (*Registry, error) {
	metas, err := disc.ListMetadata(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })

	r := New()
	var errs []error
	for _, m := range metas {
		sdl, err := disc.ReadServiceSDL(ctx, m.Name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := r.Register(m.Name, m.URL, sdl); err != nil {
			errs = append(errs, fmt.Errorf("register %q: %w", m.Name, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return r, nil
}
