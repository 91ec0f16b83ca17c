package registry

import (
	"context"
	"fmt"
	"os"
)

type InMemoryService struct {
	Name string
	URL  string
	// Content is the SDL. When empty, File is read on every lookup.
	Content string
	File    string
}

// InMemoryDiscovery serves a fixed list of services, e.g. from a config file.
type InMemoryDiscovery struct {
	services []InMemoryService
}

func NewInMemoryDiscovery(svcs []InMemoryService) *InMemoryDiscovery {
	return &InMemoryDiscovery{services: append([]InMemoryService(nil), svcs...)}
}

func (d *InMemoryDiscovery) ListMetadata(ctx context.Context) ([]*ServiceMetadata, error) {
	metas := make([]*ServiceMetadata, 0, len(d.services))
	for _, svc := range d.services {
		metas = append(metas, &ServiceMetadata{Name: svc.Name, URL: svc.URL, FilePath: svc.File})
	}
	return metas, nil
}

func (d *InMemoryDiscovery) ReadServiceSDL(ctx context.Context, name string) (string, error) {
	for _, svc := range d.services {
		if svc.Name != name {
			continue
		}
		if svc.Content != "" || svc.File == "" {
			return svc.Content, nil
		}
		content, err := os.ReadFile(svc.File)
		if err != nil {
			return "", fmt.Errorf("failed to read service SDL for %q: %w", name, err)
		}
		return string(content), nil
	}
	return "", fmt.Errorf("service %q not found", name)
}

// Files lists the schema files backing the services.
func (d *InMemoryDiscovery) Files() []string {
	var files []string
	for _, svc := range d.services {
		if svc.Content == "" && svc.File != "" {
			files = append(files, svc.File)
		}
	}
	return files
}
