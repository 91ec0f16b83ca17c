package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSystemDiscovery treats every .graphql file below a root directory as
// one subgraph named after the file. The directory is rescanned on every
// ListMetadata call so that reloads pick up added and removed files.
type FileSystemDiscovery struct {
	rootDir string
	urls    map[string]string
}

// NewFileSystemDiscovery creates a discovery for rootDir. urls maps service
// names to their endpoints; a "*" entry is used as a template where "{name}"
// is replaced by the service name.
func NewFileSystemDiscovery(rootDir string, urls map[string]string) (*FileSystemDiscovery, error) {
	info, err := os.Stat(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory %q: %w", rootDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", rootDir)
	}
	return &FileSystemDiscovery{rootDir: rootDir, urls: urls}, nil
}

func (d *FileSystemDiscovery) Root() string { return d.rootDir }

func (d *FileSystemDiscovery) ListMetadata(ctx context.Context) ([]*ServiceMetadata, error) {
	var metas []*ServiceMetadata
	err := filepath.WalkDir(d.rootDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".graphql" {
			return nil
		}
		name := strings.TrimSuffix(entry.Name(), ".graphql")
		metas = append(metas, &ServiceMetadata{
			Name:     name,
			URL:      d.urlFor(name),
			FilePath: path,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk root directory %q: %w", d.rootDir, err)
	}
	return metas, nil
}

func (d *FileSystemDiscovery) ReadServiceSDL(ctx context.Context, name string) (string, error) {
	metas, err := d.ListMetadata(ctx)
	if err != nil {
		return "", err
	}
	for _, m := range metas {
		if m.Name != name {
			continue
		}
		content, err := os.ReadFile(m.FilePath)
		if err != nil {
			return "", fmt.Errorf("failed to read service SDL for %q: %w", name, err)
		}
		return string(content), nil
	}
	return "", fmt.Errorf("service %q not found", name)
}

func (d *FileSystemDiscovery) urlFor(name string) string {
	if u, ok := d.urls[name]; ok {
		return u
	}
	if tmpl, ok := d.urls["*"]; ok {
		return strings.ReplaceAll(tmpl, "{name}", name)
	}
	return ""
}
