package gateway_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hanpama/fedgraph/internal/composer"
	"github.com/hanpama/fedgraph/internal/executor"
	"github.com/hanpama/fedgraph/internal/fedtest"
	"github.com/hanpama/fedgraph/internal/gateway"
	"github.com/hanpama/fedgraph/internal/httptp"
	"github.com/hanpama/fedgraph/internal/planner"
	"github.com/hanpama/fedgraph/internal/registry"
	"github.com/hanpama/fedgraph/internal/subgraph"
	"github.com/stretchr/testify/require"
)

// mutableDiscovery lets a test change the subgraph set between reloads.
type mutableDiscovery struct {
	mu       sync.Mutex
	services map[string]registry.InMemoryService
}

func (d *mutableDiscovery) set(svc registry.InMemoryService) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.services == nil {
		d.services = map[string]registry.InMemoryService{}
	}
	d.services[svc.Name] = svc
}

func (d *mutableDiscovery) snapshot() *registry.InMemoryDiscovery {
	d.mu.Lock()
	defer d.mu.Unlock()
	var list []registry.InMemoryService
	for _, s := range d.services {
		list = append(list, s)
	}
	return registry.NewInMemoryDiscovery(list)
}

func (d *mutableDiscovery) ListMetadata(ctx context.Context) ([]*registry.ServiceMetadata, error) {
	return d.snapshot().ListMetadata(ctx)
}

func (d *mutableDiscovery) ReadServiceSDL(ctx context.Context, name string) (string, error) {
	return d.snapshot().ReadServiceSDL(ctx, name)
}

// subgraphServer answers root queries with root and entity queries with
// one copy of entity per representation.
func subgraphServer(t *testing.T, root map[string]any, entity map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req subgraph.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := root
		if reps, ok := req.Variables["representations"].([]any); ok {
			out := make([]any, len(reps))
			for i := range reps {
				out[i] = entity
			}
			data = map[string]any{"_entities": out}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGateway(t *testing.T, disc registry.Discovery) *gateway.Gateway {
	t.Helper()
	endpoints := httptp.NewStaticEndpoints(nil)
	tp := httptp.New(httptp.WithEndpoints(endpoints))
	t.Cleanup(func() { _ = tp.Close() })
	gw, err := gateway.New(disc, executor.New(subgraph.New(tp)), gateway.WithEndpoints(endpoints))
	require.NoError(t, err)
	return gw
}

func TestExecuteAcrossSubgraphs(t *testing.T) {
	users := subgraphServer(t, map[string]any{"user": map[string]any{"name": "Ada", "id": "u1"}}, nil)
	products := subgraphServer(t, nil, map[string]any{"products": []any{map[string]any{"name": "Lamp"}}})

	disc := &mutableDiscovery{}
	disc.set(registry.InMemoryService{Name: "users", URL: users.URL, Content: fedtest.UsersSDL})
	disc.set(registry.InMemoryService{Name: "products", URL: products.URL, Content: fedtest.ProductsSDL})

	gw := newGateway(t, disc)
	require.NoError(t, gw.Reload(context.Background()))

	resp, err := gw.ExecuteRequest(context.Background(), `{ user(id: "u1") { name products { name } } }`, "", nil)
	require.NoError(t, err)

	want := map[string]any{
		"user": map[string]any{
			"name":     "Ada",
			"products": []any{map[string]any{"name": "Lamp"}},
		},
	}
	if diff := cmp.Diff(want, resp.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
	require.Empty(t, resp.Errors)
}

func TestExecuteBeforeReload(t *testing.T) {
	gw := newGateway(t, &mutableDiscovery{})
	_, err := gw.ExecuteRequest(context.Background(), `{ users { id } }`, "", nil)
	require.ErrorIs(t, err, gateway.ErrNotReady)
}

func TestExecuteUnknownField(t *testing.T) {
	disc := &mutableDiscovery{}
	disc.set(registry.InMemoryService{Name: "users", URL: "http://users", Content: fedtest.UsersSDL})
	gw := newGateway(t, disc)
	require.NoError(t, gw.Reload(context.Background()))

	_, err := gw.ExecuteRequest(context.Background(), `{ user(id: "u1") { age } }`, "", nil)
	var pe *planner.PlanningError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "age", pe.Field)
}

func TestReloadKeepsGraphOnFailure(t *testing.T) {
	disc := &mutableDiscovery{}
	disc.set(registry.InMemoryService{Name: "users", URL: "http://users", Content: fedtest.UsersSDL})
	gw := newGateway(t, disc)
	require.NoError(t, gw.Reload(context.Background()))
	before := gw.Supergraph()

	disc.set(registry.InMemoryService{Name: "accounts", URL: "http://accounts", Content: `
type User @key(fields: "id") {
  id: ID!
  name: String
}
`})
	err := gw.Reload(context.Background())
	var ce *composer.CompositionError
	require.ErrorAs(t, err, &ce)
	require.Same(t, before, gw.Supergraph())

	disc.set(registry.InMemoryService{Name: "accounts", URL: "http://accounts", Content: fedtest.ProductsSDL})
	require.NoError(t, gw.Reload(context.Background()))
	require.NotEqual(t, before.Hash, gw.Supergraph().Hash)
}

func TestWatchReloadsOnSchemaChange(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.graphql"), []byte(fedtest.UsersSDL), 0o644))
	disc, err := registry.NewFileSystemDiscovery(dir, map[string]string{"*": "http://{name}"})
	require.NoError(t, err)

	gw := newGateway(t, disc)
	require.NoError(t, gw.Reload(context.Background()))
	before := gw.Supergraph().Hash

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Watch(ctx, []string{dir}, registry.WithDebounce(10*time.Millisecond)) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
	}()

	// Give the watcher time to register before writing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.graphql"), []byte(fedtest.ProductsSDL), 0o644))

	require.Eventually(t, func() bool {
		return gw.Supergraph().Hash != before
	}, 5*time.Second, 20*time.Millisecond)
	require.Len(t, gw.Supergraph().Services, 2)
}
