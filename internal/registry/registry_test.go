package registry_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hanpama/fedgraph/internal/registry"
	"github.com/hanpama/fedgraph/internal/schema"
	"github.com/stretchr/testify/require"
)

func TestParseExtension(t *testing.T) {
	s, err := registry.Parse("products", "http://products", mustReadData(t, "testdata/products.graphql"))
	require.NoError(t, err)

	wantKeys := []*registry.EntityKey{
		{TypeName: "Product", Fields: []string{"id"}, Service: "products"},
		{TypeName: "User", Fields: []string{"id"}, Service: "products"},
	}
	if diff := cmp.Diff(wantKeys, s.Keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	wantExt := []*registry.TypeExtension{{
		TypeName: "User",
		Service:  "products",
		Key:      []string{"id"},
		Fields: []*registry.ExtensionField{
			{Name: "products", Dependencies: []string{"id"}},
		},
	}}
	if diff := cmp.Diff(wantExt, s.Extensions); diff != "" {
		t.Errorf("extensions mismatch (-want +got):\n%s", diff)
	}

	user := s.Type("User")
	require.NotNil(t, user)
	require.True(t, user.Extension)
	require.True(t, user.Field("id").External)
	require.True(t, user.Field("products").Owned())
	require.Equal(t, "[Product!]!", user.Field("products").Type.String())

	var names []string
	for _, typ := range s.Types {
		names = append(names, typ.Name)
	}
	require.Equal(t, []string{"Product", "Query", "User"}, names)
}

func TestParseRequiresAndCustomRoot(t *testing.T) {
	sdl := `
schema { query: RootQuery }
type RootQuery { shippingEstimate(id: ID!): Int _service: String }
type Product @key(fields: "id") @extends {
  id: ID! @external
  weight: Int @external
  price: Int @external
  shippingEstimate: Int @requires(fields: "weight price")
}
`
	s, err := registry.Parse("shipping", "", sdl)
	require.NoError(t, err)

	q := s.Type("Query")
	require.NotNil(t, q, "custom root type is renamed to Query")
	require.Nil(t, q.Field("_service"))
	require.Equal(t, schema.TypeKindObject, q.Kind)

	p := s.Type("Product")
	require.True(t, p.Extension)
	require.Equal(t, []string{"weight", "price"}, p.Field("shippingEstimate").Requires)
	require.Equal(t, []string{"id", "weight", "price"}, s.Extensions[0].Fields[0].Dependencies)
}

func TestParseViolations(t *testing.T) {
	type testCase struct {
		name    string
		sdl     string
		wantErr string
	}
	for _, tc := range []testCase{
		{
			name:    "unknown_key_field",
			sdl:     `type User @key(fields: "uuid") { id: ID! }`,
			wantErr: `@key on User references unknown field "uuid"`,
		},
		{
			name:    "nested_key",
			sdl:     `type User @key(fields: "org { id }") { id: ID! }`,
			wantErr: "nested field sets are not supported",
		},
		{
			name: "requires_not_external",
			sdl: `extend type User @key(fields: "id") {
  id: ID! @external
  age: Int
  label: String @requires(fields: "age")
}`,
			wantErr: `requires "age" which is not declared @external`,
		},
		{
			name:    "requires_outside_entity",
			sdl:     `type Money { amount: Int @external label: String @requires(fields: "amount") }`,
			wantErr: "only allowed on entity types",
		},
		{
			name:    "syntax",
			sdl:     `type User {`,
			wantErr: "parse schema",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := registry.Parse("svc", "", tc.sdl)
			if err == nil {
				t.Fatal("expected error but got none")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRegisterConflict(t *testing.T) {
	r := registry.New()
	_, err := r.Register("users", "", mustReadData(t, "testdata/users.graphql"))
	require.NoError(t, err)

	_, err = r.Register("accounts", "", `type User @key(fields: "id") { id: ID! name: String }`)
	var conflict *registry.SchemaConflict
	require.True(t, errors.As(err, &conflict), "got %v", err)
	want := []registry.Conflict{{TypeName: "User", Field: "name", Owner: "users"}}
	if diff := cmp.Diff(want, conflict.Conflicts); diff != "" {
		t.Errorf("conflicts mismatch (-want +got):\n%s", diff)
	}

	// An explicit extension is not a registration conflict.
	_, err = r.Register("products", "", mustReadData(t, "testdata/products.graphql"))
	require.NoError(t, err)

	// Re-registering the same service replaces it.
	_, err = r.Register("users", "http://users", mustReadData(t, "testdata/users.graphql"))
	require.NoError(t, err)

	var names []string
	for _, s := range r.GetAll() {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{"products", "users"}, names)
	got, ok := r.Get("users")
	require.True(t, ok)
	require.Equal(t, "http://users", got.URL)

	require.True(t, r.Unregister("products"))
	require.False(t, r.Unregister("products"))
	require.Len(t, r.GetAll(), 1)
}

func TestLoadFileSystem(t *testing.T) {
	disc, err := registry.NewFileSystemDiscovery("testdata", map[string]string{
		"*":     "http://{name}.internal/graphql",
		"users": "http://users:4001/graphql",
	})
	require.NoError(t, err)

	r, err := registry.Load(context.Background(), disc)
	require.NoError(t, err)

	all := r.GetAll()
	require.Len(t, all, 2)
	require.Equal(t, "products", all[0].Name)
	require.Equal(t, "http://products.internal/graphql", all[0].URL)
	require.Equal(t, "http://users:4001/graphql", all[1].URL)
}

func TestLoadReportsAllFailures(t *testing.T) {
	disc := registry.NewInMemoryDiscovery([]registry.InMemoryService{
		{Name: "a", Content: `type User @key(fields: "nope") { id: ID! }`},
		{Name: "b", Content: `type {`},
	})
	_, err := registry.Load(context.Background(), disc)
	require.Error(t, err)
	require.Contains(t, err.Error(), `register "a"`)
	require.Contains(t, err.Error(), `register "b"`)
}

func TestWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "users.graphql")
	require.NoError(t, os.WriteFile(file, []byte(mustReadData(t, "testdata/users.graphql")), 0644))

	changed := make(chan []string, 1)
	w, err := registry.NewWatcher([]string{dir}, func(paths []string) {
		select {
		case changed <- paths:
		default:
		}
	}, registry.WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(file, []byte("type Query { ping: String }\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	select {
	case paths := <-changed:
		require.Equal(t, []string{file}, paths)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}
}

func mustReadData(t *testing.T, filename string) string {
	t.Helper()
	data, err := os.ReadFile(filename)
	require.NoError(t, err, "failed to read test data file %s", filename)
	return string(data)
}
