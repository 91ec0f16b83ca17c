package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hanpama/fedgraph/internal/fedtest"
	"github.com/hanpama/fedgraph/internal/planner"
	"github.com/hanpama/fedgraph/internal/query"
	"github.com/hanpama/fedgraph/internal/reqid"
	"github.com/hanpama/fedgraph/internal/result"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"
)

// executorFunc adapts a function to Executor.
type executorFunc func(ctx context.Context, root *query.Node) (*result.MergedResponse, error)

func (f executorFunc) Execute(ctx context.Context, root *query.Node) (*result.MergedResponse, error) {
	return f(ctx, root)
}

func hello(ctx context.Context, root *query.Node) (*result.MergedResponse, error) {
	return &result.MergedResponse{Data: map[string]any{"hello": "world"}}, nil
}

func post(t *testing.T, h http.Handler, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/graphql", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestForwardedHeaders(t *testing.T) {
	var captured metadata.MD
	h := New(executorFunc(func(ctx context.Context, root *query.Node) (*result.MergedResponse, error) {
		captured, _ = metadata.FromOutgoingContext(ctx)
		return hello(ctx, root)
	}), WithForwardHeaders("Authorization"))

	w := post(t, h, `{"query":"{ hello }"}`, "Authorization", "Bearer t", "X-Other", "nope")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{"Bearer t"}, captured.Get("authorization"))
	require.Empty(t, captured.Get("x-other"))
}

func TestForwardedHeadersDefaultEmpty(t *testing.T) {
	var captured metadata.MD
	h := New(executorFunc(func(ctx context.Context, root *query.Node) (*result.MergedResponse, error) {
		captured, _ = metadata.FromOutgoingContext(ctx)
		return hello(ctx, root)
	}))

	w := post(t, h, `{"query":"{ hello }"}`, "Authorization", "Bearer t")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, captured.Get("authorization"))
}

func TestCORSAndPreflight(t *testing.T) {
	h := New(executorFunc(hello), WithCORS("*"))

	w := post(t, h, `{"query":"{ hello }"}`, "Origin", "http://example.com")
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	pre := httptest.NewRequest("OPTIONS", "/graphql", nil)
	pre.Header.Set("Origin", "http://example.com")
	pre.Header.Set("Access-Control-Request-Headers", "X-Test")
	pw := httptest.NewRecorder()
	h.ServeHTTP(pw, pre)
	require.Equal(t, http.StatusNoContent, pw.Code)
	require.Equal(t, "*", pw.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "X-Test", pw.Header().Get("Access-Control-Allow-Headers"))
}

func TestMaxBodyBytes(t *testing.T) {
	h := New(executorFunc(hello), WithMaxBodyBytes(10))
	w := post(t, h, `{"query":"1234567890"}`)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRequestID(t *testing.T) {
	var captured string
	h := New(executorFunc(func(ctx context.Context, root *query.Node) (*result.MergedResponse, error) {
		captured, _ = reqid.FromContext(ctx)
		return hello(ctx, root)
	}))

	w := post(t, h, `{"query":"{ hello }"}`)
	require.NotEmpty(t, captured)
	require.Equal(t, captured, w.Header().Get(reqid.Header))

	const incoming = "2f6c8f0e-4a0b-4f53-9d0e-3f1c2b7a9e11"
	w = post(t, h, `{"query":"{ hello }"}`, reqid.Header, incoming)
	require.Equal(t, incoming, captured)
	require.Equal(t, incoming, w.Header().Get(reqid.Header))
}

func TestPlanningErrorIsReported(t *testing.T) {
	graph := fedtest.UsersProducts(t)
	h := New(executorFunc(func(ctx context.Context, root *query.Node) (*result.MergedResponse, error) {
		_, err := planner.Plan(root, graph)
		return nil, err
	}))

	w := post(t, h, `{"query":"{ user(id: \"u1\") { age } }"}`)
	require.Equal(t, http.StatusOK, w.Code)

	want := map[string]any{
		"data": nil,
		"errors": []any{map[string]any{
			"message":    `cannot query field "age" on type "User"`,
			"extensions": map[string]any{"kind": "PLANNING_ERROR"},
		}},
	}
	if diff := cmp.Diff(want, decode(t, w)); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestPartialResponseKeepsPaths(t *testing.T) {
	h := New(executorFunc(func(context.Context, *query.Node) (*result.MergedResponse, error) {
		return &result.MergedResponse{
			Data: map[string]any{"user": nil, "products": []any{}},
			Errors: []result.Error{{
				Message: "users: connection refused",
				Path:    result.Path{"user"},
				Kind:    result.KindTransport,
				Service: "users",
			}},
		}, nil
	}))

	w := post(t, h, `{"query":"{ user(id: \"u1\") { name } products(userId: \"u1\") { name } }"}`)
	want := map[string]any{
		"data": map[string]any{"user": nil, "products": []any{}},
		"errors": []any{map[string]any{
			"message":    "users: connection refused",
			"path":       []any{"user"},
			"extensions": map[string]any{"kind": "TRANSPORT_ERROR", "service": "users"},
		}},
	}
	if diff := cmp.Diff(want, decode(t, w)); diff != "" {
		t.Errorf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestSyntaxErrorHasLocation(t *testing.T) {
	called := false
	h := New(executorFunc(func(ctx context.Context, root *query.Node) (*result.MergedResponse, error) {
		called = true
		return hello(ctx, root)
	}))

	w := post(t, h, `{"query":"{ hello "}`)
	require.False(t, called)
	body := decode(t, w)
	require.Nil(t, body["data"])
	errs := body["errors"].([]any)
	require.Len(t, errs, 1)
	require.Contains(t, errs[0].(map[string]any), "locations")
}

func TestBatch(t *testing.T) {
	h := New(executorFunc(hello))
	w := post(t, h, `[{"query":"{ hello }"},{"query":"{ hello }"}]`)
	var out []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 2)
	require.Equal(t, map[string]any{"hello": "world"}, out[1]["data"])
}
