package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hanpama/fedgraph/internal/fedtest"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T, fn func() error) (stdout, stderr string, err error) {
	t.Helper()
	oldOut, oldErr := os.Stdout, os.Stderr
	defer func() {
		os.Stdout, os.Stderr = oldOut, oldErr
	}()

	outR, outW, _ := os.Pipe()
	errR, errW, _ := os.Pipe()
	os.Stdout, os.Stderr = outW, errW

	doneOut := make(chan struct{})
	var bufOut bytes.Buffer
	go func() { io.Copy(&bufOut, outR); close(doneOut) }()

	doneErr := make(chan struct{})
	var bufErr bytes.Buffer
	go func() { io.Copy(&bufErr, errR); close(doneErr) }()

	err = fn()
	outW.Close()
	errW.Close()
	<-doneOut
	<-doneErr
	stdout, stderr = bufOut.String(), bufErr.String()
	return
}

func schemaDir(t *testing.T, sdls map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, sdl := range sdls {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".graphql"), []byte(sdl), 0o644))
	}
	return dir
}

func TestHelp(t *testing.T) {
	out, _, err := captureOutput(t, func() error {
		return run([]string{"help", "serve"})
	})
	require.NoError(t, err)
	require.Contains(t, out, "serve FLAGS")
	require.Contains(t, out, "-server.forward-header")
}

func TestUnknownCommand(t *testing.T) {
	_, stderr, err := captureOutput(t, func() error {
		return run([]string{"frobnicate"})
	})
	require.EqualError(t, err, `unknown command "frobnicate"`)
	require.Contains(t, stderr, "COMMANDS:")
}

func TestComposeRequiresSource(t *testing.T) {
	_, _, err := captureOutput(t, func() error {
		return run([]string{"compose"})
	})
	require.EqualError(t, err, "either -config or -schemas is required")
}

func TestCompose(t *testing.T) {
	dir := schemaDir(t, map[string]string{
		"users":    fedtest.UsersSDL,
		"products": fedtest.ProductsSDL,
	})
	out, _, err := captureOutput(t, func() error {
		return run([]string{"compose", "-schemas", dir, "-url-template", "http://{name}.internal/graphql"})
	})
	require.NoError(t, err)
	require.Contains(t, out, "type User")
	require.Contains(t, out, "type Product")
	require.Contains(t, out, "products")
}

func TestComposeWritesFile(t *testing.T) {
	dir := schemaDir(t, map[string]string{"users": fedtest.UsersSDL})
	outFile := filepath.Join(t.TempDir(), "supergraph.graphql")
	stdout, _, err := captureOutput(t, func() error {
		return run([]string{"compose", "-schemas", dir, "-url-template", "http://{name}", "-out", outFile})
	})
	require.NoError(t, err)
	require.Empty(t, stdout)
	raw, err := os.ReadFile(outFile)
	require.NoError(t, err)
	require.Contains(t, string(raw), "type Query")
}

func TestComposeViolations(t *testing.T) {
	dir := schemaDir(t, map[string]string{
		"users": fedtest.UsersSDL,
		"accounts": `
type User @key(fields: "id") {
  id: ID!
  name: String
}
`,
	})
	_, _, err := captureOutput(t, func() error {
		return run([]string{"compose", "-schemas", dir, "-url-template", "http://{name}"})
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "composition failed")
}

func TestPlan(t *testing.T) {
	dir := schemaDir(t, map[string]string{
		"users":    fedtest.UsersSDL,
		"products": fedtest.ProductsSDL,
	})
	queryFile := filepath.Join(t.TempDir(), "query.graphql")
	require.NoError(t, os.WriteFile(queryFile, []byte(`query ($id: ID!) { user(id: $id) { name products { name } } }`), 0o644))

	out, _, err := captureOutput(t, func() error {
		return run([]string{"plan",
			"-schemas", dir,
			"-subgraph", "users=http://users.internal/graphql",
			"-subgraph", "products=http://products.internal/graphql",
			"-query", queryFile,
			"-variables", `{"id":"1"}`,
		})
	})
	require.NoError(t, err)

	var plan struct {
		Steps []struct {
			Service string `json:"service"`
			Kind    string `json:"kind"`
		} `json:"steps"`
		Waves [][]int `json:"waves"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	require.Len(t, plan.Steps, 2)
	require.Equal(t, "users", plan.Steps[0].Service)
	require.Equal(t, "root", plan.Steps[0].Kind)
	require.Equal(t, "products", plan.Steps[1].Service)
	require.Equal(t, "entity", plan.Steps[1].Kind)
	require.Len(t, plan.Waves, 2)
}

func TestPlanRejectsBadVariables(t *testing.T) {
	dir := schemaDir(t, map[string]string{"users": fedtest.UsersSDL})
	_, _, err := captureOutput(t, func() error {
		return run([]string{"plan", "-schemas", dir, "-url-template", "http://{name}", "-variables", "{"})
	})
	require.ErrorContains(t, err, "invalid -variables")
}
