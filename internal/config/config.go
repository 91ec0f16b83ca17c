// Package config loads the gateway's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	registry "github.com/hanpama/fedgraph/internal/registry"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Listen string `yaml:"listen" validate:"required"`
	// SchemaDir holds one <name>.graphql file per subgraph. When set,
	// Subgraphs only supplies URLs.
	SchemaDir string `yaml:"schemaDir"`
	// URLTemplate builds URLs for SchemaDir subgraphs without an explicit
	// entry; "{name}" is replaced by the subgraph name.
	URLTemplate string     `yaml:"urlTemplate"`
	Subgraphs   []Subgraph `yaml:"subgraphs" validate:"required_without=SchemaDir,unique=Name,dive"`
	Watch       bool       `yaml:"watch"`

	Timeouts    Timeouts `yaml:"timeouts"`
	Retry       Retry    `yaml:"retry"`
	Concurrency int      `yaml:"concurrency" validate:"gte=0"`
	PlanCache   int      `yaml:"planCache" validate:"gte=0"`
	MaxBody     int64    `yaml:"maxBody" validate:"gte=0"`

	Log     Log     `yaml:"log"`
	Metrics Metrics `yaml:"metrics"`
	Otel    Otel    `yaml:"otel"`
}

type Subgraph struct {
	Name string `yaml:"name" validate:"required"`
	URL  string `yaml:"url" validate:"required,url"`
	// Schema is a path to the SDL file, relative to the config file.
	Schema string `yaml:"schema"`
	SDL    string `yaml:"sdl"`
}

type Timeouts struct {
	Request  time.Duration `yaml:"request" validate:"gte=0"`
	Step     time.Duration `yaml:"step" validate:"gte=0"`
	Subgraph time.Duration `yaml:"subgraph" validate:"gte=0"`
}

type Retry struct {
	Attempts uint          `yaml:"attempts" validate:"gte=1,lte=10"`
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
}

type Log struct {
	Level       string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Development bool   `yaml:"development"`
}

type Metrics struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"omitempty,startswith=/"`
}

type Otel struct {
	Endpoint string `yaml:"endpoint"`
	Service  string `yaml:"service"`
}

// Default returns a configuration with every optional value filled in.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Timeouts: Timeouts{
			Request:  30 * time.Second,
			Step:     10 * time.Second,
			Subgraph: 10 * time.Second,
		},
		Retry:     Retry{Attempts: 2, Interval: 100 * time.Millisecond},
		PlanCache: 1024,
		MaxBody:   1 << 20,
		Log:       Log{Level: "info"},
		Metrics:   Metrics{Enabled: true, Path: "/metrics"},
		Otel:      Otel{Service: "fedgraph"},
	}
}

var validate = validator.New()

// Load reads path over Default. Relative schema paths resolve against the
// directory of path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// Parse decodes and validates a YAML document. Unknown keys are errors.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.SchemaDir == "" {
		for _, s := range c.Subgraphs {
			if s.Schema == "" && s.SDL == "" {
				return fmt.Errorf("subgraph %q needs a schema file or inline sdl", s.Name)
			}
		}
	}
	return nil
}

func (c *Config) resolve(base string) {
	if c.SchemaDir != "" && !filepath.IsAbs(c.SchemaDir) {
		c.SchemaDir = filepath.Join(base, c.SchemaDir)
	}
	for i := range c.Subgraphs {
		if s := c.Subgraphs[i].Schema; s != "" && !filepath.IsAbs(s) {
			c.Subgraphs[i].Schema = filepath.Join(base, s)
		}
	}
}

// Discovery returns the schema source the configuration describes.
func (c *Config) Discovery() (registry.Discovery, error) {
	if c.SchemaDir != "" {
		urls := make(map[string]string, len(c.Subgraphs)+1)
		for _, s := range c.Subgraphs {
			urls[s.Name] = s.URL
		}
		if c.URLTemplate != "" {
			urls["*"] = c.URLTemplate
		}
		return registry.NewFileSystemDiscovery(c.SchemaDir, urls)
	}
	svcs := make([]registry.InMemoryService, len(c.Subgraphs))
	for i, s := range c.Subgraphs {
		svcs[i] = registry.InMemoryService{Name: s.Name, URL: s.URL, Content: s.SDL, File: s.Schema}
	}
	return registry.NewInMemoryDiscovery(svcs), nil
}

// WatchPaths lists the files and directories a schema watcher should
// observe.
func (c *Config) WatchPaths() []string {
	if c.SchemaDir != "" {
		return []string{c.SchemaDir}
	}
	var paths []string
	for _, s := range c.Subgraphs {
		if s.SDL == "" && s.Schema != "" {
			paths = append(paths, s.Schema)
		}
	}
	return paths
}
