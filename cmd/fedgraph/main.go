package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hanpama/fedgraph/internal/config"
	"github.com/hanpama/fedgraph/internal/eventbus"
	"github.com/hanpama/fedgraph/internal/executor"
	"github.com/hanpama/fedgraph/internal/gateway"
	"github.com/hanpama/fedgraph/internal/httptp"
	"github.com/hanpama/fedgraph/internal/logging"
	"github.com/hanpama/fedgraph/internal/metrics"
	"github.com/hanpama/fedgraph/internal/otel"
	"github.com/hanpama/fedgraph/internal/plancache"
	"github.com/hanpama/fedgraph/internal/query"
	"github.com/hanpama/fedgraph/internal/schema"
	"github.com/hanpama/fedgraph/internal/server"
	"github.com/hanpama/fedgraph/internal/subgraph"
	"go.uber.org/zap"
)

const rootUsage = `fedgraph - GraphQL federation gateway

USAGE:
  fedgraph <command> [flags]

COMMANDS:
  serve            Run the HTTP GraphQL gateway in front of the subgraphs
  compose          Compose the subgraphs and print the supergraph SDL
  plan             Print the execution plan of a query as JSON
  help             Show help for any command
`

const sourceUsage = `  -config <file>                      YAML configuration file
  -schemas <dir>                      Directory of <name>.graphql subgraph schemas
  -subgraph <name=url>                Subgraph endpoint. Repeatable
  -url-template <url>                 Endpoint for unlisted subgraphs; {name} is replaced
`

const serveUsage = `serve FLAGS:
` + sourceUsage + `  -server.addr <addr>                 HTTP listen address (default: :8080)
  -server.pretty                      Pretty-print JSON responses
  -server.timeout <duration>          Per-request timeout (default: 30s)
  -server.forward-header <name>       Forward HTTP header to subgraphs. Repeatable
  -step.timeout <duration>            Per-step timeout, retries included (default: 10s)
  -retry.attempts <n>                 Attempts for transport failures (default: 2)
  -retry.interval <duration>          First retry backoff (default: 100ms)
  -concurrency <n>                    Max in-flight steps per wave (default: unlimited)
  -watch                              Recompose when schema files change
  -log.level <level>                  debug, info, warn or error (default: info)
  -log.dev                            Human-readable console logs
  -metrics <bool>                     Serve Prometheus metrics on /metrics (default: true)
  -otel.endpoint <addr>               OTLP collector endpoint
  -otel.service <name>                OpenTelemetry service name (default: fedgraph)
`

const composeUsage = `compose FLAGS:
` + sourceUsage + `  -out <file>                         Write the supergraph SDL to file (default: stdout)
  (Exits non-zero and lists every violation when composition fails)
`

const planUsage = `plan FLAGS:
` + sourceUsage + `  -query <file>                       GraphQL document to plan (default: stdin)
  -operation <name>                   Operation to plan when the document has several
  -variables <json>                   Variables as a JSON object
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("fedgraph", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "serve":
		return cmdServe(cmdArgs)
	case "compose":
		return cmdCompose(cmdArgs)
	case "plan":
		return cmdPlan(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Print(rootUsage)
		return nil
	}
	switch args[0] {
	case "serve":
		fmt.Print(serveUsage)
	case "compose":
		fmt.Print(composeUsage)
	case "plan":
		fmt.Print(planUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type subgraphFlag struct {
	list []config.Subgraph
}

func (s *subgraphFlag) String() string { return "" }

func (s *subgraphFlag) Set(v string) error {
	name, url, ok := strings.Cut(v, "=")
	name, url = strings.TrimSpace(name), strings.TrimSpace(url)
	if !ok || name == "" || url == "" {
		return fmt.Errorf("invalid subgraph %q", v)
	}
	s.list = append(s.list, config.Subgraph{Name: name, URL: url})
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return "" }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// sourceFlags are shared by every command that needs the subgraphs.
type sourceFlags struct {
	configFile  string
	schemas     string
	urlTemplate string
	subgraphs   subgraphFlag
}

func (s *sourceFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.configFile, "config", "", "YAML configuration file")
	fs.StringVar(&s.schemas, "schemas", "", "Directory of subgraph schemas")
	fs.StringVar(&s.urlTemplate, "url-template", "", "Endpoint template for unlisted subgraphs")
	fs.Var(&s.subgraphs, "subgraph", "Subgraph endpoint name=url")
}

// load reads the config file, if any, and lets explicitly set flags
// override it.
func (s *sourceFlags) load() (*config.Config, error) {
	cfg := config.Default()
	if s.configFile != "" {
		loaded, err := config.Load(s.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if s.schemas != "" {
		cfg.SchemaDir = s.schemas
	}
	if s.urlTemplate != "" {
		cfg.URLTemplate = s.urlTemplate
	}
	if len(s.subgraphs.list) > 0 {
		cfg.Subgraphs = s.subgraphs.list
	}
	if s.configFile == "" && cfg.SchemaDir == "" {
		return nil, fmt.Errorf("either -config or -schemas is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type runtime struct {
	gateway   *gateway.Gateway
	transport *httptp.Transport
}

func (r *runtime) Close() error { return r.transport.Close() }

func newRuntime(cfg *config.Config, logger *zap.Logger) (*runtime, error) {
	disc, err := cfg.Discovery()
	if err != nil {
		return nil, err
	}
	endpoints := httptp.NewStaticEndpoints(nil)
	tp := httptp.New(
		httptp.WithEndpoints(endpoints),
		httptp.WithRequestTimeout(cfg.Timeouts.Subgraph),
	)
	exec := executor.New(
		subgraph.New(tp, subgraph.WithLogger(logger)),
		executor.WithStepTimeout(cfg.Timeouts.Step),
		executor.WithRetry(cfg.Retry.Attempts, cfg.Retry.Interval),
		executor.WithConcurrency(cfg.Concurrency),
		executor.WithLogger(logger),
	)
	plans, err := plancache.New(cfg.PlanCache)
	if err != nil {
		_ = tp.Close()
		return nil, err
	}
	gw, err := gateway.New(disc, exec,
		gateway.WithEndpoints(endpoints),
		gateway.WithPlanCache(plans),
		gateway.WithLogger(logger))
	if err != nil {
		_ = tp.Close()
		return nil, err
	}
	return &runtime{gateway: gw, transport: tp}, nil
}

func cmdServe(args []string) error {
	var src sourceFlags
	var (
		addr           string
		pretty         bool
		timeout        time.Duration
		forwardHeaders stringListFlag
		stepTimeout    time.Duration
		retryAttempts  uint
		retryInterval  time.Duration
		concurrency    int
		watch          bool
		logLevel       string
		logDev         bool
		enableMetrics  bool
		otelEndpoint   string
		otelService    string
	)
	defaults := config.Default()

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	src.register(fs)
	fs.StringVar(&addr, "server.addr", defaults.Listen, "HTTP listen address")
	fs.BoolVar(&pretty, "server.pretty", false, "Pretty-print JSON responses")
	fs.DurationVar(&timeout, "server.timeout", defaults.Timeouts.Request, "Per-request timeout")
	fs.Var(&forwardHeaders, "server.forward-header", "Forward HTTP header to subgraphs")
	fs.DurationVar(&stepTimeout, "step.timeout", defaults.Timeouts.Step, "Per-step timeout")
	fs.UintVar(&retryAttempts, "retry.attempts", defaults.Retry.Attempts, "Attempts for transport failures")
	fs.DurationVar(&retryInterval, "retry.interval", defaults.Retry.Interval, "First retry backoff")
	fs.IntVar(&concurrency, "concurrency", 0, "Max in-flight steps per wave")
	fs.BoolVar(&watch, "watch", false, "Recompose when schema files change")
	fs.StringVar(&logLevel, "log.level", defaults.Log.Level, "Log level")
	fs.BoolVar(&logDev, "log.dev", false, "Human-readable console logs")
	fs.BoolVar(&enableMetrics, "metrics", defaults.Metrics.Enabled, "Serve Prometheus metrics")
	fs.StringVar(&otelEndpoint, "otel.endpoint", "", "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", defaults.Otel.Service, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	cfg, err := src.load()
	if err != nil {
		fmt.Fprint(os.Stderr, serveUsage)
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server.addr":
			cfg.Listen = addr
		case "server.timeout":
			cfg.Timeouts.Request = timeout
		case "step.timeout":
			cfg.Timeouts.Step = stepTimeout
		case "retry.attempts":
			cfg.Retry.Attempts = retryAttempts
		case "retry.interval":
			cfg.Retry.Interval = retryInterval
		case "concurrency":
			cfg.Concurrency = concurrency
		case "watch":
			cfg.Watch = watch
		case "log.level":
			cfg.Log.Level = logLevel
		case "log.dev":
			cfg.Log.Development = logDev
		case "metrics":
			cfg.Metrics.Enabled = enableMetrics
		case "otel.endpoint":
			cfg.Otel.Endpoint = otelEndpoint
		case "otel.service":
			cfg.Otel.Service = otelService
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	bus := eventbus.New()
	eventbus.Use(bus)
	shutdown, err := otel.Setup(cfg.Otel.Endpoint, cfg.Otel.Service, bus)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	rt, err := newRuntime(cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rt.gateway.Reload(ctx); err != nil {
		return fmt.Errorf("initial composition: %w", err)
	}
	if cfg.Watch {
		go func() {
			if err := rt.gateway.Watch(ctx, cfg.WatchPaths()); err != nil {
				logger.Error("schema watcher stopped", zap.Error(err))
			}
		}()
	}

	sopts := []server.Option{
		server.WithTimeout(cfg.Timeouts.Request),
		server.WithMaxBodyBytes(cfg.MaxBody),
		server.WithLogger(logger),
	}
	if pretty {
		sopts = append(sopts, server.WithPretty())
	}
	if len(forwardHeaders) > 0 {
		sopts = append(sopts, server.WithForwardHeaders(forwardHeaders...))
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", server.New(rt.gateway, sopts...))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if rt.gateway.Supergraph() == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if cfg.Metrics.Enabled {
		m := metrics.New()
		defer m.Subscribe(bus)()
		mux.Handle(cfg.Metrics.Path, m.Handler())
	}

	srv := &http.Server{Addr: cfg.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logger.Info("GraphQL gateway listening", zap.String("addr", cfg.Listen))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func cmdCompose(args []string) error {
	var src sourceFlags
	outFile := ""
	fs := flag.NewFlagSet("compose", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	src.register(fs)
	fs.StringVar(&outFile, "out", outFile, "Write the supergraph SDL to file")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, composeUsage)
		return err
	}
	cfg, err := src.load()
	if err != nil {
		fmt.Fprint(os.Stderr, composeUsage)
		return err
	}
	rt, err := newRuntime(cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer rt.Close()
	if err := rt.gateway.Reload(context.Background()); err != nil {
		return err
	}

	sdl := schema.Render(rt.gateway.Supergraph().Schema)
	if outFile == "" {
		fmt.Print(sdl)
		return nil
	}
	return os.WriteFile(outFile, []byte(sdl), 0644)
}

func cmdPlan(args []string) error {
	var src sourceFlags
	queryFile, operation, variables := "", "", ""
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	src.register(fs)
	fs.StringVar(&queryFile, "query", "", "GraphQL document to plan")
	fs.StringVar(&operation, "operation", "", "Operation name")
	fs.StringVar(&variables, "variables", "", "Variables as a JSON object")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, planUsage)
		return err
	}
	cfg, err := src.load()
	if err != nil {
		fmt.Fprint(os.Stderr, planUsage)
		return err
	}

	vars := map[string]any{}
	if variables != "" {
		if err := json.Unmarshal([]byte(variables), &vars); err != nil {
			return fmt.Errorf("invalid -variables: %w", err)
		}
	}
	var doc []byte
	if queryFile == "" {
		doc, err = io.ReadAll(os.Stdin)
	} else {
		doc, err = os.ReadFile(queryFile)
	}
	if err != nil {
		return err
	}

	rt, err := newRuntime(cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer rt.Close()
	ctx := context.Background()
	if err := rt.gateway.Reload(ctx); err != nil {
		return err
	}
	root, err := query.Parse(string(doc), operation, vars)
	if err != nil {
		return err
	}
	plan, err := rt.gateway.Plan(ctx, root)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
