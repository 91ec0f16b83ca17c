// Package server exposes a gateway over HTTP as a GraphQL endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	eventbus "github.com/hanpama/fedgraph/internal/eventbus"
	events "github.com/hanpama/fedgraph/internal/events"
	language "github.com/hanpama/fedgraph/internal/language"
	planner "github.com/hanpama/fedgraph/internal/planner"
	query "github.com/hanpama/fedgraph/internal/query"
	reqid "github.com/hanpama/fedgraph/internal/reqid"
	result "github.com/hanpama/fedgraph/internal/result"
	subgraph "github.com/hanpama/fedgraph/internal/subgraph"
	"go.uber.org/zap"
	"google.golang.org/grpc/metadata"
)

// Executor runs one client operation. *gateway.Gateway implements it.
type Executor interface {
	Execute(ctx context.Context, root *query.Node) (*result.MergedResponse, error)
}

// Handler is an http.Handler that serves a GraphQL endpoint.
// It parses requests, runs the gateway, and formats GraphQL responses.
type Handler struct {
	exec Executor
	opt  Options
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORS configuration. If AllowedOrigins is empty, CORS is disabled.
	CORS CORSOptions

	// ForwardHeaders lists client HTTP headers passed on to subgraphs.
	// Header names are case-insensitive. Default is none.
	ForwardHeaders []string

	Logger *zap.Logger
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option {
	return func(o *Options) { o.CORS.AllowedOrigins = origins }
}
func WithForwardHeaders(headers ...string) Option {
	return func(o *Options) { o.ForwardHeaders = headers }
}
func WithLogger(l *zap.Logger) Option { return func(o *Options) { o.Logger = l } }

// CORSOptions holds simple CORS settings.
type CORSOptions struct {
	AllowedOrigins []string
}

// New creates a GraphQL HTTP handler in front of exec.
func New(exec Executor, opts ...Option) *Handler {
	op := Options{Timeout: 30 * time.Second, Logger: zap.NewNop()}
	for _, f := range opts {
		f(&op)
	}
	return &Handler{exec: exec, opt: op}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, rid := reqid.WithID(ctx, r.Header.Get(reqid.Header))
	w.Header().Set(reqid.Header, rid)
	status := http.StatusOK
	start := time.Now()
	eventbus.Publish(ctx, events.HTTPStart{RequestID: rid, Method: r.Method, Path: r.URL.Path})
	defer func() {
		eventbus.Publish(ctx, events.HTTPFinish{
			RequestID: rid,
			Method:    r.Method,
			Path:      r.URL.Path,
			Status:    status,
			Duration:  time.Since(start),
		})
	}()

	if r.Method == http.MethodOptions {
		if len(h.opt.CORS.AllowedOrigins) > 0 {
			setCORSHeaders(w, r, h.opt.CORS)
		}
		status = http.StatusNoContent
		w.WriteHeader(status)
		return
	}

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse(&language.Error{Message: "method not allowed"}), h.opt.Pretty)
		return
	}

	// Forwarded headers travel as outgoing metadata; the subgraph
	// transport turns them back into HTTP headers.
	if len(h.opt.ForwardHeaders) > 0 {
		md := metadata.MD{}
		allowed := make(map[string]struct{}, len(h.opt.ForwardHeaders))
		for _, hdr := range h.opt.ForwardHeaders {
			allowed[strings.ToLower(hdr)] = struct{}{}
		}
		for k, v := range r.Header {
			if _, ok := allowed[strings.ToLower(k)]; ok {
				md[strings.ToLower(k)] = v
			}
		}
		ctx = metadata.NewOutgoingContext(ctx, md)
	}

	req, batch, berr := parseRequest(r, h.opt.MaxBodyBytes)
	if berr != nil {
		status = http.StatusBadRequest
		if berr.Message == errBodyTooLargeMessage {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorResponse(berr), h.opt.Pretty)
		return
	}

	if len(h.opt.CORS.AllowedOrigins) > 0 {
		setCORSHeaders(w, r, h.opt.CORS)
	}

	if batch != nil {
		op := make([]any, len(batch))
		for i := range batch {
			op[i] = h.executeOne(ctx, batch[i])
		}
		writeJSON(w, status, op, h.opt.Pretty)
		return
	}

	writeJSON(w, status, h.executeOne(ctx, req), h.opt.Pretty)
}

func (h *Handler) executeOne(ctx context.Context, req GraphQLRequest) any {
	// Parse query (syntax validation)
	doc, err := language.ParseQuery(req.Query)
	if err != nil {
		var ge *language.Error
		if errors.As(err, &ge) {
			return errorResponse(ge)
		}
		return errorResponse(&language.Error{Message: err.Error()})
	}

	opDef := doc.Operations.ForName(req.OperationName)
	if opDef == nil && len(doc.Operations) == 1 {
		opDef = doc.Operations[0]
	}
	opType := ""
	if opDef != nil {
		opType = string(opDef.Operation)
	}

	start := time.Now()
	eventbus.Publish(ctx, events.GraphQLStart{OperationName: req.OperationName, OperationType: opType})
	resp := h.execute(ctx, doc, req)
	eventbus.Publish(ctx, events.GraphQLFinish{
		OperationName: req.OperationName,
		OperationType: opType,
		ErrorCount:    len(resp.Errors),
		DataNull:      resp.Data == nil,
		Duration:      time.Since(start),
	})
	return resp
}

func (h *Handler) execute(ctx context.Context, doc *language.QueryDocument, req GraphQLRequest) *result.MergedResponse {
	root, err := query.FromDocument(doc, req.OperationName, req.Variables)
	if err != nil {
		return failed(err.Error(), "")
	}
	resp, err := h.exec.Execute(ctx, root)
	if err == nil {
		return resp
	}

	var pe *planner.PlanningError
	var pv *subgraph.PreconditionViolation
	switch {
	case errors.As(err, &pe):
		return failed(pe.Message, result.KindPlanning)
	case errors.As(err, &pv):
		rid, _ := reqid.FromContext(ctx)
		h.opt.Logger.Error("precondition violated", zap.String("request_id", rid), zap.Error(pv))
		return failed("internal error", result.KindInternal)
	default:
		h.opt.Logger.Error("execution failed", zap.Error(err))
		return failed(err.Error(), result.KindInternal)
	}
}

func failed(msg string, kind result.ErrorKind) *result.MergedResponse {
	return &result.MergedResponse{Errors: []result.Error{{Message: msg, Kind: kind}}}
}

// ------------------ Request parsing ------------------

type GraphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

func parseRequest(r *http.Request, maxBody int64) (GraphQLRequest, []GraphQLRequest, *language.Error) {
	if r.Method == http.MethodGet {
		q := r.URL.Query().Get("query")
		if q == "" {
			return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
		}
		vars := map[string]any{}
		if v := r.URL.Query().Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &vars); err != nil {
				return GraphQLRequest{}, nil, &language.Error{Message: "invalid 'variables' JSON"}
			}
		}
		op := r.URL.Query().Get("operationName")
		return GraphQLRequest{Query: q, Variables: vars, OperationName: op}, nil, nil
	}

	ct := r.Header.Get("Content-Type")
	if ct != "" && ct != "application/json" && !strings.HasPrefix(ct, "application/json;") {
		return GraphQLRequest{}, nil, &language.Error{Message: "unsupported Content-Type"}
	}
	reader := io.Reader(r.Body)
	if maxBody > 0 {
		reader = io.LimitReader(r.Body, maxBody+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return GraphQLRequest{}, nil, &language.Error{Message: "failed to read body"}
	}
	defer r.Body.Close()
	if maxBody > 0 && int64(len(body)) > maxBody {
		return GraphQLRequest{}, nil, &language.Error{Message: errBodyTooLargeMessage}
	}

	if len(body) > 0 && body[0] == '[' {
		var arr []GraphQLRequest
		if err := json.Unmarshal(body, &arr); err != nil {
			return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
		}
		if len(arr) == 0 {
			return GraphQLRequest{}, nil, &language.Error{Message: "empty batch"}
		}
		return GraphQLRequest{}, arr, nil
	}
	var req GraphQLRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return GraphQLRequest{}, nil, &language.Error{Message: "invalid JSON"}
	}
	if req.Query == "" {
		return GraphQLRequest{}, nil, &language.Error{Message: "missing 'query'"}
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}
	return req, nil, nil
}

// ------------------ Response formatting ------------------

type specLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type specError struct {
	Message   string         `json:"message"`
	Locations []specLocation `json:"locations,omitempty"`
}

type specResult struct {
	Data   any         `json:"data"`
	Errors []specError `json:"errors,omitempty"`
}

// errorResponse reports a request that never reached execution.
func errorResponse(err *language.Error) specResult {
	se := specError{Message: err.Message}
	for _, l := range err.Locations {
		se.Locations = append(se.Locations, specLocation{Line: l.Line, Column: l.Column})
	}
	return specResult{Errors: []specError{se}}
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}

const errBodyTooLargeMessage = "body too large"

func setCORSHeaders(w http.ResponseWriter, r *http.Request, opts CORSOptions) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	allowed := false
	for _, o := range opts.AllowedOrigins {
		if o == "*" || o == origin {
			allowed = true
			break
		}
	}
	if !allowed {
		return
	}
	if contains(opts.AllowedOrigins, "*") {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Add("Vary", "Origin")
	}
	if r.Method == http.MethodOptions {
		if hdr := r.Header.Get("Access-Control-Request-Headers"); hdr != "" {
			w.Header().Set("Access-Control-Allow-Headers", hdr)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
