package httptp

import (
	"net/http"
	"time"
)

// Options configures the HTTP transport behavior.
//
// Defaults:
// - RequestTimeout: 10s (used only if the context has no deadline)
// - MaxResponseBytes: 32 MiB
// - Client: a dedicated http.Client
//
// Endpoints must be provided (use StaticEndpoints or a custom provider).
type Options struct {
	Endpoints EndpointProvider

	Client           *http.Client
	RequestTimeout   time.Duration
	MaxResponseBytes int64
}

type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		RequestTimeout:   10 * time.Second,
		MaxResponseBytes: 32 << 20,
	}
}

func WithEndpoints(p EndpointProvider) Option   { return func(o *Options) { o.Endpoints = p } }
func WithHTTPClient(c *http.Client) Option      { return func(o *Options) { o.Client = c } }
func WithRequestTimeout(d time.Duration) Option { return func(o *Options) { o.RequestTimeout = d } }
func WithMaxResponseBytes(n int64) Option       { return func(o *Options) { o.MaxResponseBytes = n } }
