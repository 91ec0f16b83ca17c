// Package metrics exposes gateway events as Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	eventbus "github.com/hanpama/fedgraph/internal/eventbus"
	events "github.com/hanpama/fedgraph/internal/events"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fedgraph"

type Metrics struct {
	registry *prometheus.Registry

	subgraphRequests *prometheus.CounterVec
	subgraphDuration *prometheus.HistogramVec
	stepFailures     *prometheus.CounterVec
	stepRetries      *prometheus.CounterVec
	planCache        *prometheus.CounterVec
	compositions     *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	operations       *prometheus.HistogramVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		subgraphRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subgraph_requests_total",
			Help:      "Requests sent to subgraphs by service and outcome.",
		}, []string{"service", "outcome"}),
		subgraphDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "subgraph_request_duration_seconds",
			Help:      "Latency of subgraph requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"}),
		stepFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      "Failed or unreachable plan steps by service and error kind.",
		}, []string{"service", "kind"}),
		stepRetries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_retries_total",
			Help:      "Plan step retries by service.",
		}, []string{"service"}),
		planCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "plan_cache_lookups_total",
			Help:      "Plan cache lookups by result.",
		}, []string{"result"}),
		compositions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compositions_total",
			Help:      "Supergraph composition attempts by outcome.",
		}, []string{"outcome"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by status code.",
		}, []string{"code"}),
		operations: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "GraphQL operation latency by operation type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Subscribe feeds the collectors from bus and returns a func detaching
// them.
func (m *Metrics) Subscribe(bus *eventbus.Bus) func() {
	unsubs := []func(){
		eventbus.SubscribeTo(bus, func(_ context.Context, e events.SubgraphFinish) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			m.subgraphRequests.WithLabelValues(e.Service, outcome).Inc()
			m.subgraphDuration.WithLabelValues(e.Service).Observe(e.Duration.Seconds())
		}),
		eventbus.SubscribeTo(bus, func(_ context.Context, e events.StepFailure) {
			m.stepFailures.WithLabelValues(e.Service, e.Kind).Inc()
		}),
		eventbus.SubscribeTo(bus, func(_ context.Context, e events.StepRetry) {
			m.stepRetries.WithLabelValues(e.Service).Inc()
		}),
		eventbus.SubscribeTo(bus, func(_ context.Context, e events.PlanCacheLookup) {
			label := "miss"
			if e.Hit {
				label = "hit"
			}
			m.planCache.WithLabelValues(label).Inc()
		}),
		eventbus.SubscribeTo(bus, func(_ context.Context, e events.CompositionFinish) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			m.compositions.WithLabelValues(outcome).Inc()
		}),
		eventbus.SubscribeTo(bus, func(_ context.Context, e events.HTTPFinish) {
			m.httpRequests.WithLabelValues(strconv.Itoa(e.Status)).Inc()
		}),
		eventbus.SubscribeTo(bus, func(_ context.Context, e events.GraphQLFinish) {
			m.operations.WithLabelValues(e.OperationType).Observe(e.Duration.Seconds())
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
