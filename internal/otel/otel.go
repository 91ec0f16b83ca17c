// Package otel turns gateway lifecycle events into OpenTelemetry spans:
// http.request > graphql.operation > gateway.wave > subgraph.request.
package otel

import (
	"context"
	"strconv"
	"sync"

	eventbus "github.com/hanpama/fedgraph/internal/eventbus"
	events "github.com/hanpama/fedgraph/internal/events"
	reqid "github.com/hanpama/fedgraph/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup configures OTLP trace export and attaches span handlers to bus.
// If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string, bus *eventbus.Bus) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	unsubscribe := Subscribe(bus, tp.Tracer("fedgraph"))
	return func(ctx context.Context) error {
		unsubscribe()
		return tp.Shutdown(ctx)
	}, nil
}

// Subscribe attaches span-producing handlers to bus and returns a func
// detaching them.
func Subscribe(bus *eventbus.Bus, tracer trace.Tracer) func() {
	s := &subscriber{tracer: tracer}
	unsubs := []func(){
		eventbus.SubscribeTo(bus, s.httpStart),
		eventbus.SubscribeTo(bus, s.httpFinish),
		eventbus.SubscribeTo(bus, s.graphqlStart),
		eventbus.SubscribeTo(bus, s.graphqlFinish),
		eventbus.SubscribeTo(bus, s.waveStart),
		eventbus.SubscribeTo(bus, s.waveFinish),
		eventbus.SubscribeTo(bus, s.subgraphStart),
		eventbus.SubscribeTo(bus, s.subgraphFinish),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

type subscriber struct {
	tracer   trace.Tracer
	http     sync.Map // rid -> trace.Span
	graphql  sync.Map // rid -> trace.Span
	waves    sync.Map // rid -> trace.Span, the wave in flight
	subgraph sync.Map // rid/step -> trace.Span
}

func stepKey(rid string, step int) string { return rid + "/" + strconv.Itoa(step) }

// parent returns ctx carrying the innermost open span of the request.
func parent(ctx context.Context, rid string, maps ...*sync.Map) context.Context {
	for _, m := range maps {
		if v, ok := m.Load(rid); ok {
			return trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	return ctx
}

func end(m *sync.Map, key string, fn func(trace.Span)) {
	v, ok := m.LoadAndDelete(key)
	if !ok {
		return
	}
	span := v.(trace.Span)
	fn(span)
	span.End()
}

func (s *subscriber) httpStart(ctx context.Context, e events.HTTPStart) {
	rid, _ := reqid.FromContext(ctx)
	_, span := s.tracer.Start(ctx, "http.request")
	span.SetAttributes(
		semconv.HTTPMethodKey.String(e.Method),
		semconv.HTTPTargetKey.String(e.Path),
		attribute.String("http.request_id", e.RequestID),
	)
	s.http.Store(rid, span)
}

func (s *subscriber) httpFinish(ctx context.Context, e events.HTTPFinish) {
	rid, _ := reqid.FromContext(ctx)
	end(&s.http, rid, func(span trace.Span) {
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
	})
}

func (s *subscriber) graphqlStart(ctx context.Context, e events.GraphQLStart) {
	rid, _ := reqid.FromContext(ctx)
	_, span := s.tracer.Start(parent(ctx, rid, &s.http), "graphql.operation")
	span.SetAttributes(
		attribute.String("graphql.operation.name", e.OperationName),
		attribute.String("graphql.operation.type", e.OperationType),
	)
	s.graphql.Store(rid, span)
}

func (s *subscriber) graphqlFinish(ctx context.Context, e events.GraphQLFinish) {
	rid, _ := reqid.FromContext(ctx)
	end(&s.graphql, rid, func(span trace.Span) {
		span.SetAttributes(
			attribute.Int("graphql.error_count", e.ErrorCount),
			attribute.Bool("graphql.data_null", e.DataNull),
		)
		if e.DataNull {
			span.SetStatus(codes.Error, "data is null")
		}
	})
}

func (s *subscriber) waveStart(ctx context.Context, e events.WaveStart) {
	rid, _ := reqid.FromContext(ctx)
	_, span := s.tracer.Start(parent(ctx, rid, &s.graphql, &s.http), "gateway.wave")
	span.SetAttributes(
		attribute.Int("gateway.wave", e.Wave),
		attribute.IntSlice("gateway.steps", e.Steps),
	)
	s.waves.Store(rid, span)
}

func (s *subscriber) waveFinish(ctx context.Context, e events.WaveFinish) {
	rid, _ := reqid.FromContext(ctx)
	end(&s.waves, rid, func(span trace.Span) {
		span.SetAttributes(attribute.Int("gateway.failed_steps", e.Failed))
		if e.Failed > 0 {
			span.SetStatus(codes.Error, strconv.Itoa(e.Failed)+" step(s) failed")
		}
	})
}

func (s *subscriber) subgraphStart(ctx context.Context, e events.SubgraphStart) {
	rid, _ := reqid.FromContext(ctx)
	_, span := s.tracer.Start(parent(ctx, rid, &s.waves, &s.graphql, &s.http), "subgraph.request")
	span.SetAttributes(
		attribute.String("subgraph.name", e.Service),
		attribute.Int("gateway.step", e.StepID),
		semconv.HTTPURLKey.String(e.URL),
	)
	s.subgraph.Store(stepKey(rid, e.StepID), span)
}

func (s *subscriber) subgraphFinish(ctx context.Context, e events.SubgraphFinish) {
	rid, _ := reqid.FromContext(ctx)
	end(&s.subgraph, stepKey(rid, e.StepID), func(span trace.Span) {
		if e.Status != 0 {
			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
		}
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
	})
}
