package otel

import (
	"context"
	"errors"
	"testing"

	eventbus "github.com/hanpama/fedgraph/internal/eventbus"
	events "github.com/hanpama/fedgraph/internal/events"
	reqid "github.com/hanpama/fedgraph/internal/reqid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSpansFollowRequestLifecycle(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)
	unsubscribe := Subscribe(bus, tp.Tracer("test"))
	defer unsubscribe()

	ctx, _ := reqid.NewContext(context.Background())
	eventbus.Publish(ctx, events.HTTPStart{Method: "POST", Path: "/graphql"})
	eventbus.Publish(ctx, events.GraphQLStart{OperationType: "query"})
	eventbus.Publish(ctx, events.WaveStart{Wave: 0, Steps: []int{0}})
	eventbus.Publish(ctx, events.SubgraphStart{Service: "users", StepID: 0, URL: "http://users"})
	eventbus.Publish(ctx, events.SubgraphFinish{Service: "users", StepID: 0, Status: 502, Err: errors.New("bad gateway")})
	eventbus.Publish(ctx, events.WaveFinish{Wave: 0, Failed: 1})
	eventbus.Publish(ctx, events.GraphQLFinish{ErrorCount: 1, DataNull: true})
	eventbus.Publish(ctx, events.HTTPFinish{Method: "POST", Path: "/graphql", Status: 200})

	spans := rec.Ended()
	require.Len(t, spans, 4)
	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range spans {
		byName[s.Name()] = s
	}
	httpSpan := byName["http.request"]
	gqlSpan := byName["graphql.operation"]
	waveSpan := byName["gateway.wave"]
	subSpan := byName["subgraph.request"]
	require.NotNil(t, httpSpan)
	require.NotNil(t, gqlSpan)
	require.NotNil(t, waveSpan)
	require.NotNil(t, subSpan)

	require.Equal(t, httpSpan.SpanContext().SpanID(), gqlSpan.Parent().SpanID())
	require.Equal(t, gqlSpan.SpanContext().SpanID(), waveSpan.Parent().SpanID())
	require.Equal(t, waveSpan.SpanContext().SpanID(), subSpan.Parent().SpanID())
	require.Equal(t, codes.Error, subSpan.Status().Code)
	require.Equal(t, codes.Error, waveSpan.Status().Code)
	require.Equal(t, codes.Error, gqlSpan.Status().Code)
	require.Equal(t, codes.Unset, httpSpan.Status().Code)
}

func TestUnsubscribeStopsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	bus := eventbus.New()
	eventbus.Use(bus)
	defer eventbus.Use(nil)
	Subscribe(bus, tp.Tracer("test"))()

	ctx, _ := reqid.NewContext(context.Background())
	eventbus.Publish(ctx, events.WaveStart{Wave: 0})
	eventbus.Publish(ctx, events.WaveFinish{Wave: 0})
	require.Empty(t, rec.Ended())
}

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup("", "fedgraph", eventbus.New())
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
