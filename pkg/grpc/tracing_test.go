package grpc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
)

// installRecorder swaps the global tracer provider for one that records
// ended spans, restoring the previous globals on cleanup.
func installRecorder(t *testing.T) (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	t.Helper()
	prevProvider := otel.GetTracerProvider()
	prevPropagator := otel.GetTextMapPropagator()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})
	return recorder, tp
}

func startTracedServer(t *testing.T, tracing bool, store Pinger) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.EnableTracing = tracing
	cfg.ProbeInterval = 20 * time.Millisecond

	var opts []Option
	if store != nil {
		opts = append(opts, WithStore(store))
	}
	srv, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { stopServer(t, srv) })
	return srv
}

func spanNamed(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func attrValue(span sdktrace.ReadOnlySpan, key attribute.Key) string {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value.AsString()
		}
	}
	return ""
}

func TestTracing_HealthCheckJoinsCallerTrace(t *testing.T) {
	recorder, tp := installRecorder(t)
	srv := startTracedServer(t, true, &switchPinger{})
	client := dialHealth(t, srv.Address())

	parentCtx, parent := tp.Tracer("caller").Start(context.Background(), "caller")
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(parentCtx, carrier)
	ctx := metadata.NewOutgoingContext(parentCtx, metadata.New(carrier))
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.GetStatus())
	parent.End()

	var span sdktrace.ReadOnlySpan
	require.Eventually(t, func() bool {
		span = spanNamed(recorder.Ended(), "/grpc.health.v1.Health/Check")
		return span != nil
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, parent.SpanContext().TraceID(), span.SpanContext().TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), span.Parent().SpanID())
	assert.Equal(t, "grpc", attrValue(span, "rpc.system"))
	assert.Equal(t, "grpc.health.v1.Health", attrValue(span, "rpc.service"))
	assert.Equal(t, "Check", attrValue(span, "rpc.method"))
	assert.Equal(t, otelcodes.Ok, span.Status().Code)
}

func TestTracing_StoreDownIsNotAnRPCError(t *testing.T) {
	recorder, _ := installRecorder(t)
	store := &switchPinger{}
	srv := startTracedServer(t, true, store)
	client := dialHealth(t, srv.Address())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	store.down.Store(true)
	require.Eventually(t, func() bool {
		resp, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
		return err == nil && resp.GetStatus() == grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool { return len(recorder.Ended()) > 0 }, 2*time.Second, 10*time.Millisecond)
	for _, span := range recorder.Ended() {
		assert.Equal(t, otelcodes.Ok, span.Status().Code, "span %s", span.Name())
	}
}

func TestTracing_UnknownServiceRecordsError(t *testing.T) {
	recorder, _ := installRecorder(t)
	srv := startTracedServer(t, true, nil)
	client := dialHealth(t, srv.Address())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: "recall.v1.Unknown"})
	require.Error(t, err)

	var span sdktrace.ReadOnlySpan
	require.Eventually(t, func() bool {
		span = spanNamed(recorder.Ended(), "/grpc.health.v1.Health/Check")
		return span != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, otelcodes.Error, span.Status().Code)
	assert.Equal(t, "NotFound", span.Status().Description)
	assert.NotEmpty(t, span.Events(), "error should be recorded as a span event")
}

func TestTracing_DisabledLeavesNoSpans(t *testing.T) {
	recorder, _ := installRecorder(t)
	srv := startTracedServer(t, false, &switchPinger{})
	client := dialHealth(t, srv.Address())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, recorder.Ended())
}
