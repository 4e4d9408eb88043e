package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	// RequestIDKey is the metadata key for request ID
	RequestIDKey = "x-request-id"

	grpcTracerName = "recall.grpc"
)

type requestIDKey struct{}

// RequestIDFromContext returns the request id set by the server interceptor.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func incomingRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDKey); len(ids) > 0 && ids[0] != "" && len(ids[0]) <= 128 {
			return ids[0]
		}
	}
	return uuid.NewString()
}

// unaryInterceptor assigns request ids, logs calls and optionally traces them.
func unaryInterceptor(log Logger, tracing bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		requestID := incomingRequestID(ctx)
		ctx = context.WithValue(ctx, requestIDKey{}, requestID)

		var span trace.Span
		if tracing {
			ctx, span = startServerSpan(ctx, info.FullMethod)
			defer span.End()
		}

		resp, err := handler(ctx, req)
		if span != nil {
			recordSpanResult(span, err)
		}
		logCall(log, info.FullMethod, requestID, err, time.Since(start))
		return resp, err
	}
}

// streamInterceptor is the streaming counterpart of unaryInterceptor; the
// health Watch RPC is the only stream served.
func streamInterceptor(log Logger, tracing bool) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		ctx := ss.Context()
		requestID := incomingRequestID(ctx)
		ctx = context.WithValue(ctx, requestIDKey{}, requestID)

		var span trace.Span
		if tracing {
			ctx, span = startServerSpan(ctx, info.FullMethod)
			defer span.End()
		}

		err := handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx})
		if span != nil {
			recordSpanResult(span, err)
		}
		logCall(log, info.FullMethod, requestID, err, time.Since(start))
		return err
	}
}

func logCall(log Logger, method, requestID string, err error, d time.Duration) {
	code := status.Code(err)
	args := []any{"method", method, "code", code.String(), "request_id", requestID, "duration_ms", d.Milliseconds()}
	switch code {
	case codes.OK, codes.Canceled, codes.NotFound:
		log.Debug("gRPC call", args...)
	default:
		log.Warn("gRPC call failed", append(args, "error", err)...)
	}
}

func startServerSpan(ctx context.Context, fullMethod string) (context.Context, trace.Span) {
	md, _ := metadata.FromIncomingContext(ctx)
	ctx = otel.GetTextMapPropagator().Extract(ctx, metadataCarrier(md))
	ctx, span := otel.Tracer(grpcTracerName).Start(ctx, fullMethod, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(methodAttributes(fullMethod)...)
	return ctx, span
}

func recordSpanResult(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(otelcodes.Ok, "ok")
		return
	}
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, status.Code(err).String())
}

func methodAttributes(fullMethod string) []attribute.KeyValue {
	service, method := splitMethod(fullMethod)
	return []attribute.KeyValue{
		attribute.String("rpc.system", "grpc"),
		attribute.String("rpc.service", service),
		attribute.String("rpc.method", method),
	}
}

func splitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.SplitN(fullMethod, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return fullMethod, "unknown"
}

type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}

type metadataCarrier metadata.MD

func (c metadataCarrier) Get(key string) string {
	values := metadata.MD(c).Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (c metadataCarrier) Set(key string, value string) {
	metadata.MD(c).Set(key, value)
}

func (c metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(metadata.MD(c)))
	for k := range metadata.MD(c) {
		keys = append(keys, k)
	}
	return keys
}

var _ propagation.TextMapCarrier = metadataCarrier{}
