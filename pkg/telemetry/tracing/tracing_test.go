package tracing

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/recallkit/recall/config"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type stubExporter struct {
	exportErr error
	exported  atomic.Int32
	shutdown  atomic.Bool
	block     bool
}

func (s *stubExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	s.exported.Add(int32(len(spans)))
	return s.exportErr
}

func (s *stubExporter) Shutdown(ctx context.Context) error {
	s.shutdown.Store(true)
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func withExporter(t *testing.T, exp sdktrace.SpanExporter) {
	t.Helper()
	orig := newOTLPExporter
	t.Cleanup(func() { newOTLPExporter = orig })
	newOTLPExporter = func(context.Context, config.TracingConfig) (sdktrace.SpanExporter, error) {
		return exp, nil
	}
}

func enabledConfig() config.TracingConfig {
	return config.TracingConfig{
		Enabled:    true,
		Exporter:   "otlp",
		Endpoint:   "localhost:4317",
		Timeout:    time.Second,
		Sampler:    "always_on",
		SampleRate: 1,
	}
}

func TestInit_Disabled(t *testing.T) {
	called := false
	orig := newOTLPExporter
	t.Cleanup(func() { newOTLPExporter = orig })
	newOTLPExporter = func(context.Context, config.TracingConfig) (sdktrace.SpanExporter, error) {
		called = true
		return &stubExporter{}, nil
	}

	shutdown, err := Init(context.Background(), config.TracingConfig{}, "recall", "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if called {
		t.Fatal("exporter created while tracing is disabled")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
}

func TestInit_RequiresEndpoint(t *testing.T) {
	cfg := enabledConfig()
	cfg.Endpoint = " "
	_, err := Init(context.Background(), cfg, "recall", "test")
	if err == nil || !strings.Contains(err.Error(), "endpoint") {
		t.Fatalf("expected endpoint error, got %v", err)
	}
}

func TestInit_RequiresTimeout(t *testing.T) {
	cfg := enabledConfig()
	cfg.Timeout = 0
	if _, err := Init(context.Background(), cfg, "recall", "test"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestInit_ExportsAndShutsDown(t *testing.T) {
	exp := &stubExporter{}
	withExporter(t, exp)

	shutdown, err := Init(context.Background(), enabledConfig(), "recall", "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	_, span := Start(context.Background(), "memory.search")
	End(span, errors.New("boom"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	if exp.exported.Load() == 0 {
		t.Error("expected span to be exported")
	}
	if !exp.shutdown.Load() {
		t.Error("expected exporter shutdown")
	}
}

func TestInit_ExportFailureIsReported(t *testing.T) {
	exp := &stubExporter{exportErr: errors.New("collector down")}
	withExporter(t, exp)

	orig := reportExporterFailure
	t.Cleanup(func() { reportExporterFailure = orig })
	var reported atomic.Int32
	reportExporterFailure = func(err error, endpoint string, spanCount int) {
		if err != nil && endpoint != "" && spanCount > 0 {
			reported.Add(1)
		}
	}

	shutdown, err := Init(context.Background(), enabledConfig(), "recall", "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	_, span := Start(context.Background(), "jobs.compress")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown() should not fail on delivery failure: %v", err)
	}
	if reported.Load() == 0 {
		t.Fatal("expected export failure to be reported")
	}
}

func TestShutdown_Bounded(t *testing.T) {
	withExporter(t, &stubExporter{block: true})

	shutdown, err := Init(context.Background(), enabledConfig(), "recall", "test")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := shutdown(ctx); err == nil {
		t.Fatal("expected shutdown to report the deadline")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("shutdown took %v", elapsed)
	}
}

func TestEnd_RecordsError(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	End(span, errors.New("failed"))

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 ended span, got %d", len(ended))
	}
	if ended[0].Status().Description != "failed" {
		t.Errorf("unexpected status %q", ended[0].Status().Description)
	}
}

func TestSelectSampler(t *testing.T) {
	if got := selectSampler(config.TracingConfig{Sampler: "always_on"}).Description(); !strings.Contains(got, "AlwaysOnSampler") {
		t.Errorf("unexpected description %s", got)
	}
	if got := selectSampler(config.TracingConfig{Sampler: "always_off"}).Description(); !strings.Contains(got, "AlwaysOffSampler") {
		t.Errorf("unexpected description %s", got)
	}
	if got := selectSampler(config.TracingConfig{Sampler: "ratio", SampleRate: 0.5}).Description(); !strings.Contains(strings.ToLower(got), "parentbased") {
		t.Errorf("unexpected description %s", got)
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := map[string]string{
		"localhost:4317":                  "localhost:4317",
		"http://localhost:4317/v1/traces": "localhost:4317",
		"":                                "",
	}
	for in, want := range tests {
		if got := normalizeEndpoint(in); got != want {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
}
