package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/recallkit/recall/pkg/telemetry/tracing"
)

// RateLimitedProvider throttles calls to the wrapped provider with a token
// bucket. Callers block until a token is available or ctx ends.
type RateLimitedProvider struct {
	next    Provider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps next. A non-positive rps returns next unchanged.
func NewRateLimitedProvider(next Provider, rps float64, burst int) Provider {
	if rps <= 0 {
		return next
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedProvider{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (p *RateLimitedProvider) Name() string { return p.next.Name() }

func (p *RateLimitedProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", &LLMError{Type: ErrorRateLimit, Provider: p.next.Name(), Message: "local rate limit", Err: err}
	}
	return p.next.Generate(ctx, prompt)
}

// Recorder receives per-call metrics.
type Recorder interface {
	RecordLLMCall(provider, outcome string, duration time.Duration)
}

// InstrumentedProvider records metrics and a span for every call.
type InstrumentedProvider struct {
	next     Provider
	recorder Recorder
}

// NewInstrumentedProvider wraps next. A nil recorder only adds spans.
func NewInstrumentedProvider(next Provider, recorder Recorder) *InstrumentedProvider {
	return &InstrumentedProvider{next: next, recorder: recorder}
}

func (p *InstrumentedProvider) Name() string { return p.next.Name() }

func (p *InstrumentedProvider) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracing.Start(ctx, "llm.generate",
		attribute.String("llm.provider", p.next.Name()),
		attribute.Int("llm.prompt_chars", len(prompt)),
	)
	start := time.Now()
	text, err := p.next.Generate(ctx, prompt)
	tracing.End(span, err)
	if p.recorder != nil {
		p.recorder.RecordLLMCall(p.next.Name(), outcome(err), time.Since(start))
	}
	return text, err
}
