package llm

import (
	"context"
	"errors"
	"strings"
)

// FallbackProvider tries providers in order, falling back on retryable errors.
type FallbackProvider struct {
	providers []Provider
	logger    Logger
}

// NewFallbackProvider creates a provider chain. The first provider is primary.
func NewFallbackProvider(logger Logger, providers ...Provider) *FallbackProvider {
	if logger == nil {
		logger = nopLogger{}
	}
	return &FallbackProvider{providers: providers, logger: logger}
}

func (f *FallbackProvider) Name() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, "+")
}

// Generate returns the first successful generation.
func (f *FallbackProvider) Generate(ctx context.Context, prompt string) (string, error) {
	if len(f.providers) == 0 {
		return "", errors.New("llm: no providers configured")
	}
	var lastErr error
	for i, p := range f.providers {
		text, err := p.Generate(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsRetryable(err) {
			return "", err
		}
		if i < len(f.providers)-1 {
			f.logger.Warn("llm provider failed, trying next",
				"provider", p.Name(), "next", f.providers[i+1].Name(), "error", err)
		}
	}
	return "", lastErr
}
