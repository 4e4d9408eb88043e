package llm

import (
	"fmt"

	"github.com/recallkit/recall/config"
)

// New builds the configured provider chain: primary, then the optional
// fallback, each instrumented, behind one shared rate limiter.
func New(cfg config.LLMConfig, logger Logger, recorder Recorder) (Provider, error) {
	primary, err := newProvider(cfg.Provider, cfg)
	if err != nil {
		return nil, err
	}
	providers := []Provider{NewInstrumentedProvider(primary, recorder)}

	if cfg.Fallback != "" && cfg.Fallback != cfg.Provider {
		fb, err := newProvider(cfg.Fallback, cfg)
		if err != nil {
			return nil, fmt.Errorf("fallback: %w", err)
		}
		providers = append(providers, NewInstrumentedProvider(fb, recorder))
	}

	var chain Provider = providers[0]
	if len(providers) > 1 {
		chain = NewFallbackProvider(logger, providers...)
	}
	return NewRateLimitedProvider(chain, cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst), nil
}

func newProvider(name string, cfg config.LLMConfig) (Provider, error) {
	switch name {
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("llm: openai api key not configured")
		}
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:     cfg.OpenAI.APIKey,
			BaseURL:    cfg.OpenAI.BaseURL,
			Model:      cfg.OpenAI.Model,
			MaxTokens:  cfg.MaxTokens,
			Timeout:    cfg.Timeout,
			MaxRetries: -1,
		}), nil
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return nil, fmt.Errorf("llm: anthropic api key not configured")
		}
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:     cfg.Anthropic.APIKey,
			BaseURL:    cfg.Anthropic.BaseURL,
			Model:      cfg.Anthropic.Model,
			MaxTokens:  cfg.MaxTokens,
			Timeout:    cfg.Timeout,
			MaxRetries: -1,
		}), nil
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", name)
	}
}
