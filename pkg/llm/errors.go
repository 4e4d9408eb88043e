package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// ErrorType classifies generation errors for fallback decisions.
type ErrorType int

const (
	ErrorUnknown      ErrorType = iota
	ErrorRateLimit              // 429
	ErrorAuth                   // 401/403
	ErrorInvalidInput           // 400
	ErrorServerError            // 500+
	ErrorTimeout                // context deadline exceeded
	ErrorNetwork                // connection refused, DNS, etc.
)

func (t ErrorType) String() string {
	switch t {
	case ErrorRateLimit:
		return "rate_limit"
	case ErrorAuth:
		return "auth"
	case ErrorInvalidInput:
		return "invalid_input"
	case ErrorServerError:
		return "server_error"
	case ErrorTimeout:
		return "timeout"
	case ErrorNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// LLMError is a classified provider failure.
type LLMError struct {
	Type     ErrorType
	Provider string
	Message  string
	Err      error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm %s: %s: %s", e.Provider, e.Type, e.Message)
}

func (e *LLMError) Unwrap() error { return e.Err }

// ErrEmptyResponse is returned when a provider answers without text.
var ErrEmptyResponse = errors.New("llm: empty response")

// IsRetryable reports whether another provider might succeed where this
// error occurred. Unclassified errors are retryable.
func IsRetryable(err error) bool {
	var llmErr *LLMError
	if !errors.As(err, &llmErr) {
		return true
	}
	switch llmErr.Type {
	case ErrorAuth, ErrorInvalidInput:
		return false
	default:
		return true
	}
}

// outcome labels an error for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr.Type.String()
	}
	return ErrorUnknown.String()
}

// classify maps a provider error to an LLMError, preferring the HTTP status
// and falling back to the message text.
func classify(provider string, err error) *LLMError {
	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr
	}
	msg := err.Error()
	out := &LLMError{Provider: provider, Message: msg, Err: err}

	if t, ok := statusType(err); ok {
		out.Type = t
		return out
	}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Type = ErrorTimeout
		return out
	case errors.As(err, &netErr) && netErr.Timeout():
		out.Type = ErrorTimeout
		return out
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "401") || strings.Contains(lower, "403") ||
		strings.Contains(lower, "unauthorized") || strings.Contains(lower, "authentication"):
		out.Type = ErrorAuth
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit"):
		out.Type = ErrorRateLimit
	case strings.Contains(lower, "400") || strings.Contains(lower, "invalid"):
		out.Type = ErrorInvalidInput
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") ||
		strings.Contains(lower, "503") || strings.Contains(lower, "overloaded"):
		out.Type = ErrorServerError
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		out.Type = ErrorTimeout
	case strings.Contains(lower, "connection") || strings.Contains(lower, "dns") || strings.Contains(lower, "refused"):
		out.Type = ErrorNetwork
	default:
		out.Type = ErrorUnknown
	}
	return out
}

func statusType(err error) (ErrorType, bool) {
	code := 0
	var oaErr *openai.Error
	var anErr *anthropic.Error
	switch {
	case errors.As(err, &oaErr):
		code = oaErr.StatusCode
	case errors.As(err, &anErr):
		code = anErr.StatusCode
	default:
		return ErrorUnknown, false
	}
	switch {
	case code == 401 || code == 403:
		return ErrorAuth, true
	case code == 429:
		return ErrorRateLimit, true
	case code == 408:
		return ErrorTimeout, true
	case code >= 500:
		return ErrorServerError, true
	case code >= 400:
		return ErrorInvalidInput, true
	}
	return ErrorUnknown, false
}
