// Package lalerrors defines the stable error taxonomy surfaced to clients
// of the LALO core, along with the classification helpers the Router,
// Orchestrator, and Cloud Adapter use to decide whether a failure is
// retryable.
package lalerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind is one of the stable taxonomy values from the error handling design.
type Kind string

const (
	KindInvalidRequest    Kind = "invalid_request"
	KindUnauthenticated   Kind = "unauthenticated"
	KindModelUnavailable  Kind = "model_unavailable"
	KindModelLoadTimeout  Kind = "model_load_timeout"
	KindContextOverflow   Kind = "context_overflow"
	KindGenerationTimeout Kind = "generation_timeout"
	KindToolTimeout       Kind = "tool_timeout"
	KindToolDenied        Kind = "tool_denied"
	KindAuthFailed        Kind = "auth_failed"
	KindQuotaExhausted    Kind = "quota_exhausted"
	KindRateLimited       Kind = "rate_limited"
	KindProviderError     Kind = "provider_error"
	KindCancelled         Kind = "cancelled"
	KindInternal          Kind = "internal"
)

// Retryable reports whether the core itself may retry an error of this
// kind, per the taxonomy table. RateLimited is retryable with backoff;
// ModelUnavailable/ModelLoadTimeout fall back to the next recommended
// model; GenerationTimeout/ToolTimeout follow the step's retry policy;
// ProviderError gets exactly one retry. Everything else is terminal.
func (k Kind) Retryable() bool {
	switch k {
	case KindModelUnavailable, KindModelLoadTimeout, KindGenerationTimeout,
		KindToolTimeout, KindRateLimited, KindProviderError:
		return true
	default:
		return false
	}
}

// Error is the typed error carried through the core. It wraps an
// underlying cause, classifies it into a stable Kind, and never embeds
// secrets, stack traces, or prompt contents in Message.
type Error struct {
	Kind    Kind
	Message string
	Model   string
	Cause   error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("]")
	if e.Model != "" {
		fmt.Fprintf(&b, " model=%s", e.Model)
	}
	if e.Message != "" {
		b.WriteString(" ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind around cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithModel attaches a model id and returns the same error for chaining.
func (e *Error) WithModel(model string) *Error {
	e.Model = model
	return e
}

// As extracts an *Error from err via errors.As, mirroring the teacher's
// FailoverError matching convention.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// KindOf classifies any error into a Kind, falling back to classification
// by message content (and context sentinels) when err is not already a
// typed *Error — the same layered strategy as the teacher's
// classifyErrorReason.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if typed, ok := As(err); ok {
		return typed.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindGenerationTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "cancelled") || strings.Contains(msg, "canceled") || strings.Contains(msg, "aborted"):
		return KindCancelled
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "too many requests"):
		return KindRateLimited
	case strings.Contains(msg, "quota") || strings.Contains(msg, "billing") || strings.Contains(msg, "insufficient") || strings.Contains(msg, "402"):
		return KindQuotaExhausted
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "invalid api key") || strings.Contains(msg, "authentication"):
		return KindAuthFailed
	case strings.Contains(msg, "context window") || strings.Contains(msg, "context_overflow") || strings.Contains(msg, "too long"):
		return KindContextOverflow
	case strings.Contains(msg, "load timeout") || strings.Contains(msg, "model_load_timeout"):
		return KindModelLoadTimeout
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return KindGenerationTimeout
	case strings.Contains(msg, "not found") || strings.Contains(msg, "unavailable") || strings.Contains(msg, "not loadable"):
		return KindModelUnavailable
	case strings.Contains(msg, "denied") || strings.Contains(msg, "policy"):
		return KindToolDenied
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "504") || strings.Contains(msg, "internal server"):
		return KindProviderError
	default:
		return KindInternal
	}
}

// Retryable is a convenience wrapper around KindOf(err).Retryable().
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}

// HTTPStatus maps a Kind to the HTTP status code spec.md §6 assigns it.
func HTTPStatus(k Kind) int {
	switch k {
	case KindInvalidRequest, KindContextOverflow, KindToolDenied:
		return 400
	case KindUnauthenticated, KindAuthFailed:
		return 401
	case KindQuotaExhausted:
		return 402
	case KindRateLimited:
		return 429
	case KindGenerationTimeout, KindToolTimeout, KindModelLoadTimeout:
		return 504
	default:
		return 500
	}
}
