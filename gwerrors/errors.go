// Package gwerrors defines the gateway's error taxonomy. Every failure that
// crosses a component boundary (router, executor, provider adapter,
// admission gate, interceptor chain) is classified into one of the Kinds
// below so callers can make retry and HTTP-status decisions without
// inspecting provider-specific error types.
package gwerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure into a small, closed set of categories.
// New provider errors must be mapped onto one of these kinds; the taxonomy
// intentionally does not grow per-provider.
type Kind string

const (
	KindBadRequest          Kind = "bad_request"
	KindUnauthenticated     Kind = "unauthenticated"
	KindForbidden           Kind = "forbidden"
	KindModelNotFound       Kind = "model_not_found"
	KindRateLimitExceeded   Kind = "rate_limit_exceeded"
	KindContextLength       Kind = "context_length_exceeded"
	KindProviderAuth        Kind = "provider_auth"
	KindProviderInvalid     Kind = "provider_invalid_request"
	KindProviderServer      Kind = "provider_server"
	KindTimeout             Kind = "timeout"
	KindNetwork             Kind = "network"
	KindGuardrailRejected   Kind = "guardrail_rejected"
	KindCostLimitExceeded   Kind = "cost_limit_exceeded"
	KindToolLoopExhausted   Kind = "tool_loop_exhausted"
	KindExhaustedRoutes     Kind = "exhausted_routes"
	KindInterceptorError    Kind = "interceptor_error"
	KindAuthMissing         Kind = "auth_missing"
	KindToolArgumentParse   Kind = "tool_argument_parse_error"
)

// httpStatus maps each Kind to the HTTP status code documented in spec §7.
var httpStatus = map[Kind]int{
	KindBadRequest:        400,
	KindUnauthenticated:   401,
	KindForbidden:         403,
	KindModelNotFound:     404,
	KindRateLimitExceeded: 429,
	KindContextLength:     400,
	KindProviderAuth:      401,
	KindProviderInvalid:   400,
	KindProviderServer:    502,
	KindTimeout:           504,
	KindNetwork:           502,
	KindGuardrailRejected: 446,
	KindCostLimitExceeded: 402,
	KindToolLoopExhausted: 409,
	KindExhaustedRoutes:   502,
	KindInterceptorError:  500,
	KindAuthMissing:       401,
	KindToolArgumentParse: 400,
}

// retryable records whether the routed executor may retry a failure of this
// kind against a different target, per spec §7.
var retryable = map[Kind]bool{
	KindRateLimitExceeded: true,
	KindProviderServer:    true,
	KindTimeout:           true,
	KindNetwork:           true,
}

// Error is the structured error type returned across gateway component
// boundaries. It carries enough information to build the client-facing
// {error, message, code} JSON body described in spec §7 without the caller
// needing to know which component produced it.
type Error struct {
	Kind       Kind
	Message    string
	Code       string
	RetryAfter int // seconds; only meaningful for KindRateLimitExceeded
	cause      error
}

// New constructs an Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause, preserving the
// original error chain for %w-style inspection.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the HTTP status code this error's Kind maps to.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return 500
}

// Retryable reports whether the routed executor may attempt a different
// target after this error.
func (e *Error) Retryable() bool {
	return retryable[e.Kind]
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether err is (or wraps) an *Error whose Kind is
// retryable by the routed executor. Non-*Error values are never retryable.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.Retryable()
}
