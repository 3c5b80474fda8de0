// errors.go defines the gateway error taxonomy and retry classification.
package assistant

import (
	"fmt"
	"strings"
)

// ErrorKind classifies gateway errors for retry/fallback decisions.
type ErrorKind int

const (
	// KindConfig — bad or missing setup (empty conversation, empty API key,
	// invalid config). Never retried.
	KindConfig ErrorKind = iota

	// KindBusy — admission control saturated. Never retried or queued.
	KindBusy

	// KindTimeout — attempt deadline exceeded. Retried via model fallback.
	KindTimeout

	// KindNetwork — transport-level failure (connection refused, DNS).
	// Retried via model fallback.
	KindNetwork

	// KindHTTP — non-2xx status with no parseable API error payload.
	// Retried only for the status set {400, 404, 500, 503}.
	KindHTTP

	// KindRateLimit — HTTP 429. Backoff and retry the same model once
	// before advancing the fallback chain.
	KindRateLimit

	// KindAPI — structured provider error. Retried only when classified as
	// model-related, otherwise terminal.
	KindAPI

	// KindParse — malformed JSON envelope or content.
	KindParse

	// KindCanceled — the caller canceled the logical request. Terminal.
	KindCanceled

	// KindExhausted — all fallback models tried; wraps the last error.
	KindExhausted
)

// String returns a human-readable label for the error kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindBusy:
		return "busy"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindHTTP:
		return "http"
	case KindRateLimit:
		return "rate_limit"
	case KindAPI:
		return "api"
	case KindParse:
		return "parse"
	case KindCanceled:
		return "canceled"
	case KindExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// GatewayError is the single error type surfaced by the gateway client.
// Exactly one terminal GatewayError (or success) is delivered per logical
// request; callers never see intermediate retry attempts.
type GatewayError struct {
	Kind    ErrorKind
	Message string

	// Status is the HTTP status for KindHTTP and KindRateLimit.
	Status int

	// Body is the raw response body for KindHTTP.
	Body string

	// Code and Type carry the provider error fields for KindAPI.
	Code string
	Type string

	// Raw is the unparseable payload for KindParse, preserved so callers
	// can display it instead of crashing.
	Raw string

	// RetryAfterSec is the server-requested delay for KindRateLimit,
	// 0 when the header was absent.
	RetryAfterSec int

	// Err is the wrapped cause; for KindExhausted it is the last attempt's
	// error.
	Err error
}

func (e *GatewayError) Error() string {
	switch e.Kind {
	case KindHTTP:
		return fmt.Sprintf("gateway: HTTP %d: %s", e.Status, truncate(e.Body, 200))
	case KindAPI:
		if e.Type != "" {
			return fmt.Sprintf("gateway: API error (%s): %s", e.Type, e.Message)
		}
		return fmt.Sprintf("gateway: API error: %s", e.Message)
	case KindExhausted:
		return fmt.Sprintf("gateway: all models and retries exhausted: %v", e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("gateway: %s: %s", e.Kind, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("gateway: %s: %v", e.Kind, e.Err)
	}
	return "gateway: " + e.Kind.String()
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// retryableHTTPStatuses are treated as "this model/endpoint is currently
// unusable" and trigger model fallback.
var retryableHTTPStatuses = map[int]bool{
	400: true,
	404: true,
	500: true,
	503: true,
}

// Retryable reports whether the error is eligible for the model-fallback
// retry loop. Authentication and quota errors are never retried because
// switching models cannot fix them.
func (e *GatewayError) Retryable(model string) bool {
	switch e.Kind {
	case KindTimeout, KindNetwork, KindParse, KindRateLimit:
		return true
	case KindHTTP:
		return retryableHTTPStatuses[e.Status]
	case KindAPI:
		return apiErrorIsModelRelated(e, model)
	}
	return false
}

// apiErrorIsModelRelated reports whether a provider error points at the
// model itself (deprecated, overloaded, unknown id) rather than the request
// or the account. Such errors are fixed by switching models.
func apiErrorIsModelRelated(e *GatewayError, model string) bool {
	if e.Type == "invalid_request_error" {
		return true
	}
	msg := strings.ToLower(e.Message)
	if model != "" && strings.Contains(msg, strings.ToLower(model)) {
		return true
	}
	return strings.Contains(msg, "model")
}

// truncate shortens s for log/error output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
