package corrector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrEmptyResponse is returned when a service answers without any text.
var ErrEmptyResponse = errors.New("empty response from service")

// FailureKind classifies why a correction attempt failed.
type FailureKind string

const (
	// Transient covers timeouts, network errors and 5xx answers.
	Transient FailureKind = "transient"
	// RateLimited is a 429 or an equivalent provider signal.
	RateLimited FailureKind = "rate_limited"
	// Invalid is a malformed request or an unusable answer. Not retried.
	Invalid FailureKind = "invalid"
	// Cancelled means the run was stopped before the chunk finished.
	Cancelled FailureKind = "cancelled"
)

// IsRetryable reports whether a failure of this kind may succeed on retry.
func IsRetryable(kind FailureKind) bool {
	return kind == Transient || kind == RateLimited
}

// Error is a classified correction failure. InputTokens and OutputTokens are
// set when the provider billed the attempt even though it failed.
type Error struct {
	Kind         FailureKind
	StatusCode   int
	InputTokens  int
	OutputTokens int
	Err          error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindForStatus maps an HTTP status to a failure kind.
func KindForStatus(code int) FailureKind {
	switch {
	case code == http.StatusTooManyRequests:
		return RateLimited
	case code == http.StatusRequestTimeout, code >= 500:
		return Transient
	case code >= 400:
		return Invalid
	default:
		return Transient
	}
}

// statusError builds an *Error for a non-OK HTTP answer.
func statusError(code int, body string) *Error {
	return &Error{
		Kind:       KindForStatus(code),
		StatusCode: code,
		Err:        fmt.Errorf("API returned status %d: %s", code, body),
	}
}

// Classify returns the failure kind of err. Context cancellation wins over
// everything else; unknown errors are treated as transient.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return Cancelled
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	return Transient
}

// Usage returns the tokens billed for a failed attempt, if any.
func Usage(err error) (input, output int) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.InputTokens, ce.OutputTokens
	}
	return 0, 0
}
