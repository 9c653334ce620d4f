package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"quote-api/internal/models"
)

// Source is an upstream fetcher for one data type, identified by a stable
// id. Fetch returns the normalized quote or a classified SourceError.
type Source interface {
	ID() string
	DataType() models.DataType
	DefaultPriority() int
	Fetch(ctx context.Context, symbol string) (*models.Quote, error)
}

// ErrorKind buckets upstream failures for metrics and retry decisions.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindRateLimit  ErrorKind = "rateLimit"
	KindNetwork    ErrorKind = "network"
	KindNotFound   ErrorKind = "notFound"
	KindValidation ErrorKind = "validation"
	KindOther      ErrorKind = "other"
)

// AllErrorKinds lists the kinds in a stable order.
var AllErrorKinds = []ErrorKind{
	KindTimeout, KindRateLimit, KindNetwork, KindNotFound, KindValidation, KindOther,
}

// SourceError is a classified upstream failure.
type SourceError struct {
	Source     string
	Kind       ErrorKind
	Message    string
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Source, e.Message, e.Kind)
}

// Unwrap exposes the underlying error.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether another attempt can succeed.
func (e *SourceError) IsRetryable() bool {
	return e.Retryable
}

// RetryAfterHint returns the upstream Retry-After hint, if any.
func (e *SourceError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

// NewError creates a SourceError with retryability derived from the kind.
func NewError(source string, kind ErrorKind, message string, err error) *SourceError {
	return &SourceError{
		Source:    source,
		Kind:      kind,
		Message:   message,
		Retryable: kind == KindTimeout || kind == KindNetwork || kind == KindRateLimit,
		Err:       err,
	}
}

// Kind extracts the error kind from err, classifying by message when the
// error is not already a SourceError.
func Kind(err error) ErrorKind {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind
	}
	if err == nil {
		return KindOther
	}
	return classifyMessage(err.Error())
}

// ClassifyHTTP maps an HTTP response status and body into a SourceError.
// retryAfter comes from the Retry-After header when present.
func ClassifyHTTP(source string, status int, body string, retryAfter time.Duration) *SourceError {
	msg := fmt.Sprintf("HTTP %d", status)
	if body != "" {
		msg = fmt.Sprintf("HTTP %d: %s", status, truncate(body, 200))
	}
	switch {
	case status == http.StatusTooManyRequests:
		se := NewError(source, KindRateLimit, msg, nil)
		se.RetryAfter = retryAfter
		return se
	case status == http.StatusNotFound:
		return NewError(source, KindNotFound, msg, nil)
	case status >= 500:
		// Upstream 5xx is transient; bucket as network.
		return NewError(source, KindNetwork, msg, nil)
	default:
		return NewError(source, KindOther, msg, nil)
	}
}

// ClassifyTransport maps a transport-level error (dial, reset, deadline)
// into a SourceError.
func ClassifyTransport(source string, err error) *SourceError {
	kind := classifyMessage(err.Error())
	if kind == KindOther {
		kind = KindNetwork
	}
	return NewError(source, kind, err.Error(), err)
}

// classifyMessage derives a kind from an error message per the substring
// rules: "timeout" wins over network words, 429/"rate limit" over both.
func classifyMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429"):
		return KindRateLimit
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return KindTimeout
	case strings.Contains(lower, "econnreset") ||
		strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "network") ||
		strings.Contains(lower, "dns") ||
		strings.Contains(lower, "no such host"):
		return KindNetwork
	case strings.Contains(lower, "not found") || strings.Contains(lower, "404"):
		return KindNotFound
	case strings.Contains(lower, "parse") || strings.Contains(lower, "unmarshal") ||
		strings.Contains(lower, "invalid") || strings.Contains(lower, "unexpected"):
		return KindValidation
	default:
		return KindOther
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
