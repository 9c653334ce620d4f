package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"quote-api/internal/clock"
)

// Policy controls the retry loop around a single upstream attempt:
// exponential backoff with full jitter, capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy matches the service defaults: 3 attempts, 300-500 ms base,
// 5 s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   300 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

// retryableError is implemented by errors that know whether another attempt
// can succeed (timeouts, network failures, 5xx, 429).
type retryableError interface {
	IsRetryable() bool
}

// retryAfterError is implemented by errors carrying an upstream Retry-After
// hint, honored in place of the computed backoff.
type retryAfterError interface {
	RetryAfterHint() time.Duration
}

// IsRetryable reports whether err is worth another attempt. Unclassified
// errors are treated as terminal.
func IsRetryable(err error) bool {
	var re retryableError
	if errors.As(err, &re) {
		return re.IsRetryable()
	}
	return false
}

// retryAfter extracts an upstream Retry-After hint from err, if any.
func retryAfter(err error) time.Duration {
	var ra retryAfterError
	if errors.As(err, &ra) {
		return ra.RetryAfterHint()
	}
	return 0
}

// Do runs fn up to p.MaxAttempts times, sleeping between attempts. Only
// retryable errors are retried; terminal errors and context cancellation end
// the loop immediately. The last error is returned on exhaustion.
func Do(ctx context.Context, clk clock.Clock, p Policy, fn func() error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := p.backoff(attempt)
			if hint := retryAfter(err); hint > 0 {
				delay = hint
				if p.MaxDelay > 0 && delay > p.MaxDelay {
					delay = p.MaxDelay
				}
			}
			if serr := clk.Sleep(ctx, delay); serr != nil {
				return serr
			}
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = fn()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
	}
	return err
}

// backoff computes the delay before the given attempt (1-based): full jitter
// over [base, base*2^(n-1)*2), capped at MaxDelay.
func (p Policy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = 300 * time.Millisecond
	}
	max := base << uint(attempt) // base * 2^attempt
	if p.MaxDelay > 0 && max > p.MaxDelay {
		max = p.MaxDelay
	}
	if max <= base {
		return max
	}
	return base + time.Duration(rand.Int63n(int64(max-base)))
}
