// Package retry classifies transient collaborator failures and applies
// bounded exponential backoff. Every blocking call to the language-model,
// retrieval, search, or memory collaborators goes through Do: a timeout is a
// retryable failure, never a silent continue.
package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/rendis/wayfind/pkg/schema"
)

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts int           // total attempts including the first
	Delay       time.Duration // initial delay
	MaxDelay    time.Duration // cap for the exponential growth, 0 = uncapped
}

// DefaultPolicy is used when callers pass a zero policy.
var DefaultPolicy = Policy{MaxAttempts: 3, Delay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}

// IsRetryable classifies whether an error should be retried.
// Retryable: network errors, deadline exceeded, transient service responses.
// Non-retryable: context cancellation (the run is shutting down), validation
// errors, and typed WayfindErrors whose code says so.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var wfErr *schema.WayfindError
	if errors.As(err, &wfErr) {
		return wfErr.IsRetryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"temporary failure",
		"i/o timeout",
		"service unavailable",
		"bad gateway",
		"gateway timeout",
		"too many requests",
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// Backoff calculates the delay before the given 0-based retry attempt.
func Backoff(p Policy, attempt int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	delay := p.Delay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Do runs fn with bounded retries. Non-retryable errors return immediately.
// After exhaustion the last error is escalated to a TIMEOUT_ERROR so callers
// can fold it into their own failure handling.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p = DefaultPolicy
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if attempt > 0 {
			if err := wait(ctx, Backoff(p, attempt-1)); err != nil {
				return err
			}
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) {
			return lastErr
		}
	}
	return schema.NewErrorf(schema.ErrCodeTimeout, "retries exhausted after %d attempts: %s", p.MaxAttempts, lastErr.Error()).WithCause(lastErr)
}

func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
