// ABOUTME: Bounded retry with exponential backoff for gateway operations
// ABOUTME: Retries only failures that IsTransient classifies as worth another attempt

package openclaw

import (
	"context"
	"errors"
	"time"
)

// Retry defaults. Gateways shed websocket connects under load, so a few
// attempts with a sub-second base delay recovers most transient failures.
const (
	DefaultRetryAttempts  = 3
	DefaultRetryBaseDelay = 750 * time.Millisecond
)

// RetryOptions tunes WithRetry. Zero values select the defaults.
type RetryOptions struct {
	Attempts  int
	BaseDelay time.Duration
}

// retrySleep is swapped out in tests to observe backoff without waiting.
var retrySleep = sleepContext

// WithRetry runs fn up to opts.Attempts times. After a failure it backs
// off for BaseDelay * 2^attempt before the next try, but only when the
// failure is transient and attempts remain; otherwise the failure is
// returned unchanged. No delay precedes the first attempt.
func WithRetry[T any](ctx context.Context, opts RetryOptions, fn func() (T, error)) (T, error) {
	attempts := opts.Attempts
	if attempts <= 0 {
		attempts = DefaultRetryAttempts
	}
	base := opts.BaseDelay
	if base <= 0 {
		base = DefaultRetryBaseDelay
	}

	var zero T
	for attempt := 0; attempt < attempts; attempt++ {
		out, err := fn()
		if err == nil {
			return out, nil
		}
		if attempt >= attempts-1 || !IsTransient(err) {
			return zero, err
		}
		if serr := retrySleep(ctx, base<<attempt); serr != nil {
			return zero, serr
		}
	}
	return zero, errors.New("retry loop exhausted without a result")
}

// Do is WithRetry for operations that produce no value.
func Do(ctx context.Context, opts RetryOptions, fn func() error) error {
	_, err := WithRetry(ctx, opts, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
