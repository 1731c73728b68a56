// Package retry provides a bounded retry-with-backoff primitive so callers
// do not hand-roll ad hoc retry loops. A predicate decides which error
// classes are worth retrying; everything else fails immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAttemptsExhausted wraps the last error after all attempts failed.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Option configures a Do call.
type Option func(*options)

type options struct {
	maxAttempts int
	strategy    Strategy
	retryable   func(error) bool
}

// WithMaxAttempts sets the total number of attempts including the first.
// Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.maxAttempts = n
		}
	}
}

// WithStrategy sets the backoff strategy between attempts.
func WithStrategy(s Strategy) Option {
	return func(o *options) {
		if s != nil {
			o.strategy = s
		}
	}
}

// WithRetryable sets the predicate deciding whether an error is transient.
// The default retries everything.
func WithRetryable(pred func(error) bool) Option {
	return func(o *options) {
		if pred != nil {
			o.retryable = pred
		}
	}
}

// Do runs fn until it succeeds, a non-retryable error occurs, the attempt
// budget runs out, or the context is cancelled. Backoff delays respect
// context cancellation.
func Do(ctx context.Context, fn func(ctx context.Context) error, opts ...Option) error {
	o := &options{
		maxAttempts: 3,
		strategy:    DefaultStrategy(),
		retryable:   func(error) bool { return true },
	}
	for _, opt := range opts {
		opt(o)
	}

	var lastErr error
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return errors.Join(ctx.Err(), lastErr)
			case <-time.After(o.strategy.Next(attempt - 1)):
			}
		}

		if err := fn(ctx); err != nil {
			lastErr = err
			if !o.retryable(err) {
				return err
			}
			continue
		}
		return nil
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, o.maxAttempts, lastErr)
}
