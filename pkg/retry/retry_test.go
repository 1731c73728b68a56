package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaforge/billingcore/pkg/retry"
)

func TestDo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fast := retry.WithStrategy(retry.Fixed{Interval: time.Millisecond})

	t.Run("succeeds first try without backoff", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := retry.Do(ctx, func(context.Context) error {
			calls++
			return nil
		}, fast)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries until success", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := retry.Do(ctx, func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		}, fast, retry.WithMaxAttempts(5))
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausts the attempt budget", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("still down")
		calls := 0
		err := retry.Do(ctx, func(context.Context) error {
			calls++
			return cause
		}, fast, retry.WithMaxAttempts(4))
		require.Error(t, err)
		assert.ErrorIs(t, err, retry.ErrAttemptsExhausted)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, 4, calls)
	})

	t.Run("non-retryable error fails immediately", func(t *testing.T) {
		t.Parallel()
		fatal := errors.New("bad credentials")
		calls := 0
		err := retry.Do(ctx, func(context.Context) error {
			calls++
			return fatal
		}, fast, retry.WithRetryable(func(err error) bool {
			return !errors.Is(err, fatal)
		}))
		assert.ErrorIs(t, err, fatal)
		assert.NotErrorIs(t, err, retry.ErrAttemptsExhausted)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops the backoff wait", func(t *testing.T) {
		t.Parallel()
		cancelCtx, cancel := context.WithCancel(ctx)
		cause := errors.New("transient")
		err := retry.Do(cancelCtx, func(context.Context) error {
			cancel()
			return cause
		}, retry.WithStrategy(retry.Fixed{Interval: time.Minute}))
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, cause)
	})
}

func TestStrategies(t *testing.T) {
	t.Parallel()

	t.Run("fixed returns a constant delay", func(t *testing.T) {
		t.Parallel()
		s := retry.Fixed{Interval: 5 * time.Second}
		assert.Equal(t, 5*time.Second, s.Next(1))
		assert.Equal(t, 5*time.Second, s.Next(10))
		assert.Equal(t, time.Duration(0), s.Next(0))
	})

	t.Run("linear grows per attempt and caps", func(t *testing.T) {
		t.Parallel()
		s := retry.Linear{Interval: 2 * time.Second, MaxInterval: 5 * time.Second}
		assert.Equal(t, 2*time.Second, s.Next(1))
		assert.Equal(t, 4*time.Second, s.Next(2))
		assert.Equal(t, 5*time.Second, s.Next(3))
	})

	t.Run("exponential doubles without jitter and caps", func(t *testing.T) {
		t.Parallel()
		s := retry.Exponential{InitialInterval: time.Second, MaxInterval: 10 * time.Second, Multiplier: 2}
		assert.Equal(t, time.Second, s.Next(1))
		assert.Equal(t, 2*time.Second, s.Next(2))
		assert.Equal(t, 4*time.Second, s.Next(3))
		assert.Equal(t, 10*time.Second, s.Next(5))
	})

	t.Run("exponential jitter stays within bounds", func(t *testing.T) {
		t.Parallel()
		s := retry.Exponential{InitialInterval: time.Second, MaxInterval: time.Minute, Multiplier: 2, JitterFactor: 0.1}
		for range 100 {
			d := s.Next(2)
			assert.GreaterOrEqual(t, d, 1800*time.Millisecond)
			assert.LessOrEqual(t, d, 2200*time.Millisecond)
		}
	})
}
