package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/ideaforge/billingcore/pkg/billing"
)

const defaultBatchSize = 100

// Finisher completes the downgrade of a subscription whose row has already
// been claimed. Implemented by billing.StateMachine.
type Finisher interface {
	CompleteExpiry(ctx context.Context, sub billing.Subscription) error
}

// Claimer leases expired subscriptions, each to one caller at a time. A
// lease whose downgrade never completed lapses and the row is handed out
// again. Implemented by billing.SubscriptionStore.
type Claimer interface {
	ClaimExpired(ctx context.Context, now time.Time, limit int) ([]billing.Subscription, error)
}

// Summary reports one sweep run.
type Summary struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

// Sweeper downgrades subscriptions whose paid period has lapsed. It is the
// safety net for missed cancellation webhooks: entitlement checks already
// deny expired subscriptions at read time, so the sweep only reconciles
// stored plan and quota state.
type Sweeper struct {
	claimer   Claimer
	finisher  Finisher
	log       *slog.Logger
	batchSize int
	now       func() time.Time
}

// Option configures optional Sweeper settings.
type Option func(*Sweeper)

// WithLogger sets the sweeper's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sweeper) {
		if log != nil {
			s.log = log
		}
	}
}

// WithBatchSize limits how many subscriptions one Sweep claims per query.
func WithBatchSize(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Sweeper. Claimer and finisher are required.
func New(claimer Claimer, finisher Finisher, opts ...Option) *Sweeper {
	if claimer == nil {
		panic("sweeper: claimer is required")
	}
	if finisher == nil {
		panic("sweeper: finisher is required")
	}

	s := &Sweeper{
		claimer:   claimer,
		finisher:  finisher,
		log:       slog.Default(),
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep claims and downgrades expired subscriptions in batches until none
// remain. One failing subscription never aborts the run: its row stays
// leased but otherwise untouched, and once the lease lapses a later sweep
// re-claims it and retries the downgrade. Concurrent sweeps are safe because
// a leased row is handed to one caller at a time and the downgrade itself is
// idempotent.
func (s *Sweeper) Sweep(ctx context.Context) (Summary, error) {
	var summary Summary

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		claimed, err := s.claimer.ClaimExpired(ctx, s.now(), s.batchSize)
		if err != nil {
			s.log.ErrorContext(ctx, "failed to claim expired subscriptions",
				slog.String("error", err.Error()))
			return summary, err
		}
		if len(claimed) == 0 {
			break
		}

		for _, sub := range claimed {
			if err := s.finisher.CompleteExpiry(ctx, sub); err != nil {
				summary.Failed++
				s.log.ErrorContext(ctx, "failed to downgrade expired subscription",
					slog.String("subscription_id", sub.ID.String()),
					slog.String("user_id", sub.UserID),
					slog.String("error", err.Error()))
				continue
			}
			summary.Processed++
			s.log.InfoContext(ctx, "subscription expired, user downgraded",
				slog.String("subscription_id", sub.ID.String()),
				slog.String("user_id", sub.UserID),
				slog.Time("period_end", sub.CurrentPeriodEnd))
		}

		if len(claimed) < s.batchSize {
			break
		}
	}

	return summary, nil
}
