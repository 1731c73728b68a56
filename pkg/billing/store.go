package billing

import (
	"context"
	"time"

	"github.com/ideaforge/billingcore/pkg/plan"
)

// SubscriptionStore persists subscriptions. The service runs as multiple
// stateless instances, so every mutating method states its concurrency
// contract explicitly: guards live in the write predicate, not in locks.
type SubscriptionStore interface {
	// GetByExternalID returns the subscription for a provider subscription ID.
	// Returns ErrSubscriptionNotFound if it does not exist.
	GetByExternalID(ctx context.Context, externalID string) (*Subscription, error)

	// CurrentByUserID returns the user's latest-intent subscription row
	// (most recently created). Returns ErrSubscriptionNotFound for free-tier
	// users that never subscribed.
	CurrentByUserID(ctx context.Context, userID string) (*Subscription, error)

	// UpsertActive creates the subscription on first sight of its external
	// ID, or resets an existing row to active with the given plan and period
	// boundaries. The update is guarded: it applies only when the incoming
	// period end is not older than the stored one, or the plan type changed.
	// A stale activation replay therefore leaves the row untouched, keeping
	// current_period_end monotonic and preserving a cancellation flag set
	// after the original delivery.
	UpsertActive(ctx context.Context, sub *Subscription) error

	// ExtendPeriod moves current_period_end forward, but only if newEnd is
	// strictly later than the stored value. Returns false when the guard
	// rejected the write (out-of-order renewal), which callers treat as a
	// successful no-op.
	ExtendPeriod(ctx context.Context, externalID string, newEnd time.Time) (bool, error)

	// MarkCancelAtPeriodEnd flags an active subscription for cancellation at
	// period end. Returns false when no active row matched.
	MarkCancelAtPeriodEnd(ctx context.Context, externalID string) (bool, error)

	// ClaimExpired leases every active subscription flagged
	// cancel_at_period_end whose period ended before now, and returns exactly
	// the rows this caller leased. Claiming does not change the status; the
	// lease (sweepClaimLease) keeps concurrent sweepers off the same rows,
	// and a row whose downgrade never reached MarkExpired becomes claimable
	// again once its lease lapses, so a sweep that fails partway is
	// resumable.
	ClaimExpired(ctx context.Context, now time.Time, limit int) ([]Subscription, error)

	// MarkExpired flips a claimed subscription to cancelled and releases its
	// sweep lease. Returns false when no active row matched, meaning another
	// writer already finished the transition. Returns ErrSubscriptionNotFound
	// if the row does not exist.
	MarkExpired(ctx context.Context, externalID string) (bool, error)
}

// sweepClaimLease is how long a sweep claim excludes a row from re-claiming.
// Long enough for any healthy sweep batch to finish, short enough that a
// crashed sweeper's rows are retried within the hour.
const sweepClaimLease = 15 * time.Minute

// UserStore persists the engine-owned user billing fields.
type UserStore interface {
	// Get returns a user by ID. Returns ErrUserNotFound if it does not exist.
	Get(ctx context.Context, id string) (*User, error)

	// SetPlan updates the user's plan type and subscription status cache,
	// creating the row if needed.
	SetPlan(ctx context.Context, id string, planType plan.Type, subStatus string) error
}

// PaymentStore persists payment transactions.
type PaymentStore interface {
	// Insert records a payment attempt. A duplicate external payment ID is
	// silently ignored (the unique constraint is the idempotency guard) and
	// is not an error.
	Insert(ctx context.Context, tx *PaymentTransaction) error

	// ListByUser returns a user's payment history, newest first.
	ListByUser(ctx context.Context, userID string) ([]PaymentTransaction, error)
}
