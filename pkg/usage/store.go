package usage

import (
	"context"
	"time"

	"github.com/ideaforge/billingcore/pkg/plan"
)

// Store persists usage counters. Like the billing stores, the quota guard is
// part of the write predicate so concurrent increments from multiple
// instances cannot push a counter past its limit.
type Store interface {
	// Get returns a user's usage row. Returns ErrNotFound if it was never
	// created.
	Get(ctx context.Context, userID string) (*Limits, error)

	// Create inserts the row if absent; an existing row is left untouched.
	Create(ctx context.Context, l *Limits) error

	// Increment bumps a counter by one, but only when limit is
	// plan.Unlimited or the counter is below the supplied limit. The limit
	// comes from the caller's plan lookup at call time, not the stored row,
	// so plan upgrades apply immediately. Returns false when the guard
	// blocked the increment.
	Increment(ctx context.Context, userID string, q plan.Quota, limit int64) (bool, error)

	// ResetIfDue zeroes all counters and advances reset_date by exactly one
	// month, but only if reset_date is not after now. Returns false when
	// nothing was due; callers loop until false to catch up after long
	// idle periods without ever skipping a boundary.
	ResetIfDue(ctx context.Context, userID string, now time.Time) (bool, error)

	// ApplyPlan rewrites the row for a plan change: counters to zero, stored
	// limits to the new plan's quotas, reset_date to the given boundary.
	ApplyPlan(ctx context.Context, userID string, planType plan.Type, limits map[plan.Quota]int64, resetDate time.Time) error
}
