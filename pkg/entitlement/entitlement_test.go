package entitlement_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/ideaforge/billingcore/pkg/billing"
	"github.com/ideaforge/billingcore/pkg/entitlement"
	"github.com/ideaforge/billingcore/pkg/plan"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	newSub := func(status billing.Status, periodEnd time.Time, cancelAtEnd bool) *billing.Subscription {
		return &billing.Subscription{
			ID:                 uuid.New(),
			UserID:             "user-1",
			ExternalID:         "sub_ext_1",
			Status:             status,
			PlanType:           plan.ProMonthly,
			CurrentPeriodStart: periodEnd.AddDate(0, -1, 0),
			CurrentPeriodEnd:   periodEnd,
			CancelAtPeriodEnd:  cancelAtEnd,
		}
	}

	t.Run("nil subscription has no access", func(t *testing.T) {
		t.Parallel()
		d := entitlement.Resolve(nil, now)
		assert.Equal(t, entitlement.AccessNone, d.Level)
	})

	t.Run("active within period has full access", func(t *testing.T) {
		t.Parallel()
		sub := newSub(billing.StatusActive, now.AddDate(0, 0, 20), false)
		d := entitlement.Resolve(sub, now)
		assert.Equal(t, entitlement.AccessFull, d.Level)
	})

	t.Run("active at exact period end still has full access", func(t *testing.T) {
		t.Parallel()
		sub := newSub(billing.StatusActive, now, false)
		d := entitlement.Resolve(sub, now)
		assert.Equal(t, entitlement.AccessFull, d.Level)
	})

	t.Run("cancelled within grace period keeps full access via active status", func(t *testing.T) {
		t.Parallel()
		// Cancel-at-period-end leaves status active until the period lapses.
		sub := newSub(billing.StatusActive, now.AddDate(0, 0, 5), true)
		d := entitlement.Resolve(sub, now)
		assert.Equal(t, entitlement.AccessFull, d.Level)
	})

	t.Run("cancelled and elapsed drops to readonly", func(t *testing.T) {
		t.Parallel()
		sub := newSub(billing.StatusCancelled, now.AddDate(0, 0, -3), true)
		d := entitlement.Resolve(sub, now)
		assert.Equal(t, entitlement.AccessReadOnly, d.Level)
	})

	t.Run("active status with elapsed period and pending cancel is readonly", func(t *testing.T) {
		t.Parallel()
		// Expiry observed at read time before any sweep has run.
		sub := newSub(billing.StatusActive, now.AddDate(0, 0, -1), true)
		d := entitlement.Resolve(sub, now)
		assert.Equal(t, entitlement.AccessReadOnly, d.Level)
	})

	t.Run("trial has no paid access", func(t *testing.T) {
		t.Parallel()
		sub := newSub(billing.StatusTrial, now.AddDate(0, 0, 10), false)
		d := entitlement.Resolve(sub, now)
		assert.Equal(t, entitlement.AccessNone, d.Level)
	})

	t.Run("zero period end degrades to none", func(t *testing.T) {
		t.Parallel()
		sub := newSub(billing.StatusActive, time.Time{}, false)
		sub.CurrentPeriodStart = time.Time{}
		d := entitlement.Resolve(sub, now)
		assert.Equal(t, entitlement.AccessNone, d.Level)
	})

	t.Run("pure function of inputs", func(t *testing.T) {
		t.Parallel()
		sub := newSub(billing.StatusActive, now.AddDate(0, 0, 20), false)
		first := entitlement.Resolve(sub, now)
		second := entitlement.Resolve(sub, now)
		assert.Equal(t, first, second)
	})
}
