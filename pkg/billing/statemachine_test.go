package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaforge/billingcore/pkg/billing"
	"github.com/ideaforge/billingcore/pkg/plan"
)

// quotaRecorder records ApplyPlan calls in place of the usage ledger.
type quotaRecorder struct {
	mu      sync.Mutex
	applied []plan.Type
}

func (q *quotaRecorder) ApplyPlan(_ context.Context, _ string, planType plan.Type) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.applied = append(q.applied, planType)
	return nil
}

func (q *quotaRecorder) last() (plan.Type, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.applied) == 0 {
		return "", false
	}
	return q.applied[len(q.applied)-1], true
}

type fixture struct {
	subs     *billing.MemorySubscriptionStore
	users    *billing.MemoryUserStore
	payments *billing.MemoryPaymentStore
	quotas   *quotaRecorder
	machine  *billing.StateMachine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		subs:     billing.NewMemorySubscriptionStore(),
		users:    billing.NewMemoryUserStore(),
		payments: billing.NewMemoryPaymentStore(),
		quotas:   &quotaRecorder{},
	}
	f.machine = billing.NewStateMachine(f.subs, f.users, f.payments, f.quotas, nil)
	return f
}

func activated(eventID, subID, userID string, start, end time.Time) billing.ActivatedEvent {
	return billing.ActivatedEvent{
		EventMeta:      billing.EventMeta{ID: eventID, Type: billing.TypeSubscriptionActivated},
		SubscriptionID: subID,
		UserID:         userID,
		Plan:           plan.ProMonthly,
		PeriodStart:    start,
		PeriodEnd:      end,
	}
}

func TestStateMachine_Activation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	t.Run("activation cascades to subscription, user, and quotas", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		err := f.machine.Apply(ctx, activated("evt-1", "sub-1", "user-1", start, end))
		require.NoError(t, err)

		sub, err := f.subs.GetByExternalID(ctx, "sub-1")
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, sub.Status)
		assert.Equal(t, plan.ProMonthly, sub.PlanType)
		assert.Equal(t, end, sub.CurrentPeriodEnd)
		assert.False(t, sub.CancelAtPeriodEnd)

		u, err := f.users.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, plan.ProMonthly, u.PlanType)
		assert.Equal(t, billing.UserSubActive, u.SubscriptionStatus)

		applied, ok := f.quotas.last()
		require.True(t, ok)
		assert.Equal(t, plan.ProMonthly, applied)
	})

	t.Run("replayed activation converges to the same state", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		evt := activated("evt-2", "sub-2", "user-2", start, end)
		require.NoError(t, f.machine.Apply(ctx, evt))
		require.NoError(t, f.machine.Apply(ctx, evt))

		sub, err := f.subs.GetByExternalID(ctx, "sub-2")
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, sub.Status)
		assert.Equal(t, end, sub.CurrentPeriodEnd)
	})

	t.Run("stale activation replay never rewinds a renewal", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		evt := activated("evt-a", "sub-a", "user-a", start, end)
		require.NoError(t, f.machine.Apply(ctx, evt))

		// A renewal moves the period forward...
		newEnd := end.AddDate(0, 1, 0)
		require.NoError(t, f.machine.Apply(ctx, billing.ChargedEvent{
			EventMeta:      billing.EventMeta{ID: "evt-b", Type: billing.TypeSubscriptionCharged},
			SubscriptionID: "sub-a",
			PeriodEnd:      newEnd,
		}))

		// ...then the original activation is redelivered.
		require.NoError(t, f.machine.Apply(ctx, evt))

		sub, err := f.subs.GetByExternalID(ctx, "sub-a")
		require.NoError(t, err)
		assert.Equal(t, newEnd, sub.CurrentPeriodEnd)
		assert.Equal(t, start, sub.CurrentPeriodStart)
	})

	t.Run("stale activation replay keeps a later cancellation flag", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		evt := activated("evt-a", "sub-a", "user-a", start, end)
		require.NoError(t, f.machine.Apply(ctx, evt))
		require.NoError(t, f.machine.Apply(ctx, billing.ChargedEvent{
			EventMeta:      billing.EventMeta{ID: "evt-b", Type: billing.TypeSubscriptionCharged},
			SubscriptionID: "sub-a",
			PeriodEnd:      end.AddDate(0, 1, 0),
		}))
		require.NoError(t, f.machine.Apply(ctx, billing.CancelledEvent{
			EventMeta:      billing.EventMeta{ID: "evt-c", Type: billing.TypeSubscriptionCancelled},
			SubscriptionID: "sub-a",
		}))

		require.NoError(t, f.machine.Apply(ctx, evt))

		sub, err := f.subs.GetByExternalID(ctx, "sub-a")
		require.NoError(t, err)
		assert.True(t, sub.CancelAtPeriodEnd)
	})

	t.Run("activation clears a pending cancel flag", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		require.NoError(t, f.machine.Apply(ctx, activated("evt-3", "sub-3", "user-3", start, end)))
		require.NoError(t, f.machine.Apply(ctx, billing.CancelledEvent{
			EventMeta:      billing.EventMeta{ID: "evt-4", Type: billing.TypeSubscriptionCancelled},
			SubscriptionID: "sub-3",
		}))

		// Re-subscribe before the period lapses.
		require.NoError(t, f.machine.Apply(ctx, activated("evt-5", "sub-3", "user-3", start, end.AddDate(0, 1, 0))))

		sub, err := f.subs.GetByExternalID(ctx, "sub-3")
		require.NoError(t, err)
		assert.False(t, sub.CancelAtPeriodEnd)
		assert.Equal(t, billing.StatusActive, sub.Status)
	})
}

func TestStateMachine_Renewal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	charged := func(eventID string, periodEnd time.Time) billing.ChargedEvent {
		return billing.ChargedEvent{
			EventMeta:      billing.EventMeta{ID: eventID, Type: billing.TypeSubscriptionCharged},
			SubscriptionID: "sub-1",
			PeriodEnd:      periodEnd,
		}
	}

	t.Run("renewal extends the period", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		require.NoError(t, f.machine.Apply(ctx, activated("evt-1", "sub-1", "user-1", start, end)))

		newEnd := end.AddDate(0, 1, 0)
		require.NoError(t, f.machine.Apply(ctx, charged("evt-2", newEnd)))

		sub, err := f.subs.GetByExternalID(ctx, "sub-1")
		require.NoError(t, err)
		assert.Equal(t, newEnd, sub.CurrentPeriodEnd)
	})

	t.Run("stale renewal arriving late never rewinds the period", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		require.NoError(t, f.machine.Apply(ctx, activated("evt-1", "sub-1", "user-1", start, end)))

		newer := end.AddDate(0, 2, 0)
		older := end.AddDate(0, 1, 0)

		// The later renewal is delivered first.
		require.NoError(t, f.machine.Apply(ctx, charged("evt-2", newer)))
		require.NoError(t, f.machine.Apply(ctx, charged("evt-3", older)))

		sub, err := f.subs.GetByExternalID(ctx, "sub-1")
		require.NoError(t, err)
		assert.Equal(t, newer, sub.CurrentPeriodEnd)
	})

	t.Run("renewal for unknown subscription is a data integrity error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		err := f.machine.Apply(ctx, charged("evt-1", end))
		assert.ErrorIs(t, err, billing.ErrDataIntegrity)
	})
}

func TestStateMachine_Cancellation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	cancelled := func(eventID string) billing.CancelledEvent {
		return billing.CancelledEvent{
			EventMeta:      billing.EventMeta{ID: eventID, Type: billing.TypeSubscriptionCancelled},
			SubscriptionID: "sub-1",
		}
	}

	t.Run("cancellation keeps access until period end", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		require.NoError(t, f.machine.Apply(ctx, activated("evt-1", "sub-1", "user-1", start, end)))

		require.NoError(t, f.machine.Apply(ctx, cancelled("evt-2")))

		sub, err := f.subs.GetByExternalID(ctx, "sub-1")
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, sub.Status)
		assert.True(t, sub.CancelAtPeriodEnd)

		// User row untouched until expiry.
		u, err := f.users.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, plan.ProMonthly, u.PlanType)
	})

	t.Run("duplicate cancellation is a no-op", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		require.NoError(t, f.machine.Apply(ctx, activated("evt-1", "sub-1", "user-1", start, end)))

		require.NoError(t, f.machine.Apply(ctx, cancelled("evt-2")))
		require.NoError(t, f.machine.Apply(ctx, cancelled("evt-3")))

		sub, err := f.subs.GetByExternalID(ctx, "sub-1")
		require.NoError(t, err)
		assert.True(t, sub.CancelAtPeriodEnd)
	})

	t.Run("cancellation for unknown subscription is a data integrity error", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		err := f.machine.Apply(ctx, cancelled("evt-1"))
		assert.ErrorIs(t, err, billing.ErrDataIntegrity)
	})
}

func TestStateMachine_Payments(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	t.Run("captured payment activates and records the transaction", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)

		evt := billing.PaymentCapturedEvent{
			EventMeta:      billing.EventMeta{ID: "evt-1", Type: billing.TypePaymentCaptured},
			SubscriptionID: "sub-1",
			UserID:         "user-1",
			PaymentID:      "pay-1",
			Plan:           plan.ProMonthly,
			Amount:         2900,
			Currency:       "USD",
			PeriodStart:    start,
			PeriodEnd:      end,
			CapturedAt:     start,
		}
		require.NoError(t, f.machine.Apply(ctx, evt))

		sub, err := f.subs.GetByExternalID(ctx, "sub-1")
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, sub.Status)

		txs, err := f.payments.ListByUser(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, billing.PaymentCaptured, txs[0].Status)
		assert.Equal(t, int64(2900), txs[0].Amount)

		// Redelivery creates no second row.
		require.NoError(t, f.machine.Apply(ctx, evt))
		txs, err = f.payments.ListByUser(ctx, "user-1")
		require.NoError(t, err)
		assert.Len(t, txs, 1)
	})

	t.Run("failed payment records but never revokes", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		require.NoError(t, f.machine.Apply(ctx, activated("evt-1", "sub-1", "user-1", start, end)))

		require.NoError(t, f.machine.Apply(ctx, billing.PaymentFailedEvent{
			EventMeta:      billing.EventMeta{ID: "evt-2", Type: billing.TypePaymentFailed},
			SubscriptionID: "sub-1",
			UserID:         "user-1",
			PaymentID:      "pay-2",
			Amount:         2900,
			Currency:       "USD",
		}))

		sub, err := f.subs.GetByExternalID(ctx, "sub-1")
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, sub.Status)

		u, err := f.users.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, billing.UserSubActive, u.SubscriptionStatus)

		txs, err := f.payments.ListByUser(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, billing.PaymentFailed, txs[0].Status)
	})
}

func TestStateMachine_CompleteExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	t.Run("expiry downgrades user and quotas to free", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		require.NoError(t, f.machine.Apply(ctx, activated("evt-1", "sub-1", "user-1", start, end)))

		sub, err := f.subs.GetByExternalID(ctx, "sub-1")
		require.NoError(t, err)

		require.NoError(t, f.machine.CompleteExpiry(ctx, *sub))

		u, err := f.users.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, plan.Free, u.PlanType)
		assert.Equal(t, billing.UserSubInactive, u.SubscriptionStatus)

		applied, ok := f.quotas.last()
		require.True(t, ok)
		assert.Equal(t, plan.Free, applied)

		// The row flips only as the final step of the downgrade.
		sub, err = f.subs.GetByExternalID(ctx, "sub-1")
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCancelled, sub.Status)
	})

	t.Run("replayed expiry converges", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		require.NoError(t, f.machine.Apply(ctx, activated("evt-1", "sub-1", "user-1", start, end)))

		sub, err := f.subs.GetByExternalID(ctx, "sub-1")
		require.NoError(t, err)

		require.NoError(t, f.machine.CompleteExpiry(ctx, *sub))
		require.NoError(t, f.machine.CompleteExpiry(ctx, *sub))

		u, err := f.users.Get(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, plan.Free, u.PlanType)
	})
}

func TestStateMachine_UnknownEvent(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	err := f.machine.Apply(context.Background(), billing.UnknownEvent{
		EventMeta: billing.EventMeta{ID: "evt-1", Type: "subscription.paused"},
		RawType:   "subscription.paused",
	})
	assert.NoError(t, err)
}
