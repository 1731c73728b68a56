package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ideaforge/billingcore/pkg/plan"
)

// QuotaApplier resizes a user's usage limits when their plan changes.
// Implemented by usage.Ledger; declared here so billing does not depend on
// the usage package.
type QuotaApplier interface {
	ApplyPlan(ctx context.Context, userID string, planType plan.Type) error
}

// StateMachine applies verified billing events to subscription, user, and
// usage records. It is the only writer of those tables.
//
// Safety under concurrent invocation (webhook handler vs sweeper, or two
// webhook instances) comes from the stores' conditional-write contracts,
// not from locking: replaying any event from scratch is safe, and a rejected
// conditional update means another writer already advanced the state.
type StateMachine struct {
	subs     SubscriptionStore
	users    UserStore
	payments PaymentStore
	quotas   QuotaApplier
	log      *slog.Logger
}

// NewStateMachine creates a StateMachine. All stores are required; the
// logger defaults to slog.Default().
func NewStateMachine(subs SubscriptionStore, users UserStore, payments PaymentStore, quotas QuotaApplier, log *slog.Logger) *StateMachine {
	if subs == nil || users == nil || payments == nil || quotas == nil {
		panic("billing: state machine requires all stores")
	}
	if log == nil {
		log = slog.Default()
	}
	return &StateMachine{subs: subs, users: users, payments: payments, quotas: quotas, log: log}
}

// Apply routes an event to its transition. Any single-row failure aborts the
// whole event so the ingestor can schedule a full replay; partial effects
// are converged by the replay because every write is conditional or
// idempotent.
func (m *StateMachine) Apply(ctx context.Context, evt Event) error {
	switch e := evt.(type) {
	case ActivatedEvent:
		return m.activate(ctx, e.SubscriptionID, e.UserID, e.Plan, e.PeriodStart, e.PeriodEnd)

	case PaymentCapturedEvent:
		return m.paymentCaptured(ctx, e)

	case ChargedEvent:
		return m.renew(ctx, e)

	case CancelledEvent:
		return m.cancel(ctx, e)

	case PaymentFailedEvent:
		return m.paymentFailed(ctx, e)

	case UnknownEvent:
		m.log.DebugContext(ctx, "ignoring unknown billing event",
			slog.String("event_id", e.EventID()),
			slog.String("event_type", e.RawType))
		return nil

	default:
		return fmt.Errorf("%w: unhandled event variant %T", ErrDataIntegrity, evt)
	}
}

// activate upserts the subscription as active and cascades the plan to the
// user row and usage quotas. Counters reset to zero for the new plan.
func (m *StateMachine) activate(ctx context.Context, externalID, userID string, planType plan.Type, start, end time.Time) error {
	now := time.Now().UTC()
	sub := &Subscription{
		ID:                 uuid.New(),
		UserID:             userID,
		ExternalID:         externalID,
		Status:             StatusActive,
		PlanType:           planType,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		CancelAtPeriodEnd:  false,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := m.subs.UpsertActive(ctx, sub); err != nil {
		return errors.Join(ErrPersistenceFailure, err)
	}

	if err := m.users.SetPlan(ctx, userID, planType, UserSubActive); err != nil {
		return errors.Join(ErrPersistenceFailure, err)
	}

	if err := m.quotas.ApplyPlan(ctx, userID, planType); err != nil {
		return errors.Join(ErrPersistenceFailure, err)
	}

	m.log.InfoContext(ctx, "subscription activated",
		slog.String("user_id", userID),
		slog.String("external_subscription_id", externalID),
		slog.String("plan", string(planType)))
	return nil
}

// paymentCaptured records the transaction and, because a captured first
// payment doubles as activation, runs the activation path too. The payment
// row's unique constraint absorbs replays.
func (m *StateMachine) paymentCaptured(ctx context.Context, e PaymentCapturedEvent) error {
	capturedAt := e.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	tx := &PaymentTransaction{
		ID:                     uuid.New(),
		UserID:                 e.UserID,
		ExternalPaymentID:      e.PaymentID,
		ExternalSubscriptionID: e.SubscriptionID,
		Amount:                 e.Amount,
		Currency:               e.Currency,
		Status:                 PaymentCaptured,
		CapturedAt:             &capturedAt,
		CreatedAt:              time.Now().UTC(),
	}
	if err := m.payments.Insert(ctx, tx); err != nil {
		return errors.Join(ErrPersistenceFailure, err)
	}

	return m.activate(ctx, e.SubscriptionID, e.UserID, e.Plan, e.PeriodStart, e.PeriodEnd)
}

// renew extends the period end. The monotonic guard in ExtendPeriod makes
// out-of-order renewals converge on the latest-known truth: an earlier
// period end arriving late updates zero rows.
func (m *StateMachine) renew(ctx context.Context, e ChargedEvent) error {
	extended, err := m.subs.ExtendPeriod(ctx, e.SubscriptionID, e.PeriodEnd)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return fmt.Errorf("%w: renewal for unknown subscription %s", ErrDataIntegrity, e.SubscriptionID)
		}
		return errors.Join(ErrPersistenceFailure, err)
	}
	if !extended {
		m.log.DebugContext(ctx, "stale renewal ignored",
			slog.String("external_subscription_id", e.SubscriptionID),
			slog.Time("period_end", e.PeriodEnd))
		return nil
	}

	m.log.InfoContext(ctx, "subscription renewed",
		slog.String("external_subscription_id", e.SubscriptionID),
		slog.Time("period_end", e.PeriodEnd))
	return nil
}

// cancel flags the subscription for end-of-period cancellation. Access stays
// full until the paid period elapses; the sweeper finishes the job.
func (m *StateMachine) cancel(ctx context.Context, e CancelledEvent) error {
	marked, err := m.subs.MarkCancelAtPeriodEnd(ctx, e.SubscriptionID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return fmt.Errorf("%w: cancellation for unknown subscription %s", ErrDataIntegrity, e.SubscriptionID)
		}
		return errors.Join(ErrPersistenceFailure, err)
	}
	if !marked {
		// Already cancelled or flagged - another delivery or the sweeper won.
		return nil
	}

	m.log.InfoContext(ctx, "subscription cancellation scheduled",
		slog.String("external_subscription_id", e.SubscriptionID))
	return nil
}

// paymentFailed only records the transaction. Access is deliberately not
// revoked here so a transient processor failure does not punish the user;
// the period expiry path is the single revocation point.
func (m *StateMachine) paymentFailed(ctx context.Context, e PaymentFailedEvent) error {
	tx := &PaymentTransaction{
		ID:                     uuid.New(),
		UserID:                 e.UserID,
		ExternalPaymentID:      e.PaymentID,
		ExternalSubscriptionID: e.SubscriptionID,
		Amount:                 e.Amount,
		Currency:               e.Currency,
		Status:                 PaymentFailed,
		CreatedAt:              time.Now().UTC(),
	}
	if err := m.payments.Insert(ctx, tx); err != nil {
		return errors.Join(ErrPersistenceFailure, err)
	}

	m.log.WarnContext(ctx, "payment failed",
		slog.String("user_id", e.UserID),
		slog.String("external_payment_id", e.PaymentID))
	return nil
}

// CompleteExpiry finishes the cancellation of a claimed expired
// subscription: the user drops to the free tier, usage quotas shrink to free
// limits, and only then does the row flip to cancelled. The flip comes last
// so a failure at any earlier step leaves the claim to lapse and a later
// sweep to retry; every step is safe to replay.
func (m *StateMachine) CompleteExpiry(ctx context.Context, sub Subscription) error {
	if err := m.users.SetPlan(ctx, sub.UserID, plan.Free, UserSubInactive); err != nil {
		return errors.Join(ErrPersistenceFailure, err)
	}

	if err := m.quotas.ApplyPlan(ctx, sub.UserID, plan.Free); err != nil {
		return errors.Join(ErrPersistenceFailure, err)
	}

	// False means another writer already finished the transition.
	if _, err := m.subs.MarkExpired(ctx, sub.ExternalID); err != nil {
		return errors.Join(ErrPersistenceFailure, err)
	}

	m.log.InfoContext(ctx, "subscription expired",
		slog.String("user_id", sub.UserID),
		slog.String("external_subscription_id", sub.ExternalID),
		slog.Time("period_end", sub.CurrentPeriodEnd))
	return nil
}
