package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ideaforge/billingcore/pkg/plan"
)

// PlanResolver returns the user's current plan type. Resolution happens on
// every check rather than at signup, so an upgrade takes effect on the next
// quota check without a migration step.
type PlanResolver func(ctx context.Context, userID string) (plan.Type, error)

// maxCatchupResets bounds the lazy reset loop; ten years of missed monthly
// boundaries is more than any realistic idle period.
const maxCatchupResets = 120

// Ledger tracks per-user monthly consumption against plan quotas.
type Ledger struct {
	store   Store
	catalog plan.Catalog
	resolve PlanResolver
	log     *slog.Logger
	now     func() time.Time
}

// LedgerOption configures optional Ledger settings.
type LedgerOption func(*Ledger)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLogger sets the ledger's logger.
func WithLogger(log *slog.Logger) LedgerOption {
	return func(l *Ledger) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLedger creates a usage ledger. Store, catalog, and resolver are
// required.
func NewLedger(store Store, catalog plan.Catalog, resolve PlanResolver, opts ...LedgerOption) (*Ledger, error) {
	if store == nil {
		panic("usage: store is required")
	}
	if resolve == nil {
		return nil, ErrNoPlanResolver
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	l := &Ledger{
		store:   store,
		catalog: catalog,
		resolve: resolve,
		log:     slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Increment consumes one unit of a quota. Returns false when the user is at
// their plan's limit; unlimited quotas always succeed and still count for
// analytics. The row is created lazily on first need.
func (l *Ledger) Increment(ctx context.Context, userID string, q plan.Quota) (bool, error) {
	planType, limit, err := l.prepare(ctx, userID, q)
	if err != nil {
		return false, err
	}

	applied, err := l.store.Increment(ctx, userID, q, limit)
	if err != nil {
		return false, errors.Join(ErrStoreFailure, err)
	}
	if !applied {
		l.log.DebugContext(ctx, "quota limit reached",
			slog.String("user_id", userID),
			slog.String("quota", string(q)),
			slog.String("plan", string(planType)))
	}
	return applied, nil
}

// Remaining reports current consumption against the limit resolved from the
// user's plan at call time.
func (l *Ledger) Remaining(ctx context.Context, userID string, q plan.Quota) (used, limit int64, err error) {
	_, limit, err = l.prepare(ctx, userID, q)
	if err != nil {
		return 0, 0, err
	}

	row, err := l.store.Get(ctx, userID)
	if err != nil {
		return 0, 0, errors.Join(ErrStoreFailure, err)
	}
	return row.Used[q], limit, nil
}

// ResetIfDue applies any pending monthly resets for the user. Each store
// call advances reset_date exactly one month, so a long idle period catches
// up boundary by boundary instead of skipping.
func (l *Ledger) ResetIfDue(ctx context.Context, userID string) error {
	now := l.now()
	for range maxCatchupResets {
		reset, err := l.store.ResetIfDue(ctx, userID, now)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			return errors.Join(ErrStoreFailure, err)
		}
		if !reset {
			return nil
		}
	}
	return nil
}

// ApplyPlan resizes the user's quotas for a plan change: counters reset to
// zero, limits become the new plan's quotas, and the reset boundary starts
// one month out. Called by the billing state machine.
func (l *Ledger) ApplyPlan(ctx context.Context, userID string, planType plan.Type) error {
	p, err := l.catalog.Get(planType)
	if err != nil {
		return err
	}

	resetDate := l.now().AddDate(0, 1, 0)
	if err := l.store.ApplyPlan(ctx, userID, planType, p.Quotas, resetDate); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}

	l.log.InfoContext(ctx, "usage limits applied",
		slog.String("user_id", userID),
		slog.String("plan", string(planType)))
	return nil
}

// prepare resolves the plan, ensures the row exists, and applies lazy
// resets, returning the call-time limit for the quota.
func (l *Ledger) prepare(ctx context.Context, userID string, q plan.Quota) (plan.Type, int64, error) {
	planType, err := l.resolve(ctx, userID)
	if err != nil {
		return "", 0, err
	}

	p, err := l.catalog.Get(planType)
	if err != nil {
		return "", 0, err
	}
	if _, ok := p.Quotas[q]; !ok {
		return "", 0, ErrUnknownQuota
	}

	if err := l.ensure(ctx, userID, p); err != nil {
		return "", 0, err
	}

	if err := l.ResetIfDue(ctx, userID); err != nil {
		return "", 0, err
	}

	return planType, p.Limit(q), nil
}

// ensure lazily creates the usage row on first need.
func (l *Ledger) ensure(ctx context.Context, userID string, p plan.Plan) error {
	_, err := l.store.Get(ctx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return errors.Join(ErrStoreFailure, err)
	}

	now := l.now()
	row := &Limits{
		UserID:    userID,
		PlanType:  p.Type,
		Used:      make(map[plan.Quota]int64, len(p.Quotas)),
		Limits:    p.Quotas,
		ResetDate: now.AddDate(0, 1, 0),
		UpdatedAt: now,
	}
	if err := l.store.Create(ctx, row); err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}
