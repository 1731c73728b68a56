package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ideaforge/billingcore/pkg/plan"
	"github.com/ideaforge/billingcore/pkg/proration"
)

// Service exposes the read queries and the upgrade flow the rest of the
// product consumes. All state mutation stays inside the StateMachine.
type Service struct {
	subs     SubscriptionStore
	users    UserStore
	payments PaymentStore
	catalog  plan.Catalog
	provider CheckoutProvider
}

// NewService creates the read/upgrade service. The provider may be nil when
// the upgrade flow is disabled (e.g. in admin tooling).
func NewService(subs SubscriptionStore, users UserStore, payments PaymentStore, catalog plan.Catalog, provider CheckoutProvider) (*Service, error) {
	if subs == nil || users == nil || payments == nil {
		panic("billing: service requires all stores")
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return &Service{subs: subs, users: users, payments: payments, catalog: catalog, provider: provider}, nil
}

// Current returns the user's latest-intent subscription row for feature
// gating. Returns ErrSubscriptionNotFound for free-tier users.
func (s *Service) Current(ctx context.Context, userID string) (*Subscription, error) {
	return s.subs.CurrentByUserID(ctx, userID)
}

// Payments returns the user's billing history, newest first.
func (s *Service) Payments(ctx context.Context, userID string) ([]PaymentTransaction, error) {
	return s.payments.ListByUser(ctx, userID)
}

// UpgradeOffer is a proration quote plus the checkout link that authorizes
// the charge. The processor confirms the final amount via its own webhook.
type UpgradeOffer struct {
	Quote    proration.Quote `json:"quote"`
	Currency string          `json:"currency"`
	Checkout *CheckoutLink   `json:"checkout,omitempty"`
}

// UpgradeQuote prices a monthly-to-yearly switch for the user and creates
// the checkout session for the prorated amount's price.
func (s *Service) UpgradeQuote(ctx context.Context, userID string, opts CheckoutOptions, now time.Time) (*UpgradeOffer, error) {
	sub, err := s.subs.CurrentByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sub.PlanType != plan.ProMonthly || sub.Status != StatusActive {
		return nil, ErrNotOnMonthlyPlan
	}

	monthly := s.catalog.MustGet(plan.ProMonthly)
	yearly := s.catalog.MustGet(plan.ProYearly)

	offer := &UpgradeOffer{
		Quote:    proration.Calculate(sub.CurrentPeriodEnd, monthly.Price.Amount, yearly.Price.Amount, now),
		Currency: yearly.Price.Currency,
	}

	if s.provider == nil {
		return offer, nil
	}

	link, err := s.provider.CreateCheckoutLink(ctx, CheckoutRequest{
		PriceID:    yearly.ProviderPriceID,
		UserID:     userID,
		Email:      opts.Email,
		SuccessURL: opts.SuccessURL,
		CancelURL:  opts.CancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout link: %w", err)
	}
	offer.Checkout = link

	return offer, nil
}

// CheckoutOptions carries optional checkout session parameters.
type CheckoutOptions struct {
	Email      string
	SuccessURL string
	CancelURL  string
}

// PlanFor resolves the user's current plan type, defaulting to free when
// the user row does not exist yet. Used by the usage ledger so a plan
// upgrade takes effect on the next quota check.
func (s *Service) PlanFor(ctx context.Context, userID string) (plan.Type, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return plan.Free, nil
		}
		return "", err
	}
	if !u.PlanType.Valid() {
		return plan.Free, nil
	}
	return u.PlanType, nil
}
