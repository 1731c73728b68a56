package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/ideaforge/billingcore/pkg/plan"
)

// Status represents the stored state of a subscription.
// Expiry is not a stored status: a cancelled subscription whose period has
// elapsed is expired, which keeps the table append-only friendly and lets
// the sweep predicate stay declarative.
type Status string

const (
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
)

// User account fields owned by this engine. Only the state machine mutates
// them; dashboard code reads them as a denormalized cache.
type User struct {
	ID                 string
	PlanType           plan.Type
	SubscriptionStatus string // "active" or "inactive" - cache of current state
	UpdatedAt          time.Time
}

// User subscription status cache values.
const (
	UserSubActive   = "active"
	UserSubInactive = "inactive"
)

// Subscription is one billing-provider subscription. A user has one
// active-intent subscription at a time but rows are never hard-deleted, so
// history is retained; a plan change arrives as a new external ID.
type Subscription struct {
	ID                 uuid.UUID
	UserID             string
	ExternalID         string // Provider's subscription ID, unique
	Status             Status
	PlanType           plan.Type
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	CancelAtPeriodEnd  bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsExpired reports whether the paid period has elapsed at the given time.
func (s *Subscription) IsExpired(now time.Time) bool {
	return now.After(s.CurrentPeriodEnd)
}

// PaymentStatus represents the final state the provider reported for a
// payment attempt. The provider settles payments on its side, so rows are
// written in their terminal state and never transition.
type PaymentStatus string

const (
	PaymentCaptured PaymentStatus = "captured"
	PaymentFailed   PaymentStatus = "failed"
)

// PaymentTransaction records one payment attempt reported by the provider.
// ExternalPaymentID is globally unique; event re-delivery must not create a
// second row.
type PaymentTransaction struct {
	ID                     uuid.UUID     `json:"id"`
	UserID                 string        `json:"user_id"`
	ExternalPaymentID      string        `json:"external_payment_id"`
	ExternalSubscriptionID string        `json:"external_subscription_id"`
	Amount                 int64         `json:"amount"` // Smallest currency unit
	Currency               string        `json:"currency"`
	Status                 PaymentStatus `json:"status"`
	CapturedAt             *time.Time    `json:"captured_at,omitempty"`
	CreatedAt              time.Time     `json:"created_at"`
}
