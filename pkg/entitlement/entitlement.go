// Package entitlement derives the access level gating feature availability.
// Resolve is pure: it reads only persisted subscription fields and the
// caller's clock, never the payment processor, so feature-gating code can
// call it on every protected request.
package entitlement

import (
	"time"

	"github.com/ideaforge/billingcore/pkg/billing"
)

// AccessLevel is the derived permission tier.
type AccessLevel string

const (
	// AccessFull grants every write path the plan allows.
	AccessFull AccessLevel = "full"
	// AccessReadOnly keeps previously created content visible; callers must
	// deny write paths (create idea, send message, and so on).
	AccessReadOnly AccessLevel = "readonly"
	// AccessNone is the safe default for free-tier users and any ambiguous
	// or corrupt input.
	AccessNone AccessLevel = "none"
)

// Decision is the resolved access level with a short operator-facing reason.
type Decision struct {
	Level  AccessLevel `json:"level"`
	Reason string      `json:"reason"`
}

// Resolve maps a subscription row to an access level at the given instant.
// A nil subscription means no row exists (free tier). Deterministic for
// identical inputs; results must not be cached beyond request scope.
func Resolve(sub *billing.Subscription, now time.Time) Decision {
	if sub == nil {
		return Decision{Level: AccessNone, Reason: "no subscription"}
	}

	// A zero period end on a supposedly live subscription is data
	// corruption; degrade to none rather than guessing.
	if sub.CurrentPeriodEnd.IsZero() {
		return Decision{Level: AccessNone, Reason: "missing period end"}
	}

	withinPeriod := !sub.IsExpired(now)

	if sub.Status == billing.StatusActive && withinPeriod {
		return Decision{Level: AccessFull, Reason: "active within paid period"}
	}

	if (sub.Status == billing.StatusCancelled || sub.CancelAtPeriodEnd) && !withinPeriod {
		return Decision{Level: AccessReadOnly, Reason: "cancelled and period elapsed"}
	}

	return Decision{Level: AccessNone, Reason: "no entitlement for state " + string(sub.Status)}
}
