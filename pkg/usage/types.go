package usage

import (
	"time"

	"github.com/ideaforge/billingcore/pkg/plan"
)

// Limits is one user's usage_limits row: per-quota counters, the limits
// attached to their plan at last change, and the next reset boundary.
type Limits struct {
	UserID    string
	PlanType  plan.Type
	Used      map[plan.Quota]int64
	Limits    map[plan.Quota]int64
	ResetDate time.Time // Next monthly boundary; advances exactly one month per reset
	UpdatedAt time.Time
}

// Remaining returns how many units of a quota are left, or plan.Unlimited.
func (l *Limits) Remaining(q plan.Quota) int64 {
	limit := l.Limits[q]
	if limit == plan.Unlimited {
		return plan.Unlimited
	}
	remaining := limit - l.Used[q]
	if remaining < 0 {
		return 0
	}
	return remaining
}
