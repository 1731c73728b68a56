// Package proration computes the credit and amount due when a subscriber
// switches billing cadence mid-cycle. All functions are pure; the caller
// supplies prices and the clock.
package proration

import (
	"math"
	"time"
)

// billingMonthDays is the flat month length used across all period math.
// The billing provider uses the same 30-day convention, so calendar-month
// lengths are intentionally not used here.
const billingMonthDays = 30

// Quote describes the outcome of a monthly-to-yearly upgrade calculation.
// Amounts are in the smallest currency unit.
type Quote struct {
	DaysRemaining int   `json:"days_remaining"` // Whole days left in the current paid period, rounded up
	UnusedCredit  int64 `json:"unused_credit"`  // Credit for the unused part of the monthly period
	AmountDue     int64 `json:"amount_due"`     // Yearly price minus credit, never negative
	Savings       int64 `json:"savings"`        // Informational: 12x monthly price minus yearly price
}

// Calculate returns the upgrade quote for switching from a monthly to a
// yearly plan at the given instant.
//
// The credit is floor(daysRemaining / 30 * monthlyPrice); a credit larger
// than the yearly price caps the amount due at zero rather than producing a
// refund.
func Calculate(currentPeriodEnd time.Time, monthlyPrice, yearlyPrice int64, now time.Time) Quote {
	days := daysRemaining(currentPeriodEnd, now)

	// Integer math floors for non-negative operands, matching the
	// floor(days/30*price) contract without float rounding surprises.
	credit := days * monthlyPrice / billingMonthDays

	due := yearlyPrice - credit
	if due < 0 {
		due = 0
	}

	return Quote{
		DaysRemaining: int(days),
		UnusedCredit:  credit,
		AmountDue:     due,
		Savings:       monthlyPrice*12 - yearlyPrice,
	}
}

func daysRemaining(periodEnd, now time.Time) int64 {
	remaining := periodEnd.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int64(math.Ceil(remaining.Hours() / 24))
}
