// Package usage tracks per-user monthly consumption against plan quotas.
//
// Limits are resolved from the user's current plan on every check, so an
// upgrade takes effect on the next quota check without a migration step. A
// quota limit of -1 means unlimited: increments always succeed but the
// counter still grows for analytics.
//
// Monthly resets are lazy. Each read/write path checks reset_date and, when
// a boundary has passed, zeroes the counters and advances reset_date exactly
// one calendar month - no dedicated scheduler, no skipped or doubled
// boundaries.
//
// Basic usage:
//
//	ledger, err := usage.NewLedger(store, catalog, svc.PlanFor)
//
//	ok, err := ledger.Increment(ctx, userID, plan.QuotaIdeas)
//	if err != nil {
//	    // store failure
//	}
//	if !ok {
//	    // at limit: show upgrade prompt
//	}
package usage
