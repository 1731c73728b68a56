// Package billing owns the subscription lifecycle: the data model for
// users, subscriptions, and payment transactions, the tagged-variant decode
// of processor webhook events, and the state machine that applies verified
// events to persisted state.
//
// The engine runs as multiple stateless instances with a scheduled sweep,
// so no in-process lock is ever relied on. Cross-instance coordination is
// pushed into the data store:
//
//   - unique constraints deduplicate events and payments
//   - conditional updates keyed on current row state guard transitions
//   - a monotonic comparison keeps current_period_end from moving backward
//
// Every transition is safe to replay from scratch; a conditional update
// that matches zero rows means another writer already advanced the state
// and is treated as success.
//
// Typical wiring:
//
//	subs := billing.NewPostgresSubscriptionStore(pool)
//	users := billing.NewPostgresUserStore(pool)
//	payments := billing.NewPostgresPaymentStore(pool)
//
//	sm := billing.NewStateMachine(subs, users, payments, ledger, log)
//	svc, err := billing.NewService(subs, users, payments, catalog, provider)
//
// The webhook ingestor feeds events into the state machine; the sweeper
// calls the same expiry-completion path on rows it claims.
package billing
