// Package webhook receives billing events from the payment processor and
// feeds them into the subscription state machine.
//
// Deliveries arrive at least once, possibly duplicated and out of order.
// The package guarantees that each distinct event_id mutates financial
// state at most once: the raw payload is HMAC-verified against the shared
// secret, then inserted into the event store with a conditional write that
// arbitrates duplicates, and only the winning insert dispatches the event.
// Duplicate deliveries and events of unknown type are acknowledged without
// side effects; transiently failing events answer 503 so the processor
// redelivers them; events that can never be applied are parked with their
// error for manual review and acknowledged to stop the retry loop.
//
// Typical wiring:
//
//	store := webhook.NewPostgresEventStore(pool)
//	ing, err := webhook.NewIngestor(cfg.Secret, store, stateMachine,
//		webhook.WithLogger(log))
//	mux.Post("/webhooks/billing", webhook.Handler(ing, cfg))
package webhook
