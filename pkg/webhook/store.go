package webhook

import (
	"context"
	"time"
)

// Event is one row of the webhook_events table: the single arbitration
// point for "has this exact event been handled". Everything downstream may
// assume at-most-once effective application per event_id even though
// delivery is at-least-once.
type Event struct {
	EventID      string // Processor-assigned, unique
	EventType    string
	Payload      []byte // Opaque raw body, retained for replay and review
	Processed    bool
	ProcessedAt  *time.Time
	ErrorMessage *string
	RetryCount   int
	CreatedAt    time.Time
}

// EventStore persists webhook events. The unique constraint on event_id is
// the sole idempotency guard; rows are never deleted except by retention
// policy.
type EventStore interface {
	// Insert records an event on first sight with processed=false. Returns
	// false when the event_id already exists - a duplicate delivery that the
	// caller acknowledges as success with no further side effects.
	Insert(ctx context.Context, evt *Event) (bool, error)

	// MarkProcessed flags the event handled. A non-nil errMsg parks an
	// unprocessable event (data integrity violation) for manual review
	// while still stopping redelivery.
	MarkProcessed(ctx context.Context, eventID string, errMsg *string) error

	// RecordFailure notes a transient handler failure and increments
	// retry_count; the row stays processed=false so the processor's
	// redelivery retries the same event_id.
	RecordFailure(ctx context.Context, eventID string, errMsg string) error

	// Get returns an event by ID. Returns ErrEventNotFound if absent.
	Get(ctx context.Context, eventID string) (*Event, error)
}
