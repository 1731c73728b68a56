package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ideaforge/billingcore/pkg/billing"
)

// Config holds webhook endpoint configuration.
type Config struct {
	Secret          string `env:"BILLING_WEBHOOK_SECRET,required"`
	SignatureHeader string `env:"BILLING_WEBHOOK_SIGNATURE_HEADER" envDefault:"X-Billing-Signature"`
	MaxBodyBytes    int64  `env:"BILLING_WEBHOOK_MAX_BODY_BYTES" envDefault:"1048576"`
}

// EventApplier applies a decoded event to persisted state.
// Implemented by billing.StateMachine.
type EventApplier interface {
	Apply(ctx context.Context, evt billing.Event) error
}

// Receipt is the outcome of one delivery attempt: whether the event is
// acknowledged and which HTTP status to answer. 200 means handled or
// duplicate, 400 means the payload is untrusted or unattributable (no
// retry expected), 5xx asks the processor to redeliver with backoff.
type Receipt struct {
	Ack       bool
	Status    int
	EventID   string
	Duplicate bool
}

// Ingestor verifies, deduplicates, and dispatches inbound billing events.
// Its only writes are webhook_events rows; all other state is mutated by
// the EventApplier it dispatches to.
type Ingestor struct {
	secret  string
	store   EventStore
	applier EventApplier
	log     *slog.Logger
	metrics *Metrics
}

// IngestorOption configures optional Ingestor settings.
type IngestorOption func(*Ingestor)

// WithLogger sets the ingestor's logger.
func WithLogger(log *slog.Logger) IngestorOption {
	return func(i *Ingestor) {
		if log != nil {
			i.log = log
		}
	}
}

// WithMetrics attaches prometheus counters.
func WithMetrics(m *Metrics) IngestorOption {
	return func(i *Ingestor) {
		if m != nil {
			i.metrics = m
		}
	}
}

// NewIngestor creates an Ingestor. Secret, store, and applier are required.
func NewIngestor(secret string, store EventStore, applier EventApplier, opts ...IngestorOption) (*Ingestor, error) {
	if secret == "" {
		return nil, errors.Join(ErrInvalidConfiguration, errors.New("secret is required"))
	}
	if store == nil {
		panic("webhook: event store is required")
	}
	if applier == nil {
		panic("webhook: event applier is required")
	}

	i := &Ingestor{
		secret:  secret,
		store:   store,
		applier: applier,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Ingest processes one delivery. Financial state is touched at most once per
// distinct event_id regardless of delivery count: the insert into
// webhook_events is the idempotency boundary, and everything after it is
// replay-safe.
func (i *Ingestor) Ingest(ctx context.Context, rawBody []byte, signature string) Receipt {
	i.metrics.received()

	if err := VerifySignature(i.secret, rawBody, signature); err != nil {
		// Forged or corrupted payload: no state mutation, audit-logged.
		i.log.WarnContext(ctx, "webhook signature rejected",
			slog.Bool("security_event", true),
			slog.String("error", err.Error()))
		i.metrics.rejected()
		return Receipt{Ack: false, Status: http.StatusBadRequest}
	}

	evt, err := billing.ParseEvent(rawBody)
	if err != nil {
		if errors.Is(err, billing.ErrMalformedEvent) {
			// No event_id to dedupe on; nothing can be persisted.
			i.log.ErrorContext(ctx, "webhook payload unattributable",
				slog.String("error", err.Error()))
			i.metrics.rejected()
			return Receipt{Ack: false, Status: http.StatusBadRequest}
		}
		// Field-level integrity failure: the envelope still carries an
		// event_id, so park the event to stop redelivery. Re-parse just the
		// envelope to recover it.
		return i.parkUnprocessable(ctx, rawBody, err)
	}

	eventID := evt.EventID()
	created, err := i.store.Insert(ctx, &Event{
		EventID:   eventID,
		EventType: evt.EventType(),
		Payload:   rawBody,
	})
	if err != nil {
		i.log.ErrorContext(ctx, "webhook event insert failed",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()))
		return Receipt{Ack: false, Status: http.StatusServiceUnavailable, EventID: eventID}
	}
	if !created {
		existing, err := i.store.Get(ctx, eventID)
		if err != nil {
			return i.transientFailure(ctx, eventID, err)
		}
		if existing.Processed {
			// Same event_id already handled: success, no further side effects.
			i.log.DebugContext(ctx, "duplicate webhook event acknowledged",
				slog.String("event_id", eventID))
			i.metrics.duplicate()
			return Receipt{Ack: true, Status: http.StatusOK, EventID: eventID, Duplicate: true}
		}
		// Row exists but a previous attempt failed transiently: this
		// redelivery retries it. Replaying is safe because every transition
		// downstream is conditional.
	}

	return i.dispatch(ctx, eventID, evt)
}

func (i *Ingestor) dispatch(ctx context.Context, eventID string, evt billing.Event) Receipt {
	if err := i.applier.Apply(ctx, evt); err != nil {
		if errors.Is(err, billing.ErrDataIntegrity) {
			// Unprocessable forever: flag for manual review, ack to stop
			// the processor's retry loop.
			msg := err.Error()
			if markErr := i.store.MarkProcessed(ctx, eventID, &msg); markErr != nil {
				return i.transientFailure(ctx, eventID, markErr)
			}
			i.log.ErrorContext(ctx, "webhook event unprocessable, flagged for review",
				slog.String("event_id", eventID),
				slog.String("event_type", evt.EventType()),
				slog.String("error", msg))
			i.metrics.unprocessable()
			return Receipt{Ack: true, Status: http.StatusOK, EventID: eventID}
		}

		// Transient failure: leave the row unprocessed and let the
		// processor redeliver the same event_id.
		if recErr := i.store.RecordFailure(ctx, eventID, err.Error()); recErr != nil {
			i.log.ErrorContext(ctx, "failed to record webhook failure",
				slog.String("event_id", eventID),
				slog.String("error", recErr.Error()))
		}
		return i.transientFailure(ctx, eventID, err)
	}

	if err := i.store.MarkProcessed(ctx, eventID, nil); err != nil {
		// The effects applied but the bookkeeping write failed. Returning
		// 5xx makes the processor redeliver; the replay is a no-op because
		// every transition is conditional.
		return i.transientFailure(ctx, eventID, err)
	}

	i.metrics.processed(evt.EventType())
	return Receipt{Ack: true, Status: http.StatusOK, EventID: eventID}
}

// parkUnprocessable stores an integrity-violating event and marks it
// processed with the error so it is never retried but stays visible for
// manual review.
func (i *Ingestor) parkUnprocessable(ctx context.Context, rawBody []byte, cause error) Receipt {
	var env struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(rawBody, &env); err != nil || env.EventID == "" {
		i.metrics.rejected()
		return Receipt{Ack: false, Status: http.StatusBadRequest}
	}

	created, err := i.store.Insert(ctx, &Event{EventID: env.EventID, EventType: env.EventType, Payload: rawBody})
	if err != nil {
		return i.transientFailure(ctx, env.EventID, err)
	}
	if !created {
		existing, err := i.store.Get(ctx, env.EventID)
		if err != nil {
			return i.transientFailure(ctx, env.EventID, err)
		}
		if existing.Processed {
			i.metrics.duplicate()
			return Receipt{Ack: true, Status: http.StatusOK, EventID: env.EventID, Duplicate: true}
		}
	}

	msg := cause.Error()
	if err := i.store.MarkProcessed(ctx, env.EventID, &msg); err != nil {
		return i.transientFailure(ctx, env.EventID, err)
	}

	i.log.ErrorContext(ctx, "webhook event unprocessable, flagged for review",
		slog.String("event_id", env.EventID),
		slog.String("event_type", env.EventType),
		slog.String("error", msg))
	i.metrics.unprocessable()
	return Receipt{Ack: true, Status: http.StatusOK, EventID: env.EventID}
}

func (i *Ingestor) transientFailure(ctx context.Context, eventID string, err error) Receipt {
	i.log.ErrorContext(ctx, "webhook event handling failed, awaiting redelivery",
		slog.String("event_id", eventID),
		slog.String("error", err.Error()))
	i.metrics.failed()
	return Receipt{Ack: false, Status: http.StatusServiceUnavailable, EventID: eventID}
}
