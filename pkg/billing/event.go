package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ideaforge/billingcore/pkg/plan"
)

// ErrMalformedEvent marks payloads that cannot even be attributed to an
// event ID. They never reach the dedupe table and are rejected outright.
var ErrMalformedEvent = errors.New("malformed billing event")

// Processor event type strings as they appear on the wire.
const (
	TypeSubscriptionActivated = "subscription.activated"
	TypeSubscriptionCharged   = "subscription.charged"
	TypeSubscriptionCancelled = "subscription.cancelled"
	TypePaymentCaptured       = "payment.captured"
	TypePaymentFailed         = "payment.failed"
)

// Event is the closed set of billing events this engine understands.
// Unrecognized processor types decode into UnknownEvent rather than being
// duck-typed, so new provider events are a safe no-op until handled.
type Event interface {
	// EventID returns the processor-assigned ID used for deduplication.
	EventID() string
	// EventType returns the wire event type.
	EventType() string

	billingEvent()
}

// EventMeta carries the fields shared by every event variant.
type EventMeta struct {
	ID   string
	Type string
}

func (m EventMeta) EventID() string   { return m.ID }
func (m EventMeta) EventType() string { return m.Type }
func (m EventMeta) billingEvent()     {}

// ActivatedEvent starts or re-activates a subscription: first payment
// confirmed, period boundaries known.
type ActivatedEvent struct {
	EventMeta
	SubscriptionID string
	UserID         string
	Plan           plan.Type
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// ChargedEvent is a successful renewal carrying the new period end.
type ChargedEvent struct {
	EventMeta
	SubscriptionID string
	PeriodEnd      time.Time
}

// CancelledEvent schedules cancellation at the end of the paid period.
type CancelledEvent struct {
	EventMeta
	SubscriptionID string
}

// PaymentCapturedEvent confirms a captured payment. For the first payment of
// a subscription it doubles as activation.
type PaymentCapturedEvent struct {
	EventMeta
	SubscriptionID string
	UserID         string
	PaymentID      string
	Plan           plan.Type
	Amount         int64
	Currency       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	CapturedAt     time.Time
}

// PaymentFailedEvent records a failed payment attempt. It never revokes
// access by itself; revocation happens only through period expiry.
type PaymentFailedEvent struct {
	EventMeta
	SubscriptionID string
	UserID         string
	PaymentID      string
	Amount         int64
	Currency       string
}

// UnknownEvent is any processor event type this engine does not handle.
// The ingestor acknowledges it and marks it processed without side effects.
type UnknownEvent struct {
	EventMeta
	RawType string
}

type eventEnvelope struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

type eventData struct {
	SubscriptionID string    `json:"subscription_id"`
	UserID         string    `json:"user_id"`
	Plan           string    `json:"plan"`
	PaymentID      string    `json:"payment_id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	PeriodStart    time.Time `json:"current_period_start"`
	PeriodEnd      time.Time `json:"current_period_end"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// ParseEvent decodes a verified webhook body into an event variant.
//
// Envelope problems (no JSON, missing event_id) return ErrMalformedEvent.
// Field-level problems on known types return ErrDataIntegrity so the caller
// can park the event instead of retrying it forever.
func ParseEvent(raw []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if env.EventID == "" {
		return nil, fmt.Errorf("%w: missing event_id", ErrMalformedEvent)
	}
	if env.EventType == "" {
		return nil, fmt.Errorf("%w: missing event_type", ErrMalformedEvent)
	}

	meta := EventMeta{ID: env.EventID, Type: env.EventType}

	var data eventData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("%w: undecodable data for %s: %w", ErrDataIntegrity, env.EventType, err)
		}
	}

	switch env.EventType {
	case TypeSubscriptionActivated:
		evt := ActivatedEvent{
			EventMeta:      meta,
			SubscriptionID: data.SubscriptionID,
			UserID:         data.UserID,
			Plan:           plan.Type(data.Plan),
			PeriodStart:    data.PeriodStart,
			PeriodEnd:      data.PeriodEnd,
		}
		if err := validateActivation(evt.SubscriptionID, evt.UserID, evt.Plan, evt.PeriodStart, evt.PeriodEnd); err != nil {
			return nil, err
		}
		return evt, nil

	case TypeSubscriptionCharged:
		if data.SubscriptionID == "" {
			return nil, fmt.Errorf("%w: charged event without subscription_id", ErrDataIntegrity)
		}
		if data.PeriodEnd.IsZero() {
			return nil, fmt.Errorf("%w: charged event without current_period_end", ErrDataIntegrity)
		}
		return ChargedEvent{EventMeta: meta, SubscriptionID: data.SubscriptionID, PeriodEnd: data.PeriodEnd}, nil

	case TypeSubscriptionCancelled:
		if data.SubscriptionID == "" {
			return nil, fmt.Errorf("%w: cancelled event without subscription_id", ErrDataIntegrity)
		}
		return CancelledEvent{EventMeta: meta, SubscriptionID: data.SubscriptionID}, nil

	case TypePaymentCaptured:
		evt := PaymentCapturedEvent{
			EventMeta:      meta,
			SubscriptionID: data.SubscriptionID,
			UserID:         data.UserID,
			PaymentID:      data.PaymentID,
			Plan:           plan.Type(data.Plan),
			Amount:         data.Amount,
			Currency:       data.Currency,
			PeriodStart:    data.PeriodStart,
			PeriodEnd:      data.PeriodEnd,
			CapturedAt:     data.OccurredAt,
		}
		if evt.PaymentID == "" {
			return nil, fmt.Errorf("%w: captured payment without payment_id", ErrDataIntegrity)
		}
		if evt.Amount < 0 {
			return nil, fmt.Errorf("%w: negative payment amount %d", ErrDataIntegrity, evt.Amount)
		}
		if err := validateActivation(evt.SubscriptionID, evt.UserID, evt.Plan, evt.PeriodStart, evt.PeriodEnd); err != nil {
			return nil, err
		}
		return evt, nil

	case TypePaymentFailed:
		evt := PaymentFailedEvent{
			EventMeta:      meta,
			SubscriptionID: data.SubscriptionID,
			UserID:         data.UserID,
			PaymentID:      data.PaymentID,
			Amount:         data.Amount,
			Currency:       data.Currency,
		}
		if evt.PaymentID == "" {
			return nil, fmt.Errorf("%w: failed payment without payment_id", ErrDataIntegrity)
		}
		if evt.UserID == "" {
			return nil, fmt.Errorf("%w: failed payment without user_id", ErrDataIntegrity)
		}
		return evt, nil

	default:
		return UnknownEvent{EventMeta: meta, RawType: env.EventType}, nil
	}
}

func validateActivation(subID, userID string, p plan.Type, start, end time.Time) error {
	if subID == "" {
		return fmt.Errorf("%w: missing subscription_id", ErrDataIntegrity)
	}
	if userID == "" {
		return fmt.Errorf("%w: missing user_id", ErrDataIntegrity)
	}
	if !p.Valid() || !p.IsPaid() {
		return fmt.Errorf("%w: invalid plan %q for activation", ErrDataIntegrity, p)
	}
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: missing period boundaries", ErrDataIntegrity)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: negative period length (%s before %s)", ErrDataIntegrity, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	return nil
}
