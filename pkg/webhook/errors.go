package webhook

import "errors"

var (
	ErrInvalidConfiguration = errors.New("invalid webhook configuration")
	ErrInvalidPayload       = errors.New("invalid webhook payload")

	// ErrSignatureInvalid rejects forged or corrupted deliveries. The
	// payload is untrusted, so nothing is persisted and no retry is
	// expected from the caller's perspective.
	ErrSignatureInvalid = errors.New("webhook signature invalid")

	// ErrDuplicateEvent is not a failure: the event_id was already seen and
	// the delivery is acknowledged without side effects.
	ErrDuplicateEvent = errors.New("duplicate webhook event")

	ErrEventNotFound = errors.New("webhook event not found")
)
