package billing

import "errors"

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrUserNotFound         = errors.New("user not found")

	// ErrPersistenceFailure wraps transient store errors. Events failing
	// with it stay unprocessed so the provider's redelivery retries them.
	ErrPersistenceFailure = errors.New("billing store failure")

	// ErrDataIntegrity marks payloads that can never be applied: malformed
	// fields, negative period length, unknown users. Events failing with it
	// are marked processed to stop infinite redelivery.
	ErrDataIntegrity = errors.New("billing data integrity violation")

	ErrNotOnMonthlyPlan = errors.New("user is not on a monthly plan")
	ErrNoCheckoutURL    = errors.New("no checkout URL returned from provider")
	ErrMissingAPIKey    = errors.New("billing provider API key is required")
)
