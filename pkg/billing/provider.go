package billing

import (
	"context"
	"time"
)

// CheckoutProvider creates hosted checkout sessions at the payment
// processor. The processor confirms the resulting charge through its own
// webhook; this engine never captures money directly.
type CheckoutProvider interface {
	CreateCheckoutLink(ctx context.Context, req CheckoutRequest) (*CheckoutLink, error)
}

// CheckoutRequest contains data needed to create a checkout session.
type CheckoutRequest struct {
	PriceID    string // Provider's price identifier from the plan catalog
	UserID     string // Opaque user ID from the auth collaborator
	Email      string // Optional billing email
	SuccessURL string // Redirect after successful payment
	CancelURL  string // Redirect if the customer backs out
}

// CheckoutLink represents a hosted checkout session.
type CheckoutLink struct {
	URL       string    `json:"url"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
