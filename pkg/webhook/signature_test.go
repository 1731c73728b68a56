package webhook_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaforge/billingcore/pkg/webhook"
)

func TestSignature(t *testing.T) {
	t.Parallel()

	const secret = "whsec_test_secret"
	payload := []byte(`{"event_id":"evt_1","event_type":"subscription.charged"}`)

	t.Run("round trip verifies", func(t *testing.T) {
		t.Parallel()
		sig, err := webhook.Sign(secret, payload)
		require.NoError(t, err)
		require.NotEmpty(t, sig)

		assert.NoError(t, webhook.VerifySignature(secret, payload, sig))
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		t.Parallel()
		sig, err := webhook.Sign(secret, payload)
		require.NoError(t, err)

		err = webhook.VerifySignature("other_secret", payload, sig)
		assert.ErrorIs(t, err, webhook.ErrSignatureInvalid)
	})

	t.Run("tampered payload is rejected", func(t *testing.T) {
		t.Parallel()
		sig, err := webhook.Sign(secret, payload)
		require.NoError(t, err)

		tampered := []byte(`{"event_id":"evt_1","event_type":"subscription.cancelled"}`)
		err = webhook.VerifySignature(secret, tampered, sig)
		assert.ErrorIs(t, err, webhook.ErrSignatureInvalid)
	})

	t.Run("empty signature is rejected", func(t *testing.T) {
		t.Parallel()
		err := webhook.VerifySignature(secret, payload, "")
		assert.ErrorIs(t, err, webhook.ErrSignatureInvalid)
	})

	t.Run("garbage signature is rejected", func(t *testing.T) {
		t.Parallel()
		err := webhook.VerifySignature(secret, payload, "not-hex")
		assert.ErrorIs(t, err, webhook.ErrSignatureInvalid)
	})
}
