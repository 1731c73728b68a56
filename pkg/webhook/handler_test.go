package webhook_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaforge/billingcore/pkg/webhook"
)

func TestHandler(t *testing.T) {
	t.Parallel()

	newHandler := func(t *testing.T, cfg webhook.Config) (http.HandlerFunc, *stubApplier) {
		t.Helper()
		applier := &stubApplier{}
		ing := newIngestor(t, webhook.NewMemoryEventStore(), applier)
		return webhook.Handler(ing, cfg), applier
	}

	t.Run("signed event is accepted", func(t *testing.T) {
		t.Parallel()
		handler, applier := newHandler(t, webhook.Config{})
		body, sig := signedBody(t, chargedPayload("evt_h1"))

		req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewReader(body))
		req.Header.Set("X-Billing-Signature", sig)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, applier.applyCalls())
	})

	t.Run("missing signature is rejected", func(t *testing.T) {
		t.Parallel()
		handler, applier := newHandler(t, webhook.Config{})
		body, _ := signedBody(t, chargedPayload("evt_h2"))

		req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewReader(body))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 0, applier.applyCalls())
	})

	t.Run("custom signature header is honored", func(t *testing.T) {
		t.Parallel()
		handler, applier := newHandler(t, webhook.Config{SignatureHeader: "X-Provider-Sig"})
		body, sig := signedBody(t, chargedPayload("evt_h3"))

		req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewReader(body))
		req.Header.Set("X-Provider-Sig", sig)
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, applier.applyCalls())
	})

	t.Run("oversized body is refused before verification", func(t *testing.T) {
		t.Parallel()
		handler, applier := newHandler(t, webhook.Config{MaxBodyBytes: 64})
		huge := strings.Repeat("x", 128)

		req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", strings.NewReader(huge))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
		assert.Equal(t, 0, applier.applyCalls())
	})

	t.Run("nil ingestor panics", func(t *testing.T) {
		t.Parallel()
		require.Panics(t, func() {
			webhook.Handler(nil, webhook.Config{})
		})
	})
}
