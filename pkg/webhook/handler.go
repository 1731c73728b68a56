package webhook

import (
	"io"
	"net/http"
)

// Handler returns an http.HandlerFunc that reads the raw request body,
// extracts the signature header, and delegates to the ingestor. The body is
// read before any JSON decoding because signature verification covers the
// exact bytes on the wire.
func Handler(ing *Ingestor, cfg Config) http.HandlerFunc {
	if ing == nil {
		panic("webhook: ingestor is required")
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	header := cfg.SignatureHeader
	if header == "" {
		header = "X-Billing-Signature"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		if err != nil {
			http.Error(w, "failed to read request body", http.StatusBadRequest)
			return
		}
		if int64(len(body)) > maxBody {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}

		receipt := ing.Ingest(r.Context(), body, r.Header.Get(header))
		w.WriteHeader(receipt.Status)
	}
}
