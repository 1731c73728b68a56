package sweeper

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Handler returns an http.HandlerFunc exposing the sweep as an internal
// endpoint, guarded by a bearer shared secret. Infrastructure schedulers
// (Kubernetes CronJob, Cloud Scheduler) call it as an alternative to the
// in-process Runner.
func Handler(s *Sweeper, secret string) http.HandlerFunc {
	if s == nil {
		panic("sweeper: sweeper is required")
	}
	if secret == "" {
		panic("sweeper: shared secret is required")
	}

	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		summary, err := s.Sweep(r.Context())
		if err != nil {
			http.Error(w, "sweep failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(summary)
	}
}
