package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ideaforge/billingcore/pkg/billing"
	"github.com/ideaforge/billingcore/pkg/cache"
	"github.com/ideaforge/billingcore/pkg/entitlement"
	"github.com/ideaforge/billingcore/pkg/httpserver"
	"github.com/ideaforge/billingcore/pkg/plan"
	"github.com/ideaforge/billingcore/pkg/sweeper"
	"github.com/ideaforge/billingcore/pkg/usage"
	"github.com/ideaforge/billingcore/pkg/webhook"
)

type routerDeps struct {
	cfg      appConfig
	log      *slog.Logger
	svc      *billing.Service
	ledger   *usage.Ledger
	ingestor *webhook.Ingestor
	sweep    *sweeper.Sweeper
	subCache *cache.Cache[*billing.Subscription]
	registry *prometheus.Registry
	probes   []func(context.Context) error
}

func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.HealthCheckHandler(deps.log, deps.probes...))
	r.Get("/metrics", promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{}).ServeHTTP)

	r.Post("/webhooks/billing", webhook.Handler(deps.ingestor, deps.cfg.Webhook))
	r.Post("/internal/sweep", sweeper.Handler(deps.sweep, deps.cfg.SweepSecret))

	r.Route("/v1/users/{userID}", func(r chi.Router) {
		r.Get("/subscription", getSubscription(deps.svc))
		r.Get("/entitlements", getEntitlements(deps.svc, deps.subCache, deps.log))
		r.Get("/payments", getPayments(deps.svc))
		r.Post("/upgrade", postUpgrade(deps.svc))
		r.Get("/usage", getUsage(deps.ledger))
		r.Post("/usage/{quota}", postConsume(deps.ledger))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func getSubscription(svc *billing.Service) http.HandlerFunc {
	type response struct {
		ID                 string    `json:"id"`
		Status             string    `json:"status"`
		PlanType           string    `json:"plan_type"`
		CurrentPeriodStart time.Time `json:"current_period_start"`
		CurrentPeriodEnd   time.Time `json:"current_period_end"`
		CancelAtPeriodEnd  bool      `json:"cancel_at_period_end"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := svc.Current(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			if errors.Is(err, billing.ErrSubscriptionNotFound) {
				writeError(w, http.StatusNotFound, "no subscription")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, response{
			ID:                 sub.ID.String(),
			Status:             string(sub.Status),
			PlanType:           string(sub.PlanType),
			CurrentPeriodStart: sub.CurrentPeriodStart,
			CurrentPeriodEnd:   sub.CurrentPeriodEnd,
			CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		})
	}
}

func getEntitlements(svc *billing.Service, subCache *cache.Cache[*billing.Subscription], log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		sub, err := subCache.Get(r.Context(), userID)
		if err != nil {
			if !errors.Is(err, cache.ErrMiss) {
				// Cache trouble never blocks an entitlement check.
				log.WarnContext(r.Context(), "subscription cache read failed",
					slog.String("error", err.Error()))
			}

			sub, err = svc.Current(r.Context(), userID)
			if err != nil && !errors.Is(err, billing.ErrSubscriptionNotFound) {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}

			// A missing subscription is cached as null so free-tier users do
			// not hit the store on every check.
			if err := subCache.Set(r.Context(), userID, sub); err != nil {
				log.WarnContext(r.Context(), "subscription cache write failed",
					slog.String("error", err.Error()))
			}
		}

		writeJSON(w, http.StatusOK, entitlement.Resolve(sub, time.Now()))
	}
}

func getPayments(svc *billing.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payments, err := svc.Payments(r.Context(), chi.URLParam(r, "userID"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, payments)
	}
}

func postUpgrade(svc *billing.Service) http.HandlerFunc {
	type request struct {
		Email      string `json:"email"`
		SuccessURL string `json:"success_url"`
		CancelURL  string `json:"cancel_url"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		offer, err := svc.UpgradeQuote(r.Context(), chi.URLParam(r, "userID"), billing.CheckoutOptions{
			Email:      req.Email,
			SuccessURL: req.SuccessURL,
			CancelURL:  req.CancelURL,
		}, time.Now())
		switch {
		case errors.Is(err, billing.ErrUserNotFound),
			errors.Is(err, billing.ErrSubscriptionNotFound):
			writeError(w, http.StatusNotFound, "no active subscription")
			return
		case errors.Is(err, billing.ErrNotOnMonthlyPlan):
			writeError(w, http.StatusConflict, "upgrade requires an active monthly plan")
			return
		case err != nil:
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		writeJSON(w, http.StatusOK, offer)
	}
}

func getUsage(ledger *usage.Ledger) http.HandlerFunc {
	type quotaUsage struct {
		Used  int64 `json:"used"`
		Limit int64 `json:"limit"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		out := make(map[plan.Quota]quotaUsage, len(plan.Quotas()))
		for _, q := range plan.Quotas() {
			used, limit, err := ledger.Remaining(r.Context(), userID, q)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			out[q] = quotaUsage{Used: used, Limit: limit}
		}

		writeJSON(w, http.StatusOK, out)
	}
}

func postConsume(ledger *usage.Ledger) http.HandlerFunc {
	type response struct {
		Allowed bool `json:"allowed"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		quota := plan.Quota(chi.URLParam(r, "quota"))

		allowed, err := ledger.Increment(r.Context(), userID, quota)
		if err != nil {
			if errors.Is(err, usage.ErrUnknownQuota) {
				writeError(w, http.StatusNotFound, "unknown quota")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		if !allowed {
			writeJSON(w, http.StatusTooManyRequests, response{Allowed: false})
			return
		}
		writeJSON(w, http.StatusOK, response{Allowed: true})
	}
}
