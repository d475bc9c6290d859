// Package httptransport assembles the public HTTP surface: middleware
// chain, health and metrics endpoints, and the per-component handlers.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	accesshandler "registra/internal/access/handler"
	identityhandler "registra/internal/identity/handler"
	"registra/internal/platform/middleware"
	"registra/internal/transport/http/shared"
	verificationhandler "registra/internal/verification/handler"
)

// Deps carries everything the router needs. HealthChecks are optional named
// probes (postgres, redis) surfaced by /healthz.
type Deps struct {
	Logger       *slog.Logger
	Validator    middleware.Validator
	Identity     *identityhandler.Handler
	Verification *verificationhandler.Handler
	Access       *accesshandler.Handler
	HealthChecks map[string]func(ctx context.Context) error
}

// NewRouter wires the full API. Registry, verification, and access routes
// require a bearer token; status transitions and tier overrides additionally
// require the admin role.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logging(d.Logger))

	r.Get("/healthz", healthHandler(d.HealthChecks))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(d.Validator))
		d.Identity.Register(r)
		d.Verification.Register(r)
		d.Access.Register(r)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdmin(d.Validator))
		d.Identity.RegisterAdmin(r)
		d.Verification.RegisterAdmin(r)
	})

	return r
}

func healthHandler(checks map[string]func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := make(map[string]string, len(checks)+1)
		result["status"] = "ok"
		for name, check := range checks {
			if err := check(ctx); err != nil {
				result[name] = err.Error()
				result["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			result[name] = "ok"
		}
		shared.WriteJSON(w, status, result)
	}
}
