// Package httptransport assembles the public HTTP surface from the domain
// handlers. It owns nothing but wiring; business logic stays in the domain
// packages.
package httptransport

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vigil/internal/transport/http/shared"
)

// Registrar is anything that can mount routes on the root router. Every
// domain handler implements it.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// NewRouter builds the root router: operational endpoints plus every domain
// handler's routes.
func NewRouter(checks map[string]HealthCheck, registrars ...Registrar) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", handleHealth(checks))
	r.Handle("/metrics", promhttp.Handler())

	for _, registrar := range registrars {
		registrar.Register(r)
	}
	return r
}

func handleHealth(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := make(map[string]string, len(checks)+1)
		result["status"] = "ok"
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result[name] = err.Error()
				result["status"] = "degraded"
				continue
			}
			result[name] = "ok"
		}
		shared.WriteJSON(w, status, result)
	}
}
