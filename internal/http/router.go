// Package httpapi assembles the portal's HTTP surface: public account and
// OAuth endpoints, session-protected management endpoints, and operational
// endpoints for metrics and health.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authflowhandler "devportal/internal/authflow/handler"
	grantshandler "devportal/internal/grants/handler"
	identityhandler "devportal/internal/identity/handler"
	"devportal/internal/platform/middleware"
	registryhandler "devportal/internal/registry/handler"
	"devportal/pkg/platform/middleware/metadata"
)

// Handlers collects the per-context HTTP handlers mounted on the router.
type Handlers struct {
	Identity *identityhandler.Handler
	Registry *registryhandler.Handler
	Grants   *grantshandler.Handler
	AuthFlow *authflowhandler.Handler
}

// NewRouter wires all endpoints. Session verification applies only to the
// management routes; the OAuth endpoints authenticate through their payloads.
func NewRouter(h Handlers, sessions middleware.SessionVerifier, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestMeta)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	h.Identity.Register(r)
	h.AuthFlow.Register(r)

	r.Group(func(protected chi.Router) {
		protected.Use(middleware.RequireSession(sessions, logger))
		h.Identity.RegisterProtected(protected)
		h.Registry.Register(protected)
		h.Grants.Register(protected)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
