package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/systmms/credops/internal/authmw"
)

// NewRouter assembles the service router. Every route passes through the
// credential middleware; /healthz and /metrics are expected to be on its
// exclusion list.
func NewRouter(h *Handler, auth *authmw.Middleware) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(auth.Handler)

	r.Get("/healthz", h.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/credentials", func(r chi.Router) {
		r.Post("/", h.IssueCredential)
		r.Get("/{id}", h.GetCredential)
		r.Post("/{id}/revoke", h.RevokeCredential)
	})

	return r
}
