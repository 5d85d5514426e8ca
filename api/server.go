/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Zap logger: Structured request logging
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/credits/*      Credit lifecycle, linking, history
  /api/passengers/*   Unlink and payment status
  /api/trips/*        Roster and bus vacancies
  /api/events/*       Dashboard polling
  /metrics            Prometheus scrape endpoint
  /healthz            Liveness probe

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rotaviagens/backoffice/observability"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, logger *zap.Logger, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Credit routes
		r.Route("/credits", func(r chi.Router) {
			r.Get("/", h.ListCredits)
			r.Post("/", h.CreateCredit)
			r.Get("/{id}", h.GetCredit)
			r.Get("/{id}/history", h.GetCreditHistory)
			r.Get("/{id}/reconcile", h.ReconcileCredit)
			r.Post("/{id}/adjust", h.AdjustCredit)
			r.Post("/{id}/refund", h.RefundCredit)
			r.Post("/{id}/link", h.LinkCredit)
			r.Delete("/{id}", h.DeleteCredit)
		})

		// Passenger routes
		r.Route("/passengers", func(r chi.Router) {
			r.Get("/{id}/payment-status", h.GetPaymentStatus)
			r.Post("/{id}/unlink", h.UnlinkPassenger)
		})

		// Trip routes
		r.Route("/trips", func(r chi.Router) {
			r.Get("/{id}/passengers", h.ListTripPassengers)
			r.Get("/{id}/buses/vacancies", h.ListBusVacancies)
		})

		// Event routes
		r.Get("/events/latest", h.LatestEvent)
	})

	// Operational endpoints
	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.HandlerFor(h.Metrics.Registry, promhttp.HandlerOpts{}))

	return r
}
