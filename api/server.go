/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the form frontend

SECURITY NOTE:
  The only credential in play is the store's bearer token, configured
  server-side. The API itself has no authentication.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Dictionary routes
		r.Route("/apartments", func(r chi.Router) {
			r.Get("/", h.ListApartments)
			r.Post("/", h.CreateApartment)
		})
		r.Route("/services", func(r chi.Router) {
			r.Get("/", h.ListServices)
			r.Post("/", h.CreateService)
		})
		r.Route("/tariffs", func(r chi.Router) {
			r.Get("/", h.ListTariffs)
			r.Post("/", h.CreateTariff)
		})
		r.Route("/meters", func(r chi.Router) {
			r.Get("/", h.ListMeters)
			r.Post("/", h.CreateMeter)
		})

		// Fact routes
		r.Route("/readings", func(r chi.Router) {
			r.Get("/", h.ListReadingEntries)
			r.Put("/", h.UpsertReading)
		})
		r.Put("/heating", h.UpsertHeating)
		r.Route("/adjustments", func(r chi.Router) {
			r.Get("/", h.ListAdjustments)
			r.Post("/", h.CreateAdjustment)
		})
		r.Route("/overrides", func(r chi.Router) {
			r.Put("/", h.UpsertOverride)
			r.Delete("/", h.DeleteOverride)
		})

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/", h.GetSummary)
			r.Get("/export", h.ExportSummary)
			r.Get("/{apartmentID}", h.GetStatement)
			r.Get("/{apartmentID}/history", h.GetHistory)
		})
	})

	// Observability
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
