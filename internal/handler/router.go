package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
)

// NewRouter builds the HTTP routing tree.
func NewRouter(h *VenueHandler, auth *principal.Authenticator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(logger))          // structured access log
	r.Use(CORS)                    // permissive CORS for demo

	r.Get("/health", HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/venues", func(r chi.Router) {
		r.With(Authenticate(auth)).Post("/", h.InitVenue)
		r.With(Authenticate(auth)).Post("/tickets", h.CreateTicket)
		r.Get("/{owner}", h.GetVenue)
		r.Get("/{owner}/count", h.TicketCount)
		r.Get("/{owner}/tickets", h.ListTickets)
		r.With(Authenticate(auth)).Post("/{owner}/purchases", h.Purchase)
	})

	r.With(Authenticate(auth)).Get("/holdings", h.Holdings)
	r.Get("/accounts/{id}/balance", h.Balance)

	return r
}
