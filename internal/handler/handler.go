// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/inventory"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/ledger"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/service"
)

// VenueHandler holds all HTTP handlers for the ticketing API.
type VenueHandler struct {
	svc      *service.VenueService
	balances ledger.BalanceReader
	logger   *slog.Logger
}

// NewVenueHandler constructs a VenueHandler. balances may be nil when the
// configured ledger cannot report balances.
func NewVenueHandler(svc *service.VenueService, balances ledger.BalanceReader, logger *slog.Logger) *VenueHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VenueHandler{svc: svc, balances: balances, logger: logger}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrOutcomeUnknown):
		// Payment may still land; the seat is held until it is resolved.
		return http.StatusAccepted
	case errors.Is(err, inventory.ErrNoSuchVenue),
		errors.Is(err, inventory.ErrTicketNotFound):
		return http.StatusNotFound
	case errors.Is(err, inventory.ErrVenueAlreadyExists),
		errors.Is(err, inventory.ErrDuplicateSeat),
		errors.Is(err, inventory.ErrCapacityExceeded):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, inventory.ErrInvalidTicket),
		errors.Is(err, inventory.ErrInvalidCapacity),
		errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, principal.ErrUnauthenticated),
		errors.Is(err, principal.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ledger.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ledger.ErrRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *VenueHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func ownerParam(r *http.Request) principal.ID {
	return principal.ID(chi.URLParam(r, "owner"))
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// InitVenue handles POST /venues
// Opens a venue owned by the caller.
func (h *VenueHandler) InitVenue(w http.ResponseWriter, r *http.Request) {
	owner, _ := principal.FromContext(r.Context())

	var req model.InitVenueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	summary, err := h.svc.InitVenue(r.Context(), owner, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, summary)
}

// GetVenue handles GET /venues/{owner}
func (h *VenueHandler) GetVenue(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Venue(r.Context(), ownerParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// TicketCount handles GET /venues/{owner}/count
func (h *VenueHandler) TicketCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.TicketCount(r.Context(), ownerParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.CountResponse{TicketCount: n})
}

// ListTickets handles GET /venues/{owner}/tickets
// Returns the tickets still on sale.
func (h *VenueHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.svc.Tickets(r.Context(), ownerParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

// CreateTicket handles POST /venues/tickets
// Stocks a ticket in the caller's venue.
func (h *VenueHandler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	owner, _ := principal.FromContext(r.Context())

	var req model.CreateTicketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ticket, err := h.svc.CreateTicket(r.Context(), owner, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, ticket)
}

// Purchase handles POST /venues/{owner}/purchases
// Pays for and claims a seat on behalf of the caller.
func (h *VenueHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	buyer, _ := principal.FromContext(r.Context())

	var req model.PurchaseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	p, err := h.svc.Purchase(r.Context(), buyer, ownerParam(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// Holdings handles GET /holdings
// Returns the caller's purchased tickets in purchase order.
func (h *VenueHandler) Holdings(w http.ResponseWriter, r *http.Request) {
	buyer, _ := principal.FromContext(r.Context())

	tickets, err := h.svc.Holdings(r.Context(), buyer)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// Return an empty array rather than null for better client compatibility.
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}

// Balance handles GET /accounts/{id}/balance
func (h *VenueHandler) Balance(w http.ResponseWriter, r *http.Request) {
	if h.balances == nil {
		writeError(w, http.StatusNotImplemented, "ledger does not report balances")
		return
	}
	id := chi.URLParam(r, "id")
	balance, err := h.balances.Balance(r.Context(), principal.ID(id))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.BalanceResponse{Account: id, Balance: balance})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
