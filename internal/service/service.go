// Package service implements validation and orchestration between HTTP
// handlers and the venue store.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("invalid request")

// maxCapacity bounds a single venue.
const maxCapacity = 100_000

// VenueService orchestrates venue and purchase operations.
type VenueService struct {
	store  Store
	logger *slog.Logger
}

// NewVenueService constructs a VenueService over store.
func NewVenueService(store Store, logger *slog.Logger) *VenueService {
	if logger == nil {
		logger = slog.Default()
	}
	return &VenueService{store: store, logger: logger}
}

// InitVenue validates the request and opens a venue for owner.
func (s *VenueService) InitVenue(ctx context.Context, owner principal.Principal, req model.InitVenueRequest) (model.VenueSummary, error) {
	if req.Capacity < 0 {
		return model.VenueSummary{}, fmt.Errorf("%w: capacity must not be negative", ErrInvalidRequest)
	}
	if req.Capacity > maxCapacity {
		return model.VenueSummary{}, fmt.Errorf("%w: capacity cannot exceed 100,000", ErrInvalidRequest)
	}
	if err := s.store.InitVenue(ctx, owner, req.Capacity); err != nil {
		return model.VenueSummary{}, err
	}
	s.logger.Info("venue opened", "owner", owner.ID(), "capacity", req.Capacity)
	return s.store.Venue(ctx, owner.ID())
}

// CreateTicket normalises the request and stocks the ticket.
func (s *VenueService) CreateTicket(ctx context.Context, owner principal.Principal, req model.CreateTicketRequest) (model.Ticket, error) {
	t := model.Ticket{
		Key: model.SeatKey{
			Section:    strings.ToUpper(strings.TrimSpace(req.Section)),
			SeatNumber: req.SeatNumber,
		},
		Code:  strings.TrimSpace(req.Code),
		Price: req.Price,
	}
	if t.Key.SeatNumber <= 0 {
		return model.Ticket{}, fmt.Errorf("%w: seat_number must be a positive integer", ErrInvalidRequest)
	}

	err := s.store.CreateTicket(ctx, owner, t)
	metrics.TrackTicketCreated(err)
	if err != nil {
		return model.Ticket{}, err
	}
	metrics.AddUnsold(1)
	return t, nil
}

// TicketCount returns the number of unsold tickets in owner's venue.
func (s *VenueService) TicketCount(ctx context.Context, owner principal.ID) (int, error) {
	return s.store.TicketCount(ctx, owner)
}

// Venue returns a summary of owner's venue.
func (s *VenueService) Venue(ctx context.Context, owner principal.ID) (model.VenueSummary, error) {
	return s.store.Venue(ctx, owner)
}

// Tickets lists the tickets still on sale in owner's venue.
func (s *VenueService) Tickets(ctx context.Context, owner principal.ID) ([]model.Ticket, error) {
	return s.store.Tickets(ctx, owner)
}

// Purchase validates the seat selection and delegates settlement.
func (s *VenueService) Purchase(ctx context.Context, buyer principal.Principal, owner principal.ID, req model.PurchaseRequest) (*model.Purchase, error) {
	key := model.SeatKey{
		Section:    strings.ToUpper(strings.TrimSpace(req.Section)),
		SeatNumber: req.SeatNumber,
	}
	if key.Section == "" || key.SeatNumber <= 0 {
		return nil, fmt.Errorf("%w: section and seat_number are required", ErrInvalidRequest)
	}

	p, err := s.store.PurchaseTicket(ctx, buyer, owner, key)
	metrics.TrackPurchase(err)
	if err != nil {
		return nil, err
	}
	metrics.AddUnsold(-1)
	return p, nil
}

// Holdings returns the tickets buyer owns.
func (s *VenueService) Holdings(ctx context.Context, buyer principal.Principal) ([]model.Ticket, error) {
	if buyer.IsZero() {
		return nil, principal.ErrUnauthenticated
	}
	return s.store.Holdings(ctx, buyer.ID())
}
