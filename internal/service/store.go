package service

import (
	"context"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/inventory"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/settlement"
)

// Store holds venues, their unsold tickets and buyers' holdings, and
// settles purchases. Errors use the inventory and ledger sentinels.
type Store interface {
	InitVenue(ctx context.Context, owner principal.Principal, capacity int) error
	CreateTicket(ctx context.Context, owner principal.Principal, t model.Ticket) error
	TicketCount(ctx context.Context, owner principal.ID) (int, error)
	Venue(ctx context.Context, owner principal.ID) (model.VenueSummary, error)
	Tickets(ctx context.Context, owner principal.ID) ([]model.Ticket, error)
	PurchaseTicket(ctx context.Context, buyer principal.Principal, owner principal.ID, key model.SeatKey) (*model.Purchase, error)
	Holdings(ctx context.Context, buyer principal.ID) ([]model.Ticket, error)
}

// MemoryStore is a Store kept in process memory, settling through a
// settlement.Engine.
type MemoryStore struct {
	inventory *inventory.Manager
	engine    *settlement.Engine
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs a MemoryStore. engine must settle against inv.
func NewMemoryStore(inv *inventory.Manager, engine *settlement.Engine) *MemoryStore {
	return &MemoryStore{inventory: inv, engine: engine}
}

func (m *MemoryStore) InitVenue(_ context.Context, owner principal.Principal, capacity int) error {
	return m.inventory.InitVenue(owner, capacity)
}

func (m *MemoryStore) CreateTicket(_ context.Context, owner principal.Principal, t model.Ticket) error {
	return m.inventory.CreateTicket(owner, t)
}

func (m *MemoryStore) TicketCount(_ context.Context, owner principal.ID) (int, error) {
	return m.inventory.TicketCount(owner)
}

func (m *MemoryStore) Venue(_ context.Context, owner principal.ID) (model.VenueSummary, error) {
	return m.inventory.Venue(owner)
}

func (m *MemoryStore) Tickets(_ context.Context, owner principal.ID) ([]model.Ticket, error) {
	return m.inventory.Tickets(owner)
}

func (m *MemoryStore) PurchaseTicket(ctx context.Context, buyer principal.Principal, owner principal.ID, key model.SeatKey) (*model.Purchase, error) {
	return m.engine.PurchaseTicket(ctx, buyer, owner, key)
}

func (m *MemoryStore) Holdings(_ context.Context, buyer principal.ID) ([]model.Ticket, error) {
	return m.engine.Holdings(buyer), nil
}
