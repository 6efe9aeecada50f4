// Package inventory owns each venue's collection of unsold tickets and
// enforces its capacity.
package inventory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
)

var (
	// ErrNoSuchVenue is returned when the owner never initialized a venue.
	ErrNoSuchVenue = errors.New("no such venue")

	// ErrVenueAlreadyExists is returned when an owner initializes twice.
	ErrVenueAlreadyExists = errors.New("venue already exists")

	// ErrCapacityExceeded is returned when the venue is already full.
	ErrCapacityExceeded = errors.New("venue capacity exceeded")

	// ErrDuplicateSeat is returned when a seat key is already stocked.
	ErrDuplicateSeat = errors.New("seat already exists")

	// ErrTicketNotFound is returned when a seat is not for sale, either
	// because it was sold or because it never existed.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrInvalidCapacity is returned for a negative capacity.
	ErrInvalidCapacity = errors.New("capacity must not be negative")

	// ErrInvalidTicket is returned for a malformed ticket.
	ErrInvalidTicket = errors.New("invalid ticket")
)

// Manager is the registry of venues, one per owner.
type Manager struct {
	mu     sync.RWMutex
	venues map[principal.ID]*venue
}

// venue guards its own ticket sets. pending holds seats reserved by an
// in-flight purchase: they are not purchasable but still count as unsold.
type venue struct {
	mu       sync.Mutex
	owner    principal.ID
	capacity int
	unsold   map[model.SeatKey]model.Ticket
	pending  map[model.SeatKey]model.Ticket
}

func (v *venue) count() int { return len(v.unsold) + len(v.pending) }

// NewManager constructs an empty Manager.
func NewManager() *Manager {
	return &Manager{venues: make(map[principal.ID]*venue)}
}

// InitVenue opens a venue for the owner with an empty inventory.
func (m *Manager) InitVenue(owner principal.Principal, capacity int) error {
	if owner.IsZero() {
		return principal.ErrUnauthenticated
	}
	if capacity < 0 {
		return ErrInvalidCapacity
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.venues[owner.ID()]; ok {
		return ErrVenueAlreadyExists
	}
	m.venues[owner.ID()] = &venue{
		owner:    owner.ID(),
		capacity: capacity,
		unsold:   make(map[model.SeatKey]model.Ticket),
		pending:  make(map[model.SeatKey]model.Ticket),
	}
	return nil
}

func (m *Manager) lookup(owner principal.ID) (*venue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.venues[owner]
	if !ok {
		return nil, ErrNoSuchVenue
	}
	return v, nil
}

// CreateTicket stocks a new ticket in the owner's venue. It never
// overwrites an existing seat.
func (m *Manager) CreateTicket(owner principal.Principal, t model.Ticket) error {
	if owner.IsZero() {
		return principal.ErrUnauthenticated
	}
	v, err := m.lookup(owner.ID())
	if err != nil {
		return err
	}
	if err := ValidateTicket(t); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.count() >= v.capacity {
		return ErrCapacityExceeded
	}
	if _, ok := v.unsold[t.Key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSeat, t.Key)
	}
	if _, ok := v.pending[t.Key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSeat, t.Key)
	}
	v.unsold[t.Key] = t
	return nil
}

// ValidateTicket rejects a ticket with an empty section or code, or a
// negative price.
func ValidateTicket(t model.Ticket) error {
	switch {
	case strings.TrimSpace(t.Key.Section) == "":
		return fmt.Errorf("%w: section is required", ErrInvalidTicket)
	case strings.TrimSpace(t.Code) == "":
		return fmt.Errorf("%w: code is required", ErrInvalidTicket)
	case t.Price < 0:
		return fmt.Errorf("%w: price must not be negative", ErrInvalidTicket)
	}
	return nil
}

// TicketCount returns the number of unsold tickets in the owner's venue.
func (m *Manager) TicketCount(owner principal.ID) (int, error) {
	v, err := m.lookup(owner)
	if err != nil {
		return 0, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.count(), nil
}

// Venue returns a summary of the owner's venue.
func (m *Manager) Venue(owner principal.ID) (model.VenueSummary, error) {
	v, err := m.lookup(owner)
	if err != nil {
		return model.VenueSummary{}, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return model.VenueSummary{
		Owner:       string(v.owner),
		Capacity:    v.capacity,
		TicketCount: v.count(),
	}, nil
}

// Tickets lists the purchasable tickets ordered by seat.
func (m *Manager) Tickets(owner principal.ID) ([]model.Ticket, error) {
	v, err := m.lookup(owner)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	tickets := make([]model.Ticket, 0, len(v.unsold))
	for _, t := range v.unsold {
		tickets = append(tickets, t)
	}
	v.mu.Unlock()

	sort.Slice(tickets, func(i, j int) bool { return tickets[i].Key.Less(tickets[j].Key) })
	return tickets, nil
}
