package inventory

import (
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
)

// Reservation holds a seat out of the purchasable set while a payment is in
// flight. Exactly one of Commit or Release takes effect; later calls are
// no-ops.
type Reservation struct {
	Ticket model.Ticket
	Owner  principal.ID

	v    *venue
	done bool
}

// Reserve moves the seat from the purchasable set into pending. Concurrent
// callers racing for the same seat see ErrTicketNotFound once it is taken.
func (m *Manager) Reserve(owner principal.ID, key model.SeatKey) (*Reservation, error) {
	v, err := m.lookup(owner)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := v.unsold[key]
	if !ok {
		return nil, ErrTicketNotFound
	}
	delete(v.unsold, key)
	v.pending[key] = t
	return &Reservation{Ticket: t, Owner: owner, v: v}, nil
}

// Commit removes the reserved seat from the venue for good.
func (r *Reservation) Commit() {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	delete(r.v.pending, r.Ticket.Key)
}

// Release puts the reserved seat back on sale.
func (r *Reservation) Release() {
	r.v.mu.Lock()
	defer r.v.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	delete(r.v.pending, r.Ticket.Key)
	r.v.unsold[r.Ticket.Key] = r.Ticket
}
