// Package holdings records the tickets each buyer has purchased.
package holdings

import (
	"sync"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
)

// Registry keeps one append-only record per buyer. Records are created on
// the buyer's first purchase.
type Registry struct {
	mu      sync.RWMutex
	records map[principal.ID]*record
}

type record struct {
	mu      sync.Mutex
	tickets []model.Ticket
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[principal.ID]*record)}
}

func (r *Registry) get(owner principal.ID) (*record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[owner]
	return rec, ok
}

func (r *Registry) getOrCreate(owner principal.ID) *record {
	if rec, ok := r.get(owner); ok {
		return rec
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[owner]; ok {
		return rec
	}
	rec := &record{}
	r.records[owner] = rec
	return rec
}

// Append adds t to the end of the owner's holdings.
func (r *Registry) Append(owner principal.ID, t model.Ticket) {
	rec := r.getOrCreate(owner)
	rec.mu.Lock()
	rec.tickets = append(rec.tickets, t)
	rec.mu.Unlock()
}

// Tickets returns a copy of the owner's holdings in purchase order, or nil
// if the owner has never purchased.
func (r *Registry) Tickets(owner principal.ID) []model.Ticket {
	rec, ok := r.get(owner)
	if !ok {
		return nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]model.Ticket, len(rec.tickets))
	copy(out, rec.tickets)
	return out
}

// Count returns the number of tickets the owner holds.
func (r *Registry) Count(owner principal.ID) int {
	rec, ok := r.get(owner)
	if !ok {
		return 0
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.tickets)
}

// Exists reports whether the owner has a holdings record.
func (r *Registry) Exists(owner principal.ID) bool {
	_, ok := r.get(owner)
	return ok
}
