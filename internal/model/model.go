// Package model defines the core domain types for the venue ticketing system.
package model

import (
	"fmt"
	"time"
)

// SeatKey identifies a seat within a venue. Two tickets with equal keys are
// the same seat.
type SeatKey struct {
	Section    string `json:"section"`
	SeatNumber int    `json:"seat_number"`
}

// String renders the key the way it is printed on a ticket, e.g. "A24".
func (k SeatKey) String() string {
	return fmt.Sprintf("%s%d", k.Section, k.SeatNumber)
}

// Less orders keys by section, then seat number.
func (k SeatKey) Less(o SeatKey) bool {
	if k.Section != o.Section {
		return k.Section < o.Section
	}
	return k.SeatNumber < o.SeatNumber
}

// Ticket is a single seat offered for sale. It is immutable once created.
type Ticket struct {
	Key   SeatKey `json:"key"`
	Code  string  `json:"code"`
	Price int64   `json:"price"`
}

// VenueSummary is a read-only view of a venue's inventory.
type VenueSummary struct {
	Owner       string `json:"owner"`
	Capacity    int    `json:"capacity"`
	TicketCount int    `json:"ticket_count"`
}

// Remaining returns how many more tickets the owner may still create.
func (v VenueSummary) Remaining() int {
	return v.Capacity - v.TicketCount
}

// Purchase is the receipt of a settled ticket sale.
type Purchase struct {
	ID          string    `json:"id"`
	Buyer       string    `json:"buyer"`
	Owner       string    `json:"owner"`
	Ticket      Ticket    `json:"ticket"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// InitVenueRequest is the payload for opening a venue.
type InitVenueRequest struct {
	Capacity int `json:"capacity"`
}

// CreateTicketRequest is the payload for stocking a ticket.
type CreateTicketRequest struct {
	Section    string `json:"section"`
	SeatNumber int    `json:"seat_number"`
	Code       string `json:"code"`
	Price      int64  `json:"price"`
}

// PurchaseRequest selects the seat a buyer wants.
type PurchaseRequest struct {
	Section    string `json:"section"`
	SeatNumber int    `json:"seat_number"`
}

// CountResponse carries the number of unsold tickets.
type CountResponse struct {
	TicketCount int `json:"ticket_count"`
}

// BalanceResponse carries a ledger balance.
type BalanceResponse struct {
	Account string `json:"account"`
	Balance int64  `json:"balance"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
