// Package events defines the messages emitted when a purchase settles and
// the publishers that deliver them.
package events

import (
	"context"
	"time"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/model"
)

// PurchaseQueue is the durable queue purchase confirmations are sent to.
const PurchaseQueue = "ticket.purchased"

// PurchaseConfirmed is published after a ticket has moved into a buyer's
// holdings. It carries enough detail for downstream consumers to notify or
// reconcile without querying the service.
type PurchaseConfirmed struct {
	PurchaseID  string `json:"purchase_id"`
	Buyer       string `json:"buyer"`
	Owner       string `json:"owner"`
	Section     string `json:"section"`
	SeatNumber  int    `json:"seat_number"`
	Code        string `json:"code"`
	Price       int64  `json:"price"`
	ConfirmedAt string `json:"confirmed_at"`
}

// NewPurchaseConfirmed builds the event for a settled purchase.
func NewPurchaseConfirmed(p *model.Purchase) PurchaseConfirmed {
	return PurchaseConfirmed{
		PurchaseID:  p.ID,
		Buyer:       p.Buyer,
		Owner:       p.Owner,
		Section:     p.Ticket.Key.Section,
		SeatNumber:  p.Ticket.Key.SeatNumber,
		Code:        p.Ticket.Code,
		Price:       p.Ticket.Price,
		ConfirmedAt: p.PurchasedAt.UTC().Format(time.RFC3339),
	}
}

// Publisher delivers purchase events.
type Publisher interface {
	PublishPurchase(ctx context.Context, ev PurchaseConfirmed) error
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

// PublishPurchase implements Publisher.
func (Nop) PublishPurchase(context.Context, PurchaseConfirmed) error { return nil }
