// Package settlement executes the atomic pay-then-transfer step that moves a
// ticket from a venue's inventory into a buyer's holdings.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/events"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/holdings"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/inventory"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/ledger"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
)

// Engine settles purchases against a ledger.
type Engine struct {
	inventory *inventory.Manager
	ledger    ledger.Ledger
	holdings  *holdings.Registry
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	unsettled map[string]*unsettled
}

// Unsettled describes a purchase whose payment outcome is not yet known.
// Its seat stays reserved until Reconcile resolves it.
type Unsettled struct {
	ID        string
	Buyer     principal.ID
	Owner     principal.ID
	Ticket    model.Ticket
	Reference string
	ExpiresAt time.Time
	Since     time.Time
}

type unsettled struct {
	Unsettled
	res *inventory.Reservation
}

// Option configures an Engine.
type Option func(*Engine)

// WithPublisher sets the publisher purchase events are sent to.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine constructs an Engine.
func NewEngine(inv *inventory.Manager, l ledger.Ledger, h *holdings.Registry, opts ...Option) *Engine {
	e := &Engine{
		inventory: inv,
		ledger:    l,
		holdings:  h,
		publisher: events.Nop{},
		logger:    slog.Default(),
		now:       time.Now,
		unsettled: make(map[string]*unsettled),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PurchaseTicket sells the seat at key in owner's venue to buyer.
//
// The seat is reserved before the ledger is called and only committed once
// the transfer succeeds. A failed transfer releases the reservation, so on
// any error the inventory, the buyer's holdings and both balances are left
// as they were. The exception is a transfer whose outcome the ledger could
// not confirm: its seat stays reserved, the purchase is listed by
// Unsettled, and the error wraps ledger.ErrOutcomeUnknown.
func (e *Engine) PurchaseTicket(ctx context.Context, buyer principal.Principal, owner principal.ID, key model.SeatKey) (*model.Purchase, error) {
	if buyer.IsZero() {
		return nil, principal.ErrUnauthenticated
	}

	res, err := e.inventory.Reserve(owner, key)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = e.ledger.Transfer(ctx, buyer.ID(), owner, res.Ticket.Price)
	metrics.TrackLedgerTransfer(time.Since(start))
	if err != nil {
		var unconfirmed *ledger.UnconfirmedError
		if errors.As(err, &unconfirmed) {
			u := e.hold(buyer.ID(), owner, res, unconfirmed)
			e.logger.Error("purchase payment unconfirmed, seat held for reconciliation",
				"purchase", u.ID, "buyer", buyer.ID(), "owner", owner, "seat", key.String(),
				"price", res.Ticket.Price, "reference", u.Reference, "error", err)
			return nil, fmt.Errorf("pay for %s: %w", key, err)
		}
		res.Release()
		e.logger.Warn("purchase payment failed",
			"buyer", buyer.ID(), "owner", owner, "seat", key.String(), "price", res.Ticket.Price, "error", err)
		return nil, fmt.Errorf("pay for %s: %w", key, err)
	}

	return e.complete(ctx, uuid.NewString(), buyer.ID(), owner, res), nil
}

// complete commits a paid reservation into the buyer's holdings.
func (e *Engine) complete(ctx context.Context, id string, buyer, owner principal.ID, res *inventory.Reservation) *model.Purchase {
	res.Commit()
	e.holdings.Append(buyer, res.Ticket)

	purchase := &model.Purchase{
		ID:          id,
		Buyer:       string(buyer),
		Owner:       string(owner),
		Ticket:      res.Ticket,
		PurchasedAt: e.now().UTC(),
	}
	e.logger.Info("ticket purchased",
		"purchase", purchase.ID, "buyer", purchase.Buyer, "owner", purchase.Owner,
		"seat", res.Ticket.Key.String(), "price", res.Ticket.Price)

	// The sale is final at this point; a lost event must not undo it.
	if err := e.publisher.PublishPurchase(ctx, events.NewPurchaseConfirmed(purchase)); err != nil {
		e.logger.Error("publish purchase event", "purchase", purchase.ID, "error", err)
	}
	return purchase
}

func (e *Engine) hold(buyer, owner principal.ID, res *inventory.Reservation, cause *ledger.UnconfirmedError) *unsettled {
	u := &unsettled{
		Unsettled: Unsettled{
			ID:        uuid.NewString(),
			Buyer:     buyer,
			Owner:     owner,
			Ticket:    res.Ticket,
			Reference: cause.Reference,
			ExpiresAt: cause.ExpiresAt,
			Since:     e.now().UTC(),
		},
		res: res,
	}
	e.mu.Lock()
	e.unsettled[u.ID] = u
	e.mu.Unlock()
	return u
}

// Unsettled lists the purchases awaiting a confirmed payment outcome,
// oldest first.
func (e *Engine) Unsettled() []Unsettled {
	e.mu.Lock()
	out := make([]Unsettled, 0, len(e.unsettled))
	for _, u := range e.unsettled {
		out = append(out, u.Unsettled)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Since.Before(out[j].Since) })
	return out
}

// Reconcile asks the ledger for the outcome of every unsettled purchase.
// Applied transfers are committed into holdings, transfers that did not
// apply release their seat, and the rest stay held. A transfer still
// pending after its envelope expired is treated as not applied. It returns
// the number of purchases resolved.
func (e *Engine) Reconcile(ctx context.Context) int {
	resolver, ok := e.ledger.(ledger.Resolver)
	if !ok {
		return 0
	}

	resolved := 0
	for _, u := range e.Unsettled() {
		if u.Reference == "" {
			e.logger.Warn("unsettled purchase has no ledger reference", "purchase", u.ID, "since", u.Since)
			continue
		}
		outcome, err := resolver.Resolve(ctx, u.Reference)
		if err != nil {
			e.logger.Warn("resolve unsettled purchase", "purchase", u.ID, "reference", u.Reference, "error", err)
			continue
		}
		if outcome == ledger.OutcomePending && e.now().After(u.ExpiresAt) {
			outcome = ledger.OutcomeNotApplied
		}
		if outcome == ledger.OutcomePending {
			continue
		}

		entry, ok := e.take(u.ID)
		if !ok {
			continue
		}
		if outcome == ledger.OutcomeApplied {
			e.complete(ctx, entry.ID, entry.Buyer, entry.Owner, entry.res)
			metrics.AddUnsold(-1)
		} else {
			entry.res.Release()
			e.logger.Info("unsettled purchase released", "purchase", entry.ID, "seat", entry.Ticket.Key.String())
		}
		resolved++
	}
	return resolved
}

func (e *Engine) take(id string) (*unsettled, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	u, ok := e.unsettled[id]
	if ok {
		delete(e.unsettled, id)
	}
	return u, ok
}

// Holdings returns the tickets buyer has purchased, in purchase order.
func (e *Engine) Holdings(buyer principal.ID) []model.Ticket {
	return e.holdings.Tickets(buyer)
}
