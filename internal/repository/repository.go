// Package repository implements the Postgres-backed venue store.
// It uses pgx directly (no ORM). Venues, tickets and holdings share a
// database with the ledger tables so a purchase moves the ticket and the
// funds in one transaction.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/events"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/inventory"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/ledger"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
)

const schema = `
CREATE TABLE IF NOT EXISTS venues (
	owner      TEXT PRIMARY KEY,
	capacity   INTEGER NOT NULL CHECK (capacity >= 0),
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS tickets (
	owner       TEXT NOT NULL REFERENCES venues (owner),
	section     TEXT NOT NULL,
	seat_number INTEGER NOT NULL,
	code        TEXT NOT NULL,
	price       BIGINT NOT NULL CHECK (price >= 0),
	PRIMARY KEY (owner, section, seat_number)
);
CREATE TABLE IF NOT EXISTS holdings (
	seq          BIGSERIAL PRIMARY KEY,
	purchase_id  UUID NOT NULL UNIQUE,
	buyer        TEXT NOT NULL,
	owner        TEXT NOT NULL,
	section      TEXT NOT NULL,
	seat_number  INTEGER NOT NULL,
	code         TEXT NOT NULL,
	price        BIGINT NOT NULL,
	purchased_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS holdings_buyer_idx ON holdings (buyer, seq);`

// VenueRepository handles persistence for venues, their unsold tickets and
// buyers' holdings.
type VenueRepository struct {
	db        *pgxpool.Pool
	ledger    *ledger.Postgres
	publisher events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewVenueRepository constructs a VenueRepository settling purchases
// against l, which must share db.
func NewVenueRepository(db *pgxpool.Pool, l *ledger.Postgres, publisher events.Publisher, logger *slog.Logger) *VenueRepository {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VenueRepository{db: db, ledger: l, publisher: publisher, logger: logger, now: time.Now}
}

// EnsureSchema creates the venue tables if they do not exist.
func (r *VenueRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create venue schema: %w", err)
	}
	return nil
}

// InitVenue inserts the owner's venue record.
func (r *VenueRepository) InitVenue(ctx context.Context, owner principal.Principal, capacity int) error {
	if owner.IsZero() {
		return principal.ErrUnauthenticated
	}
	if capacity < 0 {
		return inventory.ErrInvalidCapacity
	}

	tag, err := r.db.Exec(ctx,
		`INSERT INTO venues (owner, capacity, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (owner) DO NOTHING`,
		string(owner.ID()), capacity, r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert venue: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return inventory.ErrVenueAlreadyExists
	}
	return nil
}

// CreateTicket stocks a ticket in the owner's venue.
//
// The venue row is locked with SELECT … FOR UPDATE before the ticket count
// is read, so concurrent creators serialise and cannot both fill the last
// free slot.
func (r *VenueRepository) CreateTicket(ctx context.Context, owner principal.Principal, t model.Ticket) (err error) {
	if owner.IsZero() {
		return principal.ErrUnauthenticated
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// ── Step 1: Lock the venue row. ────────────────────────────────────────
	var capacity int
	err = tx.QueryRow(ctx,
		`SELECT capacity FROM venues WHERE owner = $1 FOR UPDATE`,
		string(owner.ID()),
	).Scan(&capacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = inventory.ErrNoSuchVenue
			return err
		}
		return fmt.Errorf("lock venue: %w", err)
	}

	if err = inventory.ValidateTicket(t); err != nil {
		return err
	}

	// ── Step 2: Capacity check. ────────────────────────────────────────────
	var count int
	if err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE owner = $1`, string(owner.ID())).Scan(&count); err != nil {
		return fmt.Errorf("count tickets: %w", err)
	}
	if count >= capacity {
		err = inventory.ErrCapacityExceeded
		return err
	}

	// ── Step 3: Insert, never overwriting an existing seat. ────────────────
	tag, err := tx.Exec(ctx,
		`INSERT INTO tickets (owner, section, seat_number, code, price)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (owner, section, seat_number) DO NOTHING`,
		string(owner.ID()), t.Key.Section, t.Key.SeatNumber, t.Code, t.Price,
	)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = fmt.Errorf("%w: %s", inventory.ErrDuplicateSeat, t.Key)
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TicketCount returns the number of unsold tickets in the owner's venue.
func (r *VenueRepository) TicketCount(ctx context.Context, owner principal.ID) (int, error) {
	summary, err := r.Venue(ctx, owner)
	if err != nil {
		return 0, err
	}
	return summary.TicketCount, nil
}

// Venue returns a summary of the owner's venue or inventory.ErrNoSuchVenue.
func (r *VenueRepository) Venue(ctx context.Context, owner principal.ID) (model.VenueSummary, error) {
	summary := model.VenueSummary{Owner: string(owner)}
	err := r.db.QueryRow(ctx,
		`SELECT v.capacity, (SELECT COUNT(*) FROM tickets t WHERE t.owner = v.owner)
		 FROM venues v WHERE v.owner = $1`,
		string(owner),
	).Scan(&summary.Capacity, &summary.TicketCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.VenueSummary{}, inventory.ErrNoSuchVenue
		}
		return model.VenueSummary{}, fmt.Errorf("get venue: %w", err)
	}
	return summary, nil
}

// Tickets lists the unsold tickets ordered by seat.
func (r *VenueRepository) Tickets(ctx context.Context, owner principal.ID) ([]model.Ticket, error) {
	if _, err := r.Venue(ctx, owner); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx,
		`SELECT section, seat_number, code, price
		 FROM tickets
		 WHERE owner = $1
		 ORDER BY section, seat_number`,
		string(owner),
	)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()

	tickets := []model.Ticket{}
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.Key.Section, &t.Key.SeatNumber, &t.Code, &t.Price); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// UnsoldTotal counts unsold tickets across all venues.
func (r *VenueRepository) UnsoldTotal(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tickets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unsold tickets: %w", err)
	}
	return n, nil
}

// PurchaseTicket sells the seat at key in owner's venue to buyer.
//
// Removing the ticket, paying the owner and recording the holding run in
// one transaction: either all three commit or none do. Deleting the ticket
// row first locks it, so a concurrent buyer of the same seat blocks and
// then finds it gone.
func (r *VenueRepository) PurchaseTicket(ctx context.Context, buyer principal.Principal, owner principal.ID, key model.SeatKey) (p *model.Purchase, err error) {
	if buyer.IsZero() {
		return nil, principal.ErrUnauthenticated
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// ── Step 1: Take the ticket off sale. ──────────────────────────────────
	t := model.Ticket{Key: key}
	err = tx.QueryRow(ctx,
		`DELETE FROM tickets
		 WHERE owner = $1 AND section = $2 AND seat_number = $3
		 RETURNING code, price`,
		string(owner), key.Section, key.SeatNumber,
	).Scan(&t.Code, &t.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = r.missing(ctx, tx, owner)
			return nil, err
		}
		return nil, fmt.Errorf("remove ticket: %w", err)
	}

	// ── Step 2: Pay the owner. ─────────────────────────────────────────────
	start := time.Now()
	err = r.ledger.TransferTx(ctx, tx, buyer.ID(), owner, t.Price)
	metrics.TrackLedgerTransfer(time.Since(start))
	if err != nil {
		r.logger.Warn("purchase payment failed",
			"buyer", buyer.ID(), "owner", owner, "seat", key.String(), "price", t.Price, "error", err)
		return nil, fmt.Errorf("pay for %s: %w", key, err)
	}

	// ── Step 3: Record the holding. ────────────────────────────────────────
	purchase := &model.Purchase{
		ID:          uuid.New().String(),
		Buyer:       string(buyer.ID()),
		Owner:       string(owner),
		Ticket:      t,
		PurchasedAt: r.now().UTC(),
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO holdings (purchase_id, buyer, owner, section, seat_number, code, price, purchased_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		purchase.ID, purchase.Buyer, purchase.Owner, key.Section, key.SeatNumber, t.Code, t.Price, purchase.PurchasedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert holding: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	r.logger.Info("ticket purchased",
		"purchase", purchase.ID, "buyer", purchase.Buyer, "owner", purchase.Owner,
		"seat", key.String(), "price", t.Price)
	if perr := r.publisher.PublishPurchase(ctx, events.NewPurchaseConfirmed(purchase)); perr != nil {
		r.logger.Error("publish purchase event", "purchase", purchase.ID, "error", perr)
	}
	return purchase, nil
}

// missing tells a sold or unknown seat apart from an unknown venue.
func (r *VenueRepository) missing(ctx context.Context, tx pgx.Tx, owner principal.ID) error {
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM venues WHERE owner = $1)`, string(owner)).Scan(&exists); err != nil {
		return fmt.Errorf("check venue: %w", err)
	}
	if !exists {
		return inventory.ErrNoSuchVenue
	}
	return inventory.ErrTicketNotFound
}

// Holdings returns the tickets buyer has purchased, in purchase order.
func (r *VenueRepository) Holdings(ctx context.Context, buyer principal.ID) ([]model.Ticket, error) {
	rows, err := r.db.Query(ctx,
		`SELECT section, seat_number, code, price
		 FROM holdings
		 WHERE buyer = $1
		 ORDER BY seq`,
		string(buyer),
	)
	if err != nil {
		return nil, fmt.Errorf("list holdings: %w", err)
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.Key.Section, &t.Key.SeatNumber, &t.Code, &t.Price); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}
