package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/events"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/inventory"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/ledger"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal/principaltest"
)

type testDB struct {
	pool   *pgxpool.Pool
	ledger *ledger.Postgres
}

// setupTestDB connects to TEST_DATABASE_URL and skips when it is unset.
func setupTestDB(t *testing.T) *testDB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	l := ledger.NewPostgres(pool)
	require.NoError(t, l.EnsureSchema(ctx))
	require.NoError(t, newRepo(pool, l).EnsureSchema(ctx))
	return &testDB{pool: pool, ledger: l}
}

func newRepo(pool *pgxpool.Pool, l *ledger.Postgres) *VenueRepository {
	return NewVenueRepository(pool, l, events.Nop{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func unique(t *testing.T, prefix string) principal.Principal {
	return principaltest.New(t, principal.ID(prefix+"-"+uuid.NewString()))
}

var (
	seatA24 = model.SeatKey{Section: "A", SeatNumber: 24}
	seatA25 = model.SeatKey{Section: "A", SeatNumber: 25}
	seatA26 = model.SeatKey{Section: "A", SeatNumber: 26}
)

// stock opens a capacity-3 venue holding A24, A25 and A26.
func stock(t *testing.T, r *VenueRepository, owner principal.Principal) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.InitVenue(ctx, owner, 3))
	require.NoError(t, r.CreateTicket(ctx, owner, model.Ticket{Key: seatA24, Code: "AB43C7F", Price: 15}))
	require.NoError(t, r.CreateTicket(ctx, owner, model.Ticket{Key: seatA25, Code: "AB43CFD", Price: 15}))
	require.NoError(t, r.CreateTicket(ctx, owner, model.Ticket{Key: seatA26, Code: "AB13C7F", Price: 20}))
}

func TestVenueRepository_Inventory(t *testing.T) {
	db := setupTestDB(t)
	r := newRepo(db.pool, db.ledger)
	ctx := context.Background()
	owner := unique(t, "owner")
	stock(t, r, owner)

	assert.ErrorIs(t, r.InitVenue(ctx, owner, 5), inventory.ErrVenueAlreadyExists)
	assert.ErrorIs(t, r.CreateTicket(ctx, owner, model.Ticket{Key: seatA24, Code: "DUP", Price: 1}), inventory.ErrCapacityExceeded)

	summary, err := r.Venue(ctx, owner.ID())
	require.NoError(t, err)
	assert.Equal(t, model.VenueSummary{Owner: string(owner.ID()), Capacity: 3, TicketCount: 3}, summary)

	tickets, err := r.Tickets(ctx, owner.ID())
	require.NoError(t, err)
	require.Len(t, tickets, 3)
	assert.Equal(t, seatA24, tickets[0].Key)
	assert.Equal(t, seatA26, tickets[2].Key)
}

func TestVenueRepository_CreateTicketErrors(t *testing.T) {
	db := setupTestDB(t)
	r := newRepo(db.pool, db.ledger)
	ctx := context.Background()
	owner := unique(t, "owner")
	require.NoError(t, r.InitVenue(ctx, owner, 2))
	require.NoError(t, r.CreateTicket(ctx, owner, model.Ticket{Key: seatA24, Code: "X", Price: 1}))

	tests := []struct {
		name     string
		owner    principal.Principal
		ticket   model.Ticket
		expected error
	}{
		{"duplicate seat", owner, model.Ticket{Key: seatA24, Code: "Y", Price: 1}, inventory.ErrDuplicateSeat},
		{"invalid ticket", owner, model.Ticket{Key: seatA25, Code: "", Price: 1}, inventory.ErrInvalidTicket},
		{"missing venue before invalid ticket", unique(t, "stranger"), model.Ticket{Key: seatA25, Code: ""}, inventory.ErrNoSuchVenue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, r.CreateTicket(ctx, tt.owner, tt.ticket), tt.expected)
		})
	}

	count, err := r.TicketCount(ctx, owner.ID())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestVenueRepository_PurchaseIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	r := newRepo(db.pool, db.ledger)
	ctx := context.Background()
	owner, buyer := unique(t, "owner"), unique(t, "buyer")
	stock(t, r, owner)
	require.NoError(t, db.ledger.Fund(ctx, buyer.ID(), 30))

	p, err := r.PurchaseTicket(ctx, buyer, owner.ID(), seatA24)
	require.NoError(t, err)
	assert.Equal(t, "AB43C7F", p.Ticket.Code)

	_, err = r.PurchaseTicket(ctx, buyer, owner.ID(), seatA24)
	assert.ErrorIs(t, err, inventory.ErrTicketNotFound)

	// 15 left, A26 costs 20: the ticket delete must roll back with the transfer.
	_, err = r.PurchaseTicket(ctx, buyer, owner.ID(), seatA26)
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	_, err = r.PurchaseTicket(ctx, buyer, "nobody-"+principal.ID(uuid.NewString()), seatA24)
	assert.ErrorIs(t, err, inventory.ErrNoSuchVenue)

	tickets, err := r.Tickets(ctx, owner.ID())
	require.NoError(t, err)
	assert.Len(t, tickets, 2)
	held, err := r.Holdings(ctx, buyer.ID())
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, seatA24, held[0].Key)

	b, _ := db.ledger.Balance(ctx, buyer.ID())
	o, _ := db.ledger.Balance(ctx, owner.ID())
	assert.Equal(t, int64(15), b)
	assert.Equal(t, int64(15), o)
}

func TestVenueRepository_StateSurvivesReopen(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	owner, buyer := unique(t, "owner"), unique(t, "buyer")
	first := newRepo(db.pool, db.ledger)
	stock(t, first, owner)
	require.NoError(t, db.ledger.Fund(ctx, buyer.ID(), 100))
	_, err := first.PurchaseTicket(ctx, buyer, owner.ID(), seatA25)
	require.NoError(t, err)

	reopened := newRepo(db.pool, ledger.NewPostgres(db.pool))
	count, err := reopened.TicketCount(ctx, owner.ID())
	require.NoError(t, err)
	held, err := reopened.Holdings(ctx, buyer.ID())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Len(t, held, 1)
	assert.Equal(t, 3, count+len(held))
}

func TestVenueRepository_ConcurrentPurchasesSameSeat(t *testing.T) {
	db := setupTestDB(t)
	r := newRepo(db.pool, db.ledger)
	ctx := context.Background()
	owner := unique(t, "owner")
	stock(t, r, owner)

	const n = 10
	buyers := make([]principal.Principal, n)
	for i := range buyers {
		buyers[i] = unique(t, "buyer")
		require.NoError(t, db.ledger.Fund(ctx, buyers[i].ID(), 100))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		notFound int
	)
	for _, b := range buyers {
		wg.Add(1)
		go func(b principal.Principal) {
			defer wg.Done()
			_, err := r.PurchaseTicket(ctx, b, owner.ID(), seatA25)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, inventory.ErrTicketNotFound):
				notFound++
			}
		}(b)
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, n-1, notFound)

	count, _ := r.TicketCount(ctx, owner.ID())
	held := 0
	for _, b := range buyers {
		tickets, err := r.Holdings(ctx, b.ID())
		require.NoError(t, err)
		held += len(tickets)
	}
	assert.Equal(t, 3, count+held)
	o, _ := db.ledger.Balance(ctx, owner.ID())
	assert.Equal(t, int64(15), o)
}
