package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/holdings"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/inventory"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/ledger"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal/principaltest"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/settlement"
)

func setupTestService(t *testing.T) (*VenueService, *ledger.Memory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	inv := inventory.NewManager()
	l := ledger.NewMemory()
	engine := settlement.NewEngine(inv, l, holdings.NewRegistry(), settlement.WithLogger(logger))
	return NewVenueService(NewMemoryStore(inv, engine), logger), l
}

func TestVenueService_InitVenueValidation(t *testing.T) {
	svc, _ := setupTestService(t)
	owner := principaltest.New(t, "owner")
	ctx := context.Background()

	_, err := svc.InitVenue(ctx, owner, model.InitVenueRequest{Capacity: -1})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.InitVenue(ctx, owner, model.InitVenueRequest{Capacity: 100_001})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	summary, err := svc.InitVenue(ctx, owner, model.InitVenueRequest{Capacity: 3})
	require.NoError(t, err)
	assert.Equal(t, model.VenueSummary{Owner: "owner", Capacity: 3}, summary)

	_, err = svc.InitVenue(ctx, owner, model.InitVenueRequest{Capacity: 3})
	assert.ErrorIs(t, err, inventory.ErrVenueAlreadyExists)
}

func TestVenueService_CreateTicketNormalises(t *testing.T) {
	svc, _ := setupTestService(t)
	owner := principaltest.New(t, "owner")
	ctx := context.Background()
	_, err := svc.InitVenue(ctx, owner, model.InitVenueRequest{Capacity: 3})
	require.NoError(t, err)

	ticket, err := svc.CreateTicket(ctx, owner, model.CreateTicketRequest{Section: " a ", SeatNumber: 24, Code: " AB43C7F ", Price: 15})
	require.NoError(t, err)
	assert.Equal(t, model.Ticket{Key: model.SeatKey{Section: "A", SeatNumber: 24}, Code: "AB43C7F", Price: 15}, ticket)

	_, err = svc.CreateTicket(ctx, owner, model.CreateTicketRequest{Section: "A", SeatNumber: 0, Code: "X", Price: 1})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = svc.CreateTicket(ctx, owner, model.CreateTicketRequest{Section: "A", SeatNumber: 24, Code: "DUP", Price: 1})
	assert.ErrorIs(t, err, inventory.ErrDuplicateSeat)
}

func TestVenueService_Purchase(t *testing.T) {
	svc, l := setupTestService(t)
	owner := principaltest.New(t, "owner")
	buyer := principaltest.New(t, "buyer")
	ctx := context.Background()
	_, err := svc.InitVenue(ctx, owner, model.InitVenueRequest{Capacity: 3})
	require.NoError(t, err)
	_, err = svc.CreateTicket(ctx, owner, model.CreateTicketRequest{Section: "A", SeatNumber: 24, Code: "AB43C7F", Price: 15})
	require.NoError(t, err)
	require.NoError(t, l.Fund(ctx, buyer.ID(), 100))

	_, err = svc.Purchase(ctx, buyer, owner.ID(), model.PurchaseRequest{Section: "", SeatNumber: 24})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	p, err := svc.Purchase(ctx, buyer, owner.ID(), model.PurchaseRequest{Section: "a", SeatNumber: 24})
	require.NoError(t, err)
	assert.Equal(t, "AB43C7F", p.Ticket.Code)

	count, err := svc.TicketCount(ctx, owner.ID())
	require.NoError(t, err)
	assert.Zero(t, count)
	held, err := svc.Holdings(ctx, buyer)
	require.NoError(t, err)
	assert.Len(t, held, 1)
}

// MockStore lets tests observe what the service hands to its store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) InitVenue(ctx context.Context, owner principal.Principal, capacity int) error {
	return m.Called(ctx, owner, capacity).Error(0)
}

func (m *MockStore) CreateTicket(ctx context.Context, owner principal.Principal, t model.Ticket) error {
	return m.Called(ctx, owner, t).Error(0)
}

func (m *MockStore) TicketCount(ctx context.Context, owner principal.ID) (int, error) {
	args := m.Called(ctx, owner)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) Venue(ctx context.Context, owner principal.ID) (model.VenueSummary, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).(model.VenueSummary), args.Error(1)
}

func (m *MockStore) Tickets(ctx context.Context, owner principal.ID) ([]model.Ticket, error) {
	args := m.Called(ctx, owner)
	tickets, _ := args.Get(0).([]model.Ticket)
	return tickets, args.Error(1)
}

func (m *MockStore) PurchaseTicket(ctx context.Context, buyer principal.Principal, owner principal.ID, key model.SeatKey) (*model.Purchase, error) {
	args := m.Called(ctx, buyer, owner, key)
	p, _ := args.Get(0).(*model.Purchase)
	return p, args.Error(1)
}

func (m *MockStore) Holdings(ctx context.Context, buyer principal.ID) ([]model.Ticket, error) {
	args := m.Called(ctx, buyer)
	tickets, _ := args.Get(0).([]model.Ticket)
	return tickets, args.Error(1)
}

func TestVenueService_DelegatesNormalisedRequests(t *testing.T) {
	store := &MockStore{}
	svc := NewVenueService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	owner := principaltest.New(t, "owner")
	buyer := principaltest.New(t, "buyer")
	ctx := context.Background()
	key := model.SeatKey{Section: "B", SeatNumber: 7}

	store.On("CreateTicket", ctx, owner, model.Ticket{Key: key, Code: "Q1", Price: 9}).Return(nil).Once()
	store.On("PurchaseTicket", ctx, buyer, owner.ID(), key).Return(nil, ledger.ErrInsufficientFunds).Once()

	_, err := svc.CreateTicket(ctx, owner, model.CreateTicketRequest{Section: " b", SeatNumber: 7, Code: "Q1 ", Price: 9})
	require.NoError(t, err)
	_, err = svc.Purchase(ctx, buyer, owner.ID(), model.PurchaseRequest{Section: "b ", SeatNumber: 7})
	assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)

	_, err = svc.Holdings(ctx, principal.Principal{})
	assert.ErrorIs(t, err, principal.ErrUnauthenticated)
	store.AssertExpectations(t)
}
