package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/holdings"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/inventory"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/ledger"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/service"
	"github.com/Shivanand-hulikatti/venue-ticketing/internal/settlement"
)

type testServer struct {
	t      *testing.T
	router http.Handler
	auth   *principal.Authenticator
	ledger *ledger.Memory
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := principal.NewAuthenticator("test-secret", time.Minute)
	inv := inventory.NewManager()
	l := ledger.NewMemory()
	engine := settlement.NewEngine(inv, l, holdings.NewRegistry(), settlement.WithLogger(logger))
	h := NewVenueHandler(service.NewVenueService(service.NewMemoryStore(inv, engine), logger), l, logger)
	return &testServer{t: t, router: NewRouter(h, auth, logger), auth: auth, ledger: l}
}

func (s *testServer) token(id principal.ID) string {
	s.t.Helper()
	tok, err := s.auth.Issue(id)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestRouter_PurchaseFlow(t *testing.T) {
	s := setupTestServer(t)
	owner := s.token("venue-owner")
	buyer := s.token("buyer")
	require.NoError(t, s.ledger.Fund(context.Background(), "buyer", 100))

	rec := s.do(http.MethodPost, "/venues", owner, model.InitVenueRequest{Capacity: 3})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for _, req := range []model.CreateTicketRequest{
		{Section: "A", SeatNumber: 24, Code: "AB43C7F", Price: 15},
		{Section: "A", SeatNumber: 25, Code: "AB43CFD", Price: 15},
		{Section: "A", SeatNumber: 26, Code: "AB13C7F", Price: 20},
	} {
		rec = s.do(http.MethodPost, "/venues/tickets", owner, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = s.do(http.MethodPost, "/venues/tickets", owner, model.CreateTicketRequest{Section: "A", SeatNumber: 27, Code: "X", Price: 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/venues/venue-owner/count", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, decode[model.CountResponse](t, rec).TicketCount)

	rec = s.do(http.MethodPost, "/venues/venue-owner/purchases", buyer, model.PurchaseRequest{Section: "A", SeatNumber: 24})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[model.Purchase](t, rec)
	assert.Equal(t, "AB43C7F", p.Ticket.Code)

	rec = s.do(http.MethodPost, "/venues/venue-owner/purchases", buyer, model.PurchaseRequest{Section: "A", SeatNumber: 24})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/accounts/buyer/balance", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(85), decode[model.BalanceResponse](t, rec).Balance)

	rec = s.do(http.MethodGet, "/venues/venue-owner/tickets", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]model.Ticket](t, rec), 2)

	rec = s.do(http.MethodGet, "/holdings", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	held := decode[[]model.Ticket](t, rec)
	require.Len(t, held, 1)
	assert.Equal(t, model.SeatKey{Section: "A", SeatNumber: 24}, held[0].Key)

	rec = s.do(http.MethodGet, "/venues/venue-owner", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.VenueSummary{Owner: "venue-owner", Capacity: 3, TicketCount: 2}, decode[model.VenueSummary](t, rec))
}

func TestRouter_ErrorMapping(t *testing.T) {
	s := setupTestServer(t)
	owner := s.token("venue-owner")
	broke := s.token("broke")

	rec := s.do(http.MethodPost, "/venues", owner, model.InitVenueRequest{Capacity: 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = s.do(http.MethodPost, "/venues/tickets", owner, model.CreateTicketRequest{Section: "A", SeatNumber: 1, Code: "X", Price: 50})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
	}{
		{"reinit venue", http.MethodPost, "/venues", owner, model.InitVenueRequest{Capacity: 5}, http.StatusConflict},
		{"unknown venue", http.MethodGet, "/venues/nobody/count", "", nil, http.StatusNotFound},
		{"insufficient funds", http.MethodPost, "/venues/venue-owner/purchases", broke, model.PurchaseRequest{Section: "A", SeatNumber: 1}, http.StatusPaymentRequired},
		{"missing token", http.MethodPost, "/venues/venue-owner/purchases", "", model.PurchaseRequest{Section: "A", SeatNumber: 1}, http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/holdings", "garbage", nil, http.StatusUnauthorized},
		{"bad body", http.MethodPost, "/venues", owner, map[string]any{"capacity": "three"}, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/venues", owner, map[string]any{"capacity": 1, "owner": "x"}, http.StatusBadRequest},
		{"invalid ticket", http.MethodPost, "/venues/tickets", owner, model.CreateTicketRequest{Section: "A", SeatNumber: 2, Code: "", Price: 1}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[model.ErrorResponse](t, rec).Error)
		})
	}

	rec = s.do(http.MethodGet, "/venues/venue-owner/count", "", nil)
	assert.Equal(t, 1, decode[model.CountResponse](t, rec).TicketCount)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := setupTestServer(t)

	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_CORSPreflight(t *testing.T) {
	s := setupTestServer(t)
	rec := s.do(http.MethodOptions, "/venues", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestBalance_Unsupported(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewVenueHandler(nil, nil, logger)
	rec := httptest.NewRecorder()
	h.Balance(rec, httptest.NewRequest(http.MethodGet, "/accounts/x/balance", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(ledger.ErrTimeout))
	assert.Equal(t, http.StatusBadGateway, statusFor(ledger.ErrRejected))
	assert.Equal(t, http.StatusAccepted, statusFor(fmt.Errorf("pay for A24: %w", &ledger.UnconfirmedError{Reference: "0xabc", Err: io.ErrUnexpectedEOF})))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
