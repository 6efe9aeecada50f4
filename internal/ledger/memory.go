package ledger

import (
	"context"
	"sync"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
)

// Memory is an in-process ledger.
type Memory struct {
	mu       sync.Mutex
	balances map[principal.ID]int64
}

// NewMemory constructs an empty in-process ledger.
func NewMemory() *Memory {
	return &Memory{balances: make(map[principal.ID]int64)}
}

// Fund deposits amount into id.
func (m *Memory) Fund(_ context.Context, id principal.ID, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[id] += amount
	return nil
}

// Balance returns the balance of id.
func (m *Memory) Balance(_ context.Context, id principal.ID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[id], nil
}

// Transfer moves amount from one account to another.
func (m *Memory) Transfer(ctx context.Context, from, to principal.ID, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[from] < amount {
		return ErrInsufficientFunds
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	return nil
}
