package ledger

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
)

// newTestPostgres connects to TEST_DATABASE_URL and skips when it is unset.
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	l := NewPostgres(pool)
	require.NoError(t, l.EnsureSchema(ctx))
	return l
}

func uniqueAccount(prefix string) principal.ID {
	return principal.ID(prefix + "-" + uuid.NewString())
}

func TestPostgres_Transfer(t *testing.T) {
	l := newTestPostgres(t)
	ctx := context.Background()
	buyer, owner := uniqueAccount("buyer"), uniqueAccount("owner")

	require.NoError(t, l.Fund(ctx, buyer, 100))
	require.NoError(t, l.Transfer(ctx, buyer, owner, 15))

	b, err := l.Balance(ctx, buyer)
	require.NoError(t, err)
	o, err := l.Balance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, int64(85), b)
	assert.Equal(t, int64(15), o)

	assert.ErrorIs(t, l.Transfer(ctx, buyer, owner, 86), ErrInsufficientFunds)
	assert.ErrorIs(t, l.Transfer(ctx, uniqueAccount("stranger"), owner, 1), ErrInsufficientFunds)

	b, _ = l.Balance(ctx, buyer)
	assert.Equal(t, int64(85), b)
}

func TestPostgres_ConcurrentTransfersNeverOverdraw(t *testing.T) {
	l := newTestPostgres(t)
	ctx := context.Background()
	buyer, owner := uniqueAccount("buyer"), uniqueAccount("owner")
	require.NoError(t, l.Fund(ctx, buyer, 30))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Transfer(ctx, buyer, owner, 10)
		}()
	}
	wg.Wait()

	b, _ := l.Balance(ctx, buyer)
	o, _ := l.Balance(ctx, owner)
	assert.Zero(t, b)
	assert.Equal(t, int64(30), o)
}
