package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id      TEXT PRIMARY KEY,
	balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0)
);
CREATE TABLE IF NOT EXISTS transfers (
	id         UUID PRIMARY KEY,
	sender     TEXT NOT NULL,
	receiver   TEXT NOT NULL,
	amount     BIGINT NOT NULL CHECK (amount >= 0),
	created_at TIMESTAMPTZ NOT NULL
);`

// Postgres is a ledger backed by an accounts table and an append-only
// transfers journal.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres ledger.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create ledger schema: %w", err)
	}
	return nil
}

// Fund deposits amount into id, creating the account if needed.
func (p *Postgres) Fund(ctx context.Context, id principal.ID, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	_, err := p.db.Exec(ctx,
		`INSERT INTO accounts (id, balance) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET balance = accounts.balance + EXCLUDED.balance`,
		string(id), amount,
	)
	if err != nil {
		return fmt.Errorf("fund account: %w", err)
	}
	return nil
}

// Balance returns the balance of id, or zero for an unknown account.
func (p *Postgres) Balance(ctx context.Context, id principal.ID) (int64, error) {
	var balance int64
	err := p.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, string(id)).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// Transfer debits from and credits to inside one transaction.
func (p *Postgres) Transfer(ctx context.Context, from, to principal.ID, amount int64) (err error) {
	if amount < 0 {
		return ErrInvalidAmount
	}

	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = p.TransferTx(ctx, tx, from, to, amount); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TransferTx moves the funds inside tx and leaves committing to the
// caller, so other writes in tx commit or roll back with the transfer.
//
// Both account rows are locked with SELECT … FOR UPDATE in id order, so two
// transfers touching the same pair of accounts in opposite directions
// serialise instead of deadlocking, and the balance check cannot race with
// another debit.
func (p *Postgres) TransferTx(ctx context.Context, tx pgx.Tx, from, to principal.ID, amount int64) (err error) {
	if amount < 0 {
		return ErrInvalidAmount
	}

	// ── Step 1: make sure the receiving account exists. ────────────────────
	_, err = tx.Exec(ctx,
		`INSERT INTO accounts (id, balance) VALUES ($1, 0) ON CONFLICT (id) DO NOTHING`,
		string(to),
	)
	if err != nil {
		return fmt.Errorf("ensure receiver: %w", err)
	}

	// ── Step 2: lock both rows. ───────────────────────────────────────────
	rows, err := tx.Query(ctx,
		`SELECT id, balance FROM accounts
		 WHERE id = ANY($1)
		 ORDER BY id
		 FOR UPDATE`,
		[]string{string(from), string(to)},
	)
	if err != nil {
		return fmt.Errorf("lock accounts: %w", err)
	}
	balances := make(map[string]int64, 2)
	for rows.Next() {
		var id string
		var balance int64
		if err = rows.Scan(&id, &balance); err != nil {
			rows.Close()
			return fmt.Errorf("scan account: %w", err)
		}
		balances[id] = balance
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return fmt.Errorf("lock accounts: %w", err)
	}

	// ── Step 3: guard against overdraft. ──────────────────────────────────
	if balances[string(from)] < amount {
		err = ErrInsufficientFunds
		return err
	}

	// ── Step 4: move the funds and journal the transfer. ──────────────────
	if from != to {
		if _, err = tx.Exec(ctx, `UPDATE accounts SET balance = balance - $2 WHERE id = $1`, string(from), amount); err != nil {
			return fmt.Errorf("debit sender: %w", err)
		}
		if _, err = tx.Exec(ctx, `UPDATE accounts SET balance = balance + $2 WHERE id = $1`, string(to), amount); err != nil {
			return fmt.Errorf("credit receiver: %w", err)
		}
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO transfers (id, sender, receiver, amount, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), string(from), string(to), amount, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("journal transfer: %w", err)
	}
	return nil
}
