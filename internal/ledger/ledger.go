// Package ledger provides the balance and transfer service that purchases
// settle against.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
)

var (
	// ErrInsufficientFunds is returned when the payer cannot cover the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidAmount is returned for a negative transfer amount.
	ErrInvalidAmount = errors.New("amount must not be negative")

	// ErrTimeout is returned when a submitted transfer is not confirmed
	// within the polling bound.
	ErrTimeout = errors.New("transfer confirmation timed out")

	// ErrRejected is returned when a remote ledger refuses a transfer for a
	// reason other than insufficient funds.
	ErrRejected = errors.New("transfer rejected")

	// ErrOutcomeUnknown is returned when a transfer reached the ledger but
	// could not be confirmed either way. The funds may still move.
	ErrOutcomeUnknown = errors.New("transfer outcome unknown")
)

// UnconfirmedError reports a transfer whose outcome is unknown. Reference
// identifies it to a Resolver and is empty when the ledger never
// acknowledged the submission.
type UnconfirmedError struct {
	Reference string
	ExpiresAt time.Time
	Err       error
}

func (e *UnconfirmedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrOutcomeUnknown, e.Reference)
	}
	return fmt.Sprintf("%s: %s: %v", ErrOutcomeUnknown, e.Reference, e.Err)
}

func (e *UnconfirmedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrOutcomeUnknown}
	}
	return []error{ErrOutcomeUnknown, e.Err}
}

// Outcome is the settled state of a transfer looked up after the fact.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeApplied
	OutcomeNotApplied
)

// Resolver is implemented by ledgers that can look up an unconfirmed
// transfer by its reference.
type Resolver interface {
	Resolve(ctx context.Context, reference string) (Outcome, error)
}

// Ledger moves funds between accounts. A successful Transfer has debited
// from and credited to; a failed one has done neither. An account that was
// never funded has a zero balance.
type Ledger interface {
	Transfer(ctx context.Context, from, to principal.ID, amount int64) error
}

// BalanceReader is implemented by ledgers that can report balances.
type BalanceReader interface {
	Balance(ctx context.Context, id principal.ID) (int64, error)
}

// Funder is implemented by ledgers that accept operator deposits.
type Funder interface {
	Fund(ctx context.Context, id principal.ID, amount int64) error
}
