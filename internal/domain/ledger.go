package domain

import (
	"context"
	"time"
)

// Ledger is the narrow port over the external account-and-transfer
// substrate. The settlement state machine depends only on this interface;
// it never observes how accounts are stored or how transfers are serialized.
//
// Implementations must guarantee that Transfer is atomic: either the full
// amount moves or nothing does.
type Ledger interface {
	// Derive returns the deterministic sub-account for a namespace and key
	// list. Implementations must use domain.DeriveAccount.
	Derive(namespace string, keys ...string) AccountID

	// Balance returns the current balance of an account. Accounts that have
	// never been credited have a zero balance.
	Balance(ctx context.Context, id AccountID) (uint64, error)

	// Transfer atomically moves amount from one account to another. It
	// returns ErrInsufficientFunds when the source balance is too low.
	Transfer(ctx context.Context, from, to AccountID, amount uint64) error

	// SetupCost is the fixed storage overhead the ledger charges per record,
	// reported at creation time and retained in the vault as its minimum
	// reserve.
	SetupCost() uint64

	// Now returns the ledger's monotonic wall-clock time.
	Now() time.Time
}
