// Package domain defines the core types of the escrow service: wager
// records, the ledger port, store and cache interfaces, and the error
// taxonomy shared by every layer.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Contract constants. These are part of the wire-compatible surface and must
// not be configured independently.
const (
	// DepositWindow is how long both parties have after creation to fund
	// the vault before the wager becomes cancellable.
	DepositWindow = 30 * time.Second

	// DecisionWindow is how long the arbiter has after activation to
	// declare an outcome before the wager becomes recoverable.
	DecisionWindow = 120 * time.Second

	// WinnerPct is the winner's share of the total pool, in percent.
	WinnerPct = 95

	// FeePct is the platform share, always the complement of WinnerPct.
	FeePct = 100 - WinnerPct
)

// AccountID identifies an account on the ledger.
type AccountID string

// Winner selects which party an arbiter declares as the outcome.
type Winner string

const (
	WinnerPartyA Winner = "party_a"
	WinnerPartyB Winner = "party_b"
)

// Valid reports whether the selector names one of the two parties.
func (w Winner) Valid() bool {
	return w == WinnerPartyA || w == WinnerPartyB
}

// Resolution is the cause that moved a wager into its terminal state. It is
// empty until the wager settles, so a non-empty Resolution is equivalent to
// "settled" and the terminal state always carries how it was reached.
type Resolution string

const (
	ResolutionNone      Resolution = ""
	ResolutionWonA      Resolution = "won_a"
	ResolutionWonB      Resolution = "won_b"
	ResolutionRefunded  Resolution = "refunded"
	ResolutionCancelled Resolution = "cancelled"
)

// Phase is the derived lifecycle phase of a wager.
type Phase string

const (
	PhaseCreated         Phase = "created"
	PhasePartiallyFunded Phase = "partially_funded"
	PhaseFunded          Phase = "funded"
	PhaseSettled         Phase = "settled"
)

// Wager is the persistent record of one escrow agreement between two
// parties. Deposit flags are monotonic false-to-true; once Resolution is set
// the record is immutable except for reads.
type Wager struct {
	ID           string
	PartyA       AccountID
	PartyB       AccountID
	Arbiter      AccountID
	FeeRecipient AccountID
	Vault        AccountID
	StakeAmount  uint64
	SetupCost    uint64
	DepositedA   bool
	DepositedB   bool
	CreatedAt    time.Time
	ActivatedAt  time.Time // zero until both parties have deposited
	Resolution   Resolution
	UpdatedAt    time.Time
}

// Settled reports whether the wager has reached its terminal state.
func (w *Wager) Settled() bool {
	return w.Resolution != ResolutionNone
}

// BothDeposited reports whether both parties have funded the vault.
func (w *Wager) BothDeposited() bool {
	return w.DepositedA && w.DepositedB
}

// Phase derives the lifecycle phase from the resolution and deposit flags,
// so phase and flags can never disagree.
func (w *Wager) Phase() Phase {
	switch {
	case w.Settled():
		return PhaseSettled
	case w.BothDeposited():
		return PhaseFunded
	case w.DepositedA || w.DepositedB:
		return PhasePartiallyFunded
	default:
		return PhaseCreated
	}
}

// WinnerAccount returns the account that won the wager, if the resolution
// declared one.
func (w *Wager) WinnerAccount() (AccountID, bool) {
	switch w.Resolution {
	case ResolutionWonA:
		return w.PartyA, true
	case ResolutionWonB:
		return w.PartyB, true
	default:
		return "", false
	}
}

// DepositWindowRemaining returns how much of the deposit window is left at
// the given instant, or zero once it has elapsed or no longer applies.
func (w *Wager) DepositWindowRemaining(now time.Time) time.Duration {
	if w.Settled() || w.BothDeposited() {
		return 0
	}
	rem := DepositWindow - now.Sub(w.CreatedAt)
	if rem < 0 {
		return 0
	}
	return rem
}

// DecisionWindowRemaining returns how much of the decision window is left at
// the given instant, or zero before activation, after expiry, or after
// settlement.
func (w *Wager) DecisionWindowRemaining(now time.Time) time.Duration {
	if w.Settled() || !w.BothDeposited() || w.ActivatedAt.IsZero() {
		return 0
	}
	rem := DecisionWindow - now.Sub(w.ActivatedAt)
	if rem < 0 {
		return 0
	}
	return rem
}

// DeriveAccount deterministically derives an account identifier from a
// namespace and an ordered key list. All ledger implementations must use
// this derivation so that vault addresses agree across backends.
func DeriveAccount(namespace string, keys ...string) AccountID {
	h := sha256.New()
	h.Write([]byte(namespace))
	for _, k := range keys {
		h.Write([]byte{0}) // domain separator between keys
		h.Write([]byte(k))
	}
	return AccountID(hex.EncodeToString(h.Sum(nil)))
}

// WagerKey derives the record identifier for a party pair. The derivation is
// order-sensitive: WagerKey(a, b) and WagerKey(b, a) name different records,
// matching the upstream contract's seed ordering. Callers must agree on a
// canonical ordering out of band.
func WagerKey(namespace string, partyA, partyB AccountID) string {
	return string(DeriveAccount(namespace, "wager", string(partyA), string(partyB)))
}
