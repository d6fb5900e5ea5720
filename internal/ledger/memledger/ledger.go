// Package memledger provides an in-process implementation of the ledger
// port: mutex-guarded balances, atomic transfers, and an injectable clock.
// It backs the dev/test ledger backend; production deployments use pgledger.
package memledger

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/escrowlabs/escrowd/internal/domain"
)

// Config holds construction parameters for the in-memory ledger.
type Config struct {
	// SetupCost is the fixed per-record storage overhead the ledger reports.
	SetupCost uint64
	// Clock overrides the wall clock; nil means time.Now. Tests use this to
	// drive the deposit and decision windows.
	Clock func() time.Time
}

// Ledger is an in-memory domain.Ledger.
type Ledger struct {
	mu        sync.Mutex
	balances  map[domain.AccountID]uint64
	setupCost uint64
	clock     func() time.Time
}

// New creates an empty in-memory ledger.
func New(cfg Config) *Ledger {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{
		balances:  make(map[domain.AccountID]uint64),
		setupCost: cfg.SetupCost,
		clock:     clock,
	}
}

// Derive returns the deterministic sub-account for the namespace and keys.
func (l *Ledger) Derive(namespace string, keys ...string) domain.AccountID {
	return domain.DeriveAccount(namespace, keys...)
}

// Balance returns the current balance; unknown accounts hold zero.
func (l *Ledger) Balance(_ context.Context, id domain.AccountID) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[id], nil
}

// Transfer atomically moves amount between accounts. It returns
// domain.ErrInsufficientFunds without mutating anything when the source
// balance is too low.
func (l *Ledger) Transfer(_ context.Context, from, to domain.AccountID, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return domain.ErrInsufficientFunds
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// SetupCost reports the fixed per-record storage overhead.
func (l *Ledger) SetupCost() uint64 {
	return l.setupCost
}

// Now returns the ledger clock reading.
func (l *Ledger) Now() time.Time {
	return l.clock()
}

// Fund credits an account directly. Dev and test helper; real value enters
// the production ledger out of band.
func (l *Ledger) Fund(id domain.AccountID, amount uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[id] += amount
}

// Do implements domain.UnitOfWork by snapshotting the balances and restoring
// them when fn fails, so a failed persist never leaves a half-applied
// transfer behind. The service serializes work per wager with a lock, so the
// snapshot covers the only writer.
func (l *Ledger) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	snapshot := maps.Clone(l.balances)
	l.mu.Unlock()

	if err := fn(ctx); err != nil {
		l.mu.Lock()
		l.balances = snapshot
		l.mu.Unlock()
		return err
	}
	return nil
}

// Compile-time interface checks.
var (
	_ domain.Ledger     = (*Ledger)(nil)
	_ domain.UnitOfWork = (*Ledger)(nil)
)
