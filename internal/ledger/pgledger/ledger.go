// Package pgledger implements the ledger port on PostgreSQL: an accounts
// table with row-locked, transactional transfers.
package pgledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/escrowlabs/escrowd/internal/domain"
	"github.com/escrowlabs/escrowd/internal/store/postgres"
)

// Ledger is a PostgreSQL-backed domain.Ledger.
type Ledger struct {
	pool      *pgxpool.Pool
	setupCost uint64
}

// New creates a Ledger on the given pool. setupCost is the fixed per-record
// storage overhead the deployment charges, reported to the state machine at
// wager creation.
func New(pool *pgxpool.Pool, setupCost uint64) *Ledger {
	return &Ledger{pool: pool, setupCost: setupCost}
}

// Derive returns the deterministic sub-account for the namespace and keys.
func (l *Ledger) Derive(namespace string, keys ...string) domain.AccountID {
	return domain.DeriveAccount(namespace, keys...)
}

// Balance returns the current balance; accounts without a row hold zero.
func (l *Ledger) Balance(ctx context.Context, id domain.AccountID) (uint64, error) {
	const query = `SELECT balance FROM ledger_accounts WHERE id = $1`
	var balance int64
	err := l.pool.QueryRow(ctx, query, string(id)).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("pgledger: balance %s: %w", id, err)
	}
	return uint64(balance), nil
}

// Transfer atomically moves amount between accounts inside a transaction.
// The source row is locked with FOR UPDATE; when both rows exist they are
// locked in id order so concurrent transfers cannot deadlock. It returns
// domain.ErrInsufficientFunds when the source balance is too low.
//
// When the context carries a unit-of-work transaction the transfer joins it
// instead of opening its own, so the caller's commit or rollback covers the
// balance changes too.
func (l *Ledger) Transfer(ctx context.Context, from, to domain.AccountID, amount uint64) error {
	if amount == 0 {
		return nil
	}

	if tx, ok := postgres.TxFromContext(ctx); ok {
		return l.transfer(ctx, tx, from, to, amount)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pgledger: begin transfer: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := l.transfer(ctx, tx, from, to, amount); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pgledger: commit transfer: %w", err)
	}
	return nil
}

func (l *Ledger) transfer(ctx context.Context, tx pgx.Tx, from, to domain.AccountID, amount uint64) error {
	// Lock both rows in id order.
	const lockQuery = `SELECT id, balance FROM ledger_accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`
	rows, err := tx.Query(ctx, lockQuery, []string{string(from), string(to)})
	if err != nil {
		return fmt.Errorf("pgledger: lock accounts: %w", err)
	}
	balances := make(map[string]int64, 2)
	for rows.Next() {
		var id string
		var balance int64
		if err := rows.Scan(&id, &balance); err != nil {
			rows.Close()
			return fmt.Errorf("pgledger: scan account: %w", err)
		}
		balances[id] = balance
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("pgledger: lock accounts rows: %w", err)
	}

	if uint64(balances[string(from)]) < amount {
		return domain.ErrInsufficientFunds
	}

	const debit = `UPDATE ledger_accounts SET balance = balance - $2 WHERE id = $1`
	if _, err := tx.Exec(ctx, debit, string(from), int64(amount)); err != nil {
		return fmt.Errorf("pgledger: debit %s: %w", from, err)
	}

	const credit = `
		INSERT INTO ledger_accounts (id, balance) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET balance = ledger_accounts.balance + EXCLUDED.balance`
	if _, err := tx.Exec(ctx, credit, string(to), int64(amount)); err != nil {
		return fmt.Errorf("pgledger: credit %s: %w", to, err)
	}
	return nil
}

// Credit adds funds to an account outside any wager flow. Operational
// helper used when bridging value onto the ledger.
func (l *Ledger) Credit(ctx context.Context, id domain.AccountID, amount uint64) error {
	const query = `
		INSERT INTO ledger_accounts (id, balance) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET balance = ledger_accounts.balance + EXCLUDED.balance`
	if _, err := l.pool.Exec(ctx, query, string(id), int64(amount)); err != nil {
		return fmt.Errorf("pgledger: credit %s: %w", id, err)
	}
	return nil
}

// SetupCost reports the fixed per-record storage overhead.
func (l *Ledger) SetupCost() uint64 {
	return l.setupCost
}

// Now returns the database host's wall-clock time.
func (l *Ledger) Now() time.Time {
	return time.Now().UTC()
}

// Compile-time interface check.
var _ domain.Ledger = (*Ledger)(nil)
