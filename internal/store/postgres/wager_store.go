package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/escrowlabs/escrowd/internal/domain"
)

const wagerColumns = `id, party_a, party_b, arbiter, fee_recipient, vault, stake_amount, setup_cost,
	deposited_a, deposited_b, created_at, activated_at, resolution, updated_at`

// WagerStore implements domain.WagerStore using PostgreSQL.
type WagerStore struct {
	pool *pgxpool.Pool
}

// NewWagerStore creates a new WagerStore.
func NewWagerStore(pool *pgxpool.Pool) *WagerStore {
	return &WagerStore{pool: pool}
}

// Create inserts a new wager record. It returns domain.ErrDuplicateWager
// when a record for the same pair already exists.
func (s *WagerStore) Create(ctx context.Context, w domain.Wager) error {
	const query = `
		INSERT INTO wagers (` + wagerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := db(ctx, s.pool).Exec(ctx, query,
		w.ID, string(w.PartyA), string(w.PartyB), string(w.Arbiter), string(w.FeeRecipient),
		string(w.Vault), int64(w.StakeAmount), int64(w.SetupCost),
		w.DepositedA, w.DepositedB, w.CreatedAt, nullableTime(w.ActivatedAt),
		string(w.Resolution), w.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateWager
		}
		return fmt.Errorf("postgres: create wager %s: %w", w.ID, err)
	}
	return nil
}

// Update rewrites the mutable columns of an existing record.
func (s *WagerStore) Update(ctx context.Context, w domain.Wager) error {
	const query = `
		UPDATE wagers SET
			deposited_a = $2, deposited_b = $3, activated_at = $4,
			resolution = $5, updated_at = $6
		WHERE id = $1`
	tag, err := db(ctx, s.pool).Exec(ctx, query,
		w.ID, w.DepositedA, w.DepositedB, nullableTime(w.ActivatedAt),
		string(w.Resolution), w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update wager %s: %w", w.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns a wager by id, or domain.ErrNotFound.
func (s *WagerStore) GetByID(ctx context.Context, id string) (domain.Wager, error) {
	const query = `SELECT ` + wagerColumns + ` FROM wagers WHERE id = $1`
	w, err := scanWager(db(ctx, s.pool).QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Wager{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Wager{}, fmt.Errorf("postgres: get wager %s: %w", id, err)
	}
	return w, nil
}

// List returns wagers ordered by creation time descending.
func (s *WagerStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Wager, error) {
	query := `SELECT ` + wagerColumns + ` FROM wagers WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryWagers(ctx, query, args...)
}

// ListSettledBefore returns settled wagers whose terminal transition
// happened strictly before the cutoff.
func (s *WagerStore) ListSettledBefore(ctx context.Context, before time.Time, limit int) ([]domain.Wager, error) {
	query := `SELECT ` + wagerColumns + ` FROM wagers
		WHERE resolution <> '' AND updated_at < $1
		ORDER BY updated_at`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.queryWagers(ctx, query, args...)
}

// Delete removes a wager record. Used by the archiver after a verified
// export.
func (s *WagerStore) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM wagers WHERE id = $1`
	if _, err := db(ctx, s.pool).Exec(ctx, query, id); err != nil {
		return fmt.Errorf("postgres: delete wager %s: %w", id, err)
	}
	return nil
}

// Count returns the total number of wager records.
func (s *WagerStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := db(ctx, s.pool).QueryRow(ctx, `SELECT COUNT(*) FROM wagers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count wagers: %w", err)
	}
	return n, nil
}

func (s *WagerStore) queryWagers(ctx context.Context, query string, args ...any) ([]domain.Wager, error) {
	rows, err := db(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query wagers: %w", err)
	}
	defer rows.Close()
	var list []domain.Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan wager: %w", err)
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

func scanWager(row pgx.Row) (domain.Wager, error) {
	var w domain.Wager
	var partyA, partyB, arbiter, feeRecipient, vault, resolution string
	var stake, setupCost int64
	var activatedAt *time.Time
	err := row.Scan(
		&w.ID, &partyA, &partyB, &arbiter, &feeRecipient, &vault, &stake, &setupCost,
		&w.DepositedA, &w.DepositedB, &w.CreatedAt, &activatedAt, &resolution, &w.UpdatedAt,
	)
	if err != nil {
		return domain.Wager{}, err
	}
	w.PartyA = domain.AccountID(partyA)
	w.PartyB = domain.AccountID(partyB)
	w.Arbiter = domain.AccountID(arbiter)
	w.FeeRecipient = domain.AccountID(feeRecipient)
	w.Vault = domain.AccountID(vault)
	w.StakeAmount = uint64(stake)
	w.SetupCost = uint64(setupCost)
	if activatedAt != nil {
		w.ActivatedAt = *activatedAt
	}
	w.Resolution = domain.Resolution(resolution)
	return w, nil
}

// nullableTime maps the zero time to NULL so "never activated" is explicit
// in the schema.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Compile-time interface check.
var _ domain.WagerStore = (*WagerStore)(nil)
