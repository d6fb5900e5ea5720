package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// WagerStore persists wager records.
type WagerStore interface {
	Create(ctx context.Context, w Wager) error
	Update(ctx context.Context, w Wager) error
	GetByID(ctx context.Context, id string) (Wager, error)
	List(ctx context.Context, opts ListOpts) ([]Wager, error)
	// ListSettledBefore returns settled wagers whose terminal transition
	// happened strictly before the cutoff, for archival.
	ListSettledBefore(ctx context.Context, before time.Time, limit int) ([]Wager, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// UnitOfWork runs fn atomically: every store and ledger write made through
// the context it passes to fn either commits as a whole or is rolled back.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
