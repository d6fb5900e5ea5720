package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/escrowlabs/escrowd/internal/domain"
)

// archiveBatchSize bounds how many settled wagers a single pass pulls from
// the store.
const archiveBatchSize = 1000

// multipartThreshold is the payload size above which uploads switch to the
// multipart path.
const multipartThreshold = 8 * 1024 * 1024

// ArchiveImpl implements domain.Archiver. It drains settled wagers from the
// primary store into JSONL objects in the bucket, then deletes the archived
// rows. Once a pair's settled record is archived, the pair may open a new
// wager under the same derived key.
type ArchiveImpl struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	wagers domain.WagerStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates a new ArchiveImpl. The audit store is optional.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	wagers domain.WagerStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		reader: reader,
		wagers: wagers,
		audit:  audit,
		logger: logger,
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// archivedWager is the JSONL row shape written to cold storage.
type archivedWager struct {
	ID           string    `json:"id"`
	PartyA       string    `json:"party_a"`
	PartyB       string    `json:"party_b"`
	Arbiter      string    `json:"arbiter"`
	FeeRecipient string    `json:"fee_recipient"`
	Vault        string    `json:"vault"`
	StakeAmount  uint64    `json:"stake_amount"`
	SetupCost    uint64    `json:"setup_cost"`
	DepositedA   bool      `json:"deposited_a"`
	DepositedB   bool      `json:"deposited_b"`
	Resolution   string    `json:"resolution"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ArchiveSettled uploads all wagers settled strictly before the cutoff to
// archive/wagers/YYYY-MM/<unix>.jsonl and deletes them from the primary
// store. Deletion happens per record only after the batch upload succeeded,
// so a failed upload leaves the store untouched.
func (a *ArchiveImpl) ArchiveSettled(ctx context.Context, before time.Time) (int64, error) {
	var total int64

	for {
		batch, err := a.wagers.ListSettledBefore(ctx, before, archiveBatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive query: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive marshal: %w", err)
		}

		path := archivePath(before, time.Now().UTC())
		if exists, err := a.reader.Exists(ctx, path); err == nil && exists {
			path = archivePath(before, time.Now().UTC().Add(time.Second))
		}

		if int64(len(buf)) > multipartThreshold {
			err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
		} else {
			err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
		}
		if err != nil {
			return total, fmt.Errorf("s3blob: archive upload: %w", err)
		}

		for _, w := range batch {
			if err := a.wagers.Delete(ctx, w.ID); err != nil {
				return total, fmt.Errorf("s3blob: archive delete %s: %w", w.ID, err)
			}
			total++
		}

		a.logger.InfoContext(ctx, "archived settled wagers",
			slog.String("path", path),
			slog.Int("count", len(batch)),
		)

		if a.audit != nil {
			if err := a.audit.Log(ctx, "archive.wagers", map[string]any{
				"path":   path,
				"count":  len(batch),
				"before": before.Format(time.RFC3339),
			}); err != nil {
				a.logger.WarnContext(ctx, "archive audit log failed",
					slog.String("error", err.Error()),
				)
			}
		}

		if len(batch) < archiveBatchSize {
			return total, nil
		}
	}
}

// archivePath builds the object key for one archive batch, partitioned by
// the cutoff's year-month:
//
//	archive/wagers/2026-08/1756540800.jsonl
func archivePath(before, now time.Time) string {
	return fmt.Sprintf("archive/wagers/%s/%d.jsonl", before.Format("2006-01"), now.Unix())
}

// marshalJSONL serialises wagers as newline-delimited JSON, one compact
// object per line.
func marshalJSONL(wagers []domain.Wager) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for _, w := range wagers {
		row := archivedWager{
			ID:           w.ID,
			PartyA:       string(w.PartyA),
			PartyB:       string(w.PartyB),
			Arbiter:      string(w.Arbiter),
			FeeRecipient: string(w.FeeRecipient),
			Vault:        string(w.Vault),
			StakeAmount:  w.StakeAmount,
			SetupCost:    w.SetupCost,
			DepositedA:   w.DepositedA,
			DepositedB:   w.DepositedB,
			Resolution:   string(w.Resolution),
			CreatedAt:    w.CreatedAt,
			UpdatedAt:    w.UpdatedAt,
		}
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("jsonl encode wager %s: %w", w.ID, err)
		}
	}
	return buf.Bytes(), nil
}
