package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowlabs/escrowd/internal/domain"
)

// stubAuditStore records the opts ListAudit passes through.
type stubAuditStore struct {
	gotOpts domain.ListOpts
	entries []domain.AuditEntry
	listErr error
}

func (s *stubAuditStore) Log(_ context.Context, _ string, _ map[string]any) error {
	return nil
}

func (s *stubAuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.gotOpts = opts
	return s.entries, s.listErr
}

func TestListAudit(t *testing.T) {
	store := &stubAuditStore{entries: []domain.AuditEntry{
		{ID: 1, Event: "wager.create", Detail: map[string]any{"wager_id": "w-1"}},
	}}
	h := NewAuditHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodGet, "/api/audit?limit=10&offset=5", nil)
	rec := httptest.NewRecorder()
	h.ListAudit(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, store.gotOpts.Limit)
	assert.Equal(t, 5, store.gotOpts.Offset)

	body := decodeJSON(t, rec)
	assert.Equal(t, float64(1), body["count"])
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "wager.create", entries[0].(map[string]any)["event"])
}

func TestListAuditTimeRange(t *testing.T) {
	store := &stubAuditStore{}
	h := NewAuditHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	req := httptest.NewRequest(http.MethodGet,
		"/api/audit?since=2026-08-01T00:00:00Z&until=2026-08-30T00:00:00Z", nil)
	rec := httptest.NewRecorder()
	h.ListAudit(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, store.gotOpts.Since)
	require.NotNil(t, store.gotOpts.Until)
	assert.Equal(t, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC), store.gotOpts.Since.UTC())
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), store.gotOpts.Until.UTC())
}

func TestListAuditMalformedTimestamp(t *testing.T) {
	store := &stubAuditStore{}
	h := NewAuditHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, query := range []string{"since=yesterday", "until=08/30/2026"} {
		req := httptest.NewRequest(http.MethodGet, "/api/audit?"+query, nil)
		rec := httptest.NewRecorder()
		h.ListAudit(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}
