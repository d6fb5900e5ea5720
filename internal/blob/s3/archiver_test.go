package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escrowlabs/escrowd/internal/domain"
)

// memBlobStore is an in-memory BlobWriter/BlobReader pair for archiver tests.
type memBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: make(map[string][]byte)}
}

func (m *memBlobStore) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.putErr != nil {
		return m.putErr
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = buf
	return nil
}

func (m *memBlobStore) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlobStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(buf)), nil
}

func (m *memBlobStore) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.BlobInfo
	for path, buf := range m.objects {
		if len(path) >= len(prefix) && path[:len(prefix)] == prefix {
			out = append(out, domain.BlobInfo{Path: path, Size: int64(len(buf))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memBlobStore) Exists(_ context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[path]
	return ok, nil
}

func (m *memBlobStore) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

// stubWagerStore implements domain.WagerStore over a slice, tracking deletes.
type stubWagerStore struct {
	mu      sync.Mutex
	wagers  []domain.Wager
	deleted []string
}

func (s *stubWagerStore) Create(_ context.Context, w domain.Wager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wagers = append(s.wagers, w)
	return nil
}

func (s *stubWagerStore) Update(_ context.Context, _ domain.Wager) error { return nil }

func (s *stubWagerStore) GetByID(_ context.Context, id string) (domain.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wagers {
		if w.ID == id {
			return w, nil
		}
	}
	return domain.Wager{}, domain.ErrNotFound
}

func (s *stubWagerStore) List(_ context.Context, _ domain.ListOpts) ([]domain.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Wager(nil), s.wagers...), nil
}

func (s *stubWagerStore) ListSettledBefore(_ context.Context, before time.Time, limit int) ([]domain.Wager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Wager
	for _, w := range s.wagers {
		if w.Settled() && w.UpdatedAt.Before(before) {
			out = append(out, w)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *stubWagerStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.wagers {
		if w.ID == id {
			s.wagers = append(s.wagers[:i], s.wagers[i+1:]...)
			s.deleted = append(s.deleted, id)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *stubWagerStore) Count(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.wagers)), nil
}

func settledWager(id string, updated time.Time) domain.Wager {
	return domain.Wager{
		ID:          id,
		PartyA:      "alice",
		PartyB:      "bob",
		Arbiter:     "carol",
		Vault:       domain.AccountID("vault-" + id),
		StakeAmount: 100,
		SetupCost:   2,
		DepositedA:  true,
		DepositedB:  true,
		Resolution:  domain.ResolutionWonA,
		CreatedAt:   updated.Add(-time.Hour),
		UpdatedAt:   updated,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveSettledUploadsAndDeletes(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store := &stubWagerStore{wagers: []domain.Wager{
		settledWager("w-1", cutoff.Add(-48*time.Hour)),
		settledWager("w-2", cutoff.Add(-24*time.Hour)),
		// Settled after the cutoff: must survive the pass.
		settledWager("w-3", cutoff.Add(time.Hour)),
	}}
	blobs := newMemBlobStore()

	arch := NewArchiver(blobs, blobs, store, nil, testLogger())
	n, err := arch.ArchiveSettled(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.ElementsMatch(t, []string{"w-1", "w-2"}, store.deleted)

	objects, err := blobs.List(context.Background(), "archive/wagers/2026-08/")
	require.NoError(t, err)
	require.Len(t, objects, 1)

	rc, err := blobs.Get(context.Background(), objects[0].Path)
	require.NoError(t, err)
	defer rc.Close()

	var ids []string
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		var row map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &row))
		ids = append(ids, row["id"].(string))
		assert.Equal(t, "won_a", row["resolution"])
	}
	require.NoError(t, scanner.Err())
	assert.ElementsMatch(t, []string{"w-1", "w-2"}, ids)

	// Surviving record still readable.
	_, err = store.GetByID(context.Background(), "w-3")
	assert.NoError(t, err)
}

func TestArchiveSettledNothingToDo(t *testing.T) {
	store := &stubWagerStore{}
	blobs := newMemBlobStore()

	arch := NewArchiver(blobs, blobs, store, nil, testLogger())
	n, err := arch.ArchiveSettled(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, blobs.objects)
}

func TestArchiveSettledUploadFailureKeepsRecords(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	store := &stubWagerStore{wagers: []domain.Wager{
		settledWager("w-1", cutoff.Add(-time.Hour)),
	}}
	blobs := newMemBlobStore()
	blobs.putErr = assert.AnError

	arch := NewArchiver(blobs, blobs, store, nil, testLogger())
	n, err := arch.ArchiveSettled(context.Background(), cutoff)
	assert.Error(t, err)
	assert.Zero(t, n)
	assert.Empty(t, store.deleted, "failed upload must not delete records")
}

func TestArchivePathLayout(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	want := fmt.Sprintf("archive/wagers/2026-08/%d.jsonl", now.Unix())
	assert.Equal(t, want, archivePath(cutoff, now))
}
