package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/escrowlabs/escrowd/internal/domain"
)

// WagerCache implements domain.WagerCache as a read-through JSON snapshot
// cache on the query path. The store remains the source of truth; every
// transition invalidates the snapshot.
type WagerCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewWagerCache creates a WagerCache backed by the given Client. A zero TTL
// means snapshots do not expire and rely on explicit invalidation.
func NewWagerCache(c *Client, ttl time.Duration) *WagerCache {
	return &WagerCache{rdb: c.Underlying(), ttl: ttl}
}

func wagerCacheKey(id string) string {
	return "wager:" + id
}

// Set stores a wager snapshot.
func (wc *WagerCache) Set(ctx context.Context, w domain.Wager) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("redis: marshal wager %s: %w", w.ID, err)
	}
	if err := wc.rdb.Set(ctx, wagerCacheKey(w.ID), data, wc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set wager %s: %w", w.ID, err)
	}
	return nil
}

// Get returns a cached wager snapshot, or domain.ErrNotFound on a miss.
func (wc *WagerCache) Get(ctx context.Context, id string) (domain.Wager, error) {
	data, err := wc.rdb.Get(ctx, wagerCacheKey(id)).Bytes()
	if err == redis.Nil {
		return domain.Wager{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Wager{}, fmt.Errorf("redis: get wager %s: %w", id, err)
	}
	var w domain.Wager
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Wager{}, fmt.Errorf("redis: unmarshal wager %s: %w", id, err)
	}
	return w, nil
}

// Invalidate drops a cached snapshot.
func (wc *WagerCache) Invalidate(ctx context.Context, id string) error {
	if err := wc.rdb.Del(ctx, wagerCacheKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate wager %s: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.WagerCache = (*WagerCache)(nil)
