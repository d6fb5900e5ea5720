package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locking. The escrow service acquires one
// lock per wager id so that transitions against the same record never
// interleave, even across replicas.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// WagerCache provides fast wager snapshot lookups on the query path.
type WagerCache interface {
	Set(ctx context.Context, w Wager) error
	Get(ctx context.Context, id string) (Wager, error)
	Invalidate(ctx context.Context, id string) error
}

// RateLimiter provides distributed rate limiting for the API surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage represents a single entry from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for wager lifecycle events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
