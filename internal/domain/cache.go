package domain

import (
	"context"
	"time"
)

// RateLimiter enforces sliding-window request limits, shared across replicas.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under limit
	// requests per window. Allowed requests are counted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Wait blocks until a request for key is allowed or ctx is done.
	Wait(ctx context.Context, key string) error
}

// LockManager provides distributed mutual exclusion. Acquire returns an
// unlock function on success, or ErrLockHeld when another party holds the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SignalBus carries status-change notifications between components and out to
// the SSE/WebSocket surfaces. Publish is ephemeral pub/sub; StreamAppend is
// durable and ordered.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// MarketCache is a read-through cache over the market store for hot lookups
// from the HTTP surface.
type MarketCache interface {
	Set(ctx context.Context, market Market) error
	Get(ctx context.Context, id string) (Market, error)
	Invalidate(ctx context.Context, id string) error
}
