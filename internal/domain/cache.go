package domain

import (
	"context"
	"time"
)

// TickCache keeps the latest tick per symbol for dashboards.
type TickCache interface {
	SetTick(ctx context.Context, t Tick) error
	GetTick(ctx context.Context, code string) (Tick, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// Publisher fans out payloads on a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// EventBus provides pub/sub and durable streams.
type EventBus interface {
	Publisher
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
