package domain

import (
	"context"
	"time"
)

// LockManager provides distributed locks held for as long as the caller
// needs them. lost is closed when the lock could not be kept.
type LockManager interface {
	Hold(ctx context.Context, key string, ttl time.Duration) (release func(), lost <-chan struct{}, err error)
}

// SignalBus provides pub/sub and append-only streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
