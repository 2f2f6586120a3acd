package domain

import (
	"context"
	"time"
)

// TickerMirror publishes the latest book tickers to an external cache so other
// processes can read market state without polling exchanges themselves.
type TickerMirror interface {
	MirrorTickers(ctx context.Context, snap MarketSnapshot) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}
