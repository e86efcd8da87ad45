package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// QuoteCache stores the last good quote per asset. The oracle layer uses it
// as a fallback so a momentarily stale feed does not break valuation views.
type QuoteCache interface {
	SetQuote(ctx context.Context, asset common.Address, q Quote) error
	// GetQuote returns ErrNotFound when no quote has been cached for asset.
	GetQuote(ctx context.Context, asset common.Address) (Quote, error)
}

// LockManager provides distributed locking. Multi-replica deployments use it
// to extend the per-fund single-writer guarantee across processes.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// RateLimiter provides distributed rate limiting for the API surface.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is a single entry read from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for fund events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// BlobWriter uploads data to object storage (NAV snapshot archive).
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
