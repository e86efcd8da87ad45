// Package oracle implements the price oracle adapter: asset-to-feed
// registration, staleness enforcement, and an optional cached fallback.
// Concrete price providers plug in behind the PriceSource interface.
package oracle

import (
	"fmt"
	"sync"
	"time"

	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

// PriceSource fetches the latest quote for a 32-byte feed identifier from a
// concrete provider (Pyth Hermes in production, fixtures in tests).
type PriceSource interface {
	LatestQuote(ctx context.Context, feedID common.Hash) (domain.Quote, error)
}

// Oracle implements domain.PriceOracle over a PriceSource plus a feed
// registry. The base asset uses the zero-address sentinel and must have a
// feed registered before any fund can value itself.
type Oracle struct {
	mu     sync.RWMutex
	feeds  map[common.Address]common.Hash
	source PriceSource
	maxAge time.Duration

	now func() time.Time // injectable for tests
}

// New creates an Oracle. maxAge is the staleness window: quotes whose
// publish time is older than maxAge fail with ErrStalePrice.
func New(source PriceSource, maxAge time.Duration) *Oracle {
	return &Oracle{
		feeds:  make(map[common.Address]common.Hash),
		source: source,
		maxAge: maxAge,
		now:    time.Now,
	}
}

// SetPriceFeed registers feedID for asset. The zero feed identifier is
// rejected with ErrInvalidFeedID.
func (o *Oracle) SetPriceFeed(_ context.Context, asset common.Address, feedID common.Hash) error {
	if feedID == (common.Hash{}) {
		return domain.ErrInvalidFeedID
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.feeds[asset] = feedID
	return nil
}

// FeedFor returns the registered feed for asset, if any.
func (o *Oracle) FeedFor(asset common.Address) (common.Hash, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	id, ok := o.feeds[asset]
	return id, ok
}

// GetPrice returns the latest USD quote for asset.
func (o *Oracle) GetPrice(ctx context.Context, asset common.Address) (domain.Quote, error) {
	o.mu.RLock()
	feedID, ok := o.feeds[asset]
	o.mu.RUnlock()
	if !ok {
		return domain.Quote{}, fmt.Errorf("oracle: asset %s: %w", asset.Hex(), domain.ErrFeedNotConfigured)
	}

	q, err := o.source.LatestQuote(ctx, feedID)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("oracle: feed %s: %w", feedID.Hex(), err)
	}
	if q.PublishTime.IsZero() || o.now().Sub(q.PublishTime) > o.maxAge {
		return domain.Quote{}, fmt.Errorf("oracle: feed %s published %s: %w",
			feedID.Hex(), q.PublishTime.Format(time.RFC3339), domain.ErrStalePrice)
	}
	return q, nil
}

// Compile-time interface check.
var _ domain.PriceOracle = (*Oracle)(nil)
