package oracle

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

// Cached decorates a PriceOracle with a last-good-quote fallback. Successful
// quotes are written through to the cache; a StalePrice failure is answered
// from the cache when a quote is available, so a valuation view does not
// break on a momentarily stale feed. Other oracle errors pass through.
type Cached struct {
	inner  domain.PriceOracle
	cache  domain.QuoteCache
	logger *slog.Logger
}

// WithCache wraps inner with the given quote cache.
func WithCache(inner domain.PriceOracle, cache domain.QuoteCache, logger *slog.Logger) *Cached {
	return &Cached{
		inner:  inner,
		cache:  cache,
		logger: logger.With(slog.String("component", "oracle_cache")),
	}
}

// SetPriceFeed delegates to the wrapped oracle.
func (c *Cached) SetPriceFeed(ctx context.Context, asset common.Address, feedID common.Hash) error {
	return c.inner.SetPriceFeed(ctx, asset, feedID)
}

// GetPrice returns the live quote when fresh, the cached quote when the feed
// is momentarily stale.
func (c *Cached) GetPrice(ctx context.Context, asset common.Address) (domain.Quote, error) {
	q, err := c.inner.GetPrice(ctx, asset)
	if err == nil {
		if cacheErr := c.cache.SetQuote(ctx, asset, q); cacheErr != nil {
			c.logger.WarnContext(ctx, "quote cache write failed",
				slog.String("asset", asset.Hex()),
				slog.String("error", cacheErr.Error()),
			)
		}
		return q, nil
	}

	if errors.Is(err, domain.ErrStalePrice) {
		cached, cacheErr := c.cache.GetQuote(ctx, asset)
		if cacheErr == nil {
			c.logger.WarnContext(ctx, "serving cached quote for stale feed",
				slog.String("asset", asset.Hex()),
			)
			return cached, nil
		}
	}
	return domain.Quote{}, err
}

var _ domain.PriceOracle = (*Cached)(nil)
