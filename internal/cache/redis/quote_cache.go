package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/etherindex/basketd/internal/domain"
)

// QuoteCache implements domain.QuoteCache using Redis hashes. Each asset's
// last good quote is stored at "quote:{asset}" with fields "price", "expo",
// and "ts" (Unix seconds). Entries expire after ttl so the stale-feed
// fallback cannot serve arbitrarily old prices.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client. A zero ttl
// disables expiry.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(asset common.Address) string {
	return "quote:" + asset.Hex()
}

// SetQuote stores the latest quote for an asset.
func (qc *QuoteCache) SetQuote(ctx context.Context, asset common.Address, q domain.Quote) error {
	key := quoteKey(asset)
	fields := map[string]interface{}{
		"price": q.Price.String(),
		"expo":  strconv.FormatInt(int64(q.Expo), 10),
		"ts":    strconv.FormatInt(q.PublishTime.Unix(), 10),
	}
	pipe := qc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if qc.ttl > 0 {
		pipe.Expire(ctx, key, qc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", asset.Hex(), err)
	}
	return nil
}

// GetQuote retrieves the cached quote for an asset. It returns
// domain.ErrNotFound when no quote is cached.
func (qc *QuoteCache) GetQuote(ctx context.Context, asset common.Address) (domain.Quote, error) {
	vals, err := qc.rdb.HGetAll(ctx, quoteKey(asset)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", asset.Hex(), err)
	}
	if len(vals) == 0 {
		return domain.Quote{}, domain.ErrNotFound
	}

	price, ok := new(big.Int).SetString(vals["price"], 10)
	if !ok {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: malformed price %q", asset.Hex(), vals["price"])
	}
	expo, err := strconv.ParseInt(vals["expo"], 10, 32)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: malformed expo: %w", asset.Hex(), err)
	}
	ts, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: malformed ts: %w", asset.Hex(), err)
	}

	return domain.Quote{
		Price:       price,
		Expo:        int32(expo),
		PublishTime: time.Unix(ts, 0).UTC(),
	}, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
