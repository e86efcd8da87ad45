package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

var one18 = big.NewInt(1_000_000_000_000_000_000)

// quoteSet is a consistent snapshot of normalized (18-decimal USD) prices for
// the base asset and every underlying, taken once per operation.
type quoteSet map[common.Address]*big.Int

// quotesLocked fetches a full quote snapshot from the oracle. Any feed error
// aborts the snapshot; callers propagate it before touching any state.
func (f *Fund) quotesLocked(ctx context.Context) (quoteSet, error) {
	qs := make(quoteSet, len(f.assets)+1)

	fetch := func(asset common.Address) error {
		q, err := f.oracle.GetPrice(ctx, asset)
		if err != nil {
			return fmt.Errorf("engine: price for %s: %w", asset.Hex(), err)
		}
		p := q.Price18()
		if p.Sign() <= 0 {
			return fmt.Errorf("engine: non-positive price for %s: %w", asset.Hex(), domain.ErrStalePrice)
		}
		qs[asset] = p
		return nil
	}

	if err := fetch(domain.BaseAsset); err != nil {
		return nil, err
	}
	for _, a := range f.assets {
		if err := fetch(a); err != nil {
			return nil, err
		}
	}
	return qs, nil
}

// baseValueOf converts a token quantity into base-asset terms using the
// snapshot prices: qty * priceUSD(asset) / priceUSD(base).
func baseValueOf(qs quoteSet, asset common.Address, qty *big.Int) *big.Int {
	v := new(big.Int).Mul(qty, qs[asset])
	return v.Quo(v, qs[domain.BaseAsset])
}

// totalValueLocked is the fund NAV in base-asset terms at snapshot prices.
func (f *Fund) totalValueLocked(qs quoteSet) *big.Int {
	total := new(big.Int)
	for _, a := range f.assets {
		total.Add(total, baseValueOf(qs, a, f.balances[a]))
	}
	return total
}

// CurrentValue returns the fund NAV in base-asset terms. Pure view; oracle
// errors (FeedNotConfigured, StalePrice) propagate unless the configured
// oracle provides a cached fallback.
func (f *Fund) CurrentValue(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	qs, err := f.quotesLocked(ctx)
	if err != nil {
		return nil, err
	}
	return f.totalValueLocked(qs), nil
}

// Snapshot returns a consistent point-in-time view of the fund, including
// per-asset base values, for the API and the NAV archiver.
func (f *Fund) Snapshot(ctx context.Context) (domain.FundSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	qs, err := f.quotesLocked(ctx)
	if err != nil {
		return domain.FundSnapshot{}, err
	}

	snap := domain.FundSnapshot{
		Address:     f.address,
		Name:        f.name,
		Ticker:      f.ticker,
		Creator:     f.creator,
		ShareSupply: new(big.Int).Set(f.supply),
		TotalValue:  new(big.Int),
		Holdings:    make([]domain.AssetHolding, 0, len(f.assets)),
		TakenAt:     time.Now().UTC(),
	}
	for _, a := range f.assets {
		v := baseValueOf(qs, a, f.balances[a])
		snap.TotalValue.Add(snap.TotalValue, v)
		snap.Holdings = append(snap.Holdings, domain.AssetHolding{
			Asset:     a,
			Balance:   new(big.Int).Set(f.balances[a]),
			Weight:    f.weights[a],
			BaseValue: v,
		})
	}
	return snap, nil
}

// minOutFor derives the slippage-bounded minimum output for a swap leg from
// the snapshot prices: expected * (10000 - maxSlippageBps) / 10000.
func (f *Fund) minOutFor(qs quoteSet, assetIn, assetOut common.Address, amountIn *big.Int) *big.Int {
	expected := new(big.Int).Mul(amountIn, qs[assetIn])
	expected.Quo(expected, qs[assetOut])
	expected.Mul(expected, big.NewInt(int64(10_000-f.maxSlippageBps)))
	return expected.Quo(expected, big.NewInt(10_000))
}

// mulDiv computes x * num / den with truncation. All percentage and
// basis-point math goes through here; rounding dust accrues to the basket.
func mulDiv(x *big.Int, num, den int64) *big.Int {
	r := new(big.Int).Mul(x, big.NewInt(num))
	return r.Quo(r, big.NewInt(den))
}

// executedLeg records one completed swap so a failed multi-leg operation can
// be unwound before any ledger state commits.
type executedLeg struct {
	assetIn  common.Address
	assetOut common.Address
	in       *big.Int
	out      *big.Int
}

// unwindLocked best-effort reverses executed legs in LIFO order by swapping
// each output back to its input with no minimum. The engine's own balances
// were never touched, so accounting state stays at its pre-call values even
// if an unwind leg cannot fill.
func (f *Fund) unwindLocked(ctx context.Context, legs []executedLeg) {
	for i := len(legs) - 1; i >= 0; i-- {
		l := legs[i]
		if l.out.Sign() == 0 {
			continue
		}
		if _, err := f.router.SwapExactInput(ctx, l.assetOut, l.assetIn, l.out, new(big.Int), f.address); err != nil {
			f.logger.Warn("unwind leg failed",
				slog.String("asset_in", l.assetOut.Hex()),
				slog.String("asset_out", l.assetIn.Hex()),
				slog.String("amount", l.out.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}
