package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

// SetProportions re-targets the basket composition to newWeights. Owner-only.
// No shares are minted or burned; the operation is value-preserving modulo
// swap slippage, which is borne proportionally by all holders.
//
// Execution order: over-weight assets are sold into base asset first, then
// the pooled proceeds are spent on the under-weight assets pro-rata by
// deficit. Weights commit only after every leg succeeds; any leg failure
// unwinds the executed legs and leaves both balances and proportions at
// their pre-call values.
func (f *Fund) SetProportions(ctx context.Context, caller common.Address, assets []common.Address, newWeights []uint8) error {
	if len(assets) == 0 || len(assets) != len(newWeights) {
		return domain.ErrAssetSetMismatch
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.owner {
		return domain.ErrUnauthorized
	}

	// The asset list must match the fund's underlying set exactly.
	proposed := make(map[common.Address]uint8, len(assets))
	sum := 0
	for i, a := range assets {
		if _, dup := proposed[a]; dup {
			return domain.ErrDuplicateAsset
		}
		if _, held := f.weights[a]; !held {
			return domain.ErrAssetSetMismatch
		}
		proposed[a] = newWeights[i]
		sum += int(newWeights[i])
	}
	if len(proposed) != len(f.assets) {
		return domain.ErrAssetSetMismatch
	}
	if sum != 100 {
		return domain.ErrInvalidWeights
	}

	qs, err := f.quotesLocked(ctx)
	if err != nil {
		return err
	}
	total := f.totalValueLocked(qs)
	if total.Sign() == 0 {
		// Nothing to trade; just adopt the new targets.
		f.weights = proposed
		f.logger.InfoContext(ctx, "proportions updated", slog.Int("assets", len(assets)))
		return nil
	}

	// Phase 1: sell the excess of every over-weight asset into base asset.
	type sale struct {
		asset common.Address
		qty   *big.Int
	}
	type deficit struct {
		asset common.Address
		gap   *big.Int
	}
	var (
		legs       []executedLeg
		sales      []sale
		deficits   []deficit
		baseBudget = new(big.Int)
		totalGap   = new(big.Int)
	)
	for _, a := range f.assets {
		cur := baseValueOf(qs, a, f.balances[a])
		tgt := mulDiv(total, int64(proposed[a]), 100)

		switch cur.Cmp(tgt) {
		case 1: // over-weight: sell balance * (cur-tgt) / cur
			excess := new(big.Int).Sub(cur, tgt)
			qty := new(big.Int).Mul(f.balances[a], excess)
			qty.Quo(qty, cur)
			if qty.Sign() == 0 {
				continue
			}
			minOut := f.minOutFor(qs, a, domain.BaseAsset, qty)
			out, err := f.router.SwapExactInput(ctx, a, domain.BaseAsset, qty, minOut, f.address)
			if err != nil {
				f.unwindLocked(ctx, legs)
				return fmt.Errorf("engine: rebalance sell %s: %w", a.Hex(), err)
			}
			legs = append(legs, executedLeg{assetIn: a, assetOut: domain.BaseAsset, in: qty, out: out})
			sales = append(sales, sale{asset: a, qty: qty})
			baseBudget.Add(baseBudget, out)
		case -1: // under-weight
			gap := new(big.Int).Sub(tgt, cur)
			deficits = append(deficits, deficit{asset: a, gap: gap})
			totalGap.Add(totalGap, gap)
		}
	}

	// Phase 2: spend the pooled proceeds on under-weight assets pro-rata by
	// deficit; the last buy takes the remainder so no budget dust is left.
	type purchase struct {
		asset common.Address
		out   *big.Int
	}
	var purchases []purchase
	remaining := new(big.Int).Set(baseBudget)
	for i, d := range deficits {
		var spend *big.Int
		if i == len(deficits)-1 {
			spend = remaining
		} else {
			spend = new(big.Int).Mul(baseBudget, d.gap)
			spend.Quo(spend, totalGap)
			if spend.Cmp(remaining) > 0 {
				spend = new(big.Int).Set(remaining)
			}
		}
		if spend.Sign() == 0 {
			continue
		}
		minOut := f.minOutFor(qs, domain.BaseAsset, d.asset, spend)
		out, err := f.router.SwapExactInput(ctx, domain.BaseAsset, d.asset, spend, minOut, f.address)
		if err != nil {
			f.unwindLocked(ctx, legs)
			return fmt.Errorf("engine: rebalance buy %s: %w", d.asset.Hex(), err)
		}
		legs = append(legs, executedLeg{assetIn: domain.BaseAsset, assetOut: d.asset, in: spend, out: out})
		purchases = append(purchases, purchase{asset: d.asset, out: out})
		remaining.Sub(remaining, spend)
	}

	// Commit balances and targets together.
	for _, s := range sales {
		f.balances[s.asset].Sub(f.balances[s.asset], s.qty)
	}
	for _, p := range purchases {
		f.balances[p.asset].Add(f.balances[p.asset], p.out)
	}
	f.weights = proposed

	f.logger.InfoContext(ctx, "rebalanced",
		slog.Int("sells", len(sales)),
		slog.Int("buys", len(purchases)),
		slog.String("turnover", baseBudget.String()),
	)
	return nil
}
