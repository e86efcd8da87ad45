package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

// Withdraw redeems shareAmount of holder's shares: the proportional slice of
// every underlying is swapped back to base asset, the shares are burned, and
// the accumulated proceeds are paid to holder. Returns the base-asset
// proceeds.
//
// The ownership fraction, the per-asset quantities, and the burn all derive
// from one snapshot taken under the fund's lock, so no other caller's
// deposit or withdrawal can interleave with the exit legs.
func (f *Fund) Withdraw(ctx context.Context, holder common.Address, shareAmount *big.Int) (*big.Int, error) {
	if shareAmount == nil || shareAmount.Sign() <= 0 {
		return nil, domain.ErrZeroAmount
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	held, ok := f.shares[holder]
	if !ok || held.Cmp(shareAmount) < 0 {
		return nil, domain.ErrInsufficientShares
	}

	qs, err := f.quotesLocked(ctx)
	if err != nil {
		return nil, err
	}

	// Exit legs: tokenBalance * shareAmount / supply of each underlying,
	// truncated, swapped to base asset.
	type exitLeg struct {
		asset common.Address
		qty   *big.Int
	}
	var (
		legs     []executedLeg
		exits    []exitLeg
		proceeds = new(big.Int)
	)
	for _, a := range f.assets {
		qty := new(big.Int).Mul(f.balances[a], shareAmount)
		qty.Quo(qty, f.supply)
		if qty.Sign() == 0 {
			continue
		}
		minOut := f.minOutFor(qs, a, domain.BaseAsset, qty)
		out, err := f.router.SwapExactInput(ctx, a, domain.BaseAsset, qty, minOut, f.address)
		if err != nil {
			f.unwindLocked(ctx, legs)
			return nil, fmt.Errorf("engine: withdraw leg out of %s: %w", a.Hex(), err)
		}
		legs = append(legs, executedLeg{assetIn: a, assetOut: domain.BaseAsset, in: qty, out: out})
		exits = append(exits, exitLeg{asset: a, qty: qty})
		proceeds.Add(proceeds, out)
	}

	if proceeds.Sign() == 0 {
		f.unwindLocked(ctx, legs)
		return nil, domain.ErrZeroProceeds
	}

	if err := f.payments.Transfer(ctx, holder, proceeds); err != nil {
		f.unwindLocked(ctx, legs)
		return nil, fmt.Errorf("engine: withdraw: proceeds transfer: %w", err)
	}

	// Commit.
	for _, e := range exits {
		f.balances[e.asset].Sub(f.balances[e.asset], e.qty)
	}
	f.burnLocked(holder, shareAmount)

	f.logger.InfoContext(ctx, "withdraw",
		slog.String("holder", holder.Hex()),
		slog.String("shares", shareAmount.String()),
		slog.String("proceeds", proceeds.String()),
		slog.String("supply", f.supply.String()),
	)
	return proceeds, nil
}
