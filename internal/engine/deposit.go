package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

// Deposit invests amount of base asset for holder. The entry fee is split
// between creator and treasury and paid out in base asset; the net remainder
// is swapped into the underlyings at their target weights and shares are
// minted against the value actually received. Returns the minted share
// amount.
//
// The fee portion never mints shares. Minting uses the swap outputs valued
// at the operation's quote snapshot, not the pre-trade leg sizes, so one
// leg's slippage cannot distort another holder's share price.
func (f *Fund) Deposit(ctx context.Context, holder common.Address, amount *big.Int) (*big.Int, error) {
	if holder == (common.Address{}) {
		return nil, domain.ErrZeroAddress
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, domain.ErrZeroAmount
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	qs, err := f.quotesLocked(ctx)
	if err != nil {
		return nil, err
	}
	valueBefore := f.totalValueLocked(qs)
	if f.supply.Sign() > 0 && valueBefore.Sign() == 0 {
		return nil, fmt.Errorf("engine: deposit: fund holds no value but has outstanding shares")
	}

	fee := mulDiv(amount, int64(f.entryFeeBps), 10_000)
	creatorFee := mulDiv(fee, int64(f.feeSplitCreatorPct), 100)
	treasuryFee := new(big.Int).Sub(fee, creatorFee)
	net := new(big.Int).Sub(amount, fee)

	// Entry legs: net * weight / 100 of base asset into each underlying.
	// Weight truncation dust stays in the fund's base account.
	var legs []executedLeg
	for _, a := range f.assets {
		w := f.weights[a]
		if w == 0 {
			continue
		}
		in := mulDiv(net, int64(w), 100)
		if in.Sign() == 0 {
			continue
		}
		minOut := f.minOutFor(qs, domain.BaseAsset, a, in)
		out, err := f.router.SwapExactInput(ctx, domain.BaseAsset, a, in, minOut, f.address)
		if err != nil {
			f.unwindLocked(ctx, legs)
			return nil, fmt.Errorf("engine: deposit leg into %s: %w", a.Hex(), err)
		}
		legs = append(legs, executedLeg{assetIn: domain.BaseAsset, assetOut: a, in: in, out: out})
	}

	// Value actually received across all legs, at the snapshot prices.
	valueAdded := new(big.Int)
	for _, l := range legs {
		valueAdded.Add(valueAdded, baseValueOf(qs, l.assetOut, l.out))
	}
	// A deposit so small that every leg truncated to nothing would mint zero
	// shares while still paying the entry fee. Reject it before fees move.
	if valueAdded.Sign() == 0 {
		f.unwindLocked(ctx, legs)
		return nil, domain.ErrDustDeposit
	}

	var minted *big.Int
	if f.supply.Sign() == 0 {
		minted = new(big.Int).Set(valueAdded) // bootstrap: 1:1 with net invested value
	} else {
		minted = new(big.Int).Mul(f.supply, valueAdded)
		minted.Quo(minted, valueBefore)
	}

	// Fee recipients receive base asset directly, never shares.
	if creatorFee.Sign() > 0 {
		if err := f.payments.Transfer(ctx, f.creator, creatorFee); err != nil {
			f.unwindLocked(ctx, legs)
			return nil, fmt.Errorf("engine: deposit: creator fee transfer: %w", err)
		}
	}
	if treasuryFee.Sign() > 0 {
		if err := f.payments.Transfer(ctx, f.treasury, treasuryFee); err != nil {
			f.unwindLocked(ctx, legs)
			return nil, fmt.Errorf("engine: deposit: treasury fee transfer: %w", err)
		}
	}

	// Commit: only now do balances and the share ledger change.
	for _, l := range legs {
		f.balances[l.assetOut].Add(f.balances[l.assetOut], l.out)
	}
	f.mintLocked(holder, minted)

	f.logger.InfoContext(ctx, "deposit",
		slog.String("holder", holder.Hex()),
		slog.String("amount", amount.String()),
		slog.String("fee", fee.String()),
		slog.String("value_added", valueAdded.String()),
		slog.String("minted", minted.String()),
		slog.String("supply", f.supply.String()),
	)
	return minted, nil
}
