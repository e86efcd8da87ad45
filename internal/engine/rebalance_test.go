package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

func TestSetProportionsRebalances(t *testing.T) {
	rig := newTestFund(t, Config{})
	ctx := context.Background()

	if _, err := rig.fund.Deposit(ctx, holder, amt(4)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// 50/50 to 80/20 at equal prices: sell 1.2 B for base, buy 1.2 A.
	err := rig.fund.SetProportions(ctx, creator, []common.Address{assetA, assetB}, []uint8{80, 20})
	if err != nil {
		t.Fatalf("SetProportions: %v", err)
	}

	if got := rig.fund.TokenBalance(assetA); got.Cmp(milli(3200)) != 0 {
		t.Fatalf("asset A balance = %s, want %s", got, milli(3200))
	}
	if got := rig.fund.TokenBalance(assetB); got.Cmp(milli(800)) != 0 {
		t.Fatalf("asset B balance = %s, want %s", got, milli(800))
	}
	if got := rig.fund.TargetProportion(assetA); got != 80 {
		t.Fatalf("asset A weight = %d, want 80", got)
	}
	if got := rig.fund.TargetProportion(assetB); got != 20 {
		t.Fatalf("asset B weight = %d, want 20", got)
	}

	// Holdings moved, value did not.
	value, err := rig.fund.CurrentValue(ctx)
	if err != nil {
		t.Fatalf("CurrentValue: %v", err)
	}
	if value.Cmp(amt(4)) != 0 {
		t.Fatalf("value = %s after rebalance, want %s", value, amt(4))
	}
	if got := rig.fund.ShareSupply(); got.Cmp(amt(4)) != 0 {
		t.Fatalf("supply = %s after rebalance, want %s", got, amt(4))
	}
}

func TestSetProportionsEmptyFundAdoptsWeights(t *testing.T) {
	rig := newTestFund(t, Config{})
	ctx := context.Background()

	err := rig.fund.SetProportions(ctx, creator, []common.Address{assetA, assetB}, []uint8{70, 30})
	if err != nil {
		t.Fatalf("SetProportions: %v", err)
	}
	if rig.router.swaps != 0 {
		t.Fatalf("empty fund traded %d legs, want 0", rig.router.swaps)
	}
	if got := rig.fund.TargetProportion(assetA); got != 70 {
		t.Fatalf("asset A weight = %d, want 70", got)
	}
}

func TestSetProportionsValidation(t *testing.T) {
	assetC := common.HexToAddress("0x0000000000000000000000000000000000000c03")

	tests := []struct {
		name    string
		caller  common.Address
		assets  []common.Address
		weights []uint8
		wantErr error
	}{
		{
			name:    "not owner",
			caller:  holder,
			assets:  []common.Address{assetA, assetB},
			weights: []uint8{60, 40},
			wantErr: domain.ErrUnauthorized,
		},
		{
			name:    "empty asset list",
			caller:  creator,
			assets:  nil,
			weights: nil,
			wantErr: domain.ErrAssetSetMismatch,
		},
		{
			name:    "length mismatch",
			caller:  creator,
			assets:  []common.Address{assetA, assetB},
			weights: []uint8{100},
			wantErr: domain.ErrAssetSetMismatch,
		},
		{
			name:    "foreign asset",
			caller:  creator,
			assets:  []common.Address{assetA, assetC},
			weights: []uint8{60, 40},
			wantErr: domain.ErrAssetSetMismatch,
		},
		{
			name:    "subset of underlyings",
			caller:  creator,
			assets:  []common.Address{assetA},
			weights: []uint8{100},
			wantErr: domain.ErrAssetSetMismatch,
		},
		{
			name:    "duplicate asset",
			caller:  creator,
			assets:  []common.Address{assetA, assetA},
			weights: []uint8{60, 40},
			wantErr: domain.ErrDuplicateAsset,
		},
		{
			name:    "weights do not sum to 100",
			caller:  creator,
			assets:  []common.Address{assetA, assetB},
			weights: []uint8{60, 30},
			wantErr: domain.ErrInvalidWeights,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newTestFund(t, Config{})
			err := rig.fund.SetProportions(context.Background(), tt.caller, tt.assets, tt.weights)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if got := rig.fund.TargetProportion(assetA); got != 50 {
				t.Fatalf("asset A weight changed to %d after rejected update", got)
			}
		})
	}
}

func TestSetProportionsUnwindsOnBuyFailure(t *testing.T) {
	rig := newTestFund(t, Config{})
	ctx := context.Background()

	if _, err := rig.fund.Deposit(ctx, holder, amt(4)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Sells succeed, the buy into A fails; everything rolls back.
	rig.router.failOn[assetA] = true
	err := rig.fund.SetProportions(ctx, creator, []common.Address{assetA, assetB}, []uint8{80, 20})
	if !errors.Is(err, domain.ErrInsufficientLiquidity) {
		t.Fatalf("SetProportions: got %v, want ErrInsufficientLiquidity", err)
	}

	if got := rig.fund.TokenBalance(assetA); got.Cmp(amt(2)) != 0 {
		t.Fatalf("asset A balance = %s after failed rebalance, want %s", got, amt(2))
	}
	if got := rig.fund.TokenBalance(assetB); got.Cmp(amt(2)) != 0 {
		t.Fatalf("asset B balance = %s after failed rebalance, want %s", got, amt(2))
	}
	if got := rig.fund.TargetProportion(assetA); got != 50 {
		t.Fatalf("asset A weight = %d after failed rebalance, want 50", got)
	}
}

func TestSetProportionsRebalancesAfterDrift(t *testing.T) {
	rig := newTestFund(t, Config{})
	ctx := context.Background()

	if _, err := rig.fund.Deposit(ctx, holder, amt(4)); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// A doubles, so the 50/50 book drifts to 2/3 A by value. Re-affirming
	// 50/50 sells A and buys B until values match again.
	rig.oracle.set(assetA, 2)

	err := rig.fund.SetProportions(ctx, creator, []common.Address{assetA, assetB}, []uint8{50, 50})
	if err != nil {
		t.Fatalf("SetProportions: %v", err)
	}

	// Total value 6 base, target 3 per side: A holds 1.5 units at price 2,
	// B holds 3 units at price 1.
	if got := rig.fund.TokenBalance(assetA); got.Cmp(milli(1500)) != 0 {
		t.Fatalf("asset A balance = %s, want %s", got, milli(1500))
	}
	if got := rig.fund.TokenBalance(assetB); got.Cmp(amt(3)) != 0 {
		t.Fatalf("asset B balance = %s, want %s", got, amt(3))
	}

	value, err := rig.fund.CurrentValue(ctx)
	if err != nil {
		t.Fatalf("CurrentValue: %v", err)
	}
	if value.Cmp(amt(6)) != 0 {
		t.Fatalf("value = %s after rebalance, want %s", value, amt(6))
	}
}
