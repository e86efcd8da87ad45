package engine

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/etherindex/basketd/internal/domain"
)

func TestDepositBootstrap(t *testing.T) {
	rig := newTestFund(t, Config{EntryFeeBps: 100}) // 1% entry fee, split 50/50

	minted, err := rig.fund.Deposit(context.Background(), holder, amt(5))
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	// 5 in, 1% fee of 0.05 split evenly, 4.95 swapped half-and-half at equal
	// prices. First deposit mints shares one-to-one against value added.
	if want := milli(4950); minted.Cmp(want) != 0 {
		t.Fatalf("minted = %s, want %s", minted, want)
	}
	if got := rig.fund.ShareSupply(); got.Cmp(milli(4950)) != 0 {
		t.Fatalf("supply = %s, want %s", got, milli(4950))
	}
	if got := rig.fund.ShareBalance(holder); got.Cmp(milli(4950)) != 0 {
		t.Fatalf("holder shares = %s, want %s", got, milli(4950))
	}
	if got := rig.fund.TokenBalance(assetA); got.Cmp(milli(2475)) != 0 {
		t.Fatalf("asset A balance = %s, want %s", got, milli(2475))
	}
	if got := rig.fund.TokenBalance(assetB); got.Cmp(milli(2475)) != 0 {
		t.Fatalf("asset B balance = %s, want %s", got, milli(2475))
	}
	if got := rig.payments.got(creator); got.Cmp(milli(25)) != 0 {
		t.Fatalf("creator fee = %s, want %s", got, milli(25))
	}
	if got := rig.payments.got(treasury); got.Cmp(milli(25)) != 0 {
		t.Fatalf("treasury fee = %s, want %s", got, milli(25))
	}
}

func TestDepositMintsProportionallyAfterAppreciation(t *testing.T) {
	rig := newTestFund(t, Config{EntryFeeBps: 100})
	ctx := context.Background()

	if _, err := rig.fund.Deposit(ctx, holder, amt(5)); err != nil {
		t.Fatalf("bootstrap deposit: %v", err)
	}

	// Asset A doubles: fund holds 2.475 A + 2.475 B, now worth 7.425 base.
	rig.oracle.set(assetA, 2)

	other := holder
	minted, err := rig.fund.Deposit(ctx, other, amt(5))
	if err != nil {
		t.Fatalf("second deposit: %v", err)
	}

	// Net 4.95 buys 1.2375 A (at 2) + 2.475 B, value added 4.95. Minted =
	// 4.95 * 4.95 / 7.425 = 3.3 shares.
	if want := milli(3300); minted.Cmp(want) != 0 {
		t.Fatalf("minted = %s, want %s", minted, want)
	}
	if want := milli(8250); rig.fund.ShareSupply().Cmp(want) != 0 {
		t.Fatalf("supply = %s, want %s", rig.fund.ShareSupply(), want)
	}
	// 2.475 from bootstrap plus 1.2375 bought now.
	wantA := new(big.Int).Add(milli(3712), big.NewInt(500_000_000_000_000))
	if got := rig.fund.TokenBalance(assetA); got.Cmp(wantA) != 0 {
		t.Fatalf("asset A balance = %s, want %s", got, wantA)
	}
}

func TestDepositRejectsZeroAmount(t *testing.T) {
	rig := newTestFund(t, Config{})

	for _, bad := range []*big.Int{nil, new(big.Int), big.NewInt(-1)} {
		if _, err := rig.fund.Deposit(context.Background(), holder, bad); !errors.Is(err, domain.ErrZeroAmount) {
			t.Fatalf("Deposit(%v): got %v, want ErrZeroAmount", bad, err)
		}
	}
}

func TestDepositUnwindsOnLegFailure(t *testing.T) {
	rig := newTestFund(t, Config{EntryFeeBps: 100})
	rig.router.failOn[assetB] = true

	_, err := rig.fund.Deposit(context.Background(), holder, amt(5))
	if !errors.Is(err, domain.ErrInsufficientLiquidity) {
		t.Fatalf("Deposit: got %v, want ErrInsufficientLiquidity", err)
	}

	// Nothing committed: no balances, no shares, no fee payouts.
	if got := rig.fund.ShareSupply(); got.Sign() != 0 {
		t.Fatalf("supply = %s after failed deposit, want 0", got)
	}
	if got := rig.fund.TokenBalance(assetA); got.Sign() != 0 {
		t.Fatalf("asset A balance = %s after failed deposit, want 0", got)
	}
	if got := rig.payments.got(creator); got.Sign() != 0 {
		t.Fatalf("creator was paid %s despite failed deposit", got)
	}
}

func TestDepositNoFee(t *testing.T) {
	rig := newTestFund(t, Config{}) // EntryFeeBps zero

	minted, err := rig.fund.Deposit(context.Background(), holder, amt(4))
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if minted.Cmp(amt(4)) != 0 {
		t.Fatalf("minted = %s, want %s", minted, amt(4))
	}
	if got := rig.payments.got(creator); got.Sign() != 0 {
		t.Fatalf("creator fee = %s, want 0", got)
	}
	if got := rig.payments.got(treasury); got.Sign() != 0 {
		t.Fatalf("treasury fee = %s, want 0", got)
	}
}

func TestDepositDustRejected(t *testing.T) {
	rig := newTestFund(t, Config{EntryFeeBps: 100})

	// One wei splits across two 50% legs as zero input each: nothing is
	// bought, so no shares can mint and no fee may be taken.
	_, err := rig.fund.Deposit(context.Background(), holder, big.NewInt(1))
	if !errors.Is(err, domain.ErrDustDeposit) {
		t.Fatalf("got %v, want ErrDustDeposit", err)
	}
	if rig.fund.ShareSupply().Sign() != 0 {
		t.Fatalf("supply = %s after dust deposit, want 0", rig.fund.ShareSupply())
	}
	if rig.router.swaps != 0 {
		t.Fatalf("router saw %d swaps, want 0", rig.router.swaps)
	}
	if got := rig.payments.got(creator); got.Sign() != 0 {
		t.Fatalf("creator fee = %s after dust deposit, want 0", got)
	}
	if got := rig.payments.got(treasury); got.Sign() != 0 {
		t.Fatalf("treasury fee = %s after dust deposit, want 0", got)
	}
}
