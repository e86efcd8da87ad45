package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

var (
	assetA   = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	assetB   = common.HexToAddress("0x0000000000000000000000000000000000000b02")
	creator  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	holder   = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	fundAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
)

// amt scales n into 18-decimal fixed point.
func amt(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), one18)
}

// milli scales n thousandths into 18-decimal fixed point.
func milli(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000))
}

// stubOracle serves whole-dollar prices from a mutable map.
type stubOracle struct {
	mu     sync.Mutex
	prices map[common.Address]int64
}

func newStubOracle(base int64) *stubOracle {
	return &stubOracle{prices: map[common.Address]int64{domain.BaseAsset: base}}
}

func (o *stubOracle) set(asset common.Address, usd int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[asset] = usd
}

func (o *stubOracle) SetPriceFeed(context.Context, common.Address, common.Hash) error {
	return nil
}

func (o *stubOracle) GetPrice(_ context.Context, asset common.Address) (domain.Quote, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.prices[asset]
	if !ok {
		return domain.Quote{}, domain.ErrFeedNotConfigured
	}
	return domain.Quote{Price: big.NewInt(p), Expo: 0, PublishTime: time.Now()}, nil
}

// stubRouter fills every swap exactly at the oracle prices, enforcing the
// caller's minimum output. failOn aborts any leg whose output asset matches.
type stubRouter struct {
	oracle *stubOracle
	failOn map[common.Address]bool
	swaps  int
}

func newStubRouter(o *stubOracle) *stubRouter {
	return &stubRouter{oracle: o, failOn: make(map[common.Address]bool)}
}

func (r *stubRouter) SwapExactInput(ctx context.Context, assetIn, assetOut common.Address, amountIn, minAmountOut *big.Int, _ common.Address) (*big.Int, error) {
	if r.failOn[assetOut] {
		return nil, domain.ErrInsufficientLiquidity
	}
	qIn, err := r.oracle.GetPrice(ctx, assetIn)
	if err != nil {
		return nil, err
	}
	qOut, err := r.oracle.GetPrice(ctx, assetOut)
	if err != nil {
		return nil, err
	}
	out := new(big.Int).Mul(amountIn, qIn.Price18())
	out.Quo(out, qOut.Price18())
	if minAmountOut != nil && out.Cmp(minAmountOut) < 0 {
		return nil, domain.ErrSlippageExceeded
	}
	r.swaps++
	return out, nil
}

// stubPayments records base-asset transfers per recipient.
type stubPayments struct {
	mu   sync.Mutex
	paid map[common.Address]*big.Int
	fail bool
}

func newStubPayments() *stubPayments {
	return &stubPayments{paid: make(map[common.Address]*big.Int)}
}

func (p *stubPayments) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	if p.fail {
		return domain.ErrInsufficientLiquidity
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.paid[to]
	if !ok {
		cur = new(big.Int)
		p.paid[to] = cur
	}
	cur.Add(cur, amount)
	return nil
}

func (p *stubPayments) got(to common.Address) *big.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.paid[to]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testRig struct {
	fund     *Fund
	oracle   *stubOracle
	router   *stubRouter
	payments *stubPayments
}

// newTestFund builds a two-asset 50/50 fund with equal $1 prices everywhere.
func newTestFund(t *testing.T, cfg Config) *testRig {
	t.Helper()

	oracle := newStubOracle(1)
	oracle.set(assetA, 1)
	oracle.set(assetB, 1)
	router := newStubRouter(oracle)
	payments := newStubPayments()

	if cfg.Address == (common.Address{}) {
		cfg.Address = fundAddr
	}
	if cfg.Creator == (common.Address{}) {
		cfg.Creator = creator
	}
	if cfg.Treasury == (common.Address{}) {
		cfg.Treasury = treasury
	}
	if cfg.Assets == nil {
		cfg.Assets = []common.Address{assetA, assetB}
		cfg.Weights = []uint8{50, 50}
	}
	if cfg.FeeSplitCreatorPct == 0 && cfg.FeeSplitTreasuryPct == 0 {
		cfg.FeeSplitCreatorPct = 50
		cfg.FeeSplitTreasuryPct = 50
	}

	fund, err := New(cfg, oracle, router, payments, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testRig{fund: fund, oracle: oracle, router: router, payments: payments}
}

func TestNewValidation(t *testing.T) {
	oracle := newStubOracle(1)
	router := newStubRouter(oracle)
	payments := newStubPayments()

	base := Config{
		Address:             fundAddr,
		Creator:             creator,
		Treasury:            treasury,
		Assets:              []common.Address{assetA, assetB},
		Weights:             []uint8{50, 50},
		FeeSplitCreatorPct:  50,
		FeeSplitTreasuryPct: 50,
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "no assets",
			mutate:  func(c *Config) { c.Assets = nil; c.Weights = nil },
			wantErr: domain.ErrNoAssets,
		},
		{
			name:    "weights length mismatch",
			mutate:  func(c *Config) { c.Weights = []uint8{100} },
			wantErr: domain.ErrInvalidWeights,
		},
		{
			name:    "weights do not sum to 100",
			mutate:  func(c *Config) { c.Weights = []uint8{50, 40} },
			wantErr: domain.ErrInvalidWeights,
		},
		{
			name:    "duplicate asset",
			mutate:  func(c *Config) { c.Assets = []common.Address{assetA, assetA} },
			wantErr: domain.ErrDuplicateAsset,
		},
		{
			name:    "zero treasury",
			mutate:  func(c *Config) { c.Treasury = common.Address{} },
			wantErr: domain.ErrInvalidTreasury,
		},
		{
			name:    "zero creator",
			mutate:  func(c *Config) { c.Creator = common.Address{} },
			wantErr: domain.ErrZeroAddress,
		},
		{
			name:    "fee split does not sum to 100",
			mutate:  func(c *Config) { c.FeeSplitCreatorPct = 60 },
			wantErr: domain.ErrInvalidWeights,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.Assets = append([]common.Address(nil), base.Assets...)
			cfg.Weights = append([]uint8(nil), base.Weights...)
			tt.mutate(&cfg)

			_, err := New(cfg, oracle, router, payments, testLogger())
			if err == nil {
				t.Fatalf("expected error %v, got nil", tt.wantErr)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestOwnerDefaultsToCreator(t *testing.T) {
	rig := newTestFund(t, Config{})
	if rig.fund.Owner() != creator {
		t.Fatalf("owner = %s, want creator %s", rig.fund.Owner().Hex(), creator.Hex())
	}
}

func TestUpdateTreasury(t *testing.T) {
	rig := newTestFund(t, Config{})
	other := common.HexToAddress("0x00000000000000000000000000000000000000d2")

	if err := rig.fund.UpdateTreasury(holder, other); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("non-owner update: got %v, want ErrUnauthorized", err)
	}
	if err := rig.fund.UpdateTreasury(creator, common.Address{}); !errors.Is(err, domain.ErrInvalidTreasury) {
		t.Fatalf("zero treasury: got %v, want ErrInvalidTreasury", err)
	}
	if err := rig.fund.UpdateTreasury(creator, other); err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if rig.fund.Treasury() != other {
		t.Fatalf("treasury = %s, want %s", rig.fund.Treasury().Hex(), other.Hex())
	}
}
