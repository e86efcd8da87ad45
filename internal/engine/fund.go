// Package engine implements the basket accounting engine: per-fund token
// holdings, target weights, the share ledger, and the deposit / withdraw /
// rebalance operations around the oracle and swap router ports.
//
// Every state-changing operation on a fund is serialized by the fund's
// exclusive lock and works from a single quote snapshot taken under that
// lock, so concurrent callers always observe consistent accounting state.
package engine

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

// Config carries the immutable parameters of a fund plus its initial fee
// policy. Registry fills it in at creation time.
type Config struct {
	Address  common.Address
	Name     string
	Ticker   string
	Creator  common.Address
	Owner    common.Address // defaults to Creator when zero
	Treasury common.Address

	Assets  []common.Address
	Weights []uint8 // percent per asset, must sum to exactly 100

	EntryFeeBps         uint32 // e.g. 100 = 1%
	FeeSplitCreatorPct  uint8
	FeeSplitTreasuryPct uint8
	MaxSlippageBps      uint32 // tolerance applied to every swap leg
}

// Fund is one basket instance. All mutable state is guarded by mu; assets,
// name, ticker, and creator are fixed at creation.
type Fund struct {
	mu sync.Mutex

	address common.Address
	name    string
	ticker  string
	creator common.Address

	owner    common.Address
	treasury common.Address

	assets   []common.Address
	weights  map[common.Address]uint8
	balances map[common.Address]*big.Int
	shares   map[common.Address]*big.Int
	supply   *big.Int

	entryFeeBps        uint32
	feeSplitCreatorPct uint8
	maxSlippageBps     uint32

	oracle   domain.PriceOracle
	router   domain.SwapRouter
	payments domain.BaseTransfer
	logger   *slog.Logger
}

// New validates cfg and constructs an empty fund. The oracle, router, and
// payments ports are injected here and never hard-linked to a provider.
func New(cfg Config, oracle domain.PriceOracle, router domain.SwapRouter, payments domain.BaseTransfer, logger *slog.Logger) (*Fund, error) {
	if len(cfg.Assets) == 0 {
		return nil, domain.ErrNoAssets
	}
	if len(cfg.Weights) != len(cfg.Assets) {
		return nil, domain.ErrInvalidWeights
	}
	if cfg.Treasury == (common.Address{}) {
		return nil, domain.ErrInvalidTreasury
	}
	if cfg.Creator == (common.Address{}) {
		return nil, domain.ErrZeroAddress
	}
	if oracle == nil || router == nil || payments == nil {
		return nil, fmt.Errorf("engine: nil port: %w", domain.ErrZeroAddress)
	}
	if int(cfg.FeeSplitCreatorPct)+int(cfg.FeeSplitTreasuryPct) != 100 {
		return nil, fmt.Errorf("engine: fee split must sum to 100: %w", domain.ErrInvalidWeights)
	}

	owner := cfg.Owner
	if owner == (common.Address{}) {
		owner = cfg.Creator
	}

	weights := make(map[common.Address]uint8, len(cfg.Assets))
	balances := make(map[common.Address]*big.Int, len(cfg.Assets))
	sum := 0
	for i, a := range cfg.Assets {
		if a == (common.Address{}) {
			return nil, domain.ErrZeroAddress
		}
		if _, dup := weights[a]; dup {
			return nil, domain.ErrDuplicateAsset
		}
		weights[a] = cfg.Weights[i]
		balances[a] = new(big.Int)
		sum += int(cfg.Weights[i])
	}
	if sum != 100 {
		return nil, domain.ErrInvalidWeights
	}

	return &Fund{
		address:            cfg.Address,
		name:               cfg.Name,
		ticker:             cfg.Ticker,
		creator:            cfg.Creator,
		owner:              owner,
		treasury:           cfg.Treasury,
		assets:             append([]common.Address(nil), cfg.Assets...),
		weights:            weights,
		balances:           balances,
		shares:             make(map[common.Address]*big.Int),
		supply:             new(big.Int),
		entryFeeBps:        cfg.EntryFeeBps,
		feeSplitCreatorPct: cfg.FeeSplitCreatorPct,
		maxSlippageBps:     cfg.MaxSlippageBps,
		oracle:             oracle,
		router:             router,
		payments:           payments,
		logger:             logger.With(slog.String("component", "engine"), slog.String("fund", cfg.Address.Hex())),
	}, nil
}

// Address returns the fund's stable handle.
func (f *Fund) Address() common.Address { return f.address }

// Name returns the display name.
func (f *Fund) Name() string { return f.name }

// Ticker returns the display ticker.
func (f *Fund) Ticker() string { return f.ticker }

// Creator returns the account that created the fund.
func (f *Fund) Creator() common.Address { return f.creator }

// Owner returns the current administrative owner.
func (f *Fund) Owner() common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owner
}

// Treasury returns the current platform fee recipient.
func (f *Fund) Treasury() common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.treasury
}

// UnderlyingTokens returns the ordered underlying asset set.
func (f *Fund) UnderlyingTokens() []common.Address {
	return append([]common.Address(nil), f.assets...)
}

// TargetProportion returns the target weight in percent for asset, or 0 if
// the asset is not part of the fund.
func (f *Fund) TargetProportion(asset common.Address) uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.weights[asset]
}

// TokenBalance returns the held quantity of asset.
func (f *Fund) TokenBalance(asset common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[asset]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// ShareBalance returns holder's share balance.
func (f *Fund) ShareBalance(holder common.Address) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.shares[holder]; ok {
		return new(big.Int).Set(s)
	}
	return new(big.Int)
}

// ShareSupply returns the total outstanding shares.
func (f *Fund) ShareSupply() *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.supply)
}

// UpdateTreasury changes the platform fee recipient. Owner-only; the zero
// address is rejected.
func (f *Fund) UpdateTreasury(caller, treasury common.Address) error {
	if treasury == (common.Address{}) {
		return domain.ErrInvalidTreasury
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.owner {
		return domain.ErrUnauthorized
	}
	f.treasury = treasury
	f.logger.Info("treasury updated", slog.String("treasury", treasury.Hex()))
	return nil
}

// UpdateOracle swaps the price oracle implementation. Owner-only; nil is
// rejected. Effective immediately.
func (f *Fund) UpdateOracle(caller common.Address, oracle domain.PriceOracle) error {
	if oracle == nil {
		return domain.ErrZeroAddress
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if caller != f.owner {
		return domain.ErrUnauthorized
	}
	f.oracle = oracle
	f.logger.Info("oracle updated")
	return nil
}

// mintLocked credits amount shares to holder. Caller holds mu.
func (f *Fund) mintLocked(holder common.Address, amount *big.Int) {
	if amount.Sign() <= 0 {
		return
	}
	s, ok := f.shares[holder]
	if !ok {
		s = new(big.Int)
		f.shares[holder] = s
	}
	s.Add(s, amount)
	f.supply.Add(f.supply, amount)
}

// burnLocked debits amount shares from holder. Caller holds mu and has
// already verified the balance.
func (f *Fund) burnLocked(holder common.Address, amount *big.Int) {
	s := f.shares[holder]
	s.Sub(s, amount)
	if s.Sign() == 0 {
		delete(f.shares, holder)
	}
	f.supply.Sub(f.supply, amount)
}
