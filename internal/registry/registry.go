// Package registry implements the basket factory. It charges the one-time
// creation fee in the platform utility token, instantiates funds, and keeps
// the append-only fund arena with a creator index. Fund handles are
// deterministic, derived from the registry handle and the creation nonce.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/etherindex/basketd/internal/domain"
	"github.com/etherindex/basketd/internal/engine"
)

// Config holds the registry's fee policy and the defaults stamped onto every
// fund it creates.
type Config struct {
	Owner    common.Address
	Treasury common.Address

	CreationFee *big.Int // charged in the utility token; zero disables the fee

	EntryFeeBps         uint32
	FeeSplitCreatorPct  uint8
	FeeSplitTreasuryPct uint8
	MaxSlippageBps      uint32
}

// Deps are the ports shared by every fund the registry creates.
type Deps struct {
	Utility  domain.UtilityToken
	Oracle   domain.PriceOracle
	Router   domain.SwapRouter
	Payments domain.BaseTransfer
	Store    domain.FundStore // optional; indexes created funds for display
}

// Registry is the basket factory and arena.
type Registry struct {
	mu sync.RWMutex

	address     common.Address
	owner       common.Address
	treasury    common.Address
	creationFee *big.Int

	entryFeeBps         uint32
	feeSplitCreatorPct  uint8
	feeSplitTreasuryPct uint8
	maxSlippageBps      uint32

	deps   Deps
	funds  []*engine.Fund
	byAddr map[common.Address]*engine.Fund
	// byCreator maps creator to fund indices in creation order.
	byCreator map[common.Address][]int

	logger *slog.Logger
}

// New constructs a Registry. The registry handle is derived from the owner
// so allowances for the creation fee have a stable spender.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Registry, error) {
	if cfg.Owner == (common.Address{}) {
		return nil, domain.ErrZeroAddress
	}
	if cfg.Treasury == (common.Address{}) {
		return nil, domain.ErrInvalidTreasury
	}
	if deps.Oracle == nil || deps.Router == nil || deps.Payments == nil || deps.Utility == nil {
		return nil, fmt.Errorf("registry: missing port: %w", domain.ErrZeroAddress)
	}
	fee := cfg.CreationFee
	if fee == nil {
		fee = new(big.Int)
	}

	addr := common.BytesToAddress(crypto.Keccak256([]byte("basketd/registry"), cfg.Owner.Bytes())[12:])
	return &Registry{
		address:             addr,
		owner:               cfg.Owner,
		treasury:            cfg.Treasury,
		creationFee:         new(big.Int).Set(fee),
		entryFeeBps:         cfg.EntryFeeBps,
		feeSplitCreatorPct:  cfg.FeeSplitCreatorPct,
		feeSplitTreasuryPct: cfg.FeeSplitTreasuryPct,
		maxSlippageBps:      cfg.MaxSlippageBps,
		deps:                deps,
		byAddr:              make(map[common.Address]*engine.Fund),
		byCreator:           make(map[common.Address][]int),
		logger:              logger.With(slog.String("component", "registry")),
	}, nil
}

// Address returns the registry's stable handle, the spender creators approve
// for the creation fee.
func (r *Registry) Address() common.Address { return r.address }

// CreationFee returns the current creation fee.
func (r *Registry) CreationFee() *big.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return new(big.Int).Set(r.creationFee)
}

// defaultWeights splits 100 evenly across n assets; the first asset absorbs
// the remainder so the sum is exactly 100.
func defaultWeights(n int) []uint8 {
	w := make([]uint8, n)
	each := uint8(100 / n)
	for i := range w {
		w[i] = each
	}
	w[0] += uint8(100 - int(each)*n)
	return w
}

// CreateFund charges the creation fee from creator and instantiates a new
// fund with default-equal weights unless weights is non-nil. The fee
// transfer completes before the fund exists; a failed transfer creates
// nothing.
func (r *Registry) CreateFund(ctx context.Context, creator common.Address, name, ticker string, assets []common.Address, weights []uint8) (*engine.Fund, error) {
	if creator == (common.Address{}) {
		return nil, domain.ErrZeroAddress
	}
	if name == "" || ticker == "" {
		return nil, fmt.Errorf("registry: name and ticker are required")
	}
	if len(assets) == 0 {
		return nil, domain.ErrNoAssets
	}
	seen := make(map[common.Address]struct{}, len(assets))
	for _, a := range assets {
		if a == (common.Address{}) {
			return nil, domain.ErrZeroAddress
		}
		if _, dup := seen[a]; dup {
			return nil, domain.ErrDuplicateAsset
		}
		seen[a] = struct{}{}
	}
	if weights == nil {
		weights = defaultWeights(len(assets))
	} else {
		// Weights must be rejected before the fee moves; a creator must
		// never pay for a fund that cannot be instantiated.
		if len(weights) != len(assets) {
			return nil, domain.ErrInvalidWeights
		}
		sum := 0
		for _, w := range weights {
			sum += int(w)
		}
		if sum != 100 {
			return nil, domain.ErrInvalidWeights
		}
	}

	// Charge the creation fee before anything is instantiated.
	if err := r.chargeCreationFee(ctx, creator); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	index := len(r.funds)
	fundAddr := crypto.CreateAddress(r.address, uint64(index))

	fund, err := engine.New(engine.Config{
		Address:             fundAddr,
		Name:                name,
		Ticker:              ticker,
		Creator:             creator,
		Treasury:            r.treasury,
		Assets:              assets,
		Weights:             weights,
		EntryFeeBps:         r.entryFeeBps,
		FeeSplitCreatorPct:  r.feeSplitCreatorPct,
		FeeSplitTreasuryPct: r.feeSplitTreasuryPct,
		MaxSlippageBps:      r.maxSlippageBps,
	}, r.deps.Oracle, r.deps.Router, r.deps.Payments, r.logger)
	if err != nil {
		return nil, fmt.Errorf("registry: create fund: %w", err)
	}

	r.funds = append(r.funds, fund)
	r.byAddr[fundAddr] = fund
	r.byCreator[creator] = append(r.byCreator[creator], index)

	if r.deps.Store != nil {
		rec := domain.FundRecord{
			Address:   fundAddr,
			Name:      name,
			Ticker:    ticker,
			Creator:   creator,
			Assets:    append([]common.Address(nil), assets...),
			CreatedAt: time.Now().UTC(),
		}
		if err := r.deps.Store.Insert(ctx, rec); err != nil {
			// The index is a display collaborator; the arena stays the
			// source of truth.
			r.logger.WarnContext(ctx, "fund index insert failed",
				slog.String("fund", fundAddr.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}

	r.logger.InfoContext(ctx, "fund created",
		slog.Int("index", index),
		slog.String("fund", fundAddr.Hex()),
		slog.String("creator", creator.Hex()),
		slog.String("ticker", ticker),
	)
	return fund, nil
}

// chargeCreationFee verifies balance and allowance, then moves the fee from
// creator to the treasury.
func (r *Registry) chargeCreationFee(ctx context.Context, creator common.Address) error {
	r.mu.RLock()
	fee := new(big.Int).Set(r.creationFee)
	treasury := r.treasury
	r.mu.RUnlock()

	if fee.Sign() == 0 {
		return nil
	}

	bal, err := r.deps.Utility.BalanceOf(ctx, creator)
	if err != nil {
		return fmt.Errorf("registry: utility balance: %w", err)
	}
	if bal.Cmp(fee) < 0 {
		return domain.ErrInsufficientFee
	}
	allowance, err := r.deps.Utility.Allowance(ctx, creator, r.address)
	if err != nil {
		return fmt.Errorf("registry: utility allowance: %w", err)
	}
	if allowance.Cmp(fee) < 0 {
		return domain.ErrFeeNotApproved
	}
	if err := r.deps.Utility.TransferFrom(ctx, r.address, creator, treasury, fee); err != nil {
		return fmt.Errorf("registry: charge creation fee: %w", err)
	}
	return nil
}

// FundAt returns the fund at a creation-order index.
func (r *Registry) FundAt(index int) (*engine.Fund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.funds) {
		return nil, domain.ErrNotFound
	}
	return r.funds[index], nil
}

// FundByAddress returns the fund with the given handle.
func (r *Registry) FundByAddress(addr common.Address) (*engine.Fund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.byAddr[addr]; ok {
		return f, nil
	}
	return nil, domain.ErrNotFound
}

// Funds returns a page of funds in creation order.
func (r *Registry) Funds(offset, limit int) []*engine.Fund {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if offset < 0 || offset >= len(r.funds) {
		return nil
	}
	end := len(r.funds)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]*engine.Fund(nil), r.funds[offset:end]...)
}

// CreatorFunds returns every fund created by creator, in creation order.
func (r *Registry) CreatorFunds(creator common.Address) []*engine.Fund {
	r.mu.RLock()
	defer r.mu.RUnlock()
	indices := r.byCreator[creator]
	out := make([]*engine.Fund, 0, len(indices))
	for _, i := range indices {
		out = append(out, r.funds[i])
	}
	return out
}

// Count returns the number of created funds.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.funds)
}

// UpdateTreasury changes the fee recipient for the registry and future
// funds. Owner-only; the zero address is rejected.
func (r *Registry) UpdateTreasury(caller, treasury common.Address) error {
	if treasury == (common.Address{}) {
		return domain.ErrInvalidTreasury
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return domain.ErrUnauthorized
	}
	r.treasury = treasury
	r.logger.Info("treasury updated", slog.String("treasury", treasury.Hex()))
	return nil
}

// SetCreationFee updates the creation fee. Owner-only.
func (r *Registry) SetCreationFee(caller common.Address, fee *big.Int) error {
	if fee == nil || fee.Sign() < 0 {
		return domain.ErrZeroAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.owner {
		return domain.ErrUnauthorized
	}
	r.creationFee = new(big.Int).Set(fee)
	r.logger.Info("creation fee updated", slog.String("fee", fee.String()))
	return nil
}
