// Package sim provides an in-process market simulator: constant-product
// pools against the base asset and a simple token bank. It backs tests and
// the paper-trading server mode the same way the on-chain router backs
// engine mode.
package sim

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

// pool is a constant-product pool pairing one asset with the base asset.
type pool struct {
	baseReserve  *big.Int
	assetReserve *big.Int
}

// Router implements domain.SwapRouter over a set of base-paired
// constant-product pools. Asset-to-asset trades route through the base
// asset in two hops committed atomically.
type Router struct {
	mu     sync.Mutex
	pools  map[common.Address]*pool
	feeBps int64
}

// NewRouter creates a Router with the given LP fee in basis points
// (Uniswap V2 charges 30).
func NewRouter(feeBps int64) *Router {
	return &Router{
		pools:  make(map[common.Address]*pool),
		feeBps: feeBps,
	}
}

// SetPool seeds or replaces the base/asset pool reserves.
func (r *Router) SetPool(asset common.Address, baseReserve, assetReserve *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[asset] = &pool{
		baseReserve:  new(big.Int).Set(baseReserve),
		assetReserve: new(big.Int).Set(assetReserve),
	}
}

// amountOut is the constant-product output for amountIn after the LP fee.
func (r *Router) amountOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(10_000-r.feeBps))
	num := new(big.Int).Mul(inWithFee, reserveOut)
	den := new(big.Int).Mul(reserveIn, big.NewInt(10_000))
	den.Add(den, inWithFee)
	return num.Quo(num, den)
}

// hop computes one swap against a pool without committing reserves.
func (r *Router) hop(p *pool, baseIn bool, amountIn *big.Int) (*big.Int, error) {
	var reserveIn, reserveOut *big.Int
	if baseIn {
		reserveIn, reserveOut = p.baseReserve, p.assetReserve
	} else {
		reserveIn, reserveOut = p.assetReserve, p.baseReserve
	}
	if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return nil, domain.ErrInsufficientLiquidity
	}
	out := r.amountOut(amountIn, reserveIn, reserveOut)
	if out.Sign() == 0 || out.Cmp(reserveOut) >= 0 {
		return nil, domain.ErrInsufficientLiquidity
	}
	return out, nil
}

// commit applies one computed hop to the pool's reserves.
func commit(p *pool, baseIn bool, amountIn, amountOut *big.Int) {
	if baseIn {
		p.baseReserve.Add(p.baseReserve, amountIn)
		p.assetReserve.Sub(p.assetReserve, amountOut)
	} else {
		p.assetReserve.Add(p.assetReserve, amountIn)
		p.baseReserve.Sub(p.baseReserve, amountOut)
	}
}

// SwapExactInput executes a trade. Reserves only move once the whole route
// has been priced and the minimum output check has passed, so a failed call
// leaves the pools untouched.
func (r *Router) SwapExactInput(_ context.Context, assetIn, assetOut common.Address, amountIn, minAmountOut *big.Int, _ common.Address) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, domain.ErrInsufficientLiquidity
	}
	if assetIn == assetOut {
		return nil, domain.ErrInsufficientLiquidity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case assetIn == domain.BaseAsset:
		p, ok := r.pools[assetOut]
		if !ok {
			return nil, domain.ErrInsufficientLiquidity
		}
		out, err := r.hop(p, true, amountIn)
		if err != nil {
			return nil, err
		}
		if minAmountOut != nil && out.Cmp(minAmountOut) < 0 {
			return nil, domain.ErrSlippageExceeded
		}
		commit(p, true, amountIn, out)
		return out, nil

	case assetOut == domain.BaseAsset:
		p, ok := r.pools[assetIn]
		if !ok {
			return nil, domain.ErrInsufficientLiquidity
		}
		out, err := r.hop(p, false, amountIn)
		if err != nil {
			return nil, err
		}
		if minAmountOut != nil && out.Cmp(minAmountOut) < 0 {
			return nil, domain.ErrSlippageExceeded
		}
		commit(p, false, amountIn, out)
		return out, nil

	default: // two hops through base
		pIn, okIn := r.pools[assetIn]
		pOut, okOut := r.pools[assetOut]
		if !okIn || !okOut {
			return nil, domain.ErrInsufficientLiquidity
		}
		baseOut, err := r.hop(pIn, false, amountIn)
		if err != nil {
			return nil, err
		}
		out, err := r.hop(pOut, true, baseOut)
		if err != nil {
			return nil, err
		}
		if minAmountOut != nil && out.Cmp(minAmountOut) < 0 {
			return nil, domain.ErrSlippageExceeded
		}
		commit(pIn, false, amountIn, baseOut)
		commit(pOut, true, baseOut, out)
		return out, nil
	}
}

var _ domain.SwapRouter = (*Router)(nil)
