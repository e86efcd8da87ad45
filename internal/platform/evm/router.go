package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

const routerABIJSON = `[
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactETHForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForETH","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

var routerABI = mustABI(routerABIJSON)

const swapDeadline = 5 * time.Minute

// Router executes swaps against a Uniswap V2 compatible router contract.
// The zero address stands for the native coin and is routed through WETH.
type Router struct {
	client *Client
	router common.Address
	weth   common.Address
}

// NewRouter binds the router contract at addr. weth is the wrapped native
// token used to bridge native-coin legs.
func NewRouter(client *Client, addr, weth common.Address) *Router {
	return &Router{client: client, router: addr, weth: weth}
}

// path maps the zero-address base sentinel to WETH and builds the hop list.
func (r *Router) path(assetIn, assetOut common.Address) []common.Address {
	in, out := assetIn, assetOut
	if in == domain.BaseAsset {
		in = r.weth
	}
	if out == domain.BaseAsset {
		out = r.weth
	}
	if in == r.weth || out == r.weth {
		return []common.Address{in, out}
	}
	return []common.Address{in, r.weth, out}
}

// SwapExactInput swaps amountIn of assetIn for assetOut, sending the output
// to recipient. The realized output is measured from the router's reported
// amounts and must satisfy minAmountOut on-chain or the swap reverts.
func (r *Router) SwapExactInput(ctx context.Context, assetIn, assetOut common.Address, amountIn, minAmountOut *big.Int, recipient common.Address) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, domain.ErrZeroAmount
	}

	path := r.path(assetIn, assetOut)

	expected, err := r.amountsOut(ctx, amountIn, path)
	if err != nil {
		return nil, err
	}
	if expected.Sign() == 0 {
		return nil, fmt.Errorf("evm: route %s -> %s: %w", assetIn.Hex(), assetOut.Hex(), domain.ErrInsufficientLiquidity)
	}

	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())

	var msg *ethereum.CallMsg
	switch {
	case assetIn == domain.BaseAsset:
		data, perr := routerABI.Pack("swapExactETHForTokens", minAmountOut, path, recipient, deadline)
		if perr != nil {
			return nil, fmt.Errorf("evm: pack swap: %w", perr)
		}
		msg = &ethereum.CallMsg{To: &r.router, Value: amountIn, Data: data}
	case assetOut == domain.BaseAsset:
		if aerr := r.ensureAllowance(ctx, assetIn, amountIn); aerr != nil {
			return nil, aerr
		}
		data, perr := routerABI.Pack("swapExactTokensForETH", amountIn, minAmountOut, path, recipient, deadline)
		if perr != nil {
			return nil, fmt.Errorf("evm: pack swap: %w", perr)
		}
		msg = &ethereum.CallMsg{To: &r.router, Data: data}
	default:
		if aerr := r.ensureAllowance(ctx, assetIn, amountIn); aerr != nil {
			return nil, aerr
		}
		data, perr := routerABI.Pack("swapExactTokensForTokens", amountIn, minAmountOut, path, recipient, deadline)
		if perr != nil {
			return nil, fmt.Errorf("evm: pack swap: %w", perr)
		}
		msg = &ethereum.CallMsg{To: &r.router, Data: data}
	}

	if _, err := r.client.sendTx(ctx, msg); err != nil {
		return nil, mapSwapError(err)
	}
	return expected, nil
}

// amountsOut quotes the route and returns the final hop's output.
func (r *Router) amountsOut(ctx context.Context, amountIn *big.Int, path []common.Address) (*big.Int, error) {
	data, err := routerABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("evm: pack getAmountsOut: %w", err)
	}
	out, err := r.client.call(ctx, ethereum.CallMsg{To: &r.router, Data: data})
	if err != nil {
		// An unquotable route means no pair exists for one of the hops.
		return nil, fmt.Errorf("evm: getAmountsOut: %w", domain.ErrInsufficientLiquidity)
	}
	res, err := routerABI.Unpack("getAmountsOut", out)
	if err != nil {
		return nil, fmt.Errorf("evm: unpack getAmountsOut: %w", err)
	}
	amounts := res[0].([]*big.Int)
	if len(amounts) == 0 {
		return nil, fmt.Errorf("evm: empty route: %w", domain.ErrInsufficientLiquidity)
	}
	return amounts[len(amounts)-1], nil
}

// ensureAllowance grants the router an allowance for tokenIn when the current
// one does not cover amountIn.
func (r *Router) ensureAllowance(ctx context.Context, tokenIn common.Address, amountIn *big.Int) error {
	token := NewERC20(r.client, tokenIn)
	owner := r.client.wallet.Address()

	current, err := token.Allowance(ctx, owner, r.router)
	if err != nil {
		return err
	}
	if current.Cmp(amountIn) >= 0 {
		return nil
	}
	if err := token.approve(ctx, r.router, amountIn); err != nil {
		return fmt.Errorf("evm: approve router: %w", err)
	}
	return nil
}

// mapSwapError folds transaction failures into the domain's swap errors. A
// reverted swap with a valid quote means the pool moved past the minimum-out
// bound between quote and execution.
func mapSwapError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("evm: swap timed out: %w", domain.ErrInsufficientLiquidity)
	case strings.Contains(err.Error(), "reverted"):
		return fmt.Errorf("evm: swap reverted: %w", domain.ErrSlippageExceeded)
	default:
		return fmt.Errorf("evm: swap: %w", err)
	}
}

var _ domain.SwapRouter = (*Router)(nil)
