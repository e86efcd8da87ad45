package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PriceOracle maps an asset to a USD quote through an externally supplied
// 32-byte feed identifier. Implementations are interchangeable; the
// accounting engine depends only on this contract, never on a provider's
// wire format.
type PriceOracle interface {
	// SetPriceFeed registers feedID for asset. It returns ErrInvalidFeedID
	// for the zero feed identifier.
	SetPriceFeed(ctx context.Context, asset common.Address, feedID common.Hash) error

	// GetPrice returns the latest USD quote for asset. It returns
	// ErrFeedNotConfigured if no feed is registered and ErrStalePrice if the
	// feed's data exceeds the staleness window.
	GetPrice(ctx context.Context, asset common.Address) (Quote, error)
}

// SwapRouter executes a trade of assetIn for assetOut and returns the actual
// amount received by recipient. Base-asset legs (BaseAsset in or out) wrap
// and unwrap the native asset transparently. A call either fully executes or
// fails without partial state change; failures surface as
// ErrSlippageExceeded or ErrInsufficientLiquidity.
type SwapRouter interface {
	SwapExactInput(ctx context.Context, assetIn, assetOut common.Address, amountIn, minAmountOut *big.Int, recipient common.Address) (*big.Int, error)
}

// UtilityToken is the platform asset the registry charges its creation fee
// in. The surface mirrors the ERC-20 subset the fee flow needs.
type UtilityToken interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	// TransferFrom moves amount from `from` to `to`, consuming spender's
	// allowance. On-chain implementations derive the spender from the
	// transaction sender and may ignore the argument.
	TransferFrom(ctx context.Context, spender, from, to common.Address, amount *big.Int) error
}

// BaseTransfer pays base asset out of the engine's account: entry fees to the
// creator and treasury, withdrawal proceeds to the holder.
type BaseTransfer interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
}
