package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrZeroAmount            = errors.New("zero amount")
	ErrZeroAddress           = errors.New("zero address")
	ErrInvalidFeedID         = errors.New("invalid feed id")
	ErrFeedNotConfigured     = errors.New("price feed not configured")
	ErrStalePrice            = errors.New("stale price")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInsufficientShares    = errors.New("insufficient shares")
	ErrInsufficientFee       = errors.New("insufficient balance for creation fee")
	ErrFeeNotApproved        = errors.New("creation fee allowance too low")
	ErrDuplicateAsset        = errors.New("duplicate underlying asset")
	ErrNoAssets              = errors.New("empty underlying asset set")
	ErrAssetSetMismatch      = errors.New("asset set mismatch")
	ErrInvalidWeights        = errors.New("weights must sum to 100")
	ErrInvalidTreasury       = errors.New("invalid treasury address")
	ErrDustDeposit           = errors.New("deposit too small to buy any underlying")
	ErrZeroProceeds          = errors.New("withdrawal produced zero proceeds")
	ErrLockHeld              = errors.New("lock already held")
)
