package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

// NativeTransfer pays out the native coin from the operator wallet.
type NativeTransfer struct {
	client *Client
}

// NewNativeTransfer wraps client for native-coin payouts.
func NewNativeTransfer(client *Client) *NativeTransfer {
	return &NativeTransfer{client: client}
}

// Transfer sends amount of the native coin to `to`.
func (p *NativeTransfer) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return domain.ErrZeroAmount
	}
	if _, err := p.client.sendTx(ctx, &ethereum.CallMsg{To: &to, Value: amount}); err != nil {
		return fmt.Errorf("evm: transfer to %s: %w", to.Hex(), err)
	}
	return nil
}

var _ domain.BaseTransfer = (*NativeTransfer)(nil)
