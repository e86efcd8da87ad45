package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

var erc20ABI = mustABI(erc20ABIJSON)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ERC20 binds one token contract. The utility (creation fee) token uses it
// through the domain.UtilityToken interface; the router uses it for balance
// reads and allowance management.
type ERC20 struct {
	client *Client
	token  common.Address
}

// NewERC20 binds the token at addr.
func NewERC20(client *Client, addr common.Address) *ERC20 {
	return &ERC20{client: client, token: addr}
}

// BalanceOf returns owner's token balance.
func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("evm: pack balanceOf: %w", err)
	}
	out, err := t.client.call(ctx, ethereum.CallMsg{To: &t.token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("evm: balanceOf %s: %w", t.token.Hex(), err)
	}
	res, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("evm: unpack balanceOf: %w", err)
	}
	return res[0].(*big.Int), nil
}

// Allowance returns spender's allowance over owner's balance.
func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, fmt.Errorf("evm: pack allowance: %w", err)
	}
	out, err := t.client.call(ctx, ethereum.CallMsg{To: &t.token, Data: data})
	if err != nil {
		return nil, fmt.Errorf("evm: allowance %s: %w", t.token.Hex(), err)
	}
	res, err := erc20ABI.Unpack("allowance", out)
	if err != nil {
		return nil, fmt.Errorf("evm: unpack allowance: %w", err)
	}
	return res[0].(*big.Int), nil
}

// TransferFrom moves amount from `from` to `to`. The on-chain spender is the
// operator wallet, so the spender argument is ignored.
func (t *ERC20) TransferFrom(ctx context.Context, _, from, to common.Address, amount *big.Int) error {
	data, err := erc20ABI.Pack("transferFrom", from, to, amount)
	if err != nil {
		return fmt.Errorf("evm: pack transferFrom: %w", err)
	}
	if _, err := t.client.sendTx(ctx, &ethereum.CallMsg{To: &t.token, Data: data}); err != nil {
		return fmt.Errorf("evm: transferFrom %s: %w", t.token.Hex(), err)
	}
	return nil
}

// approve grants spender an allowance of amount.
func (t *ERC20) approve(ctx context.Context, spender common.Address, amount *big.Int) error {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return fmt.Errorf("evm: pack approve: %w", err)
	}
	if _, err := t.client.sendTx(ctx, &ethereum.CallMsg{To: &t.token, Data: data}); err != nil {
		return fmt.Errorf("evm: approve %s: %w", t.token.Hex(), err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.UtilityToken = (*ERC20)(nil)
