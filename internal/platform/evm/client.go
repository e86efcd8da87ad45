// Package evm implements the on-chain side of basketd against a JSON-RPC
// endpoint: the ERC-20 utility token, native base-asset payouts, and a
// Uniswap-V2-style swap router. The operator wallet custodies the engine's
// holdings and signs every transaction.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/etherindex/basketd/internal/crypto"
)

// txGasLimit caps swap and transfer transactions. Router swaps on busy
// pairs stay well below this.
const txGasLimit = uint64(600_000)

// Client wraps an ethclient connection plus the operator wallet.
type Client struct {
	eth     *ethclient.Client
	wallet  *crypto.Wallet
	chainID *big.Int
}

// Dial connects to the JSON-RPC endpoint and resolves the chain ID.
func Dial(ctx context.Context, rpcURL string, wallet *crypto.Wallet) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", rpcURL, err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("evm: chain id: %w", err)
	}
	return &Client{eth: eth, wallet: wallet, chainID: chainID}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// ChainID returns the connected chain's id.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Eth returns the underlying ethclient for sub-components.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}

// call executes a read-only contract call.
func (c *Client) call(ctx context.Context, to ethereum.CallMsg) ([]byte, error) {
	return c.eth.CallContract(ctx, to, nil)
}

// sendTx signs and submits a legacy transaction and waits for it to mine.
// It returns the receipt; a reverted transaction is an error.
func (c *Client) sendTx(ctx context.Context, to *ethereum.CallMsg) (*types.Receipt, error) {
	from := c.wallet.Address()

	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("evm: nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm: gas price: %w", err)
	}

	value := to.Value
	if value == nil {
		value = new(big.Int)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to.To,
		Value:    value,
		Gas:      txGasLimit,
		GasPrice: gasPrice,
		Data:     to.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.wallet.PrivateKey())
	if err != nil {
		return nil, fmt.Errorf("evm: sign tx: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("evm: send tx: %w", err)
	}

	receipt, err := waitMined(ctx, c.eth, signed)
	if err != nil {
		return nil, fmt.Errorf("evm: wait mined: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("evm: tx %s reverted", signed.Hash().Hex())
	}
	return receipt, nil
}

// waitMined polls for the transaction receipt until the context ends.
func waitMined(ctx context.Context, eth *ethclient.Client, tx *types.Transaction) (*types.Receipt, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		receipt, err := eth.TransactionReceipt(ctx, tx.Hash())
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
