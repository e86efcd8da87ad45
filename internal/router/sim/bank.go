package sim

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/etherindex/basketd/internal/domain"
)

// Bank is an in-memory ledger that stands in for both the base-asset
// payment rail and the platform utility token in server mode and tests.
type Bank struct {
	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

// NewBank creates an empty Bank.
func NewBank() *Bank {
	return &Bank{
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
}

// Mint credits amount to addr.
func (b *Bank) Mint(addr common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creditLocked(addr, amount)
}

func (b *Bank) creditLocked(addr common.Address, amount *big.Int) {
	bal, ok := b.balances[addr]
	if !ok {
		bal = new(big.Int)
		b.balances[addr] = bal
	}
	bal.Add(bal, amount)
}

// Approve sets spender's allowance over owner's balance.
func (b *Bank) Approve(owner, spender common.Address, amount *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.allowances[owner]
	if !ok {
		m = make(map[common.Address]*big.Int)
		b.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
}

// BalanceOf returns owner's balance.
func (b *Bank) BalanceOf(_ context.Context, owner common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[owner]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

// Allowance returns spender's allowance over owner's balance.
func (b *Bank) Allowance(_ context.Context, owner, spender common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return new(big.Int).Set(a), nil
		}
	}
	return new(big.Int), nil
}

// TransferFrom moves amount from `from` to `to`, consuming spender's
// allowance.
func (b *Bank) TransferFrom(_ context.Context, spender, from, to common.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	allowance := new(big.Int)
	if m, ok := b.allowances[from]; ok {
		if a, ok := m[spender]; ok {
			allowance = a
		}
	}
	if allowance.Cmp(amount) < 0 {
		return fmt.Errorf("sim: transfer from %s: allowance %s < %s", from.Hex(), allowance, amount)
	}
	bal, ok := b.balances[from]
	if !ok || bal.Cmp(amount) < 0 {
		return fmt.Errorf("sim: transfer from %s: balance short", from.Hex())
	}

	bal.Sub(bal, amount)
	allowance.Sub(allowance, amount)
	b.creditLocked(to, amount)
	return nil
}

// Transfer implements domain.BaseTransfer by crediting `to`.
func (b *Bank) Transfer(_ context.Context, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return domain.ErrZeroAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creditLocked(to, amount)
	return nil
}

var (
	_ domain.UtilityToken = (*Bank)(nil)
	_ domain.BaseTransfer = (*Bank)(nil)
)
