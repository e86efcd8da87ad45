package crypto

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestNewWallet(t *testing.T) {
	w, err := NewWallet(testKeyHex)
	if err != nil {
		t.Fatalf("NewWallet: %v", err)
	}
	if w.Address() == (common.Address{}) {
		t.Fatal("wallet derived the zero address")
	}

	prefixed, err := NewWallet("0x" + testKeyHex)
	if err != nil {
		t.Fatalf("NewWallet with 0x prefix: %v", err)
	}
	if prefixed.Address() != w.Address() {
		t.Fatalf("prefix changed derived address: %s vs %s", prefixed.Address().Hex(), w.Address().Hex())
	}

	opts, err := w.TransactOpts(big.NewInt(1))
	if err != nil {
		t.Fatalf("TransactOpts: %v", err)
	}
	if opts.From != w.Address() {
		t.Fatalf("opts.From = %s, want %s", opts.From.Hex(), w.Address().Hex())
	}

	if _, err := NewWallet("nothex"); err == nil {
		t.Fatal("invalid key accepted")
	}
}
