// Package domain defines the core types, ports, and sentinel errors shared by
// every layer of basketd. It has no dependencies on concrete infrastructure.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BaseAsset is the sentinel asset identifier for the native base asset. Every
// basket is denominated in it and the oracle must have a feed registered for
// it before any basket can value itself.
var BaseAsset = common.Address{}

// FundRecord is the indexed metadata of a created basket, persisted for the
// UI's fund list. The accounting engine remains the source of truth for
// balances, shares, and proportions.
type FundRecord struct {
	Address   common.Address
	Name      string
	Ticker    string
	Creator   common.Address
	Assets    []common.Address
	CreatedAt time.Time
}

// FundSummary is the display view of a basket: indexed metadata merged with
// live accounting state when the fund is resident in this process. Weights
// and ShareSupply are only set on live funds; index-only entries (created by
// a previous process) carry metadata alone.
type FundSummary struct {
	Address     common.Address
	Name        string
	Ticker      string
	Creator     common.Address
	Assets      []common.Address
	Weights     []uint8
	ShareSupply *big.Int
	CreatedAt   time.Time
	Live        bool
}

// AssetHolding is one underlying position inside a fund snapshot.
type AssetHolding struct {
	Asset     common.Address
	Balance   *big.Int // token quantity, 18-decimal fixed point
	Weight    uint8    // target proportion in percent
	BaseValue *big.Int // value in base-asset terms at snapshot time
}

// FundSnapshot is a consistent point-in-time view of a fund's accounting
// state, taken under the fund's lock.
type FundSnapshot struct {
	Address     common.Address
	Name        string
	Ticker      string
	Creator     common.Address
	ShareSupply *big.Int
	TotalValue  *big.Int // base-asset terms
	Holdings    []AssetHolding
	TakenAt     time.Time
}

// FundEvent is published on the signal bus after every state-changing fund
// operation and fanned out to websocket clients.
type FundEvent struct {
	ID     string         `json:"id"`
	Event  string         `json:"event"` // fund_created | deposit | withdraw | rebalance
	Fund   common.Address `json:"fund"`
	Actor  common.Address `json:"actor"`
	Amount string         `json:"amount,omitempty"` // decimal string, base asset or shares
	Minted string         `json:"minted,omitempty"`
	Burned string         `json:"burned,omitempty"`
	At     time.Time      `json:"at"`
}

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}
