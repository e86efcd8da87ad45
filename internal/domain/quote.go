package domain

import (
	"math/big"
	"time"
)

// Quote is a USD price in oracle-native fixed point: the dollar value is
// Price * 10^Expo. Pyth publishes expo -8; other sources vary, so consumers
// must normalize through Price18 rather than assuming an exponent.
type Quote struct {
	Price       *big.Int
	Expo        int32
	PublishTime time.Time
}

var ten = big.NewInt(10)

// Price18 returns the quote scaled to 18-decimal fixed point (USD per whole
// unit of the asset). Precision beyond 18 decimals is truncated.
func (q Quote) Price18() *big.Int {
	if q.Price == nil {
		return new(big.Int)
	}
	shift := int64(18 + q.Expo)
	p := new(big.Int).Set(q.Price)
	if shift >= 0 {
		return p.Mul(p, new(big.Int).Exp(ten, big.NewInt(shift), nil))
	}
	return p.Quo(p, new(big.Int).Exp(ten, big.NewInt(-shift), nil))
}

// Age reports how old the quote is relative to now.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.PublishTime)
}
