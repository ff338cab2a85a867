package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the immutable record of a single fill. Created only by the
// matching engine; never mutated afterwards.
type Trade struct {
	ID         uint64
	OrderID    uint64
	Symbol     string
	DateTime   time.Time
	Side       Side
	Direction  Direction
	Effect     PositionEffect
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Commission decimal.Decimal
	Tax        decimal.Decimal

	// CloseToday is the portion of a close that hits today's quantity,
	// relevant to futures close-today fee schedules.
	CloseToday decimal.Decimal
}

// Notional returns price * quantity without the contract multiplier.
func (t *Trade) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

// Cost returns commission + tax.
func (t *Trade) Cost() decimal.Decimal {
	return t.Commission.Add(t.Tax)
}
