package account

import (
	"github.com/shopspring/decimal"

	"main/internal/errors"
	"main/internal/model"
	"main/internal/schema"
)

// Position tracks one (instrument, direction) holding. Quantity is split
// between OldQuantity (yesterday and earlier, the T+1 closable base) and
// today's portion (Quantity - OldQuantity).
//
// Daily P&L decomposes exactly into trading P&L (today's trades marked to
// the last price) and position P&L (day-start quantity marked from the
// previous close): with dayStartQty fixed at settlement/day start,
//
//	tradingPnL(p) = dir * mult * (p*netTodayQty - netTodayNotional)
//	positionPnL(p) = dir * mult * dayStartQty * (p - PrevClose)
//
// and their sum telescopes to the total last-price P&L of the day.
type Position struct {
	Symbol    string
	Direction model.Direction

	Quantity       decimal.Decimal
	OldQuantity    decimal.Decimal
	FrozenQuantity decimal.Decimal
	AvgPrice       decimal.Decimal
	LastPrice      decimal.Decimal
	PrevClose      decimal.Decimal

	TransactionCost decimal.Decimal

	// day-start quantity and today's signed trade accumulators; reset at
	// settlement
	DayStartQuantity decimal.Decimal
	NetTodayQuantity decimal.Decimal
	NetTodayNotional decimal.Decimal

	ins *schema.Instrument
}

func NewPosition(ins *schema.Instrument, direction model.Direction) *Position {
	return &Position{
		Symbol:    ins.Symbol,
		Direction: direction,
		ins:       ins,
	}
}

// Instrument returns the static reference data of the position.
func (p *Position) Instrument() *schema.Instrument { return p.ins }

// TodayQuantity returns the portion bought today.
func (p *Position) TodayQuantity() decimal.Decimal {
	return p.Quantity.Sub(p.OldQuantity)
}

// Closable returns the quantity a close order may still reserve. Under
// T+1 only OldQuantity is closable; frozen quantity is already reserved
// by open close orders.
func (p *Position) Closable(tPlusOne bool) decimal.Decimal {
	base := p.Quantity
	if tPlusOne {
		base = p.OldQuantity
	}
	out := base.Sub(p.FrozenQuantity)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// ClosableToday returns today's portion available to a close-today order.
func (p *Position) ClosableToday() decimal.Decimal {
	out := p.TodayQuantity().Sub(p.FrozenQuantity)
	if out.IsNegative() {
		return decimal.Zero
	}
	return out
}

// Freeze reserves quantity for a pending close order.
func (p *Position) Freeze(quantity decimal.Decimal) {
	p.FrozenQuantity = p.FrozenQuantity.Add(quantity)
}

// Unfreeze releases a reservation.
func (p *Position) Unfreeze(quantity decimal.Decimal) {
	p.FrozenQuantity = p.FrozenQuantity.Sub(quantity)
	if p.FrozenQuantity.IsNegative() {
		p.FrozenQuantity = decimal.Zero
	}
}

// ApplyTrade mutates the position for one fill and returns the realized
// P&L extracted by a close (zero for opens). The caller translates it into
// a cash delta according to the account kind.
func (p *Position) ApplyTrade(t *model.Trade) (decimal.Decimal, error) {
	if !t.Quantity.IsPositive() {
		return decimal.Zero, errors.Invariant("trade with non-positive quantity", t)
	}
	p.LastPrice = t.Price
	p.TransactionCost = p.TransactionCost.Add(t.Cost())

	switch {
	case t.Effect == model.EffectOpen:
		notional := p.AvgPrice.Mul(p.Quantity).Add(t.Price.Mul(t.Quantity))
		p.Quantity = p.Quantity.Add(t.Quantity)
		p.AvgPrice = notional.Div(p.Quantity)
		p.NetTodayQuantity = p.NetTodayQuantity.Add(t.Quantity)
		p.NetTodayNotional = p.NetTodayNotional.Add(t.Price.Mul(t.Quantity))
		return decimal.Zero, nil

	case t.Effect.IsClose():
		if t.Quantity.GreaterThan(p.Quantity) {
			return decimal.Zero, errors.Invariant("close quantity exceeds position", t)
		}
		if t.Effect == model.EffectCloseToday && t.Quantity.GreaterThan(p.TodayQuantity()) {
			return decimal.Zero, errors.Invariant("close-today quantity exceeds today quantity", t)
		}
		realized := t.Price.Sub(p.AvgPrice).
			Mul(t.Quantity).
			Mul(p.ins.Multiplier).
			Mul(p.Direction.Factor())

		p.Quantity = p.Quantity.Sub(t.Quantity)
		if t.Effect == model.EffectClose {
			// consume the old portion first, then today's
			fromOld := decimal.Min(t.Quantity, p.OldQuantity)
			p.OldQuantity = p.OldQuantity.Sub(fromOld)
		}
		p.Unfreeze(t.Quantity)
		p.NetTodayQuantity = p.NetTodayQuantity.Sub(t.Quantity)
		p.NetTodayNotional = p.NetTodayNotional.Sub(t.Price.Mul(t.Quantity))
		return realized, nil

	default:
		return decimal.Zero, errors.Invariant("trade with unknown position effect", t)
	}
}

// TradingPnL marks today's trades to the given price.
func (p *Position) TradingPnL(price decimal.Decimal) decimal.Decimal {
	return price.Mul(p.NetTodayQuantity).
		Sub(p.NetTodayNotional).
		Mul(p.ins.Multiplier).
		Mul(p.Direction.Factor())
}

// PositionPnL marks the day-start quantity from the previous close to the
// given price.
func (p *Position) PositionPnL(price decimal.Decimal) decimal.Decimal {
	if p.PrevClose.IsZero() {
		return decimal.Zero
	}
	return price.Sub(p.PrevClose).
		Mul(p.DayStartQuantity).
		Mul(p.ins.Multiplier).
		Mul(p.Direction.Factor())
}

// DailyPnL is the total last-price P&L of the day at the given price.
func (p *Position) DailyPnL(price decimal.Decimal) decimal.Decimal {
	return p.TradingPnL(price).Add(p.PositionPnL(price))
}

// MarketValue returns the position's last-price market value (stock
// semantics: price * quantity * multiplier).
func (p *Position) MarketValue() decimal.Decimal {
	return p.ins.ContractValue(p.LastPrice, p.Quantity)
}

// Margin returns the margin occupied by a futures position at its last
// price.
func (p *Position) Margin() decimal.Decimal {
	return p.ins.ContractValue(p.LastPrice, p.Quantity).Mul(p.ins.MarginRate)
}

// Settle rolls the day boundary: realizes nothing by itself, rolls today's
// quantity into OldQuantity, resets the trade accumulators and re-anchors
// the P&L reference at settlePrice.
func (p *Position) Settle(settlePrice decimal.Decimal) {
	if !settlePrice.IsZero() {
		p.LastPrice = settlePrice
	}
	p.OldQuantity = p.Quantity
	p.DayStartQuantity = p.Quantity
	p.NetTodayQuantity = decimal.Zero
	p.NetTodayNotional = decimal.Zero
	p.PrevClose = p.LastPrice
}

// ApplySplit adjusts quantity and prices by the split factor effective
// today. Average price scales inversely so the position value is
// preserved.
func (p *Position) ApplySplit(factor decimal.Decimal) {
	if !factor.IsPositive() {
		return
	}
	p.Quantity = p.Quantity.Mul(factor)
	p.OldQuantity = p.OldQuantity.Mul(factor)
	p.DayStartQuantity = p.DayStartQuantity.Mul(factor)
	p.FrozenQuantity = p.FrozenQuantity.Mul(factor)
	p.NetTodayQuantity = p.NetTodayQuantity.Mul(factor)
	p.AvgPrice = p.AvgPrice.Div(factor)
	p.LastPrice = p.LastPrice.Div(factor)
	if !p.PrevClose.IsZero() {
		p.PrevClose = p.PrevClose.Div(factor)
	}
}

// ApplyDividend reduces the price anchors by the per-share dividend, since
// the dividend is value paid out of the instrument.
func (p *Position) ApplyDividend(perShare decimal.Decimal) {
	p.AvgPrice = p.AvgPrice.Sub(perShare)
	if !p.LastPrice.IsZero() {
		p.LastPrice = p.LastPrice.Sub(perShare)
	}
	if !p.PrevClose.IsZero() {
		p.PrevClose = p.PrevClose.Sub(perShare)
	}
}

// MarkPrice refreshes the cached last price on a new bar.
func (p *Position) MarkPrice(price decimal.Decimal) {
	if !price.IsZero() {
		p.LastPrice = price
	}
}
