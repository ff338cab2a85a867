package match

import (
	"github.com/shopspring/decimal"

	"main/internal/feed"
	"main/internal/model"
	"main/internal/schema"
)

// CommissionDecider computes the commission of one fill. Implementations
// are instrument-class aware.
type CommissionDecider interface {
	Commission(ins *schema.Instrument, effect model.PositionEffect, price, quantity, closeToday decimal.Decimal) decimal.Decimal
}

// TaxDecider computes the transaction tax of one fill.
type TaxDecider interface {
	Tax(ins *schema.Instrument, side model.Side, price, quantity decimal.Decimal) decimal.Decimal
}

// StockCommission is a by-money schedule with a minimum floor, applied to
// stock and fund fills. Futures are delegated to the per-instrument fee
// schedule from the data bundle.
type StockCommission struct {
	Rate    decimal.Decimal
	Minimum decimal.Decimal

	// Lookup resolves futures fee schedules; nil means futures trade free.
	Lookup func(symbol string) (feed.CommissionInfo, bool)
}

func (c StockCommission) Commission(ins *schema.Instrument, effect model.PositionEffect, price, quantity, closeToday decimal.Decimal) decimal.Decimal {
	if ins.Kind == schema.InstrumentFuture {
		return c.futuresCommission(ins, effect, price, quantity, closeToday)
	}
	fee := price.Mul(quantity).Mul(c.Rate)
	if fee.LessThan(c.Minimum) {
		return c.Minimum
	}
	return fee
}

func (c StockCommission) futuresCommission(ins *schema.Instrument, effect model.PositionEffect, price, quantity, closeToday decimal.Decimal) decimal.Decimal {
	if c.Lookup == nil {
		return decimal.Zero
	}
	info, ok := c.Lookup(ins.Symbol)
	if !ok {
		return decimal.Zero
	}

	rate := info.OpenRate
	if effect.IsClose() {
		rate = info.CloseRate
	}

	regular := quantity.Sub(closeToday)
	if regular.IsNegative() {
		regular = decimal.Zero
	}
	fee := futuresLeg(info, ins, rate, price, regular)
	if closeToday.IsPositive() {
		fee = fee.Add(futuresLeg(info, ins, info.CloseTodayRate, price, closeToday))
	}
	return fee
}

func futuresLeg(info feed.CommissionInfo, ins *schema.Instrument, rate, price, quantity decimal.Decimal) decimal.Decimal {
	if quantity.IsZero() {
		return decimal.Zero
	}
	if info.ByVolume {
		return rate.Mul(quantity)
	}
	return rate.Mul(ins.ContractValue(price, quantity))
}

// StampDutyTax charges the sell side of stock fills; everything else is
// untaxed.
type StampDutyTax struct {
	Rate decimal.Decimal
}

func (t StampDutyTax) Tax(ins *schema.Instrument, side model.Side, price, quantity decimal.Decimal) decimal.Decimal {
	if ins.Kind == schema.InstrumentFuture || side != model.SideSell {
		return decimal.Zero
	}
	return price.Mul(quantity).Mul(t.Rate)
}

// NoTax disables transaction tax.
type NoTax struct{}

func (NoTax) Tax(*schema.Instrument, model.Side, decimal.Decimal, decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}
