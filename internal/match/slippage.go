package match

import (
	"github.com/shopspring/decimal"

	"main/internal/model"
	"main/internal/schema"
)

// SlippageDecider adjusts the reference price to simulate imperfect
// execution. Buys pay up, sells give up.
type SlippageDecider interface {
	Adjust(side model.Side, ins *schema.Instrument, price decimal.Decimal) decimal.Decimal
}

// NoSlippage executes at the reference price.
type NoSlippage struct{}

func (NoSlippage) Adjust(_ model.Side, _ *schema.Instrument, price decimal.Decimal) decimal.Decimal {
	return price
}

// FixedRatioSlippage moves the price by a fixed ratio of itself.
type FixedRatioSlippage struct {
	Ratio decimal.Decimal
}

func (s FixedRatioSlippage) Adjust(side model.Side, _ *schema.Instrument, price decimal.Decimal) decimal.Decimal {
	delta := price.Mul(s.Ratio)
	if side == model.SideSell {
		return price.Sub(delta)
	}
	return price.Add(delta)
}

// TickCountSlippage moves the price by a number of instrument ticks.
type TickCountSlippage struct {
	Ticks int64
}

func (s TickCountSlippage) Adjust(side model.Side, ins *schema.Instrument, price decimal.Decimal) decimal.Decimal {
	delta := ins.TickSize.Mul(decimal.NewFromInt(s.Ticks))
	if side == model.SideSell {
		return price.Sub(delta)
	}
	return price.Add(delta)
}
