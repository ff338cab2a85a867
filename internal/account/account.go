package account

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/errors"
	"main/internal/feed"
	"main/internal/model"
	"main/internal/schema"
)

var (
	ErrUnknownPosition = errors.New("position not found")
)

type positionKey struct {
	symbol    string
	direction model.Direction
}

// SplitAdjustment reports a split applied during before-trading so the
// broker can scale frozen limit prices of open orders proportionally.
type SplitAdjustment struct {
	Symbol string
	Factor decimal.Decimal
}

// Receivable is an accrued dividend waiting for its payable date.
type Receivable struct {
	Symbol      string
	PayableDate time.Time
	Amount      decimal.Decimal
}

// Account owns the positions of one asset class plus its cash. Stock and
// fund instruments share the stock account; futures get their own with
// margin semantics. Dispatch is a switch on the account kind.
type Account struct {
	kind schema.InstrumentKind

	totalCash       decimal.Decimal
	frozenCash      decimal.Decimal
	transactionCost decimal.Decimal

	positions map[positionKey]*Position
	order     []positionKey

	receivables []Receivable

	registry *schema.Registry
	data     feed.Source

	useSettlementPrice bool
	cashOnDelisting    bool
}

// Config carries the account policies fixed at portfolio initialization.
type Config struct {
	Kind               schema.InstrumentKind
	StartingCash       decimal.Decimal
	UseSettlementPrice bool
	CashOnDelisting    bool
}

func NewAccount(cfg Config, registry *schema.Registry, data feed.Source) *Account {
	return &Account{
		kind:               cfg.Kind,
		totalCash:          cfg.StartingCash,
		positions:          make(map[positionKey]*Position),
		registry:           registry,
		data:               data,
		useSettlementPrice: cfg.UseSettlementPrice,
		cashOnDelisting:    cfg.CashOnDelisting,
	}
}

func (a *Account) Kind() schema.InstrumentKind      { return a.kind }
func (a *Account) TotalCash() decimal.Decimal       { return a.totalCash }
func (a *Account) FrozenCash() decimal.Decimal      { return a.frozenCash }
func (a *Account) TransactionCost() decimal.Decimal { return a.transactionCost }

// Available is the cash an order admission validator may still spend:
// total cash minus frozen cash, minus occupied margin for futures.
func (a *Account) Available() decimal.Decimal {
	out := a.totalCash.Sub(a.frozenCash)
	if a.kind == schema.InstrumentFuture {
		for _, key := range a.order {
			out = out.Sub(a.positions[key].Margin())
		}
	}
	return out
}

// FreezeCash reserves funds for a live order.
func (a *Account) FreezeCash(amount decimal.Decimal) {
	a.frozenCash = a.frozenCash.Add(amount)
}

// UnfreezeCash releases a reservation.
func (a *Account) UnfreezeCash(amount decimal.Decimal) {
	a.frozenCash = a.frozenCash.Sub(amount)
	if a.frozenCash.IsNegative() {
		a.frozenCash = decimal.Zero
	}
}

// Position returns the position for a symbol/direction if it exists.
func (a *Account) Position(symbol string, direction model.Direction) (*Position, bool) {
	p, ok := a.positions[positionKey{symbol: symbol, direction: direction}]
	return p, ok
}

// EnsurePosition returns the position, creating it lazily on first use.
func (a *Account) EnsurePosition(symbol string, direction model.Direction) (*Position, error) {
	key := positionKey{symbol: symbol, direction: direction}
	if p, ok := a.positions[key]; ok {
		return p, nil
	}
	ins, ok := a.registry.Instrument(symbol)
	if !ok {
		return nil, errors.Wrapf(schema.ErrUnknownInstrument, "symbol %s", symbol)
	}
	p := NewPosition(ins, direction)
	a.positions[key] = p
	a.order = append(a.order, key)
	return p, nil
}

// Positions returns all positions in creation order (deterministic given
// the deterministic trade sequence).
func (a *Account) Positions() []*Position {
	out := make([]*Position, 0, len(a.order))
	for _, key := range a.order {
		out = append(out, a.positions[key])
	}
	return out
}

// ApplyTrade mutates position state for one fill and applies the signed
// cash delta. Stock trades move notional plus costs; futures only move
// costs, since margin accounts settle daily. The second return value is
// the realized P&L extracted by a close.
func (a *Account) ApplyTrade(t *model.Trade) (decimal.Decimal, decimal.Decimal, error) {
	pos, err := a.EnsurePosition(t.Symbol, t.Direction)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	realized, err := pos.ApplyTrade(t)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	var delta decimal.Decimal
	cost := t.Cost()
	if a.kind == schema.InstrumentFuture {
		delta = cost.Neg()
	} else {
		notional := pos.Instrument().ContractValue(t.Price, t.Quantity)
		if t.Effect == model.EffectOpen {
			delta = notional.Neg().Sub(cost)
		} else {
			delta = notional.Sub(cost)
		}
	}
	a.totalCash = a.totalCash.Add(delta)
	a.transactionCost = a.transactionCost.Add(cost)
	return delta, realized, nil
}

// BeforeTrading realizes dividend payables due today, accrues receivables
// for positions crossing their ex-date, applies splits effective today and
// resolves share transformations. Returned split adjustments let the
// broker scale frozen order prices.
func (a *Account) BeforeTrading(date time.Time) ([]SplitAdjustment, error) {
	a.payReceivables(date)

	var adjustments []SplitAdjustment
	for _, key := range append([]positionKey(nil), a.order...) {
		pos := a.positions[key]
		if pos.Quantity.IsZero() {
			continue
		}
		a.accrueDividends(pos, date)

		for _, split := range a.data.Splits(pos.Symbol) {
			if feed.DateKey(split.ExDate).Equal(feed.DateKey(date)) && split.Factor.IsPositive() {
				pos.ApplySplit(split.Factor)
				adjustments = append(adjustments, SplitAdjustment{Symbol: pos.Symbol, Factor: split.Factor})
				logs.Infof("split applied: %s factor %s", pos.Symbol, split.Factor)
			}
		}

		if tr, ok := a.data.ShareTransformation(pos.Symbol); ok {
			if feed.DateKey(tr.EffectiveDate).Equal(feed.DateKey(date)) {
				if err := a.transformPosition(key, tr); err != nil {
					return nil, err
				}
			}
		}
	}
	return adjustments, nil
}

func (a *Account) payReceivables(date time.Time) {
	remaining := a.receivables[:0]
	for _, r := range a.receivables {
		if !r.PayableDate.After(date) {
			a.totalCash = a.totalCash.Add(r.Amount)
			logs.Infof("dividend paid: %s amount %s", r.Symbol, r.Amount)
			continue
		}
		remaining = append(remaining, r)
	}
	a.receivables = remaining
}

func (a *Account) accrueDividends(pos *Position, date time.Time) {
	for _, div := range a.data.Dividends(pos.Symbol) {
		if !feed.DateKey(div.ExDate).Equal(feed.DateKey(date)) {
			continue
		}
		lot := div.RoundLot
		if lot.IsZero() {
			lot = decimal.NewFromInt(1)
		}
		amount := pos.Quantity.Mul(div.CashPerLot).Div(lot)
		if !amount.IsPositive() {
			continue
		}
		a.receivables = append(a.receivables, Receivable{
			Symbol:      pos.Symbol,
			PayableDate: feed.DateKey(div.PayableDate),
			Amount:      amount,
		})
		pos.ApplyDividend(div.CashPerLot.Div(lot))
	}
}

// transformPosition converts a position into its successor instrument at
// the configured ratio, preserving economic value.
func (a *Account) transformPosition(key positionKey, tr feed.Transformation) error {
	pos := a.positions[key]
	successor, err := a.EnsurePosition(tr.Successor, key.direction)
	if err != nil {
		return errors.Wrapf(err, "share transformation %s -> %s", key.symbol, tr.Successor)
	}

	converted := pos.Quantity.Mul(tr.Ratio)
	notional := successor.AvgPrice.Mul(successor.Quantity).Add(pos.AvgPrice.Mul(pos.Quantity))
	successor.Quantity = successor.Quantity.Add(converted)
	successor.OldQuantity = successor.OldQuantity.Add(pos.OldQuantity.Mul(tr.Ratio))
	successor.DayStartQuantity = successor.DayStartQuantity.Add(pos.DayStartQuantity.Mul(tr.Ratio))
	if successor.Quantity.IsPositive() {
		successor.AvgPrice = notional.Div(successor.Quantity)
	}
	if !pos.LastPrice.IsZero() && tr.Ratio.IsPositive() {
		successor.LastPrice = pos.LastPrice.Div(tr.Ratio)
		successor.PrevClose = successor.LastPrice
	}

	pos.Quantity = decimal.Zero
	pos.OldQuantity = decimal.Zero
	pos.DayStartQuantity = decimal.Zero
	logs.Warnf("share transformation: %s -> %s ratio %s", key.symbol, tr.Successor, tr.Ratio)
	return nil
}

// Settle marks positions to their end-of-day price, realizes futures daily
// P&L into cash, rolls the T+1 boundary, force-closes positions delisting
// before the next trading date and prunes empty positions. Synthesized
// closing trades are returned for the journal.
func (a *Account) Settle(date, nextDate time.Time) ([]*model.Trade, error) {
	var synthesized []*model.Trade

	for _, key := range append([]positionKey(nil), a.order...) {
		pos := a.positions[key]

		settlePrice := a.settlePrice(pos, date)
		if a.kind == schema.InstrumentFuture {
			a.totalCash = a.totalCash.Add(pos.DailyPnL(settlePrice))
		}
		pos.Settle(settlePrice)

		if !nextDate.IsZero() && pos.Instrument().DelistedBy(nextDate) && pos.Quantity.IsPositive() {
			trade, err := a.forceClose(pos, date, settlePrice)
			if err != nil {
				return nil, err
			}
			if trade != nil {
				synthesized = append(synthesized, trade)
			}
		}
	}

	a.prune()

	if a.kind == schema.InstrumentFuture {
		a.checkMargin()
	}
	return synthesized, nil
}

func (a *Account) settlePrice(pos *Position, date time.Time) decimal.Decimal {
	bar, err := a.data.Bar(pos.Symbol, date, schema.FrequencyDaily)
	if err != nil {
		// suspended or missing data: carry the cached last price
		return pos.LastPrice
	}
	if a.kind == schema.InstrumentFuture && a.useSettlementPrice && !bar.Settlement.IsZero() {
		return bar.Settlement
	}
	return bar.Close
}

func (a *Account) forceClose(pos *Position, date time.Time, price decimal.Decimal) (*model.Trade, error) {
	quantity := pos.Quantity
	logs.Warnf("instrument delisting, force close: %s direction %s quantity %s price %s",
		pos.Symbol, pos.Direction, quantity, price)

	if a.kind != schema.InstrumentFuture && !a.cashOnDelisting {
		// position is written off without compensation
		pos.Quantity = decimal.Zero
		pos.OldQuantity = decimal.Zero
		pos.DayStartQuantity = decimal.Zero
		return nil, nil
	}

	side := model.SideSell
	if pos.Direction == model.DirectionShort {
		side = model.SideBuy
	}
	trade := &model.Trade{
		Symbol:    pos.Symbol,
		DateTime:  date,
		Side:      side,
		Direction: pos.Direction,
		Effect:    model.EffectClose,
		Price:     price,
		Quantity:  quantity,
	}
	if _, _, err := a.ApplyTrade(trade); err != nil {
		return nil, err
	}
	// the close happened inside the settled day boundary; re-anchor so the
	// emptied position carries no stale accumulators
	pos.Settle(price)
	return trade, nil
}

func (a *Account) prune() {
	kept := a.order[:0]
	for _, key := range a.order {
		pos := a.positions[key]
		if pos.Quantity.IsZero() && pos.FrozenQuantity.IsZero() {
			delete(a.positions, key)
			continue
		}
		kept = append(kept, key)
	}
	a.order = kept
}

func (a *Account) checkMargin() {
	var margin decimal.Decimal
	for _, key := range a.order {
		margin = margin.Add(a.positions[key].Margin())
	}
	if a.totalCash.LessThan(margin) {
		logs.Warnf("margin call: cash %s below occupied margin %s", a.totalCash, margin)
	}
}

// PendingReceivables returns the dividend amounts not yet paid out.
func (a *Account) PendingReceivables() decimal.Decimal {
	var out decimal.Decimal
	for _, r := range a.receivables {
		out = out.Add(r.Amount)
	}
	return out
}

// TotalValue is the account equity: cash plus market value of positions
// (unrealized daily P&L plus margin-free cash for futures) plus accrued
// receivables.
func (a *Account) TotalValue() decimal.Decimal {
	out := a.totalCash
	for _, key := range a.order {
		pos := a.positions[key]
		if a.kind == schema.InstrumentFuture {
			out = out.Add(pos.DailyPnL(pos.LastPrice))
		} else {
			out = out.Add(pos.MarketValue())
		}
	}
	return out.Add(a.PendingReceivables())
}
