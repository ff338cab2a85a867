package match

import (
	"time"

	"github.com/shopspring/decimal"

	"main/internal/errors"
	"main/internal/feed"
	"main/internal/model"
	"main/internal/schema"
)

// Type selects the reference price an eligible order is matched against.
type Type uint8

const (
	TypeUnknown Type = iota
	// TypeCurrentBarClose matches orders synchronously against the bar
	// that just closed, at its close price.
	TypeCurrentBarClose
	// TypeNextBarOpen matches orders accepted on bar N against bar N+1's
	// open price; this forces the delayed-orders behavior in the broker.
	TypeNextBarOpen
	// Tick variants take the reference from the most recent tick.
	TypeTickLast
	TypeTickBestOwn
	TypeTickBestCounterparty
)

func (t Type) String() string {
	switch t {
	case TypeCurrentBarClose:
		return "current_bar_close"
	case TypeNextBarOpen:
		return "next_bar_open"
	case TypeTickLast:
		return "last"
	case TypeTickBestOwn:
		return "best_own"
	case TypeTickBestCounterparty:
		return "best_counterparty"
	default:
		return "unknown"
	}
}

// ParseType maps the config notation to a matching Type.
func ParseType(s string) (Type, bool) {
	switch s {
	case "current_bar", "current_bar_close":
		return TypeCurrentBarClose, true
	case "next_bar", "next_bar_open":
		return TypeNextBarOpen, true
	case "last":
		return TypeTickLast, true
	case "best_own":
		return TypeTickBestOwn, true
	case "best_counterparty":
		return TypeTickBestCounterparty, true
	default:
		return TypeUnknown, false
	}
}

// Deferred reports whether orders submitted mid-bar must wait for the
// next bar instead of matching immediately.
func (t Type) Deferred() bool { return t == TypeNextBarOpen }

// Config fixes the engine policies for a run.
type Config struct {
	Type      Type
	Frequency schema.Frequency

	// VolumeLimitRatio caps a fill at a percentage of the bar's traded
	// volume; zero disables the cap.
	VolumeLimitRatio decimal.Decimal

	// PriceLimit rejects buys at limit-up and sells at limit-down.
	PriceLimit bool
}

// Engine decides fills for open orders against the current bar or tick.
// For identical inputs it produces identical trades: the order book is
// iterated in submission order and no wall-clock state is consulted.
type Engine struct {
	cfg        Config
	data       feed.Source
	registry   *schema.Registry
	slippage   SlippageDecider
	commission CommissionDecider
	tax        TaxDecider

	tradeSeq uint64
}

func NewEngine(cfg Config, data feed.Source, registry *schema.Registry, slippage SlippageDecider, commission CommissionDecider, tax TaxDecider) *Engine {
	if slippage == nil {
		slippage = NoSlippage{}
	}
	if tax == nil {
		tax = NoTax{}
	}
	return &Engine{
		cfg:        cfg,
		data:       data,
		registry:   registry,
		slippage:   slippage,
		commission: commission,
		tax:        tax,
	}
}

// MatchBar runs one matching pass over the open orders against the bar at
// dt. Orders are mutated in place (filled, partially filled or rejected);
// the produced trades are returned in decision order. A missing bar means
// "cannot trade today" and leaves the order open.
func (e *Engine) MatchBar(orders []*model.Order, dt time.Time) ([]*model.Trade, error) {
	var trades []*model.Trade
	consumed := make(map[string]decimal.Decimal)

	for _, order := range orders {
		if order.IsTerminal() || order.Status != model.StatusOpen {
			continue
		}
		ins, ok := e.registry.Instrument(order.Symbol)
		if !ok {
			if err := order.Reject("instrument " + order.Symbol + " is unknown"); err != nil {
				return trades, err
			}
			continue
		}

		bar, err := e.data.Bar(order.Symbol, dt, e.cfg.Frequency)
		if err != nil {
			if errors.Is(err, feed.ErrBarNotFound) {
				continue
			}
			return trades, err
		}
		if bar.Suspended() {
			if err := order.Reject("instrument " + order.Symbol + " is suspended"); err != nil {
				return trades, err
			}
			continue
		}

		ref := bar.Close
		if e.cfg.Type == TypeNextBarOpen {
			ref = bar.Open
		}

		if reason, rejected := e.checkPriceLimit(order, bar, ref); rejected {
			if err := order.Reject(reason); err != nil {
				return trades, err
			}
			continue
		}
		if !limitCrossed(order, ref) {
			continue
		}

		quantity := order.Unfilled()
		if !e.cfg.VolumeLimitRatio.IsZero() {
			avail := bar.Volume.Mul(e.cfg.VolumeLimitRatio).Sub(consumed[order.Symbol])
			quantity = decimal.Min(quantity, truncateToLot(avail, ins.RoundLot))
			if !quantity.IsPositive() {
				continue
			}
		}

		trade, err := e.execute(order, ins, ref, quantity, bar.DateTime)
		if err != nil {
			return trades, err
		}
		consumed[order.Symbol] = consumed[order.Symbol].Add(quantity)
		trades = append(trades, trade)
	}
	return trades, nil
}

// MatchTick matches the open orders of one instrument against a tick.
func (e *Engine) MatchTick(orders []*model.Order, tick *model.Tick) ([]*model.Trade, error) {
	var trades []*model.Trade
	for _, order := range orders {
		if order.IsTerminal() || order.Status != model.StatusOpen || order.Symbol != tick.Symbol {
			continue
		}
		ins, ok := e.registry.Instrument(order.Symbol)
		if !ok {
			if err := order.Reject("instrument " + order.Symbol + " is unknown"); err != nil {
				return trades, err
			}
			continue
		}

		ref := e.tickReference(order, tick)
		if ref.IsZero() || !limitCrossed(order, ref) {
			continue
		}

		trade, err := e.execute(order, ins, ref, order.Unfilled(), tick.DateTime)
		if err != nil {
			return trades, err
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

func (e *Engine) tickReference(order *model.Order, tick *model.Tick) decimal.Decimal {
	switch e.cfg.Type {
	case TypeTickBestOwn:
		if order.Side == model.SideBuy {
			return tick.Bid
		}
		return tick.Ask
	case TypeTickBestCounterparty:
		if order.Side == model.SideBuy {
			return tick.Ask
		}
		return tick.Bid
	default:
		return tick.Last
	}
}

func (e *Engine) checkPriceLimit(order *model.Order, bar *model.Bar, ref decimal.Decimal) (string, bool) {
	if !e.cfg.PriceLimit {
		return "", false
	}
	if order.Side == model.SideBuy && !bar.LimitUp.IsZero() && ref.GreaterThanOrEqual(bar.LimitUp) {
		return "cannot buy " + order.Symbol + " at limit up", true
	}
	if order.Side == model.SideSell && !bar.LimitDown.IsZero() && ref.LessThanOrEqual(bar.LimitDown) {
		return "cannot sell " + order.Symbol + " at limit down", true
	}
	return "", false
}

func (e *Engine) execute(order *model.Order, ins *schema.Instrument, ref, quantity decimal.Decimal, dt time.Time) (*model.Trade, error) {
	price := e.slippage.Adjust(order.Side, ins, ref)

	closeToday := decimal.Zero
	if order.Effect == model.EffectCloseToday {
		closeToday = quantity
	}
	commission := e.commission.Commission(ins, order.Effect, price, quantity, closeToday)
	tax := e.tax.Tax(ins, order.Side, price, quantity)

	if err := order.Fill(price, quantity, commission.Add(tax)); err != nil {
		return nil, err
	}

	e.tradeSeq++
	return &model.Trade{
		ID:         e.tradeSeq,
		OrderID:    order.ID,
		Symbol:     order.Symbol,
		DateTime:   dt,
		Side:       order.Side,
		Direction:  order.Direction,
		Effect:     order.Effect,
		Price:      price,
		Quantity:   quantity,
		Commission: commission,
		Tax:        tax,
		CloseToday: closeToday,
	}, nil
}

// limitCrossed reports whether a limit order's frozen price allows a fill
// at the reference price. Market orders always cross.
func limitCrossed(order *model.Order, ref decimal.Decimal) bool {
	if order.Kind != model.OrderKindLimit {
		return true
	}
	if order.Side == model.SideBuy {
		return order.Price.GreaterThanOrEqual(ref)
	}
	return order.Price.LessThanOrEqual(ref)
}

func truncateToLot(quantity, lot decimal.Decimal) decimal.Decimal {
	if !lot.IsPositive() || !quantity.IsPositive() {
		if quantity.IsNegative() {
			return decimal.Zero
		}
		return quantity
	}
	return quantity.Div(lot).Floor().Mul(lot)
}
