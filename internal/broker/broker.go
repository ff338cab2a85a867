package broker

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/account"
	"main/internal/bus"
	"main/internal/errors"
	"main/internal/feed"
	"main/internal/journal"
	"main/internal/match"
	"main/internal/model"
	"main/internal/risk"
	"main/internal/schema"
)

var (
	ErrOrderNotFound = errors.New("order not found in broker book")
	ErrNotCancelable = errors.New("order is not cancelable")
)

type bookEntry struct {
	account *account.Account
	order   *model.Order
}

// Broker owns the open and delayed order books. It routes submissions
// through the admission validators, reserves frozen cash/margin, defers
// same-day orders when the matching policy requires next-bar execution and
// triggers matching on every bar/tick event.
type Broker struct {
	eventBus  *bus.Bus
	engine    *match.Engine
	validator *risk.Engine
	portfolio *account.Portfolio
	registry  *schema.Registry
	data      feed.Source
	profile   schema.MarketProfile

	matchType  match.Type
	frequency  schema.Frequency
	commission match.CommissionDecider
	tax        match.TaxDecider
	journal    *journal.Journal

	open    []*bookEntry
	delayed []*bookEntry

	orderSeq    uint64
	currentDate time.Time
	currentTime time.Time
	barSeen     bool
	lastTicks   map[string]*model.Tick
}

// Options fixes the broker policies for one run.
type Options struct {
	MatchType  match.Type
	Frequency  schema.Frequency
	Profile    schema.MarketProfile
	Commission match.CommissionDecider
	Tax        match.TaxDecider

	// Journal archives terminal orders and fills; nil disables archiving.
	Journal *journal.Journal
}

func New(eventBus *bus.Bus, engine *match.Engine, validator *risk.Engine, portfolio *account.Portfolio,
	registry *schema.Registry, data feed.Source, opts Options) *Broker {
	if opts.Tax == nil {
		opts.Tax = match.NoTax{}
	}
	return &Broker{
		eventBus:   eventBus,
		engine:     engine,
		validator:  validator,
		portfolio:  portfolio,
		registry:   registry,
		data:       data,
		profile:    opts.Profile,
		matchType:  opts.MatchType,
		frequency:  opts.Frequency,
		commission: opts.Commission,
		tax:        opts.Tax,
		journal:    opts.Journal,
		lastTicks:  make(map[string]*model.Tick),
	}
}

// NewOrder builds an order stamped with the next id and the current
// replay time. Quantity is truncated down to a whole number of round
// lots; the remainder is silently dropped.
func (b *Broker) NewOrder(symbol string, side model.Side, effect model.PositionEffect, kind model.OrderKind, price, quantity decimal.Decimal) *model.Order {
	if ins, ok := b.registry.Instrument(symbol); ok {
		quantity = truncateToLot(quantity, ins.RoundLot)
	}
	b.orderSeq++
	return model.NewOrder(b.orderSeq, symbol, side, effect, kind, price, quantity, b.now())
}

// Engine exposes the matching engine for checkpoint registration.
func (b *Broker) Engine() *match.Engine { return b.engine }

// OpenOrders returns the live order book entries' orders.
func (b *Broker) OpenOrders() []*model.Order {
	out := make([]*model.Order, 0, len(b.open)+len(b.delayed))
	for _, entry := range b.open {
		out = append(out, entry.order)
	}
	for _, entry := range b.delayed {
		out = append(out, entry.order)
	}
	return out
}

// SubmitOrder resolves the owning account, runs the admission validators,
// reserves frozen cash/margin and either activates the order or defers it
// to the next bar. A validator failure is a normal REJECTED outcome.
func (b *Broker) SubmitOrder(o *model.Order) error {
	ins, _ := b.registry.Instrument(o.Symbol)

	if !o.Quantity.IsPositive() {
		return b.reject(o, "order quantity is below one round lot")
	}

	// no owning account can exist for an unknown symbol; reject here so
	// the admission context never carries a nil account
	if ins == nil {
		return b.reject(o, "instrument "+o.Symbol+" is unknown")
	}
	acc, err := b.portfolio.AccountFor(ins.Kind)
	if err != nil {
		return b.reject(o, err.Error())
	}

	required, refPrice, refErr := b.requiredCash(o, ins)
	decision := b.validator.Validate(o, risk.Context{
		Instrument:   ins,
		Account:      acc,
		Date:         b.currentDate,
		Suspended:    b.data.IsSuspended(o.Symbol, b.currentDate),
		LimitUp:      b.limitPrice(o.Symbol, true),
		LimitDown:    b.limitPrice(o.Symbol, false),
		RequiredCash: required,
		TPlusOne:     b.profile.TPlusOne,
	})
	if !decision.Allowed {
		return b.reject(o, decision.Reason)
	}
	if refErr != nil {
		// market order with no reference price cannot be admitted
		return b.reject(o, "no price data for "+o.Symbol)
	}

	if o.Effect == model.EffectOpen {
		o.FrozenCash = required
		acc.FreezeCash(required)
	} else {
		pos, ok := acc.Position(o.Symbol, o.Direction)
		if !ok {
			return b.reject(o, "no position to close on "+o.Symbol)
		}
		pos.Freeze(o.Quantity)
	}
	if o.Kind == model.OrderKindMarket {
		o.Price = refPrice
	}

	if err := o.Activate(); err != nil {
		return err
	}
	entry := &bookEntry{account: acc, order: o}
	if err := b.publishOrder(schema.EventOrderNew, o); err != nil {
		return err
	}

	if b.matchType.Deferred() {
		b.delayed = append(b.delayed, entry)
		return nil
	}
	b.open = append(b.open, entry)
	return b.matchImmediate(entry)
}

// CancelOrder is only legal while the order is open: it releases the
// reserved cash/margin and removes the order from the book.
func (b *Broker) CancelOrder(o *model.Order) error {
	if o.Status != model.StatusOpen {
		return errors.Wrapf(ErrNotCancelable, "order %d status %s", o.ID, o.Status)
	}
	entry, ok := b.removeEntry(o.ID)
	if !ok {
		return errors.Invariant("cancel for order absent from broker book", o)
	}
	b.release(entry)
	if err := o.Cancel("cancelled by user"); err != nil {
		return err
	}
	b.archive(o)
	return b.publishOrder(schema.EventOrderCancelled, o)
}

// OnDayOpen reactivates delayed orders and resets the intraday cursor.
func (b *Broker) OnDayOpen(date time.Time) {
	b.currentDate = feed.DateKey(date)
	b.currentTime = date
	b.barSeen = false
	b.lastTicks = make(map[string]*model.Tick)
	b.promoteDelayed()
}

func (b *Broker) promoteDelayed() {
	if len(b.delayed) == 0 {
		return
	}
	b.open = append(b.open, b.delayed...)
	b.delayed = nil
}

// AdjustForSplits scales the frozen limit prices of live orders by the
// split factors applied this morning.
func (b *Broker) AdjustForSplits(adjustments []account.SplitAdjustment) {
	for _, adj := range adjustments {
		if !adj.Factor.IsPositive() {
			continue
		}
		for _, entry := range append(append([]*bookEntry(nil), b.open...), b.delayed...) {
			if entry.order.Symbol == adj.Symbol && !entry.order.Price.IsZero() {
				entry.order.Price = entry.order.Price.Div(adj.Factor)
			}
		}
	}
}

// OnBar invokes the matching engine against the bar at dt, applies the
// resulting trades and drops terminal orders from the book.
func (b *Broker) OnBar(dt time.Time) error {
	b.currentTime = dt
	b.barSeen = true
	// at intraday frequencies the next bar is minutes away, not a day;
	// deferred orders promote here instead of waiting for the day open
	if b.matchType.Deferred() && b.frequency != schema.FrequencyDaily {
		b.promoteDelayed()
	}
	if len(b.open) == 0 {
		return nil
	}
	orders := make([]*model.Order, 0, len(b.open))
	for _, entry := range b.open {
		orders = append(orders, entry.order)
	}
	trades, err := b.engine.MatchBar(orders, dt)
	if err != nil {
		return err
	}
	return b.settleMatch(trades)
}

// OnTick records the latest tick and matches the open orders of that
// instrument against it.
func (b *Broker) OnTick(tick *model.Tick) error {
	b.currentTime = tick.DateTime
	b.barSeen = true
	b.lastTicks[tick.Symbol] = tick
	if len(b.open) == 0 {
		return nil
	}
	orders := make([]*model.Order, 0, len(b.open))
	for _, entry := range b.open {
		orders = append(orders, entry.order)
	}
	trades, err := b.engine.MatchTick(orders, tick)
	if err != nil {
		return err
	}
	return b.settleMatch(trades)
}

// OnDayClose terminates the leftovers: open orders that the policy does
// not allow to carry across days are rejected (next-bar policy) or
// cancelled (same-bar policy). Delayed orders submitted today stay queued
// for the next day open.
func (b *Broker) OnDayClose() error {
	leftovers := b.open
	b.open = nil
	for _, entry := range leftovers {
		if entry.order.IsTerminal() {
			continue
		}
		b.release(entry)
		if b.matchType.Deferred() {
			if err := entry.order.Reject("unmatched on next bar"); err != nil {
				return err
			}
			b.archive(entry.order)
			if err := b.publishOrder(schema.EventOrderRejected, entry.order); err != nil {
				return err
			}
			continue
		}
		if err := entry.order.Cancel("unmatched at market close"); err != nil {
			return err
		}
		b.archive(entry.order)
		if err := b.publishOrder(schema.EventOrderCancelled, entry.order); err != nil {
			return err
		}
	}
	return nil
}

// matchImmediate matches a just-activated order synchronously when the
// policy is current-bar (or tick) and a reference is already known for
// the day.
func (b *Broker) matchImmediate(entry *bookEntry) error {
	if !b.barSeen {
		return nil
	}
	if b.frequency == schema.FrequencyTick {
		tick, ok := b.lastTicks[entry.order.Symbol]
		if !ok {
			return nil
		}
		trades, err := b.engine.MatchTick([]*model.Order{entry.order}, tick)
		if err != nil {
			return err
		}
		return b.settleMatch(trades)
	}
	trades, err := b.engine.MatchBar([]*model.Order{entry.order}, b.currentTime)
	if err != nil {
		return err
	}
	return b.settleMatch(trades)
}

// settleMatch applies produced trades to their owning accounts, publishes
// trade events and sweeps terminal orders out of the book.
func (b *Broker) settleMatch(trades []*model.Trade) error {
	byID := make(map[uint64]*bookEntry, len(b.open))
	for _, entry := range b.open {
		byID[entry.order.ID] = entry
	}

	for _, trade := range trades {
		entry, ok := byID[trade.OrderID]
		if !ok {
			return errors.Invariant("trade for order absent from broker book", trade)
		}
		b.releaseFrozenFor(entry, trade.Quantity)
		_, realized, err := entry.account.ApplyTrade(trade)
		if err != nil {
			return err
		}
		if b.journal != nil {
			b.journal.RecordTrade(trade, realized)
		}
		if err := b.eventBus.Publish(bus.Event{
			Kind:         schema.EventTrade,
			CalendarTime: trade.DateTime,
			TradingTime:  trade.DateTime,
			Order:        entry.order,
			Trade:        trade,
		}); err != nil {
			return err
		}
	}

	kept := b.open[:0]
	for _, entry := range b.open {
		if !entry.order.IsTerminal() {
			kept = append(kept, entry)
			continue
		}
		if entry.order.Status == model.StatusRejected {
			// rejected by the matching re-check; frozen funds still held
			b.release(entry)
			logs.Infof("order %d rejected: %s", entry.order.ID, entry.order.Reason)
			if err := b.publishOrder(schema.EventOrderRejected, entry.order); err != nil {
				return err
			}
		}
		b.archive(entry.order)
	}
	b.open = kept
	return nil
}

func (b *Broker) archive(o *model.Order) {
	if b.journal != nil {
		b.journal.ArchiveOrder(o)
	}
}

// releaseFrozenFor releases the pro-rata share of an open order's frozen
// cash for a fill; the remainder is released when the order terminates.
func (b *Broker) releaseFrozenFor(entry *bookEntry, quantity decimal.Decimal) {
	o := entry.order
	if o.Effect != model.EffectOpen || o.FrozenCash.IsZero() {
		return
	}
	// the engine already applied the fill, so Unfilled is the remainder
	remaining := o.Unfilled()
	if o.IsTerminal() || !remaining.IsPositive() {
		entry.account.UnfreezeCash(o.FrozenCash)
		o.FrozenCash = decimal.Zero
		return
	}
	release := o.FrozenCash.Mul(quantity).Div(remaining.Add(quantity))
	entry.account.UnfreezeCash(release)
	o.FrozenCash = o.FrozenCash.Sub(release)
}

// release frees whatever reservation is still held by a live order.
func (b *Broker) release(entry *bookEntry) {
	o := entry.order
	if o.Effect == model.EffectOpen {
		if !o.FrozenCash.IsZero() {
			entry.account.UnfreezeCash(o.FrozenCash)
			o.FrozenCash = decimal.Zero
		}
		return
	}
	if pos, ok := entry.account.Position(o.Symbol, o.Direction); ok {
		pos.Unfreeze(o.Unfilled())
	}
}

func (b *Broker) removeEntry(orderID uint64) (*bookEntry, bool) {
	for i, entry := range b.open {
		if entry.order.ID == orderID {
			b.open = append(b.open[:i], b.open[i+1:]...)
			return entry, true
		}
	}
	for i, entry := range b.delayed {
		if entry.order.ID == orderID {
			b.delayed = append(b.delayed[:i], b.delayed[i+1:]...)
			return entry, true
		}
	}
	return nil, false
}

func (b *Broker) reject(o *model.Order, reason string) error {
	if err := o.Reject(reason); err != nil {
		return err
	}
	logs.Infof("order %d rejected: %s", o.ID, reason)
	b.archive(o)
	return b.publishOrder(schema.EventOrderRejected, o)
}

func (b *Broker) publishOrder(kind schema.EventKind, o *model.Order) error {
	return b.eventBus.Publish(bus.Event{
		Kind:         kind,
		CalendarTime: b.now(),
		TradingTime:  b.now(),
		Order:        o,
	})
}

// limitPrice looks up today's price band boundary; zero disables the
// band check for instruments without one.
func (b *Broker) limitPrice(symbol string, up bool) decimal.Decimal {
	bar, err := b.data.Bar(symbol, b.currentDate, schema.FrequencyDaily)
	if err != nil {
		return decimal.Zero
	}
	if up {
		return bar.LimitUp
	}
	return bar.LimitDown
}

func (b *Broker) now() time.Time {
	if !b.currentTime.IsZero() {
		return b.currentTime
	}
	return b.currentDate
}

// requiredCash estimates the reservation an open order needs: notional
// plus estimated costs for stock, margin for futures. Close orders
// reserve position quantity instead.
func (b *Broker) requiredCash(o *model.Order, ins *schema.Instrument) (decimal.Decimal, decimal.Decimal, error) {
	if ins == nil || o.Effect != model.EffectOpen {
		return decimal.Zero, o.Price, nil
	}
	refPrice := o.Price
	if o.Kind == model.OrderKindMarket {
		bar, err := b.data.Bar(o.Symbol, b.now(), b.frequency)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		refPrice = bar.Close
	}

	notional := ins.ContractValue(refPrice, o.Quantity)
	var required decimal.Decimal
	if ins.Kind == schema.InstrumentFuture {
		required = notional.Mul(ins.MarginRate)
	} else {
		required = notional
	}
	if b.commission != nil {
		required = required.Add(b.commission.Commission(ins, o.Effect, refPrice, o.Quantity, decimal.Zero))
	}
	required = required.Add(b.tax.Tax(ins, o.Side, refPrice, o.Quantity))
	return required, refPrice, nil
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
