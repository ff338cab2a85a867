package core

import (
	"time"

	"github.com/shopspring/decimal"

	"main/internal/account"
	"main/internal/broker"
	"main/internal/bus"
	"main/internal/clock"
	"main/internal/errors"
	"main/internal/feed"
	"main/internal/journal"
	"main/internal/model"
	"main/internal/schema"
)

// Environment is the explicit context handed to every strategy hook. All
// strategy-facing capabilities go through it; there is no global state.
type Environment struct {
	Bus       *bus.Bus
	Clock     *clock.Source
	Data      feed.Source
	Registry  *schema.Registry
	Portfolio *account.Portfolio
	Broker    *broker.Broker
	Journal   *journal.Journal

	frequency schema.Frequency
	now       time.Time
}

func NewEnvironment(eventBus *bus.Bus, clockSrc *clock.Source, data feed.Source, registry *schema.Registry,
	portfolio *account.Portfolio, brk *broker.Broker, jl *journal.Journal, freq schema.Frequency) *Environment {
	return &Environment{
		Bus:       eventBus,
		Clock:     clockSrc,
		Data:      data,
		Registry:  registry,
		Portfolio: portfolio,
		Broker:    brk,
		Journal:   jl,
		frequency: freq,
	}
}

// Now returns the trading time of the event being handled. It only moves
// forward; strategies never see wall-clock time.
func (e *Environment) Now() time.Time { return e.now }

// SubmitOrder builds and routes an order. The returned order reflects the
// admission outcome; a rejected order is a normal result, not an error.
func (e *Environment) SubmitOrder(symbol string, side model.Side, effect model.PositionEffect,
	kind model.OrderKind, price, quantity decimal.Decimal) (*model.Order, error) {
	o := e.Broker.NewOrder(symbol, side, effect, kind, price, quantity)
	if err := e.Broker.SubmitOrder(o); err != nil {
		return o, err
	}
	return o, nil
}

// CancelOrder cancels a live order.
func (e *Environment) CancelOrder(o *model.Order) error {
	return e.Broker.CancelOrder(o)
}

// OpenOrders returns the orders still live in the broker book.
func (e *Environment) OpenOrders() []*model.Order {
	return e.Broker.OpenOrders()
}

// History returns up to count bars of the run frequency ending at the
// current event time.
func (e *Environment) History(symbol string, count int) ([]model.Bar, error) {
	return e.Data.HistoryBars(symbol, count, e.frequency, e.now)
}

// SetUniverse replaces the subscribed instrument set mid-run. Unknown
// symbols fail the call; the event sequence recomputes from the next
// event onward.
func (e *Environment) SetUniverse(symbols ...string) error {
	for _, symbol := range symbols {
		if _, ok := e.Registry.Instrument(symbol); !ok {
			return errors.Wrapf(schema.ErrUnknownInstrument, "universe symbol %s", symbol)
		}
	}
	e.Clock.SetUniverse(symbols)
	return nil
}

// Universe returns the currently subscribed symbols.
func (e *Environment) Universe() []string {
	return e.Clock.Universe()
}
