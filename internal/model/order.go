package model

import (
	"time"

	"github.com/shopspring/decimal"

	"main/internal/errors"
)

var (
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInvalidFill       = errors.New("invalid fill quantity")
)

// Side is the trade direction of an order.
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Direction is the side of the position an order works on. Stock positions
// are always long; futures may carry long and short books at once.
type Direction uint8

const (
	DirectionUnknown Direction = iota
	DirectionLong
	DirectionShort
)

func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "long"
	case DirectionShort:
		return "short"
	default:
		return "unknown"
	}
}

// Factor returns +1 for long and -1 for short.
func (d Direction) Factor() decimal.Decimal {
	if d == DirectionShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// PositionEffect classifies an order as opening or closing a position.
type PositionEffect uint8

const (
	EffectUnknown PositionEffect = iota
	EffectOpen
	EffectClose
	EffectCloseToday
	EffectExercise
)

func (e PositionEffect) String() string {
	switch e {
	case EffectOpen:
		return "open"
	case EffectClose:
		return "close"
	case EffectCloseToday:
		return "close_today"
	case EffectExercise:
		return "exercise"
	default:
		return "unknown"
	}
}

// IsClose reports whether the effect reduces a position.
func (e PositionEffect) IsClose() bool {
	return e == EffectClose || e == EffectCloseToday
}

// OrderKind is the pricing style of an order.
type OrderKind uint8

const (
	OrderKindUnknown OrderKind = iota
	OrderKindMarket
	OrderKindLimit
)

func (k OrderKind) String() string {
	switch k {
	case OrderKindMarket:
		return "market"
	case OrderKindLimit:
		return "limit"
	default:
		return "unknown"
	}
}

// OrderStatus tracks the order lifecycle. Transitions are monotonic:
// PendingNew -> Open -> {Filled, Cancelled, Rejected}; PendingNew may also
// terminate directly as Rejected. Terminal states are immutable.
type OrderStatus uint8

const (
	StatusUnknown OrderStatus = iota
	StatusPendingNew
	StatusOpen
	StatusFilled
	StatusCancelled
	StatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case StatusPendingNew:
		return "pending_new"
	case StatusOpen:
		return "open"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is legal.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCancelled, StatusRejected:
		return true
	default:
		return false
	}
}

// Order is one user trading decision routed through the broker. The broker
// owns it until terminal; afterwards it is archived by the journal.
type Order struct {
	ID        uint64
	Symbol    string
	CreatedAt time.Time
	Side      Side
	Direction Direction
	Effect    PositionEffect
	Kind      OrderKind

	// Price is the frozen limit price; zero for market orders.
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Filled   decimal.Decimal

	// FrozenCash is the cash or margin reserved while the order is live.
	FrozenCash      decimal.Decimal
	TransactionCost decimal.Decimal
	AvgFillPrice    decimal.Decimal

	Status OrderStatus
	Reason string
}

// NewOrder builds an order in PendingNew state.
func NewOrder(id uint64, symbol string, side Side, effect PositionEffect, kind OrderKind, price, quantity decimal.Decimal, createdAt time.Time) *Order {
	direction := DirectionLong
	if (side == SideSell && effect == EffectOpen) || (side == SideBuy && effect.IsClose()) {
		direction = DirectionShort
	}
	return &Order{
		ID:        id,
		Symbol:    symbol,
		CreatedAt: createdAt,
		Side:      side,
		Direction: direction,
		Effect:    effect,
		Kind:      kind,
		Price:     price,
		Quantity:  quantity,
		Status:    StatusPendingNew,
	}
}

// Unfilled returns the quantity still to be matched.
func (o *Order) Unfilled() decimal.Decimal {
	return o.Quantity.Sub(o.Filled)
}

// IsTerminal reports whether the order reached a final state.
func (o *Order) IsTerminal() bool {
	return o.Status.Terminal()
}

// Activate transitions PendingNew -> Open after admission validators pass.
func (o *Order) Activate() error {
	if o.Status != StatusPendingNew {
		return errors.Invariant("activate on non-pending order", o)
	}
	o.Status = StatusOpen
	return nil
}

// Fill records a matched quantity at the given execution price and moves
// the order to Filled once fully matched. Filled quantity is monotonic and
// never exceeds Quantity.
func (o *Order) Fill(price, quantity, cost decimal.Decimal) error {
	if o.IsTerminal() {
		return errors.Invariant("fill on terminal order", o)
	}
	if o.Status != StatusOpen {
		return errors.Wrapf(ErrInvalidTransition, "fill on %s order %d", o.Status, o.ID)
	}
	if !quantity.IsPositive() {
		return errors.Wrapf(ErrInvalidFill, "order %d quantity %s", o.ID, quantity)
	}
	next := o.Filled.Add(quantity)
	if next.GreaterThan(o.Quantity) {
		return errors.Invariant("filled quantity exceeds order quantity", o)
	}
	notional := o.AvgFillPrice.Mul(o.Filled).Add(price.Mul(quantity))
	o.Filled = next
	o.AvgFillPrice = notional.Div(next)
	o.TransactionCost = o.TransactionCost.Add(cost)
	if o.Filled.Equal(o.Quantity) {
		o.Status = StatusFilled
	}
	return nil
}

// Cancel terminates an open or pending order.
func (o *Order) Cancel(reason string) error {
	if o.IsTerminal() {
		return errors.Invariant("cancel on terminal order", o)
	}
	o.Status = StatusCancelled
	o.Reason = reason
	return nil
}

// Reject terminates the order with a human-readable reason. Rejection is a
// normal reported outcome, not a fault.
func (o *Order) Reject(reason string) error {
	if o.IsTerminal() {
		return errors.Invariant("reject on terminal order", o)
	}
	o.Status = StatusRejected
	o.Reason = reason
	return nil
}
