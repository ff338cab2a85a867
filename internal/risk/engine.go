package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"main/internal/account"
	"main/internal/model"
	"main/internal/schema"
)

// Config toggles individual admission validators. All enabled by default;
// disabling one is an explicit backtest-configuration decision.
type Config struct {
	ValidateCash       *bool `json:"validateCash"`
	ValidatePosition   *bool `json:"validatePosition"`
	ValidatePriceRange *bool `json:"validatePriceRange"`
	ValidateSuspension *bool `json:"validateSuspension"`
	ValidateListing    *bool `json:"validateListing"`
}

func enabled(flag *bool) bool { return flag == nil || *flag }

// Decision is the admission outcome. A denied order is a normal reported
// result carrying a human-readable reason, never an error.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Context is the market state a validation runs against.
type Context struct {
	Instrument   *schema.Instrument
	Account      *account.Account
	Date         time.Time
	Suspended    bool
	LimitUp      decimal.Decimal
	LimitDown    decimal.Decimal
	RequiredCash decimal.Decimal
	TPlusOne     bool
}

// Engine runs the order admission validators: tradability, price band,
// cash sufficiency for opens, closable quantity for closes.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Validate checks one order against the current market/account state.
func (e *Engine) Validate(order *model.Order, ctx Context) Decision {
	if enabled(e.cfg.ValidateListing) {
		if ctx.Instrument == nil {
			return deny("instrument %s is unknown", order.Symbol)
		}
		if !ctx.Instrument.Listed(ctx.Date) {
			return deny("instrument %s is not tradable on %s", order.Symbol, ctx.Date.Format(time.DateOnly))
		}
	}

	if enabled(e.cfg.ValidateSuspension) && ctx.Suspended {
		return deny("instrument %s is suspended on %s", order.Symbol, ctx.Date.Format(time.DateOnly))
	}

	if enabled(e.cfg.ValidatePriceRange) && order.Kind == model.OrderKindLimit {
		if !ctx.LimitUp.IsZero() && order.Price.GreaterThan(ctx.LimitUp) {
			return deny("limit price %s above limit up %s", order.Price, ctx.LimitUp)
		}
		if !ctx.LimitDown.IsZero() && order.Price.LessThan(ctx.LimitDown) {
			return deny("limit price %s below limit down %s", order.Price, ctx.LimitDown)
		}
	}

	if order.Effect == model.EffectOpen {
		if enabled(e.cfg.ValidateCash) && ctx.Account != nil && ctx.RequiredCash.GreaterThan(ctx.Account.Available()) {
			return deny("cash insufficient: required %s, available %s",
				ctx.RequiredCash, ctx.Account.Available())
		}
		return allow()
	}

	if enabled(e.cfg.ValidatePosition) && ctx.Account != nil {
		pos, ok := ctx.Account.Position(order.Symbol, order.Direction)
		if !ok {
			return deny("no %s position on %s to close", order.Direction, order.Symbol)
		}
		closable := pos.Closable(ctx.TPlusOne && ctx.Instrument != nil && ctx.Instrument.Kind != schema.InstrumentFuture)
		if order.Effect == model.EffectCloseToday {
			closable = pos.ClosableToday()
		}
		if order.Quantity.GreaterThan(closable) {
			return deny("close quantity %s exceeds closable %s on %s %s",
				order.Quantity, closable, order.Symbol, order.Direction)
		}
	}
	return allow()
}
