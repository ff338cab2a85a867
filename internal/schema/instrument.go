package schema

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateInstrument = errors.New("instrument already registered")
	ErrUnknownInstrument   = errors.New("instrument not found")
)

// InstrumentKind is the asset class of an instrument. Dispatch on it is a
// plain switch; there is no runtime type registry.
type InstrumentKind uint8

const (
	InstrumentUnknown InstrumentKind = iota
	InstrumentStock
	InstrumentFund
	InstrumentFuture
)

func (k InstrumentKind) String() string {
	switch k {
	case InstrumentStock:
		return "stock"
	case InstrumentFund:
		return "fund"
	case InstrumentFuture:
		return "future"
	default:
		return "unknown"
	}
}

// Instrument is the static reference data for one tradable symbol.
type Instrument struct {
	Symbol       string
	Kind         InstrumentKind
	RoundLot     decimal.Decimal
	TickSize     decimal.Decimal
	Multiplier   decimal.Decimal
	MarginRate   decimal.Decimal
	ListedDate   time.Time
	DelistedDate time.Time
}

// Listed reports whether the instrument trades on the given date.
func (i *Instrument) Listed(date time.Time) bool {
	if !i.ListedDate.IsZero() && date.Before(i.ListedDate) {
		return false
	}
	if !i.DelistedDate.IsZero() && !date.Before(i.DelistedDate) {
		return false
	}
	return true
}

// DelistedBy reports whether the instrument stops trading strictly before
// or on the given date.
func (i *Instrument) DelistedBy(date time.Time) bool {
	return !i.DelistedDate.IsZero() && !i.DelistedDate.After(date)
}

// ContractValue returns price * quantity * multiplier.
func (i *Instrument) ContractValue(price, quantity decimal.Decimal) decimal.Decimal {
	return price.Mul(quantity).Mul(i.Multiplier)
}

// Registry resolves symbols to instruments. Built once at startup from the
// feed or config; read-only afterwards.
type Registry struct {
	bySymbol map[string]*Instrument
	symbols  []string
}

func NewRegistry() *Registry {
	return &Registry{bySymbol: make(map[string]*Instrument)}
}

// Add registers an instrument, filling in kind defaults for zero fields.
func (r *Registry) Add(ins Instrument) (*Instrument, error) {
	if ins.Symbol == "" {
		return nil, ErrUnknownInstrument
	}
	if _, ok := r.bySymbol[ins.Symbol]; ok {
		return nil, ErrDuplicateInstrument
	}
	applyKindDefaults(&ins)
	stored := ins
	r.bySymbol[ins.Symbol] = &stored
	r.symbols = append(r.symbols, ins.Symbol)
	sort.Strings(r.symbols)
	return &stored, nil
}

// Instrument returns the instrument for a symbol.
func (r *Registry) Instrument(symbol string) (*Instrument, bool) {
	ins, ok := r.bySymbol[symbol]
	return ins, ok
}

// Symbols returns all registered symbols in lexical order.
func (r *Registry) Symbols() []string {
	out := make([]string, len(r.symbols))
	copy(out, r.symbols)
	return out
}

func applyKindDefaults(ins *Instrument) {
	if ins.Multiplier.IsZero() {
		ins.Multiplier = decimal.NewFromInt(1)
	}
	if ins.RoundLot.IsZero() {
		switch ins.Kind {
		case InstrumentStock:
			ins.RoundLot = decimal.NewFromInt(100)
		default:
			ins.RoundLot = decimal.NewFromInt(1)
		}
	}
	if ins.TickSize.IsZero() {
		ins.TickSize = decimal.RequireFromString("0.01")
	}
	if ins.Kind == InstrumentFuture && ins.MarginRate.IsZero() {
		ins.MarginRate = decimal.RequireFromString("0.1")
	}
}
