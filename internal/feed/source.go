package feed

import (
	"time"

	"github.com/shopspring/decimal"

	"main/internal/errors"
	"main/internal/model"
	"main/internal/schema"
)

var (
	// ErrBarNotFound is the typed lookup failure for a missing bar. The
	// matching engine treats it as "cannot trade today", not a fault.
	ErrBarNotFound = errors.New("bar not available")
)

// Dividend is one cash dividend entry. CashPerLot is net of tax, quoted
// per round lot of the instrument.
type Dividend struct {
	BookClosureDate time.Time
	ExDate          time.Time
	PayableDate     time.Time
	CashPerLot      decimal.Decimal
	RoundLot        decimal.Decimal
}

// Split is one share split entry effective on ExDate.
type Split struct {
	ExDate time.Time
	Factor decimal.Decimal
}

// Transformation maps a delisted instrument into its successor at a
// conversion ratio on the effective date.
type Transformation struct {
	EffectiveDate time.Time
	Successor     string
	Ratio         decimal.Decimal
}

// CommissionInfo is the futures fee schedule for one instrument.
type CommissionInfo struct {
	ByVolume       bool
	OpenRate       decimal.Decimal
	CloseRate      decimal.Decimal
	CloseTodayRate decimal.Decimal
}

// Source is the read-only market data facade the core consumes. The
// engine never writes through it.
type Source interface {
	// Instruments returns the static reference data for every symbol.
	Instruments() []schema.Instrument

	// Bar returns the bar for a symbol at the given trading timestamp.
	// Daily bars are keyed by trading date. Returns ErrBarNotFound when
	// no data exists for that timestamp.
	Bar(symbol string, dt time.Time, freq schema.Frequency) (*model.Bar, error)

	// HistoryBars returns up to count bars ending at asOf, time-ordered.
	HistoryBars(symbol string, count int, freq schema.Frequency, asOf time.Time) ([]model.Bar, error)

	// Ticks returns the tick stream of a symbol for one trading date.
	Ticks(symbol string, date time.Time) ([]model.Tick, error)

	Dividends(symbol string) []Dividend
	Splits(symbol string) []Split
	ShareTransformation(symbol string) (Transformation, bool)

	IsSuspended(symbol string, date time.Time) bool

	// TradingCalendar returns the ordered trading dates of the market.
	TradingCalendar() []time.Time

	// TradingMinutes returns the trading minutes of a symbol on a date.
	TradingMinutes(symbol string, date time.Time) []time.Time

	CommissionInfo(symbol string) (CommissionInfo, bool)
}

// DateKey truncates a timestamp to its trading-date key.
func DateKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
