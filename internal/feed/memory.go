package feed

import (
	"sort"
	"time"

	"main/internal/errors"
	"main/internal/model"
	"main/internal/schema"
)

var _ Source = (*MemorySource)(nil)

// MemorySource is an in-memory Source used by tests and programmatic runs.
// All lookups are deterministic; bars are stored time-ordered per symbol.
type MemorySource struct {
	instruments []schema.Instrument
	calendar    []time.Time

	daily   map[string][]model.Bar
	minutes map[string][]model.Bar
	ticks   map[string][]model.Tick

	dividends       map[string][]Dividend
	splits          map[string][]Split
	transformations map[string]Transformation
	suspensions     map[string]map[time.Time]bool
	commissions     map[string]CommissionInfo
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		daily:           make(map[string][]model.Bar),
		minutes:         make(map[string][]model.Bar),
		ticks:           make(map[string][]model.Tick),
		dividends:       make(map[string][]Dividend),
		splits:          make(map[string][]Split),
		transformations: make(map[string]Transformation),
		suspensions:     make(map[string]map[time.Time]bool),
		commissions:     make(map[string]CommissionInfo),
	}
}

// AddInstrument registers static reference data for a symbol.
func (s *MemorySource) AddInstrument(ins schema.Instrument) {
	s.instruments = append(s.instruments, ins)
}

// SetCalendar replaces the trading calendar.
func (s *MemorySource) SetCalendar(dates []time.Time) {
	s.calendar = append([]time.Time(nil), dates...)
	sort.Slice(s.calendar, func(i, j int) bool { return s.calendar[i].Before(s.calendar[j]) })
}

// AddBar appends a bar; bars must be added in time order per symbol.
func (s *MemorySource) AddBar(freq schema.Frequency, bar model.Bar) {
	switch freq {
	case schema.FrequencyMinute:
		s.minutes[bar.Symbol] = append(s.minutes[bar.Symbol], bar)
	default:
		s.daily[bar.Symbol] = append(s.daily[bar.Symbol], bar)
	}
}

// AddTick appends a tick; ticks must be added in time order per symbol.
func (s *MemorySource) AddTick(tick model.Tick) {
	s.ticks[tick.Symbol] = append(s.ticks[tick.Symbol], tick)
}

func (s *MemorySource) AddDividend(symbol string, div Dividend) {
	s.dividends[symbol] = append(s.dividends[symbol], div)
}

func (s *MemorySource) AddSplit(symbol string, split Split) {
	s.splits[symbol] = append(s.splits[symbol], split)
}

func (s *MemorySource) SetTransformation(symbol string, tr Transformation) {
	s.transformations[symbol] = tr
}

func (s *MemorySource) SetSuspended(symbol string, date time.Time) {
	m, ok := s.suspensions[symbol]
	if !ok {
		m = make(map[time.Time]bool)
		s.suspensions[symbol] = m
	}
	m[DateKey(date)] = true
}

func (s *MemorySource) SetCommissionInfo(symbol string, info CommissionInfo) {
	s.commissions[symbol] = info
}

func (s *MemorySource) Instruments() []schema.Instrument {
	out := make([]schema.Instrument, len(s.instruments))
	copy(out, s.instruments)
	return out
}

func (s *MemorySource) Bar(symbol string, dt time.Time, freq schema.Frequency) (*model.Bar, error) {
	bars := s.barsFor(symbol, freq)
	key := dt
	if freq == schema.FrequencyDaily {
		key = DateKey(dt)
	}
	for i := range bars {
		at := bars[i].DateTime
		if freq == schema.FrequencyDaily {
			at = DateKey(at)
		}
		if at.Equal(key) {
			bar := bars[i]
			return &bar, nil
		}
	}
	return nil, errors.Wrapf(ErrBarNotFound, "%s @ %s", symbol, dt.Format(time.DateTime))
}

func (s *MemorySource) HistoryBars(symbol string, count int, freq schema.Frequency, asOf time.Time) ([]model.Bar, error) {
	bars := s.barsFor(symbol, freq)
	var out []model.Bar
	for i := range bars {
		if !bars[i].DateTime.After(asOf) {
			out = append(out, bars[i])
		}
	}
	if count > 0 && len(out) > count {
		out = out[len(out)-count:]
	}
	return out, nil
}

func (s *MemorySource) Ticks(symbol string, date time.Time) ([]model.Tick, error) {
	key := DateKey(date)
	var out []model.Tick
	for _, tick := range s.ticks[symbol] {
		if DateKey(tick.DateTime).Equal(key) {
			out = append(out, tick)
		}
	}
	return out, nil
}

func (s *MemorySource) Dividends(symbol string) []Dividend {
	return append([]Dividend(nil), s.dividends[symbol]...)
}

func (s *MemorySource) Splits(symbol string) []Split {
	return append([]Split(nil), s.splits[symbol]...)
}

func (s *MemorySource) ShareTransformation(symbol string) (Transformation, bool) {
	tr, ok := s.transformations[symbol]
	return tr, ok
}

func (s *MemorySource) IsSuspended(symbol string, date time.Time) bool {
	return s.suspensions[symbol][DateKey(date)]
}

func (s *MemorySource) TradingCalendar() []time.Time {
	out := make([]time.Time, len(s.calendar))
	copy(out, s.calendar)
	return out
}

func (s *MemorySource) TradingMinutes(symbol string, date time.Time) []time.Time {
	key := DateKey(date)
	var out []time.Time
	for _, bar := range s.minutes[symbol] {
		if DateKey(bar.DateTime).Equal(key) {
			out = append(out, bar.DateTime)
		}
	}
	return out
}

func (s *MemorySource) CommissionInfo(symbol string) (CommissionInfo, bool) {
	info, ok := s.commissions[symbol]
	return info, ok
}

func (s *MemorySource) barsFor(symbol string, freq schema.Frequency) []model.Bar {
	if freq == schema.FrequencyMinute {
		return s.minutes[symbol]
	}
	return s.daily[symbol]
}
