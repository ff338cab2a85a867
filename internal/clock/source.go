package clock

import (
	"sort"
	"time"

	"main/internal/bus"
	"main/internal/feed"
	"main/internal/model"
	"main/internal/schema"
)

// Source produces the strictly time-ordered lifecycle events of each
// trading day: BeforeTrading, OpenAuction, Bar/Tick events, AfterTrading.
// Settlement is not part of the sequence; the run loop triggers it after
// AfterTrading completes.
type Source struct {
	feed    feed.Source
	profile schema.MarketProfile

	universe        []string
	universeVersion uint64
}

func NewSource(f feed.Source, profile schema.MarketProfile) *Source {
	return &Source{feed: f, profile: profile}
}

// SetUniverse replaces the subscribed instrument set. A live iterator
// recomputes its remaining intraday events without skipping or duplicating
// already-emitted ones.
func (s *Source) SetUniverse(symbols []string) {
	s.universe = append([]string(nil), symbols...)
	sort.Strings(s.universe)
	s.universeVersion++
}

// Universe returns the current subscribed symbols.
func (s *Source) Universe() []string {
	out := make([]string, len(s.universe))
	copy(out, s.universe)
	return out
}

// Events returns a fresh iterator over [start, end]. Each call restarts
// from the beginning of the range.
func (s *Source) Events(start, end time.Time, freq schema.Frequency) *Iterator {
	var dates []time.Time
	for _, date := range s.feed.TradingCalendar() {
		if date.Before(feed.DateKey(start)) || date.After(feed.DateKey(end)) {
			continue
		}
		dates = append(dates, date)
	}
	return &Iterator{src: s, freq: freq, dates: dates, stage: stageBeforeTrading}
}

const (
	stageBeforeTrading = iota
	stageOpenAuction
	stageIntraday
	stageAfterTrading
	stageDayDone
)

// Iterator walks the event sequence one event at a time. Events within a
// day are strictly increasing in trading time.
type Iterator struct {
	src  *Source
	freq schema.Frequency

	dates  []time.Time
	dayIdx int
	stage  int

	intraday    []intradayEvent
	intradayIdx int
	lastEmitted time.Time
	seenVersion uint64
}

type intradayEvent struct {
	at   time.Time
	tick *model.Tick
}

// Next returns the next event in sequence. ok is false once the range is
// exhausted.
func (it *Iterator) Next() (bus.Event, bool) {
	for {
		if it.dayIdx >= len(it.dates) {
			return bus.Event{}, false
		}
		date := it.dates[it.dayIdx]

		switch it.stage {
		case stageBeforeTrading:
			it.stage = stageOpenAuction
			return it.lifecycleEvent(schema.EventBeforeTrading, date, it.src.profile.BeforeTradingOffset), true

		case stageOpenAuction:
			it.stage = stageIntraday
			it.prepareIntraday(date)
			return it.lifecycleEvent(schema.EventOpenAuction, date, it.src.profile.OpenAuctionOffset), true

		case stageIntraday:
			if it.seenVersion != it.src.universeVersion {
				it.recomputeIntraday(date)
			}
			if it.intradayIdx < len(it.intraday) {
				ev := it.intraday[it.intradayIdx]
				it.intradayIdx++
				it.lastEmitted = ev.at
				kind := schema.EventBar
				if it.freq == schema.FrequencyTick {
					kind = schema.EventTick
				}
				return bus.Event{
					Kind:         kind,
					CalendarTime: ev.at,
					TradingTime:  ev.at,
					Tick:         ev.tick,
				}, true
			}
			it.stage = stageAfterTrading

		case stageAfterTrading:
			it.stage = stageDayDone
			return it.lifecycleEvent(schema.EventAfterTrading, date, it.src.profile.AfterTradingOffset), true

		case stageDayDone:
			it.dayIdx++
			it.stage = stageBeforeTrading
			it.intraday = nil
			it.intradayIdx = 0
			it.lastEmitted = time.Time{}
		}
	}
}

func (it *Iterator) lifecycleEvent(kind schema.EventKind, date time.Time, offset time.Duration) bus.Event {
	at := it.src.profile.At(date, offset)
	return bus.Event{Kind: kind, CalendarTime: at, TradingTime: at}
}

func (it *Iterator) prepareIntraday(date time.Time) {
	it.seenVersion = it.src.universeVersion
	it.intraday = it.collectIntraday(date, time.Time{})
	it.intradayIdx = 0
}

// recomputeIntraday rebuilds the remaining intraday set after a universe
// change, keeping only events strictly after the last emitted time.
func (it *Iterator) recomputeIntraday(date time.Time) {
	it.seenVersion = it.src.universeVersion
	it.intraday = it.collectIntraday(date, it.lastEmitted)
	it.intradayIdx = 0
}

func (it *Iterator) collectIntraday(date time.Time, after time.Time) []intradayEvent {
	switch it.freq {
	case schema.FrequencyDaily:
		at := it.src.profile.At(date, it.src.profile.BarCloseOffset)
		if !after.IsZero() && !at.After(after) {
			return nil
		}
		return []intradayEvent{{at: at}}

	case schema.FrequencyMinute:
		merged := make(map[time.Time]struct{})
		for _, symbol := range it.src.universe {
			for _, minute := range it.src.feed.TradingMinutes(symbol, date) {
				if !after.IsZero() && !minute.After(after) {
					continue
				}
				merged[minute] = struct{}{}
			}
		}
		out := make([]intradayEvent, 0, len(merged))
		for minute := range merged {
			out = append(out, intradayEvent{at: minute})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].at.Before(out[j].at) })
		return out

	case schema.FrequencyTick:
		var out []intradayEvent
		for _, symbol := range it.src.universe {
			ticks, err := it.src.feed.Ticks(symbol, date)
			if err != nil {
				continue
			}
			for i := range ticks {
				if !after.IsZero() && !ticks[i].DateTime.After(after) {
					continue
				}
				tick := ticks[i]
				out = append(out, intradayEvent{at: tick.DateTime, tick: &tick})
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].at.Equal(out[j].at) {
				return out[i].tick.Symbol < out[j].tick.Symbol
			}
			return out[i].at.Before(out[j].at)
		})
		return out

	default:
		return nil
	}
}
