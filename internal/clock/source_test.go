package clock

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/bus"
	"main/internal/feed"
	"main/internal/model"
	"main/internal/schema"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func collect(it *Iterator) []bus.Event {
	var out []bus.Event
	for {
		ev, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, ev)
	}
}

func TestDailySequence(t *testing.T) {
	src := feed.NewMemorySource()
	src.SetCalendar([]time.Time{day(2024, 1, 2), day(2024, 1, 3)})

	s := NewSource(src, schema.CNMarket())
	events := collect(s.Events(day(2024, 1, 2), day(2024, 1, 3), schema.FrequencyDaily))

	kinds := make([]schema.EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []schema.EventKind{
		schema.EventBeforeTrading, schema.EventOpenAuction, schema.EventBar, schema.EventAfterTrading,
		schema.EventBeforeTrading, schema.EventOpenAuction, schema.EventBar, schema.EventAfterTrading,
	}, kinds)

	// fixed session offsets for the CN profile
	assert.Equal(t, 9, events[0].TradingTime.Hour())
	assert.Equal(t, 15, events[2].TradingTime.Hour())

	// strictly increasing within a day
	for i := 1; i < 4; i++ {
		assert.True(t, events[i].TradingTime.After(events[i-1].TradingTime))
	}
}

func TestDailyRangeFiltersCalendar(t *testing.T) {
	src := feed.NewMemorySource()
	src.SetCalendar([]time.Time{day(2024, 1, 2), day(2024, 1, 3), day(2024, 1, 4)})

	s := NewSource(src, schema.CNMarket())
	events := collect(s.Events(day(2024, 1, 3), day(2024, 1, 3), schema.FrequencyDaily))
	require.Len(t, events, 4)
	assert.Equal(t, 3, events[0].TradingTime.Day())
}

func TestMinuteUniverseChangeRecomputes(t *testing.T) {
	src := feed.NewMemorySource()
	date := day(2024, 1, 2)
	src.SetCalendar([]time.Time{date})
	for minute := 0; minute < 4; minute++ {
		src.AddBar(schema.FrequencyMinute, model.Bar{
			Symbol:   "A",
			DateTime: date.Add(9*time.Hour + 31*time.Minute).Add(time.Duration(minute) * time.Minute),
			Close:    decimal.NewFromInt(10),
		})
	}
	// B trades an extended set of minutes
	for minute := 0; minute < 8; minute++ {
		src.AddBar(schema.FrequencyMinute, model.Bar{
			Symbol:   "B",
			DateTime: date.Add(9*time.Hour + 31*time.Minute).Add(time.Duration(minute) * time.Minute),
			Close:    decimal.NewFromInt(20),
		})
	}

	s := NewSource(src, schema.CNMarket())
	s.SetUniverse([]string{"A"})

	it := s.Events(date, date, schema.FrequencyMinute)
	var seen []time.Time
	var kinds []schema.EventKind
	for {
		ev, ok := it.Next()
		if !ok {
			break
		}
		kinds = append(kinds, ev.Kind)
		if ev.Kind == schema.EventBar {
			seen = append(seen, ev.TradingTime)
			// subscribe B after the second bar of the day
			if len(seen) == 2 {
				s.SetUniverse([]string{"A", "B"})
			}
		}
	}

	// 2 bars from the A-only window, then the merged remainder: minutes
	// 3..8 of B's superset (A contributes 3 and 4)
	require.Len(t, seen, 8)
	for i := 1; i < len(seen); i++ {
		assert.True(t, seen[i].After(seen[i-1]), "no duplicates, no reordering")
	}
	assert.Equal(t, schema.EventBeforeTrading, kinds[0])
	assert.Equal(t, schema.EventAfterTrading, kinds[len(kinds)-1])
}

func TestTickMergeAcrossSymbols(t *testing.T) {
	src := feed.NewMemorySource()
	date := day(2024, 1, 2)
	src.SetCalendar([]time.Time{date})
	base := date.Add(9*time.Hour + 30*time.Minute)
	src.AddTick(model.Tick{Symbol: "B", DateTime: base.Add(2 * time.Second), Last: decimal.NewFromInt(20)})
	src.AddTick(model.Tick{Symbol: "A", DateTime: base.Add(1 * time.Second), Last: decimal.NewFromInt(10)})
	src.AddTick(model.Tick{Symbol: "A", DateTime: base.Add(3 * time.Second), Last: decimal.NewFromInt(11)})

	s := NewSource(src, schema.CNMarket())
	s.SetUniverse([]string{"A", "B"})

	var symbols []string
	for it := s.Events(date, date, schema.FrequencyTick); ; {
		ev, ok := it.Next()
		if !ok {
			break
		}
		if ev.Kind == schema.EventTick {
			require.NotNil(t, ev.Tick)
			symbols = append(symbols, ev.Tick.Symbol)
		}
	}
	assert.Equal(t, []string{"A", "B", "A"}, symbols)
}
