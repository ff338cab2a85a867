package broker

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/account"
	"main/internal/bus"
	"main/internal/feed"
	"main/internal/match"
	"main/internal/model"
	"main/internal/risk"
	"main/internal/schema"
)

var (
	day1 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	broker  *Broker
	account *account.Account
	source  *feed.MemorySource
	bus     *bus.Bus
}

func newFixture(t *testing.T, matchType match.Type) *fixture {
	return newFixtureOpts(t, matchType, schema.FrequencyDaily, risk.Config{})
}

func newFixtureOpts(t *testing.T, matchType match.Type, freq schema.Frequency, riskCfg risk.Config) *fixture {
	t.Helper()

	registry := schema.NewRegistry()
	_, err := registry.Add(schema.Instrument{Symbol: "600000", Kind: schema.InstrumentStock})
	require.NoError(t, err)

	source := feed.NewMemorySource()
	source.AddBar(schema.FrequencyDaily, model.Bar{
		Symbol:    "600000",
		DateTime:  day1,
		Open:      dec("10.1"),
		High:      dec("10.6"),
		Low:       dec("10"),
		Close:     dec("10.5"),
		Volume:    dec("1000000"),
		PrevClose: dec("10"),
		LimitUp:   dec("11"),
		LimitDown: dec("9"),
	})

	acc := account.NewAccount(account.Config{
		Kind:         schema.InstrumentStock,
		StartingCash: dec("100000"),
	}, registry, source)
	portfolio := account.NewPortfolio([]*account.Account{acc})

	commission := match.StockCommission{}
	engine := match.NewEngine(match.Config{
		Type:      matchType,
		Frequency: freq,
	}, source, registry, nil, commission, nil)

	eventBus := bus.New()
	br := New(eventBus, engine, risk.NewEngine(riskCfg), portfolio, registry, source, Options{
		MatchType:  matchType,
		Frequency:  freq,
		Profile:    schema.CNMarket(),
		Commission: commission,
	})
	return &fixture{broker: br, account: acc, source: source, bus: eventBus}
}

func TestSubmitBuyFillsOnBar(t *testing.T) {
	f := newFixture(t, match.TypeCurrentBarClose)
	f.broker.OnDayOpen(day1)

	o := f.broker.NewOrder("600000", model.SideBuy, model.EffectOpen, model.OrderKindLimit, dec("10.6"), dec("100"))
	require.NoError(t, f.broker.SubmitOrder(o))
	assert.Equal(t, model.StatusOpen, o.Status)
	assert.True(t, f.account.FrozenCash().Equal(dec("1060")), "frozen %s", f.account.FrozenCash())

	require.NoError(t, f.broker.OnBar(day1))

	assert.Equal(t, model.StatusFilled, o.Status)
	assert.True(t, o.AvgFillPrice.Equal(dec("10.5")), "avg fill %s", o.AvgFillPrice)
	assert.True(t, f.account.FrozenCash().IsZero())
	assert.True(t, f.account.TotalCash().Equal(dec("98950")), "cash %s", f.account.TotalCash())

	pos, ok := f.account.Position("600000", model.DirectionLong)
	require.True(t, ok)
	assert.True(t, pos.Quantity.Equal(dec("100")))
	assert.Empty(t, f.broker.OpenOrders())
}

func TestSubmitAfterBarMatchesImmediately(t *testing.T) {
	f := newFixture(t, match.TypeCurrentBarClose)
	f.broker.OnDayOpen(day1)
	require.NoError(t, f.broker.OnBar(day1))

	o := f.broker.NewOrder("600000", model.SideBuy, model.EffectOpen, model.OrderKindLimit, dec("10.6"), dec("100"))
	require.NoError(t, f.broker.SubmitOrder(o))

	assert.Equal(t, model.StatusFilled, o.Status)
	assert.True(t, o.AvgFillPrice.Equal(dec("10.5")))
}

func TestSameDaySellRejectedUnderTPlusOne(t *testing.T) {
	f := newFixture(t, match.TypeCurrentBarClose)
	f.broker.OnDayOpen(day1)
	require.NoError(t, f.broker.OnBar(day1))

	buy := f.broker.NewOrder("600000", model.SideBuy, model.EffectOpen, model.OrderKindLimit, dec("10.6"), dec("100"))
	require.NoError(t, f.broker.SubmitOrder(buy))
	require.Equal(t, model.StatusFilled, buy.Status)

	sell := f.broker.NewOrder("600000", model.SideSell, model.EffectClose, model.OrderKindLimit, dec("10.5"), dec("100"))
	require.NoError(t, f.broker.SubmitOrder(sell))

	assert.Equal(t, model.StatusRejected, sell.Status)
	assert.Contains(t, sell.Reason, "closable")
	pos, ok := f.account.Position("600000", model.DirectionLong)
	require.True(t, ok)
	assert.True(t, pos.FrozenQuantity.IsZero())
}

func TestInsufficientCashRejected(t *testing.T) {
	f := newFixture(t, match.TypeCurrentBarClose)
	f.broker.OnDayOpen(day1)

	o := f.broker.NewOrder("600000", model.SideBuy, model.EffectOpen, model.OrderKindLimit, dec("10.6"), dec("100000"))
	require.NoError(t, f.broker.SubmitOrder(o))

	assert.Equal(t, model.StatusRejected, o.Status)
	assert.Contains(t, o.Reason, "cash insufficient")
	assert.True(t, f.account.FrozenCash().IsZero())
}

func TestCancelReleasesFrozenCash(t *testing.T) {
	f := newFixture(t, match.TypeCurrentBarClose)
	f.broker.OnDayOpen(day1)

	o := f.broker.NewOrder("600000", model.SideBuy, model.EffectOpen, model.OrderKindLimit, dec("10.6"), dec("100"))
	require.NoError(t, f.broker.SubmitOrder(o))
	require.True(t, f.account.FrozenCash().Equal(dec("1060")))

	require.NoError(t, f.broker.CancelOrder(o))

	assert.Equal(t, model.StatusCancelled, o.Status)
	assert.True(t, f.account.FrozenCash().IsZero())
	assert.True(t, f.account.Available().Equal(dec("100000")))
	assert.Empty(t, f.broker.OpenOrders())
}

func TestCancelTerminalOrderFails(t *testing.T) {
	f := newFixture(t, match.TypeCurrentBarClose)
	f.broker.OnDayOpen(day1)
	require.NoError(t, f.broker.OnBar(day1))

	o := f.broker.NewOrder("600000", model.SideBuy, model.EffectOpen, model.OrderKindLimit, dec("10.6"), dec("100"))
	require.NoError(t, f.broker.SubmitOrder(o))
	require.Equal(t, model.StatusFilled, o.Status)

	assert.Error(t, f.broker.CancelOrder(o))
}

func TestNextBarOpenDefersToNextDay(t *testing.T) {
	f := newFixture(t, match.TypeNextBarOpen)
	f.source.AddBar(schema.FrequencyDaily, model.Bar{
		Symbol:    "600000",
		DateTime:  day2,
		Open:      dec("10.2"),
		High:      dec("10.4"),
		Low:       dec("10.1"),
		Close:     dec("10.3"),
		Volume:    dec("1000000"),
		PrevClose: dec("10.5"),
	})

	f.broker.OnDayOpen(day1)
	require.NoError(t, f.broker.OnBar(day1))

	o := f.broker.NewOrder("600000", model.SideBuy, model.EffectOpen, model.OrderKindLimit, dec("10.6"), dec("100"))
	require.NoError(t, f.broker.SubmitOrder(o))
	assert.Equal(t, model.StatusOpen, o.Status)

	// the bar that admitted the order must not fill it
	require.NoError(t, f.broker.OnDayClose())
	assert.Equal(t, model.StatusOpen, o.Status)

	f.broker.OnDayOpen(day2)
	require.NoError(t, f.broker.OnBar(day2))

	assert.Equal(t, model.StatusFilled, o.Status)
	assert.True(t, o.AvgFillPrice.Equal(dec("10.2")), "avg fill %s", o.AvgFillPrice)
}

func TestNextBarUnmatchedRejectedAtClose(t *testing.T) {
	f := newFixture(t, match.TypeNextBarOpen)

	f.broker.OnDayOpen(day1)
	require.NoError(t, f.broker.OnBar(day1))

	o := f.broker.NewOrder("600000", model.SideBuy, model.EffectOpen, model.OrderKindLimit, dec("10.6"), dec("100"))
	require.NoError(t, f.broker.SubmitOrder(o))
	require.NoError(t, f.broker.OnDayClose())

	// no bar exists for day2, the reactivated order cannot match
	f.broker.OnDayOpen(day2)
	require.NoError(t, f.broker.OnBar(day2))
	require.NoError(t, f.broker.OnDayClose())

	assert.Equal(t, model.StatusRejected, o.Status)
	assert.Contains(t, o.Reason, "unmatched")
	assert.True(t, f.account.FrozenCash().IsZero())
}

// An unknown symbol must reject at submission even with the listing
// validator disabled; the admission context never carries a nil account.
func TestUnknownSymbolRejectedWithListingValidatorOff(t *testing.T) {
	off := false
	f := newFixtureOpts(t, match.TypeCurrentBarClose, schema.FrequencyDaily, risk.Config{ValidateListing: &off})
	f.broker.OnDayOpen(day1)

	o := f.broker.NewOrder("UNKNOWN", model.SideBuy, model.EffectOpen, model.OrderKindLimit, dec("10.6"), dec("100"))
	require.NoError(t, f.broker.SubmitOrder(o))

	assert.Equal(t, model.StatusRejected, o.Status)
	assert.Contains(t, o.Reason, "unknown")
	assert.True(t, f.account.FrozenCash().IsZero())
}

// At minute frequency a deferred order matches at the next minute bar's
// open, not the next trading day.
func TestNextBarOpenMinuteFillsNextMinute(t *testing.T) {
	f := newFixtureOpts(t, match.TypeNextBarOpen, schema.FrequencyMinute, risk.Config{})
	min1 := day1.Add(9*time.Hour + 31*time.Minute)
	min2 := day1.Add(9*time.Hour + 32*time.Minute)
	f.source.AddBar(schema.FrequencyMinute, model.Bar{
		Symbol: "600000", DateTime: min1,
		Open: dec("10"), High: dec("10.1"), Low: dec("9.9"), Close: dec("10.1"), Volume: dec("10000"),
	})
	f.source.AddBar(schema.FrequencyMinute, model.Bar{
		Symbol: "600000", DateTime: min2,
		Open: dec("10.2"), High: dec("10.3"), Low: dec("10.1"), Close: dec("10.3"), Volume: dec("10000"),
	})

	f.broker.OnDayOpen(day1)
	require.NoError(t, f.broker.OnBar(min1))

	o := f.broker.NewOrder("600000", model.SideBuy, model.EffectOpen, model.OrderKindLimit, dec("10.6"), dec("100"))
	require.NoError(t, f.broker.SubmitOrder(o))
	assert.Equal(t, model.StatusOpen, o.Status)

	require.NoError(t, f.broker.OnBar(min2))

	assert.Equal(t, model.StatusFilled, o.Status)
	assert.True(t, o.AvgFillPrice.Equal(dec("10.2")), "avg fill %s", o.AvgFillPrice)
}

func TestRoundLotTruncation(t *testing.T) {
	f := newFixture(t, match.TypeCurrentBarClose)
	f.broker.OnDayOpen(day1)

	// 1010 shares with a round lot of 100 is silently adjusted down to 1000
	o := f.broker.NewOrder("600000", model.SideBuy, model.EffectOpen, model.OrderKindLimit, dec("10.6"), dec("1010"))
	assert.True(t, o.Quantity.Equal(dec("1000")), "quantity %s", o.Quantity)

	below := f.broker.NewOrder("600000", model.SideBuy, model.EffectOpen, model.OrderKindLimit, dec("10.6"), dec("50"))
	require.NoError(t, f.broker.SubmitOrder(below))
	assert.Equal(t, model.StatusRejected, below.Status)
}

func TestTradeEventsPublished(t *testing.T) {
	f := newFixture(t, match.TypeCurrentBarClose)
	var kinds []schema.EventKind
	listen := func(kind schema.EventKind) {
		f.bus.Subscribe(kind, func(e bus.Event) error {
			kinds = append(kinds, e.Kind)
			return nil
		}, false)
	}
	listen(schema.EventOrderNew)
	listen(schema.EventTrade)

	f.broker.OnDayOpen(day1)
	require.NoError(t, f.broker.OnBar(day1))

	o := f.broker.NewOrder("600000", model.SideBuy, model.EffectOpen, model.OrderKindLimit, dec("10.6"), dec("100"))
	require.NoError(t, f.broker.SubmitOrder(o))

	assert.Equal(t, []schema.EventKind{schema.EventOrderNew, schema.EventTrade}, kinds)
}
