package journal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"main/internal/errors"
	"main/internal/model"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func trade(id uint64, effect model.PositionEffect) *model.Trade {
	return &model.Trade{
		ID:       id,
		Symbol:   "600000",
		DateTime: time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC),
		Side:     model.SideBuy,
		Effect:   effect,
		Price:    dec("10"),
		Quantity: dec("100"),
	}
}

func TestCloseStats(t *testing.T) {
	j := New("run-1", nil)

	j.RecordTrade(trade(1, model.EffectOpen), decimal.Zero)
	j.RecordTrade(trade(2, model.EffectClose), dec("150"))
	j.RecordTrade(trade(3, model.EffectClose), dec("-50"))
	j.RecordTrade(trade(4, model.EffectCloseToday), dec("30"))

	stats := j.CloseStats()
	assert.Equal(t, 3, stats.Closed)
	assert.Equal(t, 2, stats.Wins)
	assert.True(t, stats.PnL.Equal(dec("130")), "pnl %s", stats.PnL)
	assert.Equal(t, 4, j.TradeCount())
}

func TestRejectedCount(t *testing.T) {
	j := New("run-1", nil)

	filled := model.NewOrder(1, "600000", model.SideBuy, model.EffectOpen, model.OrderKindMarket, decimal.Zero, dec("100"), time.Time{})
	rejected := model.NewOrder(2, "600000", model.SideBuy, model.EffectOpen, model.OrderKindMarket, decimal.Zero, dec("100"), time.Time{})
	_ = rejected.Reject("cash insufficient")

	j.ArchiveOrder(filled)
	j.ArchiveOrder(rejected)

	assert.Equal(t, 1, j.RejectedCount())
	assert.Len(t, j.Orders(), 2)
}

type failingSink struct{ calls int }

func (s *failingSink) SaveOrder(string, *model.Order) error { s.calls++; return errors.New("down") }
func (s *failingSink) SaveTrade(string, TradeRecord) error  { s.calls++; return errors.New("down") }

func TestSinkFailureIsNonFatal(t *testing.T) {
	sink := &failingSink{}
	j := New("run-1", sink)

	j.RecordTrade(trade(1, model.EffectOpen), decimal.Zero)
	j.ArchiveOrder(model.NewOrder(1, "600000", model.SideBuy, model.EffectOpen, model.OrderKindMarket, decimal.Zero, dec("100"), time.Time{}))

	assert.Equal(t, 2, sink.calls)
	assert.Equal(t, 1, j.TradeCount())
	assert.Len(t, j.Orders(), 1)
}
