package analytics

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"main/internal/journal"
)

func TestBuildFlatRun(t *testing.T) {
	report := Build(Input{
		RunID:        "r1",
		StartingCash: decimal.NewFromInt(1000000),
		FinalValue:   decimal.NewFromInt(1000000),
		DailyReturns: []float64{0, 0, 0},
		TradingDays:  3,
	})

	assert.Zero(t, report.TotalReturn)
	assert.Zero(t, report.AnnualizedReturn)
	assert.Zero(t, report.AnnualizedVolatility)
	assert.Zero(t, report.Sharpe)
	assert.Zero(t, report.MaxDrawdown)
	assert.Zero(t, report.WinRate)
}

func TestBuildReturnsAndDrawdown(t *testing.T) {
	report := Build(Input{
		RunID:        "r2",
		StartingCash: decimal.NewFromInt(100),
		FinalValue:   decimal.NewFromInt(110),
		DailyReturns: []float64{0.10, -0.20, 0.25},
		TradingDays:  3,
	})

	assert.InDelta(t, 0.10, report.TotalReturn, 1e-9)
	// peak 1.10 after day one, trough 0.88 after day two
	assert.InDelta(t, 0.20, report.MaxDrawdown, 1e-9)
	assert.Greater(t, report.AnnualizedVolatility, 0.0)

	years := 3.0 / 252
	assert.InDelta(t, math.Pow(1.10, 1/years)-1, report.AnnualizedReturn, 1e-9)
}

func TestBuildWinRate(t *testing.T) {
	report := Build(Input{
		StartingCash: decimal.NewFromInt(100),
		FinalValue:   decimal.NewFromInt(100),
		TradeCount:   5,
		Close: journal.ClosedTradeStats{
			Closed: 4,
			Wins:   3,
			PnL:    decimal.NewFromInt(120),
		},
	})

	assert.Equal(t, 4, report.ClosedTrades)
	assert.InDelta(t, 0.75, report.WinRate, 1e-9)
	assert.True(t, report.RealizedPnL.Equal(decimal.NewFromInt(120)))
}

func TestMeanDailyReturn(t *testing.T) {
	assert.Zero(t, MeanDailyReturn(nil))
	assert.InDelta(t, 0.02, MeanDailyReturn([]float64{0.01, 0.03}), 1e-12)
}
