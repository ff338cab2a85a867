package analytics

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"
	"gonum.org/v1/gonum/stat"

	"main/internal/journal"
)

const tradingDaysPerYear = 252

// Input carries the run outcome the report is computed from.
type Input struct {
	RunID        string
	StartingCash decimal.Decimal
	FinalValue   decimal.Decimal
	DailyReturns []float64
	TradingDays  int

	TradeCount     int
	RejectedOrders int
	Close          journal.ClosedTradeStats
}

// Report is the run summary computed once after the last settlement.
type Report struct {
	RunID string

	StartingCash decimal.Decimal
	FinalValue   decimal.Decimal

	TotalReturn          float64
	AnnualizedReturn     float64
	AnnualizedVolatility float64
	Sharpe               float64
	MaxDrawdown          float64

	TradingDays    int
	TradeCount     int
	RejectedOrders int
	ClosedTrades   int
	WinRate        float64
	RealizedPnL    decimal.Decimal
}

// Build computes the report. Risk-free rate is taken as zero; the Sharpe
// ratio is the annualized return over the annualized volatility.
func Build(in Input) Report {
	out := Report{
		RunID:          in.RunID,
		StartingCash:   in.StartingCash,
		FinalValue:     in.FinalValue,
		TradingDays:    in.TradingDays,
		TradeCount:     in.TradeCount,
		RejectedOrders: in.RejectedOrders,
		ClosedTrades:   in.Close.Closed,
		RealizedPnL:    in.Close.PnL,
	}
	if in.StartingCash.IsPositive() {
		out.TotalReturn, _ = in.FinalValue.Div(in.StartingCash).Sub(decimal.NewFromInt(1)).Float64()
	}
	if in.TradingDays > 0 {
		years := float64(in.TradingDays) / tradingDaysPerYear
		out.AnnualizedReturn = math.Pow(1+out.TotalReturn, 1/years) - 1
	}
	if len(in.DailyReturns) > 1 {
		out.AnnualizedVolatility = stat.StdDev(in.DailyReturns, nil) * math.Sqrt(tradingDaysPerYear)
	}
	if out.AnnualizedVolatility > 0 {
		out.Sharpe = out.AnnualizedReturn / out.AnnualizedVolatility
	}
	out.MaxDrawdown = maxDrawdown(in.DailyReturns)
	if in.Close.Closed > 0 {
		out.WinRate = float64(in.Close.Wins) / float64(in.Close.Closed)
	}
	return out
}

// maxDrawdown walks the equity curve implied by the daily returns and
// returns the largest peak-to-trough loss as a positive fraction.
func maxDrawdown(returns []float64) float64 {
	equity := 1.0
	peak := 1.0
	var worst float64
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := 1 - equity/peak; dd > worst {
			worst = dd
		}
	}
	return worst
}

// MeanDailyReturn is the arithmetic mean of the settled daily returns.
func MeanDailyReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	return stat.Mean(returns, nil)
}

// Log writes the report through the structured logger.
func (r Report) Log() {
	logs.Infof("run %s finished: days %d, trades %d, rejected %d", r.RunID, r.TradingDays, r.TradeCount, r.RejectedOrders)
	logs.Infof("value %s -> %s, total return %.4f, annualized %.4f", r.StartingCash, r.FinalValue, r.TotalReturn, r.AnnualizedReturn)
	logs.Infof("volatility %.4f, sharpe %.4f, max drawdown %.4f", r.AnnualizedVolatility, r.Sharpe, r.MaxDrawdown)
	logs.Infof("closed trades %d, win rate %.4f, realized pnl %s", r.ClosedTrades, r.WinRate, r.RealizedPnL)
}
