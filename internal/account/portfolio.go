package account

import (
	"time"

	"github.com/shopspring/decimal"

	"main/internal/errors"
	"main/internal/feed"
	"main/internal/model"
	"main/internal/schema"
)

var ErrNoAccountForKind = errors.New("no account configured for instrument kind")

// Portfolio aggregates one account per configured asset class and tracks
// run-level returns against the value recorded at the previous settlement.
type Portfolio struct {
	accounts map[schema.InstrumentKind]*Account
	kinds    []schema.InstrumentKind

	startingCash   decimal.Decimal
	yesterdayValue decimal.Decimal

	dailyReturns []float64
	tradingDays  int
}

func NewPortfolio(accounts []*Account) *Portfolio {
	p := &Portfolio{accounts: make(map[schema.InstrumentKind]*Account)}
	var starting decimal.Decimal
	for _, acc := range accounts {
		p.accounts[acc.Kind()] = acc
		p.kinds = append(p.kinds, acc.Kind())
		starting = starting.Add(acc.TotalCash())
	}
	p.startingCash = starting
	p.yesterdayValue = starting
	return p
}

// AccountFor resolves the owning account of an instrument kind. Funds
// trade on the stock account.
func (p *Portfolio) AccountFor(kind schema.InstrumentKind) (*Account, error) {
	lookup := kind
	if kind == schema.InstrumentFund {
		lookup = schema.InstrumentStock
	}
	acc, ok := p.accounts[lookup]
	if !ok {
		return nil, errors.Wrapf(ErrNoAccountForKind, "kind %s", kind)
	}
	return acc, nil
}

// Accounts returns the accounts in configuration order.
func (p *Portfolio) Accounts() []*Account {
	out := make([]*Account, 0, len(p.kinds))
	for _, kind := range p.kinds {
		out = append(out, p.accounts[kind])
	}
	return out
}

// TotalValue is the sum of all account equities.
func (p *Portfolio) TotalValue() decimal.Decimal {
	var out decimal.Decimal
	for _, kind := range p.kinds {
		out = out.Add(p.accounts[kind].TotalValue())
	}
	return out
}

// BeforeTrading runs the daily pre-open hook on every account and merges
// the split adjustments.
func (p *Portfolio) BeforeTrading(date time.Time) ([]SplitAdjustment, error) {
	var adjustments []SplitAdjustment
	for _, kind := range p.kinds {
		adj, err := p.accounts[kind].BeforeTrading(date)
		if err != nil {
			return nil, err
		}
		adjustments = append(adjustments, adj...)
	}
	return adjustments, nil
}

// Settle settles every account, records the daily return against the
// previous settled value and returns synthesized delisting trades.
func (p *Portfolio) Settle(date, nextDate time.Time) ([]*model.Trade, error) {
	var synthesized []*model.Trade
	for _, kind := range p.kinds {
		trades, err := p.accounts[kind].Settle(date, nextDate)
		if err != nil {
			return nil, err
		}
		synthesized = append(synthesized, trades...)
	}

	value := p.TotalValue()
	if p.yesterdayValue.IsPositive() {
		ret, _ := value.Div(p.yesterdayValue).Sub(decimal.NewFromInt(1)).Float64()
		p.dailyReturns = append(p.dailyReturns, ret)
	}
	p.yesterdayValue = value
	p.tradingDays++
	return synthesized, nil
}

// StartingCash returns the configured starting cash of the run.
func (p *Portfolio) StartingCash() decimal.Decimal { return p.startingCash }

// YesterdayValue returns the portfolio value recorded at the previous
// settlement.
func (p *Portfolio) YesterdayValue() decimal.Decimal { return p.yesterdayValue }

// DailyReturns returns the settled daily return series.
func (p *Portfolio) DailyReturns() []float64 {
	out := make([]float64, len(p.dailyReturns))
	copy(out, p.dailyReturns)
	return out
}

// TotalReturn is the cumulative return since the run started.
func (p *Portfolio) TotalReturn() float64 {
	if !p.startingCash.IsPositive() {
		return 0
	}
	ret, _ := p.TotalValue().Div(p.startingCash).Sub(decimal.NewFromInt(1)).Float64()
	return ret
}

// TradingDays returns the number of settled trading days.
func (p *Portfolio) TradingDays() int { return p.tradingDays }

// MarkPrices refreshes cached last prices of every position that has a
// bar at the given timestamp.
func (p *Portfolio) MarkPrices(data feed.Source, dt time.Time, freq schema.Frequency) {
	for _, kind := range p.kinds {
		for _, pos := range p.accounts[kind].Positions() {
			bar, err := data.Bar(pos.Symbol, dt, freq)
			if err != nil {
				continue
			}
			pos.MarkPrice(bar.Close)
		}
	}
}
