package account

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"main/internal/errors"
	"main/internal/model"
)

// Decimals are checkpointed as strings so the blob layout does not depend
// on the decimal library's internal representation.

type positionState struct {
	Symbol           string `msgpack:"symbol"`
	Direction        uint8  `msgpack:"direction"`
	Quantity         string `msgpack:"quantity"`
	OldQuantity      string `msgpack:"oldQuantity"`
	FrozenQuantity   string `msgpack:"frozenQuantity"`
	AvgPrice         string `msgpack:"avgPrice"`
	LastPrice        string `msgpack:"lastPrice"`
	PrevClose        string `msgpack:"prevClose"`
	TransactionCost  string `msgpack:"transactionCost"`
	DayStartQuantity string `msgpack:"dayStartQuantity"`
	NetTodayQuantity string `msgpack:"netTodayQuantity"`
	NetTodayNotional string `msgpack:"netTodayNotional"`
}

type receivableState struct {
	Symbol      string    `msgpack:"symbol"`
	PayableDate time.Time `msgpack:"payableDate"`
	Amount      string    `msgpack:"amount"`
}

type accountState struct {
	TotalCash       string            `msgpack:"totalCash"`
	FrozenCash      string            `msgpack:"frozenCash"`
	TransactionCost string            `msgpack:"transactionCost"`
	Positions       []positionState   `msgpack:"positions"`
	Receivables     []receivableState `msgpack:"receivables"`
}

func (a *Account) PersistKey() string { return "account_" + a.kind.String() }

func (a *Account) PersistState() ([]byte, error) {
	s := accountState{
		TotalCash:       a.totalCash.String(),
		FrozenCash:      a.frozenCash.String(),
		TransactionCost: a.transactionCost.String(),
	}
	for _, key := range a.order {
		p := a.positions[key]
		s.Positions = append(s.Positions, positionState{
			Symbol:           p.Symbol,
			Direction:        uint8(p.Direction),
			Quantity:         p.Quantity.String(),
			OldQuantity:      p.OldQuantity.String(),
			FrozenQuantity:   p.FrozenQuantity.String(),
			AvgPrice:         p.AvgPrice.String(),
			LastPrice:        p.LastPrice.String(),
			PrevClose:        p.PrevClose.String(),
			TransactionCost:  p.TransactionCost.String(),
			DayStartQuantity: p.DayStartQuantity.String(),
			NetTodayQuantity: p.NetTodayQuantity.String(),
			NetTodayNotional: p.NetTodayNotional.String(),
		})
	}
	for _, r := range a.receivables {
		s.Receivables = append(s.Receivables, receivableState{
			Symbol:      r.Symbol,
			PayableDate: r.PayableDate,
			Amount:      r.Amount.String(),
		})
	}
	return msgpack.Marshal(s)
}

func (a *Account) RestoreState(data []byte) error {
	var s accountState
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return err
	}

	var err error
	if a.totalCash, err = parseDec(s.TotalCash); err != nil {
		return err
	}
	if a.frozenCash, err = parseDec(s.FrozenCash); err != nil {
		return err
	}
	if a.transactionCost, err = parseDec(s.TransactionCost); err != nil {
		return err
	}

	a.positions = make(map[positionKey]*Position, len(s.Positions))
	a.order = a.order[:0]
	a.receivables = a.receivables[:0]

	for _, ps := range s.Positions {
		pos, err := a.EnsurePosition(ps.Symbol, model.Direction(ps.Direction))
		if err != nil {
			return err
		}
		fields := []struct {
			dst *decimal.Decimal
			src string
		}{
			{&pos.Quantity, ps.Quantity},
			{&pos.OldQuantity, ps.OldQuantity},
			{&pos.FrozenQuantity, ps.FrozenQuantity},
			{&pos.AvgPrice, ps.AvgPrice},
			{&pos.LastPrice, ps.LastPrice},
			{&pos.PrevClose, ps.PrevClose},
			{&pos.TransactionCost, ps.TransactionCost},
			{&pos.DayStartQuantity, ps.DayStartQuantity},
			{&pos.NetTodayQuantity, ps.NetTodayQuantity},
			{&pos.NetTodayNotional, ps.NetTodayNotional},
		}
		for _, f := range fields {
			if *f.dst, err = parseDec(f.src); err != nil {
				return err
			}
		}
	}

	for _, rs := range s.Receivables {
		amount, err := parseDec(rs.Amount)
		if err != nil {
			return err
		}
		a.receivables = append(a.receivables, Receivable{
			Symbol:      rs.Symbol,
			PayableDate: rs.PayableDate,
			Amount:      amount,
		})
	}
	return nil
}

type portfolioState struct {
	StartingCash   string    `msgpack:"startingCash"`
	YesterdayValue string    `msgpack:"yesterdayValue"`
	DailyReturns   []float64 `msgpack:"dailyReturns"`
	TradingDays    int       `msgpack:"tradingDays"`
}

func (p *Portfolio) PersistKey() string { return "portfolio" }

func (p *Portfolio) PersistState() ([]byte, error) {
	return msgpack.Marshal(portfolioState{
		StartingCash:   p.startingCash.String(),
		YesterdayValue: p.yesterdayValue.String(),
		DailyReturns:   p.dailyReturns,
		TradingDays:    p.tradingDays,
	})
}

func (p *Portfolio) RestoreState(data []byte) error {
	var s portfolioState
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return err
	}
	var err error
	if p.startingCash, err = parseDec(s.StartingCash); err != nil {
		return err
	}
	if p.yesterdayValue, err = parseDec(s.YesterdayValue); err != nil {
		return err
	}
	p.dailyReturns = append(p.dailyReturns[:0], s.DailyReturns...)
	p.tradingDays = s.TradingDays
	return nil
}

func parseDec(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, errors.Wrapf(err, "parse checkpoint decimal %q", s)
	}
	return d, nil
}
