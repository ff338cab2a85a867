package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one aggregated OHLCV record for an instrument over an interval.
// Settlement/OpenInterest are only populated for futures.
type Bar struct {
	Symbol         string
	DateTime       time.Time
	Open           decimal.Decimal
	High           decimal.Decimal
	Low            decimal.Decimal
	Close          decimal.Decimal
	Volume         decimal.Decimal
	Turnover       decimal.Decimal
	PrevClose      decimal.Decimal
	LimitUp        decimal.Decimal
	LimitDown      decimal.Decimal
	Settlement     decimal.Decimal
	PrevSettlement decimal.Decimal
	OpenInterest   decimal.Decimal
}

// Suspended reports whether the bar carries no tradable volume.
func (b *Bar) Suspended() bool {
	return b.Volume.IsZero()
}

// Tick is a single trade/quote update used by tick-frequency replay.
type Tick struct {
	Symbol   string
	DateTime time.Time
	Last     decimal.Decimal
	Bid      decimal.Decimal
	Ask      decimal.Decimal
	BidVol   decimal.Decimal
	AskVol   decimal.Decimal
	Volume   decimal.Decimal
}
