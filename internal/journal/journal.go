package journal

import (
	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"main/internal/model"
)

// TradeRecord pairs a fill with the realized P&L it extracted.
type TradeRecord struct {
	Trade    *model.Trade
	Realized decimal.Decimal
}

// Sink receives archived records for durable storage. Journal works
// without one; in-memory records are always kept for the run report.
type Sink interface {
	SaveOrder(runID string, o *model.Order) error
	SaveTrade(runID string, r TradeRecord) error
}

// Journal archives terminal orders and executed trades of one run. A
// sink failure is logged and does not stop the run.
type Journal struct {
	runID string
	sink  Sink

	orders []*model.Order
	trades []TradeRecord
}

func New(runID string, sink Sink) *Journal {
	return &Journal{runID: runID, sink: sink}
}

// ArchiveOrder records an order that reached a terminal state.
func (j *Journal) ArchiveOrder(o *model.Order) {
	j.orders = append(j.orders, o)
	if j.sink == nil {
		return
	}
	if err := j.sink.SaveOrder(j.runID, o); err != nil {
		logs.Errorf("journal sink save order %d failed, err: %+v", o.ID, err)
	}
}

// RecordTrade records an executed fill with its realized P&L.
func (j *Journal) RecordTrade(t *model.Trade, realized decimal.Decimal) {
	j.trades = append(j.trades, TradeRecord{Trade: t, Realized: realized})
	if j.sink == nil {
		return
	}
	if err := j.sink.SaveTrade(j.runID, TradeRecord{Trade: t, Realized: realized}); err != nil {
		logs.Errorf("journal sink save trade %d failed, err: %+v", t.ID, err)
	}
}

// Orders returns the archived orders in archive order.
func (j *Journal) Orders() []*model.Order {
	return append([]*model.Order(nil), j.orders...)
}

// Trades returns the executed trades in execution order.
func (j *Journal) Trades() []TradeRecord {
	return append([]TradeRecord(nil), j.trades...)
}

// TradeCount returns the number of executed fills.
func (j *Journal) TradeCount() int { return len(j.trades) }

// RejectedCount returns the number of archived rejected orders.
func (j *Journal) RejectedCount() int {
	var n int
	for _, o := range j.orders {
		if o.Status == model.StatusRejected {
			n++
		}
	}
	return n
}

// ClosedTradeStats aggregates the realized outcomes of closing fills.
type ClosedTradeStats struct {
	Closed int
	Wins   int
	PnL    decimal.Decimal
}

// CloseStats summarizes realized P&L over the closing fills of the run.
func (j *Journal) CloseStats() ClosedTradeStats {
	var out ClosedTradeStats
	for _, r := range j.trades {
		if !r.Trade.Effect.IsClose() {
			continue
		}
		out.Closed++
		if r.Realized.IsPositive() {
			out.Wins++
		}
		out.PnL = out.PnL.Add(r.Realized)
	}
	return out
}
