package journal

import (
	"time"

	"main/internal/model"
	"main/pkg/conn"
)

// OrderRow is the durable form of an archived order.
type OrderRow struct {
	ID        uint   `gorm:"primaryKey"`
	RunID     string `gorm:"index"`
	OrderID   uint64
	Symbol    string
	CreatedAt time.Time
	Side      string
	Direction string
	Effect    string
	Kind      string
	Price     string
	Quantity  string
	Filled    string
	AvgFill   string
	Cost      string
	Status    string
	Reason    string
}

func (OrderRow) TableName() string { return "backtest_orders" }

// TradeRow is the durable form of an executed fill.
type TradeRow struct {
	ID         uint   `gorm:"primaryKey"`
	RunID      string `gorm:"index"`
	TradeID    uint64
	OrderID    uint64
	Symbol     string
	DateTime   time.Time
	Side       string
	Direction  string
	Effect     string
	Price      string
	Quantity   string
	Commission string
	Tax        string
	Realized   string
}

func (TradeRow) TableName() string { return "backtest_trades" }

// PostgresSink persists journal records through the shared connection
// pool.
type PostgresSink struct {
	client *conn.Client
}

func NewPostgresSink(client *conn.Client) (*PostgresSink, error) {
	if err := client.DB().AutoMigrate(&OrderRow{}, &TradeRow{}); err != nil {
		return nil, err
	}
	return &PostgresSink{client: client}, nil
}

func (s *PostgresSink) SaveOrder(runID string, o *model.Order) error {
	row := OrderRow{
		RunID:     runID,
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		CreatedAt: o.CreatedAt,
		Side:      o.Side.String(),
		Direction: o.Direction.String(),
		Effect:    o.Effect.String(),
		Kind:      o.Kind.String(),
		Price:     o.Price.String(),
		Quantity:  o.Quantity.String(),
		Filled:    o.Filled.String(),
		AvgFill:   o.AvgFillPrice.String(),
		Cost:      o.TransactionCost.String(),
		Status:    o.Status.String(),
		Reason:    o.Reason,
	}
	return s.client.DB().Create(&row).Error
}

func (s *PostgresSink) SaveTrade(runID string, r TradeRecord) error {
	row := TradeRow{
		RunID:      runID,
		TradeID:    r.Trade.ID,
		OrderID:    r.Trade.OrderID,
		Symbol:     r.Trade.Symbol,
		DateTime:   r.Trade.DateTime,
		Side:       r.Trade.Side.String(),
		Direction:  r.Trade.Direction.String(),
		Effect:     r.Trade.Effect.String(),
		Price:      r.Trade.Price.String(),
		Quantity:   r.Trade.Quantity.String(),
		Commission: r.Trade.Commission.String(),
		Tax:        r.Trade.Tax.String(),
		Realized:   r.Realized.String(),
	}
	return s.client.DB().Create(&row).Error
}
