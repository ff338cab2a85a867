package broker

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"

	"main/internal/errors"
	"main/internal/model"
	"main/internal/schema"
)

type orderState struct {
	ID        uint64    `msgpack:"id"`
	Symbol    string    `msgpack:"symbol"`
	CreatedAt time.Time `msgpack:"createdAt"`
	Side      uint8     `msgpack:"side"`
	Direction uint8     `msgpack:"direction"`
	Effect    uint8     `msgpack:"effect"`
	Kind      uint8     `msgpack:"kind"`

	Price           string `msgpack:"price"`
	Quantity        string `msgpack:"quantity"`
	Filled          string `msgpack:"filled"`
	FrozenCash      string `msgpack:"frozenCash"`
	TransactionCost string `msgpack:"transactionCost"`
	AvgFillPrice    string `msgpack:"avgFillPrice"`

	Status uint8  `msgpack:"status"`
	Reason string `msgpack:"reason"`

	AccountKind uint8 `msgpack:"accountKind"`
}

type brokerState struct {
	OrderSeq    uint64       `msgpack:"orderSeq"`
	CurrentDate time.Time    `msgpack:"currentDate"`
	Open        []orderState `msgpack:"open"`
	Delayed     []orderState `msgpack:"delayed"`
}

func (b *Broker) PersistKey() string { return "broker" }

func (b *Broker) PersistState() ([]byte, error) {
	s := brokerState{
		OrderSeq:    b.orderSeq,
		CurrentDate: b.currentDate,
	}
	for _, entry := range b.open {
		s.Open = append(s.Open, encodeEntry(entry))
	}
	for _, entry := range b.delayed {
		s.Delayed = append(s.Delayed, encodeEntry(entry))
	}
	return msgpack.Marshal(s)
}

func (b *Broker) RestoreState(data []byte) error {
	var s brokerState
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return err
	}
	b.orderSeq = s.OrderSeq
	b.currentDate = s.CurrentDate
	b.barSeen = false
	b.lastTicks = make(map[string]*model.Tick)
	b.open = nil
	b.delayed = nil

	for _, os := range s.Open {
		entry, err := b.decodeEntry(os)
		if err != nil {
			return err
		}
		b.open = append(b.open, entry)
	}
	for _, os := range s.Delayed {
		entry, err := b.decodeEntry(os)
		if err != nil {
			return err
		}
		b.delayed = append(b.delayed, entry)
	}
	return nil
}

func encodeEntry(entry *bookEntry) orderState {
	o := entry.order
	return orderState{
		ID:              o.ID,
		Symbol:          o.Symbol,
		CreatedAt:       o.CreatedAt,
		Side:            uint8(o.Side),
		Direction:       uint8(o.Direction),
		Effect:          uint8(o.Effect),
		Kind:            uint8(o.Kind),
		Price:           o.Price.String(),
		Quantity:        o.Quantity.String(),
		Filled:          o.Filled.String(),
		FrozenCash:      o.FrozenCash.String(),
		TransactionCost: o.TransactionCost.String(),
		AvgFillPrice:    o.AvgFillPrice.String(),
		Status:          uint8(o.Status),
		Reason:          o.Reason,
		AccountKind:     uint8(entry.account.Kind()),
	}
}

func (b *Broker) decodeEntry(s orderState) (*bookEntry, error) {
	acc, err := b.portfolio.AccountFor(schema.InstrumentKind(s.AccountKind))
	if err != nil {
		return nil, errors.Wrapf(err, "restore order %d", s.ID)
	}

	o := &model.Order{
		ID:        s.ID,
		Symbol:    s.Symbol,
		CreatedAt: s.CreatedAt,
		Side:      model.Side(s.Side),
		Direction: model.Direction(s.Direction),
		Effect:    model.PositionEffect(s.Effect),
		Kind:      model.OrderKind(s.Kind),
		Status:    model.OrderStatus(s.Status),
		Reason:    s.Reason,
	}
	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&o.Price, s.Price},
		{&o.Quantity, s.Quantity},
		{&o.Filled, s.Filled},
		{&o.FrozenCash, s.FrozenCash},
		{&o.TransactionCost, s.TransactionCost},
		{&o.AvgFillPrice, s.AvgFillPrice},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, errors.Wrapf(err, "restore order %d decimal %q", s.ID, f.src)
		}
		*f.dst = d
	}
	return &bookEntry{account: acc, order: o}, nil
}
