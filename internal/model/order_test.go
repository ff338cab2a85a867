package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/errors"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestOrder(qty string) *Order {
	return NewOrder(1, "000001.XSHE", SideBuy, EffectOpen, OrderKindMarket, decimal.Zero, d(qty), time.Now())
}

func TestOrderLifecycle(t *testing.T) {
	o := newTestOrder("1000")
	require.Equal(t, StatusPendingNew, o.Status)

	require.NoError(t, o.Activate())
	require.Equal(t, StatusOpen, o.Status)

	require.NoError(t, o.Fill(d("10"), d("400"), d("2")))
	assert.Equal(t, StatusOpen, o.Status)
	assert.True(t, o.Filled.Equal(d("400")))
	assert.True(t, o.Unfilled().Equal(d("600")))

	require.NoError(t, o.Fill(d("11"), d("600"), d("3")))
	assert.Equal(t, StatusFilled, o.Status)
	assert.True(t, o.Filled.Equal(o.Quantity))
	assert.True(t, o.TransactionCost.Equal(d("5")))
	// 400*10 + 600*11 = 10600 over 1000 shares
	assert.True(t, o.AvgFillPrice.Equal(d("10.6")), "avg fill price %s", o.AvgFillPrice)
}

func TestOrderFillMonotonic(t *testing.T) {
	o := newTestOrder("100")
	require.NoError(t, o.Activate())

	err := o.Fill(d("10"), d("150"), decimal.Zero)
	require.Error(t, err)
	assert.True(t, errors.IsInvariant(err))
	assert.True(t, o.Filled.IsZero(), "failed fill must not mutate")
}

func TestOrderTerminalImmutable(t *testing.T) {
	o := newTestOrder("100")
	require.NoError(t, o.Activate())
	require.NoError(t, o.Fill(d("10"), d("100"), decimal.Zero))
	require.True(t, o.IsTerminal())

	assert.True(t, errors.IsInvariant(o.Fill(d("10"), d("1"), decimal.Zero)))
	assert.True(t, errors.IsInvariant(o.Cancel("late")))
	assert.True(t, errors.IsInvariant(o.Reject("late")))
	assert.Equal(t, StatusFilled, o.Status)
}

func TestOrderRejectKeepsReason(t *testing.T) {
	o := newTestOrder("100")
	require.NoError(t, o.Reject("cash insufficient"))
	assert.Equal(t, StatusRejected, o.Status)
	assert.Equal(t, "cash insufficient", o.Reason)
}

func TestOrderDirectionFromSideEffect(t *testing.T) {
	buyOpen := NewOrder(1, "IF2412", SideBuy, EffectOpen, OrderKindLimit, d("3900"), d("1"), time.Now())
	sellOpen := NewOrder(2, "IF2412", SideSell, EffectOpen, OrderKindLimit, d("3900"), d("1"), time.Now())
	sellClose := NewOrder(3, "IF2412", SideSell, EffectClose, OrderKindLimit, d("3900"), d("1"), time.Now())
	buyClose := NewOrder(4, "IF2412", SideBuy, EffectClose, OrderKindLimit, d("3900"), d("1"), time.Now())

	assert.Equal(t, DirectionLong, buyOpen.Direction)
	assert.Equal(t, DirectionShort, sellOpen.Direction)
	assert.Equal(t, DirectionLong, sellClose.Direction)
	assert.Equal(t, DirectionShort, buyClose.Direction)
}
