package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/errors"
	"main/internal/schema"
)

func TestPrependRunsBeforeAppend(t *testing.T) {
	b := New()
	var order []string

	b.Subscribe(schema.EventBar, func(Event) error {
		order = append(order, "append-1")
		return nil
	}, false)
	b.Subscribe(schema.EventBar, func(Event) error {
		order = append(order, "prepend-1")
		return nil
	}, true)
	b.Subscribe(schema.EventBar, func(Event) error {
		order = append(order, "prepend-2")
		return nil
	}, true)

	require.NoError(t, b.Publish(Event{Kind: schema.EventBar}))
	assert.Equal(t, []string{"prepend-1", "prepend-2", "append-1"}, order)
}

func TestReentrantPublishIsDeferred(t *testing.T) {
	b := New()
	var order []string

	b.Subscribe(schema.EventBar, func(Event) error {
		order = append(order, "bar")
		// published from inside a listener: must run after the current
		// event's remaining listeners, not immediately
		return b.Publish(Event{Kind: schema.EventTrade})
	}, false)
	b.Subscribe(schema.EventBar, func(Event) error {
		order = append(order, "bar-late")
		return nil
	}, false)
	b.Subscribe(schema.EventTrade, func(Event) error {
		order = append(order, "trade")
		return nil
	}, false)

	require.NoError(t, b.Publish(Event{Kind: schema.EventBar}))
	assert.Equal(t, []string{"bar", "bar-late", "trade"}, order)
}

func TestListenerErrorAbortsDispatchOnly(t *testing.T) {
	b := New()
	boom := errors.New("listener fault")
	var calls int

	b.Subscribe(schema.EventBar, func(Event) error { return boom }, false)
	b.Subscribe(schema.EventBar, func(Event) error {
		calls++
		return nil
	}, false)

	err := b.Publish(Event{Kind: schema.EventBar})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, calls, "later listeners must not run after a fault")

	// bus remains usable for subsequent events
	b.Subscribe(schema.EventTrade, func(Event) error {
		calls++
		return nil
	}, false)
	require.NoError(t, b.Publish(Event{Kind: schema.EventTrade}))
	assert.Equal(t, 1, calls)
}
