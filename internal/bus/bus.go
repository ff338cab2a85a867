package bus

import (
	"time"

	"main/internal/model"
	"main/internal/schema"
)

// Event is the unit passed through the in-memory bus. Only the fields
// relevant to the kind are populated.
type Event struct {
	Kind         schema.EventKind
	CalendarTime time.Time
	TradingTime  time.Time
	Tick         *model.Tick
	Order        *model.Order
	Trade        *model.Trade
}

// Listener handles one event. A non-nil error is fatal for the run and
// aborts the current dispatch.
type Listener func(Event) error

// Bus is a single-threaded publish/subscribe register. Listeners run
// synchronously in registration order, prepend listeners first. Publishes
// made from inside a listener are queued FIFO and drained after the
// current event completes; dispatch is never recursive.
type Bus struct {
	prepend map[schema.EventKind][]Listener
	append  map[schema.EventKind][]Listener

	queue       []Event
	dispatching bool
}

func New() *Bus {
	return &Bus{
		prepend: make(map[schema.EventKind][]Listener),
		append:  make(map[schema.EventKind][]Listener),
	}
}

// Subscribe registers a listener for an event kind. Prepend listeners run
// before append listeners, each group in registration order.
func (b *Bus) Subscribe(kind schema.EventKind, l Listener, prepend bool) {
	if l == nil {
		return
	}
	if prepend {
		b.prepend[kind] = append(b.prepend[kind], l)
		return
	}
	b.append[kind] = append(b.append[kind], l)
}

// Publish enqueues the event and, unless already inside a dispatch, drains
// the queue. The first listener error aborts dispatch, drops the remaining
// queued events and is returned to the caller; the bus stays usable.
func (b *Bus) Publish(e Event) error {
	b.queue = append(b.queue, e)
	if b.dispatching {
		return nil
	}

	b.dispatching = true
	defer func() { b.dispatching = false }()

	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue = b.queue[1:]
		if err := b.dispatch(next); err != nil {
			b.queue = b.queue[:0]
			return err
		}
	}
	return nil
}

func (b *Bus) dispatch(e Event) error {
	for _, l := range b.prepend[e.Kind] {
		if err := l(e); err != nil {
			return err
		}
	}
	for _, l := range b.append[e.Kind] {
		if err := l(e); err != nil {
			return err
		}
	}
	return nil
}
