package schema

// SchemaVersion is the current snapshot/event schema version.
const SchemaVersion uint16 = 1

// EventKind defines the category of an event dispatched on the bus.
type EventKind uint16

const (
	EventUnknown EventKind = iota
	EventBeforeTrading
	EventOpenAuction
	EventBar
	EventTick
	EventAfterTrading
	EventSettlement
	EventOrderNew
	EventOrderRejected
	EventOrderCancelled
	EventTrade
)

func (k EventKind) String() string {
	switch k {
	case EventBeforeTrading:
		return "before_trading"
	case EventOpenAuction:
		return "open_auction"
	case EventBar:
		return "bar"
	case EventTick:
		return "tick"
	case EventAfterTrading:
		return "after_trading"
	case EventSettlement:
		return "settlement"
	case EventOrderNew:
		return "order_new"
	case EventOrderRejected:
		return "order_rejected"
	case EventOrderCancelled:
		return "order_cancelled"
	case EventTrade:
		return "trade"
	default:
		return "unknown"
	}
}

// Frequency is the replay granularity of a run.
type Frequency uint8

const (
	FrequencyUnknown Frequency = iota
	FrequencyDaily
	FrequencyMinute
	FrequencyTick
)

func (f Frequency) String() string {
	switch f {
	case FrequencyDaily:
		return "1d"
	case FrequencyMinute:
		return "1m"
	case FrequencyTick:
		return "tick"
	default:
		return "unknown"
	}
}

// ParseFrequency maps the config notation to a Frequency.
func ParseFrequency(s string) (Frequency, bool) {
	switch s {
	case "1d", "d", "daily":
		return FrequencyDaily, true
	case "1m", "m", "minute":
		return FrequencyMinute, true
	case "tick":
		return FrequencyTick, true
	default:
		return FrequencyUnknown, false
	}
}
