package models

// EventKind enumerates the domain events the processing channels can emit.
type EventKind string

const (
	EventSessionHigh EventKind = "session_high"
	EventSessionLow  EventKind = "session_low"
	EventTrend       EventKind = "trend"
	EventSurge       EventKind = "surge"

	EventAggregateVolumeSurge EventKind = "aggregate_volume_surge"
	EventAggregateMove        EventKind = "aggregate_move"
	EventAggregateHighClose   EventKind = "aggregate_high_close"
	EventAggregateLowClose    EventKind = "aggregate_low_close"

	EventFMVDeviation      EventKind = "fmv_deviation"
	EventFMVHighConfidence EventKind = "fmv_high_confidence"
	EventFMVTrend          EventKind = "fmv_trend"
)

// Direction of a directional event.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Event is an immutable domain event emitted by a channel and forwarded to
// the downstream event processor. Kind-specific values live in Fields.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Ticker    string         `json:"ticker"`
	Price     float64        `json:"price"`
	Time      float64        `json:"time"`
	Label     string         `json:"label,omitempty"`
	Direction string         `json:"direction,omitempty"`
	Channel   string         `json:"channel,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Field returns a kind-specific field, nil when absent.
func (e *Event) Field(key string) any {
	if e.Fields == nil {
		return nil
	}
	return e.Fields[key]
}
