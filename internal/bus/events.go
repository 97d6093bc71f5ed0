// Package bus is the in-process event bus of the decision loop. The runtime
// publishes cycle, response, plugin failure and emergency events; the
// dashboard and tests subscribe to them.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of event flowing through the bus.
type EventType string

const (
	// Loop events
	EventCycleComplete EventType = "cycle_complete"
	EventCycleError    EventType = "cycle_error"

	// Conversation events
	EventResponse EventType = "response"

	// Plugin events
	EventPluginFailure EventType = "plugin_failure"

	// Safety events
	EventEmergencyStop EventType = "emergency_stop"
	EventSafety        EventType = "safety"

	// Runtime lifecycle
	EventRuntimeStarted EventType = "runtime_started"
	EventRuntimeStopped EventType = "runtime_stopped"
)

// Event is a single event published on the bus. Fields that do not apply to
// an event type are left empty.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Cycle tracking
	CycleID    string `json:"cycle_id,omitempty"`
	CycleCount uint64 `json:"cycle_count,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`

	// Plugin context
	Component string `json:"component,omitempty"`
	Plugin    string `json:"plugin,omitempty"`
	Op        string `json:"op,omitempty"`

	// Response content
	Content  string   `json:"content,omitempty"`
	Affect   string   `json:"affect,omitempty"`
	Gestures []string `json:"gestures,omitempty"`

	Confidence float64        `json:"confidence,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// NewEvent creates an event with a fresh ID and the current UTC timestamp.
func NewEvent(eventType EventType) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Type:      eventType,
	}
}

// NewPluginFailureEvent describes a failed plugin call.
func NewPluginFailureEvent(component, plugin, op string, err error) Event {
	e := NewEvent(EventPluginFailure)
	e.Component = component
	e.Plugin = plugin
	e.Op = op
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// NewResponseEvent describes a dispatched conversation response.
func NewResponseEvent(cycleID, text, affect string, gestures []string) Event {
	e := NewEvent(EventResponse)
	e.CycleID = cycleID
	e.Content = text
	e.Affect = affect
	e.Gestures = gestures
	return e
}

// NewEmergencyStopEvent describes an emergency stop and its reason.
func NewEmergencyStopEvent(reason string, err error) Event {
	e := NewEvent(EventEmergencyStop)
	e.Content = reason
	if err != nil {
		e.Error = err.Error()
	}
	return e
}
