package tapwatch

import "time"

// Status is a point-in-time summary of an Instance.
type Status struct {
	Running bool
	// StartTime is zero until the first successful Start.
	StartTime time.Time
	// Interface is the name the poll loop currently samples.
	Interface string
	LastError error
	// ConfigSource is the file the configuration came from, or "defaults".
	ConfigSource string
}

// ErrorHandler receives runtime errors on its own goroutine and must
// return promptly.
type ErrorHandler func(err error)

// EventHandler receives lifecycle and link events on its own goroutine.
type EventHandler func(event Event)

// Event is one notification passed to an EventHandler.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Message   string
}

// EventType says what an Event reports. Compare against the constants;
// the numeric values may change.
type EventType int

const (
	EventStarted EventType = iota
	EventStopped
	// EventRestarted follows a Restart that rebuilt the shell and reader.
	EventRestarted
	// EventConfigReloaded follows a reload applied without restarting.
	EventConfigReloaded
	// EventError carries the text of an error that polling survived.
	EventError
	// EventLinkChanged reports the watched interface appearing,
	// disappearing, or its link changing state.
	EventLinkChanged
)

var eventNames = [...]string{
	EventStarted:        "started",
	EventStopped:        "stopped",
	EventRestarted:      "restarted",
	EventConfigReloaded: "config_reloaded",
	EventError:          "error",
	EventLinkChanged:    "link_changed",
}

// String returns the snake_case name used in logs.
func (e EventType) String() string {
	if e < 0 || int(e) >= len(eventNames) {
		return "unknown"
	}
	return eventNames[e]
}
