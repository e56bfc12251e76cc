package domain

import "time"

// EventLevel is the display severity of an engine or supervisor event.
type EventLevel string

const (
	LevelInfo    EventLevel = "info"
	LevelSuccess EventLevel = "success"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// Event is one user-visible report: a state transition, a rule
// satisfaction or an order outcome.
type Event struct {
	Time    time.Time      `json:"time"`
	Code    string         `json:"code,omitempty"`
	Level   EventLevel     `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// EventSink receives events and fills for external display. Implementations
// must not block.
type EventSink interface {
	HandleEvent(ev Event)
	HandleFill(fill Fill)
}
