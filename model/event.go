package model

import "time"

// EventKind categorizes engine events.
type EventKind string

const (
	EventAction EventKind = "action"
	EventEffect EventKind = "effect"
	EventRevert EventKind = "revert"
	EventInfo   EventKind = "info"
)

// Event is one line for the external log sink.
type Event struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Kind    EventKind `json:"kind"`
	PID     int       `json:"pid,omitempty"`
	Message string    `json:"message"`
}
