package domain

import "time"

type EventType string

const (
	EventRunStarted      EventType = "run_started"
	EventAwaitingBrowser EventType = "awaiting_browser"
	EventAcquired        EventType = "acquired"
	EventTriggered       EventType = "triggered"
	EventCompleted       EventType = "completed"
	EventFailed          EventType = "failed"
	EventSuperseded      EventType = "superseded"
	EventUnrecognized    EventType = "unrecognized"
)

// Event is the only way background work talks to a front end.
type Event struct {
	Type    EventType `json:"type"`
	RunID   string    `json:"run_id,omitempty"`
	Message string    `json:"message"`
	Files   []string  `json:"files,omitempty"`
	At      time.Time `json:"at"`
}

// Terminal reports whether the event closes out its run.
func (e Event) Terminal() bool {
	switch e.Type {
	case EventCompleted, EventFailed, EventSuperseded:
		return true
	}
	return false
}
