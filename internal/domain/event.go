package domain

import "time"

type EventKind string

const (
	EventProgress EventKind = "progress"
	EventStatus   EventKind = "status"
	EventDone     EventKind = "done"
	EventError    EventKind = "error"
)

// Event is a single job notification. Only the fields that belong to Kind are set.
type Event struct {
	JobID string    `json:"job_id"`
	Kind  EventKind `json:"kind"`
	At    time.Time `json:"at"`

	// progress
	Percent int    `json:"percent,omitempty"`
	Speed   string `json:"speed,omitempty"`
	ETA     string `json:"eta,omitempty"`
	Size    string `json:"size,omitempty"`

	// status / error
	Message string `json:"message,omitempty"`

	// done
	Path string `json:"path,omitempty"`
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventError
}

// Notifier receives job events. Implementations must be safe for concurrent
// use; Notify is called from runner goroutines.
type Notifier interface {
	Notify(ev Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ev Event)

func (f NotifierFunc) Notify(ev Event) { f(ev) }

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

// NopNotifier discards every event.
var NopNotifier Notifier = nopNotifier{}
