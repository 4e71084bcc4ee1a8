package supervisor

import (
	"time"

	"github.com/google/uuid"
)

// EventKind classifies a lifecycle transition.
type EventKind string

const (
	EventStarted     EventKind = "started"
	EventSpawnFailed EventKind = "spawn_failed"
	EventStopped     EventKind = "stopped" // exited within the grace window
	EventKilled      EventKind = "killed"  // forced after the grace window
	EventExited      EventKind = "exited"  // ended without a stop request
)

// Event describes one lifecycle transition of a service.
type Event struct {
	ID          string    `json:"id"`
	Service     string    `json:"service"`
	Kind        EventKind `json:"kind"`
	PID         int       `json:"pid,omitempty"`
	ExitCode    *int      `json:"exit_code,omitempty"`
	StopSeconds float64   `json:"stop_seconds,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	At          time.Time `json:"at"`
}

func newEvent(service string, kind EventKind, at time.Time) Event {
	return Event{
		ID:      uuid.NewString(),
		Service: service,
		Kind:    kind,
		At:      at,
	}
}

// Observer receives lifecycle events. Observe is called synchronously from
// lifecycle operations and from process exit watchers, outside any record
// lock, so implementations must return quickly.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }
