package events

import (
	"time"

	"github.com/GriffinCanCode/MixOS/backend/internal/shared/id"
)

// Type classifies an event.
type Type string

const (
	TypeLog       Type = "log"
	TypeLifecycle Type = "lifecycle"
	TypeProgress  Type = "progress"
)

// Origin names the stream an event came from.
type Origin string

const (
	OriginStdout Origin = "stdout"
	OriginStderr Origin = "stderr"
	OriginSystem Origin = "system"
)

// Event is an immutable notification delivered to observers.
type Event struct {
	ID            string    `json:"id"`
	Time          time.Time `json:"time"`
	Type          Type      `json:"type"`
	Origin        Origin    `json:"origin"`
	EnvironmentID string    `json:"environmentId,omitempty"`
	ComponentID   string    `json:"componentId,omitempty"`
	Line          string    `json:"line,omitempty"`
	Status        string    `json:"status,omitempty"`
	Progress      *int      `json:"progress,omitempty"`
}

func stamp(e Event) Event {
	if e.ID == "" {
		e.ID = id.NewEventID().String()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	return e
}

// Log builds a process output event.
func Log(environmentID string, origin Origin, line string) Event {
	return Event{
		Type:          TypeLog,
		Origin:        origin,
		EnvironmentID: environmentID,
		Line:          line,
	}
}

// Lifecycle builds a status transition event.
func Lifecycle(environmentID, status, line string) Event {
	return Event{
		Type:          TypeLifecycle,
		Origin:        OriginSystem,
		EnvironmentID: environmentID,
		Status:        status,
		Line:          line,
	}
}

// Progress builds an acquisition progress event.
func Progress(componentID, state string, progress int, line string) Event {
	p := progress
	return Event{
		Type:        TypeProgress,
		Origin:      OriginSystem,
		ComponentID: componentID,
		Status:      state,
		Progress:    &p,
		Line:        line,
	}
}

// Filter selects the events an observer receives. A nil filter accepts all.
type Filter func(Event) bool

// ForEnvironment accepts events of one environment plus progress events,
// which are not tied to any environment.
func ForEnvironment(environmentID string) Filter {
	return func(e Event) bool {
		return e.Type == TypeProgress || e.EnvironmentID == environmentID
	}
}
