package ui

import (
	"github.com/chaz8081/voicecap/internal/store"
	"github.com/chaz8081/voicecap/internal/studio"
)

// StudioEventMsg wraps one event from the studio.
type StudioEventMsg struct {
	Event studio.Event
}

// EventsClosedMsg is sent when the studio event channel closes.
type EventsClosedMsg struct{}

// ActionDoneMsg reports the outcome of a key-triggered action.
type ActionDoneMsg struct {
	Action string
	Err    error
	Sample *store.Sample
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}
