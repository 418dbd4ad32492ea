package studio

import (
	"github.com/chaz8081/voicecap/internal/capture"
	"github.com/chaz8081/voicecap/internal/store"
	"github.com/chaz8081/voicecap/internal/transcribe"
)

// EventKind identifies what changed.
type EventKind int

const (
	EventState EventKind = iota
	EventFrame
	EventTick
	EventTranscribed
	EventPlaybackReady
	EventPrompt
	EventSaved
	EventError
)

// Event is one state change. Only the fields for its Kind are set.
type Event struct {
	Kind    EventKind
	State   capture.State
	Frame   capture.Frame
	Elapsed int
	Result  transcribe.Result
	Prompt  string
	Sample  *store.Sample
	Err     error
}
