package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/chaz8081/voicecap/internal/capture"
	"github.com/chaz8081/voicecap/internal/store"
	"github.com/chaz8081/voicecap/internal/studio"
	"github.com/chaz8081/voicecap/internal/transcribe"
	"github.com/chaz8081/voicecap/internal/waveform"
)

type fakeController struct {
	mu     sync.Mutex
	calls  []string
	snap   studio.Snapshot
	err    error
	sample *store.Sample
	edited string
	events chan studio.Event
}

func newFakeController() *fakeController {
	return &fakeController{events: make(chan studio.Event, 4)}
}

func (f *fakeController) record(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeController) Record() error                     { return f.record("record") }
func (f *fakeController) Stop(context.Context) error        { return f.record("stop") }
func (f *fakeController) Skip(context.Context) error        { return f.record("skip") }
func (f *fakeController) FetchPrompt(context.Context) error { return f.record("prompt") }
func (f *fakeController) PlayPrompt(context.Context) error  { return f.record("play prompt") }
func (f *fakeController) PlayTake(context.Context) error    { return f.record("play take") }

func (f *fakeController) PlayWord(_ context.Context, word string) error {
	return f.record("play word " + word)
}
func (f *fakeController) Events() <-chan studio.Event       { return f.events }
func (f *fakeController) Snapshot() studio.Snapshot         { return f.snap }

func (f *fakeController) EditPrompt(text string) {
	f.edited = text
	f.snap.Prompt = text
}

func (f *fakeController) Next(context.Context) (*store.Sample, error) {
	if err := f.record("save"); err != nil {
		return nil, err
	}
	return f.sample, nil
}

func (f *fakeController) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press sends a key and runs the resulting command once.
func press(t *testing.T, m Model, msg tea.Msg) (Model, tea.Msg) {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		return m, nil
	}
	return m, cmd()
}

func TestModel_KeyActions(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{KeyRecord, "record"},
		{KeyStop, "stop"},
		{KeySkip, "skip"},
		{KeyRetryPrompt, "prompt"},
		{KeyPlayPrompt, "play prompt"},
		{KeyListen, "play take"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			ctrl := newFakeController()
			m := New(context.Background(), ctrl, "demo")
			m, msg := press(t, m, keyMsg(tt.key))
			if m.busy != tt.want {
				t.Errorf("busy = %q, want %q", m.busy, tt.want)
			}
			done, ok := msg.(ActionDoneMsg)
			if !ok {
				t.Fatalf("command returned %T, want ActionDoneMsg", msg)
			}
			if done.Action != tt.want {
				t.Errorf("Action = %q, want %q", done.Action, tt.want)
			}
			if got := ctrl.called(); len(got) != 1 || got[0] != tt.want {
				t.Errorf("calls = %v, want [%s]", got, tt.want)
			}
		})
	}
}

func TestModel_BusyIgnoresKeys(t *testing.T) {
	ctrl := newFakeController()
	m := New(context.Background(), ctrl, "demo")
	m.busy = "play prompt"

	next, cmd := m.Update(keyMsg(KeyRecord))
	if cmd != nil {
		t.Error("expected no command while busy")
	}
	if next.(Model).busy != "play prompt" {
		t.Error("busy action was replaced")
	}
}

func TestModel_StopWhileBusyRecording(t *testing.T) {
	ctrl := newFakeController()
	ctrl.snap.State = capture.Recording
	m := New(context.Background(), ctrl, "demo")
	m.busy = "prompt"

	m, msg := press(t, m, keyMsg(KeyStop))
	done, ok := msg.(ActionDoneMsg)
	if !ok || done.Action != "stop" {
		t.Fatalf("stop while busy returned %#v", msg)
	}
	if got := ctrl.called(); len(got) != 1 || got[0] != "stop" {
		t.Errorf("calls = %v, want [stop]", got)
	}

	// Other keys still wait for the running action.
	m.busy = "prompt"
	if _, cmd := m.Update(keyMsg(KeySkip)); cmd != nil {
		t.Error("skip ran while busy")
	}

	// Stop is gated like the rest when nothing is recording.
	ctrl.snap.State = capture.Idle
	m = New(context.Background(), ctrl, "demo")
	m.busy = "prompt"
	if _, cmd := m.Update(keyMsg(KeyStop)); cmd != nil {
		t.Error("stop ran while busy and idle")
	}
}

func TestModel_PlayMissedWord(t *testing.T) {
	ctrl := newFakeController()
	m := New(context.Background(), ctrl, "demo")
	if _, cmd := m.Update(keyMsg(KeyPlayWord)); cmd != nil {
		t.Fatal("play word without a diff should do nothing")
	}

	ctrl.snap = studio.Snapshot{
		State: capture.Stopped,
		Diff: []transcribe.Part{
			{Text: "the", Status: transcribe.Unchanged},
			{Text: "lazy dog", Status: transcribe.Removed},
			{Text: "hog", Status: transcribe.Added},
		},
	}
	m = New(context.Background(), ctrl, "demo")
	_, msg := press(t, m, keyMsg(KeyPlayWord))
	if done, ok := msg.(ActionDoneMsg); !ok || done.Action != "play word" {
		t.Fatalf("command returned %#v", msg)
	}
	if got := ctrl.called(); len(got) != 1 || got[0] != "play word lazy" {
		t.Errorf("calls = %v, want [play word lazy]", got)
	}
}

func TestModel_NextOnlyWhenStopped(t *testing.T) {
	ctrl := newFakeController()
	m := New(context.Background(), ctrl, "demo")

	if _, cmd := m.Update(keyMsg(KeyNext)); cmd != nil {
		t.Fatal("Next should be ignored while idle")
	}

	ctrl.snap.State = capture.Stopped
	ctrl.sample = &store.Sample{ID: "abc"}
	m = New(context.Background(), ctrl, "demo")
	m, msg := press(t, m, keyMsg(KeyNext))
	m, _ = press(t, m, msg)

	if m.saved != 1 {
		t.Errorf("saved = %d, want 1", m.saved)
	}
	if m.lastID != "abc" {
		t.Errorf("lastID = %q, want abc", m.lastID)
	}
	if m.busy != "" {
		t.Errorf("busy = %q after completion", m.busy)
	}
}

func TestModel_ActionErrors(t *testing.T) {
	tests := []struct {
		name      string
		action    string
		err       error
		want      string
		transient bool
	}{
		{"already recording", "record", capture.ErrSessionActive, "Already recording.", true},
		{"not recording", "stop", capture.ErrNotRecording, "Not recording.", true},
		{"prompt failure", "prompt", errors.New("boom"), "prompt: boom", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(context.Background(), newFakeController(), "demo")
			next, cmd := m.Update(ActionDoneMsg{Action: tt.action, Err: tt.err})
			m = next.(Model)
			if m.errorMessage != tt.want {
				t.Errorf("errorMessage = %q, want %q", m.errorMessage, tt.want)
			}
			if m.errorTransient != tt.transient {
				t.Errorf("errorTransient = %v, want %v", m.errorTransient, tt.transient)
			}
			if (cmd != nil) != tt.transient {
				t.Errorf("clear command present = %v, want %v", cmd != nil, tt.transient)
			}
		})
	}
}

func TestModel_ClearTransientError(t *testing.T) {
	m := New(context.Background(), newFakeController(), "demo")
	m.errorMessage = "oops"
	m.errorTransient = true
	next, _ := m.Update(ClearTransientErrorMsg{})
	if got := next.(Model).errorMessage; got != "" {
		t.Errorf("errorMessage = %q, want empty", got)
	}

	m.errorTransient = false
	next, _ = m.Update(ClearTransientErrorMsg{})
	if got := next.(Model).errorMessage; got != "oops" {
		t.Errorf("persistent error cleared: %q", got)
	}
}

func TestModel_EditPrompt(t *testing.T) {
	ctrl := newFakeController()
	ctrl.snap.Prompt = "hi"
	m := New(context.Background(), ctrl, "demo")

	m, _ = press(t, m, keyMsg(KeyEditPrompt))
	if !m.editing {
		t.Fatal("expected edit mode")
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyBackspace})
	m, _ = press(t, m, keyMsg("ey"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})
	m, _ = press(t, m, keyMsg("you"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.editing {
		t.Error("still editing after enter")
	}
	if ctrl.edited != "hey you" {
		t.Errorf("edited = %q, want %q", ctrl.edited, "hey you")
	}
	if m.snap.Prompt != "hey you" {
		t.Errorf("snapshot prompt = %q", m.snap.Prompt)
	}
}

func TestModel_EditPromptEscCancels(t *testing.T) {
	ctrl := newFakeController()
	ctrl.snap.Prompt = "keep"
	m := New(context.Background(), ctrl, "demo")

	m, _ = press(t, m, keyMsg(KeyEditPrompt))
	m, _ = press(t, m, keyMsg("xyz"))
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEsc})

	if m.editing {
		t.Error("still editing after esc")
	}
	if ctrl.edited != "" {
		t.Errorf("EditPrompt called with %q", ctrl.edited)
	}
}

func TestModel_StudioEventRefreshesSnapshot(t *testing.T) {
	ctrl := newFakeController()
	m := New(context.Background(), ctrl, "demo")
	ctrl.snap.State = capture.Recording
	ctrl.snap.Elapsed = 7

	next, cmd := m.Update(StudioEventMsg{Event: studio.Event{Kind: studio.EventTick, Elapsed: 7}})
	m = next.(Model)
	if m.snap.State != capture.Recording || m.snap.Elapsed != 7 {
		t.Errorf("snapshot not refreshed: %+v", m.snap)
	}
	if cmd == nil {
		t.Fatal("expected a command waiting for the next event")
	}

	ctrl.events <- studio.Event{Kind: studio.EventFrame}
	if _, ok := cmd().(StudioEventMsg); !ok {
		t.Error("wait command did not deliver the next event")
	}

	close(ctrl.events)
	if _, ok := cmd().(EventsClosedMsg); !ok {
		t.Error("closed channel should produce EventsClosedMsg")
	}
}

func TestModel_StudioErrorEventShown(t *testing.T) {
	m := New(context.Background(), newFakeController(), "demo")
	next, _ := m.Update(StudioEventMsg{Event: studio.Event{Kind: studio.EventError, Err: errors.New("mic gone")}})
	if got := next.(Model).errorMessage; got != "mic gone" {
		t.Errorf("errorMessage = %q", got)
	}
}

func TestModel_Quit(t *testing.T) {
	m := New(context.Background(), newFakeController(), "demo")
	_, cmd := m.Update(keyMsg(KeyQuit))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestModel_View(t *testing.T) {
	ctrl := newFakeController()
	ctrl.snap = studio.Snapshot{
		State:           capture.Stopped,
		Prompt:          "hello world",
		RecordingLength: 3,
		Transcription:   transcribe.Result{Text: "hello word"},
		Diff: []transcribe.Part{
			{Text: "hello", Status: transcribe.Unchanged},
			{Text: "world", Status: transcribe.Removed},
			{Text: "word", Status: transcribe.Added},
		},
	}
	m := New(context.Background(), ctrl, "demo")
	if got := m.View(); got != "Initializing..." {
		t.Errorf("View before size = %q", got)
	}

	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	view := next.(Model).View()
	for _, want := range []string{"VOICECAP", "hello world", "STOPPED", "Transcription:", "Recording Length: 3s"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_ViewTranscriptionStates(t *testing.T) {
	tests := []struct {
		name string
		res  transcribe.Result
		want string
	}{
		{"loading", transcribe.Result{Loading: true}, "Transcribing..."},
		{"failed", transcribe.Result{Failed: true, Text: transcribe.MsgFailed}, transcribe.MsgFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController()
			ctrl.snap = studio.Snapshot{State: capture.Stopped, Transcription: tt.res}
			m := New(context.Background(), ctrl, "demo")
			next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
			if view := next.(Model).View(); !strings.Contains(view, tt.want) {
				t.Errorf("view missing %q", tt.want)
			}
		})
	}
}

func TestRenderEnvelope(t *testing.T) {
	tests := []struct {
		name  string
		env   waveform.Envelope
		width int
		want  string
	}{
		{"empty", nil, 3, "   "},
		{"zero width", waveform.Envelope{{Min: -1, Max: 1}}, 0, ""},
		{"full scale", waveform.Envelope{{Min: -1, Max: 1}, {Min: 0, Max: 0}}, 2, "█ "},
		{"negative peak", waveform.Envelope{{Min: -0.5, Max: 0.1}}, 1, "▄"},
		{"stretched", waveform.Envelope{{Min: 0, Max: 1}}, 3, "███"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RenderEnvelope(tt.env, tt.width); got != tt.want {
				t.Errorf("RenderEnvelope = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderDiff(t *testing.T) {
	parts := []transcribe.Part{
		{Text: "the", Status: transcribe.Unchanged},
		{Text: "cat", Status: transcribe.Removed},
		{Text: "hat", Status: transcribe.Added},
	}
	got := RenderDiff(parts)
	for _, w := range []string{"the", "cat", "hat"} {
		if !strings.Contains(got, w) {
			t.Errorf("RenderDiff missing %q in %q", w, got)
		}
	}
}
