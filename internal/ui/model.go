// Package ui is the terminal front-end of the capture page.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/chaz8081/voicecap/internal/capture"
	"github.com/chaz8081/voicecap/internal/store"
	"github.com/chaz8081/voicecap/internal/studio"
	"github.com/chaz8081/voicecap/internal/transcribe"
	"github.com/chaz8081/voicecap/internal/waveform"
)

// Controller is the capture page API the model drives. *studio.Studio
// implements it.
type Controller interface {
	Record() error
	Stop(ctx context.Context) error
	Next(ctx context.Context) (*store.Sample, error)
	Skip(ctx context.Context) error
	FetchPrompt(ctx context.Context) error
	EditPrompt(text string)
	PlayPrompt(ctx context.Context) error
	PlayWord(ctx context.Context, word string) error
	PlayTake(ctx context.Context) error
	Snapshot() studio.Snapshot
	Events() <-chan studio.Event
}

var _ Controller = (*studio.Studio)(nil)

// Model is the root bubbletea model for the capture page.
type Model struct {
	ctrl    Controller
	ctx     context.Context
	project string

	snap    studio.Snapshot
	busy    string // action in flight, if any
	saved   int
	lastID  string
	editing bool
	editBuf []rune

	width  int
	height int

	errorMessage   string
	errorTransient bool
	statusText     string
}

// New creates a Model for ctrl. project is shown in the header.
func New(ctx context.Context, ctrl Controller, project string) Model {
	return Model{
		ctrl:       ctrl,
		ctx:        ctx,
		project:    project,
		snap:       ctrl.Snapshot(),
		statusText: "Fetching prompt...",
	}
}

// Init starts listening for studio events and fetches the first prompt.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.ctrl.Events()),
		m.action("prompt", func() error { return m.ctrl.FetchPrompt(m.ctx) }),
	)
}

// waitForEvent reads the next studio event.
func waitForEvent(ch <-chan studio.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return EventsClosedMsg{}
		}
		return StudioEventMsg{Event: ev}
	}
}

// action runs fn off the update loop and reports its outcome.
func (m Model) action(name string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return ActionDoneMsg{Action: name, Err: fn()}
	}
}

func (m Model) nextCmd() tea.Cmd {
	return func() tea.Msg {
		smp, err := m.ctrl.Next(m.ctx)
		return ActionDoneMsg{Action: "save", Err: err, Sample: smp}
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		if m.editing {
			return m.handleEditKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case StudioEventMsg:
		m.snap = m.ctrl.Snapshot()
		if msg.Event.Kind == studio.EventError && msg.Event.Err != nil {
			m.errorMessage = msg.Event.Err.Error()
		}
		return m, waitForEvent(m.ctrl.Events())

	case EventsClosedMsg:
		return m, nil

	case ActionDoneMsg:
		m.busy = ""
		m.snap = m.ctrl.Snapshot()
		m.statusText = ""
		if msg.Err != nil {
			cmd := m.showError(msg.Action, msg.Err)
			return m, cmd
		}
		switch msg.Action {
		case "save":
			m.saved++
			m.statusText = "Sample saved"
			if msg.Sample != nil {
				m.lastID = msg.Sample.ID
				m.statusText = "Saved sample " + m.lastID
			}
		case "record":
			m.statusText = "Recording"
		}
		return m, nil

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

func (m *Model) showError(action string, err error) tea.Cmd {
	switch {
	case errors.Is(err, capture.ErrSessionActive):
		m.errorMessage = "Already recording."
	case errors.Is(err, capture.ErrNotRecording):
		m.errorMessage = "Not recording."
	default:
		m.errorMessage = fmt.Sprintf("%s: %v", action, err)
	}
	// Prompt failures stay visible until the next prompt arrives.
	if action == "prompt" {
		m.errorTransient = false
		return nil
	}
	m.errorTransient = true
	return clearTransientErrorCmd()
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == KeyQuit || key == KeyCtrlC {
		return m, tea.Quit
	}
	// Stopping a recording must not wait behind a slow prompt fetch or playback.
	if m.busy != "" && !(key == KeyStop && m.snap.State == capture.Recording) {
		return m, nil
	}

	switch key {
	case KeyRecord:
		m.errorMessage = ""
		return m.start("record", func() error { return m.ctrl.Record() })
	case KeyStop:
		return m.start("stop", func() error { return m.ctrl.Stop(m.ctx) })
	case KeyNext:
		if m.snap.State != capture.Stopped {
			return m, nil
		}
		m.busy = "save"
		m.statusText = "Saving sample..."
		return m, m.nextCmd()
	case KeySkip:
		m.statusText = "Fetching prompt..."
		return m.start("skip", func() error { return m.ctrl.Skip(m.ctx) })
	case KeyRetryPrompt:
		m.statusText = "Fetching prompt..."
		return m.start("prompt", func() error { return m.ctrl.FetchPrompt(m.ctx) })
	case KeyPlayPrompt:
		m.statusText = "Playing prompt..."
		return m.start("play prompt", func() error { return m.ctrl.PlayPrompt(m.ctx) })
	case KeyListen:
		m.statusText = "Playing take..."
		return m.start("play take", func() error { return m.ctrl.PlayTake(m.ctx) })
	case KeyPlayWord:
		word := missedWord(m.snap.Diff)
		if word == "" {
			return m, nil
		}
		m.statusText = "Playing " + word + "..."
		return m.start("play word", func() error { return m.ctrl.PlayWord(m.ctx, word) })
	case KeyEditPrompt:
		if m.snap.State == capture.Recording {
			return m, nil
		}
		m.editing = true
		m.editBuf = []rune(m.snap.Prompt)
		return m, nil
	}
	return m, nil
}

func (m Model) start(name string, fn func() error) (tea.Model, tea.Cmd) {
	m.busy = name
	return m, m.action(name, fn)
}

// handleEditKey edits the prompt in place. Enter saves, Esc cancels.
func (m Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEnter:
		m.editing = false
		text := strings.TrimSpace(string(m.editBuf))
		m.ctrl.EditPrompt(text)
		m.snap = m.ctrl.Snapshot()
		m.errorMessage = ""
		return m, nil
	case KeyEsc:
		m.editing = false
		return m, nil
	case KeyCtrlC:
		return m, tea.Quit
	case KeyBackspace:
		if len(m.editBuf) > 0 {
			m.editBuf = m.editBuf[:len(m.editBuf)-1]
		}
		return m, nil
	}
	switch msg.Type {
	case tea.KeySpace:
		m.editBuf = append(m.editBuf, ' ')
	case tea.KeyRunes:
		m.editBuf = append(m.editBuf, msg.Runes...)
	}
	return m, nil
}

// View renders the capture page.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	sections := []string{
		m.renderHeader(),
		m.renderPrompt(),
		WaveformStyle.Render(RenderEnvelope(m.snap.Envelope, m.width)),
		m.renderStatusBar(),
		DividerStyle.Render(strings.Repeat("─", m.width)),
	}
	if m.snap.State == capture.Stopped {
		sections = append(sections, m.renderTranscription())
	}
	if m.errorMessage != "" {
		sections = append(sections, ErrorStyle.Render(m.errorMessage))
	}
	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := TitleStyle.Render("VOICECAP")
	info := DimStyle.Render(fmt.Sprintf(" %s  saved this session: %d", m.project, m.saved))
	return title + info
}

func (m Model) renderPrompt() string {
	width := max(m.width-4, 10)
	if m.editing {
		return EditingPromptStyle.Width(width).Render(string(m.editBuf) + "▏")
	}
	text := m.snap.Prompt
	switch {
	case m.snap.PromptLoading:
		text = SpinnerStyle.Render("Generating prompt...")
	case text == "":
		text = DimStyle.Render("No prompt. Press t to retry or e to type one.")
	}
	return PromptStyle.Width(width).Render(text)
}

func (m Model) renderStatusBar() string {
	var dot string
	switch m.snap.State {
	case capture.Recording:
		dot = RecordingDotStyle.Render("● REC")
	case capture.Stopped:
		dot = StoppedDotStyle.Render("■ STOPPED")
	default:
		dot = IdleDotStyle.Render("○ IDLE")
	}
	timer := fmt.Sprintf("  %02d:%02d", m.snap.Elapsed/60, m.snap.Elapsed%60)
	var status string
	if m.statusText != "" {
		status = "  " + DimStyle.Render(m.statusText)
	}
	return dot + timer + status
}

func (m Model) renderTranscription() string {
	res := m.snap.Transcription
	var body string
	switch {
	case res.Loading:
		body = SpinnerStyle.Render("Transcribing...")
	case res.Failed:
		body = res.Text
	default:
		body = RenderDiff(m.snap.Diff) + "\n" +
			DimStyle.Render(fmt.Sprintf("Recording Length: %ds  WER: %.0f%%", m.snap.RecordingLength, m.snap.WER.WER*100))
		if m.snap.PlaybackReady {
			body += DimStyle.Render("  (l to listen)")
		}
	}
	box := MismatchBoxStyle
	if res.Match {
		box = MatchBoxStyle
	}
	return box.Width(max(m.width-4, 10)).Render("Transcription:\n" + body)
}

func (m Model) renderFooter() string {
	if m.editing {
		return FooterKeyStyle.Render("enter") + FooterDescStyle.Render(" save  ") +
			FooterKeyStyle.Render("esc") + FooterDescStyle.Render(" cancel")
	}
	keys := []struct{ key, desc string }{
		{KeyRecord, "record"},
		{KeyStop, "stop"},
		{KeyNext, "save+next"},
		{KeySkip, "skip"},
		{KeyPlayPrompt, "hear prompt"},
		{KeyListen, "listen"},
		{KeyPlayWord, "hear missed word"},
		{KeyRetryPrompt, "new prompt"},
		{KeyEditPrompt, "edit"},
		{KeyQuit, "quit"},
	}
	var parts []string
	for _, k := range keys {
		parts = append(parts, FooterKeyStyle.Render(k.key)+FooterDescStyle.Render(" "+k.desc))
	}
	return strings.Join(parts, "  ")
}

// missedWord returns the first prompt word the transcript got wrong.
func missedWord(parts []transcribe.Part) string {
	for _, p := range parts {
		if p.Status == transcribe.Removed {
			if words := strings.Fields(p.Text); len(words) > 0 {
				return words[0]
			}
		}
	}
	return ""
}

var levels = []rune(" ▁▂▃▄▅▆▇█")

// RenderEnvelope draws env as one block glyph per terminal column, scaled by
// the peak absolute amplitude of the columns it covers.
func RenderEnvelope(env waveform.Envelope, width int) string {
	if width <= 0 {
		return ""
	}
	out := make([]rune, width)
	for x := range out {
		out[x] = levels[0]
	}
	if len(env) == 0 {
		return string(out)
	}
	for x := 0; x < width; x++ {
		lo := x * len(env) / width
		hi := (x + 1) * len(env) / width
		if hi <= lo {
			hi = lo + 1
		}
		if lo >= len(env) {
			break
		}
		var peak float32
		for _, c := range env[lo:min(hi, len(env))] {
			peak = max(peak, abs32(c.Min), abs32(c.Max))
		}
		idx := int(peak*float32(len(levels)-1) + 0.5)
		out[x] = levels[min(idx, len(levels)-1)]
	}
	return string(out)
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// RenderDiff styles words that are missing from the transcript struck
// through and extra words in red.
func RenderDiff(parts []transcribe.Part) string {
	var out []string
	for _, p := range parts {
		switch p.Status {
		case transcribe.Added:
			out = append(out, AddedWordStyle.Render(p.Text))
		case transcribe.Removed:
			out = append(out, RemovedWordStyle.Render(p.Text))
		default:
			out = append(out, p.Text)
		}
	}
	return strings.Join(out, " ")
}
