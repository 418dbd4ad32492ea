// Package studio drives the capture page: it ties one recording session to
// the prompt generator, the transcription client, prompt playback, and the
// sample finalizer, and publishes state changes as events.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/chaz8081/voicecap/internal/audio"
	"github.com/chaz8081/voicecap/internal/capture"
	"github.com/chaz8081/voicecap/internal/sample"
	"github.com/chaz8081/voicecap/internal/store"
	"github.com/chaz8081/voicecap/internal/transcribe"
	"github.com/chaz8081/voicecap/internal/waveform"
)

// ErrNoPlayer is returned by playback calls when no output device is wired.
var ErrNoPlayer = errors.New("studio: no audio output configured")

// ErrNoPlayback is returned by PlayTake before the playback copy is ready.
var ErrNoPlayback = errors.New("studio: no recording to play")

// Transcriber converts a WAV recording to a compared transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte, groundTruth string) transcribe.Result
}

// Prompts supplies new prompts and tracks accepted and skipped ones.
type Prompts interface {
	Next(ctx context.Context) (string, error)
	Remember(prompt string)
	Skip(prompt string)
}

// Synthesizer reads text aloud.
type Synthesizer interface {
	Speak(ctx context.Context, text string) ([]byte, error)
}

// Finalizer persists a finished take.
type Finalizer interface {
	Finalize(ctx context.Context, in sample.Input) (*store.Sample, error)
}

// Player plays audio on an output device.
type Player interface {
	Play(ctx context.Context, buf *audio.Buffer) error
}

// Deps are the collaborators of a Studio. Speech and Player may be nil.
type Deps struct {
	Source      capture.Source
	Transcriber Transcriber
	Prompts     Prompts
	Speech      Synthesizer
	Finalizer   Finalizer
	Player      Player
	Logger      *slog.Logger

	// Capture tunes the live preview; OnFrame and OnTick are overwritten.
	Capture capture.Options
}

// Snapshot is a consistent copy of the capture page state.
type Snapshot struct {
	ProjectID     string
	State         capture.State
	Prompt        string
	PromptLoading bool
	PromptErr     error
	Elapsed       int
	Envelope      waveform.Envelope

	// Fields below describe the last stopped take.
	RecordingLength int
	Transcription   transcribe.Result
	Diff            []transcribe.Part
	WER             transcribe.WERResult
	PlaybackReady   bool
	Saving          bool
}

// Studio is the capture page controller for one project.
type Studio struct {
	projectID string
	deps      Deps
	session   *capture.Session
	log       *slog.Logger
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	mu            sync.Mutex
	gen           uint64 // bumped whenever the current take is discarded
	prompt        string
	promptLoading bool
	promptErr     error
	length        int
	result        transcribe.Result
	diff          []transcribe.Part
	wer           transcribe.WERResult
	playback      *audio.Buffer
	saving        bool
	pending       sync.WaitGroup // stop-time work of the current take
}

// New returns a Studio recording samples into projectID.
func New(projectID string, deps Deps) *Studio {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Studio{
		projectID: projectID,
		deps:      deps,
		log:       log,
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
	}
	opts := deps.Capture
	if opts.Logger == nil {
		opts.Logger = log
	}
	opts.OnFrame = func(f capture.Frame) { s.emitLossy(Event{Kind: EventFrame, Frame: f}) }
	opts.OnTick = func(sec int) { s.emitLossy(Event{Kind: EventTick, Elapsed: sec}) }
	s.session = capture.NewSession(deps.Source, opts)
	return s
}

// Events delivers state changes. Frame and tick events are dropped when the
// channel is full; other events wait for a reader or Close.
func (s *Studio) Events() <-chan Event {
	return s.events
}

func (s *Studio) emit(e Event) {
	select {
	case s.events <- e:
	case <-s.done:
	}
}

func (s *Studio) emitLossy(e Event) {
	select {
	case s.events <- e:
	default:
	}
}

// Snapshot returns the current page state.
func (s *Studio) Snapshot() Snapshot {
	state := s.session.State()
	snap := Snapshot{
		ProjectID: s.projectID,
		State:     state,
		Elapsed:   s.session.Elapsed(),
		Envelope:  s.session.Envelope(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Prompt = s.prompt
	snap.PromptLoading = s.promptLoading
	snap.PromptErr = s.promptErr
	snap.Saving = s.saving
	if state == capture.Stopped {
		snap.RecordingLength = s.length
		snap.Transcription = s.result
		snap.Diff = append([]transcribe.Part(nil), s.diff...)
		snap.WER = s.wer
		snap.PlaybackReady = s.playback != nil
	}
	return snap
}

// clearTakeLocked forgets the results of the current take. Caller holds s.mu.
func (s *Studio) clearTakeLocked() {
	s.gen++
	s.length = 0
	s.result = transcribe.Result{}
	s.diff = nil
	s.wer = transcribe.WERResult{}
	s.playback = nil
}

// Record starts a new take.
func (s *Studio) Record() error {
	if err := s.session.Start(); err != nil {
		return err
	}
	s.mu.Lock()
	s.clearTakeLocked()
	s.mu.Unlock()
	s.emit(Event{Kind: EventState, State: capture.Recording})
	return nil
}

// Stop ends the take and launches the playback re-encode and the
// transcription concurrently. It returns once both are launched.
func (s *Studio) Stop(ctx context.Context) error {
	buf, err := s.session.Stop()
	if errors.Is(err, capture.ErrNotRecording) {
		return err
	}
	s.emit(Event{Kind: EventState, State: capture.Stopped})
	if err != nil {
		return err
	}

	s.mu.Lock()
	gen := s.gen
	prompt := s.prompt
	s.length = int(buf.Seconds())
	s.result = transcribe.Pending()
	s.pending.Add(2)
	s.mu.Unlock()

	go s.preparePlayback(gen, buf)
	go s.transcribe(ctx, gen, buf, prompt)
	return nil
}

func (s *Studio) preparePlayback(gen uint64, buf *audio.Buffer) {
	defer s.pending.Done()
	out, err := audio.Resample(buf, sample.ArchiveRate)
	if err != nil {
		s.log.Warn("preparing playback copy", slog.Any("error", err))
		s.emit(Event{Kind: EventError, Err: fmt.Errorf("studio: playback copy: %w", err)})
		return
	}
	s.mu.Lock()
	current := s.gen == gen
	if current {
		s.playback = out
	}
	s.mu.Unlock()
	if current {
		s.emit(Event{Kind: EventPlaybackReady})
	}
}

func (s *Studio) transcribe(ctx context.Context, gen uint64, buf *audio.Buffer, prompt string) {
	defer s.pending.Done()
	var res transcribe.Result
	wav, err := audio.EncodeWAV(buf)
	if err != nil {
		res = transcribe.Result{Text: transcribe.MsgError, Failed: true, Err: err}
	} else {
		res = s.deps.Transcriber.Transcribe(ctx, wav, prompt)
	}

	s.mu.Lock()
	current := s.gen == gen
	if current {
		s.result = res
		s.diff = nil
		s.wer = transcribe.WERResult{}
		if !res.Failed {
			s.diff = transcribe.Diff(prompt, res.Text)
			s.wer = transcribe.ComputeWER(prompt, res.Text)
		}
	}
	s.mu.Unlock()
	if current {
		s.emit(Event{Kind: EventTranscribed, Result: res})
	}
}

// Wait blocks until the stop-time work of the current take has finished.
func (s *Studio) Wait() {
	s.pending.Wait()
}

// Next saves the stopped take, resets the session, and fetches a new prompt.
// Transcription still in flight is awaited first so the saved sample carries
// its result. On failure the take is kept so the user can retry.
func (s *Studio) Next(ctx context.Context) (*store.Sample, error) {
	buf := s.session.Audio()
	if buf == nil {
		return nil, audio.ErrEmptyAudio
	}
	s.pending.Wait()

	s.mu.Lock()
	in := sample.Input{
		ProjectID:       s.projectID,
		Audio:           buf,
		GroundTruth:     s.prompt,
		Transcription:   s.result,
		RecordingLength: s.length,
	}
	s.saving = true
	s.mu.Unlock()

	smp, err := s.deps.Finalizer.Finalize(ctx, in)

	s.mu.Lock()
	s.saving = false
	s.mu.Unlock()
	if err != nil {
		s.emit(Event{Kind: EventError, Err: err})
		return nil, err
	}

	s.session.Reset()
	s.mu.Lock()
	s.clearTakeLocked()
	s.mu.Unlock()
	s.deps.Prompts.Remember(in.GroundTruth)
	s.emit(Event{Kind: EventSaved, Sample: smp})

	_ = s.FetchPrompt(ctx)
	return smp, nil
}

// Skip discards the current take and prompt and fetches a new prompt.
func (s *Studio) Skip(ctx context.Context) error {
	s.session.Reset()
	s.mu.Lock()
	s.clearTakeLocked()
	skipped := s.prompt
	s.mu.Unlock()
	s.deps.Prompts.Skip(skipped)
	s.emit(Event{Kind: EventState, State: capture.Idle})
	return s.FetchPrompt(ctx)
}

// FetchPrompt replaces the prompt with a new one from the generator. On
// failure the prompt becomes the generator's fallback text, usually empty.
func (s *Studio) FetchPrompt(ctx context.Context) error {
	s.mu.Lock()
	s.promptLoading = true
	s.mu.Unlock()

	p, err := s.deps.Prompts.Next(ctx)

	s.mu.Lock()
	s.prompt = p
	s.promptLoading = false
	s.promptErr = err
	s.mu.Unlock()
	s.emit(Event{Kind: EventPrompt, Prompt: p, Err: err})
	return err
}

// EditPrompt replaces the prompt with text typed by the user.
func (s *Studio) EditPrompt(text string) {
	s.mu.Lock()
	s.prompt = text
	s.promptErr = nil
	s.mu.Unlock()
	s.emit(Event{Kind: EventPrompt, Prompt: text})
}

// PlayPrompt synthesizes the prompt and plays it. WAV and MP3 responses
// are supported.
func (s *Studio) PlayPrompt(ctx context.Context) error {
	s.mu.Lock()
	text := s.prompt
	s.mu.Unlock()
	if text == "" {
		return errors.New("studio: no prompt to play")
	}
	return s.speak(ctx, text)
}

// PlayWord reads a single word of the prompt aloud. Audio is cached per
// text by the synthesizer, apart from the whole prompt.
func (s *Studio) PlayWord(ctx context.Context, word string) error {
	word = strings.TrimSpace(word)
	if word == "" {
		return errors.New("studio: no word to play")
	}
	return s.speak(ctx, word)
}

func (s *Studio) speak(ctx context.Context, text string) error {
	if s.deps.Speech == nil {
		return errors.New("studio: no speech service configured")
	}
	if s.deps.Player == nil {
		return ErrNoPlayer
	}
	data, err := s.deps.Speech.Speak(ctx, text)
	if err != nil {
		return err
	}
	buf, err := audio.Decode(data)
	if err != nil {
		return fmt.Errorf("studio: prompt audio is neither WAV nor MP3: %w", err)
	}
	return s.deps.Player.Play(ctx, buf)
}

// PlayTake plays the 44.1 kHz copy of the stopped take.
func (s *Studio) PlayTake(ctx context.Context) error {
	if s.deps.Player == nil {
		return ErrNoPlayer
	}
	s.mu.Lock()
	buf := s.playback
	s.mu.Unlock()
	if buf == nil || s.session.State() != capture.Stopped {
		return ErrNoPlayback
	}
	return s.deps.Player.Play(ctx, buf)
}

// Close stops any recording and releases the session. Pending stop-time
// work is abandoned.
func (s *Studio) Close() error {
	err := s.session.Close()
	s.closeOnce.Do(func() { close(s.done) })
	return err
}
