// Package capture implements the recording session: a small state machine
// that owns the microphone stream, the elapsed-time ticker, and the live
// waveform preview.
package capture

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/voicecap/internal/audio"
	"github.com/chaz8081/voicecap/internal/metrics"
	"github.com/chaz8081/voicecap/internal/waveform"
)

var (
	// ErrSessionActive is returned by Start while a recording is running.
	ErrSessionActive = errors.New("capture: session already active")
	// ErrNotRecording is returned by Stop when nothing is being recorded.
	ErrNotRecording = errors.New("capture: not recording")
)

// State is the session lifecycle state.
type State int

const (
	Idle State = iota
	Recording
	Stopped
)

func (s State) String() string {
	switch s {
	case Recording:
		return "recording"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

// Source delivers interleaved float32 frames from an input device.
// audio.Microphone satisfies it.
type Source interface {
	Open(onData func([]float32)) (io.Closer, error)
	SampleRate() int
	Channels() int
}

// Frame is a live preview update.
type Frame struct {
	Elapsed  int // whole seconds since Start
	Envelope waveform.Envelope
}

// Options configures a Session. Zero values select defaults.
type Options struct {
	// PreviewInterval is the live waveform refresh period (default 1/30s).
	PreviewInterval time.Duration
	// PreviewWidth is the number of envelope columns in a preview (default 1000).
	PreviewWidth int
	// OnFrame receives every preview update. It runs on the preview goroutine.
	OnFrame func(Frame)
	// OnTick receives the elapsed seconds once per second.
	OnTick func(int)

	Metrics *metrics.Metrics
	Logger  *slog.Logger

	tickInterval time.Duration
}

// Session records one take at a time from a Source.
type Session struct {
	src  Source
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	state    State
	starting bool
	gen      uint64
	chunks   [][]float32
	frames   int
	mono     []float32 // running downmix of chunks, extended by append
	carry    []float32 // samples of a frame split across callbacks
	elapsed  int
	envelope waveform.Envelope
	recorded *audio.Buffer

	stream io.Closer
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewSession returns an Idle session reading from src.
func NewSession(src Source, opts Options) *Session {
	if opts.PreviewInterval <= 0 {
		opts.PreviewInterval = time.Second / 30
	}
	if opts.PreviewWidth <= 0 {
		opts.PreviewWidth = waveform.DefaultWidth
	}
	if opts.tickInterval <= 0 {
		opts.tickInterval = time.Second
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{src: src, opts: opts, log: log}
}

// Start opens the source and begins recording. Artifacts of a previous
// stopped take are discarded once the source is open. If the source fails
// to open, the session keeps its previous state and data.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.state == Recording || s.starting {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.starting = true
	s.gen++
	gen := s.gen
	s.mu.Unlock()

	stream, err := s.src.Open(func(samples []float32) { s.append(gen, samples) })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.starting = false
	if err != nil {
		return fmt.Errorf("capture: open source: %w", err)
	}

	s.chunks = nil
	s.frames = 0
	s.mono = nil
	s.carry = nil
	s.elapsed = 0
	s.envelope = nil
	s.recorded = nil
	s.stream = stream
	s.stop = make(chan struct{})
	s.state = Recording

	started := time.Now()
	s.wg.Add(2)
	go s.runTimer(s.stop, started)
	go s.runPreview(s.stop)

	s.opts.Metrics.ObserveRecording()
	s.log.Info("recording started",
		slog.Int("sample_rate", s.src.SampleRate()),
		slog.Int("channels", s.src.Channels()),
	)
	return nil
}

// append copies samples into the chunk list. Callbacks from an older stream
// generation or after Stop are dropped.
func (s *Session) append(gen uint64, samples []float32) {
	if len(samples) == 0 {
		return
	}
	chunk := make([]float32, len(samples))
	copy(chunk, samples)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.state != Recording {
		return
	}
	s.chunks = append(s.chunks, chunk)
	s.frames += len(chunk)
	s.mono, s.carry = downmix(s.mono, s.carry, chunk, s.src.Channels())
}

func (s *Session) runTimer(stop <-chan struct{}, started time.Time) {
	defer s.wg.Done()
	t := time.NewTicker(s.opts.tickInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-t.C:
			secs := int(now.Sub(started) / s.opts.tickInterval)
			s.mu.Lock()
			s.elapsed = secs
			s.mu.Unlock()
			if s.opts.OnTick != nil {
				s.opts.OnTick(secs)
			}
		}
	}
}

func (s *Session) runPreview(stop <-chan struct{}) {
	defer s.wg.Done()
	t := time.NewTicker(s.opts.PreviewInterval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			// mono only grows past its current length, so the prefix
			// can be read without the lock.
			s.mu.Lock()
			mono := s.mono[:len(s.mono):len(s.mono)]
			elapsed := s.elapsed
			s.mu.Unlock()

			env := waveform.Reduce(mono, s.opts.PreviewWidth)

			s.mu.Lock()
			if s.state == Recording {
				s.envelope = env
			}
			s.mu.Unlock()
			if s.opts.OnFrame != nil {
				s.opts.OnFrame(Frame{Elapsed: elapsed, Envelope: env})
			}
		}
	}
}

// downmix averages the complete frames of chunk onto mono. A partial frame
// at the end of chunk is returned as carry for the next call.
func downmix(mono, carry, chunk []float32, channels int) ([]float32, []float32) {
	if channels <= 0 {
		channels = 1
	}
	if len(carry) > 0 {
		chunk = append(carry, chunk...)
	}
	n := len(chunk) / channels * channels
	scale := 1 / float32(channels)
	for i := 0; i < n; i += channels {
		var sum float32
		for j := 0; j < channels; j++ {
			sum += chunk[i+j]
		}
		mono = append(mono, sum*scale)
	}
	if n < len(chunk) {
		return mono, append([]float32(nil), chunk[n:]...)
	}
	return mono, nil
}

// Stop ends the recording, waits for both periodic tasks to exit, and
// returns the captured audio. An empty capture leaves the session Stopped
// and returns audio.ErrEmptyAudio.
func (s *Session) Stop() (*audio.Buffer, error) {
	s.mu.Lock()
	if s.state != Recording {
		s.mu.Unlock()
		return nil, ErrNotRecording
	}
	s.state = Stopped
	stream, stop := s.stream, s.stop
	s.stream, s.stop = nil, nil
	s.mu.Unlock()

	var closeErr error
	if stream != nil {
		closeErr = stream.Close()
	}
	close(stop)
	s.wg.Wait()

	s.mu.Lock()
	interleaved := make([]float32, 0, s.frames)
	for _, c := range s.chunks {
		interleaved = append(interleaved, c...)
	}
	buf := audio.NewBufferInterleaved(interleaved, s.src.Channels(), s.src.SampleRate())
	s.recorded = buf
	s.envelope = waveform.Reduce(buf.Mono(), s.opts.PreviewWidth)
	s.mu.Unlock()

	if closeErr != nil {
		s.log.Warn("closing capture stream", slog.Any("error", closeErr))
	}
	s.log.Info("recording stopped",
		slog.Int("frames", buf.Len()),
		slog.Duration("duration", buf.Duration()),
	)
	if buf.Len() == 0 {
		return nil, audio.ErrEmptyAudio
	}
	return buf, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns the whole seconds counted by the timer for the current or
// last take.
func (s *Session) Elapsed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsed
}

// Envelope returns the latest preview envelope.
func (s *Session) Envelope() waveform.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(waveform.Envelope(nil), s.envelope...)
}

// Audio returns the buffer of the last stopped take, or nil.
func (s *Session) Audio() *audio.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Stopped {
		return nil
	}
	return s.recorded
}

// Reset discards any take and returns to Idle, stopping a running recording.
func (s *Session) Reset() {
	if s.State() == Recording {
		_, _ = s.Stop()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Idle
	s.chunks = nil
	s.frames = 0
	s.mono = nil
	s.carry = nil
	s.elapsed = 0
	s.envelope = nil
	s.recorded = nil
}

// Close stops any recording and releases the session.
func (s *Session) Close() error {
	s.Reset()
	return nil
}
