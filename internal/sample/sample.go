// Package sample turns a finished capture into the persisted artifacts of one
// dataset sample: two WAV files, a waveform thumbnail, and a database row.
package sample

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/chaz8081/voicecap/internal/audio"
	"github.com/chaz8081/voicecap/internal/metrics"
	"github.com/chaz8081/voicecap/internal/store"
	"github.com/chaz8081/voicecap/internal/transcribe"
	"github.com/chaz8081/voicecap/internal/waveform"
	"github.com/google/uuid"
)

// Output sample rates for the archive copy and the training copy.
const (
	ArchiveRate  = 44100
	TrainingRate = 24000
)

var (
	// ErrStoragePathNotSet is returned when the project has no storage path.
	ErrStoragePathNotSet = errors.New("sample: storage path is not set")
	// ErrSaveFailed wraps any failure after the preconditions passed.
	ErrSaveFailed = errors.New("sample: failed to save the sample")
)

// Storage is the subset of the project store the finalizer needs.
type Storage interface {
	GetProject(ctx context.Context, id string) (*store.Project, error)
	AddSample(ctx context.Context, in store.NewSample) (*store.Sample, error)
	SaveFile(path string, data []byte) error
}

// Input describes one finished take.
type Input struct {
	ProjectID       string
	Audio           *audio.Buffer
	GroundTruth     string
	Transcription   transcribe.Result
	RecordingLength int // whole seconds
}

// Finalizer writes samples to a project's storage path.
type Finalizer struct {
	store    Storage
	waveform waveform.Options
	metrics  *metrics.Metrics
	log      *slog.Logger
	newID    func() string
}

// NewFinalizer returns a Finalizer. A nil logger uses slog.Default.
func NewFinalizer(s Storage, opts waveform.Options, m *metrics.Metrics, log *slog.Logger) *Finalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Finalizer{store: s, waveform: opts, metrics: m, log: log, newID: uuid.NewString}
}

// Finalize persists in. Steps run strictly in order and files written
// before a failing step are left on disk.
func (f *Finalizer) Finalize(ctx context.Context, in Input) (*store.Sample, error) {
	if in.Audio == nil || in.Audio.Len() == 0 {
		return nil, audio.ErrEmptyAudio
	}
	project, err := f.store.GetProject(ctx, in.ProjectID)
	if err != nil {
		f.metrics.ObserveSaveFailure("project")
		return nil, fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	dir := strings.TrimSpace(project.StoragePath)
	if dir == "" {
		return nil, ErrStoragePathNotSet
	}

	id := f.newID()
	wavPath := filepath.Join(dir, id+".wav")
	wav24Path := filepath.Join(dir, id+"-24.wav")
	jpgPath := filepath.Join(dir, id+".jpg")

	size44, err := f.writeWAV(in.Audio, ArchiveRate, wavPath)
	if err != nil {
		return nil, f.fail("wav44", err)
	}
	size24, err := f.writeWAV(in.Audio, TrainingRate, wav24Path)
	if err != nil {
		return nil, f.fail("wav24", err)
	}

	img, err := waveform.Render(in.Audio.Mono(), f.waveform)
	if err != nil {
		return nil, f.fail("waveform", err)
	}
	if err := f.store.SaveFile(jpgPath, img); err != nil {
		return nil, f.fail("waveform", err)
	}

	total := size44 + size24
	smp, err := f.store.AddSample(ctx, store.NewSample{
		ID:              id,
		ProjectID:       project.ID,
		Match:           in.Transcription.Match,
		FilePath:        wavPath,
		FilePath24:      wav24Path,
		RecordingLength: in.RecordingLength,
		SizeBytes:       total,
		TextSaid:        in.Transcription.Text,
		GroundTruth:     in.GroundTruth,
		WaveformPath:    jpgPath,
	})
	if err != nil {
		return nil, f.fail("database", err)
	}

	f.metrics.ObserveSave(total)
	f.log.Info("sample saved",
		slog.String("id", id),
		slog.String("project", project.ID),
		slog.Int64("size_bytes", total),
		slog.Bool("match", in.Transcription.Match),
	)
	return smp, nil
}

func (f *Finalizer) writeWAV(buf *audio.Buffer, rate int, path string) (int64, error) {
	start := time.Now()
	resampled, err := audio.Resample(buf, rate)
	if err != nil {
		return 0, fmt.Errorf("resample to %d Hz: %w", rate, err)
	}
	f.metrics.ObserveResample(strconv.Itoa(rate), time.Since(start))

	data, err := audio.EncodeWAV(resampled)
	if err != nil {
		return 0, fmt.Errorf("encode %d Hz wav: %w", rate, err)
	}
	if err := f.store.SaveFile(path, data); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

func (f *Finalizer) fail(stage string, err error) error {
	f.metrics.ObserveSaveFailure(stage)
	f.log.Error("sample save failed", slog.String("stage", stage), slog.Any("error", err))
	return fmt.Errorf("%w: %s: %w", ErrSaveFailed, stage, err)
}
