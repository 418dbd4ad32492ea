// Package metrics exposes Prometheus collectors for the capture pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for voicecap.
type Metrics struct {
	registry *prometheus.Registry

	SamplesSaved         prometheus.Counter
	SaveFailures         *prometheus.CounterVec
	SampleBytes          prometheus.Histogram
	Transcriptions       *prometheus.CounterVec
	TranscriptionLatency prometheus.Histogram
	ResampleDuration     *prometheus.HistogramVec
	PromptRequests       *prometheus.CounterVec
	Recordings           prometheus.Counter
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		SamplesSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "voicecap_samples_saved_total",
			Help: "Total number of samples persisted",
		}),
		SaveFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecap_sample_save_failures_total",
			Help: "Sample finalization failures by pipeline stage",
		}, []string{"stage"}),
		SampleBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecap_sample_size_bytes",
			Help:    "Combined size of both WAV files of a saved sample",
			Buckets: prometheus.ExponentialBuckets(64*1024, 2, 10), // 64KB to ~32MB
		}),
		Transcriptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecap_transcriptions_total",
			Help: "Transcription attempts by backend and outcome",
		}, []string{"backend", "outcome"}),
		TranscriptionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicecap_transcription_duration_seconds",
			Help:    "Round trip time of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}),
		ResampleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicecap_resample_duration_seconds",
			Help:    "Time spent resampling a recording",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"target_rate"}),
		PromptRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicecap_prompt_requests_total",
			Help: "Prompt generator requests by outcome",
		}, []string{"outcome"}),
		Recordings: f.NewCounter(prometheus.CounterOpts{
			Name: "voicecap_recordings_started_total",
			Help: "Total number of capture sessions started",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveSave records a successful sample save of size bytes.
func (m *Metrics) ObserveSave(size int64) {
	if m == nil {
		return
	}
	m.SamplesSaved.Inc()
	m.SampleBytes.Observe(float64(size))
}

// ObserveSaveFailure records a failed save at the given stage.
func (m *Metrics) ObserveSaveFailure(stage string) {
	if m == nil {
		return
	}
	m.SaveFailures.WithLabelValues(stage).Inc()
}

// ObserveTranscription records one transcription attempt.
func (m *Metrics) ObserveTranscription(backend, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Transcriptions.WithLabelValues(backend, outcome).Inc()
	if d > 0 {
		m.TranscriptionLatency.Observe(d.Seconds())
	}
}

// ObserveResample records the time taken to resample to targetRate.
func (m *Metrics) ObserveResample(targetRate string, d time.Duration) {
	if m == nil {
		return
	}
	m.ResampleDuration.WithLabelValues(targetRate).Observe(d.Seconds())
}

// ObservePrompt records a prompt generator request outcome.
func (m *Metrics) ObservePrompt(outcome string) {
	if m == nil {
		return
	}
	m.PromptRequests.WithLabelValues(outcome).Inc()
}

// ObserveRecording records a started capture session.
func (m *Metrics) ObserveRecording() {
	if m == nil {
		return
	}
	m.Recordings.Inc()
}

// Serve exposes /metrics on bind until ctx is cancelled.
func Serve(ctx context.Context, bind string, m *Metrics, log *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: bind, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listener started", slog.String("bind", bind))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
