package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/chaz8081/voicecap/internal/config"
	"github.com/chaz8081/voicecap/internal/metrics"
)

// User-facing texts for failed transcriptions.
const (
	MsgFailed = "Failed to transcribe."
	MsgError  = "Error during transcription."
)

// ErrNoService is returned in Result.Err when no backend is configured.
var ErrNoService = errors.New("transcribe: no transcription service configured")

// Result is the outcome of one transcription. Exactly one of Loading, Failed,
// or a completed transcript (neither flag set) holds.
type Result struct {
	// Text is the normalized transcript, or a user-facing message when Failed.
	Text string
	// RawText is the transcript as returned by the service.
	RawText string
	Match   bool
	Loading bool
	Failed  bool
	Err     error
}

// Pending returns the placeholder shown while a transcription is in flight.
func Pending() Result {
	return Result{Loading: true}
}

// Client sends recordings to the configured speech-to-text service.
type Client struct {
	backend      config.BackendKind
	asrURL       string
	whisperURL   string
	whisperToken string
	whisperModel string
	language     string
	noService    string

	http    *http.Client
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithMetrics records outcomes and latency on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient resolves the backend from cfg once and returns a Client.
func NewClient(cfg config.TranscriptionConfig, opts ...Option) *Client {
	c := &Client{
		backend:      cfg.Backend(),
		asrURL:       cfg.ASRURL,
		whisperURL:   cfg.WhisperURL,
		whisperToken: cfg.WhisperToken,
		whisperModel: cfg.WhisperModel,
		language:     cfg.Language,
		noService:    cfg.NoServiceMessage,
	}
	if c.whisperModel == "" {
		c.whisperModel = "whisper-1"
	}
	if c.language == "" {
		c.language = "en"
	}
	if c.noService == "" {
		c.noService = "Failed to transcribe. No transcription service available."
	}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Backend returns the backend chosen at construction.
func (c *Client) Backend() config.BackendKind {
	return c.backend
}

// Transcribe sends wav to the configured backend and compares the transcript
// with groundTruth. It makes a single attempt and never returns a Loading
// result.
func (c *Client) Transcribe(ctx context.Context, wav []byte, groundTruth string) Result {
	if c.backend == config.BackendNone {
		c.metrics.ObserveTranscription(c.backend.String(), "unavailable", 0)
		return Result{Text: c.noService, Failed: true, Err: ErrNoService}
	}

	start := time.Now()
	req, err := c.newRequest(ctx, wav)
	if err != nil {
		return c.fail(MsgError, err, 0)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.fail(MsgError, fmt.Errorf("transcribe: %s request: %w", c.backend, err), time.Since(start))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return c.fail(MsgFailed, fmt.Errorf("transcribe: %s returned status %d: %s", c.backend, resp.StatusCode, bytes.TrimSpace(body)), time.Since(start))
	}

	var payload struct {
		Text *string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return c.fail(MsgError, fmt.Errorf("transcribe: decode response: %w", err), time.Since(start))
	}
	if payload.Text == nil {
		return c.fail(MsgError, errors.New("transcribe: response has no text field"), time.Since(start))
	}

	elapsed := time.Since(start)
	text := NormalizeString(*payload.Text)
	match := text == NormalizeString(groundTruth)
	c.metrics.ObserveTranscription(c.backend.String(), "ok", elapsed)
	c.log.Debug("transcription complete",
		slog.String("backend", c.backend.String()),
		slog.Duration("elapsed", elapsed),
		slog.Bool("match", match),
	)
	return Result{Text: text, RawText: *payload.Text, Match: match}
}

func (c *Client) fail(msg string, err error, elapsed time.Duration) Result {
	c.metrics.ObserveTranscription(c.backend.String(), "failed", elapsed)
	c.log.Warn("transcription failed", slog.String("backend", c.backend.String()), slog.Any("error", err))
	return Result{Text: msg, Failed: true, Err: err}
}

func (c *Client) newRequest(ctx context.Context, wav []byte) (*http.Request, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	var endpoint, field string
	switch c.backend {
	case config.BackendASR:
		u, err := url.Parse(c.asrURL)
		if err != nil {
			return nil, fmt.Errorf("transcribe: parse asr url: %w", err)
		}
		q := u.Query()
		q.Set("encode", "true")
		q.Set("task", "transcribe")
		q.Set("language", c.language)
		q.Set("output", "json")
		u.RawQuery = q.Encode()
		endpoint, field = u.String(), "audio_file"
	case config.BackendWhisper:
		endpoint, field = c.whisperURL, "file"
	default:
		return nil, ErrNoService
	}

	fw, err := mw.CreateFormFile(field, "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("transcribe: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return nil, fmt.Errorf("transcribe: write form file: %w", err)
	}
	if c.backend == config.BackendWhisper {
		if err := mw.WriteField("model", c.whisperModel); err != nil {
			return nil, fmt.Errorf("transcribe: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("transcribe: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("transcribe: build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.backend == config.BackendWhisper {
		req.Header.Set("Authorization", "Bearer "+c.whisperToken)
	}
	return req, nil
}
