// Package tts reads prompts aloud through an OpenAI-compatible speech endpoint.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/chaz8081/voicecap/internal/config"
)

// ErrNotConfigured is returned when no TTS URL is set.
var ErrNotConfigured = errors.New("tts: no speech service configured")

// Request is the JSON body of a speech request.
type Request struct {
	Input  string  `json:"input"`
	Voice  string  `json:"voice"`
	Format string  `json:"format"`
	Speed  float64 `json:"speed"`
}

// Client synthesizes speech and caches the audio per input text.
type Client struct {
	url    string
	token  string
	voice  string
	format string
	speed  float64

	http *http.Client
	log  *slog.Logger

	mu    sync.Mutex
	cache map[string][]byte
}

// NewClient returns a Client for cfg. A nil hc uses a client with a 30s timeout.
func NewClient(cfg config.TTSConfig, hc *http.Client, log *slog.Logger) *Client {
	c := &Client{
		url:    cfg.URL,
		token:  cfg.Token,
		voice:  cfg.Voice,
		format: cfg.Format,
		speed:  cfg.Speed,
		http:   hc,
		log:    log,
		cache:  make(map[string][]byte),
	}
	if c.voice == "" {
		c.voice = "af_bella"
	}
	if c.format == "" {
		c.format = "audio/wav"
	}
	if c.speed == 0 {
		c.speed = 1.1
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Speak returns encoded audio for text, fetching it on the first call for a
// given text. Failures are not cached.
func (c *Client) Speak(ctx context.Context, text string) ([]byte, error) {
	if c.url == "" {
		return nil, ErrNotConfigured
	}
	c.mu.Lock()
	audio, ok := c.cache[text]
	c.mu.Unlock()
	if ok {
		return audio, nil
	}

	body, err := json.Marshal(Request{Input: text, Voice: c.voice, Format: c.format, Speed: c.speed})
	if err != nil {
		return nil, fmt.Errorf("tts: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tts: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("tts: API error: %s", resp.Status)
	}
	audio, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: read audio: %w", err)
	}

	c.mu.Lock()
	c.cache[text] = audio
	c.mu.Unlock()
	c.log.Debug("synthesized prompt audio", slog.Int("bytes", len(audio)), slog.String("voice", c.voice))
	return audio, nil
}

// Forget drops the cached audio for text.
func (c *Client) Forget(text string) {
	c.mu.Lock()
	delete(c.cache, text)
	c.mu.Unlock()
}
