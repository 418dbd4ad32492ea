// Package prompt fetches fresh sentences for the speaker to read from an
// OpenAI-compatible chat-completion endpoint.
package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chaz8081/voicecap/internal/config"
	"github.com/chaz8081/voicecap/internal/metrics"
)

// MsgNoPrompt is shown when the model answers with no usable text.
const MsgNoPrompt = "Failed to fetch a new unique prompt."

// ErrEmptyPrompt is returned alongside MsgNoPrompt.
var ErrEmptyPrompt = errors.New("prompt: model returned no content")

const systemMessage = "You write short sentences for a speaker to read aloud while recording " +
	"a voice dataset. Reply with exactly one natural, grammatical sentence of 8 to 20 words. " +
	"Do not use quotation marks or numbering."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generator requests new prompts and remembers the recent ones so the model
// is asked to avoid repeating them.
type Generator struct {
	url       string
	token     string
	model     string
	maxTokens int
	limit     int

	http    *http.Client
	metrics *metrics.Metrics
	log     *slog.Logger
	intn    func(int) int

	mu      sync.Mutex
	recent  []string
	skipped []string
}

// Option configures a Generator.
type Option func(*Generator)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *Generator) { g.http = hc }
}

// WithMetrics records request outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Generator) { g.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// WithRand replaces the theme picker, which must return a value in [0, n).
func WithRand(intn func(n int) int) Option {
	return func(g *Generator) { g.intn = intn }
}

// NewGenerator returns a Generator for cfg.
func NewGenerator(cfg config.PromptConfig, opts ...Option) *Generator {
	g := &Generator{
		url:       cfg.URL,
		token:     cfg.Token,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		limit:     cfg.RecentLimit,
		intn:      rand.IntN,
	}
	if g.model == "" {
		g.model = "gpt-3.5-turbo"
	}
	if g.maxTokens <= 0 {
		g.maxTokens = 100
	}
	if g.limit <= 0 {
		g.limit = 10
	}
	for _, o := range opts {
		o(g)
	}
	if g.http == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		g.http = &http.Client{Timeout: timeout}
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	return g
}

// Remember records an accepted prompt.
func (g *Generator) Remember(p string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recent = pushRecent(g.recent, p, g.limit)
}

// Skip records a rejected prompt.
func (g *Generator) Skip(p string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.skipped = pushRecent(g.skipped, p, g.limit)
}

// Recent returns copies of the accepted and skipped prompt lists, oldest first.
func (g *Generator) Recent() (accepted, skipped []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.recent...), append([]string(nil), g.skipped...)
}

func pushRecent(list []string, p string, limit int) []string {
	if strings.TrimSpace(p) == "" {
		return list
	}
	list = append(list, p)
	if over := len(list) - limit; over > 0 {
		list = append(list[:0:0], list[over:]...)
	}
	return list
}

// messages builds the chat messages for the next request.
func (g *Generator) messages() []chatMessage {
	accepted, skipped := g.Recent()
	theme := Themes[g.intn(len(Themes))]

	var b strings.Builder
	fmt.Fprintf(&b, "Write one new sentence about %s.", theme)
	if len(accepted) > 0 {
		b.WriteString("\nIt must be different from these recent sentences:")
		for _, p := range accepted {
			b.WriteString("\n- " + p)
		}
	}
	if len(skipped) > 0 {
		b.WriteString("\nThe speaker rejected these, so avoid their style and wording:")
		for _, p := range skipped {
			b.WriteString("\n- " + p)
		}
	}
	return []chatMessage{
		{Role: "system", Content: systemMessage},
		{Role: "user", Content: b.String()},
	}
}

// Next asks the model for a new prompt. A transport or status failure
// returns "" and the error. An answer with no text returns MsgNoPrompt and
// ErrEmptyPrompt.
func (g *Generator) Next(ctx context.Context) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:     g.model,
		Messages:  g.messages(),
		MaxTokens: g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("prompt: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", g.fail(fmt.Errorf("prompt: build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.token)

	resp, err := g.http.Do(req)
	if err != nil {
		return "", g.fail(fmt.Errorf("prompt: request: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", g.fail(fmt.Errorf("prompt: endpoint returned status %s: %s", resp.Status, bytes.TrimSpace(msg)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", g.fail(fmt.Errorf("prompt: decode response: %w", err))
	}

	var content string
	if len(out.Choices) > 0 {
		content = out.Choices[0].Message.Content
	}
	p := Clean(content)
	if p == "" {
		g.metrics.ObservePrompt("empty")
		g.log.Warn("prompt model returned no content", slog.String("model", g.model))
		return MsgNoPrompt, ErrEmptyPrompt
	}
	g.metrics.ObservePrompt("ok")
	return p, nil
}

func (g *Generator) fail(err error) error {
	g.metrics.ObservePrompt("failed")
	g.log.Warn("prompt fetch failed", slog.Any("error", err))
	return err
}

// Clean strips one pair of surrounding double quotes, trims whitespace, and
// replaces the first newline with a space.
func Clean(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	s = strings.TrimSpace(s)
	return strings.Replace(s, "\n", " ", 1)
}
