package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chaz8081/voicecap/internal/config"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func chatServer(t *testing.T, content string, got *chatRequest, auth *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		if got != nil {
			if err := json.NewDecoder(r.Body).Decode(got); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClean(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"The river sang softly."`, "The river sang softly."},
		{`  The river sang softly.  `, "The river sang softly."},
		{"Line one\nline two\nline three", "Line one line two\nline three"},
		{`"  padded inside  "`, "padded inside"},
		{`"`, `"`},
		{`"half quoted`, `"half quoted`},
		{"", ""},
		{`""`, ""},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNext(t *testing.T) {
	var req chatRequest
	var auth string
	srv := chatServer(t, "\"Stars drift over the quiet harbor tonight.\"", &req, &auth)
	defer srv.Close()

	g := NewGenerator(config.PromptConfig{URL: srv.URL, Token: "tok"},
		WithLogger(quietLogger()), WithRand(func(int) int { return 11 }))
	g.Remember("An earlier sentence.")
	g.Skip("A rejected sentence.")

	p, err := g.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if p != "Stars drift over the quiet harbor tonight." {
		t.Errorf("prompt = %q", p)
	}
	if auth != "Bearer tok" {
		t.Errorf("Authorization = %q", auth)
	}
	if req.Model != "gpt-3.5-turbo" || req.MaxTokens != 100 {
		t.Errorf("model/max_tokens = %q/%d", req.Model, req.MaxTokens)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
		t.Fatalf("messages = %+v", req.Messages)
	}
	user := req.Messages[1].Content
	for _, want := range []string{"technology", "An earlier sentence.", "A rejected sentence."} {
		if !strings.Contains(user, want) {
			t.Errorf("user message missing %q:\n%s", want, user)
		}
	}
}

func TestNextEmptyContent(t *testing.T) {
	srv := chatServer(t, `""`, nil, nil)
	defer srv.Close()

	g := NewGenerator(config.PromptConfig{URL: srv.URL}, WithLogger(quietLogger()))
	p, err := g.Next(context.Background())
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("err = %v, want ErrEmptyPrompt", err)
	}
	if p != MsgNoPrompt {
		t.Errorf("prompt = %q, want %q", p, MsgNoPrompt)
	}
}

func TestNextNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	g := NewGenerator(config.PromptConfig{URL: srv.URL}, WithLogger(quietLogger()))
	if p, err := g.Next(context.Background()); p != MsgNoPrompt || !errors.Is(err, ErrEmptyPrompt) {
		t.Errorf("Next = %q, %v", p, err)
	}
}

func TestNextFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewGenerator(config.PromptConfig{URL: srv.URL}, WithLogger(quietLogger()))
	p, err := g.Next(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if p != "" {
		t.Errorf("prompt = %q, want empty on failure", p)
	}
}

func TestRecentLimit(t *testing.T) {
	g := NewGenerator(config.PromptConfig{RecentLimit: 10}, WithLogger(quietLogger()))
	for i := range 15 {
		g.Remember(fmt.Sprintf("p%d", i))
		g.Skip(fmt.Sprintf("s%d", i))
	}
	g.Remember("   ")

	accepted, skipped := g.Recent()
	if len(accepted) != 10 || len(skipped) != 10 {
		t.Fatalf("len = %d/%d, want 10/10", len(accepted), len(skipped))
	}
	if accepted[0] != "p5" || accepted[9] != "p14" {
		t.Errorf("accepted = %v, want p5..p14", accepted)
	}
	if skipped[0] != "s5" || skipped[9] != "s14" {
		t.Errorf("skipped = %v, want s5..s14", skipped)
	}
}
