package dataset

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chaz8081/voicecap/internal/config"
	"github.com/chaz8081/voicecap/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noShuffle(int, func(i, j int)) {}

func samples(n int, rating int) []store.Sample {
	out := make([]store.Sample, n)
	for i := range out {
		out[i] = store.Sample{ID: string(rune('a' + i)), GroundTruth: "Line " + string(rune('A'+i)) + ".", Rating: rating}
	}
	return out
}

func TestExportPlain(t *testing.T) {
	p := &store.Project{AuthorID: "3"}
	got := Export(context.Background(), nil, p, samples(2, 1), false)
	want := "a-24.wav|Line A.|3\nb-24.wav|Line B.|3"
	if got != want {
		t.Errorf("Export = %q, want %q", got, want)
	}

	if got := Export(context.Background(), nil, &store.Project{}, samples(1, 1), true); got != "a-24.wav|Line A.|0" {
		t.Errorf("Export without author or phonemizer = %q", got)
	}
}

func TestExportPhonemized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "Line B.") {
			http.Error(w, "espeak missing", http.StatusInternalServerError)
			return
		}
		_, _ = io.WriteString(w, `{"phonemized_text":"lˈaɪn ˈeɪ"}`)
	}))
	defer srv.Close()

	ph := NewPhonemizer(config.PhonemizerConfig{URL: srv.URL}, nil, quietLogger())
	got := Export(context.Background(), ph, &store.Project{AuthorID: "1"}, samples(2, 1), true)
	want := "a-24.wav|lˈaɪn ˈeɪ|1\nb-24.wav|Line B.|1"
	if got != want {
		t.Errorf("Export = %q, want %q", got, want)
	}
}

func TestPhonemizeFallbacks(t *testing.T) {
	ctx := context.Background()
	if got := NewPhonemizer(config.PhonemizerConfig{}, nil, quietLogger()).Phonemize(ctx, "hi"); got != "hi" {
		t.Errorf("unset url = %q", got)
	}

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{}`)
	}))
	defer empty.Close()
	if got := NewPhonemizer(config.PhonemizerConfig{URL: empty.URL}, nil, quietLogger()).Phonemize(ctx, "hi"); got != "hi" {
		t.Errorf("empty response = %q", got)
	}

	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := dead.URL
	dead.Close()
	if got := NewPhonemizer(config.PhonemizerConfig{URL: url}, nil, quietLogger()).Phonemize(ctx, "hi"); got != "hi" {
		t.Errorf("unreachable = %q", got)
	}
}

func TestSplit(t *testing.T) {
	all := append(samples(10, 1), samples(5, 0)...)
	val, train := Split(all, noShuffle)
	if len(val) != 2 || len(train) != 8 {
		t.Errorf("split = %d/%d, want 2/8", len(val), len(train))
	}
	for _, s := range append(val, train...) {
		if s.Rating < 1 {
			t.Errorf("rejected sample %s exported", s.ID)
		}
	}

	val, train = Split(samples(1, 1), noShuffle)
	if len(val) != 1 || len(train) != 0 {
		t.Errorf("single sample split = %d/%d, want 1/0", len(val), len(train))
	}
	val, train = Split(nil, nil)
	if len(val) != 0 || len(train) != 0 {
		t.Errorf("empty split = %d/%d", len(val), len(train))
	}
}

type dirSaver struct{}

func (dirSaver) SaveFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	p := &store.Project{ID: "proj", StoragePath: dir, AuthorID: "2", Samples: samples(7, 1)}
	res, err := Generate(context.Background(), dirSaver{}, nil, p, noShuffle)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Val != 2 || res.Train != 5 {
		t.Errorf("counts = %d/%d, want 2/5", res.Val, res.Train)
	}
	val, _ := os.ReadFile(filepath.Join(dir, "proj_val_list.txt"))
	train, _ := os.ReadFile(filepath.Join(dir, "proj_train_list.txt"))
	if string(val) != "a-24.wav|Line A.|2\nb-24.wav|Line B.|2" {
		t.Errorf("val list = %q", val)
	}
	if lines := strings.Split(string(train), "\n"); len(lines) != 5 || lines[0] != "c-24.wav|Line C.|2" {
		t.Errorf("train list = %q", train)
	}

	if _, err := Generate(context.Background(), dirSaver{}, nil, &store.Project{ID: "x"}, noShuffle); err == nil {
		t.Error("Generate without storage path succeeded")
	}
}
