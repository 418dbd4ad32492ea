// Package dataset writes the train and validation lists consumed by TTS
// training scripts: one `<id>-24.wav|<text>|<speaker>` line per sample.
package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/chaz8081/voicecap/internal/config"
	"github.com/chaz8081/voicecap/internal/store"
)

// ValidationShare is the fraction of accepted samples put in the validation list.
const ValidationShare = 0.15

// Phonemizer converts text to phonemes through an HTTP service. Any failure
// falls back to the input text.
type Phonemizer struct {
	url  string
	http *http.Client
	log  *slog.Logger
}

// NewPhonemizer returns a Phonemizer for cfg. A nil hc uses a 30s timeout.
func NewPhonemizer(cfg config.PhonemizerConfig, hc *http.Client, log *slog.Logger) *Phonemizer {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Phonemizer{url: cfg.URL, http: hc, log: log}
}

// Phonemize returns the phonemized text, or text itself when the service is
// unset, unreachable, or answers without phonemes.
func (p *Phonemizer) Phonemize(ctx context.Context, text string) string {
	if p == nil || p.url == "" {
		return text
	}
	out, err := p.request(ctx, text)
	if err != nil {
		p.log.Warn("phonemization failed, using raw text", slog.Any("error", err))
		return text
	}
	if out == "" {
		return text
	}
	return out
}

func (p *Phonemizer) request(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("phonemizer returned status %s", resp.Status)
	}
	var payload struct {
		PhonemizedText string `json:"phonemized_text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode phonemizer response: %w", err)
	}
	return payload.PhonemizedText, nil
}

// Export renders one line per sample. With phonemize set, the ground truth
// goes through ph first.
func Export(ctx context.Context, ph *Phonemizer, project *store.Project, samples []store.Sample, phonemize bool) string {
	author := project.AuthorID
	if author == "" {
		author = "0"
	}
	lines := make([]string, 0, len(samples))
	for _, s := range samples {
		text := s.GroundTruth
		if phonemize {
			text = ph.Phonemize(ctx, text)
		}
		lines = append(lines, fmt.Sprintf("%s-24.wav|%s|%s", s.ID, text, author))
	}
	return strings.Join(lines, "\n")
}

// Split keeps samples rated 1 or higher, shuffles them with shuffle, and
// puts the first ceil(15%) in the validation set.
func Split(samples []store.Sample, shuffle func(n int, swap func(i, j int))) (val, train []store.Sample) {
	var accepted []store.Sample
	for _, s := range samples {
		if s.Rating >= 1 {
			accepted = append(accepted, s)
		}
	}
	if shuffle == nil {
		shuffle = rand.Shuffle
	}
	shuffle(len(accepted), func(i, j int) { accepted[i], accepted[j] = accepted[j], accepted[i] })

	cut := int(math.Ceil(float64(len(accepted)) * ValidationShare))
	return accepted[:cut], accepted[cut:]
}

// FileSaver writes a file, creating parent directories.
type FileSaver interface {
	SaveFile(path string, data []byte) error
}

// Result names the written list files.
type Result struct {
	ValPath, TrainPath string
	Val, Train         int
}

// Generate writes `<id>_val_list.txt` (phonemized) and `<id>_train_list.txt`
// (plain ground truth) into the project's storage path.
func Generate(ctx context.Context, fs FileSaver, ph *Phonemizer, project *store.Project, shuffle func(n int, swap func(i, j int))) (Result, error) {
	if strings.TrimSpace(project.StoragePath) == "" {
		return Result{}, errors.New("dataset: project storage path is not set")
	}
	val, train := Split(project.Samples, shuffle)

	res := Result{
		ValPath:   filepath.Join(project.StoragePath, project.ID+"_val_list.txt"),
		TrainPath: filepath.Join(project.StoragePath, project.ID+"_train_list.txt"),
		Val:       len(val),
		Train:     len(train),
	}
	if err := fs.SaveFile(res.ValPath, []byte(Export(ctx, ph, project, val, true))); err != nil {
		return Result{}, fmt.Errorf("dataset: write validation list: %w", err)
	}
	if err := fs.SaveFile(res.TrainPath, []byte(Export(ctx, ph, project, train, false))); err != nil {
		return Result{}, fmt.Errorf("dataset: write training list: %w", err)
	}
	return res, nil
}
