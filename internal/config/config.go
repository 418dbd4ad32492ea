package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/voicecap/internal/waveform"
)

// Config holds all application configuration.
type Config struct {
	DatabasePath  string              `yaml:"database_path"`
	LogLevel      string              `yaml:"log_level"`
	MetricsBind   string              `yaml:"metrics_bind"`
	Audio         AudioConfig         `yaml:"audio"`
	Waveform      WaveformConfig      `yaml:"waveform"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Prompt        PromptConfig        `yaml:"prompt"`
	TTS           TTSConfig           `yaml:"tts"`
	Phonemizer    PhonemizerConfig    `yaml:"phonemizer"`
}

// AudioConfig holds audio capture settings.
type AudioConfig struct {
	SampleRate uint32 `yaml:"sample_rate"`
	Channels   uint32 `yaml:"channels"`
}

// WaveformConfig holds thumbnail and live preview settings.
type WaveformConfig struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	Color      string  `yaml:"color"`
	LineWidth  float64 `yaml:"line_width"`
	PreviewFPS int     `yaml:"preview_fps"`
}

// Options converts the config into renderer options.
func (w WaveformConfig) Options() waveform.Options {
	return waveform.Options{
		Width:     w.Width,
		Height:    w.Height,
		Color:     w.Color,
		LineWidth: w.LineWidth,
	}
}

// PreviewInterval is the live waveform refresh period.
func (w WaveformConfig) PreviewInterval() time.Duration {
	fps := w.PreviewFPS
	if fps <= 0 {
		fps = 60
	}
	return time.Second / time.Duration(fps)
}

// TranscriptionConfig holds the remote speech-recognition settings.
// ASRURL takes priority over WhisperURL.
type TranscriptionConfig struct {
	ASRURL           string        `yaml:"asr_url"`
	WhisperURL       string        `yaml:"whisper_url"`
	WhisperToken     string        `yaml:"whisper_token"`
	WhisperModel     string        `yaml:"whisper_model"`
	Language         string        `yaml:"language"`
	NoServiceMessage string        `yaml:"no_service_message"`
	Timeout          time.Duration `yaml:"timeout"`
}

// BackendKind selects which transcription service is used.
type BackendKind int

const (
	// BackendNone means no service is configured; transcription fails without a request.
	BackendNone BackendKind = iota
	// BackendASR is a self-hosted ASR webservice taking an audio_file form field.
	BackendASR
	// BackendWhisper is an OpenAI-compatible /audio/transcriptions endpoint.
	BackendWhisper
)

func (k BackendKind) String() string {
	switch k {
	case BackendASR:
		return "asr"
	case BackendWhisper:
		return "whisper"
	default:
		return "none"
	}
}

// Backend resolves the configured service.
func (t TranscriptionConfig) Backend() BackendKind {
	switch {
	case strings.TrimSpace(t.ASRURL) != "":
		return BackendASR
	case strings.TrimSpace(t.WhisperURL) != "":
		return BackendWhisper
	default:
		return BackendNone
	}
}

// PromptConfig holds the chat-completion prompt generator settings.
type PromptConfig struct {
	URL         string        `yaml:"url"`
	Token       string        `yaml:"token"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	RecentLimit int           `yaml:"recent_limit"`
	Timeout     time.Duration `yaml:"timeout"`
}

// TTSConfig holds the prompt playback speech-synthesis settings.
type TTSConfig struct {
	URL    string  `yaml:"url"`
	Token  string  `yaml:"token"`
	Voice  string  `yaml:"voice"`
	Format string  `yaml:"format"`
	Speed  float64 `yaml:"speed"`
}

// PhonemizerConfig holds the dataset export phonemization service.
type PhonemizerConfig struct {
	URL string `yaml:"url"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voicecap")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultDatabasePath returns the default project database path.
func DefaultDatabasePath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "voicecap", "projects.db")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DatabasePath: DefaultDatabasePath(),
		LogLevel:     "info",
		Audio: AudioConfig{
			SampleRate: 48000,
			Channels:   1,
		},
		Waveform: WaveformConfig{
			Width:      waveform.DefaultWidth,
			Height:     waveform.DefaultHeight,
			Color:      waveform.DefaultColor,
			LineWidth:  waveform.DefaultLineWidth,
			PreviewFPS: 60,
		},
		Transcription: TranscriptionConfig{
			WhisperModel:     "whisper-1",
			Language:         "en",
			NoServiceMessage: "Failed to transcribe. No transcription service available.",
			Timeout:          60 * time.Second,
		},
		Prompt: PromptConfig{
			Model:       "gpt-3.5-turbo",
			MaxTokens:   100,
			RecentLimit: 10,
			Timeout:     30 * time.Second,
		},
		TTS: TTSConfig{
			Voice:  "af_bella",
			Format: "audio/wav",
			Speed:  1.1,
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in database_path is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.DatabasePath = expandTilde(cfg.DatabasePath)

	return cfg, nil
}

// ApplySettings overlays key/value rows from the project database's settings
// table. Empty values are ignored.
func (c *Config) ApplySettings(settings map[string]string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(settings[key]); v != "" {
			*dst = v
		}
	}
	set(&c.Transcription.ASRURL, "asrServiceUrl")
	set(&c.Transcription.WhisperURL, "openaiWhisperUrl")
	set(&c.Transcription.WhisperToken, "openaiWhisperToken")
	set(&c.Transcription.Language, "language")
	set(&c.Prompt.URL, "chatgptApiUrl")
	set(&c.Prompt.Token, "chatgptToken")
	set(&c.Prompt.Model, "model")
	set(&c.TTS.URL, "openaiTTSUrl")
	set(&c.TTS.Token, "openaiToken")
	set(&c.TTS.Voice, "openaiTTSVoice")
	set(&c.TTS.Format, "openaiTTSFormat")
	set(&c.Phonemizer.URL, "phonemizationUrl")
	if v, err := strconv.ParseFloat(settings["openaiTTSSpeed"], 64); err == nil && v > 0 {
		c.TTS.Speed = v
	}
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}

	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}

	if c.Audio.Channels == 0 || c.Audio.Channels > 2 {
		return fmt.Errorf("audio.channels must be 1 or 2, got %d", c.Audio.Channels)
	}

	if c.Waveform.Width <= 0 || c.Waveform.Height <= 0 {
		return fmt.Errorf("waveform.width and waveform.height must be > 0")
	}

	if _, err := waveform.ParseHexColor(c.Waveform.Color); err != nil {
		return fmt.Errorf("waveform.color: %w", err)
	}

	if c.Prompt.MaxTokens <= 0 {
		return fmt.Errorf("prompt.max_tokens must be > 0")
	}

	if c.Transcription.Backend() == BackendWhisper && c.Transcription.WhisperToken == "" {
		return fmt.Errorf("transcription.whisper_token must be set when whisper_url is used")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

const defaultHeader = "# voicecap configuration\n# Settings saved in the project database override the transcription, prompt and tts URLs below.\n\n"

// WriteDefault writes the default config to DefaultConfigPath. It returns the
// written path, or "" if a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
