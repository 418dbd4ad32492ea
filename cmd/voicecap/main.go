package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"

	"github.com/chaz8081/voicecap/internal/audio"
	"github.com/chaz8081/voicecap/internal/capture"
	"github.com/chaz8081/voicecap/internal/config"
	"github.com/chaz8081/voicecap/internal/dataset"
	"github.com/chaz8081/voicecap/internal/metrics"
	"github.com/chaz8081/voicecap/internal/prompt"
	"github.com/chaz8081/voicecap/internal/sample"
	"github.com/chaz8081/voicecap/internal/store"
	"github.com/chaz8081/voicecap/internal/studio"
	"github.com/chaz8081/voicecap/internal/transcribe"
	"github.com/chaz8081/voicecap/internal/tts"
	"github.com/chaz8081/voicecap/internal/ui"
)

const usage = `usage: voicecap [-config path] <command> [flags]

commands:
  init                          write the default config file
  projects                      list projects
  project add -name -actor -path [-author -emotion -description]
  set key=value...              save settings to the project database
  record -project ID            open the capture page
  export -project ID [-print [-phonemize]]
                                write the train/validation lists
`

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

func main() {
	configPath := flag.String("config", "", "path to config file (default: ~/.config/voicecap/config.yaml)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, args[0], args[1:]); err != nil {
		red.Fprintln(os.Stderr, "voicecap:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, cmd string, args []string) error {
	if cmd == "init" {
		path, err := config.WriteDefault()
		if err != nil {
			return err
		}
		if path == "" {
			yellow.Println("Config already exists at", config.DefaultConfigPath())
			return nil
		}
		green.Println("Wrote default config to", path)
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	// The capture page owns the terminal, so its logs go to a file.
	var logOut io.Writer = os.Stderr
	if cmd == "record" {
		f, err := openLogFile()
		if err != nil {
			return err
		}
		defer f.Close()
		logOut = f
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))

	db, err := store.Open(ctx, cfg.DatabasePath, slog.Default())
	if err != nil {
		return err
	}
	defer db.Close()

	settings, err := db.GetSettings(ctx)
	if err != nil {
		return err
	}
	cfg.ApplySettings(settings)

	switch cmd {
	case "projects":
		return listProjects(ctx, db)
	case "project":
		return projectCmd(ctx, db, args)
	case "set":
		return setCmd(ctx, db, args)
	case "record":
		return recordCmd(ctx, cfg, db, args)
	case "export":
		return exportCmd(ctx, cfg, db, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return cfg, nil
	}

	return config.Default(), nil
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func openLogFile() (*os.File, error) {
	dir := config.DefaultConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, "voicecap.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

func listProjects(ctx context.Context, db *store.Store) error {
	projects, err := db.GetProjects(ctx)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		yellow.Println("No projects yet. Create one with: voicecap project add -name NAME -actor ACTOR -path DIR")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tVOICE ACTOR\tEMOTION\tPATH\tCREATED")
	for _, p := range projects {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.VoiceActor, p.Emotion, p.StoragePath, p.DateCreated.Format("2006-01-02"))
	}
	return tw.Flush()
}

func projectCmd(ctx context.Context, db *store.Store, args []string) error {
	if len(args) == 0 || args[0] != "add" {
		return errors.New("usage: voicecap project add -name NAME -actor ACTOR -path DIR")
	}
	fs := flag.NewFlagSet("project add", flag.ContinueOnError)
	name := fs.String("name", "", "project name")
	actor := fs.String("actor", "", "voice actor")
	path := fs.String("path", "", "directory where samples are written")
	author := fs.String("author", "", "author id written to dataset lists (default 0)")
	emotion := fs.String("emotion", "", "emotion label")
	desc := fs.String("description", "", "free-form description")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	storagePath := *path
	if storagePath != "" {
		abs, err := filepath.Abs(storagePath)
		if err != nil {
			return fmt.Errorf("resolving storage path: %w", err)
		}
		storagePath = abs
	}

	p, err := db.CreateProject(ctx, store.Project{
		Name:        *name,
		VoiceActor:  *actor,
		AuthorID:    *author,
		Emotion:     *emotion,
		Description: *desc,
		StorageType: store.StorageLocal,
		StoragePath: storagePath,
	})
	if err != nil {
		return err
	}
	green.Println("Created project", p.ID)
	return nil
}

func setCmd(ctx context.Context, db *store.Store, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: voicecap set key=value...")
	}
	settings := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return fmt.Errorf("invalid setting %q, want key=value", a)
		}
		settings[strings.TrimSpace(k)] = v
	}
	if err := db.UpdateSettings(ctx, settings); err != nil {
		return err
	}
	green.Printf("Saved %d setting(s)\n", len(settings))
	return nil
}

func recordCmd(ctx context.Context, cfg *config.Config, db *store.Store, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	projectID := fs.String("project", "", "project id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	project, err := db.GetProject(ctx, *projectID)
	if err != nil {
		return fmt.Errorf("project %q: %w", *projectID, err)
	}

	log := slog.Default()
	m := metrics.New()
	if cfg.MetricsBind != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsBind, m, log); err != nil {
				log.Error("metrics server stopped", slog.Any("error", err))
			}
		}()
	}

	mic, err := audio.NewMicrophone(cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err != nil {
		return fmt.Errorf("%w\n\nEnsure microphone access is granted to your terminal.", err)
	}
	defer mic.Close()

	deps := studio.Deps{
		Source:      mic,
		Transcriber: transcribe.NewClient(cfg.Transcription, transcribe.WithMetrics(m), transcribe.WithLogger(log)),
		Prompts:     prompt.NewGenerator(cfg.Prompt, prompt.WithMetrics(m), prompt.WithLogger(log)),
		Finalizer:   sample.NewFinalizer(db, cfg.Waveform.Options(), m, log),
		Logger:      log,
		Capture: capture.Options{
			PreviewInterval: cfg.Waveform.PreviewInterval(),
			Metrics:         m,
		},
	}
	if cfg.TTS.URL != "" {
		deps.Speech = tts.NewClient(cfg.TTS, nil, log)
	}
	if spk, err := audio.NewSpeaker(); err != nil {
		log.Warn("audio output unavailable, playback disabled", slog.Any("error", err))
	} else {
		defer spk.Close()
		deps.Player = spk
	}

	st := studio.New(project.ID, deps)
	defer st.Close()

	log.Info("capture page opened",
		slog.String("project", project.ID),
		slog.String("backend", cfg.Transcription.Backend().String()),
	)
	p := tea.NewProgram(ui.New(ctx, st, project.Name), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("ui: %w", err)
	}
	return nil
}

func exportCmd(ctx context.Context, cfg *config.Config, db *store.Store, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	projectID := fs.String("project", "", "project id")
	printAll := fs.Bool("print", false, "print every sample line to stdout instead of writing the lists")
	phonemize := fs.Bool("phonemize", false, "phonemize printed lines")
	if err := fs.Parse(args); err != nil {
		return err
	}
	project, err := db.GetProject(ctx, *projectID)
	if err != nil {
		return fmt.Errorf("project %q: %w", *projectID, err)
	}

	ph := dataset.NewPhonemizer(cfg.Phonemizer, nil, slog.Default())
	if *printAll {
		fmt.Print(dataset.Export(ctx, ph, project, project.Samples, *phonemize))
		return nil
	}

	res, err := dataset.Generate(ctx, db, ph, project, rand.Shuffle)
	if err != nil {
		return err
	}
	green.Printf("Wrote %d validation lines to %s\n", res.Val, res.ValPath)
	green.Printf("Wrote %d training lines to %s\n", res.Train, res.TrainPath)
	return nil
}
