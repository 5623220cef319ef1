package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/logging"
	"github.com/loqalabs/loqa-narrator/internal/media"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
	"github.com/loqalabs/loqa-narrator/internal/runtime"
	"github.com/loqalabs/loqa-narrator/internal/segment"
	"github.com/loqalabs/loqa-narrator/internal/textprep"
)

var version = "0.1.0-dev"

const usage = "usage: narrate <run|split|probe|runs|version> [flags]"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runNarrate(os.Args[2:])
	case "split":
		err = runSplit(os.Args[2:])
	case "probe":
		err = runProbe(os.Args[2:])
	case "runs":
		err = runRuns(os.Args[2:])
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		os.Exit(1)
	}
}

func runNarrate(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	input := fs.String("input", "", "Input text file (overrides config)")
	output := fs.String("output", "", "Output audio file (overrides config)")
	speed := fs.Float64("speed", 0, "Tempo factor for the derived file (overrides config)")
	dryRun := fs.Bool("dry-run", false, "Use the built-in mock synthesizer and WAV processor")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	logger := logging.New(os.Stdout, cfg.Telemetry)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		return err
	}
	if *input != "" {
		cfg.Input.Path = *input
	}
	if *output != "" {
		cfg.Output.Path = *output
	}
	if *speed > 0 {
		cfg.Tempo.Speed = *speed
	}
	if *dryRun {
		cfg.Synth.Mode = "mock"
		cfg.Media.Mode = "mock"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, _, err := runtime.SetupTelemetry(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to setup telemetry", slog.String("error", err.Error()))
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}()

	text, err := textprep.ReadFile(cfg.Input.Path)
	if err != nil {
		logger.Error("failed to read input", slog.String("path", cfg.Input.Path), slog.String("error", err.Error()))
		return err
	}

	driver, err := runtime.NewDriver(cfg, logger)
	if err != nil {
		logger.Error("failed to build pipeline", slog.String("error", err.Error()))
		return err
	}

	res, err := driver.Run(ctx, pipeline.Job{Text: text, OutputPath: cfg.Output.Path})
	if err != nil {
		if !pipeline.Fatal(err) && res.OutputPath != "" {
			logger.Warn("tempo adjustment failed, merged audio kept", slog.String("output", res.OutputPath))
		}
		// The driver has already logged the stage and diagnostic output.
		return err
	}

	attrs := []any{
		slog.String("output", res.OutputPath),
		slog.Int("chunks", len(res.Chunks)),
	}
	if res.SpeedOutputPath != "" {
		attrs = append(attrs, slog.String("speed_output", res.SpeedOutputPath))
	}
	if res.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", res.Duration))
	}
	logger.Info("audio generated", attrs...)
	return nil
}

func runSplit(args []string) error {
	fs := flag.NewFlagSet("split", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	input := fs.String("input", "", "Input text file (overrides config)")
	maxLength := fs.Int("max", 0, "Maximum chunk length in characters (overrides config)")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	logger := logging.New(os.Stderr, cfg.Telemetry)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		return err
	}
	if *input != "" {
		cfg.Input.Path = *input
	}
	if *maxLength > 0 {
		cfg.Segmenter.MaxLength = *maxLength
	}

	text, err := textprep.ReadFile(cfg.Input.Path)
	if err != nil {
		logger.Error("failed to read input", slog.String("path", cfg.Input.Path), slog.String("error", err.Error()))
		return err
	}
	chunks := segment.Split(text, cfg.Segmenter.MaxLength)
	if over := segment.Oversized(chunks, cfg.Segmenter.MaxLength); len(over) > 0 {
		logger.Warn("chunks exceed maximum length", slog.Any("chunks", over), slog.Int("max_length", cfg.Segmenter.MaxLength))
	}

	enc := json.NewEncoder(os.Stdout)
	for _, c := range chunks {
		line := struct {
			Index  int    `json:"index"`
			Length int    `json:"length"`
			Text   string `json:"text"`
		}{c.Index, c.Len(), c.Text}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}

func runProbe(args []string) error {
	fs := flag.NewFlagSet("probe", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() == 0 {
		err := errors.New("probe needs at least one audio file")
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	var failed error
	for _, path := range fs.Args() {
		d, err := media.Duration(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = err
			continue
		}
		fmt.Printf("%s\t%s\n", path, d)
	}
	return failed
}

func runRuns(args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", 100, "Maximum number of events to print")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	logger := logging.New(os.Stderr, cfg.Telemetry)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		return err
	}
	if fs.NArg() != 1 {
		err := errors.New("runs needs exactly one run id")
		fmt.Fprintln(os.Stderr, err)
		return err
	}

	ctx := context.Background()
	store, err := eventstore.Open(ctx, cfg.EventStore, logger.With(slog.String("component", "eventstore")))
	if err != nil {
		logger.Error("failed to open event store", slog.String("path", cfg.EventStore.Path), slog.String("error", err.Error()))
		return err
	}
	defer store.Close()

	if err := printRun(ctx, os.Stdout, store, fs.Arg(0), *limit); err != nil {
		logger.Error("failed to read run", slog.String("run_id", fs.Arg(0)), slog.String("error", err.Error()))
		return err
	}
	return nil
}

type runRecord struct {
	RunID      string        `json:"run_id"`
	InputPath  string        `json:"input_path,omitempty"`
	OutputPath string        `json:"output_path,omitempty"`
	Status     string        `json:"status"`
	Error      string        `json:"error,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Events     []eventRecord `json:"events"`
}

type eventRecord struct {
	Type       string          `json:"type"`
	Stage      string          `json:"stage,omitempty"`
	ChunkIndex int             `json:"chunk_index"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// printRun writes a run and its journal events as one indented JSON document.
func printRun(ctx context.Context, w io.Writer, store *eventstore.Store, runID string, limit int) error {
	run, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	events, err := store.ListRunEvents(ctx, runID, limit)
	if err != nil {
		return err
	}

	rec := runRecord{
		RunID:      run.RunID,
		InputPath:  run.InputPath,
		OutputPath: run.OutputPath,
		Status:     run.Status,
		Error:      run.Error,
		CreatedAt:  run.CreatedAt,
		Events:     make([]eventRecord, 0, len(events)),
	}
	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt
		rec.FinishedAt = &finished
	}
	for _, e := range events {
		er := eventRecord{Type: e.Type, Stage: e.Stage, ChunkIndex: e.ChunkIndex, CreatedAt: e.CreatedAt}
		if len(e.Payload) > 0 && json.Valid(e.Payload) {
			er.Payload = json.RawMessage(e.Payload)
		}
		rec.Events = append(rec.Events, er)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
