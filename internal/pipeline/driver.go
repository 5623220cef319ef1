// Package pipeline drives a narration run from raw text to merged and
// tempo-adjusted audio.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-narrator/internal/media"
	"github.com/loqalabs/loqa-narrator/internal/segment"
	"github.com/loqalabs/loqa-narrator/internal/tts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrNoText is wrapped in the segmentation error of a run whose input holds
// nothing to speak.
var ErrNoText = errors.New("no speakable text")

// durationTolerance is the allowed drift per artifact between the merged
// audio and the sum of its parts.
const durationTolerance = 50 * time.Millisecond

// Options are the defaults applied to every job.
type Options struct {
	MaxLength    int
	Language     string
	Speed        float64
	TempoEnabled bool
	ScratchRoot  string
	SynthTimeout time.Duration
	MediaTimeout time.Duration
	Concurrency  int
	// ArtifactExt is the extension given to synthesized chunk files.
	ArtifactExt string
}

// Job is one narration request. Zero fields fall back to Options.
type Job struct {
	RunID      string
	Text       string
	OutputPath string
	Speed      float64
	Language   string
	MaxLength  int
	// Observer receives this job's events in addition to the driver's.
	Observer Observer
}

// Result describes what a run produced. OutputPath is set whenever the merged
// audio exists, including runs that failed while adjusting tempo.
type Result struct {
	RunID           string
	State           State
	Chunks          []segment.Chunk
	Artifacts       []Artifact
	OutputPath      string
	SpeedOutputPath string
	Duration        time.Duration
}

// Option customizes a Driver.
type Option func(*Driver)

// WithObserver registers an observer for state and artifact events.
func WithObserver(o Observer) Option {
	return func(d *Driver) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithProbe sets the function used to measure artifact and output durations.
func WithProbe(p ProbeFunc) Option {
	return func(d *Driver) { d.probe = p }
}

// Driver runs the segment, synthesize, concatenate and tempo stages.
type Driver struct {
	synth    tts.Synthesizer
	proc     media.Processor
	opts     Options
	log      *slog.Logger
	observer Observer
	probe    ProbeFunc
	tracer   trace.Tracer
	inst     *instruments
}

func NewDriver(synth tts.Synthesizer, proc media.Processor, opts Options, logger *slog.Logger, options ...Option) (*Driver, error) {
	if synth == nil {
		return nil, errors.New("synthesizer is required")
	}
	if proc == nil {
		return nil, errors.New("processor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = segment.DefaultMaxLength
	}
	if opts.ScratchRoot == "" {
		opts.ScratchRoot = "tts_temp"
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.ArtifactExt == "" {
		opts.ArtifactExt = ".mp3"
	}
	d := &Driver{
		synth:    synth,
		proc:     proc,
		opts:     opts,
		log:      logger.With(slog.String("component", "pipeline")),
		observer: nopObserver{},
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range options {
		opt(d)
	}
	d.inst = newInstruments(d.log)
	return d, nil
}

// Run executes job to completion. The returned error is a *StageError for
// every stage failure. Scratch files are gone when Run returns.
func (d *Driver) Run(ctx context.Context, job Job) (Result, error) {
	if job.OutputPath == "" {
		return Result{State: Idle}, errors.New("output path is required")
	}
	if job.RunID == "" {
		job.RunID = uuid.NewString()
	}
	maxLength := job.MaxLength
	if maxLength <= 0 {
		maxLength = d.opts.MaxLength
	}
	language := job.Language
	if language == "" {
		language = d.opts.Language
	}
	speed := job.Speed
	if speed <= 0 {
		speed = d.opts.Speed
	}

	log := d.log.With(slog.String("run_id", job.RunID))
	ctx, span := d.tracer.Start(ctx, "narrator.run", trace.WithAttributes(
		attribute.String("run.id", job.RunID),
		attribute.String("output.path", job.OutputPath),
	))
	defer span.End()

	res := Result{RunID: job.RunID, State: Idle}
	observer := d.observer
	if job.Observer != nil {
		observer = Observers{d.observer, job.Observer}
	}
	tr := &tracker{observer: observer, inst: d.inst, log: log, res: &res}

	fail := func(err error) (Result, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		attrs := []any{slog.String("error", err.Error())}
		var se *StageError
		if errors.As(err, &se) {
			attrs = append(attrs, slog.String("stage", string(se.Stage)))
			if se.ChunkIndex >= 0 {
				attrs = append(attrs, slog.Int("chunk", se.ChunkIndex))
			}
			if se.Diagnostic != "" {
				attrs = append(attrs, slog.String("diagnostic", se.Diagnostic))
			}
		}
		log.Error("narration failed", attrs...)
		if terr := tr.moveTo(ctx, Failed, err); terr != nil {
			log.Error("state tracking failed", slog.String("error", terr.Error()))
		}
		d.inst.runDone(ctx, Failed)
		return res, err
	}
	advance := func(to State) error { return tr.moveTo(ctx, to, nil) }

	// Segmenting
	if err := advance(Segmenting); err != nil {
		return fail(err)
	}
	start := time.Now()
	res.Chunks = segment.Split(job.Text, maxLength)
	if len(res.Chunks) == 0 {
		err := newStageError(StageSegment, -1, ErrNoText)
		d.inst.stage(ctx, StageSegment, start, err)
		return fail(err)
	}
	d.inst.stage(ctx, StageSegment, start, nil)
	if over := segment.Oversized(res.Chunks, maxLength); len(over) > 0 {
		log.Warn("chunks exceed maximum length", slog.Any("chunks", over), slog.Int("max_length", maxLength))
	}
	span.SetAttributes(attribute.Int("chunk.count", len(res.Chunks)))
	log.Info("text segmented", slog.Int("chunks", len(res.Chunks)), slog.Int("max_length", maxLength))

	// Synthesizing
	run, err := NewRun(d.opts.ScratchRoot, job.RunID)
	if err != nil {
		return fail(newStageError(StageSynthesize, -1, err))
	}
	defer func() {
		if err := run.Close(); err != nil {
			log.Warn("failed to clean scratch", slog.String("dir", run.Dir), slog.String("error", err.Error()))
		}
	}()
	run.Chunks = res.Chunks

	if err := advance(Synthesizing); err != nil {
		return fail(err)
	}
	coord := &Coordinator{
		synth:       d.synth,
		language:    language,
		timeout:     d.opts.SynthTimeout,
		concurrency: d.opts.Concurrency,
		ext:         d.opts.ArtifactExt,
		probe:       d.probe,
		log:         log,
		tracer:      d.tracer,
		inst:        d.inst,
	}
	start = time.Now()
	err = coord.Synthesize(ctx, run, func(a Artifact) {
		res.Artifacts = append(res.Artifacts, a)
		artifact := a
		observer.Observe(ctx, Event{
			RunID:      job.RunID,
			Type:       EventArtifact,
			State:      res.State,
			ChunkCount: len(res.Chunks),
			Artifact:   &artifact,
			Time:       time.Now().UTC(),
		})
	})
	d.inst.stage(ctx, StageSynthesize, start, err)
	if err != nil {
		return fail(err)
	}

	// Concatenating
	if err := advance(Concatenating); err != nil {
		return fail(err)
	}
	concat := &Concatenator{proc: d.proc, timeout: d.opts.MediaTimeout, log: log}
	start = time.Now()
	before := statFile(job.OutputPath)
	err = concat.Concat(ctx, run, job.OutputPath)
	d.inst.stage(ctx, StageConcat, start, err)
	if err != nil {
		removePartial(log, job.OutputPath, before)
		return fail(err)
	}
	res.OutputPath = job.OutputPath
	// Artifacts are no longer needed once merged; the deferred Close reports errors.
	_ = run.Close()
	res.Duration = d.checkDuration(log, job.OutputPath, res.Artifacts)
	log.Info("merged audio written", slog.String("output", job.OutputPath))

	if !d.opts.TempoEnabled {
		return tr.finish(ctx)
	}

	// AdjustingTempo
	if err := advance(AdjustingTempo); err != nil {
		return fail(err)
	}
	tempo := &TempoTransformer{proc: d.proc, timeout: d.opts.MediaTimeout, log: log}
	start = time.Now()
	before = statFile(media.SpeedOutputPath(job.OutputPath, speed))
	speedPath, err := tempo.Adjust(ctx, job.OutputPath, speed)
	d.inst.stage(ctx, StageTempo, start, err)
	if err != nil {
		removePartial(log, speedPath, before)
		return fail(err)
	}
	res.SpeedOutputPath = speedPath
	log.Info("tempo-adjusted audio written", slog.String("output", speedPath), slog.Float64("speed", speed))

	return tr.finish(ctx)
}

// checkDuration probes the merged output and compares it with the sum of the
// artifact durations. It returns the probed duration, or zero when unknown.
func (d *Driver) checkDuration(log *slog.Logger, output string, artifacts []Artifact) time.Duration {
	if d.probe == nil {
		return 0
	}
	got, err := d.probe(output)
	if err != nil {
		log.Warn("failed to probe merged audio", slog.String("output", output), slog.String("error", err.Error()))
		return 0
	}
	var want time.Duration
	for _, a := range artifacts {
		if a.Duration <= 0 {
			return got
		}
		want += a.Duration
	}
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	if diff > durationTolerance*time.Duration(len(artifacts)) {
		log.Warn("merged audio duration differs from its parts",
			slog.Duration("merged", got),
			slog.Duration("expected", want))
	}
	return got
}

// fileState is what a failed stage is compared against to tell whether it
// touched its output.
type fileState struct {
	exists  bool
	size    int64
	modTime time.Time
}

func statFile(path string) fileState {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}
	}
	return fileState{exists: true, size: info.Size(), modTime: info.ModTime()}
}

// removePartial deletes path if the failed stage created or modified it. A
// file left untouched from an earlier run is kept.
func removePartial(log *slog.Logger, path string, before fileState) {
	if path == "" {
		return
	}
	after := statFile(path)
	if !after.exists {
		return
	}
	if before.exists && after.size == before.size && after.modTime.Equal(before.modTime) {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn("failed to remove partial output", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// tracker holds the state of one run and reports transitions.
type tracker struct {
	observer Observer
	inst     *instruments
	log      *slog.Logger
	res      *Result
}

func (t *tracker) moveTo(ctx context.Context, to State, cause error) error {
	from := t.res.State
	if !from.CanTransition(to) {
		return fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	t.res.State = to
	t.log.Debug("state changed", slog.String("from", from.String()), slog.String("to", to.String()))
	t.observer.Observe(ctx, Event{
		RunID:      t.res.RunID,
		Type:       EventState,
		State:      to,
		ChunkCount: len(t.res.Chunks),
		Err:        cause,
		Time:       time.Now().UTC(),
	})
	return nil
}

func (t *tracker) finish(ctx context.Context) (Result, error) {
	if err := t.moveTo(ctx, Done, nil); err != nil {
		return *t.res, err
	}
	t.inst.runDone(ctx, Done)
	return *t.res, nil
}
