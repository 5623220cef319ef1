package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/segment"
	"github.com/loqalabs/loqa-narrator/internal/tts"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ProbeFunc measures the playing time of an audio file.
type ProbeFunc func(path string) (time.Duration, error)

// Coordinator turns chunks into audio artifacts through a Synthesizer.
type Coordinator struct {
	synth       tts.Synthesizer
	language    string
	timeout     time.Duration
	concurrency int
	ext         string
	probe       ProbeFunc
	log         *slog.Logger
	tracer      trace.Tracer
	inst        *instruments
}

func (c *Coordinator) Synthesize(ctx context.Context, run *Run, onArtifact func(Artifact)) error {
	if c.concurrency <= 1 || len(run.Chunks) <= 1 {
		return c.synthesizeSequential(ctx, run, onArtifact)
	}
	return c.synthesizeParallel(ctx, run, onArtifact)
}

func (c *Coordinator) synthesizeSequential(ctx context.Context, run *Run, onArtifact func(Artifact)) error {
	for _, chunk := range run.Chunks {
		artifact, err := c.synthesizeChunk(ctx, run, chunk)
		if err != nil {
			return err
		}
		if err := run.register(artifact); err != nil {
			return newStageError(StageSynthesize, chunk.Index, err)
		}
		onArtifact(artifact)
	}
	return nil
}

// synthesizeParallel runs up to c.concurrency calls at once. Results are
// registered strictly in chunk order; once any call fails no further chunk is
// started and in-flight calls are cancelled.
func (c *Coordinator) synthesizeParallel(ctx context.Context, run *Run, onArtifact func(Artifact)) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	type result struct {
		artifact Artifact
		err      error
	}
	results := make([]chan result, len(run.Chunks))
	for i := range results {
		results[i] = make(chan result, 1)
	}

	sema := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	go func() {
		for i, chunk := range run.Chunks {
			if ctx.Err() != nil {
				results[i] <- result{err: newStageError(StageSynthesize, chunk.Index, context.Cause(ctx))}
				continue
			}
			select {
			case sema <- struct{}{}:
			case <-ctx.Done():
				results[i] <- result{err: newStageError(StageSynthesize, chunk.Index, context.Cause(ctx))}
				continue
			}
			wg.Add(1)
			go func(i int, chunk segment.Chunk) {
				defer wg.Done()
				defer func() { <-sema }()
				artifact, err := c.synthesizeChunk(ctx, run, chunk)
				if err != nil {
					cancel(err)
				}
				results[i] <- result{artifact: artifact, err: err}
			}(i, chunk)
		}
	}()

	var failed error
	for i := range run.Chunks {
		res := <-results[i]
		if failed != nil {
			continue
		}
		if res.err != nil {
			failed = res.err
			continue
		}
		if err := run.register(res.artifact); err != nil {
			failed = newStageError(StageSynthesize, res.artifact.Index, err)
			cancel(failed)
			continue
		}
		onArtifact(res.artifact)
	}
	wg.Wait()

	if failed == nil {
		return nil
	}
	// Chunks cancelled because another one failed must not mask the
	// failure that caused the cancellation.
	var cause *StageError
	if errors.As(context.Cause(ctx), &cause) {
		return cause
	}
	return failed
}

func (c *Coordinator) synthesizeChunk(ctx context.Context, run *Run, chunk segment.Chunk) (Artifact, error) {
	ctx, span := c.tracer.Start(ctx, "narrator.synthesize.chunk", trace.WithAttributes(
		attribute.String("run.id", run.ID),
		attribute.Int("chunk.index", chunk.Index),
		attribute.Int("chunk.length", chunk.Len()),
	))
	defer span.End()

	fail := func(err error) (Artifact, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Artifact{}, newStageError(StageSynthesize, chunk.Index, err)
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	textPath := run.Path(fmt.Sprintf("chunk_%d.txt", chunk.Index))
	audioPath := run.Path(fmt.Sprintf("chunk_%d%s", chunk.Index, c.ext))
	if err := os.WriteFile(textPath, []byte(chunk.Text), 0o644); err != nil {
		return fail(fmt.Errorf("write chunk text: %w", err))
	}

	c.log.Info("synthesizing chunk",
		slog.Int("chunk", chunk.Index+1),
		slog.Int("total", len(run.Chunks)),
		slog.String("text", chunk.Text))

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	err := c.synth.Synthesize(callCtx, tts.SynthRequest{
		TextPath:   textPath,
		Language:   c.language,
		OutputPath: audioPath,
	})
	if err != nil {
		return fail(err)
	}
	if err := run.Release(textPath); err != nil {
		c.log.Warn("failed to remove chunk text", slog.String("path", textPath), slog.String("error", err.Error()))
	}

	artifact := Artifact{Index: chunk.Index, Path: audioPath}
	if c.probe != nil {
		d, err := c.probe(audioPath)
		if err != nil {
			c.log.Warn("failed to probe chunk audio", slog.Int("chunk", chunk.Index), slog.String("error", err.Error()))
		} else {
			artifact.Duration = d
			span.SetAttributes(attribute.Float64("chunk.duration_s", d.Seconds()))
		}
	}
	c.inst.chunkDone(ctx)
	return artifact, nil
}
