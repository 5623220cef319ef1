package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/media"
)

// Concatenator joins a run's artifacts into one file by stream copy.
type Concatenator struct {
	proc    media.Processor
	timeout time.Duration
	log     *slog.Logger
}

func (c *Concatenator) Concat(ctx context.Context, run *Run, output string) error {
	if len(run.Artifacts) == 0 || len(run.Artifacts) != len(run.Chunks) {
		return newStageError(StageConcat, -1, fmt.Errorf("have %d artifacts for %d chunks", len(run.Artifacts), len(run.Chunks)))
	}

	run.ManifestPath = run.Path("list.txt")
	if err := media.WriteManifest(run.ManifestPath, run.ArtifactPaths()); err != nil {
		return newStageError(StageConcat, -1, err)
	}

	c.log.Info("merging audio", slog.Int("files", len(run.Artifacts)), slog.String("output", output))

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.proc.Concat(callCtx, media.ConcatRequest{ManifestPath: run.ManifestPath, OutputPath: output}); err != nil {
		return newStageError(StageConcat, -1, err)
	}
	return nil
}
