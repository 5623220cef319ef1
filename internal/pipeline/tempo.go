package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/media"
)

// TempoTransformer writes a speed-adjusted copy next to the merged output.
type TempoTransformer struct {
	proc    media.Processor
	timeout time.Duration
	log     *slog.Logger
}

// Adjust returns the path of the derived file.
func (t *TempoTransformer) Adjust(ctx context.Context, input string, speed float64) (string, error) {
	output := media.SpeedOutputPath(input, speed)
	t.log.Info("adjusting tempo", slog.Float64("speed", speed), slog.String("output", output))

	callCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	if err := t.proc.Tempo(callCtx, media.TempoRequest{InputPath: input, Speed: speed, OutputPath: output}); err != nil {
		return output, newStageError(StageTempo, -1, err)
	}
	return output, nil
}
