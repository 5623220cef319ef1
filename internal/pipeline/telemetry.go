package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/loqalabs/loqa-narrator/pipeline"

type instruments struct {
	chunks        metric.Int64Counter
	runs          metric.Int64Counter
	stageDuration metric.Float64Histogram
}

func newInstruments(log *slog.Logger) *instruments {
	meter := otel.Meter(instrumentationName)
	inst := &instruments{}
	var err error
	if inst.chunks, err = meter.Int64Counter("narrator.chunks.synthesized",
		metric.WithDescription("Chunks synthesized successfully")); err != nil {
		log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	if inst.runs, err = meter.Int64Counter("narrator.runs",
		metric.WithDescription("Pipeline runs by final state")); err != nil {
		log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	if inst.stageDuration, err = meter.Float64Histogram("narrator.stage.duration",
		metric.WithDescription("Time spent per pipeline stage"), metric.WithUnit("s")); err != nil {
		log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return inst
}

func (i *instruments) chunkDone(ctx context.Context) {
	if i.chunks != nil {
		i.chunks.Add(ctx, 1)
	}
}

func (i *instruments) runDone(ctx context.Context, state State) {
	if i.runs != nil {
		i.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state.String())))
	}
}

func (i *instruments) stage(ctx context.Context, stage Stage, start time.Time, err error) {
	if i.stageDuration == nil {
		return
	}
	i.stageDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.Bool("failed", err != nil),
	))
}
