package narration

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/loqalabs/loqa-narrator/internal/eventstore"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
	"github.com/loqalabs/loqa-narrator/internal/protocol"
)

// Journal is the part of the run journal the service writes to.
type Journal interface {
	BeginRun(ctx context.Context, run eventstore.Run) error
	FinishRun(ctx context.Context, runID, status, errMsg string) error
	AppendEvent(ctx context.Context, evt eventstore.Event) error
}

// Publisher sends JSON messages on a subject.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

type eventPayload struct {
	ChunkCount int    `json:"chunk_count"`
	Path       string `json:"path,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// StoreObserver journals every pipeline event.
type StoreObserver struct {
	journal Journal
	log     *slog.Logger
}

func NewStoreObserver(journal Journal, log *slog.Logger) *StoreObserver {
	return &StoreObserver{journal: journal, log: log}
}

func (o *StoreObserver) Observe(ctx context.Context, evt pipeline.Event) {
	payload := eventPayload{ChunkCount: evt.ChunkCount}
	record := eventstore.Event{
		RunID:      evt.RunID,
		Type:       string(evt.Type),
		Stage:      evt.State.String(),
		ChunkIndex: -1,
		CreatedAt:  evt.Time,
	}
	if evt.Artifact != nil {
		record.ChunkIndex = evt.Artifact.Index
		payload.Path = evt.Artifact.Path
		payload.DurationMS = evt.Artifact.Duration.Milliseconds()
	}
	if evt.Err != nil {
		payload.Error = evt.Err.Error()
	}
	data, err := json.Marshal(payload)
	if err != nil {
		o.log.Warn("failed to encode journal event", slog.String("error", err.Error()))
		return
	}
	record.Payload = data
	if err := o.journal.AppendEvent(ctx, record); err != nil {
		o.log.Warn("failed to journal event",
			slog.String("run_id", evt.RunID),
			slog.String("error", err.Error()))
	}
}

// BusObserver publishes pipeline events as narration progress messages.
type BusObserver struct {
	pub       Publisher
	requestID string
	log       *slog.Logger
}

func NewBusObserver(pub Publisher, requestID string, log *slog.Logger) *BusObserver {
	return &BusObserver{pub: pub, requestID: requestID, log: log}
}

func (o *BusObserver) Observe(_ context.Context, evt pipeline.Event) {
	msg := protocol.NarrationProgress{
		RunID:      evt.RunID,
		RequestID:  o.requestID,
		Type:       string(evt.Type),
		State:      evt.State.String(),
		ChunkIndex: -1,
		ChunkCount: evt.ChunkCount,
		Timestamp:  evt.Time,
	}
	if evt.Artifact != nil {
		msg.ChunkIndex = evt.Artifact.Index
		msg.ArtifactPath = evt.Artifact.Path
	}
	if evt.Err != nil {
		msg.Error = evt.Err.Error()
	}
	if err := o.pub.PublishJSON(protocol.SubjectNarrationProgress, msg); err != nil {
		o.log.Warn("failed to publish progress", slog.String("run_id", evt.RunID), slog.String("error", err.Error()))
	}
}
