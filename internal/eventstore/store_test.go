package eventstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "runs.db")
	}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "ephemeral"})
	if err := es.BeginRun(ctx, Run{RunID: "r"}); err != nil {
		t.Fatalf("begin run: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{RunID: "r", Type: "state"}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if _, err := es.GetRun(ctx, "r"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found in ephemeral mode, got %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "session"})

	if err := es.BeginRun(ctx, Run{RunID: "run-1", InputPath: "input.text", OutputPath: "output.mp3"}); err != nil {
		t.Fatalf("begin run: %v", err)
	}
	run, err := es.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != "running" || run.OutputPath != "output.mp3" || !run.FinishedAt.IsZero() {
		t.Fatalf("unexpected run: %+v", run)
	}

	if err := es.FinishRun(ctx, "run-1", "failed", "synthesize: chunk 1: boom"); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	run, err = es.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if run.Status != "failed" || run.Error != "synthesize: chunk 1: boom" || run.FinishedAt.IsZero() {
		t.Fatalf("unexpected finished run: %+v", run)
	}

	if err := es.FinishRun(ctx, "missing", "done", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := es.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "session"})

	if err := es.BeginRun(ctx, Run{RunID: "run-1"}); err != nil {
		t.Fatalf("begin run: %v", err)
	}
	events := []Event{
		{RunID: "run-1", Type: "state", Stage: "synthesizing", ChunkIndex: -1},
		{RunID: "run-1", Type: "artifact", Stage: "synthesizing", ChunkIndex: 0, Payload: []byte(`{"path":"chunk_0.mp3"}`)},
		{RunID: "run-1", Type: "artifact", Stage: "synthesizing", ChunkIndex: 1},
	}
	for _, evt := range events {
		if err := es.AppendEvent(ctx, evt); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}
	got, err := es.ListRunEvents(ctx, "run-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].ChunkIndex != -1 || got[1].ChunkIndex != 0 || got[2].ChunkIndex != 1 {
		t.Fatalf("events out of order: %+v", got)
	}
	if string(got[1].Payload) != `{"path":"chunk_0.mp3"}` {
		t.Fatalf("unexpected payload: %s", got[1].Payload)
	}

	limited, err := es.ListRunEvents(ctx, "run-1", 2)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestPruneByDaysAndRuns(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "persistent", RetentionDays: 1, MaxRuns: 1})

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.BeginRun(ctx, Run{RunID: "old-run"}); err != nil {
		t.Fatalf("begin run: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{RunID: "old-run", Type: "state"}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	for _, id := range []string{"mid-run", "new-run"} {
		if err := es.BeginRun(ctx, Run{RunID: id}); err != nil {
			t.Fatalf("begin run: %v", err)
		}
		es.clock = func() time.Time { return time.Date(2025, 1, 3, 1, 0, 0, 0, time.UTC) }
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListRunEvents(ctx, "old-run", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatal("expected old run events pruned")
	}
	if _, err := es.GetRun(ctx, "old-run"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old run pruned, got %v", err)
	}
	if _, err := es.GetRun(ctx, "mid-run"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected run beyond max runs pruned, got %v", err)
	}
	if _, err := es.GetRun(ctx, "new-run"); err != nil {
		t.Fatalf("expected newest run kept: %v", err)
	}
}
