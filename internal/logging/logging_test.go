package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/robfig/cron/v3"
)

func TestNewJSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, config.TelemetryConfig{LogLevel: "info"})
	log.Info("hello", slog.String("component", "test"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "hello" || entry["component"] != "test" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewTextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, config.TelemetryConfig{LogLevel: "warn", LogFormat: "text"})
	log.Info("hidden")
	log.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "msg=shown") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCronLoggerSatisfiesCron(t *testing.T) {
	var buf bytes.Buffer
	var logger cron.Logger = &CronLogger{Logger: New(&buf, config.TelemetryConfig{LogLevel: "debug"})}
	logger.Error(errors.New("boom"), "job failed", "job", "prune")
	if !strings.Contains(buf.String(), `"error":"boom"`) || !strings.Contains(buf.String(), `"job":"prune"`) {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
