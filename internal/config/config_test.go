package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("NARRATOR_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Input.Path != "input.text" {
		t.Fatalf("expected default input path, got %q", cfg.Input.Path)
	}
	if cfg.Output.Path != "output.mp3" {
		t.Fatalf("expected default output path, got %q", cfg.Output.Path)
	}
	if cfg.Tempo.Speed != 1.5 {
		t.Fatalf("expected default speed 1.5, got %v", cfg.Tempo.Speed)
	}
	if cfg.Segmenter.MaxLength != 200 {
		t.Fatalf("expected default max length 200, got %d", cfg.Segmenter.MaxLength)
	}
	if cfg.Synth.Command != "gtts-cli" || cfg.Synth.Language != "th" {
		t.Fatalf("unexpected synth defaults: %+v", cfg.Synth)
	}
}

func TestLegacyEnvOverrides(t *testing.T) {
	t.Setenv("NARRATOR_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("TTS_INPUT_PATH", "book.txt")
	t.Setenv("TTS_OUTPUT_PATH", "book.mp3")
	t.Setenv("TTS_SPEED", "2.0")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Input.Path != "book.txt" {
		t.Fatalf("expected input override, got %q", cfg.Input.Path)
	}
	if cfg.Output.Path != "book.mp3" {
		t.Fatalf("expected output override, got %q", cfg.Output.Path)
	}
	if cfg.Tempo.Speed != 2.0 {
		t.Fatalf("expected speed override, got %v", cfg.Tempo.Speed)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NARRATOR_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("NARRATOR_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("NARRATOR_BUS_USERNAME", "alice")
	t.Setenv("NARRATOR_BUS_PASSWORD", "secret")
	t.Setenv("NARRATOR_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("NARRATOR_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("NARRATOR_EVENT_STORE_MAX_RUNS", "12")
	t.Setenv("NARRATOR_SEGMENTER_MAX_LENGTH", "150")
	t.Setenv("NARRATOR_SYNTH_MODE", "mock")
	t.Setenv("NARRATOR_SYNTH_CONCURRENCY", "4")
	t.Setenv("NARRATOR_MEDIA_COMMAND", "/usr/local/bin/ffmpeg -hide_banner")
	t.Setenv("NARRATOR_TEMPO_ENABLED", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.EventStore.Path != "./tmp.db" || cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store overrides, got %+v", cfg.EventStore)
	}
	if cfg.EventStore.MaxRuns != 12 {
		t.Fatalf("expected max runs override, got %d", cfg.EventStore.MaxRuns)
	}
	if cfg.Segmenter.MaxLength != 150 {
		t.Fatalf("expected max length override, got %d", cfg.Segmenter.MaxLength)
	}
	if cfg.Synth.Mode != "mock" || cfg.Synth.Concurrency != 4 {
		t.Fatalf("expected synth overrides, got %+v", cfg.Synth)
	}
	if cfg.Media.Command != "/usr/local/bin/ffmpeg -hide_banner" {
		t.Fatalf("expected media command override, got %q", cfg.Media.Command)
	}
	if cfg.Tempo.Enabled {
		t.Fatal("expected tempo disabled")
	}
}

func TestEnvFileDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	data := "TTS_INPUT_PATH=from-file.txt\nTTS_OUTPUT_PATH=from-file.mp3\n"
	if err := os.WriteFile(envPath, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NARRATOR_ENV_FILE", envPath)
	t.Setenv("TTS_OUTPUT_PATH", "from-env.mp3")
	// godotenv writes into the process environment; register cleanup for the key it sets.
	t.Setenv("TTS_INPUT_PATH", "")
	os.Unsetenv("TTS_INPUT_PATH")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Input.Path != "from-file.txt" {
		t.Fatalf("expected input from env file, got %q", cfg.Input.Path)
	}
	if cfg.Output.Path != "from-env.mp3" {
		t.Fatalf("expected environment to win over env file, got %q", cfg.Output.Path)
	}
}

func TestLoadYAML(t *testing.T) {
	t.Setenv("NARRATOR_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	path := filepath.Join(t.TempDir(), "narrator.yaml")
	data := `output:
  path: chapter.mp3
segmenter:
  max_length: 120
tempo:
  speed: 1.25
synth:
  mode: mock
  language: en
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Output.Path != "chapter.mp3" || cfg.Segmenter.MaxLength != 120 || cfg.Tempo.Speed != 1.25 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Synth.Language != "en" || cfg.Synth.Mode != "mock" {
		t.Fatalf("unexpected synth config: %+v", cfg.Synth)
	}
	if cfg.Media.Command != "ffmpeg" {
		t.Fatalf("expected untouched default media command, got %q", cfg.Media.Command)
	}
}

func TestValidateRejectsBadSpeed(t *testing.T) {
	cfg := Default()
	cfg.Tempo.Speed = 0
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for zero speed")
	}
	cfg.Tempo.Enabled = false
	if err := validate(cfg); err != nil {
		t.Fatalf("speed should be ignored when tempo disabled: %v", err)
	}
}

func TestValidateRejectsUnknownModes(t *testing.T) {
	cfg := Default()
	cfg.Synth.Mode = "cloud"
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for unknown synth mode")
	}
	cfg = Default()
	cfg.Media.Mode = "sox"
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for unknown media mode")
	}
	cfg = Default()
	cfg.Synth.Concurrency = 0
	if err := validate(cfg); err == nil {
		t.Fatal("expected error for zero concurrency")
	}
}
