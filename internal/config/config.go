package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	StdoutTraces   bool   `yaml:"stdout_traces"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	EnvFile     string           `yaml:"env_file"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Input       InputConfig      `yaml:"input"`
	Output      OutputConfig     `yaml:"output"`
	Segmenter   SegmenterConfig  `yaml:"segmenter"`
	Synth       SynthConfig      `yaml:"synth"`
	Media       MediaConfig      `yaml:"media"`
	Tempo       TempoConfig      `yaml:"tempo"`
	Scratch     ScratchConfig    `yaml:"scratch"`
	Service     ServiceConfig    `yaml:"service"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRuns       int    `yaml:"max_runs"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
	PruneSchedule string `yaml:"prune_schedule"`
}

type InputConfig struct {
	Path string `yaml:"path"`
}

type OutputConfig struct {
	Path string `yaml:"path"`
}

type SegmenterConfig struct {
	MaxLength int `yaml:"max_length"`
}

type SynthConfig struct {
	Mode        string `yaml:"mode"` // exec, mock
	Command     string `yaml:"command"`
	Language    string `yaml:"language"`
	TimeoutMS   int    `yaml:"timeout_ms"`
	Concurrency int    `yaml:"concurrency"`
}

type MediaConfig struct {
	Mode      string `yaml:"mode"` // exec, mock
	Command   string `yaml:"command"`
	TimeoutMS int    `yaml:"timeout_ms"`
	Probe     bool   `yaml:"probe"`
}

type TempoConfig struct {
	Enabled bool    `yaml:"enabled"`
	Speed   float64 `yaml:"speed"`
}

type ScratchConfig struct {
	Root string `yaml:"root"`
}

type ServiceConfig struct {
	Enabled bool `yaml:"enabled"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-narrator",
		Environment: "development",
		EnvFile:     ".env",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			LogFormat:      "json",
			OTLPInsecure:   true,
			PrometheusBind: "",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/narrator-runs.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxRuns:       1000,
			PruneSchedule: "@daily",
		},
		Input: InputConfig{
			Path: "input.text",
		},
		Output: OutputConfig{
			Path: "output.mp3",
		},
		Segmenter: SegmenterConfig{
			MaxLength: 200,
		},
		Synth: SynthConfig{
			Mode:        "exec",
			Command:     "gtts-cli",
			Language:    "th",
			TimeoutMS:   120000,
			Concurrency: 1,
		},
		Media: MediaConfig{
			Mode:      "exec",
			Command:   "ffmpeg",
			TimeoutMS: 600000,
			Probe:     true,
		},
		Tempo: TempoConfig{
			Enabled: true,
			Speed:   1.5,
		},
		Scratch: ScratchConfig{
			Root: "./tts_temp",
		},
		Service: ServiceConfig{
			Enabled: true,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	overrideString(&cfg.EnvFile, "NARRATOR_ENV_FILE")
	if err := loadEnvFile(cfg.EnvFile); err != nil {
		return cfg, err
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadEnvFile populates the process environment from a dotenv file. Variables
// already present in the environment are left untouched. A missing file is not
// an error.
func loadEnvFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "NARRATOR_RUNTIME_NAME")
	overrideString(&cfg.Environment, "NARRATOR_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "NARRATOR_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "NARRATOR_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "NARRATOR_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.LogFormat, "NARRATOR_TELEMETRY_LOG_FORMAT")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "NARRATOR_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "NARRATOR_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTraces, "NARRATOR_TELEMETRY_STDOUT_TRACES")
	overrideString(&cfg.Telemetry.PrometheusBind, "NARRATOR_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "NARRATOR_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "NARRATOR_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "NARRATOR_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "NARRATOR_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "NARRATOR_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "NARRATOR_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "NARRATOR_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "NARRATOR_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "NARRATOR_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "NARRATOR_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "NARRATOR_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "NARRATOR_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxRuns, "NARRATOR_EVENT_STORE_MAX_RUNS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "NARRATOR_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.EventStore.PruneSchedule, "NARRATOR_EVENT_STORE_PRUNE_SCHEDULE")
	overrideString(&cfg.Input.Path, "TTS_INPUT_PATH")
	overrideString(&cfg.Input.Path, "NARRATOR_INPUT_PATH")
	overrideString(&cfg.Output.Path, "TTS_OUTPUT_PATH")
	overrideString(&cfg.Output.Path, "NARRATOR_OUTPUT_PATH")
	overrideInt(&cfg.Segmenter.MaxLength, "NARRATOR_SEGMENTER_MAX_LENGTH")
	overrideString(&cfg.Synth.Mode, "NARRATOR_SYNTH_MODE")
	overrideString(&cfg.Synth.Command, "NARRATOR_SYNTH_COMMAND")
	overrideString(&cfg.Synth.Language, "NARRATOR_SYNTH_LANGUAGE")
	overrideInt(&cfg.Synth.TimeoutMS, "NARRATOR_SYNTH_TIMEOUT_MS")
	overrideInt(&cfg.Synth.Concurrency, "NARRATOR_SYNTH_CONCURRENCY")
	overrideString(&cfg.Media.Mode, "NARRATOR_MEDIA_MODE")
	overrideString(&cfg.Media.Command, "NARRATOR_MEDIA_COMMAND")
	overrideInt(&cfg.Media.TimeoutMS, "NARRATOR_MEDIA_TIMEOUT_MS")
	overrideBool(&cfg.Media.Probe, "NARRATOR_MEDIA_PROBE")
	overrideBool(&cfg.Tempo.Enabled, "NARRATOR_TEMPO_ENABLED")
	overrideFloat(&cfg.Tempo.Speed, "TTS_SPEED")
	overrideFloat(&cfg.Tempo.Speed, "NARRATOR_TEMPO_SPEED")
	overrideString(&cfg.Scratch.Root, "NARRATOR_SCRATCH_ROOT")
	overrideBool(&cfg.Service.Enabled, "NARRATOR_SERVICE_ENABLED")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	switch strings.ToLower(cfg.Telemetry.LogFormat) {
	case "json", "text":
	default:
		return errors.New("telemetry.log_format must be one of json|text")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Input.Path == "" {
		return errors.New("input.path must not be empty")
	}
	if cfg.Output.Path == "" {
		return errors.New("output.path must not be empty")
	}
	if cfg.Segmenter.MaxLength <= 0 {
		return errors.New("segmenter.max_length must be positive")
	}
	switch cfg.Synth.Mode {
	case "mock", "exec":
	default:
		return errors.New("synth.mode must be one of mock|exec")
	}
	if cfg.Synth.Mode == "exec" && strings.TrimSpace(cfg.Synth.Command) == "" {
		return errors.New("synth.command must be set when mode=exec")
	}
	if cfg.Synth.Language == "" {
		return errors.New("synth.language must not be empty")
	}
	if cfg.Synth.TimeoutMS < 0 {
		return errors.New("synth.timeout_ms must be >= 0")
	}
	if cfg.Synth.Concurrency <= 0 {
		return errors.New("synth.concurrency must be >= 1")
	}
	switch cfg.Media.Mode {
	case "mock", "exec":
	default:
		return errors.New("media.mode must be one of mock|exec")
	}
	if cfg.Media.Mode == "exec" && strings.TrimSpace(cfg.Media.Command) == "" {
		return errors.New("media.command must be set when mode=exec")
	}
	if cfg.Media.TimeoutMS < 0 {
		return errors.New("media.timeout_ms must be >= 0")
	}
	if cfg.Tempo.Enabled {
		if cfg.Tempo.Speed <= 0 || math.IsNaN(cfg.Tempo.Speed) || math.IsInf(cfg.Tempo.Speed, 0) {
			return errors.New("tempo.speed must be a positive number")
		}
	}
	if cfg.Scratch.Root == "" {
		return errors.New("scratch.root must not be empty")
	}
	return nil
}
