package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/media"
	"github.com/loqalabs/loqa-narrator/internal/pipeline"
	"github.com/loqalabs/loqa-narrator/internal/tts"
)

// NewDriver builds a pipeline driver with the adapters selected by cfg.
func NewDriver(cfg config.Config, logger *slog.Logger, options ...pipeline.Option) (*pipeline.Driver, error) {
	var (
		synth tts.Synthesizer
		ext   = ".mp3"
		err   error
	)
	switch cfg.Synth.Mode {
	case "mock":
		synth = tts.NewMockSynth(0)
		ext = ".wav"
	case "exec":
		if synth, err = tts.NewExecSynth(cfg.Synth.Command); err != nil {
			return nil, fmt.Errorf("synth: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown synth mode %q", cfg.Synth.Mode)
	}

	var proc media.Processor
	switch cfg.Media.Mode {
	case "mock":
		if cfg.Synth.Mode != "mock" {
			return nil, errors.New("media.mode=mock only handles synth.mode=mock output")
		}
		proc = media.NewWAVProcessor()
	case "exec":
		if proc, err = media.NewFFmpeg(cfg.Media.Command); err != nil {
			return nil, fmt.Errorf("media: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown media mode %q", cfg.Media.Mode)
	}

	if cfg.Media.Probe {
		options = append([]pipeline.Option{pipeline.WithProbe(media.Duration)}, options...)
	}

	return pipeline.NewDriver(synth, proc, pipeline.Options{
		MaxLength:    cfg.Segmenter.MaxLength,
		Language:     cfg.Synth.Language,
		Speed:        cfg.Tempo.Speed,
		TempoEnabled: cfg.Tempo.Enabled,
		ScratchRoot:  cfg.Scratch.Root,
		SynthTimeout: time.Duration(cfg.Synth.TimeoutMS) * time.Millisecond,
		MediaTimeout: time.Duration(cfg.Media.TimeoutMS) * time.Millisecond,
		Concurrency:  cfg.Synth.Concurrency,
		ArtifactExt:  ext,
	}, logger, options...)
}
