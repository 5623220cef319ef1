// Package media wraps the stream processor used to join synthesized audio and
// to derive tempo-adjusted copies.
package media

import (
	"context"
	"fmt"
)

// ConcatRequest joins every file listed in ManifestPath, in order, into
// OutputPath without re-encoding.
type ConcatRequest struct {
	ManifestPath string
	OutputPath   string
}

// TempoRequest writes InputPath to OutputPath with playback rate scaled by Speed.
type TempoRequest struct {
	InputPath  string
	Speed      float64
	OutputPath string
}

// Processor is the stream-processing service.
type Processor interface {
	Concat(ctx context.Context, req ConcatRequest) error
	Tempo(ctx context.Context, req TempoRequest) error
}

// CommandError reports a failed processor invocation with its stderr.
type CommandError struct {
	Command string
	Err     error
	Stderr  string
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s failed: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s failed: %v: %s", e.Command, e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error { return e.Err }

func (e *CommandError) Diagnostic() string { return e.Stderr }
