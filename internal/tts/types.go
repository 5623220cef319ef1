package tts

import (
	"context"
	"fmt"
)

// SynthRequest describes one synthesis call. Text is passed by file so that
// the content never travels through a command line.
type SynthRequest struct {
	TextPath   string
	Language   string
	OutputPath string
}

// Synthesizer is the contract for producing one audio file from one text file.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) error
}

// CommandError reports a non-zero exit from an external engine together with
// whatever it wrote to stderr.
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

// Diagnostic returns the engine's own error output.
func (e *CommandError) Diagnostic() string { return e.Stderr }
