package pipeline

import (
	"errors"
	"fmt"
)

// Stage names a pipeline step in errors, logs and events.
type Stage string

const (
	StageSegment    Stage = "segment"
	StageSynthesize Stage = "synthesize"
	StageConcat     Stage = "concat"
	StageTempo      Stage = "tempo"
)

// Error kinds, matched with errors.Is against a *StageError.
var (
	ErrSegmentation  = errors.New("segmentation failed")
	ErrSynthesis     = errors.New("synthesis failed")
	ErrConcatenation = errors.New("concatenation failed")
	ErrTempo         = errors.New("tempo adjustment failed")
)

// StageError is the failure of one stage. Diagnostic holds the external
// tool's error output verbatim when there is one.
type StageError struct {
	Stage      Stage
	ChunkIndex int
	Diagnostic string
	Err        error
}

func newStageError(stage Stage, chunk int, err error) *StageError {
	se := &StageError{Stage: stage, ChunkIndex: chunk, Err: err}
	var d interface{ Diagnostic() string }
	if errors.As(err, &d) {
		se.Diagnostic = d.Diagnostic()
	}
	return se
}

func (e *StageError) Error() string {
	if e.ChunkIndex >= 0 {
		return fmt.Sprintf("%s: chunk %d: %v", e.Stage, e.ChunkIndex, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() []error {
	return []error{e.kind(), e.Err}
}

func (e *StageError) kind() error {
	switch e.Stage {
	case StageSegment:
		return ErrSegmentation
	case StageSynthesize:
		return ErrSynthesis
	case StageConcat:
		return ErrConcatenation
	case StageTempo:
		return ErrTempo
	}
	return nil
}

// Fatal reports whether err invalidates the primary output. Tempo failures
// leave the merged audio in place.
func Fatal(err error) bool {
	return err != nil && !errors.Is(err, ErrTempo)
}
