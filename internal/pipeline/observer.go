package pipeline

import (
	"context"
	"time"
)

// EventType distinguishes observer events.
type EventType string

const (
	EventState    EventType = "state"
	EventArtifact EventType = "artifact"
)

// Event reports progress of a run. Artifact is set for EventArtifact; Err is
// set when State is Failed.
type Event struct {
	RunID      string
	Type       EventType
	State      State
	ChunkCount int
	Artifact   *Artifact
	Err        error
	Time       time.Time
}

// Observer receives events synchronously, in order, from the driver.
type Observer interface {
	Observe(ctx context.Context, evt Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, evt Event)

func (f ObserverFunc) Observe(ctx context.Context, evt Event) { f(ctx, evt) }

// Observers fans an event out to each non-nil observer.
type Observers []Observer

func (o Observers) Observe(ctx context.Context, evt Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ctx, evt)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Event) {}
