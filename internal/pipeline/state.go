package pipeline

import "fmt"

// State is the position of a run in its lifecycle.
type State int

const (
	Idle State = iota
	Segmenting
	Synthesizing
	Concatenating
	AdjustingTempo
	Done
	Failed
)

var stateNames = map[State]string{
	Idle:           "idle",
	Segmenting:     "segmenting",
	Synthesizing:   "synthesizing",
	Concatenating:  "concatenating",
	AdjustingTempo: "adjusting_tempo",
	Done:           "done",
	Failed:         "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// next lists forward transitions. Failed is reachable from every
// non-terminal state and is handled in CanTransition.
var next = map[State][]State{
	Idle:           {Segmenting},
	Segmenting:     {Synthesizing},
	Synthesizing:   {Concatenating},
	Concatenating:  {AdjustingTempo, Done},
	AdjustingTempo: {Done},
}

// CanTransition reports whether s may move to to.
func (s State) CanTransition(to State) bool {
	if s.Terminal() {
		return false
	}
	if to == Failed {
		return true
	}
	for _, candidate := range next[s] {
		if candidate == to {
			return true
		}
	}
	return false
}
