// Package transition maintains the classified-frame state machine and
// emits TransitionEvents, matching them against configured rules.
package transition

import (
	"sync/atomic"
	"time"
)

// Classification is the tagged domain of a classified sampled frame.
type Classification struct {
	Kind    Kind
	SlateID string // set only when Kind == Slate
}

// Kind distinguishes the three classification states from spec.md §3.
type Kind int

const (
	Unknown Kind = iota
	Content
	Slate
)

func (k Kind) String() string {
	switch k {
	case Content:
		return "content"
	case Slate:
		return "slate"
	default:
		return "unknown"
	}
}

// Equal reports whether two classifications are the same state, comparing
// slate identity when both are Slate.
func (c Classification) Equal(other Classification) bool {
	if c.Kind != other.Kind {
		return false
	}
	if c.Kind == Slate {
		return c.SlateID == other.SlateID
	}
	return true
}

// Event is emitted when the engine's current classification durably changes.
type Event struct {
	From Classification
	To   Classification
	At   time.Time
}

// State is the snapshot the Observability Server reads through a
// single-writer/multi-reader cell. It never aliases engine-internal memory.
type State struct {
	Current Classification
}

// Engine drives the edge-debouncing state machine described in spec.md
// §4.5. It is single-writer: only Observe (invoked from one goroutine, the
// comparator's consumer) mutates state. Reads go through the atomic
// snapshot cell.
type Engine struct {
	stableFrames int

	current   Classification
	candidate Classification
	streak    int

	snapshot atomic.Pointer[State]

	onEvent func(Event)
}

// New builds an Engine requiring stableFrames consecutive matching samples
// before a classification is considered durable. onEvent is invoked
// synchronously from Observe whenever a TransitionEvent fires; callers must
// keep it non-blocking (the Supervisor wires it to the Action Executor's
// non-blocking Submit).
func New(stableFrames int, onEvent func(Event)) *Engine {
	e := &Engine{
		stableFrames: stableFrames,
		current:      Classification{Kind: Unknown},
		candidate:    Classification{Kind: Unknown},
		onEvent:      onEvent,
	}
	e.snapshot.Store(&State{Current: e.current})
	return e
}

// Observe feeds one classified sampled frame into the state machine.
func (e *Engine) Observe(c Classification) {
	if c.Equal(e.candidate) {
		e.streak++
	} else {
		e.candidate = c
		e.streak = 1
	}

	if e.streak == e.stableFrames && !e.candidate.Equal(e.current) {
		prev := e.current
		e.current = e.candidate
		e.snapshot.Store(&State{Current: e.current})

		if prev.Kind != Unknown && e.onEvent != nil {
			e.onEvent(Event{From: prev, To: e.current, At: time.Now()})
		}
	}
}

// Snapshot returns the current runtime state for the Observability Server.
func (e *Engine) Snapshot() State {
	return *e.snapshot.Load()
}
