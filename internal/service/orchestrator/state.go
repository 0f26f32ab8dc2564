package orchestrator

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a run.
type State int

const (
	// StateIdle - Run created, nothing sent yet.
	StateIdle State = iota
	// StateUploading - Audio is being uploaded and the job submitted.
	StateUploading
	// StateProcessing - Job submitted, polling for a terminal status.
	StateProcessing
	// StateCompleted - Result available.
	StateCompleted
	// StateError - Run failed.
	StateError
	// StateCancelled - Caller stopped observing. The remote job is untouched.
	StateCancelled
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateUploading:
		return "uploading"
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateError:
		return "error"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// IsTerminal returns true for completed, error and cancelled.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateError || s == StateCancelled
}

// ErrInvalidTransition is returned for a transition the state machine does
// not allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// transitions lists the allowed moves. idle → processing resumes an existing
// job; idle → error is a validation failure.
var transitions = map[State][]State{
	StateIdle:       {StateUploading, StateProcessing, StateError, StateCancelled},
	StateUploading:  {StateProcessing, StateError, StateCancelled},
	StateProcessing: {StateCompleted, StateError, StateCancelled},
}

// Lifecycle manages the state machine for a single run.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	idle → uploading → processing → completed
//	  │        │            │
//	  │        └────────────┴──→ error
//	  │
//	  └── (resume) ──→ processing
//
// Any non-terminal state may move to cancelled.
type Lifecycle struct {
	mu    sync.RWMutex
	runId string
	state State
}

// NewLifecycle creates a new run lifecycle in idle state.
func NewLifecycle(runId string) *Lifecycle {
	return &Lifecycle{
		runId: runId,
		state: StateIdle,
	}
}

// RunId returns the run ID.
func (l *Lifecycle) RunId() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.runId
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// IsTerminal returns true once the run reached completed, error or cancelled.
func (l *Lifecycle) IsTerminal() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.IsTerminal()
}

// Transition moves to the given state if allowed.
func (l *Lifecycle) Transition(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, allowed := range transitions[l.state] {
		if allowed == to {
			l.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s → %s", ErrInvalidTransition, l.state, to)
}

// Cancel moves the run to cancelled.
// Returns true if the run was cancelled, false if already in a terminal state.
func (l *Lifecycle) Cancel() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateCancelled
	return true
}
