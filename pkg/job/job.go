// Package job holds the in-memory job registry and its state machine.
//
// The registry is the single authoritative table of jobs. It is
// non-durable: all job records are lost on restart, while on-disk files
// are reclaimed by the retention sweeper.
package job

import (
	"time"
)

// State is a job lifecycle state.
type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCancelling State = "cancelling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
	StateTimeout    State = "timeout"
)

// Priority orders jobs for human readers; the scheduler runs FIFO and
// records it without reordering.
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityNormal Priority = 1
	PriorityLow    Priority = 2
)

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateTimeout:
		return true
	}
	return false
}

// validTransitions is the full transition table. Any (from, to) pair
// not listed here is rejected without mutation.
var validTransitions = map[State][]State{
	StatePending:    {StateProcessing, StateCancelled},
	StateProcessing: {StateCompleted, StateCancelling, StateFailed, StateTimeout},
	StateCancelling: {StateCancelled},
}

func transitionAllowed(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is a snapshot of one upload-to-download unit of work. Snapshots
// are copies; all mutation goes through the Registry.
type Job struct {
	ID                  string
	Filename            string
	StartAtLayer        int
	ExtrusionMultiplier float64
	Priority            Priority

	State        State
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ErrorMessage string

	UploadPath string
	OutputPath string

	CancelRequested bool
}

// CancelOutcome reports what a cancellation request did.
type CancelOutcome int

const (
	// CancelledImmediately means the job was still pending and moved
	// straight to cancelled.
	CancelledImmediately CancelOutcome = iota

	// Cancelling means the job was processing; the worker will observe
	// the request at its next checkpoint.
	Cancelling
)
