package job

import "errors"

var (
	// ErrJobNotFound indicates a registry miss.
	ErrJobNotFound = errors.New("job not found")

	// ErrNotCancellable indicates a cancellation request against a job
	// already in a terminal state.
	ErrNotCancellable = errors.New("job is not cancellable")

	// ErrInvalidTransition indicates a state change not present in the
	// transition table. The job is left unchanged.
	ErrInvalidTransition = errors.New("invalid state transition")
)
