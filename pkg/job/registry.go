package job

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// cancelledByUser is recorded when a pending job is cancelled before a
// worker picks it up.
const cancelledByUser = "Cancelled by user"

// Registry is the concurrent, in-memory job table.
//
// All reads return snapshots; callers never observe a half-applied
// mutation. The state-machine check and the write happen under one
// lock, so a transition either fully applies or leaves the job
// untouched.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*record
}

type record struct {
	job Job

	// cancel is closed exactly once when cancellation is requested.
	// Workers select on it at their checkpoints.
	cancel     chan struct{}
	cancelOnce sync.Once
}

// RegisterParams carries everything needed to create a job.
type RegisterParams struct {
	ID                  string
	Filename            string
	StartAtLayer        int
	ExtrusionMultiplier float64
	Priority            Priority
	UploadPath          string
	OutputPath          string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*record)}
}

// Register inserts a new job in state pending and returns its snapshot.
func (r *Registry) Register(p RegisterParams) Job {
	now := time.Now()
	j := Job{
		ID:                  p.ID,
		Filename:            p.Filename,
		StartAtLayer:        p.StartAtLayer,
		ExtrusionMultiplier: p.ExtrusionMultiplier,
		Priority:            p.Priority,
		State:               StatePending,
		CreatedAt:           now,
		UpdatedAt:           now,
		UploadPath:          p.UploadPath,
		OutputPath:          p.OutputPath,
	}

	r.mu.Lock()
	r.jobs[p.ID] = &record{job: j, cancel: make(chan struct{})}
	r.mu.Unlock()

	return j
}

// Get returns a snapshot of the job, or ErrJobNotFound.
func (r *Registry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return rec.job, nil
}

// List returns snapshots of all jobs ordered by creation time.
func (r *Registry) List() []Job {
	r.mu.RLock()
	out := make([]Job, 0, len(r.jobs))
	for _, rec := range r.jobs {
		out = append(out, rec.job)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Transition atomically moves a job to a new state, records the
// optional error message, and bumps updated_at. Transitions not in the
// table fail with ErrInvalidTransition and leave the job unchanged.
func (r *Registry) Transition(id string, to State, errorMessage string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}

	from := rec.job.State
	if !transitionAllowed(from, to) {
		return Job{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	rec.job.State = to
	rec.job.UpdatedAt = time.Now()
	if errorMessage != "" {
		rec.job.ErrorMessage = errorMessage
	}

	return rec.job, nil
}

// RequestCancel marks the job for cancellation.
//
// A pending job moves straight to cancelled; a processing job moves to
// cancelling and the worker finishes the cancellation at its next
// checkpoint. Jobs in a terminal state report ErrNotCancellable.
func (r *Registry) RequestCancel(id string) (Job, CancelOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok {
		return Job{}, 0, ErrJobNotFound
	}

	if rec.job.State.Terminal() || rec.job.State == StateCancelling {
		return Job{}, 0, fmt.Errorf("%w: state is %s", ErrNotCancellable, rec.job.State)
	}

	rec.job.CancelRequested = true
	rec.cancelOnce.Do(func() { close(rec.cancel) })
	rec.job.UpdatedAt = time.Now()

	switch rec.job.State {
	case StatePending:
		rec.job.State = StateCancelled
		rec.job.ErrorMessage = cancelledByUser
		return rec.job, CancelledImmediately, nil
	default: // StateProcessing
		rec.job.State = StateCancelling
		return rec.job, Cancelling, nil
	}
}

// CancelSignal returns a channel closed when cancellation of the job
// has been requested. Workers select on it alongside their line
// checkpoints.
func (r *Registry) CancelSignal(id string) (<-chan struct{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return rec.cancel, nil
}
