// Package worker executes job bodies off the request path on a bounded
// pool, with per-job timeout and cooperative cancellation.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/bricklayers/bricklayd/internal/logger"
	"github.com/bricklayers/bricklayd/pkg/metrics"
)

// Pool runs job bodies on a fixed number of workers. Submission never
// blocks: pending job IDs queue in FIFO order until a worker frees up.
type Pool struct {
	runner  *Runner
	workers int
	metrics metrics.PipelineMetrics

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []string
	closed  bool
	started bool

	wg        sync.WaitGroup
	stoppedCh chan struct{}
}

// NewPool creates a pool of the given width. The runner carries the
// job body; metrics may be nil.
func NewPool(workers int, runner *Runner, m metrics.PipelineMetrics) *Pool {
	if workers <= 0 {
		workers = 1
	}
	p := &Pool{
		runner:    runner,
		workers:   workers,
		metrics:   m,
		stoppedCh: make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Start launches the workers.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	logger.Info("Starting worker pool", "workers", p.workers)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	go func() {
		p.wg.Wait()
		close(p.stoppedCh)
	}()
}

// Submit enqueues a job for execution and returns immediately.
// Returns false if the pool is stopped.
func (p *Pool) Submit(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}

	p.queue = append(p.queue, jobID)
	if p.metrics != nil {
		p.metrics.SetQueuedJobs(len(p.queue))
	}
	p.cond.Signal()
	return true
}

// Queued returns the number of jobs waiting for a worker.
func (p *Pool) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Stop rejects further submissions and waits, up to the given timeout,
// for the workers to drain the queue and finish in-flight jobs. Jobs
// still queued when the timeout expires stay pending in the registry;
// the process is exiting anyway.
func (p *Pool) Stop(timeout time.Duration) {
	p.mu.Lock()
	if !p.started || p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	pending := len(p.queue)
	p.cond.Broadcast()
	p.mu.Unlock()

	logger.Info("Stopping worker pool", "queued", pending)

	select {
	case <-p.stoppedCh:
		logger.Info("Worker pool stopped gracefully")
	case <-time.After(timeout):
		logger.Warn("Worker pool stop timed out")
	}
}

// worker picks queued job IDs in FIFO order and runs them.
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		jobID := p.queue[0]
		p.queue = p.queue[1:]
		if p.metrics != nil {
			p.metrics.SetQueuedJobs(len(p.queue))
		}
		p.mu.Unlock()

		p.runner.Run(ctx, jobID)
	}
}
