// Package sweeper implements the retention task that periodically
// deletes aged upload and output files.
package sweeper

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/bricklayers/bricklayd/internal/logger"
	"github.com/bricklayers/bricklayd/internal/telemetry"
	"github.com/bricklayers/bricklayd/pkg/metrics"
)

// Sweeper walks the upload and output directories every interval and
// deletes regular files whose modification time is older than the
// retention window. Per-file failures are logged and ignored; one
// failing file never stops a sweep.
type Sweeper struct {
	dirs      []string
	retention time.Duration
	interval  time.Duration
	metrics   metrics.SweeperMetrics

	stopCh    chan struct{}
	stoppedCh chan struct{}
	started   bool
}

// Result summarizes one sweep.
type Result struct {
	FilesDeleted int
	BytesFreed   int64
	Errors       int
}

// New creates a Sweeper over the given directories. metrics may be nil.
func New(dirs []string, retention, interval time.Duration, m metrics.SweeperMetrics) *Sweeper {
	return &Sweeper{
		dirs:      dirs,
		retention: retention,
		interval:  interval,
		metrics:   m,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start launches the periodic sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	if s.started {
		return
	}
	s.started = true

	logger.Info("Starting retention sweeper",
		"retention", s.retention.String(),
		"interval", s.interval.String())

	go s.loop(ctx)
}

// Stop terminates the sweep loop. It does not interrupt a sweep already
// in progress; sweeps are short and best-effort.
func (s *Sweeper) Stop() {
	if !s.started {
		return
	}
	close(s.stopCh)
	<-s.stoppedCh
	logger.Info("Retention sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.stoppedCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep across all directories and reports
// the aggregate result.
func (s *Sweeper) RunOnce(ctx context.Context) Result {
	cutoff := time.Now().Add(-s.retention)

	var total Result
	for _, dir := range s.dirs {
		res := s.sweepDir(ctx, dir, cutoff)
		total.FilesDeleted += res.FilesDeleted
		total.BytesFreed += res.BytesFreed
		total.Errors += res.Errors
	}

	if s.metrics != nil {
		s.metrics.RecordSweep(total.FilesDeleted, total.BytesFreed, total.Errors)
	}

	if total.FilesDeleted > 0 || total.Errors > 0 {
		logger.Info("Retention sweep finished",
			"files_deleted", total.FilesDeleted,
			"bytes_freed", total.BytesFreed,
			"errors", total.Errors)
	}

	return total
}

// sweepDir deletes aged regular files one level deep in dir.
func (s *Sweeper) sweepDir(ctx context.Context, dir string, cutoff time.Time) Result {
	ctx, span := telemetry.StartSweepSpan(ctx, dir)
	defer span.End()

	var res Result

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.WarnCtx(ctx, "Failed to read directory during sweep", logger.KeyFile, dir, logger.Err(err))
		res.Errors++
		return res
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			res.Errors++
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				// Lost a race with the download post-cleanup; the file
				// is gone either way
				continue
			}
			logger.WarnCtx(ctx, "Failed to delete aged file", logger.KeyFile, path, logger.Err(err))
			res.Errors++
			continue
		}

		res.FilesDeleted++
		res.BytesFreed += info.Size()
		logger.DebugCtx(ctx, "Deleted aged file",
			logger.KeyFile, path,
			logger.KeySize, info.Size(),
			"age", time.Since(info.ModTime()).String())
	}

	telemetry.SetAttributes(ctx,
		telemetry.SweepDeleted(res.FilesDeleted),
		telemetry.SweepFreed(res.BytesFreed))

	return res
}
