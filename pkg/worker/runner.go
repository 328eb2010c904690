package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bricklayers/bricklayd/internal/logger"
	"github.com/bricklayers/bricklayd/internal/telemetry"
	"github.com/bricklayers/bricklayd/pkg/bricklayers"
	"github.com/bricklayers/bricklayd/pkg/filestore"
	"github.com/bricklayers/bricklayd/pkg/job"
	"github.com/bricklayers/bricklayd/pkg/metrics"
)

// cancelCheckLines is how often, in emitted lines, the job body checks
// for a cancellation request.
const cancelCheckLines = 1000

// errCancelled aborts the processing stream when a cancel request is
// observed at a checkpoint.
var errCancelled = errors.New("cancelled at checkpoint")

// Runner executes one job body: stream the upload through the
// processor into the output file, honoring cancellation and recording
// the terminal state on the registry.
type Runner struct {
	registry *job.Registry
	timeout  time.Duration
	metrics  metrics.PipelineMetrics
}

// NewRunner creates a Runner. metrics may be nil.
func NewRunner(registry *job.Registry, timeout time.Duration, m metrics.PipelineMetrics) *Runner {
	return &Runner{registry: registry, timeout: timeout, metrics: m}
}

// Run executes the job under the configured deadline.
//
// The body runs in its own goroutine; Run waits for it or for the
// deadline, whichever comes first. On deadline expiry the job is moved
// to timeout and Run returns, freeing the worker slot. The body keeps
// running until its next file operation completes, and its late
// terminal transition is rejected by the registry's state machine.
func (r *Runner) Run(ctx context.Context, jobID string) {
	// A cancel request may have won the race while the job was queued
	if _, err := r.registry.Transition(jobID, job.StateProcessing, ""); err != nil {
		logger.DebugCtx(ctx, "Skipping job not in pending state", logger.JobID(jobID), logger.Err(err))
		return
	}

	ctx, span := telemetry.StartJobSpan(ctx, "job.process", jobID)
	defer span.End()

	if r.metrics != nil {
		r.metrics.JobStarted()
		defer r.metrics.JobEnded()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.process(ctx, jobID)
	}()

	select {
	case <-done:
	case <-time.After(r.timeout):
		msg := fmt.Sprintf("Processing timed out after %d seconds", int(r.timeout.Seconds()))
		if _, err := r.registry.Transition(jobID, job.StateTimeout, msg); err != nil {
			// The body finished in the same instant; its result stands
			logger.DebugCtx(ctx, "Timeout lost race with completion", logger.JobID(jobID))
			return
		}
		if r.metrics != nil {
			r.metrics.RecordJobFinished(string(job.StateTimeout))
		}
		logger.ErrorCtx(ctx, "Processing timed out",
			logger.JobID(jobID),
			"timeout_seconds", int(r.timeout.Seconds()))
	}
}

// process streams the job's upload through the processor.
func (r *Runner) process(ctx context.Context, jobID string) {
	j, err := r.registry.Get(jobID)
	if err != nil {
		logger.ErrorCtx(ctx, "Job disappeared from registry", logger.JobID(jobID), logger.Err(err))
		return
	}

	cancelSignal, err := r.registry.CancelSignal(jobID)
	if err != nil {
		return
	}

	start := time.Now()
	inputSize := int64(0)
	if info, err := os.Stat(j.UploadPath); err == nil {
		inputSize = info.Size()
	}

	logger.InfoCtx(ctx, "Processing started",
		logger.JobID(jobID),
		logger.KeyFilename, j.Filename,
		"input_size_bytes", inputSize,
		"start_at_layer", j.StartAtLayer,
		"extrusion_multiplier", j.ExtrusionMultiplier)

	stats, err := r.runProcessor(j, cancelSignal)
	switch {
	case errors.Is(err, errCancelled):
		r.finishCancelled(ctx, j, "Cancelled by user during processing")
		return
	case err != nil:
		r.finishFailed(ctx, j, err)
		return
	}

	// Final check before marking complete: a request that arrived after
	// the last checkpoint must still win
	select {
	case <-cancelSignal:
		r.finishCancelled(ctx, j, "Cancelled by user")
		return
	default:
	}

	if _, err := r.registry.Transition(jobID, job.StateCompleted, ""); err != nil {
		r.finishRejectedCompletion(ctx, j, err)
		return
	}

	outputSize := int64(0)
	if info, err := os.Stat(j.OutputPath); err == nil {
		outputSize = info.Size()
	}

	duration := time.Since(start)
	if r.metrics != nil {
		r.metrics.RecordJobFinished(string(job.StateCompleted))
		r.metrics.RecordProcessingDuration(duration)
		r.metrics.RecordOutputSize(outputSize)
	}
	telemetry.SetAttributes(ctx,
		telemetry.FileSize(outputSize),
		telemetry.LineCount(stats.Lines),
		telemetry.LayerCount(stats.Layers))

	sizeChangePercent := 0.0
	if inputSize > 0 {
		sizeChangePercent = float64(outputSize-inputSize) / float64(inputSize) * 100
	}
	logger.InfoCtx(ctx, "Processing completed",
		logger.JobID(jobID),
		logger.KeyFilename, j.Filename,
		"lines", stats.Lines,
		"layers", stats.Layers,
		"input_size_bytes", inputSize,
		"output_size_bytes", outputSize,
		"size_change_percent", fmt.Sprintf("%.2f", sizeChangePercent),
		logger.KeyDurationMs, duration.Milliseconds())
}

// runProcessor streams upload -> processor -> output file, checking the
// cancel signal every cancelCheckLines emitted lines.
func (r *Runner) runProcessor(j job.Job, cancelSignal <-chan struct{}) (bricklayers.Stats, error) {
	processor, err := bricklayers.New(bricklayers.Options{
		ExtrusionMultiplier: j.ExtrusionMultiplier,
		StartAtLayer:        j.StartAtLayer,
	})
	if err != nil {
		return bricklayers.Stats{}, err
	}

	in, err := os.Open(j.UploadPath)
	if err != nil {
		return bricklayers.Stats{}, fmt.Errorf("failed to open upload: %w", err)
	}
	defer in.Close()

	out, err := os.Create(j.OutputPath)
	if err != nil {
		return bricklayers.Stats{}, fmt.Errorf("failed to create output: %w", err)
	}

	lines := int64(0)
	stats, perr := processor.Process(in, func(line string) error {
		if lines%cancelCheckLines == 0 {
			select {
			case <-cancelSignal:
				return errCancelled
			default:
			}
		}
		lines++
		_, werr := out.WriteString(line)
		return werr
	})

	if cerr := out.Close(); perr == nil && cerr != nil {
		perr = fmt.Errorf("failed to finish output: %w", cerr)
	}
	return stats, perr
}

// finishRejectedCompletion resolves a job whose completion transition
// was rejected. A cancel request that arrived after the final signal
// check has moved the job to cancelling; the worker still owns the
// cancellation and must land it in cancelled. Otherwise the job timed
// out under us and the output file stays for the sweeper.
func (r *Runner) finishRejectedCompletion(ctx context.Context, j job.Job, terr error) {
	cur, err := r.registry.Get(j.ID)
	if err != nil {
		logger.WarnCtx(ctx, "Completion rejected by registry", logger.JobID(j.ID), logger.Err(terr))
		return
	}
	if cur.State == job.StateCancelling {
		r.finishCancelled(ctx, j, "Cancelled by user")
		return
	}
	logger.WarnCtx(ctx, "Completion rejected by registry", logger.JobID(j.ID), logger.Err(terr))
}

// finishCancelled deletes any partial output and records the cancelled
// state with the given message.
func (r *Runner) finishCancelled(ctx context.Context, j job.Job, msg string) {
	if _, err := filestore.Delete(j.OutputPath); err != nil {
		logger.WarnCtx(ctx, "Failed to delete partial output", logger.KeyFile, j.OutputPath, logger.Err(err))
	}

	if _, err := r.registry.Transition(j.ID, job.StateCancelled, msg); err != nil {
		logger.WarnCtx(ctx, "Cancellation rejected by registry", logger.JobID(j.ID), logger.Err(err))
		return
	}
	if r.metrics != nil {
		r.metrics.RecordJobFinished(string(job.StateCancelled))
	}
	logger.InfoCtx(ctx, "Job cancelled during processing",
		logger.JobID(j.ID), logger.KeyFilename, j.Filename)
}

// finishFailed deletes any partial output and records the failure. If a
// cancel request moved the job to cancelling while the body was failing,
// the cancellation wins.
func (r *Runner) finishFailed(ctx context.Context, j job.Job, perr error) {
	if _, err := filestore.Delete(j.OutputPath); err != nil {
		logger.WarnCtx(ctx, "Failed to delete partial output", logger.KeyFile, j.OutputPath, logger.Err(err))
	}

	telemetry.RecordError(ctx, perr)

	if _, err := r.registry.Transition(j.ID, job.StateFailed, perr.Error()); err != nil {
		if _, cerr := r.registry.Transition(j.ID, job.StateCancelled, "Cancelled by user during processing"); cerr != nil {
			logger.WarnCtx(ctx, "Failure rejected by registry", logger.JobID(j.ID), logger.Err(err))
			return
		}
		if r.metrics != nil {
			r.metrics.RecordJobFinished(string(job.StateCancelled))
		}
		return
	}
	if r.metrics != nil {
		r.metrics.RecordJobFinished(string(job.StateFailed))
	}
	logger.ErrorCtx(ctx, "Processing failed",
		logger.JobID(j.ID), logger.KeyFilename, j.Filename, logger.Err(perr))
}
