package metrics

import (
	"time"
)

// PipelineMetrics provides observability for the upload/process/download
// pipeline: upload outcomes, job states, worker pool occupancy, processing
// durations, and output sizes.
//
// This interface is optional; pass nil to disable collection with zero
// overhead.
type PipelineMetrics interface {
	// RecordUpload records an upload attempt.
	// status is "accepted", "rejected", or "too_large".
	RecordUpload(status string)

	// RecordUploadSize records the size of an accepted upload.
	RecordUploadSize(bytes int64)

	// RecordJobFinished records a job reaching a terminal state.
	// status is one of "completed", "failed", "cancelled", "timeout".
	RecordJobFinished(status string)

	// JobStarted increments the active-jobs gauge; JobEnded decrements it.
	JobStarted()
	JobEnded()

	// SetQueuedJobs updates the gauge of jobs waiting for a worker.
	SetQueuedJobs(n int)

	// RecordProcessingDuration records how long a job body ran.
	RecordProcessingDuration(d time.Duration)

	// RecordOutputSize records the size of a processed output file.
	RecordOutputSize(bytes int64)

	// RecordDownload records a download attempt.
	// status is "ok", "not_found", or "not_ready".
	RecordDownload(status string)
}

// SweeperMetrics provides observability for the retention sweeper.
//
// This interface is optional; pass nil to disable collection.
type SweeperMetrics interface {
	// RecordSweep records the outcome of one full sweep across both
	// directories.
	RecordSweep(filesDeleted int, bytesFreed int64, errors int)
}
