package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bricklayers/bricklayd/pkg/metrics"
)

// pipelineMetrics is the Prometheus implementation of metrics.PipelineMetrics.
type pipelineMetrics struct {
	uploads            *prometheus.CounterVec
	uploadSize         prometheus.Histogram
	jobs               *prometheus.CounterVec
	jobsActive         prometheus.Gauge
	jobsQueued         prometheus.Gauge
	processingDuration prometheus.Histogram
	outputSize         prometheus.Histogram
	downloads          *prometheus.CounterVec
}

// NewPipelineMetrics creates a new Prometheus-backed PipelineMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewPipelineMetrics() metrics.PipelineMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &pipelineMetrics{
		uploads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bricklayd_uploads_total",
				Help: "Total number of upload attempts by outcome",
			},
			[]string{"status"}, // "accepted", "rejected", "too_large"
		),
		uploadSize: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "bricklayd_upload_size_bytes",
				Help: "Distribution of accepted upload sizes",
				Buckets: []float64{
					65536,    // 64KB - calibration prints
					1048576,  // 1MB
					10485760, // 10MB
					52428800, // 50MB - the default upload limit
					209715200,
				},
			},
		),
		jobs: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bricklayd_jobs_total",
				Help: "Total number of jobs reaching a terminal state",
			},
			[]string{"status"}, // "completed", "failed", "cancelled", "timeout"
		),
		jobsActive: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "bricklayd_jobs_active",
				Help: "Number of jobs currently being processed",
			},
		),
		jobsQueued: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "bricklayd_jobs_queued",
				Help: "Number of jobs waiting for a worker",
			},
		),
		processingDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "bricklayd_processing_duration_seconds",
				Help: "Duration of job processing in seconds",
				Buckets: []float64{
					0.1, // small test files
					0.5,
					1,
					5,
					15,
					60,
					300,
					900, // the default per-job deadline
				},
			},
		),
		outputSize: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "bricklayd_output_size_bytes",
				Help: "Distribution of processed output file sizes",
				Buckets: []float64{
					65536,    // 64KB - calibration prints
					1048576,  // 1MB
					10485760, // 10MB
					52428800, // 50MB - the default upload limit
					209715200,
				},
			},
		),
		downloads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bricklayd_downloads_total",
				Help: "Total number of download attempts by outcome",
			},
			[]string{"status"}, // "ok", "not_found", "not_ready"
		),
	}
}

func (m *pipelineMetrics) RecordUpload(status string) {
	m.uploads.WithLabelValues(status).Inc()
}

func (m *pipelineMetrics) RecordUploadSize(bytes int64) {
	m.uploadSize.Observe(float64(bytes))
}

func (m *pipelineMetrics) RecordJobFinished(status string) {
	m.jobs.WithLabelValues(status).Inc()
}

func (m *pipelineMetrics) JobStarted() {
	m.jobsActive.Inc()
}

func (m *pipelineMetrics) JobEnded() {
	m.jobsActive.Dec()
}

func (m *pipelineMetrics) SetQueuedJobs(n int) {
	m.jobsQueued.Set(float64(n))
}

func (m *pipelineMetrics) RecordProcessingDuration(d time.Duration) {
	m.processingDuration.Observe(d.Seconds())
}

func (m *pipelineMetrics) RecordOutputSize(bytes int64) {
	m.outputSize.Observe(float64(bytes))
}

func (m *pipelineMetrics) RecordDownload(status string) {
	m.downloads.WithLabelValues(status).Inc()
}
