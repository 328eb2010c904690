package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bricklayers/bricklayd/pkg/metrics"
)

// sweeperMetrics is the Prometheus implementation of metrics.SweeperMetrics.
type sweeperMetrics struct {
	runs         prometheus.Counter
	filesDeleted prometheus.Counter
	bytesFreed   prometheus.Counter
	errors       prometheus.Counter
}

// NewSweeperMetrics creates a new Prometheus-backed SweeperMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewSweeperMetrics() metrics.SweeperMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &sweeperMetrics{
		runs: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "bricklayd_sweeper_runs_total",
				Help: "Total number of retention sweeps",
			},
		),
		filesDeleted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "bricklayd_sweeper_files_deleted_total",
				Help: "Total number of files deleted by the retention sweeper",
			},
		),
		bytesFreed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "bricklayd_sweeper_bytes_freed_total",
				Help: "Total bytes freed by the retention sweeper",
			},
		),
		errors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "bricklayd_sweeper_errors_total",
				Help: "Total number of per-file deletion errors during sweeps",
			},
		),
	}
}

func (m *sweeperMetrics) RecordSweep(filesDeleted int, bytesFreed int64, errors int) {
	m.runs.Inc()
	m.filesDeleted.Add(float64(filesDeleted))
	m.bytesFreed.Add(float64(bytesFreed))
	m.errors.Add(float64(errors))
}
