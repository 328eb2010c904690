package handlers

import (
	"github.com/bricklayers/bricklayd/pkg/config"
	"github.com/bricklayers/bricklayd/pkg/filestore"
	"github.com/bricklayers/bricklayd/pkg/job"
	"github.com/bricklayers/bricklayd/pkg/metrics"
)

// Submitter queues a registered job for execution. It must not block on
// job execution.
type Submitter interface {
	Submit(jobID string) bool
}

// ServiceInfo identifies the service in the root endpoint response.
type ServiceInfo struct {
	Name    string
	Version string
}

// Handlers bundles the dependencies shared by all API handlers.
type Handlers struct {
	store      *filestore.Store
	registry   *job.Registry
	pool       Submitter
	metrics    metrics.PipelineMetrics
	processing config.ProcessingConfig
	info       ServiceInfo
}

// New creates the API handler set.
func New(
	store *filestore.Store,
	registry *job.Registry,
	pool Submitter,
	m metrics.PipelineMetrics,
	processing config.ProcessingConfig,
	info ServiceInfo,
) *Handlers {
	return &Handlers{
		store:      store,
		registry:   registry,
		pool:       pool,
		metrics:    m,
		processing: processing,
		info:       info,
	}
}
