package metrics

import (
	"time"
)

// HTTPMetrics provides observability for the HTTP request pipeline.
//
// This interface is optional; pass nil to disable collection with zero
// overhead.
type HTTPMetrics interface {
	// RecordRequest records a completed HTTP request with its method,
	// matched route pattern, status code, and duration.
	RecordRequest(method string, route string, status int, duration time.Duration)
}
