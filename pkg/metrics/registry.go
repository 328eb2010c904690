package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
	enabled  bool
)

// InitRegistry creates the process-wide Prometheus registry and registers
// the standard Go runtime and process collectors.
//
// Must be called before any NewXxxMetrics constructor; constructors called
// while metrics are disabled return nil, which callers treat as a no-op.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()

	if registry != nil {
		return
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	enabled = true
}

// IsEnabled reports whether metrics collection is enabled.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetRegistry returns the process-wide registry, or nil when disabled.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}

// Handler returns the HTTP handler serving the /metrics endpoint.
// Returns nil when metrics are disabled.
func Handler() http.Handler {
	mu.Lock()
	defer mu.Unlock()

	if registry == nil {
		return nil
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ResetForTesting clears the registry so tests can re-initialize it.
func ResetForTesting() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
	enabled = false
}
