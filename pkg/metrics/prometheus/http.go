package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bricklayers/bricklayd/pkg/metrics"
)

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewHTTPMetrics creates a new Prometheus-backed HTTPMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewHTTPMetrics() metrics.HTTPMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &httpMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bricklayd_http_requests_total",
				Help: "Total number of HTTP requests by method, route, and status code",
			},
			[]string{"method", "route", "status"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "bricklayd_http_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
				Buckets: []float64{
					0.001, // 1ms - status lookups
					0.005,
					0.01,
					0.05,
					0.1,
					0.5,
					1, // 1s - large uploads start here
					5,
					30,
					120, // streamed uploads at the size limit
				},
			},
			[]string{"method", "route"},
		),
	}
}

func (m *httpMetrics) RecordRequest(method string, route string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	m.requests.WithLabelValues(method, route, code).Inc()
	m.duration.WithLabelValues(method, route).Observe(duration.Seconds())
}
