package logger

import (
	"log/slog"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so log aggregation
// and querying stay uniform across the service.
const (
	// Request pipeline
	KeyRequestID = "request_id" // Request correlation id (X-Request-ID)
	KeyClientIP  = "client_ip"  // Client IP address
	KeyMethod    = "method"     // HTTP method
	KeyRoute     = "route"      // Matched route pattern
	KeyPath      = "path"       // Request URL path
	KeyStatus    = "status"     // HTTP status code

	// Jobs
	KeyJobID    = "job_id"   // Processing job id
	KeyJobState = "state"    // Job state (pending, processing, ...)
	KeyFilename = "filename" // Original upload filename

	// Files
	KeyFile = "file" // Filesystem path
	KeySize = "size" // Size in bytes

	// Timing & errors
	KeyDurationMs = "duration_ms" // Elapsed time in milliseconds
	KeyError      = "error"       // Error message
)

// Err returns a slog.Attr for an error value, tolerating nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}

// JobID returns a slog.Attr for a job id.
func JobID(id string) slog.Attr {
	return slog.String(KeyJobID, id)
}

// RequestID returns a slog.Attr for a request id.
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}
