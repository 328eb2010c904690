package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for pipeline operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP = "client.ip"

	// ========================================================================
	// Job attributes
	// ========================================================================
	AttrJobID       = "job.id"
	AttrJobState    = "job.state"
	AttrJobPriority = "job.priority"

	// ========================================================================
	// File attributes
	// ========================================================================
	AttrFilename   = "file.name"
	AttrFilePath   = "file.path"
	AttrFileSize   = "file.size"
	AttrLineCount  = "gcode.lines"
	AttrLayerCount = "gcode.layers"

	// ========================================================================
	// Sweeper attributes
	// ========================================================================
	AttrSweepDeleted = "sweep.files_deleted"
	AttrSweepFreed   = "sweep.bytes_freed"
)

// ClientIP returns an attribute for the client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// JobID returns an attribute for the job identifier
func JobID(id string) attribute.KeyValue {
	return attribute.String(AttrJobID, id)
}

// JobState returns an attribute for the job state
func JobState(state string) attribute.KeyValue {
	return attribute.String(AttrJobState, state)
}

// JobPriority returns an attribute for the job priority
func JobPriority(priority int) attribute.KeyValue {
	return attribute.Int(AttrJobPriority, priority)
}

// Filename returns an attribute for a file name
func Filename(name string) attribute.KeyValue {
	return attribute.String(AttrFilename, name)
}

// FilePath returns an attribute for a file path
func FilePath(path string) attribute.KeyValue {
	return attribute.String(AttrFilePath, path)
}

// FileSize returns an attribute for a file size in bytes
func FileSize(size int64) attribute.KeyValue {
	return attribute.Int64(AttrFileSize, size)
}

// LineCount returns an attribute for the number of G-code lines processed
func LineCount(n int64) attribute.KeyValue {
	return attribute.Int64(AttrLineCount, n)
}

// LayerCount returns an attribute for the number of layers seen
func LayerCount(n int) attribute.KeyValue {
	return attribute.Int(AttrLayerCount, n)
}

// SweepDeleted returns an attribute for files deleted in one sweep
func SweepDeleted(n int) attribute.KeyValue {
	return attribute.Int(AttrSweepDeleted, n)
}

// SweepFreed returns an attribute for bytes freed in one sweep
func SweepFreed(n int64) attribute.KeyValue {
	return attribute.Int64(AttrSweepFreed, n)
}

// StartJobSpan starts a span for a job lifecycle operation (process, cancel).
// The span name should be the operation, e.g. "job.process".
func StartJobSpan(ctx context.Context, operation string, jobID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		JobID(jobID),
	}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, operation, trace.WithAttributes(allAttrs...))
}

// StartSweepSpan starts a span for a cleanup sweep over a directory.
func StartSweepSpan(ctx context.Context, dir string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		FilePath(dir),
	}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, "sweep.run", trace.WithAttributes(allAttrs...))
}
