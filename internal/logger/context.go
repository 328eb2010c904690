package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context
type LogContext struct {
	RequestID string    // Request id from X-Request-ID or generated
	JobID     string    // Processing job id, when the request targets one
	ClientIP  string    // Client IP address (without port)
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given request id and client IP
func NewLogContext(requestID, clientIP string) *LogContext {
	return &LogContext{
		RequestID: requestID,
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// RequestIDFromContext returns the request id bound to the context, or "".
func RequestIDFromContext(ctx context.Context) string {
	if lc := FromContext(ctx); lc != nil {
		return lc.RequestID
	}
	return ""
}
