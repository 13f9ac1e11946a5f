package types

import "context"

// Context Keys
type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	loggerKey  contextKey = "logger"
)

// WithTraceID stores the trace ID in the context. Workers set this from the
// incoming task message so log lines and outbound calls correlate.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceIDKey, id)
}

// GetTraceID retrieves the trace ID from the context.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

// WithLogger stores a Logger in the context.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the Logger from the context. The returned
// logger is expected to have been pre-enriched with invocation-scoped fields
// (e.g., TraceID) before storage. Returns nil if no logger has been set.
func LoggerFromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return nil
}
