// Package observability provides structured logging with trace
// correlation and OpenTelemetry metrics recording for workflow runs.
package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// RunLogger is a structured logger scoped to one workflow run. It wraps
// slog.Logger, stamps every entry with the workflow ID and correlates
// entries with the active OpenTelemetry span when one is present.
type RunLogger struct {
	logger          *slog.Logger
	workflowID      string
	redactSensitive bool
}

// NewRunLogger creates a run logger writing through the given handler.
// Entries at info level and above have sensitive values redacted.
//
// Parameters:
//   - handler: The slog.Handler used to format and output entries
//   - workflowID: The identifier stamped on every entry
//
// Returns:
//   - *RunLogger: A configured logger ready for use
func NewRunLogger(handler slog.Handler, workflowID string) *RunLogger {
	return &RunLogger{
		logger:          slog.New(handler),
		workflowID:      workflowID,
		redactSensitive: true,
	}
}

// Debug logs a debug-level message. Debug entries are not redacted.
func (l *RunLogger) Debug(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).Debug(msg, args...)
}

// Info logs an info-level message.
func (l *RunLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	l.WithContext(ctx).Info(msg, args...)
}

// Warn logs a warning-level message.
func (l *RunLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	l.WithContext(ctx).Warn(msg, args...)
}

// Error logs an error-level message.
func (l *RunLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.redactSensitive {
		args = redactSensitiveData(args)
	}
	l.WithContext(ctx).Error(msg, args...)
}

// WithContext returns a slog.Logger carrying the workflow ID plus the
// trace_id and span_id of the span in ctx when that span carries a valid
// trace context.
func (l *RunLogger) WithContext(ctx context.Context) *slog.Logger {
	logger := l.logger.With(slog.String("workflow_id", l.workflowID))

	span := trace.SpanFromContext(ctx)
	if spanCtx := span.SpanContext(); spanCtx.IsValid() {
		logger = logger.With(
			slog.String("trace_id", spanCtx.TraceID().String()),
			slog.String("span_id", spanCtx.SpanID().String()),
		)
	}
	return logger
}

// NewJSONHandler creates a JSON log handler, the format intended for
// production use.
func NewJSONHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// NewTextHandler creates a human-readable text log handler for
// development and debugging.
func NewTextHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

// redactSensitiveData replaces values of sensitive keys with a marker so
// credentials passed through node metadata never reach log output.
func redactSensitiveData(args []any) []any {
	if len(args)%2 != 0 {
		// Odd key-value list, leave untouched.
		return args
	}

	sensitive := map[string]bool{
		"apikey":     true,
		"secret":     true,
		"secretkey":  true,
		"password":   true,
		"token":      true,
		"credential": true,
	}

	redacted := make([]any, len(args))
	copy(redacted, args)
	for i := 0; i < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			normalized := strings.ToLower(strings.ReplaceAll(key, "_", ""))
			if sensitive[normalized] {
				redacted[i+1] = "[REDACTED]"
			}
		}
	}
	return redacted
}
