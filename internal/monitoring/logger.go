// Package monitoring carries the service's structured logging and
// in-process metrics.
package monitoring

import (
	"log/slog"
	"os"
	"time"
)

// Logger provides structured logging with grading-domain helpers.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a JSON slog logger.
func NewLogger() *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   "timestamp",
					Value: slog.StringValue(a.Value.Time().Format(time.RFC3339)),
				}
			}
			return a
		},
	})

	return &Logger{Logger: slog.New(handler)}
}

// RequestLogger logs HTTP request details.
func (l *Logger) RequestLogger(method, path, ip string, statusCode int, duration time.Duration) {
	l.Info("HTTP Request",
		"method", method,
		"path", path,
		"ip", ip,
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
	)
}

// GradingLogger logs one completed synchronous grading pass.
func (l *Logger) GradingLogger(sessionID, rubricID, source string, total float64, outcome string, duration time.Duration) {
	l.Info("Grading Completed",
		"session_id", sessionID,
		"rubric_id", rubricID,
		"source", source,
		"total", total,
		"outcome", outcome,
		"duration_ms", duration.Milliseconds(),
	)
}

// BatchLogger logs one batch job completion.
func (l *Logger) BatchLogger(sessionID string, batchIndex, completed, total int, attempt int) {
	l.Info("Batch Graded",
		"session_id", sessionID,
		"batch_index", batchIndex,
		"completed_batches", completed,
		"total_batches", total,
		"attempt", attempt,
	)
}
