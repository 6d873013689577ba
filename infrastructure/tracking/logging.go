package tracking

import (
	"context"
	"log/slog"

	"github.com/helixml/taxon/domain/task"
)

// LoggingReporter logs status changes.
type LoggingReporter struct {
	logger *slog.Logger
}

// NewLoggingReporter creates a LoggingReporter.
func NewLoggingReporter(logger *slog.Logger) *LoggingReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingReporter{logger: logger}
}

// OnChange logs the status. Failures log at error level; in-progress
// updates log at debug level so a long phase does not flood the output.
func (r *LoggingReporter) OnChange(ctx context.Context, status task.Status) error {
	attrs := []slog.Attr{
		slog.String("id", status.ID()),
		slog.String("state", string(status.State())),
		slog.Int("current", status.Current()),
		slog.Int("total", status.Total()),
	}
	if status.Message() != "" {
		attrs = append(attrs, slog.String("message", status.Message()))
	}

	switch status.State() {
	case task.ReportingStateFailed:
		attrs = append(attrs, slog.String("error", status.Error()))
		r.logger.LogAttrs(ctx, slog.LevelError, status.Operation().String(), attrs...)
	case task.ReportingStateInProgress:
		r.logger.LogAttrs(ctx, slog.LevelDebug, status.Operation().String(), attrs...)
	default:
		r.logger.LogAttrs(ctx, slog.LevelInfo, status.Operation().String(), attrs...)
	}
	return nil
}
