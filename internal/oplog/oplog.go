// Package oplog renders inventory operation records as structured zap logs and metrics.
package oplog

import (
	"context"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/cafestock/internal/metrics"
	"github.com/MarkoPoloResearchLab/cafestock/pkg/inventory"
)

const (
	statusOK    = "ok"
	statusError = "error"

	messageOperation = "inventory operation"
)

// Logger implements inventory.OperationLogger on zap.
type Logger struct {
	logger *zap.Logger
}

// New wraps a zap logger. A nil logger falls back to zap.NewNop.
func New(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger}
}

// LogOperation emits one log line and updates the operation counters.
func (logger *Logger) LogOperation(_ context.Context, entry inventory.OperationLog) {
	status := entry.Status
	if status == "" {
		status = statusOK
		if entry.Error != nil {
			status = statusError
		}
	}
	metrics.OperationsTotal.WithLabelValues(entry.Operation, status).Inc()
	if entry.Warnings > 0 {
		metrics.OperationWarnings.WithLabelValues(entry.Operation).Add(float64(entry.Warnings))
	}
	if entry.RowsWritten > 0 && entry.Error == nil {
		metrics.RowsWritten.WithLabelValues(entry.Operation).Add(float64(entry.RowsWritten))
	}
	if entry.Reason != "" {
		metrics.NotificationDecisions.WithLabelValues(entry.Reason).Inc()
	}

	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", status),
	}
	if !entry.BusinessDate.IsZero() {
		fields = append(fields, zap.String("business_date", entry.BusinessDate.String()))
	}
	if !entry.UPC.IsZero() {
		fields = append(fields, zap.String("upc", entry.UPC.String()))
	}
	if entry.Action != "" {
		fields = append(fields, zap.String("action", string(entry.Action)))
	}
	if entry.Mode != "" {
		fields = append(fields, zap.String("mode", string(entry.Mode)))
	}
	if entry.Reason != "" {
		fields = append(fields, zap.String("reason", entry.Reason))
	}
	if entry.Actor != "" {
		fields = append(fields, zap.String("actor", entry.Actor))
	}
	fields = append(fields, zap.Int("rows_written", entry.RowsWritten), zap.Int("warnings", entry.Warnings))
	if entry.Error != nil {
		logger.logger.Error(messageOperation, append(fields, zap.Error(entry.Error))...)
		return
	}
	logger.logger.Info(messageOperation, fields...)
}
