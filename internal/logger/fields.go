package logger

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	FieldProvider = "ai_provider"
	FieldModel    = "ai_model"
	FieldTaskID   = "task_id"
	FieldStatus   = "status"
)

// WithFields attaches fields to logger, falling back to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields describes the generation provider and model. Empty values are skipped.
func CommonFields(provider, model string) []zap.Field {
	fields := make([]zap.Field, 0, 2)
	if v := strings.TrimSpace(provider); v != "" {
		fields = append(fields, zap.String(FieldProvider, v))
	}
	if v := strings.TrimSpace(model); v != "" {
		fields = append(fields, zap.String(FieldModel, v))
	}
	return fields
}

func TaskFields(taskID uuid.UUID) []zap.Field {
	return []zap.Field{zap.String(FieldTaskID, taskID.String())}
}

// ForTask returns a child logger tagged with the task id.
func ForTask(logger *zap.Logger, taskID uuid.UUID) *zap.Logger {
	return WithFields(logger, TaskFields(taskID)...)
}
