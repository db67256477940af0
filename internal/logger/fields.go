package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldRun is the structured log field key for the pipeline run id.
	FieldRun = "run_id"
	// FieldStage is the structured log field key for the pipeline stage.
	FieldStage = "stage"
	// FieldSource is the structured log field key for a job source name.
	FieldSource = "source"
	// FieldProfile is the structured log field key for a profile id.
	FieldProfile = "profile"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields safely attaches the provided fields to the logger.
// If the logger is nil or no fields are supplied, the input logger is returned
// unchanged, defaulting to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// RunFields returns the fields that scope a log entry to a run and stage.
// Empty values are ignored to keep log entries compact when information is missing.
func RunFields(runID, stage string) []zap.Field {
	return StringFields(
		StringField{Key: FieldRun, Value: runID},
		StringField{Key: FieldStage, Value: stage},
	)
}

// WithRun attaches the run fields to the provided logger.
// If the logger is nil, a no-op logger is created to avoid panics.
func WithRun(logger *zap.Logger, runID, stage string) *zap.Logger {
	return WithFields(logger, RunFields(runID, stage)...)
}

// ForSource scopes a logger to one job source.
func ForSource(logger *zap.Logger, source string) *zap.Logger {
	return WithFields(logger, StringFields(StringField{Key: FieldSource, Value: source})...)
}

// ForProfile scopes a logger to one profile.
func ForProfile(logger *zap.Logger, profileID string) *zap.Logger {
	return WithFields(logger, StringFields(StringField{Key: FieldProfile, Value: profileID})...)
}
