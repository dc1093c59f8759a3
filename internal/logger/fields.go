package logger

import (
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/leads/internal/fingerprint"
)

const (
	// FieldProvider is the structured log field key for the analyzer provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the analyzer model identifier.
	FieldModel = "ai_model"
	// FieldPostingID is the structured log field key for the posting identifier.
	FieldPostingID = "posting_id"
	// FieldFingerprint carries a shortened content fingerprint.
	FieldFingerprint = "fingerprint"

	shortFingerprintLen = 12
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
// A nil logger becomes a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// AnalyzerFields describes the analyzer provider and model. Empty values are dropped.
func AnalyzerFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// WithAnalyzerFields attaches the analyzer fields to the provided logger.
func WithAnalyzerFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, AnalyzerFields(provider, model)...)
}

// PostingFields identifies a posting in log output by id and short fingerprint.
func PostingFields(id, fp string) []zap.Field {
	return StringFields(
		StringField{Key: FieldPostingID, Value: id},
		StringField{Key: FieldFingerprint, Value: fingerprint.Short(fp, shortFingerprintLen)},
	)
}

// CacheFields summarizes cache usage for a run.
func CacheFields(entries int, hits, misses int64) []zap.Field {
	rate := 0.0
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}

	return []zap.Field{
		zap.Int("cache_entries", entries),
		zap.Int64("cache_hits", hits),
		zap.Int64("cache_misses", misses),
		zap.Float64("cache_hit_rate", rate),
	}
}
