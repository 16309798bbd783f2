package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldEventType classifies a log line for filtering (e.g. "ingest_failed").
	FieldEventType = "event_type"
	// FieldErrorHint carries the suggested next step for warnings and errors.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldMemeKey identifies the meme key a log line refers to.
	FieldMemeKey = "meme_key"
	// FieldCategory identifies the catalogue category a log line refers to.
	FieldCategory = "category"
	// FieldIngestID identifies a single ingestion attempt.
	FieldIngestID = "ingest_id"
	// FieldRequester is the platform user that triggered an event.
	FieldRequester = "requester"
	// FieldConversation is the platform chat an event arrived in.
	FieldConversation = "conversation"
)

type ctxKey int

const ingestIDKey ctxKey = iota

// WithIngestID tags ctx with an ingestion identifier picked up by WithContext.
func WithIngestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ingestIDKey, id)
}

// IngestIDFromContext returns the ingestion identifier stored in ctx.
func IngestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(ingestIDKey).(string)
	return id, ok && id != ""
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if id, ok := IngestIDFromContext(ctx); ok {
		return logger.With(String(FieldIngestID, id))
	}
	return logger
}
