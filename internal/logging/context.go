package logging

import (
	"context"

	"go.uber.org/zap"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldRunID is the standardized structured logging key for the import run identifier.
	FieldRunID = "run_id"
	// FieldArchive is the standardized structured logging key for the archive being read.
	FieldArchive = "archive"
	// FieldEntry is the standardized structured logging key for a path inside an archive.
	FieldEntry = "entry"
	// FieldAssetID is the standardized structured logging key for remote asset identifiers.
	FieldAssetID = "asset_id"
)

type contextKey string

const (
	runIDKey   contextKey = "run_id"
	archiveKey contextKey = "archive"
	entryKey   contextKey = "entry"
)

// WithRunID annotates context with the import run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// WithArchive annotates context with the archive name.
func WithArchive(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, archiveKey, name)
}

// WithEntry annotates context with the archive entry path.
func WithEntry(ctx context.Context, path string) context.Context {
	if path == "" {
		return ctx
	}
	return context.WithValue(ctx, entryKey, path)
}

// ContextFields extracts standardized zap fields from the provided context.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 3)
	for _, item := range []struct {
		key   contextKey
		field string
	}{
		{runIDKey, FieldRunID},
		{archiveKey, FieldArchive},
		{entryKey, FieldEntry},
	} {
		if v, ok := ctx.Value(item.key).(string); ok && v != "" {
			fields = append(fields, zap.String(item.field, v))
		}
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(fields...)
}
