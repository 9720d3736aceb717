package logging

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey contextKey = "logger"
)

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves a logger from the context.
// If no logger is found, it returns a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// AddFields adds fields to the logger stored in the context.
// Returns a new context with the updated logger.
func AddFields(ctx context.Context, fields ...zap.Field) context.Context {
	return WithLogger(ctx, FromContext(ctx).With(fields...))
}

// ForDatacenter returns base annotated with the datacenter id, stored in ctx.
func ForDatacenter(ctx context.Context, base *zap.Logger, datacenterID string) (context.Context, *zap.Logger) {
	logger := base.With(zap.String(FieldDatacenterID, datacenterID))
	return WithLogger(ctx, logger), logger
}
