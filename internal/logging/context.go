package logging

import (
	"context"
)

type contextKey string

const loggerKey contextKey = "logger"

// WithLogger stores a request- or connection-scoped logger in the context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the scoped logger, or a plain text logger when the
// context carries none.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey).(*Logger); ok {
		return logger
	}

	return New(Config{Level: "info", Format: "text"})
}
