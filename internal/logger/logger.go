// Package logger wires the process-wide structured logger.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	cycleIDKey   ctxKey = "cycle_id"
)

var defaultLogger *slog.Logger

// Init builds the process-wide logger: JSON in production, text otherwise.
func Init(levelStr string) {
	level := parseLevel(levelStr)

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if os.Getenv("ENV") == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	defaultLogger = slog.New(handler)
	slog.SetDefault(defaultLogger)
}

func parseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Get returns the process-wide logger, initializing it with a sane default
// if Init has not yet been called.
func Get() *slog.Logger {
	if defaultLogger == nil {
		Init("info")
	}
	return defaultLogger
}

// WithComponent scopes log lines to a named subsystem (supervisor, scraper, ...).
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// WithRequestID attaches the request ID carried on ctx, if any.
func WithRequestID(ctx context.Context) *slog.Logger {
	l := Get()
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		l = l.With("request_id", id)
	}
	return l
}

// WithCycle scopes log lines to one scraper-worker cycle, so every phase's
// log line in a single pass can be correlated.
func WithCycle(instanceHandle string, cycleNumber int64) *slog.Logger {
	return Get().With("instance", instanceHandle, "cycle", cycleNumber)
}

// ContextWithRequestID stores a request ID for later retrieval by WithRequestID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
