// Package logger provides structured logging on top of log/slog.
//
// Diagnostic output (retries, soft warnings, failures) goes through this
// package; user-facing progress and summaries are printed by the commands.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// ContextKey is the type of keys used to carry log fields in a context.
type ContextKey string

const (
	RunIDKey   ContextKey = "run_id"
	ChunkKey   ContextKey = "chunk_index"
	ModelKey   ContextKey = "model"
	CommandKey ContextKey = "command"
)

var contextKeys = []ContextKey{RunIDKey, ChunkKey, ModelKey, CommandKey}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// Init configures the process-wide logger. format is "json" or "text".
func Init(level, format string) {
	InitWriter(os.Stderr, level, format)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	l := slog.New(handler)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// Default returns the process logger, initialising a warn-level text logger
// on first use.
func Default() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init("warn", "text")
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// With stores a log field in ctx.
func With(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}

// FromContext returns base (or Default when nil) enriched with the fields
// stored in ctx.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	l := base
	if l == nil {
		l = Default()
	}
	for _, key := range contextKeys {
		if v := ctx.Value(key); v != nil {
			l = l.With(string(key), v)
		}
	}
	return l
}
