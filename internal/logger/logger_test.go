package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "info", "json")
	t.Cleanup(func() { InitWriter(&bytes.Buffer{}, "warn", "text") })

	Default().Debug("hidden")
	Default().Info("shown", "key", "value")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if entry["msg"] != "shown" || entry["key"] != "value" {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := With(context.Background(), RunIDKey, "run-42")
	ctx = With(ctx, ChunkKey, 7)

	FromContext(ctx, base).Info("hello")

	out := buf.String()
	if !strings.Contains(out, "run_id=run-42") || !strings.Contains(out, "chunk_index=7") {
		t.Errorf("context fields missing: %s", out)
	}
}

func TestFromContext_NoFields(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	FromContext(context.Background(), base).Info("plain")
	if strings.Contains(buf.String(), "run_id") {
		t.Errorf("unexpected fields: %s", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	// Must not panic or write anywhere.
	Discard().Error("dropped", "k", 1)
}
