package api

import (
	"context"
	"log/slog"
	"testing"
)

func TestReplaySafeLogger_DiscardsWhileReplaying(t *testing.T) {
	h := &recordingHandler{}
	logger := slog.New(h)

	ReplaySafeLogger(logger, true).InfoContext(context.Background(), "replayed")
	ReplaySafeLogger(logger, false).InfoContext(context.Background(), "live")

	if len(h.records) != 1 {
		t.Fatalf("expected 1 log record, got %d", len(h.records))
	}
	if h.records[0].Message != "live" {
		t.Fatalf("expected live record, got %q", h.records[0].Message)
	}
}

func TestReplaySafeLogger_NilLoggerUsesDefault(t *testing.T) {
	if ReplaySafeLogger(nil, false) == nil {
		t.Fatalf("expected non-nil logger")
	}
}
