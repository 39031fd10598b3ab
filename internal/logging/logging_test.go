package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()

	logger := New(Options{Output: &bytes.Buffer{}})
	ctx := ContextWithLogger(context.Background(), logger)
	if got := FromContext(ctx); got != logger {
		t.Fatalf("expected logger from context")
	}
	if got := FromContext(context.Background()); got != nil {
		t.Fatalf("expected nil logger for bare context, got %v", got)
	}
}

func TestNewWritesJSONThroughZerolog(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Options{Level: "info", Output: &buf})
	logger.With("service", "BookingService").
		WithGroup("req").
		Info("booking created", "booking_id", "b-1", "attempts", 2, "error", errors.New("boom"))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["message"] != "booking created" {
		t.Fatalf("unexpected message: %v", entry["message"])
	}
	if entry["level"] != "info" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
	if entry["service"] != "BookingService" {
		t.Fatalf("expected service attr, got %v", entry["service"])
	}
	if entry["req.booking_id"] != "b-1" {
		t.Fatalf("expected grouped booking_id, got %v", entry)
	}
	if entry["req.attempts"] != float64(2) {
		t.Fatalf("expected grouped attempts, got %v", entry["req.attempts"])
	}
	if entry["req.error"] != "boom" {
		t.Fatalf("expected error string, got %v", entry["req.error"])
	}
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(Options{Level: "warn", Output: &buf})
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered, got %q", buf.String())
	}
	if logger.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("expected info level disabled")
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Fatalf("expected warn to be written")
	}
}
