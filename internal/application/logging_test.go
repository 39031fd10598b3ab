package application

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/example/fieldwork-scheduler/internal/logging"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	if got := defaultLogger(custom); got != custom {
		t.Fatalf("expected custom logger to be returned")
	}

	if got := defaultLogger(nil); got != slog.Default() {
		t.Fatalf("expected default logger when none provided")
	}
}

func TestServiceLoggerPrefersRequestLogger(t *testing.T) {
	t.Parallel()

	var base, request bytes.Buffer
	baseLogger := slog.New(slog.NewTextHandler(&base, nil))
	requestLogger := slog.New(slog.NewTextHandler(&request, nil)).With("request_id", 7)
	ctx := logging.ContextWithLogger(context.Background(), requestLogger)

	serviceLogger(ctx, baseLogger, "BookingService", "CreateBooking", "booking_id", "b1").
		InfoContext(ctx, "booking created")

	if base.Len() != 0 {
		t.Fatalf("expected base logger to stay unused, got %q", base.String())
	}
	line := request.String()
	for _, want := range []string{"request_id=7", "service=BookingService", "operation=CreateBooking", "booking_id=b1"} {
		if !strings.Contains(line, want) {
			t.Fatalf("expected %q in %q", want, line)
		}
	}
}

func TestServiceLoggerFallsBackToBase(t *testing.T) {
	t.Parallel()

	var base bytes.Buffer
	baseLogger := slog.New(slog.NewTextHandler(&base, nil))

	serviceLogger(context.Background(), baseLogger, "ReroutingPolicy", "", "job", "rerouting").
		Info("sweep finished")

	line := base.String()
	if !strings.Contains(line, "service=ReroutingPolicy") || strings.Contains(line, "operation=") {
		t.Fatalf("unexpected log line %q", line)
	}
}
