package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/fieldwork-scheduler/internal/logging"
	"github.com/example/fieldwork-scheduler/internal/scheduler"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel and typed errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	var (
		vErr *ValidationError
		cErr *ConflictError
		dErr *DeliveryError
		sErr *StoreError
	)
	switch {
	case errors.As(err, &vErr), errors.Is(err, scheduler.ErrInvertedWindow):
		return "validation"
	case errors.As(err, &cErr), errors.Is(err, ErrAlreadyExists):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.As(err, &dErr):
		return "delivery"
	case errors.As(err, &sErr), errors.Is(err, ErrStoreUnavailable):
		return "store"
	}
	return "unknown"
}
