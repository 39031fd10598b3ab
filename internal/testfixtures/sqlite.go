package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/fieldwork-scheduler/internal/persistence"
	"github.com/example/fieldwork-scheduler/internal/persistence/sqlite"
	"github.com/example/fieldwork-scheduler/internal/persistence/sqlite/migration"
)

// SQLiteHarness provides repository access backed by a temporary, migrated
// SQLite database for integration-style tests.
type SQLiteHarness struct {
	Store *sqlite.Store

	Bookings      persistence.BookingRepository
	Resources     persistence.ResourceRepository
	Notifications persistence.NotificationRepository
	Weather       persistence.WeatherRepository
	Audit         persistence.AuditRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness opens a temporary database file and applies the embedded
// migrations, including the seed data. The harness is closed automatically
// when the test finishes.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "fieldsched.db")
	store, err := sqlite.Open(migration.DefaultSQLiteConfig(path))
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := store.Migrate(context.Background(), logger); err != nil {
		_ = store.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Store:         store,
		Bookings:      store.Bookings,
		Resources:     store.Resources,
		Notifications: store.Notifications,
		Weather:       store.Weather,
		Audit:         store.Audit,
		cleanup: func() {
			_ = store.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}

// SeedResources inserts every fixture, failing the test on the first error.
func (h *SQLiteHarness) SeedResources(tb testing.TB, fixtures ...ResourceFixture) {
	tb.Helper()
	for _, fixture := range fixtures {
		if err := h.Resources.CreateResource(context.Background(), fixture.Persistence()); err != nil {
			tb.Fatalf("seed resource %s: %v", fixture.ID, err)
		}
	}
}

// SeedBookings inserts every fixture, failing the test on the first error.
func (h *SQLiteHarness) SeedBookings(tb testing.TB, fixtures ...BookingFixture) {
	tb.Helper()
	for _, fixture := range fixtures {
		if err := h.Bookings.CreateBooking(context.Background(), fixture.Persistence()); err != nil {
			tb.Fatalf("seed booking %s: %v", fixture.ID, err)
		}
	}
}
