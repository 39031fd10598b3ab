package sqlite

import (
	"context"
	"embed"
	"fmt"
	"log/slog"

	"github.com/example/fieldwork-scheduler/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Store bundles the SQLite-backed repositories over one connection pool.
type Store struct {
	pool *ConnectionPool

	Bookings      *BookingRepository
	Resources     *ResourceRepository
	Notifications *NotificationRepository
	Weather       *WeatherRepository
	Audit         *AuditRepository
}

// Open connects to the database described by config. Call Migrate before use.
func Open(config migration.SQLiteConfig) (*Store, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return newStore(pool), nil
}

func newStore(pool *ConnectionPool) *Store {
	return &Store{
		pool:          pool,
		Bookings:      NewBookingRepository(pool),
		Resources:     NewResourceRepository(pool),
		Notifications: NewNotificationRepository(pool),
		Weather:       NewWeatherRepository(pool),
		Audit:         NewAuditRepository(pool),
	}
}

// Migrate applies the embedded schema migrations that have not run yet.
func (s *Store) Migrate(ctx context.Context, logger *slog.Logger) error {
	manager := migration.NewMigrationManager(
		migration.NewFileScanner(),
		migration.NewSQLiteExecutor(s.pool.DB()),
		migrationFiles,
		"migrations",
		logger,
		migration.WithChecksumVerification(),
	)
	if err := manager.RunMigrations(ctx); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
