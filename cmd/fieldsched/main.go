package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/example/fieldwork-scheduler/internal/application"
	"github.com/example/fieldwork-scheduler/internal/audit"
	"github.com/example/fieldwork-scheduler/internal/config"
	httptransport "github.com/example/fieldwork-scheduler/internal/http"
	"github.com/example/fieldwork-scheduler/internal/jobs"
	"github.com/example/fieldwork-scheduler/internal/logging"
	"github.com/example/fieldwork-scheduler/internal/messaging"
	"github.com/example/fieldwork-scheduler/internal/persistence/sqlite"
	"github.com/example/fieldwork-scheduler/internal/persistence/sqlite/migration"
	"github.com/example/fieldwork-scheduler/internal/weather"
)

// Job names accepted by POST /jobs/{name}/run.
const (
	jobRerouting     = "rerouting"
	jobNotifications = "notifications"
	jobMaintenance   = "maintenance"
	jobWeather       = "weather"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.New(logging.Options{}).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("scheduler exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("scheduler API listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	app.runner.Start()
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		logger.Warn("failed to notify service manager", "error", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		logger.Warn("failed to notify service manager", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("failed to shutdown server", "error", err)
	}
	app.close(shutdownCtx)
	return runErr
}

// app holds the wired components and the order in which they are released.
type app struct {
	handler  http.Handler
	runner   *jobs.Runner
	bookings *application.BookingService
	closers  []func(context.Context) error
	logger   *slog.Logger
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	a := &app{logger: logger}

	store, err := sqlite.Open(migration.DefaultSQLiteConfig(cfg.SQLiteDSN))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return store.Close() })

	if err := store.Migrate(ctx, logger); err != nil {
		a.close(context.Background())
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	now := time.Now
	idGenerator := uuid.NewString

	var auditOpts []audit.Option
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		auditOpts = append(auditOpts, audit.WithStream(client, cfg.Redis.Stream))
	}
	recorder := audit.NewRecorder(store.Audit, now, logger, auditOpts...)

	bookingRepo := newBookingRepositoryAdapter(store.Bookings)
	resourceRepo := newResourceRepositoryAdapter(store.Resources)
	notificationStore := newNotificationStoreAdapter(store.Notifications)
	weatherStore := newWeatherStoreAdapter(store.Weather)

	var primary messaging.Sender
	if cfg.Graph.AccessToken != "" {
		primary = messaging.NewGraphSender(cfg.Graph.BaseURL, cfg.Graph.AccessToken, cfg.Delivery.Timeout)
	}
	secondary := messaging.NewSMTPSender(messaging.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
	dispatcher := application.NewDispatcherWithLogger(primary, secondary, notificationStore, recorder, application.DispatcherConfig{
		Timeout:       cfg.Delivery.Timeout,
		RatePerSecond: cfg.Delivery.RatePerSecond,
		Burst:         cfg.Delivery.Burst,
		Recipients:    cfg.Delivery.Recipients,
		Location:      loc,
	}, now, logger)

	monitor := application.NewMaintenanceMonitorWithLogger(resourceRepo, dispatcher, recorder, dispatcher.OperationsRecipients(), now, logger)
	a.bookings = application.NewBookingServiceWithLogger(bookingRepo, resourceRepo, recorder, dispatcher, loc, idGenerator, now, logger)
	resources := application.NewResourceServiceWithLogger(resourceRepo, recorder, monitor, idGenerator, now, logger)
	engine := application.NewNotificationEngineWithLogger(notificationStore, bookingRepo, resourceRepo, dispatcher, loc, now, logger)
	policy := application.NewReroutingPolicyWithLogger(bookingRepo, weatherStore, recorder, loc, cfg.Weather.DefaultLocation, now, logger)
	ingestor := application.NewWeatherIngestorWithLogger(
		weather.NewClient(cfg.Weather.BaseURL, cfg.Weather.APIKey, cfg.Delivery.Timeout),
		weatherStore,
		cfg.Weather.Locations,
		loc,
		now,
		logger,
	)

	a.runner = jobs.NewRunner(loc, logger)
	registrations := []struct {
		name string
		spec string
		fn   func(context.Context) (application.SweepReport, error)
	}{
		{name: jobRerouting, spec: cfg.Jobs.Rerouting, fn: policy.Run},
		{name: jobNotifications, spec: cfg.Jobs.Notifications, fn: engine.Sweep},
		{name: jobMaintenance, spec: cfg.Jobs.Maintenance, fn: monitor.Sweep},
		{name: jobWeather, spec: cfg.Jobs.Weather, fn: ingestor.Refresh},
	}
	for _, reg := range registrations {
		if err := a.runner.Register(reg.name, reg.spec, sweepJob(reg.fn)); err != nil {
			a.close(context.Background())
			return nil, fmt.Errorf("register job %s: %w", reg.name, err)
		}
	}
	// The runner is stopped before storage closes so in-flight sweeps finish first.
	a.closers = append(a.closers, a.runner.Stop)

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Bookings:  httptransport.NewBookingHandler(a.bookings, logger),
		Resources: httptransport.NewResourceHandler(resources, logger),
		Templates: httptransport.NewTemplateHandler(engine, logger),
		Jobs:      httptransport.NewJobHandler(a.runner, logger),
		Health:    httptransport.NewHealthHandler(store, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.Recover(logger),
			httptransport.RequestLogger(logger),
			httptransport.ActorFromHeader,
		},
	})
	return a, nil
}

// close releases components in reverse order of construction.
func (a *app) close(ctx context.Context) {
	if a.bookings != nil {
		a.bookings.WaitForAlerts()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Error("failed to release component", "error", err)
		}
	}
	a.closers = nil
}

func sweepJob(fn func(context.Context) (application.SweepReport, error)) jobs.Func {
	return func(ctx context.Context) (any, error) {
		report, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return report, nil
	}
}
