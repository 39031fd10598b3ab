package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/fieldwork-scheduler/internal/weather"
)

// WeatherSource fetches current conditions for a location.
type WeatherSource interface {
	Current(ctx context.Context, location string) (weather.Observation, error)
}

// ObservationStore persists weather observations.
type ObservationStore interface {
	SaveObservation(ctx context.Context, obs WeatherObservation) (WeatherObservation, error)
}

// WeatherIngestor periodically stores observations for the configured locations.
type WeatherIngestor struct {
	source    WeatherSource
	store     ObservationStore
	locations []string
	location  *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

// NewWeatherIngestor constructs an ingestor for locations. Observations are dated in tz.
func NewWeatherIngestor(source WeatherSource, store ObservationStore, locations []string, tz *time.Location, now func() time.Time) *WeatherIngestor {
	return NewWeatherIngestorWithLogger(source, store, locations, tz, now, nil)
}

// NewWeatherIngestorWithLogger constructs an ingestor with a specified logger.
func NewWeatherIngestorWithLogger(source WeatherSource, store ObservationStore, locations []string, tz *time.Location, now func() time.Time, logger *slog.Logger) *WeatherIngestor {
	if tz == nil {
		tz = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &WeatherIngestor{
		source:    source,
		store:     store,
		locations: append([]string(nil), locations...),
		location:  tz,
		now:       now,
		logger:    defaultLogger(logger),
	}
}

// Refresh fetches and stores an observation for every location. A failure for
// one location is logged and the rest are still fetched.
func (w *WeatherIngestor) Refresh(ctx context.Context) (report SweepReport, err error) {
	if w == nil {
		err = fmt.Errorf("WeatherIngestor is nil")
		return
	}

	report = SweepReport{Job: "weather", StartedAt: w.now()}
	logger := serviceLogger(ctx, w.logger, "WeatherIngestor", "Refresh")
	defer func() {
		report.FinishedAt = w.now()
		if err != nil {
			logger.ErrorContext(ctx, "weather refresh failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "weather refresh finished", "affected", report.Affected, "failed", report.Failed)
	}()

	date := w.now().In(w.location).Format("2006-01-02")
	for _, location := range w.locations {
		if ctx.Err() != nil {
			err = ctx.Err()
			return
		}
		report.Examined++

		current, fetchErr := w.source.Current(ctx, location)
		if fetchErr != nil {
			report.Failed++
			logger.WarnContext(ctx, "failed to fetch weather", "location", location, "error", fetchErr)
			continue
		}

		observedAt := current.ObservedAt
		if observedAt.IsZero() {
			observedAt = w.now()
		}
		_, saveErr := w.store.SaveObservation(ctx, WeatherObservation{
			Location:      location,
			Date:          date,
			Temperature:   current.Temperature,
			WindSpeed:     current.WindSpeed,
			Precipitation: current.Precipitation,
			ObservedAt:    observedAt,
		})
		if saveErr != nil {
			saveErr = mapRepoError("save observation", saveErr)
			report.Failed++
			logger.ErrorContext(ctx, "failed to store weather", "location", location, "error", saveErr, "error_kind", ErrorKind(saveErr))
			continue
		}
		report.Affected++
	}
	return
}
