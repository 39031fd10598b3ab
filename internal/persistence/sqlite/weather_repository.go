package sqlite

import (
	"context"

	"github.com/example/fieldwork-scheduler/internal/persistence"
)

// WeatherRepository implements persistence.WeatherRepository using SQLite
type WeatherRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewWeatherRepository creates a new SQLite weather repository
func NewWeatherRepository(pool *ConnectionPool) *WeatherRepository {
	return &WeatherRepository{
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// SaveObservation appends an observation and returns it with its assigned ID
func (r *WeatherRepository) SaveObservation(ctx context.Context, obs persistence.WeatherObservation) (persistence.WeatherObservation, error) {
	if obs.Location == "" || obs.Date == "" {
		return persistence.WeatherObservation{}, persistence.ErrConstraintViolation
	}
	result, err := r.helper.Exec(ctx, `
		INSERT INTO weather_observations (location, date, temperature, wind_speed, precipitation, observed_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		obs.Location, obs.Date, obs.Temperature, obs.WindSpeed, obs.Precipitation, formatTime(obs.ObservedAt),
	)
	if err != nil {
		return persistence.WeatherObservation{}, r.mapper.MapError(err)
	}
	if obs.ID, err = result.LastInsertId(); err != nil {
		return persistence.WeatherObservation{}, r.mapper.MapError(err)
	}
	return obs, nil
}

// LatestObservation returns the most recent observation recorded for the
// location on date (YYYY-MM-DD), or persistence.ErrNotFound.
func (r *WeatherRepository) LatestObservation(ctx context.Context, date, location string) (persistence.WeatherObservation, error) {
	var (
		obs        persistence.WeatherObservation
		observedAt string
	)
	err := r.helper.QueryRow(ctx, `
		SELECT id, location, date, temperature, wind_speed, precipitation, observed_at
		FROM weather_observations
		WHERE date = ? AND location = ?
		ORDER BY observed_at DESC, id DESC
		LIMIT 1`, date, location).Scan(
		&obs.ID, &obs.Location, &obs.Date, &obs.Temperature, &obs.WindSpeed, &obs.Precipitation, &observedAt,
	)
	if err != nil {
		return persistence.WeatherObservation{}, r.mapper.MapError(err)
	}
	if obs.ObservedAt, err = parseTime("observed_at", observedAt); err != nil {
		return persistence.WeatherObservation{}, err
	}
	return obs, nil
}
