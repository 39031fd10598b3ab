package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/fieldwork-scheduler/internal/audit"
	"github.com/example/fieldwork-scheduler/internal/conditions"
)

// RerouteBookings is the subset of booking persistence used by the rerouting policy.
type RerouteBookings interface {
	ListBookings(ctx context.Context, query BookingQuery) ([]Booking, error)
	// RescheduleBooking moves a booking that is still scheduled to the new
	// window and marks it rescheduled. It returns an error matching
	// ErrNotFound when the booking is gone or no longer scheduled.
	RescheduleBooking(ctx context.Context, id string, start, end, at time.Time) (Booking, error)
}

// WeatherLookup returns the latest observation for a date and location.
// It returns an error matching ErrNotFound when none exists.
type WeatherLookup interface {
	LatestObservation(ctx context.Context, date, location string) (WeatherObservation, error)
}

// ReroutingPolicy moves today's bookings one day forward when conditions at
// the job location are unsafe.
type ReroutingPolicy struct {
	bookings        RerouteBookings
	weather         WeatherLookup
	audit           AuditRecorder
	location        *time.Location
	defaultLocation string
	now             func() time.Time
	logger          *slog.Logger
}

// NewReroutingPolicy constructs a policy. defaultLocation is used for bookings without a location.
func NewReroutingPolicy(bookings RerouteBookings, weather WeatherLookup, recorder AuditRecorder, location *time.Location, defaultLocation string, now func() time.Time) *ReroutingPolicy {
	return NewReroutingPolicyWithLogger(bookings, weather, recorder, location, defaultLocation, now, nil)
}

// NewReroutingPolicyWithLogger constructs a policy with a specified logger.
func NewReroutingPolicyWithLogger(bookings RerouteBookings, weather WeatherLookup, recorder AuditRecorder, location *time.Location, defaultLocation string, now func() time.Time, logger *slog.Logger) *ReroutingPolicy {
	if location == nil {
		location = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &ReroutingPolicy{
		bookings:        bookings,
		weather:         weather,
		audit:           recorder,
		location:        location,
		defaultLocation: defaultLocation,
		now:             now,
		logger:          defaultLogger(logger),
	}
}

func (p *ReroutingPolicy) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, p.logger, "ReroutingPolicy", operation, attrs...)
}

// Run evaluates every scheduled booking starting today and shifts those
// facing unsafe weather by one calendar day.
func (p *ReroutingPolicy) Run(ctx context.Context) (report SweepReport, err error) {
	if p == nil {
		err = fmt.Errorf("ReroutingPolicy is nil")
		return
	}

	startedAt := p.now()
	report = SweepReport{Job: "rerouting", StartedAt: startedAt}
	dayStart := startOfDay(startedAt, p.location)
	dayEnd := dayStart.AddDate(0, 0, 1)
	today := dayStart.Format("2006-01-02")

	logger := p.loggerWith(ctx, "Run", "date", today)
	defer func() {
		report.FinishedAt = p.now()
		if err != nil {
			logger.ErrorContext(ctx, "rerouting sweep failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "rerouting sweep finished",
			"examined", report.Examined,
			"affected", report.Affected,
			"failed", report.Failed,
		)
	}()

	var candidates []Booking
	candidates, err = p.bookings.ListBookings(ctx, BookingQuery{
		Statuses:     []BookingStatus{BookingStatusScheduled},
		StartsFrom:   &dayStart,
		StartsBefore: &dayEnd,
	})
	if err != nil {
		err = mapRepoError("list bookings", err)
		return
	}

	for _, booking := range candidates {
		if ctx.Err() != nil {
			err = ctx.Err()
			return
		}
		report.Examined++

		moved, evalErr := p.evaluate(ctx, logger, booking, today)
		switch {
		case evalErr != nil:
			report.Failed++
			logger.ErrorContext(ctx, "failed to reroute booking",
				"booking_id", booking.ID,
				"error", evalErr,
				"error_kind", ErrorKind(evalErr),
			)
		case moved:
			report.Affected++
		default:
			report.Skipped++
		}
	}
	return
}

func (p *ReroutingPolicy) evaluate(ctx context.Context, logger *slog.Logger, booking Booking, date string) (bool, error) {
	location := booking.Location
	if location == "" {
		location = p.defaultLocation
	}

	obs, found, err := p.lookup(ctx, date, location)
	if err != nil {
		return false, err
	}
	if !conditions.NeedsRerouting(conditions.Weather{
		Location:      obs.Location,
		Date:          obs.Date,
		Temperature:   obs.Temperature,
		WindSpeed:     obs.WindSpeed,
		Precipitation: obs.Precipitation,
	}, found) {
		return false, nil
	}

	previousStart, previousEnd := booking.Start, booking.End
	start := shiftOneDay(booking.Start, p.location)
	end := shiftOneDay(booking.End, p.location)

	updated, err := p.bookings.RescheduleBooking(ctx, booking.ID, start, end, p.now())
	if err != nil {
		mapped := mapRepoError("reschedule booking", err)
		if errors.Is(mapped, ErrNotFound) {
			logger.InfoContext(ctx, "booking changed during sweep, leaving it", "booking_id", booking.ID)
			return false, nil
		}
		return false, mapped
	}

	if p.audit != nil {
		entry := audit.Entry{
			Action:      audit.ActionReroute,
			Actor:       audit.SystemActor,
			EntityID:    updated.ID,
			EntityLabel: updated.JobName,
			Details: map[string]any{
				"reason":         "weather/equipment",
				"location":       location,
				"wind_speed":     obs.WindSpeed,
				"precipitation":  obs.Precipitation,
				"previous_start": previousStart.UTC().Format(time.RFC3339),
				"previous_end":   previousEnd.UTC().Format(time.RFC3339),
			},
		}
		if auditErr := p.audit.Record(ctx, entry); auditErr != nil {
			logger.WarnContext(ctx, "failed to record audit entry", "action", entry.Action, "error", auditErr)
		}
	}
	logger.InfoContext(ctx, "booking rerouted", "booking_id", updated.ID, "new_start", updated.Start)
	return true, nil
}

func (p *ReroutingPolicy) lookup(ctx context.Context, date, location string) (WeatherObservation, bool, error) {
	if location == "" {
		return WeatherObservation{}, false, nil
	}
	obs, err := p.weather.LatestObservation(ctx, date, location)
	if err != nil {
		mapped := mapRepoError("lookup weather", err)
		if errors.Is(mapped, ErrNotFound) {
			return WeatherObservation{}, false, nil
		}
		return WeatherObservation{}, false, mapped
	}
	return obs, true, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// shiftOneDay moves t one calendar day forward keeping its wall-clock time in loc.
func shiftOneDay(t time.Time, loc *time.Location) time.Time {
	return t.In(loc).AddDate(0, 0, 1)
}
