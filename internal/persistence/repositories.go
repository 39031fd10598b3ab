package persistence

import (
	"context"
	"time"
)

// BookingFilter narrows booking queries. Empty fields do not filter.
type BookingFilter struct {
	Statuses       []string
	ResourceID     string
	AssignedUserID string
	// OverlapsFrom and OverlapsUntil select bookings whose half-open window
	// intersects [OverlapsFrom, OverlapsUntil).
	OverlapsFrom  *time.Time
	OverlapsUntil *time.Time
	// StartsFrom and StartsBefore select bookings starting in [StartsFrom, StartsBefore).
	StartsFrom   *time.Time
	StartsBefore *time.Time
	// EndsFrom selects bookings ending at or after the given instant.
	EndsFrom *time.Time
}

// BookingRepository stores bookings and their secondary resources.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking Booking) error
	UpdateBooking(ctx context.Context, booking Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)
	ListBookings(ctx context.Context, filter BookingFilter) ([]Booking, error)
	CancelBooking(ctx context.Context, id string, at time.Time) error
	RescheduleBooking(ctx context.Context, id string, start, end, at time.Time) error
	AddBookingResource(ctx context.Context, attachment BookingResource) error
	RemoveBookingResource(ctx context.Context, bookingID, attachmentID string) error
	ListBookingResources(ctx context.Context, bookingID string) ([]BookingResource, error)
}

// ResourceRepository stores the resource catalog.
type ResourceRepository interface {
	CreateResource(ctx context.Context, resource Resource) error
	UpdateResource(ctx context.Context, resource Resource) error
	GetResource(ctx context.Context, id string) (Resource, error)
	ListResources(ctx context.Context, kind string) ([]Resource, error)
	DeleteResource(ctx context.Context, id string) error
}

// NotificationRepository stores templates, rules, town contacts and deliveries.
type NotificationRepository interface {
	CreateTemplate(ctx context.Context, template Template) error
	GetTemplate(ctx context.Context, id string) (Template, error)
	TouchTemplate(ctx context.Context, id string, at time.Time) error
	CreateRule(ctx context.Context, rule Rule) error
	ListActiveRules(ctx context.Context) ([]Rule, error)
	ListTowns(ctx context.Context) ([]Town, error)
	AppendDelivery(ctx context.Context, record DeliveryRecord) (DeliveryRecord, error)
	HasSentDelivery(ctx context.Context, ruleID, bookingID, triggerDate string) (bool, error)
	ListDeliveries(ctx context.Context, bookingID string) ([]DeliveryRecord, error)
}

// WeatherRepository stores weather observations.
type WeatherRepository interface {
	SaveObservation(ctx context.Context, obs WeatherObservation) (WeatherObservation, error)
	LatestObservation(ctx context.Context, date, location string) (WeatherObservation, error)
}

// AuditRepository appends audit records.
type AuditRepository interface {
	AppendAudit(ctx context.Context, record AuditRecord) (AuditRecord, error)
	ListAudit(ctx context.Context, action string, limit int) ([]AuditRecord, error)
}
