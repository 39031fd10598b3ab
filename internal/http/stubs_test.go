package http

import (
	"context"
	"sync"

	"github.com/example/fieldwork-scheduler/internal/application"
)

type bookingServiceStub struct {
	mu sync.Mutex

	created  []application.CreateBookingParams
	updated  []application.UpdateBookingParams
	listed   []application.ListBookingsParams
	attached []application.AddBookingResourceParams
	deleted  []string
	actors   []string

	booking    application.Booking
	bookings   []application.Booking
	attachment application.BookingResource
	err        error
}

func (s *bookingServiceStub) CreateBooking(_ context.Context, params application.CreateBookingParams) (application.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, params)
	s.actors = append(s.actors, params.Actor)
	if s.err != nil {
		return application.Booking{}, s.err
	}
	booking := s.booking
	if booking.ID == "" {
		booking = application.Booking{
			ID:           "booking-1",
			ResourceKind: params.Input.ResourceKind,
			ResourceID:   params.Input.ResourceID,
			Start:        params.Input.Start,
			End:          params.Input.End,
			JobName:      params.Input.JobName,
			Status:       application.BookingStatusScheduled,
		}
	}
	return booking, nil
}

func (s *bookingServiceStub) UpdateBooking(_ context.Context, params application.UpdateBookingParams) (application.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updated = append(s.updated, params)
	s.actors = append(s.actors, params.Actor)
	return s.booking, s.err
}

func (s *bookingServiceStub) DeleteBooking(_ context.Context, actor, bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, bookingID)
	s.actors = append(s.actors, actor)
	return s.err
}

func (s *bookingServiceStub) GetBooking(_ context.Context, bookingID string) (application.Booking, error) {
	if s.err != nil {
		return application.Booking{}, s.err
	}
	booking := s.booking
	booking.ID = bookingID
	return booking, nil
}

func (s *bookingServiceStub) ListBookings(_ context.Context, params application.ListBookingsParams) ([]application.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listed = append(s.listed, params)
	return s.bookings, s.err
}

func (s *bookingServiceStub) AddResource(_ context.Context, params application.AddBookingResourceParams) (application.BookingResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = append(s.attached, params)
	return s.attachment, s.err
}

func (s *bookingServiceStub) RemoveResource(_ context.Context, actor, bookingID, attachmentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, bookingID+"/"+attachmentID)
	s.actors = append(s.actors, actor)
	return s.err
}

type resourceServiceStub struct {
	mu sync.Mutex

	resource application.Resource
	listKind application.ResourceKind
	usage    []float64
	deltas   []float64
	inputs   []application.ResourceInput
	err      error
}

func (s *resourceServiceStub) CreateResource(_ context.Context, params application.CreateResourceParams) (application.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, params.Input)
	if s.err != nil {
		return application.Resource{}, s.err
	}
	return application.Resource{ID: "res-1", Kind: params.Input.Kind, Name: params.Input.Name}, nil
}

func (s *resourceServiceStub) UpdateResource(_ context.Context, params application.UpdateResourceParams) (application.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, params.Input)
	if s.err != nil {
		return application.Resource{}, s.err
	}
	return application.Resource{ID: params.ResourceID, Kind: params.Input.Kind, Name: params.Input.Name}, nil
}

func (s *resourceServiceStub) GetResource(context.Context, string) (application.Resource, error) {
	return s.resource, s.err
}

func (s *resourceServiceStub) ListResources(_ context.Context, kind application.ResourceKind) ([]application.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listKind = kind
	if s.err != nil {
		return nil, s.err
	}
	return []application.Resource{s.resource}, nil
}

func (s *resourceServiceStub) RecordUsage(_ context.Context, _, _ string, hours float64) (application.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, hours)
	res := s.resource
	res.UsageHours += hours
	return res, s.err
}

func (s *resourceServiceStub) AdjustStock(_ context.Context, _, _ string, delta float64) (application.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, delta)
	res := s.resource
	res.Quantity += delta
	return res, s.err
}

func (s *resourceServiceStub) DeleteResource(context.Context, string, string) error {
	return s.err
}

type previewerStub struct {
	overrides map[string]string
	err       error
}

func (p *previewerStub) PreviewTemplate(_ context.Context, templateID string, overrides map[string]string) (application.TemplatePreview, error) {
	p.overrides = overrides
	if p.err != nil {
		return application.TemplatePreview{}, p.err
	}
	return application.TemplatePreview{TemplateID: templateID, Subject: "Reminder for " + overrides["job_name"]}, nil
}

type jobTriggerStub struct {
	result any
	shared bool
	err    error
	names  []string
}

func (j *jobTriggerStub) Trigger(_ context.Context, name string) (any, bool, error) {
	j.names = append(j.names, name)
	return j.result, j.shared, j.err
}

type pingerStub struct {
	err error
}

func (p pingerStub) Ping(context.Context) error {
	return p.err
}
