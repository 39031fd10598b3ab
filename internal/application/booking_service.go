package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/example/fieldwork-scheduler/internal/audit"
	"github.com/example/fieldwork-scheduler/internal/scheduler"
)

// MaxBookingDays caps the length of a booking window.
const MaxBookingDays = 7

// BookingRepository captures the persistence interactions needed by the booking service.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking Booking) (Booking, error)
	GetBooking(ctx context.Context, id string) (Booking, error)
	UpdateBooking(ctx context.Context, booking Booking) (Booking, error)
	CancelBooking(ctx context.Context, id string, at time.Time) error
	ListBookings(ctx context.Context, query BookingQuery) ([]Booking, error)
	AddBookingResource(ctx context.Context, attachment BookingResource) (BookingResource, error)
	RemoveBookingResource(ctx context.Context, bookingID, attachmentID string) error
	ListBookingResources(ctx context.Context, bookingID string) ([]BookingResource, error)
}

// ResourceLookup exposes resource lookup operations.
type ResourceLookup interface {
	GetResource(ctx context.Context, id string) (Resource, error)
}

// AuditRecorder appends audit entries.
type AuditRecorder interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// ConflictNotifier alerts operations staff about rejected bookings.
type ConflictNotifier interface {
	NotifyConflict(ctx context.Context, alert ConflictAlert) error
}

// BookingService orchestrates validation, conflict detection and persistence for bookings.
type BookingService struct {
	bookings    BookingRepository
	resources   ResourceLookup
	audit       AuditRecorder
	alerts      ConflictNotifier
	location    *time.Location
	locks       *keyedMutex
	pending     sync.WaitGroup
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewBookingService wires dependencies for booking operations.
func NewBookingService(bookings BookingRepository, resources ResourceLookup, recorder AuditRecorder, alerts ConflictNotifier, location *time.Location, idGenerator func() string, now func() time.Time) *BookingService {
	return NewBookingServiceWithLogger(bookings, resources, recorder, alerts, location, idGenerator, now, nil)
}

// NewBookingServiceWithLogger wires dependencies for booking operations with a specified logger.
func NewBookingServiceWithLogger(bookings BookingRepository, resources ResourceLookup, recorder AuditRecorder, alerts ConflictNotifier, location *time.Location, idGenerator func() string, now func() time.Time, logger *slog.Logger) *BookingService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if location == nil {
		location = time.UTC
	}
	return &BookingService{
		bookings:    bookings,
		resources:   resources,
		audit:       recorder,
		alerts:      alerts,
		location:    location,
		locks:       newKeyedMutex(),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *BookingService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "BookingService", operation, attrs...)
}

// CreateBooking validates the request, rejects conflicting windows and persists a scheduled booking.
func (s *BookingService) CreateBooking(ctx context.Context, params CreateBookingParams) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	input := params.Input
	logger := s.loggerWith(ctx, "CreateBooking",
		"actor", params.Actor,
		"resource_id", input.ResourceID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("booking_id", booking.ID).InfoContext(ctx, "booking created")
	}()

	vErr := &ValidationError{}
	validateBookingInput(input, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	start, end := s.capWindow(input.Start, input.End)
	candidate := Booking{
		ID:           s.idGenerator(),
		ResourceKind: input.ResourceKind,
		ResourceID:   strings.TrimSpace(input.ResourceID),
		Start:        start,
		End:          end,
		JobName:      strings.TrimSpace(input.JobName),
		JobNumber:    strings.TrimSpace(input.JobNumber),
		Description:  input.Description,
		Location:     strings.TrimSpace(input.Location),
		Status:       BookingStatusScheduled,
	}

	candidate.AssignedUserID, err = s.resolveAssignee(ctx, candidate.ResourceKind, candidate.ResourceID, strings.TrimSpace(input.AssignedUserID))
	if err != nil {
		return
	}

	unlock := s.locks.Lock(lockKeys(candidate)...)
	defer unlock()

	if err = s.rejectConflicts(ctx, candidate); err != nil {
		return
	}

	createdAt := s.now()
	candidate.CreatedAt = createdAt
	candidate.UpdatedAt = createdAt

	booking, err = s.bookings.CreateBooking(ctx, candidate)
	if err != nil {
		err = mapRepoError("create booking", err)
		return
	}

	s.record(ctx, logger, audit.Entry{
		Action:      audit.ActionAddSchedule,
		Actor:       params.Actor,
		EntityID:    booking.ID,
		EntityLabel: booking.JobName,
		Details: map[string]any{
			"resource_kind": string(booking.ResourceKind),
			"resource_id":   booking.ResourceID,
			"start":         booking.Start.UTC().Format(time.RFC3339),
			"end":           booking.End.UTC().Format(time.RFC3339),
		},
	})
	return
}

// UpdateBooking overwrites the supplied fields of an existing booking. The
// new state is re-validated and, unless the caller is trusted, re-checked
// for conflicts.
func (s *BookingService) UpdateBooking(ctx context.Context, params UpdateBookingParams) (booking Booking, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateBooking",
		"actor", params.Actor,
		"booking_id", params.BookingID,
		"trusted_caller", params.TrustedCaller,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update booking", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "booking updated")
	}()

	var existing Booking
	existing, err = s.bookings.GetBooking(ctx, params.BookingID)
	if err != nil {
		err = mapRepoError("get booking", err)
		return
	}
	if existing.Status == BookingStatusCancelled {
		err = newValidationError("status", "cancelled bookings cannot be modified")
		return
	}

	updated, changed := applyBookingPatch(existing, params.Patch)

	vErr := &ValidationError{}
	validateBookingInput(BookingInput{
		ResourceKind: updated.ResourceKind,
		ResourceID:   updated.ResourceID,
		Start:        updated.Start,
		End:          updated.End,
		JobName:      updated.JobName,
	}, vErr)
	if params.Patch.Status != nil {
		switch status := *params.Patch.Status; {
		case !status.Valid():
			vErr.add("status", "unknown status")
		case status == BookingStatusCancelled:
			vErr.add("status", "use delete to cancel a booking")
		}
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	updated.Start, updated.End = s.capWindow(updated.Start, updated.End)

	requested := updated.AssignedUserID
	if params.Patch.AssignedUserID == nil && updated.ResourceID != existing.ResourceID {
		requested = existing.AssignedUserID
	}
	updated.AssignedUserID, err = s.resolveAssignee(ctx, updated.ResourceKind, updated.ResourceID, requested)
	if err != nil {
		return
	}

	unlock := s.locks.Lock(lockKeys(updated)...)
	defer unlock()

	if !params.TrustedCaller {
		if err = s.rejectConflicts(ctx, updated); err != nil {
			return
		}
	}

	updated.UpdatedAt = s.now()
	booking, err = s.bookings.UpdateBooking(ctx, updated)
	if err != nil {
		err = mapRepoError("update booking", err)
		return
	}

	s.record(ctx, logger, audit.Entry{
		Action:      audit.ActionUpdateSchedule,
		Actor:       params.Actor,
		EntityID:    booking.ID,
		EntityLabel: booking.JobName,
		Details:     map[string]any{"fields": changed, "trusted_caller": params.TrustedCaller},
	})
	return
}

// DeleteBooking cancels an active booking and detaches its secondary resources.
func (s *BookingService) DeleteBooking(ctx context.Context, actor, bookingID string) (err error) {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteBooking",
		"actor", actor,
		"booking_id", bookingID,
	)

	var existing Booking
	existing, err = s.bookings.GetBooking(ctx, bookingID)
	if err == nil && existing.Status == BookingStatusCancelled {
		err = ErrNotFound
	}
	if err == nil {
		err = s.bookings.CancelBooking(ctx, bookingID, s.now())
	}
	if err != nil {
		err = mapRepoError("cancel booking", err)
		logger.ErrorContext(ctx, "failed to delete booking", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	s.record(ctx, logger, audit.Entry{
		Action:      audit.ActionDeleteSchedule,
		Actor:       actor,
		EntityID:    bookingID,
		EntityLabel: existing.JobName,
	})
	logger.InfoContext(ctx, "booking cancelled")
	return nil
}

// GetBooking returns a booking with its attached secondary resources.
func (s *BookingService) GetBooking(ctx context.Context, bookingID string) (Booking, error) {
	if s == nil {
		return Booking{}, fmt.Errorf("BookingService is nil")
	}
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return Booking{}, mapRepoError("get booking", err)
	}
	attachments, err := s.bookings.ListBookingResources(ctx, bookingID)
	if err != nil {
		return Booking{}, mapRepoError("list booking resources", err)
	}
	booking.Resources = attachments
	return booking, nil
}

// ListBookings returns bookings matching params ordered by start time then ID.
func (s *BookingService) ListBookings(ctx context.Context, params ListBookingsParams) (bookings []Booking, err error) {
	if s == nil {
		return nil, fmt.Errorf("BookingService is nil")
	}

	vErr := &ValidationError{}
	for _, status := range params.Statuses {
		if !status.Valid() {
			vErr.add("status", fmt.Sprintf("unknown status %q", status))
		}
	}
	if params.From != nil && params.Until != nil && params.Until.Before(*params.From) {
		vErr.add("until", "until must not be before from")
	}
	if vErr.HasErrors() {
		return nil, vErr
	}

	bookings, err = s.bookings.ListBookings(ctx, BookingQuery{
		Statuses:       params.Statuses,
		ResourceID:     params.ResourceID,
		AssignedUserID: params.AssignedUserID,
		OverlapsFrom:   params.From,
		OverlapsUntil:  params.Until,
	})
	if err != nil {
		err = mapRepoError("list bookings", err)
		s.loggerWith(ctx, "ListBookings").ErrorContext(ctx, "failed to list bookings", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return bookings, nil
}

// AddResource attaches a secondary resource to an existing booking.
func (s *BookingService) AddResource(ctx context.Context, params AddBookingResourceParams) (attachment BookingResource, err error) {
	if s == nil {
		err = fmt.Errorf("BookingService is nil")
		return
	}

	logger := s.loggerWith(ctx, "AddResource",
		"actor", params.Actor,
		"booking_id", params.BookingID,
		"resource_id", params.ResourceID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to attach resource", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("attachment_id", attachment.ID).InfoContext(ctx, "resource attached")
	}()

	quantity := params.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 {
		err = newValidationError("quantity", "quantity must be at least 1")
		return
	}

	var booking Booking
	if booking, err = s.bookings.GetBooking(ctx, params.BookingID); err != nil {
		err = mapRepoError("get booking", err)
		return
	}
	if booking.Status == BookingStatusCancelled {
		err = ErrNotFound
		return
	}

	var resource Resource
	if resource, err = s.resources.GetResource(ctx, params.ResourceID); err != nil {
		err = mapRepoError("get resource", err)
		return
	}

	attachment, err = s.bookings.AddBookingResource(ctx, BookingResource{
		ID:             s.idGenerator(),
		BookingID:      booking.ID,
		ResourceKind:   resource.Kind,
		ResourceID:     resource.ID,
		Quantity:       quantity,
		AssignedUserID: strings.TrimSpace(params.AssignedUserID),
		CreatedAt:      s.now(),
	})
	if err != nil {
		err = mapRepoError("add booking resource", err)
		return
	}

	s.record(ctx, logger, audit.Entry{
		Action:      audit.ActionAddJobResource,
		Actor:       params.Actor,
		EntityID:    booking.ID,
		EntityLabel: booking.JobName,
		Details: map[string]any{
			"attachment_id": attachment.ID,
			"resource_id":   resource.ID,
			"resource_name": resource.Name,
			"quantity":      quantity,
		},
	})
	return
}

// RemoveResource detaches a secondary resource from a booking.
func (s *BookingService) RemoveResource(ctx context.Context, actor, bookingID, attachmentID string) error {
	if s == nil {
		return fmt.Errorf("BookingService is nil")
	}

	logger := s.loggerWith(ctx, "RemoveResource",
		"actor", actor,
		"booking_id", bookingID,
		"attachment_id", attachmentID,
	)

	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err == nil {
		err = s.bookings.RemoveBookingResource(ctx, bookingID, attachmentID)
	}
	if err != nil {
		err = mapRepoError("remove booking resource", err)
		logger.ErrorContext(ctx, "failed to detach resource", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	s.record(ctx, logger, audit.Entry{
		Action:      audit.ActionRemoveResource,
		Actor:       actor,
		EntityID:    bookingID,
		EntityLabel: booking.JobName,
		Details:     map[string]any{"attachment_id": attachmentID},
	})
	logger.InfoContext(ctx, "resource detached")
	return nil
}

// WaitForAlerts blocks until conflict alerts dispatched in the background finish.
func (s *BookingService) WaitForAlerts() {
	if s != nil {
		s.pending.Wait()
	}
}

// capWindow truncates windows longer than MaxBookingDays. The new end keeps
// the start's wall-clock time in the business location.
func (s *BookingService) capWindow(start, end time.Time) (time.Time, time.Time) {
	limit := start.In(s.location).AddDate(0, 0, MaxBookingDays)
	if end.After(limit) {
		return start, limit
	}
	return start, end
}

// resolveAssignee decides who works the booking. Equipment keeps its operator
// only when it requires one, a person is their own assignee and consumables
// keep whoever was given.
func (s *BookingService) resolveAssignee(ctx context.Context, kind ResourceKind, resourceID, requested string) (string, error) {
	resource, err := s.resources.GetResource(ctx, resourceID)
	if err != nil {
		mapped := mapRepoError("get resource", err)
		if mapped == ErrNotFound {
			return "", newValidationError("resource_id", "resource does not exist")
		}
		return "", mapped
	}
	if resource.Kind != kind {
		return "", newValidationError("resource_kind", fmt.Sprintf("resource %s is %s, not %s", resource.Name, resource.Kind, kind))
	}

	var assignee string
	switch kind {
	case ResourceKindEquipment:
		if resource.RequiresOperator {
			assignee = requested
		}
	case ResourceKindPerson:
		return resource.ID, nil
	case ResourceKindConsumable:
		assignee = requested
	}
	if assignee == "" {
		return "", nil
	}

	person, err := s.resources.GetResource(ctx, assignee)
	if err != nil {
		mapped := mapRepoError("get assignee", err)
		if mapped == ErrNotFound {
			return "", newValidationError("assigned_user_id", "assigned person does not exist")
		}
		return "", mapped
	}
	if person.Kind != ResourceKindPerson {
		return "", newValidationError("assigned_user_id", "assignee must be a person")
	}
	return person.ID, nil
}

// rejectConflicts runs the conflict detector against active bookings that
// share the candidate's resource or assignee, whatever the resource kind.
func (s *BookingService) rejectConflicts(ctx context.Context, candidate Booking) error {
	from, until := candidate.Start, candidate.End
	existing := make(map[string]Booking)

	collect := func(query BookingQuery) error {
		query.Statuses = activeStatuses
		query.OverlapsFrom = &from
		query.OverlapsUntil = &until
		found, err := s.bookings.ListBookings(ctx, query)
		if err != nil {
			return mapRepoError("list bookings", err)
		}
		for _, booking := range found {
			existing[booking.ID] = booking
		}
		return nil
	}

	detectorCandidate := scheduler.Booking{
		ID:         candidate.ID,
		ResourceID: candidate.ResourceID,
		AssigneeID: candidate.AssignedUserID,
		Window:     candidate.window(),
	}
	if err := collect(BookingQuery{ResourceID: candidate.ResourceID}); err != nil {
		return err
	}
	if candidate.AssignedUserID != "" {
		if err := collect(BookingQuery{AssignedUserID: candidate.AssignedUserID}); err != nil {
			return err
		}
	}

	others := make([]scheduler.Booking, 0, len(existing))
	for _, booking := range existing {
		view := scheduler.Booking{
			ID:         booking.ID,
			ResourceID: booking.ResourceID,
			AssigneeID: booking.AssignedUserID,
			Window:     booking.window(),
			Inactive:   !booking.Status.Active(),
		}
		others = append(others, view)
	}

	conflicts, err := scheduler.DetectConflicts(others, detectorCandidate)
	if err != nil {
		return newValidationError("end", "end must not be before start")
	}
	if len(conflicts) == 0 {
		return nil
	}

	s.notifyConflict(ctx, candidate, conflicts, existing)
	return &ConflictError{Conflicts: conflicts}
}

func (s *BookingService) notifyConflict(ctx context.Context, candidate Booking, conflicts []scheduler.Conflict, existing map[string]Booking) {
	if s.alerts == nil {
		return
	}

	alert := ConflictAlert{
		JobName: candidate.JobName,
		Start:   candidate.Start,
		End:     candidate.End,
	}
	for _, conflict := range conflicts {
		alert.Conflicts = append(alert.Conflicts, ConflictDetail{
			BookingID:  conflict.WithBookingID,
			JobName:    existing[conflict.WithBookingID].JobName,
			Type:       conflict.Type,
			ResourceID: conflict.ResourceID,
			Start:      conflict.Window.Start,
			End:        conflict.Window.End,
		})
	}

	detached := context.WithoutCancel(ctx)
	logger := s.loggerWith(ctx, "NotifyConflict", "job_name", candidate.JobName)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.alerts.NotifyConflict(detached, alert); err != nil {
			logger.WarnContext(detached, "failed to send conflict alert", "error", err, "error_kind", ErrorKind(err))
		}
	}()
}

func (s *BookingService) record(ctx context.Context, logger *slog.Logger, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		logger.WarnContext(ctx, "failed to record audit entry", "action", entry.Action, "error", err)
	}
}

func validateBookingInput(input BookingInput, vErr *ValidationError) {
	if !input.ResourceKind.Valid() {
		vErr.add("resource_kind", "resource kind must be equipment, person or consumable")
	}
	if strings.TrimSpace(input.ResourceID) == "" {
		vErr.add("resource_id", "resource is required")
	}
	if strings.TrimSpace(input.JobName) == "" {
		vErr.add("job_name", "job name is required")
	}
	if input.Start.IsZero() {
		vErr.add("start", "start is required")
	}
	if input.End.IsZero() {
		vErr.add("end", "end is required")
	}
	if !input.Start.IsZero() && !input.End.IsZero() {
		if err := (scheduler.Window{Start: input.Start, End: input.End}).Validate(); err != nil {
			vErr.add("end", "end must not be before start")
		}
	}
}

func applyBookingPatch(existing Booking, patch BookingPatch) (Booking, []string) {
	updated := existing
	var changed []string
	if patch.ResourceKind != nil {
		updated.ResourceKind = *patch.ResourceKind
		changed = append(changed, "resource_kind")
	}
	if patch.ResourceID != nil {
		updated.ResourceID = strings.TrimSpace(*patch.ResourceID)
		changed = append(changed, "resource_id")
	}
	if patch.Start != nil {
		updated.Start = *patch.Start
		changed = append(changed, "start")
	}
	if patch.End != nil {
		updated.End = *patch.End
		changed = append(changed, "end")
	}
	if patch.JobName != nil {
		updated.JobName = strings.TrimSpace(*patch.JobName)
		changed = append(changed, "job_name")
	}
	if patch.JobNumber != nil {
		updated.JobNumber = strings.TrimSpace(*patch.JobNumber)
		changed = append(changed, "job_number")
	}
	if patch.Description != nil {
		updated.Description = *patch.Description
		changed = append(changed, "description")
	}
	if patch.Location != nil {
		updated.Location = strings.TrimSpace(*patch.Location)
		changed = append(changed, "location")
	}
	if patch.AssignedUserID != nil {
		updated.AssignedUserID = strings.TrimSpace(*patch.AssignedUserID)
		changed = append(changed, "assigned_user_id")
	}
	if patch.Status != nil {
		updated.Status = *patch.Status
		changed = append(changed, "status")
	}
	return updated, changed
}

func lockKeys(booking Booking) []string {
	keys := []string{"resource:" + booking.ResourceID}
	if booking.AssignedUserID != "" {
		keys = append(keys, "person:"+booking.AssignedUserID)
	}
	return keys
}
