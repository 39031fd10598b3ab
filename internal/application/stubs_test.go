package application

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/example/fieldwork-scheduler/internal/audit"
	"github.com/example/fieldwork-scheduler/internal/persistence"
)

type bookingRepoStub struct {
	mu          sync.Mutex
	bookings    map[string]Booking
	attachments map[string][]BookingResource
	queries     []BookingQuery
	listErr     error
	updateErr   map[string]error
	cancelled   []string
	// beforeReschedule runs ahead of each reschedule write, outside the lock.
	beforeReschedule func(id string)
}

func newBookingRepoStub(bookings ...Booking) *bookingRepoStub {
	repo := &bookingRepoStub{
		bookings:    make(map[string]Booking),
		attachments: make(map[string][]BookingResource),
		updateErr:   make(map[string]error),
	}
	for _, booking := range bookings {
		repo.bookings[booking.ID] = booking
	}
	return repo
}

func (r *bookingRepoStub) CreateBooking(ctx context.Context, booking Booking) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[booking.ID]; ok {
		return Booking{}, persistence.ErrDuplicate
	}
	r.bookings[booking.ID] = booking
	return booking, nil
}

func (r *bookingRepoStub) GetBooking(ctx context.Context, id string) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok {
		return Booking{}, persistence.ErrNotFound
	}
	return booking, nil
}

func (r *bookingRepoStub) UpdateBooking(ctx context.Context, booking Booking) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.updateErr[booking.ID]; err != nil {
		return Booking{}, err
	}
	if _, ok := r.bookings[booking.ID]; !ok {
		return Booking{}, persistence.ErrNotFound
	}
	r.bookings[booking.ID] = booking
	return booking, nil
}

func (r *bookingRepoStub) RescheduleBooking(ctx context.Context, id string, start, end, at time.Time) (Booking, error) {
	if r.beforeReschedule != nil {
		r.beforeReschedule(id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.updateErr[id]; err != nil {
		return Booking{}, err
	}
	booking, ok := r.bookings[id]
	if !ok || booking.Status != BookingStatusScheduled {
		return Booking{}, persistence.ErrNotFound
	}
	booking.Start = start
	booking.End = end
	booking.Status = BookingStatusRescheduled
	booking.UpdatedAt = at
	r.bookings[id] = booking
	return booking, nil
}

func (r *bookingRepoStub) CancelBooking(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	booking, ok := r.bookings[id]
	if !ok || booking.Status == BookingStatusCancelled {
		return persistence.ErrNotFound
	}
	booking.Status = BookingStatusCancelled
	booking.UpdatedAt = at
	r.bookings[id] = booking
	delete(r.attachments, id)
	r.cancelled = append(r.cancelled, id)
	return nil
}

func (r *bookingRepoStub) ListBookings(ctx context.Context, query BookingQuery) ([]Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	if r.listErr != nil {
		return nil, r.listErr
	}

	var out []Booking
	for _, booking := range r.bookings {
		if !matchesQuery(booking, query) {
			continue
		}
		out = append(out, booking)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func matchesQuery(booking Booking, query BookingQuery) bool {
	if len(query.Statuses) > 0 {
		found := false
		for _, status := range query.Statuses {
			if booking.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if query.ResourceID != "" && booking.ResourceID != query.ResourceID {
		return false
	}
	if query.AssignedUserID != "" && booking.AssignedUserID != query.AssignedUserID {
		return false
	}
	if query.OverlapsFrom != nil && !booking.End.After(*query.OverlapsFrom) {
		return false
	}
	if query.OverlapsUntil != nil && !booking.Start.Before(*query.OverlapsUntil) {
		return false
	}
	if query.StartsFrom != nil && booking.Start.Before(*query.StartsFrom) {
		return false
	}
	if query.StartsBefore != nil && !booking.Start.Before(*query.StartsBefore) {
		return false
	}
	if query.EndsFrom != nil && booking.End.Before(*query.EndsFrom) {
		return false
	}
	return true
}

func (r *bookingRepoStub) AddBookingResource(ctx context.Context, attachment BookingResource) (BookingResource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attachments[attachment.BookingID] = append(r.attachments[attachment.BookingID], attachment)
	return attachment, nil
}

func (r *bookingRepoStub) RemoveBookingResource(ctx context.Context, bookingID, attachmentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.attachments[bookingID]
	for i, attachment := range list {
		if attachment.ID == attachmentID {
			r.attachments[bookingID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return persistence.ErrNotFound
}

func (r *bookingRepoStub) ListBookingResources(ctx context.Context, bookingID string) ([]BookingResource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]BookingResource(nil), r.attachments[bookingID]...), nil
}

func (r *bookingRepoStub) booking(id string) Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bookings[id]
}

type resourceRepoStub struct {
	mu        sync.Mutex
	resources map[string]Resource
	getErr    error
	getDelay  time.Duration
	deleteErr error
}

func newResourceRepoStub(resources ...Resource) *resourceRepoStub {
	repo := &resourceRepoStub{resources: make(map[string]Resource)}
	for _, resource := range resources {
		repo.resources[resource.ID] = resource
	}
	return repo
}

func (r *resourceRepoStub) CreateResource(ctx context.Context, resource Resource) (Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.resources {
		if existing.Kind == resource.Kind && existing.Name == resource.Name {
			return Resource{}, persistence.ErrDuplicate
		}
	}
	r.resources[resource.ID] = resource
	return resource, nil
}

func (r *resourceRepoStub) GetResource(ctx context.Context, id string) (Resource, error) {
	r.mu.Lock()
	if r.getErr != nil {
		r.mu.Unlock()
		return Resource{}, r.getErr
	}
	resource, ok := r.resources[id]
	delay := r.getDelay
	r.mu.Unlock()
	if !ok {
		return Resource{}, persistence.ErrNotFound
	}
	// A slow read widens the window between reading a row and writing it back.
	time.Sleep(delay)
	return resource, nil
}

func (r *resourceRepoStub) UpdateResource(ctx context.Context, resource Resource) (Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resources[resource.ID]; !ok {
		return Resource{}, persistence.ErrNotFound
	}
	r.resources[resource.ID] = resource
	return resource, nil
}

func (r *resourceRepoStub) ListResources(ctx context.Context, kind ResourceKind) ([]Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Resource
	for _, resource := range r.resources {
		if kind == "" || resource.Kind == kind {
			out = append(out, resource)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *resourceRepoStub) DeleteResource(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleteErr != nil {
		return r.deleteErr
	}
	if _, ok := r.resources[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.resources, id)
	return nil
}

type auditRecorderStub struct {
	mu      sync.Mutex
	entries []audit.Entry
	err     error
}

func (a *auditRecorderStub) Record(ctx context.Context, entry audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return a.err
}

func (a *auditRecorderStub) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, entry := range a.entries {
		out = append(out, entry.Action)
	}
	return out
}

type conflictNotifierStub struct {
	mu     sync.Mutex
	alerts []ConflictAlert
	err    error
}

func (c *conflictNotifierStub) NotifyConflict(ctx context.Context, alert ConflictAlert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return c.err
}

type delivererStub struct {
	mu         sync.Mutex
	deliveries []Delivery
	// failFor fails deliveries addressed to these booking IDs.
	failFor map[string]bool
	err     error
}

func (d *delivererStub) Deliver(ctx context.Context, delivery Delivery) (DeliveryRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = append(d.deliveries, delivery)
	if d.err != nil || d.failFor[delivery.BookingID] {
		err := d.err
		if err == nil {
			err = &DeliveryError{Channel: ChannelSMTP, Err: context.DeadlineExceeded}
		}
		return DeliveryRecord{Status: DeliveryFailed}, err
	}
	return DeliveryRecord{Status: DeliverySent, BookingID: delivery.BookingID}, nil
}

func (d *delivererStub) sent() []Delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Delivery(nil), d.deliveries...)
}

func floatPtr(v float64) *float64 {
	return &v
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + "-" + strconv.Itoa(n)
	}
}
