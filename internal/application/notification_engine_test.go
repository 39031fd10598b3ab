package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/fieldwork-scheduler/internal/notify"
	"github.com/example/fieldwork-scheduler/internal/persistence"
)

type notificationStoreStub struct {
	mu        sync.Mutex
	rules     []Rule
	templates map[string]Template
	towns     []Town
	sent      map[string]bool
}

func (s *notificationStoreStub) ListActiveRules(ctx context.Context) ([]Rule, error) {
	return s.rules, nil
}

func (s *notificationStoreStub) GetTemplate(ctx context.Context, id string) (Template, error) {
	tpl, ok := s.templates[id]
	if !ok {
		return Template{}, persistence.ErrNotFound
	}
	return tpl, nil
}

func (s *notificationStoreStub) ListTowns(ctx context.Context) ([]Town, error) {
	return s.towns, nil
}

func (s *notificationStoreStub) HasSentDelivery(ctx context.Context, ruleID, bookingID, triggerDate string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[ruleID+"|"+bookingID+"|"+triggerDate], nil
}

// recordingDeliverer marks successful deliveries as sent in the store, the
// way the dispatcher's delivery record does.
type recordingDeliverer struct {
	delivererStub
	store *notificationStoreStub
}

func (d *recordingDeliverer) Deliver(ctx context.Context, delivery Delivery) (DeliveryRecord, error) {
	record, err := d.delivererStub.Deliver(ctx, delivery)
	if err == nil {
		d.store.mu.Lock()
		d.store.sent[delivery.RuleID+"|"+delivery.BookingID+"|"+delivery.TriggerDate] = true
		d.store.mu.Unlock()
	}
	return record, err
}

type notificationFixture struct {
	engine    *NotificationEngine
	store     *notificationStoreStub
	bookings  *bookingRepoStub
	deliverer *recordingDeliverer
}

func newNotificationFixture(t *testing.T, rules []Rule, bookings ...Booking) notificationFixture {
	t.Helper()
	store := &notificationStoreStub{
		rules: rules,
		templates: map[string]Template{
			"tpl-town": {
				ID:      "tpl-town",
				Subject: "Upcoming job at {location}",
				Body:    "{job_name} ({job_number}) on {start_date} {start_time}-{end_time} with {resource_name}: {description}",
				CC:      []string{"records@example.com"},
			},
			"tpl-html": {
				ID:             "tpl-html",
				Subject:        "Status {job_name}",
				Body:           "<p>{job_name}</p>",
				IsHTML:         true,
				PrimaryEnabled: true,
			},
		},
		towns: []Town{
			{Name: "Site A", Email: "site.a@example.com"},
			{Name: "TBD", Email: "tbd@example.com"},
		},
		sent: make(map[string]bool),
	}
	repo := newBookingRepoStub(bookings...)
	resources := newResourceRepoStub(catalogResources()...)
	deliverer := &recordingDeliverer{store: store}
	now := time.Date(2025, 4, 1, 6, 0, 0, 0, time.UTC)
	engine := NewNotificationEngine(store, repo, resources, deliverer, time.UTC, fixedClock(now))
	return notificationFixture{engine: engine, store: store, bookings: repo, deliverer: deliverer}
}

func TestNotificationEngine_Sweep_DaysBefore(t *testing.T) {
	t.Parallel()

	rules := []Rule{{ID: "r1", TemplateID: "tpl-town", Trigger: TriggerDaysBefore, TriggerValue: "2", Recipient: RecipientLocationCity, Active: true}}
	f := newNotificationFixture(t, rules,
		Booking{ID: "on-day", ResourceID: "bt001", JobName: "Pole swap", JobNumber: "J42", Location: "Site A", Start: time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 3, 17, 0, 0, 0, time.UTC), Status: BookingStatusScheduled},
		Booking{ID: "spanning", ResourceID: "cr001", JobName: "Crane lift", Location: "Nowhere", Start: time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 4, 17, 0, 0, 0, time.UTC), Status: BookingStatusScheduled},
		Booking{ID: "ends-at-midnight", ResourceID: "cr001", JobName: "Night shift", Location: "Site A", Start: time.Date(2025, 4, 2, 20, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 3, 0, 0, 0, 0, time.UTC), Status: BookingStatusScheduled},
		Booking{ID: "too-early", ResourceID: "cr001", JobName: "Early", Start: time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 2, 23, 59, 0, 0, time.UTC), Status: BookingStatusScheduled},
		Booking{ID: "rescheduled", ResourceID: "bt001", JobName: "Moved", Start: time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 3, 9, 0, 0, 0, time.UTC), Status: BookingStatusRescheduled},
	)

	report, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Examined)
	assert.Equal(t, 3, report.Affected)

	sent := f.deliverer.sent()
	require.Len(t, sent, 3)

	spanning := sent[0]
	assert.Equal(t, "spanning", spanning.BookingID)
	assert.Equal(t, []string{"tbd@example.com"}, spanning.Message.To)
	assert.Equal(t, "2025-04-03", spanning.TriggerDate)

	midnight := sent[1]
	assert.Equal(t, "ends-at-midnight", midnight.BookingID, "a booking ending at 00:00 on the trigger day is included")
	assert.Equal(t, "2025-04-03", midnight.TriggerDate)

	onDay := sent[2]
	assert.Equal(t, "Upcoming job at Site A", onDay.Message.Subject)
	assert.Equal(t, "Pole swap (J42) on 2025-04-03 08:00-17:00 with BT001: "+notify.FallbackDescription, onDay.Message.Body)
	assert.Equal(t, []string{"site.a@example.com"}, onDay.Message.To)
	assert.Equal(t, []string{"records@example.com"}, onDay.Message.CC)
	assert.Equal(t, "r1", onDay.RuleID)
	assert.Equal(t, "tpl-town", onDay.TemplateID)
	assert.False(t, onDay.PreferPrimary)
}

func TestNotificationEngine_Sweep_SuppressesSentKeys(t *testing.T) {
	t.Parallel()

	rules := []Rule{{ID: "r1", TemplateID: "tpl-town", Trigger: TriggerDaysBefore, TriggerValue: "2", Recipient: RecipientCustom, RecipientValue: "crew@example.com", Active: true}}
	f := newNotificationFixture(t, rules,
		Booking{ID: "b1", ResourceID: "bt001", JobName: "A", Start: time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 3, 9, 0, 0, 0, time.UTC), Status: BookingStatusScheduled},
		Booking{ID: "b2", ResourceID: "cr001", JobName: "B", Start: time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 3, 9, 0, 0, 0, time.UTC), Status: BookingStatusScheduled},
	)
	f.deliverer.failFor = map[string]bool{"b2": true}

	first, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Affected)
	assert.Equal(t, 1, first.Failed)

	f.deliverer.failFor = nil
	second, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped, "b1 was already sent")
	assert.Equal(t, 1, second.Affected, "b2 failed before and is retried")

	third, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, third.Affected)
	assert.Equal(t, 2, third.Skipped)

	sent := f.deliverer.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, []string{"crew@example.com"}, sent[0].Message.To)
}

func TestNotificationEngine_Sweep_JobStatus(t *testing.T) {
	t.Parallel()

	rules := []Rule{{ID: "r2", TemplateID: "tpl-html", Trigger: TriggerJobStatus, TriggerValue: "rescheduled", Recipient: RecipientManager, Active: true}}
	f := newNotificationFixture(t, rules,
		Booking{ID: "b1", ResourceID: "bt001", AssignedUserID: "p1", JobName: "<Rush>", Start: time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC), Status: BookingStatusRescheduled},
		Booking{ID: "b2", ResourceID: "bt001", AssignedUserID: "p2", JobName: "Other", Start: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), Status: BookingStatusRescheduled},
		Booking{ID: "b3", ResourceID: "cr001", JobName: "Unassigned", Start: time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC), Status: BookingStatusRescheduled},
		Booking{ID: "b4", ResourceID: "cr001", JobName: "Scheduled", Start: time.Date(2025, 4, 10, 8, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 10, 9, 0, 0, 0, time.UTC), Status: BookingStatusScheduled},
	)

	report, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Affected)

	byBooking := make(map[string]Delivery)
	for _, d := range f.deliverer.sent() {
		byBooking[d.BookingID] = d
	}
	require.Len(t, byBooking, 3)

	assert.Equal(t, []string{"boss@example.com"}, byBooking["b1"].Message.To)
	assert.Equal(t, "Status <Rush>", byBooking["b1"].Message.Subject, "subjects are not escaped")
	assert.Equal(t, "<p>&lt;Rush&gt;</p>", byBooking["b1"].Message.Body)
	assert.True(t, byBooking["b1"].Message.HTML)
	assert.True(t, byBooking["b1"].PreferPrimary)
	assert.Equal(t, "2025-04-01", byBooking["b1"].TriggerDate)

	assert.Equal(t, []string{notify.DefaultManagerEmail}, byBooking["b2"].Message.To)
	assert.Equal(t, []string{notify.DefaultManagerEmail}, byBooking["b3"].Message.To)
}

func TestNotificationEngine_Sweep_SkipsRulesWithMissingTemplate(t *testing.T) {
	t.Parallel()

	rules := []Rule{
		{ID: "r1", TemplateID: "missing", Trigger: TriggerJobStatus, TriggerValue: "scheduled", Recipient: RecipientCustom, Active: true},
		{ID: "r2", TemplateID: "tpl-town", Trigger: TriggerDaysBefore, TriggerValue: "soon", Recipient: RecipientCustom, Active: true},
		{ID: "r3", TemplateID: "tpl-town", Trigger: TriggerJobStatus, TriggerValue: "scheduled", Recipient: RecipientCustom, Active: true},
	}
	f := newNotificationFixture(t, rules,
		Booking{ID: "b1", ResourceID: "bt001", JobName: "A", Start: time.Date(2025, 4, 3, 8, 0, 0, 0, time.UTC), End: time.Date(2025, 4, 3, 9, 0, 0, 0, time.UTC), Status: BookingStatusScheduled},
	)

	report, err := f.engine.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Affected)

	sent := f.deliverer.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "r3", sent[0].RuleID)
	assert.Equal(t, []string{notify.DefaultTownEmail}, sent[0].Message.To)
}

func TestNotificationEngine_PreviewTemplate(t *testing.T) {
	t.Parallel()

	f := newNotificationFixture(t, nil)

	preview, err := f.engine.PreviewTemplate(context.Background(), "tpl-town", nil)
	require.NoError(t, err)
	assert.Equal(t, "Upcoming job at Example Town", preview.Subject)
	assert.Equal(t, "Sample Job (J0001) on 2025-04-01 08:00-17:00 with BT001: Example job", preview.Body)

	preview, err = f.engine.PreviewTemplate(context.Background(), "tpl-town", map[string]string{"location": "Site B"})
	require.NoError(t, err)
	assert.Equal(t, "Upcoming job at Site B", preview.Subject)

	_, err = f.engine.PreviewTemplate(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}
