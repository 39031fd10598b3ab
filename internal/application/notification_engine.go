package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/example/fieldwork-scheduler/internal/audit"
	"github.com/example/fieldwork-scheduler/internal/messaging"
	"github.com/example/fieldwork-scheduler/internal/notify"
)

// NotificationStore exposes rules, templates, towns and delivery history.
type NotificationStore interface {
	ListActiveRules(ctx context.Context) ([]Rule, error)
	GetTemplate(ctx context.Context, id string) (Template, error)
	ListTowns(ctx context.Context) ([]Town, error)
	HasSentDelivery(ctx context.Context, ruleID, bookingID, triggerDate string) (bool, error)
}

// BookingLister lists bookings matching a query.
type BookingLister interface {
	ListBookings(ctx context.Context, query BookingQuery) ([]Booking, error)
}

// NotificationEngine evaluates automation rules and sends templated mail for
// the bookings they select.
type NotificationEngine struct {
	store     NotificationStore
	bookings  BookingLister
	resources ResourceLookup
	deliverer Deliverer
	location  *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

// NewNotificationEngine constructs an engine that formats times in location.
func NewNotificationEngine(store NotificationStore, bookings BookingLister, resources ResourceLookup, deliverer Deliverer, location *time.Location, now func() time.Time) *NotificationEngine {
	return NewNotificationEngineWithLogger(store, bookings, resources, deliverer, location, now, nil)
}

// NewNotificationEngineWithLogger constructs an engine with a specified logger.
func NewNotificationEngineWithLogger(store NotificationStore, bookings BookingLister, resources ResourceLookup, deliverer Deliverer, location *time.Location, now func() time.Time, logger *slog.Logger) *NotificationEngine {
	if location == nil {
		location = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &NotificationEngine{
		store:     store,
		bookings:  bookings,
		resources: resources,
		deliverer: deliverer,
		location:  location,
		now:       now,
		logger:    defaultLogger(logger),
	}
}

func (e *NotificationEngine) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, e.logger, "NotificationEngine", operation, attrs...)
}

// sweepState caches lookups for the duration of one sweep.
type sweepState struct {
	today     time.Time
	towns     notify.TownDirectory
	resources map[string]Resource
}

// Sweep runs every active rule once. A rule whose template is missing is
// skipped; a failed delivery is counted and the sweep continues.
func (e *NotificationEngine) Sweep(ctx context.Context) (report SweepReport, err error) {
	if e == nil {
		err = fmt.Errorf("NotificationEngine is nil")
		return
	}

	startedAt := e.now()
	report = SweepReport{Job: "notifications", StartedAt: startedAt}
	logger := e.loggerWith(ctx, "Sweep")
	defer func() {
		report.FinishedAt = e.now()
		if err != nil {
			logger.ErrorContext(ctx, "notification sweep failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "notification sweep finished",
			"examined", report.Examined,
			"affected", report.Affected,
			"skipped", report.Skipped,
			"failed", report.Failed,
		)
	}()

	var rules []Rule
	if rules, err = e.store.ListActiveRules(ctx); err != nil {
		err = mapRepoError("list rules", err)
		return
	}
	var towns []Town
	if towns, err = e.store.ListTowns(ctx); err != nil {
		err = mapRepoError("list towns", err)
		return
	}
	contacts := make(map[string]string, len(towns))
	for _, town := range towns {
		contacts[town.Name] = town.Email
	}

	state := &sweepState{
		today:     startOfDay(startedAt, e.location),
		towns:     notify.NewTownDirectory(contacts),
		resources: make(map[string]Resource),
	}

	for _, rule := range rules {
		if ctx.Err() != nil {
			err = ctx.Err()
			return
		}
		if err = e.runRule(ctx, state, rule, &report); err != nil {
			return
		}
	}
	return
}

// runRule returns an error only when the store is unusable.
func (e *NotificationEngine) runRule(ctx context.Context, state *sweepState, rule Rule, report *SweepReport) error {
	logger := e.loggerWith(ctx, "runRule",
		"rule_id", rule.ID,
		"trigger", string(rule.Trigger),
		"trigger_value", rule.TriggerValue,
	)

	template, err := e.store.GetTemplate(ctx, rule.TemplateID)
	if err != nil {
		mapped := mapRepoError("get template", err)
		if errors.Is(mapped, ErrNotFound) {
			logger.WarnContext(ctx, "template not found, skipping rule", "template_id", rule.TemplateID)
			report.Skipped++
			return nil
		}
		return mapped
	}

	query, triggerDate, err := e.candidateQuery(state.today, rule)
	if err != nil {
		logger.ErrorContext(ctx, "invalid rule", "error", err, "error_kind", ErrorKind(err))
		report.Failed++
		return nil
	}

	candidates, err := e.bookings.ListBookings(ctx, query)
	if err != nil {
		return mapRepoError("list bookings", err)
	}

	for _, booking := range candidates {
		report.Examined++

		sent, err := e.store.HasSentDelivery(ctx, rule.ID, booking.ID, triggerDate)
		if err != nil {
			return mapRepoError("check delivery", err)
		}
		if sent {
			report.Skipped++
			continue
		}

		delivery, err := e.buildDelivery(ctx, state, rule, template, booking, triggerDate)
		if err != nil {
			report.Failed++
			logger.ErrorContext(ctx, "failed to prepare delivery", "booking_id", booking.ID, "error", err, "error_kind", ErrorKind(err))
			continue
		}
		if _, err := e.deliverer.Deliver(ctx, delivery); err != nil {
			report.Failed++
			continue
		}
		report.Affected++
	}
	return nil
}

// candidateQuery returns the booking filter for rule and the trigger date of its suppression key.
func (e *NotificationEngine) candidateQuery(today time.Time, rule Rule) (BookingQuery, string, error) {
	switch rule.Trigger {
	case TriggerDaysBefore:
		days, err := strconv.Atoi(strings.TrimSpace(rule.TriggerValue))
		if err != nil || days < 0 {
			return BookingQuery{}, "", newValidationError("trigger_value", "days_before requires a non-negative integer")
		}
		// Bookings touching day D, including one that ends exactly at its midnight.
		dayStart := today.AddDate(0, 0, days)
		dayEnd := dayStart.AddDate(0, 0, 1)
		return BookingQuery{
			Statuses:     []BookingStatus{BookingStatusScheduled},
			StartsBefore: &dayEnd,
			EndsFrom:     &dayStart,
		}, dayStart.Format("2006-01-02"), nil
	case TriggerJobStatus:
		status := BookingStatus(strings.TrimSpace(rule.TriggerValue))
		if !status.Valid() {
			return BookingQuery{}, "", newValidationError("trigger_value", "job_status requires a known status")
		}
		return BookingQuery{Statuses: []BookingStatus{status}}, today.Format("2006-01-02"), nil
	}
	return BookingQuery{}, "", newValidationError("trigger", "unknown trigger")
}

func (e *NotificationEngine) buildDelivery(ctx context.Context, state *sweepState, rule Rule, template Template, booking Booking, triggerDate string) (Delivery, error) {
	resourceName := ""
	if booking.ResourceID != "" {
		resource, err := e.resource(ctx, state, booking.ResourceID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Delivery{}, err
		}
		resourceName = resource.Name
	}

	recipient, err := e.recipient(ctx, state, rule, booking)
	if err != nil {
		return Delivery{}, err
	}

	vars := notify.JobVariables(notify.Job{
		JobName:      booking.JobName,
		JobNumber:    booking.JobNumber,
		Description:  booking.Description,
		Location:     booking.Location,
		ResourceName: resourceName,
		Start:        booking.Start,
		End:          booking.End,
	}, e.location)
	rendered := notify.Render(template.Subject, template.Body, vars, template.IsHTML)

	return Delivery{
		Kind:        DeliveryKindRule,
		RuleID:      rule.ID,
		TemplateID:  template.ID,
		BookingID:   booking.ID,
		TriggerDate: triggerDate,
		Actor:       audit.SystemActor,
		Message: messaging.Message{
			Subject: rendered.Subject,
			Body:    rendered.Body,
			To:      []string{recipient},
			CC:      append([]string(nil), template.CC...),
			BCC:     append([]string(nil), template.BCC...),
			HTML:    template.IsHTML,
		},
		PreferPrimary: template.PrimaryEnabled,
	}, nil
}

func (e *NotificationEngine) recipient(ctx context.Context, state *sweepState, rule Rule, booking Booking) (string, error) {
	switch rule.Recipient {
	case RecipientLocationCity:
		return state.towns.LocationContact(booking.Location), nil
	case RecipientManager:
		if booking.AssignedUserID == "" {
			return notify.ManagerContact(""), nil
		}
		person, err := e.resource(ctx, state, booking.AssignedUserID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return "", err
		}
		return notify.ManagerContact(person.ManagerEmail), nil
	case RecipientCustom:
		return notify.CustomContact(rule.RecipientValue), nil
	}
	return "", newValidationError("recipient", "unknown recipient type")
}

func (e *NotificationEngine) resource(ctx context.Context, state *sweepState, id string) (Resource, error) {
	if cached, ok := state.resources[id]; ok {
		return cached, nil
	}
	resource, err := e.resources.GetResource(ctx, id)
	if err != nil {
		return Resource{}, mapRepoError("get resource", err)
	}
	state.resources[id] = resource
	return resource, nil
}

// PreviewTemplate renders a template against sample values with overrides applied.
func (e *NotificationEngine) PreviewTemplate(ctx context.Context, templateID string, overrides map[string]string) (TemplatePreview, error) {
	if e == nil {
		return TemplatePreview{}, fmt.Errorf("NotificationEngine is nil")
	}
	template, err := e.store.GetTemplate(ctx, templateID)
	if err != nil {
		err = mapRepoError("get template", err)
		e.loggerWith(ctx, "PreviewTemplate", "template_id", templateID).
			ErrorContext(ctx, "failed to load template", "error", err, "error_kind", ErrorKind(err))
		return TemplatePreview{}, err
	}

	rendered := notify.Render(template.Subject, template.Body, notify.SampleVariables().Merge(overrides), template.IsHTML)
	return TemplatePreview{
		TemplateID: template.ID,
		Subject:    rendered.Subject,
		Body:       rendered.Body,
		IsHTML:     template.IsHTML,
	}, nil
}
