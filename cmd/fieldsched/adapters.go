package main

import (
	"context"
	"time"

	"github.com/example/fieldwork-scheduler/internal/application"
	"github.com/example/fieldwork-scheduler/internal/persistence"
)

type bookingRepositoryAdapter struct {
	repo persistence.BookingRepository
}

func newBookingRepositoryAdapter(repo persistence.BookingRepository) *bookingRepositoryAdapter {
	return &bookingRepositoryAdapter{repo: repo}
}

func (a *bookingRepositoryAdapter) CreateBooking(ctx context.Context, booking application.Booking) (application.Booking, error) {
	if err := a.repo.CreateBooking(ctx, toPersistenceBooking(booking)); err != nil {
		return application.Booking{}, err
	}
	return booking, nil
}

func (a *bookingRepositoryAdapter) GetBooking(ctx context.Context, id string) (application.Booking, error) {
	model, err := a.repo.GetBooking(ctx, id)
	if err != nil {
		return application.Booking{}, err
	}
	return toApplicationBooking(model), nil
}

func (a *bookingRepositoryAdapter) UpdateBooking(ctx context.Context, booking application.Booking) (application.Booking, error) {
	if err := a.repo.UpdateBooking(ctx, toPersistenceBooking(booking)); err != nil {
		return application.Booking{}, err
	}
	return booking, nil
}

func (a *bookingRepositoryAdapter) CancelBooking(ctx context.Context, id string, at time.Time) error {
	return a.repo.CancelBooking(ctx, id, at)
}

func (a *bookingRepositoryAdapter) RescheduleBooking(ctx context.Context, id string, start, end, at time.Time) (application.Booking, error) {
	if err := a.repo.RescheduleBooking(ctx, id, start, end, at); err != nil {
		return application.Booking{}, err
	}
	return a.GetBooking(ctx, id)
}

func (a *bookingRepositoryAdapter) ListBookings(ctx context.Context, query application.BookingQuery) ([]application.Booking, error) {
	filter := persistence.BookingFilter{
		ResourceID:     query.ResourceID,
		AssignedUserID: query.AssignedUserID,
		OverlapsFrom:   query.OverlapsFrom,
		OverlapsUntil:  query.OverlapsUntil,
		StartsFrom:     query.StartsFrom,
		StartsBefore:   query.StartsBefore,
		EndsFrom:       query.EndsFrom,
	}
	for _, status := range query.Statuses {
		filter.Statuses = append(filter.Statuses, string(status))
	}

	models, err := a.repo.ListBookings(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]application.Booking, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationBooking(model))
	}
	return out, nil
}

func (a *bookingRepositoryAdapter) AddBookingResource(ctx context.Context, attachment application.BookingResource) (application.BookingResource, error) {
	if err := a.repo.AddBookingResource(ctx, persistence.BookingResource{
		ID:             attachment.ID,
		BookingID:      attachment.BookingID,
		ResourceKind:   string(attachment.ResourceKind),
		ResourceID:     attachment.ResourceID,
		Quantity:       attachment.Quantity,
		AssignedUserID: optionalString(attachment.AssignedUserID),
		CreatedAt:      attachment.CreatedAt,
	}); err != nil {
		return application.BookingResource{}, err
	}
	return attachment, nil
}

func (a *bookingRepositoryAdapter) RemoveBookingResource(ctx context.Context, bookingID, attachmentID string) error {
	return a.repo.RemoveBookingResource(ctx, bookingID, attachmentID)
}

func (a *bookingRepositoryAdapter) ListBookingResources(ctx context.Context, bookingID string) ([]application.BookingResource, error) {
	models, err := a.repo.ListBookingResources(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	out := make([]application.BookingResource, 0, len(models))
	for _, model := range models {
		out = append(out, application.BookingResource{
			ID:             model.ID,
			BookingID:      model.BookingID,
			ResourceKind:   application.ResourceKind(model.ResourceKind),
			ResourceID:     model.ResourceID,
			Quantity:       model.Quantity,
			AssignedUserID: derefString(model.AssignedUserID),
			CreatedAt:      model.CreatedAt,
		})
	}
	return out, nil
}

type resourceRepositoryAdapter struct {
	repo persistence.ResourceRepository
}

func newResourceRepositoryAdapter(repo persistence.ResourceRepository) *resourceRepositoryAdapter {
	return &resourceRepositoryAdapter{repo: repo}
}

func (a *resourceRepositoryAdapter) CreateResource(ctx context.Context, resource application.Resource) (application.Resource, error) {
	if err := a.repo.CreateResource(ctx, toPersistenceResource(resource)); err != nil {
		return application.Resource{}, err
	}
	return resource, nil
}

func (a *resourceRepositoryAdapter) GetResource(ctx context.Context, id string) (application.Resource, error) {
	model, err := a.repo.GetResource(ctx, id)
	if err != nil {
		return application.Resource{}, err
	}
	return toApplicationResource(model), nil
}

func (a *resourceRepositoryAdapter) UpdateResource(ctx context.Context, resource application.Resource) (application.Resource, error) {
	if err := a.repo.UpdateResource(ctx, toPersistenceResource(resource)); err != nil {
		return application.Resource{}, err
	}
	return resource, nil
}

func (a *resourceRepositoryAdapter) ListResources(ctx context.Context, kind application.ResourceKind) ([]application.Resource, error) {
	models, err := a.repo.ListResources(ctx, string(kind))
	if err != nil {
		return nil, err
	}
	out := make([]application.Resource, 0, len(models))
	for _, model := range models {
		out = append(out, toApplicationResource(model))
	}
	return out, nil
}

func (a *resourceRepositoryAdapter) DeleteResource(ctx context.Context, id string) error {
	return a.repo.DeleteResource(ctx, id)
}

type notificationStoreAdapter struct {
	repo persistence.NotificationRepository
}

func newNotificationStoreAdapter(repo persistence.NotificationRepository) *notificationStoreAdapter {
	return &notificationStoreAdapter{repo: repo}
}

func (a *notificationStoreAdapter) ListActiveRules(ctx context.Context) ([]application.Rule, error) {
	models, err := a.repo.ListActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]application.Rule, 0, len(models))
	for _, model := range models {
		out = append(out, application.Rule{
			ID:             model.ID,
			TemplateID:     model.TemplateID,
			Trigger:        application.TriggerKind(model.TriggerType),
			TriggerValue:   model.TriggerValue,
			Recipient:      application.RecipientKind(model.RecipientType),
			RecipientValue: derefString(model.RecipientValue),
			Active:         model.Active,
		})
	}
	return out, nil
}

func (a *notificationStoreAdapter) GetTemplate(ctx context.Context, id string) (application.Template, error) {
	model, err := a.repo.GetTemplate(ctx, id)
	if err != nil {
		return application.Template{}, err
	}
	return application.Template{
		ID:             model.ID,
		Name:           model.Name,
		Subject:        model.Subject,
		Body:           model.Body,
		CC:             model.CC,
		BCC:            model.BCC,
		IsHTML:         model.IsHTML,
		PrimaryEnabled: model.PrimaryEnabled,
		LastUsed:       cloneTime(model.LastUsed),
	}, nil
}

func (a *notificationStoreAdapter) ListTowns(ctx context.Context) ([]application.Town, error) {
	models, err := a.repo.ListTowns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]application.Town, 0, len(models))
	for _, model := range models {
		out = append(out, application.Town{Name: model.Name, Email: model.Email})
	}
	return out, nil
}

func (a *notificationStoreAdapter) HasSentDelivery(ctx context.Context, ruleID, bookingID, triggerDate string) (bool, error) {
	return a.repo.HasSentDelivery(ctx, ruleID, bookingID, triggerDate)
}

func (a *notificationStoreAdapter) AppendDelivery(ctx context.Context, record application.DeliveryRecord) (application.DeliveryRecord, error) {
	stored, err := a.repo.AppendDelivery(ctx, persistence.DeliveryRecord{
		Kind:        string(record.Kind),
		RuleID:      optionalString(record.RuleID),
		TemplateID:  optionalString(record.TemplateID),
		BookingID:   optionalString(record.BookingID),
		TriggerDate: optionalString(record.TriggerDate),
		Recipient:   record.Recipient,
		Subject:     record.Subject,
		Channel:     record.Channel,
		Status:      string(record.Status),
		Error:       optionalString(record.Error),
		SentAt:      record.SentAt,
	})
	if err != nil {
		return application.DeliveryRecord{}, err
	}
	record.ID = stored.ID
	return record, nil
}

func (a *notificationStoreAdapter) TouchTemplate(ctx context.Context, id string, at time.Time) error {
	return a.repo.TouchTemplate(ctx, id, at)
}

type weatherStoreAdapter struct {
	repo persistence.WeatherRepository
}

func newWeatherStoreAdapter(repo persistence.WeatherRepository) *weatherStoreAdapter {
	return &weatherStoreAdapter{repo: repo}
}

func (a *weatherStoreAdapter) SaveObservation(ctx context.Context, obs application.WeatherObservation) (application.WeatherObservation, error) {
	stored, err := a.repo.SaveObservation(ctx, persistence.WeatherObservation{
		Location:      obs.Location,
		Date:          obs.Date,
		Temperature:   obs.Temperature,
		WindSpeed:     obs.WindSpeed,
		Precipitation: obs.Precipitation,
		ObservedAt:    obs.ObservedAt,
	})
	if err != nil {
		return application.WeatherObservation{}, err
	}
	return toApplicationObservation(stored), nil
}

func (a *weatherStoreAdapter) LatestObservation(ctx context.Context, date, location string) (application.WeatherObservation, error) {
	model, err := a.repo.LatestObservation(ctx, date, location)
	if err != nil {
		return application.WeatherObservation{}, err
	}
	return toApplicationObservation(model), nil
}

func toApplicationBooking(model persistence.Booking) application.Booking {
	return application.Booking{
		ID:             model.ID,
		ResourceKind:   application.ResourceKind(model.ResourceKind),
		ResourceID:     model.ResourceID,
		Start:          model.Start,
		End:            model.End,
		JobName:        model.JobName,
		JobNumber:      derefString(model.JobNumber),
		Description:    derefString(model.Description),
		Location:       derefString(model.Location),
		AssignedUserID: derefString(model.AssignedUserID),
		Status:         application.BookingStatus(model.Status),
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}
}

func toPersistenceBooking(booking application.Booking) persistence.Booking {
	return persistence.Booking{
		ID:             booking.ID,
		ResourceKind:   string(booking.ResourceKind),
		ResourceID:     booking.ResourceID,
		Start:          booking.Start,
		End:            booking.End,
		JobName:        booking.JobName,
		JobNumber:      optionalString(booking.JobNumber),
		Description:    optionalString(booking.Description),
		Location:       optionalString(booking.Location),
		AssignedUserID: optionalString(booking.AssignedUserID),
		Status:         string(booking.Status),
		CreatedAt:      booking.CreatedAt,
		UpdatedAt:      booking.UpdatedAt,
	}
}

func toApplicationResource(model persistence.Resource) application.Resource {
	return application.Resource{
		ID:                   model.ID,
		Kind:                 application.ResourceKind(model.Kind),
		Name:                 model.Name,
		EquipmentType:        derefString(model.EquipmentType),
		RequiresOperator:     model.RequiresOperator,
		UsageHours:           model.UsageHours,
		MaintenanceThreshold: cloneFloat(model.MaintenanceThreshold),
		LastMaintenance:      cloneTime(model.LastMaintenance),
		Email:                derefString(model.Email),
		ManagerEmail:         derefString(model.ManagerEmail),
		Location:             derefString(model.Location),
		Quantity:             model.Quantity,
		Unit:                 derefString(model.Unit),
		ReorderThreshold:     model.ReorderThreshold,
		CreatedAt:            model.CreatedAt,
		UpdatedAt:            model.UpdatedAt,
	}
}

func toPersistenceResource(resource application.Resource) persistence.Resource {
	return persistence.Resource{
		ID:                   resource.ID,
		Kind:                 string(resource.Kind),
		Name:                 resource.Name,
		EquipmentType:        optionalString(resource.EquipmentType),
		RequiresOperator:     resource.RequiresOperator,
		UsageHours:           resource.UsageHours,
		MaintenanceThreshold: cloneFloat(resource.MaintenanceThreshold),
		LastMaintenance:      cloneTime(resource.LastMaintenance),
		Email:                optionalString(resource.Email),
		ManagerEmail:         optionalString(resource.ManagerEmail),
		Location:             optionalString(resource.Location),
		Quantity:             resource.Quantity,
		Unit:                 optionalString(resource.Unit),
		ReorderThreshold:     resource.ReorderThreshold,
		CreatedAt:            resource.CreatedAt,
		UpdatedAt:            resource.UpdatedAt,
	}
}

func toApplicationObservation(model persistence.WeatherObservation) application.WeatherObservation {
	return application.WeatherObservation{
		ID:            model.ID,
		Location:      model.Location,
		Date:          model.Date,
		Temperature:   model.Temperature,
		WindSpeed:     model.WindSpeed,
		Precipitation: model.Precipitation,
		ObservedAt:    model.ObservedAt,
	}
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	v := value
	return &v
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

func cloneFloat(value *float64) *float64 {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}
