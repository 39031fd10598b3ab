package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/example/fieldwork-scheduler/internal/audit"
)

// ResourceRepository captures the persistence interactions needed by the resource service.
type ResourceRepository interface {
	CreateResource(ctx context.Context, resource Resource) (Resource, error)
	GetResource(ctx context.Context, id string) (Resource, error)
	UpdateResource(ctx context.Context, resource Resource) (Resource, error)
	ListResources(ctx context.Context, kind ResourceKind) ([]Resource, error)
	DeleteResource(ctx context.Context, id string) error
}

// StockMonitor reacts to usage and stock changes.
type StockMonitor interface {
	CheckMaintenance(ctx context.Context, equipment Resource) (bool, error)
	CheckReorder(ctx context.Context, consumable Resource) (bool, error)
}

// ResourceService manages the equipment, personnel and consumables catalog.
type ResourceService struct {
	resources   ResourceRepository
	audit       AuditRecorder
	monitor     StockMonitor
	locks       *keyedMutex
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewResourceService constructs a resource service with the provided dependencies.
func NewResourceService(resources ResourceRepository, recorder AuditRecorder, monitor StockMonitor, idGenerator func() string, now func() time.Time) *ResourceService {
	return NewResourceServiceWithLogger(resources, recorder, monitor, idGenerator, now, nil)
}

// NewResourceServiceWithLogger constructs a resource service with a specified logger.
func NewResourceServiceWithLogger(resources ResourceRepository, recorder AuditRecorder, monitor StockMonitor, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ResourceService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ResourceService{
		resources:   resources,
		audit:       recorder,
		monitor:     monitor,
		locks:       newKeyedMutex(),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *ResourceService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "ResourceService", operation, attrs...)
}

// CreateResource validates input and adds a resource to the catalog.
func (s *ResourceService) CreateResource(ctx context.Context, params CreateResourceParams) (resource Resource, err error) {
	if s == nil {
		err = fmt.Errorf("ResourceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateResource",
		"actor", params.Actor,
		"kind", string(params.Input.Kind),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create resource", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("resource_id", resource.ID).InfoContext(ctx, "resource created")
	}()

	vErr := &ValidationError{}
	if !params.Input.Kind.Valid() {
		vErr.add("kind", "kind must be equipment, person or consumable")
	}
	validateResourceInput(params.Input, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	createdAt := s.now()
	candidate := resourceFromInput(params.Input)
	candidate.ID = s.idGenerator()
	candidate.CreatedAt = createdAt
	candidate.UpdatedAt = createdAt

	resource, err = s.resources.CreateResource(ctx, candidate)
	if err != nil {
		err = mapRepoError("create resource", err)
		return
	}

	s.record(ctx, logger, audit.Entry{
		Action:      createAction(resource.Kind),
		Actor:       params.Actor,
		EntityID:    resource.ID,
		EntityLabel: resource.Name,
	})
	s.afterMutation(ctx, logger, resource)
	return
}

// UpdateResource overwrites a resource's attributes. The kind cannot change.
func (s *ResourceService) UpdateResource(ctx context.Context, params UpdateResourceParams) (resource Resource, err error) {
	if s == nil {
		err = fmt.Errorf("ResourceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateResource",
		"actor", params.Actor,
		"resource_id", params.ResourceID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update resource", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "resource updated")
	}()

	unlock := s.locks.Lock("resource:" + params.ResourceID)
	defer unlock()

	var existing Resource
	existing, err = s.resources.GetResource(ctx, params.ResourceID)
	if err != nil {
		err = mapRepoError("get resource", err)
		return
	}

	vErr := &ValidationError{}
	if params.Input.Kind != "" && params.Input.Kind != existing.Kind {
		vErr.add("kind", "kind cannot be changed")
	}
	input := params.Input
	input.Kind = existing.Kind
	validateResourceInput(input, vErr)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	updated := resourceFromInput(input)
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.now()

	resource, err = s.resources.UpdateResource(ctx, updated)
	if err != nil {
		err = mapRepoError("update resource", err)
		return
	}

	s.record(ctx, logger, audit.Entry{
		Action:      updateAction(resource.Kind),
		Actor:       params.Actor,
		EntityID:    resource.ID,
		EntityLabel: resource.Name,
	})
	if resource.Kind != ResourceKindEquipment || resource.UsageHours != existing.UsageHours {
		s.afterMutation(ctx, logger, resource)
	}
	return
}

// GetResource returns a resource by ID.
func (s *ResourceService) GetResource(ctx context.Context, id string) (Resource, error) {
	if s == nil {
		return Resource{}, fmt.Errorf("ResourceService is nil")
	}
	resource, err := s.resources.GetResource(ctx, id)
	if err != nil {
		return Resource{}, mapRepoError("get resource", err)
	}
	return resource, nil
}

// ListResources returns resources of kind, or every resource when kind is empty.
func (s *ResourceService) ListResources(ctx context.Context, kind ResourceKind) ([]Resource, error) {
	if s == nil {
		return nil, fmt.Errorf("ResourceService is nil")
	}
	if kind != "" && !kind.Valid() {
		return nil, newValidationError("kind", "kind must be equipment, person or consumable")
	}
	resources, err := s.resources.ListResources(ctx, kind)
	if err != nil {
		err = mapRepoError("list resources", err)
		s.loggerWith(ctx, "ListResources").ErrorContext(ctx, "failed to list resources", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	return resources, nil
}

// RecordUsage adds worked hours to an equipment item and checks whether it is due for maintenance.
func (s *ResourceService) RecordUsage(ctx context.Context, actor, id string, hours float64) (resource Resource, err error) {
	if s == nil {
		err = fmt.Errorf("ResourceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "RecordUsage",
		"actor", actor,
		"resource_id", id,
		"hours", hours,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to record usage", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if hours <= 0 {
		err = newValidationError("hours", "hours must be positive")
		return
	}

	// Read and write back under the per-resource lock so concurrent
	// adjustments are applied one after another.
	unlock := s.locks.Lock("resource:" + id)
	defer unlock()

	var existing Resource
	if existing, err = s.resources.GetResource(ctx, id); err != nil {
		err = mapRepoError("get resource", err)
		return
	}
	if existing.Kind != ResourceKindEquipment {
		err = newValidationError("kind", "usage can only be recorded for equipment")
		return
	}

	existing.UsageHours += hours
	existing.UpdatedAt = s.now()
	if resource, err = s.resources.UpdateResource(ctx, existing); err != nil {
		err = mapRepoError("update resource", err)
		return
	}

	s.record(ctx, logger, audit.Entry{
		Action:      audit.ActionRecordUsage,
		Actor:       actor,
		EntityID:    resource.ID,
		EntityLabel: resource.Name,
		Details:     map[string]any{"hours": hours, "usage_hours": resource.UsageHours},
	})
	s.afterMutation(ctx, logger, resource)
	return
}

// AdjustStock changes a consumable's quantity by delta and checks whether it needs reordering.
func (s *ResourceService) AdjustStock(ctx context.Context, actor, id string, delta float64) (resource Resource, err error) {
	if s == nil {
		err = fmt.Errorf("ResourceService is nil")
		return
	}

	logger := s.loggerWith(ctx, "AdjustStock",
		"actor", actor,
		"resource_id", id,
		"delta", delta,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to adjust stock", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	unlock := s.locks.Lock("resource:" + id)
	defer unlock()

	var existing Resource
	if existing, err = s.resources.GetResource(ctx, id); err != nil {
		err = mapRepoError("get resource", err)
		return
	}
	if existing.Kind != ResourceKindConsumable {
		err = newValidationError("kind", "stock can only be adjusted for consumables")
		return
	}
	if existing.Quantity+delta < 0 {
		err = newValidationError("quantity", "quantity cannot go below zero")
		return
	}

	existing.Quantity += delta
	existing.UpdatedAt = s.now()
	if resource, err = s.resources.UpdateResource(ctx, existing); err != nil {
		err = mapRepoError("update resource", err)
		return
	}

	s.record(ctx, logger, audit.Entry{
		Action:      audit.ActionAdjustStock,
		Actor:       actor,
		EntityID:    resource.ID,
		EntityLabel: resource.Name,
		Details:     map[string]any{"delta": delta, "quantity": resource.Quantity},
	})
	s.afterMutation(ctx, logger, resource)
	return
}

// DeleteResource removes a resource that no booking references.
func (s *ResourceService) DeleteResource(ctx context.Context, actor, id string) error {
	if s == nil {
		return fmt.Errorf("ResourceService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteResource",
		"actor", actor,
		"resource_id", id,
	)

	if err := s.resources.DeleteResource(ctx, id); err != nil {
		err = mapRepoError("delete resource", err)
		logger.ErrorContext(ctx, "failed to delete resource", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	s.record(ctx, logger, audit.Entry{Action: audit.ActionDeleteResource, Actor: actor, EntityID: id})
	logger.InfoContext(ctx, "resource deleted")
	return nil
}

// afterMutation runs the edge-triggered checks. Alert failures are logged
// and never undo the mutation.
func (s *ResourceService) afterMutation(ctx context.Context, logger *slog.Logger, resource Resource) {
	if s.monitor == nil {
		return
	}
	var err error
	switch resource.Kind {
	case ResourceKindEquipment:
		_, err = s.monitor.CheckMaintenance(ctx, resource)
	case ResourceKindConsumable:
		_, err = s.monitor.CheckReorder(ctx, resource)
	case ResourceKindPerson:
		return
	}
	if err != nil {
		logger.WarnContext(ctx, "stock check failed", "error", err, "error_kind", ErrorKind(err))
	}
}

func (s *ResourceService) record(ctx context.Context, logger *slog.Logger, entry audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		logger.WarnContext(ctx, "failed to record audit entry", "action", entry.Action, "error", err)
	}
}

func validateResourceInput(input ResourceInput, vErr *ValidationError) {
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}

	switch input.Kind {
	case ResourceKindEquipment:
		if input.UsageHours < 0 {
			vErr.add("usage_hours", "usage hours cannot be negative")
		}
		if input.MaintenanceThreshold != nil && *input.MaintenanceThreshold < 0 {
			vErr.add("maintenance_threshold", "threshold cannot be negative")
		}
	case ResourceKindPerson:
		if email := strings.TrimSpace(input.Email); email != "" {
			if _, err := mail.ParseAddress(email); err != nil {
				vErr.add("email", "email is invalid")
			}
		}
		if manager := strings.TrimSpace(input.ManagerEmail); manager != "" {
			if _, err := mail.ParseAddress(manager); err != nil {
				vErr.add("manager_email", "manager email is invalid")
			}
		}
	case ResourceKindConsumable:
		if input.Quantity < 0 {
			vErr.add("quantity", "quantity cannot be negative")
		}
		if input.ReorderThreshold < 0 {
			vErr.add("reorder_threshold", "threshold cannot be negative")
		}
	}
}

func resourceFromInput(input ResourceInput) Resource {
	resource := Resource{
		Kind: input.Kind,
		Name: strings.TrimSpace(input.Name),
	}
	switch input.Kind {
	case ResourceKindEquipment:
		resource.EquipmentType = strings.TrimSpace(input.EquipmentType)
		resource.RequiresOperator = input.RequiresOperator
		resource.UsageHours = input.UsageHours
		resource.MaintenanceThreshold = input.MaintenanceThreshold
		resource.LastMaintenance = input.LastMaintenance
	case ResourceKindPerson:
		resource.Email = strings.TrimSpace(input.Email)
		resource.ManagerEmail = strings.TrimSpace(input.ManagerEmail)
	case ResourceKindConsumable:
		resource.Location = strings.TrimSpace(input.Location)
		resource.Quantity = input.Quantity
		resource.Unit = strings.TrimSpace(input.Unit)
		resource.ReorderThreshold = input.ReorderThreshold
	}
	return resource
}

func createAction(kind ResourceKind) string {
	switch kind {
	case ResourceKindEquipment:
		return audit.ActionAddEquipment
	case ResourceKindPerson:
		return audit.ActionAddPerson
	case ResourceKindConsumable:
		return audit.ActionAddConsumable
	}
	return "add_resource"
}

func updateAction(kind ResourceKind) string {
	switch kind {
	case ResourceKindEquipment:
		return audit.ActionUpdateEquipment
	case ResourceKindPerson:
		return audit.ActionUpdatePerson
	case ResourceKindConsumable:
		return audit.ActionUpdateConsumable
	}
	return "update_resource"
}
