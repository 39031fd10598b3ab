package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/example/fieldwork-scheduler/internal/audit"
	"github.com/example/fieldwork-scheduler/internal/conditions"
	"github.com/example/fieldwork-scheduler/internal/messaging"
	"github.com/example/fieldwork-scheduler/internal/notify"
)

// ResourceLister lists catalog entries by kind.
type ResourceLister interface {
	ListResources(ctx context.Context, kind ResourceKind) ([]Resource, error)
}

// MaintenanceMonitor alerts operations staff when equipment is due for
// service or consumables run low.
type MaintenanceMonitor struct {
	resources  ResourceLister
	deliverer  Deliverer
	audit      AuditRecorder
	recipients []string
	now        func() time.Time
	logger     *slog.Logger
}

// NewMaintenanceMonitor constructs a monitor that alerts recipients.
func NewMaintenanceMonitor(resources ResourceLister, deliverer Deliverer, recorder AuditRecorder, recipients []string, now func() time.Time) *MaintenanceMonitor {
	return NewMaintenanceMonitorWithLogger(resources, deliverer, recorder, recipients, now, nil)
}

// NewMaintenanceMonitorWithLogger constructs a monitor with a specified logger.
func NewMaintenanceMonitorWithLogger(resources ResourceLister, deliverer Deliverer, recorder AuditRecorder, recipients []string, now func() time.Time, logger *slog.Logger) *MaintenanceMonitor {
	if now == nil {
		now = time.Now
	}
	return &MaintenanceMonitor{
		resources:  resources,
		deliverer:  deliverer,
		audit:      recorder,
		recipients: append([]string(nil), recipients...),
		now:        now,
		logger:     defaultLogger(logger),
	}
}

func (m *MaintenanceMonitor) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, m.logger, "MaintenanceMonitor", operation, attrs...)
}

// Sweep checks every equipment item and alerts for those due for maintenance.
func (m *MaintenanceMonitor) Sweep(ctx context.Context) (report SweepReport, err error) {
	if m == nil {
		err = fmt.Errorf("MaintenanceMonitor is nil")
		return
	}

	report = SweepReport{Job: "maintenance", StartedAt: m.now()}
	logger := m.loggerWith(ctx, "Sweep")
	defer func() {
		report.FinishedAt = m.now()
		if err != nil {
			logger.ErrorContext(ctx, "maintenance sweep failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "maintenance sweep finished",
			"examined", report.Examined,
			"affected", report.Affected,
			"failed", report.Failed,
		)
	}()

	var equipment []Resource
	equipment, err = m.resources.ListResources(ctx, ResourceKindEquipment)
	if err != nil {
		err = mapRepoError("list equipment", err)
		return
	}

	for _, item := range equipment {
		if ctx.Err() != nil {
			err = ctx.Err()
			return
		}
		report.Examined++
		sent, checkErr := m.CheckMaintenance(ctx, item)
		switch {
		case checkErr != nil:
			report.Failed++
		case sent:
			report.Affected++
		default:
			report.Skipped++
		}
	}
	return
}

// CheckMaintenance alerts for a single equipment item when it is due.
// It reports whether an alert was sent.
func (m *MaintenanceMonitor) CheckMaintenance(ctx context.Context, equipment Resource) (bool, error) {
	if m == nil {
		return false, fmt.Errorf("MaintenanceMonitor is nil")
	}
	if equipment.Kind != ResourceKindEquipment {
		return false, nil
	}
	if !conditions.MaintenanceDue(conditions.Equipment{
		UsageHours:           equipment.UsageHours,
		MaintenanceThreshold: equipment.MaintenanceThreshold,
	}) {
		return false, nil
	}

	lastMaintenance := "Never"
	if equipment.LastMaintenance != nil {
		lastMaintenance = equipment.LastMaintenance.Format("2006-01-02")
	}
	msg := messaging.Message{
		Subject: "Equipment Maintenance Alert: " + equipment.Name,
		Body: fmt.Sprintf("Equipment '%s' has reached %s hours (threshold: %s). Last maintenance: %s.",
			equipment.Name,
			formatAmount(equipment.UsageHours),
			formatAmount(*equipment.MaintenanceThreshold),
			lastMaintenance,
		),
	}

	return m.alert(ctx, DeliveryKindMaintenance, audit.ActionMaintenanceAlert, equipment, msg, map[string]any{
		"usage_hours": equipment.UsageHours,
		"threshold":   *equipment.MaintenanceThreshold,
	})
}

// CheckReorder alerts for a single consumable when its stock is at or below
// the reorder threshold. It reports whether an alert was sent.
func (m *MaintenanceMonitor) CheckReorder(ctx context.Context, consumable Resource) (bool, error) {
	if m == nil {
		return false, fmt.Errorf("MaintenanceMonitor is nil")
	}
	if consumable.Kind != ResourceKindConsumable {
		return false, nil
	}
	if !conditions.ReorderDue(conditions.Consumable{
		Quantity:         consumable.Quantity,
		ReorderThreshold: consumable.ReorderThreshold,
	}) {
		return false, nil
	}

	location := consumable.Location
	if location == "" {
		location = notify.FallbackLocation
	}
	unit := consumable.Unit
	if unit == "" {
		unit = "units"
	}
	msg := messaging.Message{
		Subject: "Inventory Reorder Alert: " + consumable.Name,
		Body: fmt.Sprintf("Item '%s' at %s has %s %s remaining (threshold: %s). Please reorder.",
			consumable.Name,
			location,
			formatAmount(consumable.Quantity),
			unit,
			formatAmount(consumable.ReorderThreshold),
		),
	}

	return m.alert(ctx, DeliveryKindReorder, audit.ActionReorderAlert, consumable, msg, map[string]any{
		"quantity":  consumable.Quantity,
		"threshold": consumable.ReorderThreshold,
	})
}

func (m *MaintenanceMonitor) alert(ctx context.Context, kind DeliveryKind, action string, resource Resource, msg messaging.Message, details map[string]any) (bool, error) {
	logger := m.loggerWith(ctx, "alert",
		"kind", string(kind),
		"resource_id", resource.ID,
	)
	if len(m.recipients) == 0 {
		logger.WarnContext(ctx, "no operations recipients configured, skipping alert")
		return false, nil
	}

	msg.To = append([]string(nil), m.recipients...)
	if _, err := m.deliverer.Deliver(ctx, Delivery{Kind: kind, Message: msg}); err != nil {
		return false, err
	}

	if m.audit != nil {
		entry := audit.Entry{
			Action:      action,
			Actor:       audit.SystemActor,
			EntityID:    resource.ID,
			EntityLabel: resource.Name,
			Details:     details,
		}
		if err := m.audit.Record(ctx, entry); err != nil {
			logger.WarnContext(ctx, "failed to record audit entry", "action", action, "error", err)
		}
	}
	logger.InfoContext(ctx, "alert sent")
	return true, nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
