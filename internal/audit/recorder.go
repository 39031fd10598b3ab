// Package audit records who changed what. Records are appended to the store
// and optionally mirrored onto a Redis stream for downstream consumers.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/fieldwork-scheduler/internal/persistence"
)

// Action names written to the audit log.
const (
	ActionAddSchedule      = "add_schedule"
	ActionUpdateSchedule   = "update_schedule"
	ActionDeleteSchedule   = "delete_schedule"
	ActionAddJobResource   = "add_job_resource"
	ActionRemoveResource   = "remove_job_resource"
	ActionReroute          = "reroute"
	ActionEmailSent        = "email_sent"
	ActionMaintenanceAlert = "maintenance_alert"
	ActionReorderAlert     = "reorder_alert"
	ActionAddEquipment     = "add_equipment"
	ActionUpdateEquipment  = "update_equipment"
	ActionAddPerson        = "add_person"
	ActionUpdatePerson     = "update_person"
	ActionAddConsumable    = "add_consumable"
	ActionUpdateConsumable = "update_consumable"
	ActionDeleteResource   = "delete_resource"
	ActionRecordUsage      = "record_usage"
	ActionAdjustStock      = "adjust_stock"
)

// SystemActor is used when no caller identity is known.
const SystemActor = "system"

// Entry is one audit event before persistence.
type Entry struct {
	Action      string
	Actor       string
	EntityID    string
	EntityLabel string
	Details     map[string]any
}

// Store persists audit records.
type Store interface {
	AppendAudit(ctx context.Context, record persistence.AuditRecord) (persistence.AuditRecord, error)
}

// StreamPublisher is the subset of *redis.Client used for mirroring.
type StreamPublisher interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// Recorder appends audit entries.
type Recorder struct {
	store      Store
	stream     StreamPublisher
	streamName string
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithStream mirrors every stored record onto the named Redis stream.
func WithStream(publisher StreamPublisher, stream string) Option {
	return func(r *Recorder) {
		if publisher != nil && stream != "" {
			r.stream = publisher
			r.streamName = stream
		}
	}
}

// NewRecorder constructs a recorder writing to store.
func NewRecorder(store Store, now func() time.Time, logger *slog.Logger, opts ...Option) *Recorder {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{store: store, now: now, logger: logger.With("component", "audit")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stores entry. A failure to mirror onto the stream is logged and
// does not fail the call.
func (r *Recorder) Record(ctx context.Context, entry Entry) error {
	if r == nil || r.store == nil {
		return nil
	}
	if entry.Action == "" {
		return fmt.Errorf("audit: action is required")
	}
	if entry.Actor == "" {
		entry.Actor = SystemActor
	}

	details := "{}"
	if len(entry.Details) > 0 {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("audit: encode details: %w", err)
		}
		details = string(raw)
	}

	record := persistence.AuditRecord{
		Action:      entry.Action,
		Actor:       entry.Actor,
		EntityID:    optional(entry.EntityID),
		EntityLabel: optional(entry.EntityLabel),
		Details:     details,
		CreatedAt:   r.now().UTC(),
	}
	stored, err := r.store.AppendAudit(ctx, record)
	if err != nil {
		return fmt.Errorf("audit: append %s: %w", entry.Action, err)
	}

	r.mirror(ctx, stored)
	return nil
}

func (r *Recorder) mirror(ctx context.Context, record persistence.AuditRecord) {
	if r.stream == nil {
		return
	}
	values := map[string]any{
		"id":         strconv.FormatInt(record.ID, 10),
		"action":     record.Action,
		"actor":      record.Actor,
		"details":    record.Details,
		"created_at": record.CreatedAt.Format(time.RFC3339),
	}
	if record.EntityID != nil {
		values["entity_id"] = *record.EntityID
	}
	if record.EntityLabel != nil {
		values["entity_label"] = *record.EntityLabel
	}

	if err := r.stream.XAdd(ctx, &redis.XAddArgs{Stream: r.streamName, Values: values}).Err(); err != nil {
		r.logger.WarnContext(ctx, "failed to mirror audit record", "error", err, "action", record.Action, "stream", r.streamName)
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
