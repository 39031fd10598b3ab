package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/example/fieldwork-scheduler/internal/persistence"
)

// NotificationRepository implements persistence.NotificationRepository using SQLite
type NotificationRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewNotificationRepository creates a new SQLite notification repository
func NewNotificationRepository(pool *ConnectionPool) *NotificationRepository {
	return &NotificationRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// CreateTemplate inserts a notification template
func (r *NotificationRepository) CreateTemplate(ctx context.Context, template persistence.Template) error {
	if template.ID == "" || template.Name == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO notification_templates (id, name, subject, body, cc, bcc, is_html, primary_enabled, last_used, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		template.ID,
		template.Name,
		template.Subject,
		template.Body,
		joinAddresses(template.CC),
		joinAddresses(template.BCC),
		boolToInt(template.IsHTML),
		boolToInt(template.PrimaryEnabled),
		nullTime(template.LastUsed),
		formatTime(template.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// GetTemplate retrieves a template by ID
func (r *NotificationRepository) GetTemplate(ctx context.Context, id string) (persistence.Template, error) {
	var (
		template               persistence.Template
		cc, bcc, createdAt     string
		isHTML, primaryEnabled int
		lastUsed               sql.NullString
	)
	err := r.helper.QueryRow(ctx, `
		SELECT id, name, subject, body, cc, bcc, is_html, primary_enabled, last_used, created_at
		FROM notification_templates WHERE id = ?`, id).Scan(
		&template.ID, &template.Name, &template.Subject, &template.Body, &cc, &bcc,
		&isHTML, &primaryEnabled, &lastUsed, &createdAt,
	)
	if err != nil {
		return persistence.Template{}, r.mapper.MapError(err)
	}

	template.CC = splitAddresses(cc)
	template.BCC = splitAddresses(bcc)
	template.IsHTML = isHTML != 0
	template.PrimaryEnabled = primaryEnabled != 0
	if template.LastUsed, err = timePtr("last_used", lastUsed); err != nil {
		return persistence.Template{}, err
	}
	if template.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Template{}, err
	}
	return template, nil
}

// TouchTemplate records the time a template was last used for delivery
func (r *NotificationRepository) TouchTemplate(ctx context.Context, id string, at time.Time) error {
	result, err := r.helper.Exec(ctx, `UPDATE notification_templates SET last_used = ? WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireRowsAffected(result)
}

// CreateRule inserts an automation rule
func (r *NotificationRepository) CreateRule(ctx context.Context, rule persistence.Rule) error {
	if rule.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.helper.Exec(ctx, `
		INSERT INTO automation_rules (id, template_id, trigger_type, trigger_value, recipient_type, recipient_value, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		rule.TemplateID,
		rule.TriggerType,
		rule.TriggerValue,
		rule.RecipientType,
		nullString(rule.RecipientValue),
		boolToInt(rule.Active),
		formatTime(rule.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// ListActiveRules returns every active rule ordered by creation
func (r *NotificationRepository) ListActiveRules(ctx context.Context) ([]persistence.Rule, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, template_id, trigger_type, trigger_value, recipient_type, recipient_value, active, created_at
		FROM automation_rules
		WHERE active = 1
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var rules []persistence.Rule
	for rows.Next() {
		var (
			rule      persistence.Rule
			value     sql.NullString
			active    int
			createdAt string
		)
		if err := rows.Scan(&rule.ID, &rule.TemplateID, &rule.TriggerType, &rule.TriggerValue,
			&rule.RecipientType, &value, &active, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		rule.RecipientValue = stringPtr(value)
		rule.Active = active != 0
		if rule.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return rules, nil
}

// ListTowns returns every town contact
func (r *NotificationRepository) ListTowns(ctx context.Context) ([]persistence.Town, error) {
	rows, err := r.helper.Query(ctx, `SELECT name, email FROM towns ORDER BY name ASC`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var towns []persistence.Town
	for rows.Next() {
		var town persistence.Town
		if err := rows.Scan(&town.Name, &town.Email); err != nil {
			return nil, r.mapper.MapError(err)
		}
		towns = append(towns, town)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return towns, nil
}

// AppendDelivery stores one delivery attempt and returns it with its assigned ID.
// A second sent record for the same rule, booking and trigger date yields
// persistence.ErrDuplicate.
func (r *NotificationRepository) AppendDelivery(ctx context.Context, record persistence.DeliveryRecord) (persistence.DeliveryRecord, error) {
	result, err := r.helper.Exec(ctx, `
		INSERT INTO delivery_records (kind, rule_id, template_id, booking_id, trigger_date, recipient, subject, channel, status, error, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Kind,
		nullString(record.RuleID),
		nullString(record.TemplateID),
		nullString(record.BookingID),
		nullString(record.TriggerDate),
		record.Recipient,
		record.Subject,
		record.Channel,
		record.Status,
		nullString(record.Error),
		formatTime(record.SentAt),
	)
	if err != nil {
		return persistence.DeliveryRecord{}, r.mapper.MapError(err)
	}
	if record.ID, err = result.LastInsertId(); err != nil {
		return persistence.DeliveryRecord{}, r.mapper.MapError(err)
	}
	return record, nil
}

// HasSentDelivery reports whether a sent record exists for the suppression key
func (r *NotificationRepository) HasSentDelivery(ctx context.Context, ruleID, bookingID, triggerDate string) (bool, error) {
	var count int
	err := r.helper.QueryRow(ctx, `
		SELECT COUNT(1) FROM delivery_records
		WHERE rule_id = ? AND booking_id = ? AND trigger_date = ? AND status = 'sent'`,
		ruleID, bookingID, triggerDate).Scan(&count)
	if err != nil {
		return false, r.mapper.MapError(err)
	}
	return count > 0, nil
}

// ListDeliveries returns delivery records for a booking, or all records when bookingID is empty
func (r *NotificationRepository) ListDeliveries(ctx context.Context, bookingID string) ([]persistence.DeliveryRecord, error) {
	query := `
		SELECT id, kind, rule_id, template_id, booking_id, trigger_date, recipient, subject, channel, status, error, sent_at
		FROM delivery_records`
	var args []any
	if bookingID != "" {
		query += ` WHERE booking_id = ?`
		args = append(args, bookingID)
	}
	query += ` ORDER BY id ASC`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var records []persistence.DeliveryRecord
	for rows.Next() {
		var (
			record                                          persistence.DeliveryRecord
			ruleID, templateID, booking, trigger, errorText sql.NullString
			sentAt                                          string
		)
		if err := rows.Scan(&record.ID, &record.Kind, &ruleID, &templateID, &booking, &trigger,
			&record.Recipient, &record.Subject, &record.Channel, &record.Status, &errorText, &sentAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		record.RuleID = stringPtr(ruleID)
		record.TemplateID = stringPtr(templateID)
		record.BookingID = stringPtr(booking)
		record.TriggerDate = stringPtr(trigger)
		record.Error = stringPtr(errorText)
		if record.SentAt, err = parseTime("sent_at", sentAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return records, nil
}

func joinAddresses(addresses []string) string {
	return strings.Join(addresses, ",")
}

func splitAddresses(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	addresses := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			addresses = append(addresses, trimmed)
		}
	}
	return addresses
}
