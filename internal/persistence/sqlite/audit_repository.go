package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/fieldwork-scheduler/internal/persistence"
)

// AuditRepository implements persistence.AuditRepository using SQLite
type AuditRepository struct {
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewAuditRepository creates a new SQLite audit repository
func NewAuditRepository(pool *ConnectionPool) *AuditRepository {
	return &AuditRepository{
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

// AppendAudit stores an audit record and returns it with its assigned ID
func (r *AuditRepository) AppendAudit(ctx context.Context, record persistence.AuditRecord) (persistence.AuditRecord, error) {
	if record.Action == "" {
		return persistence.AuditRecord{}, persistence.ErrConstraintViolation
	}
	if record.Details == "" {
		record.Details = "{}"
	}
	result, err := r.helper.Exec(ctx, `
		INSERT INTO audit_log (action, actor, entity_id, entity_label, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		record.Action,
		record.Actor,
		nullString(record.EntityID),
		nullString(record.EntityLabel),
		record.Details,
		formatTime(record.CreatedAt),
	)
	if err != nil {
		return persistence.AuditRecord{}, r.mapper.MapError(err)
	}
	if record.ID, err = result.LastInsertId(); err != nil {
		return persistence.AuditRecord{}, r.mapper.MapError(err)
	}
	return record, nil
}

// ListAudit returns the newest records first. Empty action lists every action; limit <= 0 means no limit.
func (r *AuditRepository) ListAudit(ctx context.Context, action string, limit int) ([]persistence.AuditRecord, error) {
	query := `SELECT id, action, actor, entity_id, entity_label, details, created_at FROM audit_log`
	var args []any
	if action != "" {
		query += ` WHERE action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var records []persistence.AuditRecord
	for rows.Next() {
		var (
			record          persistence.AuditRecord
			entityID, label sql.NullString
			createdAt       string
		)
		if err := rows.Scan(&record.ID, &record.Action, &record.Actor, &entityID, &label, &record.Details, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		record.EntityID = stringPtr(entityID)
		record.EntityLabel = stringPtr(label)
		if record.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return records, nil
}
