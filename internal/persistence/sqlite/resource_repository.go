package sqlite

import (
	"context"
	"database/sql"

	"github.com/example/fieldwork-scheduler/internal/persistence"
)

// ResourceRepository implements persistence.ResourceRepository using SQLite
type ResourceRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewResourceRepository creates a new SQLite resource repository
func NewResourceRepository(pool *ConnectionPool) *ResourceRepository {
	return &ResourceRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const resourceColumns = `id, kind, name, equipment_type, requires_operator, usage_hours, maintenance_threshold,
	last_maintenance, email, manager_email, location, quantity, unit, reorder_threshold, created_at, updated_at`

// CreateResource inserts a new resource
func (r *ResourceRepository) CreateResource(ctx context.Context, resource persistence.Resource) error {
	if resource.ID == "" || resource.Name == "" {
		return persistence.ErrConstraintViolation
	}

	_, err := r.helper.Exec(ctx, `INSERT INTO resources (`+resourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		resource.ID,
		resource.Kind,
		resource.Name,
		nullString(resource.EquipmentType),
		boolToInt(resource.RequiresOperator),
		resource.UsageHours,
		nullFloat(resource.MaintenanceThreshold),
		nullTime(resource.LastMaintenance),
		nullString(resource.Email),
		nullString(resource.ManagerEmail),
		nullString(resource.Location),
		resource.Quantity,
		nullString(resource.Unit),
		resource.ReorderThreshold,
		formatTime(resource.CreatedAt),
		formatTime(resource.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateResource overwrites an existing resource. The kind cannot change.
func (r *ResourceRepository) UpdateResource(ctx context.Context, resource persistence.Resource) error {
	if resource.ID == "" {
		return persistence.ErrNotFound
	}

	result, err := r.helper.Exec(ctx, `
		UPDATE resources
		SET name = ?, equipment_type = ?, requires_operator = ?, usage_hours = ?, maintenance_threshold = ?,
		    last_maintenance = ?, email = ?, manager_email = ?, location = ?, quantity = ?, unit = ?,
		    reorder_threshold = ?, updated_at = ?
		WHERE id = ? AND kind = ?`,
		resource.Name,
		nullString(resource.EquipmentType),
		boolToInt(resource.RequiresOperator),
		resource.UsageHours,
		nullFloat(resource.MaintenanceThreshold),
		nullTime(resource.LastMaintenance),
		nullString(resource.Email),
		nullString(resource.ManagerEmail),
		nullString(resource.Location),
		resource.Quantity,
		nullString(resource.Unit),
		resource.ReorderThreshold,
		formatTime(resource.UpdatedAt),
		resource.ID,
		resource.Kind,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireRowsAffected(result)
}

// GetResource retrieves a resource by ID
func (r *ResourceRepository) GetResource(ctx context.Context, id string) (persistence.Resource, error) {
	if id == "" {
		return persistence.Resource{}, persistence.ErrNotFound
	}
	resource, err := scanResource(r.helper.QueryRow(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id))
	if err != nil {
		return persistence.Resource{}, r.mapper.MapError(err)
	}
	return resource, nil
}

// ListResources returns resources ordered by name. An empty kind lists every kind.
func (r *ResourceRepository) ListResources(ctx context.Context, kind string) ([]persistence.Resource, error) {
	query := `SELECT ` + resourceColumns + ` FROM resources`
	var args []any
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY kind ASC, name ASC`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var resources []persistence.Resource
	for rows.Next() {
		resource, err := scanResource(rows)
		if err != nil {
			return nil, r.mapper.MapError(err)
		}
		resources = append(resources, resource)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return resources, nil
}

// DeleteResource removes a resource. Resources referenced by bookings cannot be removed.
func (r *ResourceRepository) DeleteResource(ctx context.Context, id string) error {
	result, err := r.helper.Exec(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireRowsAffected(result)
}

func scanResource(row rowScanner) (persistence.Resource, error) {
	var (
		resource                           persistence.Resource
		equipmentType, email, managerEmail sql.NullString
		location, unit, lastMaintenance    sql.NullString
		threshold                          sql.NullFloat64
		requiresOperator                   int
		createdAt, updatedAt               string
	)
	if err := row.Scan(
		&resource.ID,
		&resource.Kind,
		&resource.Name,
		&equipmentType,
		&requiresOperator,
		&resource.UsageHours,
		&threshold,
		&lastMaintenance,
		&email,
		&managerEmail,
		&location,
		&resource.Quantity,
		&unit,
		&resource.ReorderThreshold,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Resource{}, err
	}

	var err error
	if resource.LastMaintenance, err = timePtr("last_maintenance", lastMaintenance); err != nil {
		return persistence.Resource{}, err
	}
	if resource.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Resource{}, err
	}
	if resource.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Resource{}, err
	}
	resource.EquipmentType = stringPtr(equipmentType)
	resource.RequiresOperator = requiresOperator != 0
	resource.MaintenanceThreshold = floatPtr(threshold)
	resource.Email = stringPtr(email)
	resource.ManagerEmail = stringPtr(managerEmail)
	resource.Location = stringPtr(location)
	resource.Unit = stringPtr(unit)
	return resource, nil
}
