package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/example/fieldwork-scheduler/internal/persistence"
)

// BookingRepository implements persistence.BookingRepository using SQLite
type BookingRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
}

// NewBookingRepository creates a new SQLite booking repository
func NewBookingRepository(pool *ConnectionPool) *BookingRepository {
	return &BookingRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
	}
}

const bookingColumns = `id, resource_kind, resource_id, start_time, end_time, job_name, job_number,
	description, location, assigned_user_id, status, created_at, updated_at`

// CreateBooking inserts a new booking
func (r *BookingRepository) CreateBooking(ctx context.Context, booking persistence.Booking) error {
	if booking.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if booking.End.Before(booking.Start) {
		return fmt.Errorf("%w: end before start", persistence.ErrConstraintViolation)
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := `INSERT INTO bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		_, err := r.helper.ExecTx(ctx, tx, query,
			booking.ID,
			booking.ResourceKind,
			booking.ResourceID,
			formatTime(booking.Start),
			formatTime(booking.End),
			booking.JobName,
			nullString(booking.JobNumber),
			nullString(booking.Description),
			nullString(booking.Location),
			nullString(booking.AssignedUserID),
			booking.Status,
			formatTime(booking.CreatedAt),
			formatTime(booking.UpdatedAt),
		)
		return r.mapper.MapError(err)
	})
}

// UpdateBooking overwrites every mutable column of an existing booking
func (r *BookingRepository) UpdateBooking(ctx context.Context, booking persistence.Booking) error {
	if booking.ID == "" {
		return persistence.ErrNotFound
	}
	if booking.End.Before(booking.Start) {
		return fmt.Errorf("%w: end before start", persistence.ErrConstraintViolation)
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE bookings
			SET resource_kind = ?, resource_id = ?, start_time = ?, end_time = ?, job_name = ?, job_number = ?,
			    description = ?, location = ?, assigned_user_id = ?, status = ?, updated_at = ?
			WHERE id = ?
		`
		result, err := r.helper.ExecTx(ctx, tx, query,
			booking.ResourceKind,
			booking.ResourceID,
			formatTime(booking.Start),
			formatTime(booking.End),
			booking.JobName,
			nullString(booking.JobNumber),
			nullString(booking.Description),
			nullString(booking.Location),
			nullString(booking.AssignedUserID),
			booking.Status,
			formatTime(booking.UpdatedAt),
			booking.ID,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return requireRowsAffected(result)
	})
}

// GetBooking retrieves a booking by ID
func (r *BookingRepository) GetBooking(ctx context.Context, id string) (persistence.Booking, error) {
	if id == "" {
		return persistence.Booking{}, persistence.ErrNotFound
	}
	row := r.helper.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	booking, err := scanBooking(row)
	if err != nil {
		return persistence.Booking{}, r.mapper.MapError(err)
	}
	return booking, nil
}

// ListBookings returns bookings matching filter ordered by start time then ID
func (r *BookingRepository) ListBookings(ctx context.Context, filter persistence.BookingFilter) ([]persistence.Booking, error) {
	var (
		where []string
		args  []any
	)

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			placeholders[i] = "?"
			args = append(args, status)
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.ResourceID != "" {
		where = append(where, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if filter.AssignedUserID != "" {
		where = append(where, "assigned_user_id = ?")
		args = append(args, filter.AssignedUserID)
	}
	if filter.OverlapsUntil != nil {
		where = append(where, "start_time < ?")
		args = append(args, formatTime(*filter.OverlapsUntil))
	}
	if filter.OverlapsFrom != nil {
		where = append(where, "end_time > ?")
		args = append(args, formatTime(*filter.OverlapsFrom))
	}
	if filter.StartsFrom != nil {
		where = append(where, "start_time >= ?")
		args = append(args, formatTime(*filter.StartsFrom))
	}
	if filter.StartsBefore != nil {
		where = append(where, "start_time < ?")
		args = append(args, formatTime(*filter.StartsBefore))
	}
	if filter.EndsFrom != nil {
		where = append(where, "end_time >= ?")
		args = append(args, formatTime(*filter.EndsFrom))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time ASC, id ASC"

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var bookings []persistence.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return bookings, nil
}

// CancelBooking marks an active booking cancelled and detaches its secondary
// resources in one transaction. Missing or already cancelled bookings yield
// persistence.ErrNotFound.
func (r *BookingRepository) CancelBooking(ctx context.Context, id string, at time.Time) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(ctx, tx,
			`UPDATE bookings SET status = 'cancelled', updated_at = ? WHERE id = ? AND status != 'cancelled'`,
			formatTime(at), id,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := requireRowsAffected(result); err != nil {
			return err
		}
		if _, err := r.helper.ExecTx(ctx, tx, `DELETE FROM booking_resources WHERE booking_id = ?`, id); err != nil {
			return r.mapper.MapError(err)
		}
		return nil
	})
}

// RescheduleBooking moves a still scheduled booking to a new window and marks
// it rescheduled. Bookings that are missing or no longer scheduled yield
// persistence.ErrNotFound and are left untouched.
func (r *BookingRepository) RescheduleBooking(ctx context.Context, id string, start, end, at time.Time) error {
	if end.Before(start) {
		return fmt.Errorf("%w: end before start", persistence.ErrConstraintViolation)
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := r.helper.ExecTx(ctx, tx, `
			UPDATE bookings
			SET start_time = ?, end_time = ?, status = 'rescheduled', updated_at = ?
			WHERE id = ? AND status = 'scheduled'`,
			formatTime(start), formatTime(end), formatTime(at), id,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return requireRowsAffected(result)
	})
}

// AddBookingResource attaches a secondary resource to a booking
func (r *BookingRepository) AddBookingResource(ctx context.Context, attachment persistence.BookingResource) error {
	if attachment.ID == "" || attachment.BookingID == "" {
		return persistence.ErrConstraintViolation
	}
	if attachment.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", persistence.ErrConstraintViolation)
	}

	_, err := r.helper.Exec(ctx, `
		INSERT INTO booking_resources (id, booking_id, resource_kind, resource_id, quantity, assigned_user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attachment.ID,
		attachment.BookingID,
		attachment.ResourceKind,
		attachment.ResourceID,
		attachment.Quantity,
		nullString(attachment.AssignedUserID),
		formatTime(attachment.CreatedAt),
	)
	return r.mapper.MapError(err)
}

// RemoveBookingResource detaches one secondary resource from a booking
func (r *BookingRepository) RemoveBookingResource(ctx context.Context, bookingID, attachmentID string) error {
	result, err := r.helper.Exec(ctx,
		`DELETE FROM booking_resources WHERE id = ? AND booking_id = ?`, attachmentID, bookingID)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireRowsAffected(result)
}

// ListBookingResources returns the secondary resources attached to a booking
func (r *BookingRepository) ListBookingResources(ctx context.Context, bookingID string) ([]persistence.BookingResource, error) {
	rows, err := r.helper.Query(ctx, `
		SELECT id, booking_id, resource_kind, resource_id, quantity, assigned_user_id, created_at
		FROM booking_resources
		WHERE booking_id = ?
		ORDER BY created_at ASC, id ASC`, bookingID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var attachments []persistence.BookingResource
	for rows.Next() {
		var (
			attachment persistence.BookingResource
			assignee   sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&attachment.ID, &attachment.BookingID, &attachment.ResourceKind, &attachment.ResourceID,
			&attachment.Quantity, &assignee, &createdAt); err != nil {
			return nil, r.mapper.MapError(err)
		}
		attachment.AssignedUserID = stringPtr(assignee)
		if attachment.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		attachments = append(attachments, attachment)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return attachments, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (persistence.Booking, error) {
	var (
		booking                                  persistence.Booking
		start, end, createdAt, updatedAt         string
		jobNumber, description, location, person sql.NullString
	)
	if err := row.Scan(
		&booking.ID,
		&booking.ResourceKind,
		&booking.ResourceID,
		&start,
		&end,
		&booking.JobName,
		&jobNumber,
		&description,
		&location,
		&person,
		&booking.Status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Booking{}, err
	}

	var err error
	if booking.Start, err = parseTime("start_time", start); err != nil {
		return persistence.Booking{}, err
	}
	if booking.End, err = parseTime("end_time", end); err != nil {
		return persistence.Booking{}, err
	}
	if booking.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return persistence.Booking{}, err
	}
	if booking.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return persistence.Booking{}, err
	}
	booking.JobNumber = stringPtr(jobNumber)
	booking.Description = stringPtr(description)
	booking.Location = stringPtr(location)
	booking.AssignedUserID = stringPtr(person)
	return booking, nil
}

func requireRowsAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
