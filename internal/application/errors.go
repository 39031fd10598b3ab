package application

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/example/fieldwork-scheduler/internal/persistence"
	"github.com/example/fieldwork-scheduler/internal/scheduler"
)

var (
	// ErrNotFound is returned when the requested resource does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrAlreadyExists is returned when a unique attribute is already taken.
	ErrAlreadyExists = errors.New("application: already exists")
	// ErrStoreUnavailable is returned when the datastore is busy or unreachable.
	ErrStoreUnavailable = errors.New("application: store unavailable")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	if len(v.FieldErrors) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func newValidationError(field, message string) *ValidationError {
	vErr := &ValidationError{}
	vErr.add(field, message)
	return vErr
}

// ConflictError rejects a booking that overlaps active bookings.
type ConflictError struct {
	Conflicts []scheduler.Conflict
}

// Error implements the error interface.
func (c *ConflictError) Error() string {
	if c == nil {
		return ""
	}
	ids := make([]string, 0, len(c.Conflicts))
	for _, conflict := range c.Conflicts {
		ids = append(ids, fmt.Sprintf("%s(%s)", conflict.WithBookingID, conflict.Type))
	}
	return "booking conflicts with " + strings.Join(ids, ", ")
}

// DeliveryError reports a failed attempt on one delivery channel.
type DeliveryError struct {
	Channel string
	Err     error
}

// Error implements the error interface.
func (d *DeliveryError) Error() string {
	if d == nil {
		return ""
	}
	return fmt.Sprintf("delivery via %s failed: %v", d.Channel, d.Err)
}

// Unwrap exposes the transport error.
func (d *DeliveryError) Unwrap() error {
	if d == nil {
		return nil
	}
	return d.Err
}

// StoreError wraps an unexpected persistence failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (s *StoreError) Error() string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("store: %s: %v", s.Op, s.Err)
}

// Unwrap exposes the underlying error.
func (s *StoreError) Unwrap() error {
	if s == nil {
		return nil
	}
	return s.Err
}

// mapRepoError translates persistence errors into the application error model.
func mapRepoError(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		vErr *ValidationError
		cErr *ConflictError
		sErr *StoreError
	)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrConstraintViolation):
		return newValidationError("record", "violates a data constraint")
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return newValidationError("reference", "related records are missing or still in use")
	case errors.Is(err, persistence.ErrDatabaseLocked):
		return &StoreError{Op: op, Err: fmt.Errorf("%w: %w", ErrStoreUnavailable, err)}
	case errors.As(err, &vErr), errors.As(err, &cErr), errors.As(err, &sErr):
		return err
	}
	return &StoreError{Op: op, Err: err}
}
