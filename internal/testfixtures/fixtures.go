package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/fieldwork-scheduler/internal/application"
	"github.com/example/fieldwork-scheduler/internal/persistence"
)

var (
	equipmentCounter  uint64
	personCounter     uint64
	consumableCounter uint64
	bookingCounter    uint64
)

var referenceTime = time.Date(2026, time.March, 2, 7, 30, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
// It falls on a Monday morning before the working day starts.
func ReferenceTime() time.Time {
	return referenceTime
}

// --------------------------- Resource fixtures ---------------------------

// ResourceFixture is a deterministic catalog entry.
type ResourceFixture struct {
	application.Resource
}

// ResourceOption configures a generated resource fixture.
type ResourceOption func(*ResourceFixture)

// NewEquipmentFixture returns equipment that needs no operator and has no
// maintenance threshold.
func NewEquipmentFixture(opts ...ResourceOption) ResourceFixture {
	idx := atomic.AddUint64(&equipmentCounter, 1)
	return buildResource(application.Resource{
		ID:            fmt.Sprintf("eq-%03d", idx),
		Kind:          application.ResourceKindEquipment,
		Name:          fmt.Sprintf("EQ%03d", idx),
		EquipmentType: "Boom Truck",
	}, idx, opts)
}

// NewPersonFixture returns a crew member with an email address.
func NewPersonFixture(opts ...ResourceOption) ResourceFixture {
	idx := atomic.AddUint64(&personCounter, 1)
	id := fmt.Sprintf("person-%03d", idx)
	return buildResource(application.Resource{
		ID:    id,
		Kind:  application.ResourceKindPerson,
		Name:  fmt.Sprintf("Crew %03d", idx),
		Email: id + "@example.com",
	}, idx, opts)
}

// NewConsumableFixture returns a stocked consumable well above its reorder threshold.
func NewConsumableFixture(opts ...ResourceOption) ResourceFixture {
	idx := atomic.AddUint64(&consumableCounter, 1)
	return buildResource(application.Resource{
		ID:               fmt.Sprintf("cons-%03d", idx),
		Kind:             application.ResourceKindConsumable,
		Name:             fmt.Sprintf("Consumable %03d", idx),
		Location:         "Depot",
		Quantity:         100,
		Unit:             "units",
		ReorderThreshold: 10,
	}, idx, opts)
}

func buildResource(resource application.Resource, idx uint64, opts []ResourceOption) ResourceFixture {
	created := referenceTime.Add(-time.Duration(idx) * time.Hour)
	resource.CreatedAt = created
	resource.UpdatedAt = created
	fixture := ResourceFixture{Resource: resource}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithResourceID overrides the generated identifier.
func WithResourceID(id string) ResourceOption {
	return func(f *ResourceFixture) {
		f.ID = id
	}
}

func WithResourceName(name string) ResourceOption {
	return func(f *ResourceFixture) {
		f.Name = name
	}
}

// WithOperatorRequired marks equipment as needing an assigned operator.
func WithOperatorRequired() ResourceOption {
	return func(f *ResourceFixture) {
		f.RequiresOperator = true
	}
}

// WithUsage sets usage hours and an optional maintenance threshold.
func WithUsage(hours float64, threshold *float64) ResourceOption {
	return func(f *ResourceFixture) {
		f.UsageHours = hours
		f.MaintenanceThreshold = threshold
	}
}

// WithStock sets the quantity on hand and the reorder threshold.
func WithStock(quantity, threshold float64) ResourceOption {
	return func(f *ResourceFixture) {
		f.Quantity = quantity
		f.ReorderThreshold = threshold
	}
}

func WithManagerEmail(email string) ResourceOption {
	return func(f *ResourceFixture) {
		f.ManagerEmail = email
	}
}

// Application returns the fixture as an application resource.
func (f ResourceFixture) Application() application.Resource {
	return f.Resource
}

// Input returns the caller supplied subset of the fixture.
func (f ResourceFixture) Input() application.ResourceInput {
	return application.ResourceInput{
		Kind:                 f.Kind,
		Name:                 f.Name,
		EquipmentType:        f.EquipmentType,
		RequiresOperator:     f.RequiresOperator,
		UsageHours:           f.UsageHours,
		MaintenanceThreshold: copyFloatPtr(f.MaintenanceThreshold),
		LastMaintenance:      copyTimePtr(f.LastMaintenance),
		Email:                f.Email,
		ManagerEmail:         f.ManagerEmail,
		Location:             f.Location,
		Quantity:             f.Quantity,
		Unit:                 f.Unit,
		ReorderThreshold:     f.ReorderThreshold,
	}
}

// Persistence returns the fixture as a storage row.
func (f ResourceFixture) Persistence() persistence.Resource {
	return persistence.Resource{
		ID:                   f.ID,
		Kind:                 string(f.Kind),
		Name:                 f.Name,
		EquipmentType:        optional(f.EquipmentType),
		RequiresOperator:     f.RequiresOperator,
		UsageHours:           f.UsageHours,
		MaintenanceThreshold: copyFloatPtr(f.MaintenanceThreshold),
		LastMaintenance:      copyTimePtr(f.LastMaintenance),
		Email:                optional(f.Email),
		ManagerEmail:         optional(f.ManagerEmail),
		Location:             optional(f.Location),
		Quantity:             f.Quantity,
		Unit:                 optional(f.Unit),
		ReorderThreshold:     f.ReorderThreshold,
		CreatedAt:            f.CreatedAt,
		UpdatedAt:            f.UpdatedAt,
	}
}

// --------------------------- Booking fixtures ----------------------------

// BookingFixture is a deterministic scheduled booking.
type BookingFixture struct {
	application.Booking
}

// BookingOption configures a generated booking fixture.
type BookingOption func(*BookingFixture)

// NewBookingFixture returns a four hour scheduled booking starting one hour
// after ReferenceTime.
func NewBookingFixture(opts ...BookingOption) BookingFixture {
	idx := atomic.AddUint64(&bookingCounter, 1)
	start := referenceTime.Add(time.Hour)
	fixture := BookingFixture{Booking: application.Booking{
		ID:           fmt.Sprintf("booking-%03d", idx),
		ResourceKind: application.ResourceKindEquipment,
		ResourceID:   "eq-001",
		Start:        start,
		End:          start.Add(4 * time.Hour),
		JobName:      fmt.Sprintf("Job %03d", idx),
		JobNumber:    fmt.Sprintf("J-%04d", idx),
		Location:     "Site A",
		Status:       application.BookingStatusScheduled,
		CreatedAt:    referenceTime,
		UpdatedAt:    referenceTime,
	}}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

func WithBookingID(id string) BookingOption {
	return func(f *BookingFixture) {
		f.ID = id
	}
}

// WithBookingResource points the booking at resource.
func WithBookingResource(resource ResourceFixture) BookingOption {
	return func(f *BookingFixture) {
		f.ResourceKind = resource.Kind
		f.ResourceID = resource.ID
	}
}

// WithBookingWindow sets the half-open window [start, end).
func WithBookingWindow(start, end time.Time) BookingOption {
	return func(f *BookingFixture) {
		f.Start = start
		f.End = end
	}
}

func WithBookingAssignee(id string) BookingOption {
	return func(f *BookingFixture) {
		f.AssignedUserID = id
	}
}

func WithBookingLocation(location string) BookingOption {
	return func(f *BookingFixture) {
		f.Location = location
	}
}

func WithBookingStatus(status application.BookingStatus) BookingOption {
	return func(f *BookingFixture) {
		f.Status = status
	}
}

// Application returns the fixture as an application booking.
func (f BookingFixture) Application() application.Booking {
	return f.Booking
}

// Input returns the caller supplied subset of the fixture.
func (f BookingFixture) Input() application.BookingInput {
	return application.BookingInput{
		ResourceKind:   f.ResourceKind,
		ResourceID:     f.ResourceID,
		Start:          f.Start,
		End:            f.End,
		JobName:        f.JobName,
		JobNumber:      f.JobNumber,
		Description:    f.Description,
		Location:       f.Location,
		AssignedUserID: f.AssignedUserID,
	}
}

// Persistence returns the fixture as a storage row.
func (f BookingFixture) Persistence() persistence.Booking {
	return persistence.Booking{
		ID:             f.ID,
		ResourceKind:   string(f.ResourceKind),
		ResourceID:     f.ResourceID,
		Start:          f.Start,
		End:            f.End,
		JobName:        f.JobName,
		JobNumber:      optional(f.JobNumber),
		Description:    optional(f.Description),
		Location:       optional(f.Location),
		AssignedUserID: optional(f.AssignedUserID),
		Status:         string(f.Status),
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
	}
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	v := value
	return &v
}

func copyFloatPtr(src *float64) *float64 {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	v := *src
	return &v
}
