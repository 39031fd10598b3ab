package application

import (
	"time"

	"github.com/example/fieldwork-scheduler/internal/messaging"
	"github.com/example/fieldwork-scheduler/internal/scheduler"
)

// ResourceKind identifies the category of a schedulable resource.
type ResourceKind string

const (
	ResourceKindEquipment  ResourceKind = "equipment"
	ResourceKindPerson     ResourceKind = "person"
	ResourceKindConsumable ResourceKind = "consumable"
)

// Valid reports whether k is a known kind.
func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceKindEquipment, ResourceKindPerson, ResourceKindConsumable:
		return true
	}
	return false
}

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	BookingStatusScheduled   BookingStatus = "scheduled"
	BookingStatusRescheduled BookingStatus = "rescheduled"
	BookingStatusCancelled   BookingStatus = "cancelled"
	BookingStatusCompleted   BookingStatus = "completed"
)

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusScheduled, BookingStatusRescheduled, BookingStatusCancelled, BookingStatusCompleted:
		return true
	}
	return false
}

// Active reports whether bookings in this status still hold their resource.
func (s BookingStatus) Active() bool {
	return s != BookingStatusCancelled
}

// activeStatuses lists every status that takes part in conflict detection.
var activeStatuses = []BookingStatus{BookingStatusScheduled, BookingStatusRescheduled, BookingStatusCompleted}

// TriggerKind selects how an automation rule picks bookings.
type TriggerKind string

const (
	TriggerDaysBefore TriggerKind = "days_before"
	TriggerJobStatus  TriggerKind = "job_status"
)

// Valid reports whether k is a known trigger.
func (k TriggerKind) Valid() bool {
	return k == TriggerDaysBefore || k == TriggerJobStatus
}

// RecipientKind selects how an automation rule addresses its mail.
type RecipientKind string

const (
	RecipientLocationCity RecipientKind = "location_city"
	RecipientManager      RecipientKind = "manager"
	RecipientCustom       RecipientKind = "custom"
)

// Valid reports whether k is a known recipient kind.
func (k RecipientKind) Valid() bool {
	switch k {
	case RecipientLocationCity, RecipientManager, RecipientCustom:
		return true
	}
	return false
}

// DeliveryStatus is the outcome of one delivery attempt.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// DeliveryKind records what produced a delivery.
type DeliveryKind string

const (
	DeliveryKindRule        DeliveryKind = "rule"
	DeliveryKindMaintenance DeliveryKind = "maintenance"
	DeliveryKindReorder     DeliveryKind = "reorder"
	DeliveryKindConflict    DeliveryKind = "conflict"
)

// Delivery channels.
const (
	ChannelGraph = "graph"
	ChannelSMTP  = "smtp"
)

// Booking is a time-bounded reservation of a resource for a job.
type Booking struct {
	ID             string
	ResourceKind   ResourceKind
	ResourceID     string
	Start          time.Time
	End            time.Time
	JobName        string
	JobNumber      string
	Description    string
	Location       string
	AssignedUserID string
	Status         BookingStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Resources      []BookingResource
}

func (b Booking) window() scheduler.Window {
	return scheduler.Window{Start: b.Start, End: b.End}
}

// BookingResource is a secondary resource attached to a booking.
type BookingResource struct {
	ID             string
	BookingID      string
	ResourceKind   ResourceKind
	ResourceID     string
	Quantity       int
	AssignedUserID string
	CreatedAt      time.Time
}

// Resource is a catalog entry. Kind-specific fields are zero for other kinds.
type Resource struct {
	ID   string
	Kind ResourceKind
	Name string

	EquipmentType        string
	RequiresOperator     bool
	UsageHours           float64
	MaintenanceThreshold *float64
	LastMaintenance      *time.Time

	Email        string
	ManagerEmail string

	Location         string
	Quantity         float64
	Unit             string
	ReorderThreshold float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Town maps a job location to its contact address.
type Town struct {
	Name  string
	Email string
}

// Template is a notification template with {placeholder} patterns.
type Template struct {
	ID             string
	Name           string
	Subject        string
	Body           string
	CC             []string
	BCC            []string
	IsHTML         bool
	PrimaryEnabled bool
	LastUsed       *time.Time
}

// Rule binds a template to a trigger and a recipient strategy.
type Rule struct {
	ID             string
	TemplateID     string
	Trigger        TriggerKind
	TriggerValue   string
	Recipient      RecipientKind
	RecipientValue string
	Active         bool
}

// WeatherObservation is one stored weather reading. Date is YYYY-MM-DD.
type WeatherObservation struct {
	ID            int64
	Location      string
	Date          string
	Temperature   float64
	WindSpeed     float64
	Precipitation float64
	ObservedAt    time.Time
}

// DeliveryRecord logs one delivery attempt.
type DeliveryRecord struct {
	ID          int64
	Kind        DeliveryKind
	RuleID      string
	TemplateID  string
	BookingID   string
	TriggerDate string
	Recipient   string
	Subject     string
	Channel     string
	Status      DeliveryStatus
	Error       string
	SentAt      time.Time
}

// Delivery describes a message to send and what to record about it.
type Delivery struct {
	Kind        DeliveryKind
	RuleID      string
	TemplateID  string
	BookingID   string
	TriggerDate string
	Actor       string
	Message     messaging.Message
	// PreferPrimary tries the identity-bound channel before SMTP.
	PreferPrimary bool
}

// ConflictAlert describes a rejected booking for the operations mailbox.
type ConflictAlert struct {
	JobName   string
	Start     time.Time
	End       time.Time
	Conflicts []ConflictDetail
}

// ConflictDetail names one booking that blocked the request.
type ConflictDetail struct {
	BookingID  string
	JobName    string
	Type       scheduler.ConflictType
	ResourceID string
	Start      time.Time
	End        time.Time
}

// SweepReport summarises one run of a periodic job.
type SweepReport struct {
	Job        string    `json:"job"`
	Examined   int       `json:"examined"`
	Affected   int       `json:"affected"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// BookingInput captures caller provided booking fields.
type BookingInput struct {
	ResourceKind   ResourceKind
	ResourceID     string
	Start          time.Time
	End            time.Time
	JobName        string
	JobNumber      string
	Description    string
	Location       string
	AssignedUserID string
}

// BookingPatch lists the fields an update overwrites. Nil fields are kept.
type BookingPatch struct {
	ResourceKind   *ResourceKind
	ResourceID     *string
	Start          *time.Time
	End            *time.Time
	JobName        *string
	JobNumber      *string
	Description    *string
	Location       *string
	AssignedUserID *string
	Status         *BookingStatus
}

// CreateBookingParams wraps the data required to create a booking.
type CreateBookingParams struct {
	Actor string
	Input BookingInput
}

// UpdateBookingParams wraps the data required to update a booking.
type UpdateBookingParams struct {
	Actor     string
	BookingID string
	Patch     BookingPatch
	// TrustedCaller skips conflict re-validation. Only internal callers that
	// have already checked the new window should set it.
	TrustedCaller bool
}

// ListBookingsParams narrows booking listings. Zero values do not filter.
type ListBookingsParams struct {
	Statuses       []BookingStatus
	ResourceID     string
	AssignedUserID string
	From           *time.Time
	Until          *time.Time
}

// AddBookingResourceParams wraps the data required to attach a resource.
type AddBookingResourceParams struct {
	Actor          string
	BookingID      string
	ResourceID     string
	Quantity       int
	AssignedUserID string
}

// BookingQuery is the repository level booking filter.
type BookingQuery struct {
	Statuses       []BookingStatus
	ResourceID     string
	AssignedUserID string
	OverlapsFrom   *time.Time
	OverlapsUntil  *time.Time
	StartsFrom     *time.Time
	StartsBefore   *time.Time
	EndsFrom       *time.Time
}

// ResourceInput captures caller provided resource fields.
type ResourceInput struct {
	Kind                 ResourceKind
	Name                 string
	EquipmentType        string
	RequiresOperator     bool
	UsageHours           float64
	MaintenanceThreshold *float64
	LastMaintenance      *time.Time
	Email                string
	ManagerEmail         string
	Location             string
	Quantity             float64
	Unit                 string
	ReorderThreshold     float64
}

// CreateResourceParams wraps the data required to add a resource.
type CreateResourceParams struct {
	Actor string
	Input ResourceInput
}

// UpdateResourceParams wraps the data required to update a resource.
type UpdateResourceParams struct {
	Actor      string
	ResourceID string
	Input      ResourceInput
}

// TemplatePreview is a template rendered against sample values.
type TemplatePreview struct {
	TemplateID string `json:"template_id"`
	Subject    string `json:"subject"`
	Body       string `json:"body"`
	IsHTML     bool   `json:"is_html"`
}
