package persistence

import "time"

// Booking is a reservation row. Nullable columns are pointers.
type Booking struct {
	ID             string
	ResourceKind   string
	ResourceID     string
	Start          time.Time
	End            time.Time
	JobName        string
	JobNumber      *string
	Description    *string
	Location       *string
	AssignedUserID *string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// BookingResource attaches a secondary resource to a booking.
type BookingResource struct {
	ID             string
	BookingID      string
	ResourceKind   string
	ResourceID     string
	Quantity       int
	AssignedUserID *string
	CreatedAt      time.Time
}

// Resource stores equipment, personnel and consumables in one table keyed by kind.
type Resource struct {
	ID   string
	Kind string
	Name string

	EquipmentType        *string
	RequiresOperator     bool
	UsageHours           float64
	MaintenanceThreshold *float64
	LastMaintenance      *time.Time

	Email        *string
	ManagerEmail *string

	Location         *string
	Quantity         float64
	Unit             *string
	ReorderThreshold float64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Town maps a job location to its contact address.
type Town struct {
	Name  string
	Email string
}

// Template is a stored notification template. CC and BCC are stored comma separated.
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
	CreatedAt      time.Time
}

// Rule is an automation rule row.
type Rule struct {
	ID             string
	TemplateID     string
	TriggerType    string
	TriggerValue   string
	RecipientType  string
	RecipientValue *string
	Active         bool
	CreatedAt      time.Time
}

// WeatherObservation is one ingested weather reading. Date is YYYY-MM-DD.
type WeatherObservation struct {
	ID            int64
	Location      string
	Date          string
	Temperature   float64
	WindSpeed     float64
	Precipitation float64
	ObservedAt    time.Time
}

// DeliveryRecord is an append-only log of one delivery attempt.
type DeliveryRecord struct {
	ID          int64
	Kind        string
	RuleID      *string
	TemplateID  *string
	BookingID   *string
	TriggerDate *string
	Recipient   string
	Subject     string
	Channel     string
	Status      string
	Error       *string
	SentAt      time.Time
}

// AuditRecord is an append-only audit entry. Details holds a JSON object.
type AuditRecord struct {
	ID          int64
	Action      string
	Actor       string
	EntityID    *string
	EntityLabel *string
	Details     string
	CreatedAt   time.Time
}
