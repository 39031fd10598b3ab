// Package conditions contains the stateless predicates that decide when a
// booking must move and when a resource needs attention.
package conditions

const (
	// MaxWindSpeed is the highest tolerated wind speed in m/s.
	MaxWindSpeed = 15.0
	// MaxPrecipitation is the highest tolerated precipitation in mm.
	MaxPrecipitation = 5.0
)

// Weather is an observation for one location and date.
type Weather struct {
	Location      string
	Date          string
	Temperature   float64
	WindSpeed     float64
	Precipitation float64
}

// Equipment carries the usage counters relevant to maintenance.
type Equipment struct {
	UsageHours float64
	// MaintenanceThreshold is nil when the item has no maintenance schedule.
	MaintenanceThreshold *float64
}

// Consumable carries stock levels relevant to reordering.
type Consumable struct {
	Quantity         float64
	ReorderThreshold float64
}

// NeedsRerouting reports whether a booking covered by obs must be moved.
// found is false when no observation exists, which never reroutes.
func NeedsRerouting(obs Weather, found bool) bool {
	if !found {
		return false
	}
	return obs.WindSpeed > MaxWindSpeed || obs.Precipitation > MaxPrecipitation
}

// MaintenanceDue reports whether usage has reached a configured threshold.
// A missing or zero threshold never triggers.
func MaintenanceDue(eq Equipment) bool {
	if eq.MaintenanceThreshold == nil || *eq.MaintenanceThreshold == 0 {
		return false
	}
	return eq.UsageHours >= *eq.MaintenanceThreshold
}

// ReorderDue reports whether stock is at or below the reorder threshold.
func ReorderDue(c Consumable) bool {
	return c.Quantity <= c.ReorderThreshold
}
