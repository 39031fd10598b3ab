package notify

import "strings"

// Default addresses used when no better contact is known.
const (
	DefaultTownEmail    = "default.town@example.com"
	DefaultManagerEmail = "default.manager@potelco.com"
	// CatchAllTown names the town whose contact receives mail for unknown locations.
	CatchAllTown = "TBD"
)

// TownDirectory maps a town name to its contact address.
type TownDirectory map[string]string

// NewTownDirectory indexes contacts by name.
func NewTownDirectory(entries map[string]string) TownDirectory {
	dir := make(TownDirectory, len(entries))
	for name, email := range entries {
		if strings.TrimSpace(email) != "" {
			dir[strings.TrimSpace(name)] = strings.TrimSpace(email)
		}
	}
	return dir
}

// LocationContact returns the contact for location, falling back to the
// catch-all town and then to DefaultTownEmail.
func (d TownDirectory) LocationContact(location string) string {
	if email, ok := d[strings.TrimSpace(location)]; ok && location != "" {
		return email
	}
	if email, ok := d[CatchAllTown]; ok {
		return email
	}
	return DefaultTownEmail
}

// ManagerContact returns manager or DefaultManagerEmail when it is empty.
func ManagerContact(manager string) string {
	return fallback(strings.TrimSpace(manager), DefaultManagerEmail)
}

// CustomContact returns value or DefaultTownEmail when it is empty.
func CustomContact(value string) string {
	return fallback(strings.TrimSpace(value), DefaultTownEmail)
}
