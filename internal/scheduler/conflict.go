// Package scheduler holds the pure interval logic used to keep resource
// bookings from overlapping.
package scheduler

import (
	"errors"
	"sort"
	"time"
)

// ErrInvertedWindow is returned when a window ends before it starts.
var ErrInvertedWindow = errors.New("scheduler: window end precedes start")

// Window is a half-open time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate rejects inverted windows. Zero-length windows are allowed.
func (w Window) Validate() error {
	if w.End.Before(w.Start) {
		return ErrInvertedWindow
	}
	return nil
}

// Overlaps reports whether the two half-open windows share any instant.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// Booking is the minimal view of a reservation the detector needs.
type Booking struct {
	ID         string
	ResourceID string
	// AssigneeID is the person working the booking, empty when nobody is assigned.
	AssigneeID string
	Window     Window
	// Inactive bookings (cancelled) never conflict.
	Inactive bool
}

// ConflictType describes why two bookings collide.
type ConflictType string

const (
	// ConflictTypeResource indicates the same physical resource is double-booked.
	ConflictTypeResource ConflictType = "resource"
	// ConflictTypeAssignee indicates the assigned person is double-booked.
	ConflictTypeAssignee ConflictType = "assignee"
)

// Conflict details an overlapping booking that callers can present to users.
type Conflict struct {
	WithBookingID string
	Type          ConflictType
	ResourceID    string
	AssigneeID    string
	Window        Window
}

// FindConflicts returns the active bookings in existing that overlap window.
// Callers pass bookings already narrowed to one resource or one assignee.
func FindConflicts(existing []Booking, window Window) ([]Booking, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	var overlapping []Booking
	for _, booking := range existing {
		if booking.Inactive {
			continue
		}
		if booking.Window.Overlaps(window) {
			overlapping = append(overlapping, booking)
		}
	}
	sortBookings(overlapping)
	return overlapping, nil
}

// DetectConflicts checks candidate against existing bookings per resource
// and, when the candidate has an assignee, across all of that person's
// bookings. The candidate itself (same ID) is ignored so updates can be
// re-validated.
func DetectConflicts(existing []Booking, candidate Booking) ([]Conflict, error) {
	if err := candidate.Window.Validate(); err != nil {
		return nil, err
	}

	others := make([]Booking, 0, len(existing))
	for _, booking := range existing {
		if candidate.ID != "" && booking.ID == candidate.ID {
			continue
		}
		others = append(others, booking)
	}

	var conflicts []Conflict
	if candidate.ResourceID != "" {
		sameResource := filter(others, func(b Booking) bool { return b.ResourceID == candidate.ResourceID })
		overlapping, _ := FindConflicts(sameResource, candidate.Window)
		for _, booking := range overlapping {
			conflicts = append(conflicts, Conflict{
				WithBookingID: booking.ID,
				Type:          ConflictTypeResource,
				ResourceID:    booking.ResourceID,
				AssigneeID:    booking.AssigneeID,
				Window:        booking.Window,
			})
		}
	}

	if candidate.AssigneeID != "" {
		sameAssignee := filter(others, func(b Booking) bool { return b.AssigneeID == candidate.AssigneeID })
		overlapping, _ := FindConflicts(sameAssignee, candidate.Window)
		for _, booking := range overlapping {
			conflicts = append(conflicts, Conflict{
				WithBookingID: booking.ID,
				Type:          ConflictTypeAssignee,
				ResourceID:    booking.ResourceID,
				AssigneeID:    booking.AssigneeID,
				Window:        booking.Window,
			})
		}
	}

	return conflicts, nil
}

func filter(bookings []Booking, keep func(Booking) bool) []Booking {
	var out []Booking
	for _, booking := range bookings {
		if keep(booking) {
			out = append(out, booking)
		}
	}
	return out
}

func sortBookings(bookings []Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		if !bookings[i].Window.Start.Equal(bookings[j].Window.Start) {
			return bookings[i].Window.Start.Before(bookings[j].Window.Start)
		}
		return bookings[i].ID < bookings[j].ID
	})
}
