// Package schedule derives driver-facing route lifecycle state from stored
// dispatch records. Everything here is a pure function of its inputs and an
// explicit reference time; nothing reads the wall clock.
package schedule

import (
	"strings"
	"time"

	"shuttleops-backend/internal/models"
)

// Status is the effective lifecycle state derived at read time, as opposed to
// the coarser status persisted by the dispatch backend.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusUpcoming  Status = "UPCOMING"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

func toTime(ts *int64) *time.Time {
	if ts == nil || *ts == 0 {
		return nil
	}
	t := time.Unix(*ts, 0).UTC()
	return &t
}

// combineDateAndTime takes the calendar day from datePart and the clock time
// from timePart. With only one present, that one wins.
func combineDateAndTime(datePart, timePart *time.Time) *time.Time {
	if datePart == nil && timePart == nil {
		return nil
	}
	if datePart != nil && timePart == nil {
		return datePart
	}
	if datePart == nil {
		return timePart
	}
	combined := time.Date(
		datePart.Year(), datePart.Month(), datePart.Day(),
		timePart.Hour(), timePart.Minute(), timePart.Second(), timePart.Nanosecond(),
		datePart.Location(),
	)
	return &combined
}

// ResolveStartTime resolves a route's display start time from whichever of the
// legacy time fields is present: startedAt, then the route's own startTime,
// then the calendar date combined with the shift template start, then the
// template start alone, then the bare date.
func ResolveStartTime(r *models.Route) *time.Time {
	if r == nil {
		return nil
	}
	if t := toTime(r.StartedAt); t != nil {
		return t
	}
	if t := toTime(r.StartTime); t != nil {
		return t
	}
	var shiftStart *time.Time
	if r.Shift != nil {
		shiftStart = toTime(r.Shift.StartTime)
	}
	if t := combineDateAndTime(toTime(r.Date), shiftStart); t != nil {
		return t
	}
	return nil
}

// ResolveEndTime resolves a route's display end time: completedAt, then the
// route's own endTime, then date combined with the shift template end, then
// the template end alone.
func ResolveEndTime(r *models.Route) *time.Time {
	if r == nil {
		return nil
	}
	if t := toTime(r.CompletedAt); t != nil {
		return t
	}
	if t := toTime(r.EndTime); t != nil {
		return t
	}
	var shiftEnd *time.Time
	if r.Shift != nil {
		shiftEnd = toTime(r.Shift.EndTime)
	}
	if shiftEnd != nil {
		return combineDateAndTime(toTime(r.Date), shiftEnd)
	}
	return nil
}

func normalizedStatus(raw string) models.RouteStatus {
	return models.RouteStatus(strings.ToUpper(strings.TrimSpace(raw)))
}

// Derive maps a stored route plus a reference time to its effective status.
//
// Priority order: virtual occurrences are always UPCOMING; stored
// COMPLETED/CANCELLED are terminal regardless of time; stored ACTIVE (or a
// startedAt stamp, or now falling inside [start, end] when both exist) means
// ACTIVE; everything else is UPCOMING. A route whose time window has passed
// but was never explicitly completed stays UPCOMING; time alone never demotes
// a route to COMPLETED.
func Derive(r *models.Route, now time.Time) Status {
	if r == nil {
		return StatusUpcoming
	}
	if r.IsVirtual || IsVirtualID(r.ID) {
		return StatusUpcoming
	}

	switch normalizedStatus(r.Status) {
	case models.RouteStatusCompleted, models.RouteStatusInactive:
		return StatusCompleted
	case models.RouteStatusCancelled:
		return StatusCancelled
	case models.RouteStatusActive, models.RouteStatusInProgress:
		return StatusActive
	}
	if r.CompletedAt != nil {
		return StatusCompleted
	}
	if r.StartedAt != nil {
		return StatusActive
	}

	start := ResolveStartTime(r)
	end := ResolveEndTime(r)
	if start != nil && end != nil && !now.Before(*start) && !now.After(*end) {
		return StatusActive
	}
	return StatusUpcoming
}

// DeriveForNavigation is the navigation-surface override: a cancelled route
// must never expose tracking controls, but is presented as UPCOMING rather
// than an error state. The stored record is untouched.
func DeriveForNavigation(r *models.Route, now time.Time) Status {
	status := Derive(r, now)
	if status == StatusCancelled {
		return StatusUpcoming
	}
	return status
}
