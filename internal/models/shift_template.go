package models

// ShiftTemplate is a recurring shift pattern. It is only used to synthesize
// virtual route occurrences for calendar dates that have no concrete route yet.
type ShiftTemplate struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	StartTime *int64 `json:"start_time,omitempty" db:"start_time"` // Unix timestamp, only the time-of-day matters
	EndTime   *int64 `json:"end_time,omitempty" db:"end_time"`
	// Weekdays the template recurs on (0=Sunday .. 6=Saturday).
	// Empty means every day.
	Weekdays  []int `json:"weekdays,omitempty"`
	CreatedAt int64 `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt int64 `json:"updated_at,omitempty" db:"updated_at"`
}

// RecursOn reports whether the template has an occurrence on the given weekday.
func (t *ShiftTemplate) RecursOn(weekday int) bool {
	if len(t.Weekdays) == 0 {
		return true
	}
	for _, d := range t.Weekdays {
		if d == weekday {
			return true
		}
	}
	return false
}
