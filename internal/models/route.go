package models

// RouteStatus is the coarse lifecycle status stored by the dispatch backend.
// The driver-facing effective status is derived at read time (internal/schedule).
type RouteStatus string

const (
	RouteStatusScheduled  RouteStatus = "SCHEDULED"
	RouteStatusActive     RouteStatus = "ACTIVE"
	RouteStatusInProgress RouteStatus = "IN_PROGRESS" // legacy alias for ACTIVE
	RouteStatusCompleted  RouteStatus = "COMPLETED"
	RouteStatusInactive   RouteStatus = "INACTIVE" // legacy alias for COMPLETED
	RouteStatusCancelled  RouteStatus = "CANCELLED"
)

// Route represents a shuttle route assignment as served by the dispatch backend.
// Virtual routes are synthesized occurrences of a shift template that have no
// concrete record yet; they carry is_virtual=true, an empty stop list, and are
// never navigable.
type Route struct {
	ID              string  `json:"id" db:"id"`
	Name            string  `json:"name" db:"name"`
	Status          string  `json:"status" db:"status"`
	Date            *int64  `json:"date,omitempty" db:"date"`                 // Unix timestamp (calendar day anchor)
	StartTime       *int64  `json:"start_time,omitempty" db:"start_time"`     // Unix timestamp
	EndTime         *int64  `json:"end_time,omitempty" db:"end_time"`         // Unix timestamp
	StartedAt       *int64  `json:"started_at,omitempty" db:"started_at"`     // Set when the driver starts the route
	CompletedAt     *int64  `json:"completed_at,omitempty" db:"completed_at"` // Set when the driver completes it
	ShiftID         *string `json:"shift_id,omitempty" db:"shift_id"`
	VehicleID       *string `json:"vehicle_id,omitempty" db:"vehicle_id"`
	DriverID        *string `json:"driver_id,omitempty" db:"driver_id"`
	IsVirtual       bool    `json:"is_virtual" db:"is_virtual"`
	OriginalRouteID *string `json:"original_route_id,omitempty" db:"original_route_id"` // Template id, set only on virtual routes

	Shift *ShiftTemplate `json:"shift,omitempty"`
	Stops []Stop         `json:"stops,omitempty"`

	CreatedAt int64 `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt int64 `json:"updated_at,omitempty" db:"updated_at"`
}

// CompletedStops counts stops that reached a terminal state.
func (r *Route) CompletedStops() int {
	n := 0
	for i := range r.Stops {
		if r.Stops[i].IsTerminal() {
			n++
		}
	}
	return n
}

// CompletionPercentage returns stop progress as 0.0-1.0
func (r *Route) CompletionPercentage() float64 {
	if len(r.Stops) == 0 {
		return 0.0
	}
	return float64(r.CompletedStops()) / float64(len(r.Stops))
}

// Stop represents a single pickup/drop-off point within a route.
// Once completed_at is set or skipped is true the stop is terminal;
// the client never transitions it again.
type Stop struct {
	ID      string `json:"id" db:"id"`
	RouteID string `json:"route_id,omitempty" db:"route_id"`

	// Legacy order fields. Several generations of the dispatch backend used
	// different column names; the first non-nil one wins, else array index.
	// Resolution lives in schedule.ResolveStopOrder.
	RouteOrder *int `json:"route_order,omitempty" db:"route_order"`
	Sequence   *int `json:"sequence,omitempty" db:"sequence"`
	Order      *int `json:"order,omitempty" db:"stop_order"`

	Address   *string `json:"address,omitempty" db:"address"`
	Latitude  float64 `json:"latitude" db:"latitude"`
	Longitude float64 `json:"longitude" db:"longitude"`

	EmployeeID   *string `json:"employee_id,omitempty" db:"employee_id"`
	EmployeeName *string `json:"employee_name,omitempty" db:"employee_name"`

	CompletedAt          *int64  `json:"completed_at,omitempty" db:"completed_at"` // Unix timestamp
	Skipped              bool    `json:"skipped" db:"skipped"`
	EstimatedArrivalTime *int64  `json:"estimated_arrival_time,omitempty" db:"estimated_arrival_time"`
	Notes                *string `json:"notes,omitempty" db:"notes"`
}

// IsTerminal returns true once the stop was completed or skipped.
func (s *Stop) IsTerminal() bool {
	return s.CompletedAt != nil || s.Skipped
}

// UpdateRouteStatusRequest is the body for POST /api/driver/routes/:id/start|complete
// and the payload sent to the dispatch facade status endpoint.
type UpdateRouteStatusRequest struct {
	Status string `json:"status"`
}

// CheckinStopRequest is the body for the stop checkin endpoint.
type CheckinStopRequest struct {
	Skipped bool `json:"skipped,omitempty"`
}
