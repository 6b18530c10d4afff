package models

// DriverLocation represents a GPS location update from a driver
type DriverLocation struct {
	ID        int      `json:"id" db:"id"`
	DriverID  string   `json:"driver_id" db:"driver_id"`
	RouteID   *string  `json:"route_id,omitempty" db:"route_id"`
	Latitude  float64  `json:"latitude" db:"latitude"`
	Longitude float64  `json:"longitude" db:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty" db:"accuracy"` // GPS accuracy in meters
	Heading   *float64 `json:"heading,omitempty" db:"heading"`   // Direction of travel (0-360 degrees)
	Speed     *float64 `json:"speed,omitempty" db:"speed"`       // Speed in m/s
	Timestamp int64    `json:"timestamp" db:"timestamp"`         // Device-side capture timestamp
	CreatedAt int64    `json:"created_at" db:"created_at"`       // Server-side timestamp
}

// DriverStatus represents a driver's current tracking state and last known
// position
type DriverStatus struct {
	DriverID     string          `json:"driver_id"`
	Name         string          `json:"name"`
	RouteID      *string         `json:"route_id,omitempty"`
	Tracking     bool            `json:"tracking"`
	LastLocation *DriverLocation `json:"last_location,omitempty"`
}
