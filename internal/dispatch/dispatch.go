// Package dispatch is the client side of the dispatch backend: route reads,
// status transitions, stop checkins and location pushes. The backend owns all
// persisted route state; this process only holds it transiently.
package dispatch

import (
	"context"
	"errors"
	"time"

	"shuttleops-backend/internal/models"
)

// ErrNotFound is returned when the dispatch backend has no such route.
var ErrNotFound = errors.New("dispatch: route not found")

// ListFilter narrows a route listing. Zero values mean "no constraint".
type ListFilter struct {
	DriverID string
	From     *time.Time
	To       *time.Time
	Status   string
	Limit    int
}

// LocationPush is one throttled GPS sample relayed to the dispatch backend.
// Seq increases monotonically within a tracking session so the backend can
// drop samples that arrive after a newer one.
type LocationPush struct {
	RouteID    string    `json:"route_id"`
	DriverID   string    `json:"driver_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
	Seq        uint64    `json:"seq"`
}

// Facade is the set of dispatch backend operations this core consumes.
type Facade interface {
	ListRoutes(ctx context.Context, filter ListFilter) ([]models.Route, error)
	GetRoute(ctx context.Context, routeID string) (*models.Route, error)
	UpdateRouteStatus(ctx context.Context, routeID, status string) (*models.Route, error)
	CheckinStop(ctx context.Context, routeID, stopID string, skipped bool) error
	PushLocation(ctx context.Context, push LocationPush) error
	RecordRouteCompletion(ctx context.Context, routeID string) error
	ListShiftTemplates(ctx context.Context, driverID string) ([]models.ShiftTemplate, error)
}
