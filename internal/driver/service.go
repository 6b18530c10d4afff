package driver

import (
	"context"
	"fmt"
	"log"
	"time"

	"shuttleops-backend/internal/dispatch"
	"shuttleops-backend/internal/metrics"
	"shuttleops-backend/internal/models"
	"shuttleops-backend/internal/schedule"
	"shuttleops-backend/internal/tracking"
)

// Notifier receives route lifecycle events for push delivery. Implementations
// must tolerate being called with routes that have no assigned driver token.
type Notifier interface {
	NotifyRouteStarted(ctx context.Context, route *models.Route)
	NotifyRouteCompleted(ctx context.Context, route *models.Route)
}

// Service coordinates route transitions and stop check-ins for a driver. All
// state lives behind the dispatch facade; the service never caches routes, so
// every mutation is followed by a full refetch and the caller always gets the
// dispatcher's view back.
type Service struct {
	facade   dispatch.Facade
	sessions *tracking.Manager
	notifier Notifier
	metrics  *metrics.Collector
	now      func() time.Time
}

// NewService builds a Service. notifier and collector may be nil.
func NewService(facade dispatch.Facade, sessions *tracking.Manager, notifier Notifier, collector *metrics.Collector) *Service {
	return &Service{
		facade:   facade,
		sessions: sessions,
		notifier: notifier,
		metrics:  collector,
		now:      time.Now,
	}
}

// Dashboard is the assembled view a driver's home screen renders from.
type Dashboard struct {
	Buckets      schedule.Buckets `json:"routes"`
	ActiveRoute  *models.Route    `json:"activeRoute,omitempty"`
	Progress     *Progress        `json:"progress,omitempty"`
	NextUpcoming *models.Route    `json:"nextUpcoming,omitempty"`
}

// Progress summarizes stop completion for the active route.
type Progress struct {
	CompletedStops int     `json:"completed_stops"`
	TotalStops     int     `json:"total_stops"`
	Percentage     float64 `json:"percentage"`
}

// Dashboard groups the driver's routes, trims the upcoming and completed
// buckets to their display windows and picks the next route to surface.
func (s *Service) Dashboard(ctx context.Context, driverID string) (*Dashboard, error) {
	routes, err := s.facade.ListRoutes(ctx, dispatch.ListFilter{DriverID: driverID})
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}

	now := s.now()
	buckets := schedule.Group(routes, now)

	var active *models.Route
	if len(buckets.Active) > 0 {
		active = &buckets.Active[0]
	}

	win := schedule.DefaultWindow()
	buckets.Upcoming = schedule.UpcomingWindow(buckets.Upcoming, now, win)
	buckets.Completed = schedule.RecentCompletedWindow(buckets.Completed, now, win)

	activeID := ""
	if active != nil {
		activeID = active.ID
	}
	next := schedule.NextUpcoming(buckets.Upcoming, now, activeID)

	var progress *Progress
	if active != nil {
		progress = &Progress{
			CompletedStops: active.CompletedStops(),
			TotalStops:     len(active.Stops),
			Percentage:     active.CompletionPercentage() * 100,
		}
	}

	return &Dashboard{Buckets: buckets, ActiveRoute: active, Progress: progress, NextUpcoming: next}, nil
}

// Route loads a single route. A virtual occurrence id resolves to its
// underlying template route first, so a schedule entry that has not been
// materialized yet still opens its template's details.
func (s *Service) Route(ctx context.Context, routeID string) (*models.Route, error) {
	route, err := s.facade.GetRoute(ctx, schedule.DevirtualizeID(routeID))
	if err != nil {
		return nil, fmt.Errorf("failed to load route: %w", err)
	}
	return route, nil
}

// Routes returns the driver's full route list grouped by effective status,
// with no display windows applied.
func (s *Service) Routes(ctx context.Context, driverID string) (schedule.Buckets, error) {
	routes, err := s.facade.ListRoutes(ctx, dispatch.ListFilter{DriverID: driverID})
	if err != nil {
		return schedule.Buckets{}, fmt.Errorf("failed to list routes: %w", err)
	}
	return schedule.Group(routes, s.now()), nil
}

// Schedule returns the driver's concrete routes for the window plus virtual
// occurrences synthesized from recurring shift templates on days where no
// concrete route exists for the template.
func (s *Service) Schedule(ctx context.Context, driverID string, from, to time.Time) ([]models.Route, error) {
	routes, err := s.facade.ListRoutes(ctx, dispatch.ListFilter{DriverID: driverID, From: &from, To: &to})
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}

	templates, err := s.facade.ListShiftTemplates(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shift templates: %w", err)
	}

	virtual := schedule.SynthesizeOccurrences(templates, routes, from, to)
	combined := append(append([]models.Route{}, routes...), virtual...)
	return schedule.SortByStartTime(combined), nil
}

// StartRoute transitions the route to ACTIVE and opens a tracking session for
// the driver. Virtual occurrences are placeholders and can never be started.
func (s *Service) StartRoute(ctx context.Context, driverID, routeID string, gpsAvailable bool) (*models.Route, error) {
	if schedule.IsVirtualID(routeID) {
		return nil, fmt.Errorf("route %s is a scheduled placeholder and cannot be started", routeID)
	}

	route, err := s.facade.UpdateRouteStatus(ctx, routeID, string(models.RouteStatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to start route: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RoutesStarted.Inc()
	}
	log.Printf("🚐 [ROUTE] Driver %s started route %s", driverID, routeID)

	if s.sessions != nil {
		if _, err := s.sessions.Start(ctx, driverID, routeID, gpsAvailable); err != nil {
			// Tracking is best-effort; the route is already running.
			log.Printf("⚠️ [ROUTE] Tracking unavailable for driver %s: %v", driverID, err)
		}
	}
	if s.notifier != nil {
		s.notifier.NotifyRouteStarted(ctx, route)
	}
	return route, nil
}

// CheckinStop marks a stop completed (or skipped) and refetches the whole
// route. The returned route is the dispatcher's post-checkin state; nothing
// is patched locally, so a concurrent update elsewhere is never masked.
func (s *Service) CheckinStop(ctx context.Context, driverID, routeID, stopID string, skipped bool) (*models.Route, error) {
	if schedule.IsVirtualID(routeID) {
		return nil, fmt.Errorf("route %s is a scheduled placeholder and has no stops", routeID)
	}

	if err := s.facade.CheckinStop(ctx, routeID, stopID, skipped); err != nil {
		return nil, fmt.Errorf("failed to check in stop: %w", err)
	}
	if s.metrics != nil {
		s.metrics.StopCheckins.Inc()
	}
	log.Printf("📍 [ROUTE] Driver %s checked in stop %s on route %s (skipped=%t)", driverID, stopID, routeID, skipped)

	route, err := s.facade.GetRoute(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh route after checkin: %w", err)
	}
	return route, nil
}

// CompleteRoute transitions the route to COMPLETED, records the completion
// for reporting and tears down the driver's tracking session. The completion
// record is best-effort: a failure there is logged and does not undo the
// status change.
func (s *Service) CompleteRoute(ctx context.Context, driverID, routeID string) (*models.Route, error) {
	if schedule.IsVirtualID(routeID) {
		return nil, fmt.Errorf("route %s is a scheduled placeholder and cannot be completed", routeID)
	}

	route, err := s.facade.UpdateRouteStatus(ctx, routeID, string(models.RouteStatusCompleted))
	if err != nil {
		return nil, fmt.Errorf("failed to complete route: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RoutesCompleted.Inc()
	}

	if err := s.facade.RecordRouteCompletion(ctx, routeID); err != nil {
		log.Printf("⚠️ [ROUTE] Failed to record completion for route %s: %v", routeID, err)
	}

	if s.sessions != nil {
		s.sessions.Stop(driverID)
	}
	log.Printf("✅ [ROUTE] Driver %s completed route %s", driverID, routeID)

	if s.notifier != nil {
		s.notifier.NotifyRouteCompleted(ctx, route)
	}
	return route, nil
}
