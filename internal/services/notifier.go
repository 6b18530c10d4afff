package services

import (
	"context"
	"log"
	"time"

	"github.com/jmoiron/sqlx"

	"shuttleops-backend/internal/database"
	"shuttleops-backend/internal/models"
)

// Broadcaster pushes messages to connected websocket clients. The hub
// satisfies this.
type Broadcaster interface {
	BroadcastToRole(role string, data interface{})
	BroadcastToUser(userID string, data interface{})
	IsUserConnected(userID string) bool
}

// RouteNotifier delivers route lifecycle updates. Connected dispatchers and
// the owning driver's socket get a `route_status_update` frame; a driver with
// no live socket gets an FCM push to their registered devices instead. Every
// method is best-effort: delivery failures are logged and never surfaced to
// the route transition that triggered them.
type RouteNotifier struct {
	db  *sqlx.DB
	fcm *FCMService
	hub Broadcaster
}

func NewRouteNotifier(db *sqlx.DB, fcm *FCMService, hub Broadcaster) *RouteNotifier {
	return &RouteNotifier{db: db, fcm: fcm, hub: hub}
}

func (n *RouteNotifier) NotifyRouteStarted(ctx context.Context, route *models.Route) {
	if route == nil {
		return
	}
	n.broadcastStatus(route)
	if n.fcm == nil || n.driverIsConnected(route) {
		return
	}
	if err := n.fcm.SendRouteStartedNotification(n.tokensFor(route), route.ID, route.Name, len(route.Stops)); err != nil {
		log.Printf("⚠️ [FCM] Route started push failed: %v", err)
	}
}

func (n *RouteNotifier) NotifyRouteCompleted(ctx context.Context, route *models.Route) {
	if route == nil {
		return
	}
	n.broadcastStatus(route)
	n.recordCompletion(route)
	if n.fcm == nil || n.driverIsConnected(route) {
		return
	}
	if err := n.fcm.SendRouteCompletedNotification(n.tokensFor(route), route.ID, route.Name, route.CompletedStops(), len(route.Stops)); err != nil {
		log.Printf("⚠️ [FCM] Route completed push failed: %v", err)
	}
}

func (n *RouteNotifier) broadcastStatus(route *models.Route) {
	if n.hub == nil {
		return
	}
	msg := map[string]interface{}{
		"type":            "route_status_update",
		"route_id":        route.ID,
		"status":          route.Status,
		"completed_stops": route.CompletedStops(),
		"total_stops":     len(route.Stops),
	}
	n.hub.BroadcastToRole("dispatcher", msg)
	if route.DriverID != nil {
		// The driver's other devices follow along too.
		n.hub.BroadcastToUser(*route.DriverID, msg)
	}
}

// recordCompletion mirrors the completion into the local reporting table so
// dashboards survive a facade outage.
func (n *RouteNotifier) recordCompletion(route *models.Route) {
	if n.db == nil {
		return
	}
	driverID := ""
	if route.DriverID != nil {
		driverID = *route.DriverID
	}
	completedAt := time.Now().Unix()
	if route.CompletedAt != nil {
		completedAt = *route.CompletedAt
	}
	if err := database.RecordRouteCompletionLocal(n.db, route.ID, driverID, completedAt, route.CompletedStops(), len(route.Stops)); err != nil {
		log.Printf("⚠️ [ROUTE] Failed to mirror completion for route %s: %v", route.ID, err)
	}
}

// driverIsConnected reports whether the driver already saw the status change
// over a live socket, in which case the FCM push is redundant.
func (n *RouteNotifier) driverIsConnected(route *models.Route) bool {
	return n.hub != nil && route.DriverID != nil && n.hub.IsUserConnected(*route.DriverID)
}

func (n *RouteNotifier) tokensFor(route *models.Route) []string {
	if n == nil || n.fcm == nil || n.db == nil || route.DriverID == nil {
		return nil
	}
	tokens, err := database.GetFCMTokens(n.db, *route.DriverID)
	if err != nil {
		log.Printf("⚠️ [FCM] Could not load tokens for driver %s: %v", *route.DriverID, err)
		return nil
	}
	return tokens
}
