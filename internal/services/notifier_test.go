package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttleops-backend/internal/models"
)

type fakeHub struct {
	roleMsgs  map[string][]interface{}
	userMsgs  map[string][]interface{}
	connected map[string]bool
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		roleMsgs:  make(map[string][]interface{}),
		userMsgs:  make(map[string][]interface{}),
		connected: make(map[string]bool),
	}
}

func (h *fakeHub) BroadcastToRole(role string, data interface{}) {
	h.roleMsgs[role] = append(h.roleMsgs[role], data)
}

func (h *fakeHub) BroadcastToUser(userID string, data interface{}) {
	h.userMsgs[userID] = append(h.userMsgs[userID], data)
}

func (h *fakeHub) IsUserConnected(userID string) bool {
	return h.connected[userID]
}

func testRoute(driverID string) *models.Route {
	route := &models.Route{
		ID:     "r1",
		Name:   "Morning Shuttle",
		Status: "ACTIVE",
		Stops: []models.Stop{
			{ID: "s1", RouteID: "r1"},
			{ID: "s2", RouteID: "r1"},
		},
	}
	if driverID != "" {
		route.DriverID = &driverID
	}
	return route
}

func TestNotifyRouteStarted_BroadcastsToDispatchersAndDriver(t *testing.T) {
	hub := newFakeHub()
	n := NewRouteNotifier(nil, nil, hub)

	n.NotifyRouteStarted(context.Background(), testRoute("driver-1"))

	require.Len(t, hub.roleMsgs["dispatcher"], 1)
	msg, ok := hub.roleMsgs["dispatcher"][0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "route_status_update", msg["type"])
	assert.Equal(t, "r1", msg["route_id"])
	assert.Equal(t, "ACTIVE", msg["status"])
	assert.Equal(t, 2, msg["total_stops"])

	require.Len(t, hub.userMsgs["driver-1"], 1)
	assert.Equal(t, hub.roleMsgs["dispatcher"][0], hub.userMsgs["driver-1"][0])
}

func TestNotifyRouteStarted_UnassignedRouteSkipsUserBroadcast(t *testing.T) {
	hub := newFakeHub()
	n := NewRouteNotifier(nil, nil, hub)

	n.NotifyRouteStarted(context.Background(), testRoute(""))

	assert.Len(t, hub.roleMsgs["dispatcher"], 1)
	assert.Empty(t, hub.userMsgs)
}

func TestNotifyRouteCompleted_NilRouteAndNilDepsAreNoOps(t *testing.T) {
	hub := newFakeHub()
	n := NewRouteNotifier(nil, nil, hub)

	n.NotifyRouteCompleted(context.Background(), nil)
	assert.Empty(t, hub.roleMsgs)

	// Connected driver: status frame only, no push path touched.
	hub.connected["driver-1"] = true
	n.NotifyRouteCompleted(context.Background(), testRoute("driver-1"))
	assert.Len(t, hub.roleMsgs["dispatcher"], 1)
	assert.Len(t, hub.userMsgs["driver-1"], 1)
}
