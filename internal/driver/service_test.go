package driver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttleops-backend/internal/dispatch"
	"shuttleops-backend/internal/models"
	"shuttleops-backend/internal/schedule"
	"shuttleops-backend/internal/tracking"
)

const testDriverID = "driver-1"

func seedRoute(backend *dispatch.Memory, id, status string, start, end time.Time) models.Route {
	startUnix := start.Unix()
	endUnix := end.Unix()
	driverID := testDriverID

	stops := []models.Stop{
		{ID: id + "-stop-1", RouteID: id},
		{ID: id + "-stop-2", RouteID: id},
	}
	for i := range stops {
		seq := i + 1
		stops[i].Sequence = &seq
	}

	route := models.Route{
		ID:        id,
		Name:      "Route " + id,
		Status:    status,
		StartTime: &startUnix,
		EndTime:   &endUnix,
		DriverID:  &driverID,
		Stops:     stops,
	}
	backend.SeedRoute(route)
	return route
}

func newTestService(backend *dispatch.Memory) (*Service, *tracking.Manager) {
	tracker := tracking.NewManager(backend, nil, nil)
	return NewService(backend, tracker, nil, nil), tracker
}

func TestCheckinStop_RefetchesWholeRoute(t *testing.T) {
	backend := dispatch.NewMemory()
	now := time.Now()
	seedRoute(backend, "r1", "ACTIVE", now.Add(-time.Hour), now.Add(time.Hour))
	svc, _ := newTestService(backend)

	route, err := svc.CheckinStop(context.Background(), testDriverID, "r1", "r1-stop-1", false)
	require.NoError(t, err)
	require.NotNil(t, route)

	// The returned route is the backend's post-checkin state, stops included.
	require.Len(t, route.Stops, 2)
	assert.NotNil(t, route.Stops[0].CompletedAt)
	assert.Nil(t, route.Stops[1].CompletedAt)
	assert.Equal(t, 1, route.CompletedStops())
}

func TestCheckinStop_IdempotentNoRegression(t *testing.T) {
	backend := dispatch.NewMemory()
	now := time.Now()
	seedRoute(backend, "r1", "ACTIVE", now.Add(-time.Hour), now.Add(time.Hour))
	svc, _ := newTestService(backend)

	first, err := svc.CheckinStop(context.Background(), testDriverID, "r1", "r1-stop-1", false)
	require.NoError(t, err)
	completedAt := *first.Stops[0].CompletedAt

	second, err := svc.CheckinStop(context.Background(), testDriverID, "r1", "r1-stop-1", false)
	require.NoError(t, err)
	require.NotNil(t, second.Stops[0].CompletedAt)
	assert.Equal(t, completedAt, *second.Stops[0].CompletedAt, "completed_at must not move on re-checkin")

	// A skip on an already-completed stop is also a no-op.
	third, err := svc.CheckinStop(context.Background(), testDriverID, "r1", "r1-stop-1", true)
	require.NoError(t, err)
	assert.False(t, third.Stops[0].Skipped)
	assert.Equal(t, completedAt, *third.Stops[0].CompletedAt)
}

func TestCheckinStop_SkipIsTerminal(t *testing.T) {
	backend := dispatch.NewMemory()
	now := time.Now()
	seedRoute(backend, "r1", "ACTIVE", now.Add(-time.Hour), now.Add(time.Hour))
	svc, _ := newTestService(backend)

	route, err := svc.CheckinStop(context.Background(), testDriverID, "r1", "r1-stop-2", true)
	require.NoError(t, err)
	assert.True(t, route.Stops[1].Skipped)
	assert.Nil(t, route.Stops[1].CompletedAt)
}

func TestCheckinStop_UnknownRoute(t *testing.T) {
	backend := dispatch.NewMemory()
	svc, _ := newTestService(backend)

	_, err := svc.CheckinStop(context.Background(), testDriverID, "nope", "stop", false)
	assert.ErrorIs(t, err, dispatch.ErrNotFound)
}

func TestStartRoute_RejectsVirtualID(t *testing.T) {
	backend := dispatch.NewMemory()
	svc, tracker := newTestService(backend)

	virtualID := schedule.VirtualID("tpl-1", time.Now(), 0)
	_, err := svc.StartRoute(context.Background(), testDriverID, virtualID, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "placeholder")
	assert.Equal(t, 0, tracker.Count(), "no session opened for a placeholder")
}

func TestStartRoute_ActivatesAndOpensSession(t *testing.T) {
	backend := dispatch.NewMemory()
	now := time.Now()
	seedRoute(backend, "r1", "SCHEDULED", now, now.Add(2*time.Hour))
	svc, tracker := newTestService(backend)

	route, err := svc.StartRoute(context.Background(), testDriverID, "r1", true)
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", route.Status)
	assert.NotNil(t, route.StartedAt)
	assert.Equal(t, 1, tracker.Count())
	require.NotNil(t, tracker.Session(testDriverID))
	assert.Equal(t, "r1", tracker.Session(testDriverID).RouteID())

	tracker.Stop(testDriverID)
}

func TestStartRoute_TrackingFailureDoesNotBlockRoute(t *testing.T) {
	backend := dispatch.NewMemory()
	now := time.Now()
	seedRoute(backend, "r1", "SCHEDULED", now, now.Add(2*time.Hour))
	svc, tracker := newTestService(backend)

	// Device reports no GPS: the route still starts, just untracked.
	route, err := svc.StartRoute(context.Background(), testDriverID, "r1", false)
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", route.Status)
	assert.Equal(t, 0, tracker.Count())
}

func TestCompleteRoute_TearsDownSession(t *testing.T) {
	backend := dispatch.NewMemory()
	now := time.Now()
	seedRoute(backend, "r1", "SCHEDULED", now, now.Add(2*time.Hour))
	svc, tracker := newTestService(backend)

	_, err := svc.StartRoute(context.Background(), testDriverID, "r1", true)
	require.NoError(t, err)
	require.Equal(t, 1, tracker.Count())

	route, err := svc.CompleteRoute(context.Background(), testDriverID, "r1")
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", route.Status)
	assert.NotNil(t, route.CompletedAt)
	assert.Equal(t, 0, tracker.Count(), "session torn down on completion")
}

// failingCompletion fails only the completion report, leaving the status
// update intact.
type failingCompletion struct {
	dispatch.Facade
}

func (f failingCompletion) RecordRouteCompletion(ctx context.Context, routeID string) error {
	return assert.AnError
}

func TestCompleteRoute_CompletionRecordIsBestEffort(t *testing.T) {
	backend := dispatch.NewMemory()
	now := time.Now()
	seedRoute(backend, "r1", "ACTIVE", now.Add(-time.Hour), now.Add(time.Hour))

	tracker := tracking.NewManager(backend, nil, nil)
	svc := NewService(failingCompletion{Facade: backend}, tracker, nil, nil)

	route, err := svc.CompleteRoute(context.Background(), testDriverID, "r1")
	require.NoError(t, err, "a failed completion report must not fail the transition")
	assert.Equal(t, "COMPLETED", route.Status)
}

func TestCompleteRoute_RejectsVirtualID(t *testing.T) {
	backend := dispatch.NewMemory()
	svc, _ := newTestService(backend)

	virtualID := schedule.VirtualID("tpl-1", time.Now(), 0)
	_, err := svc.CompleteRoute(context.Background(), testDriverID, virtualID)
	assert.Error(t, err)
}

func TestRoute_DevirtualizesOccurrenceIDs(t *testing.T) {
	backend := dispatch.NewMemory()
	now := time.Now()
	seedRoute(backend, "tpl-7", "SCHEDULED", now.Add(2*time.Hour), now.Add(4*time.Hour))
	svc, _ := newTestService(backend)

	// A schedule occurrence id opens the template route behind it.
	route, err := svc.Route(context.Background(), "virtual-tpl-7-2026-03-10-0")
	require.NoError(t, err)
	assert.Equal(t, "tpl-7", route.ID)

	// Concrete ids pass through untouched.
	route, err = svc.Route(context.Background(), "tpl-7")
	require.NoError(t, err)
	assert.Equal(t, "tpl-7", route.ID)

	_, err = svc.Route(context.Background(), "missing")
	assert.ErrorIs(t, err, dispatch.ErrNotFound)
}

func TestDashboard_GroupsAndPicksNext(t *testing.T) {
	backend := dispatch.NewMemory()
	now := time.Now()

	seedRoute(backend, "active", "ACTIVE", now.Add(-time.Hour), now.Add(time.Hour))
	seedRoute(backend, "soon", "SCHEDULED", now.Add(2*time.Hour), now.Add(4*time.Hour))
	seedRoute(backend, "later", "SCHEDULED", now.Add(6*time.Hour), now.Add(8*time.Hour))
	seedRoute(backend, "done", "COMPLETED", now.Add(-6*time.Hour), now.Add(-4*time.Hour))

	svc, _ := newTestService(backend)

	dash, err := svc.Dashboard(context.Background(), testDriverID)
	require.NoError(t, err)

	require.NotNil(t, dash.ActiveRoute)
	assert.Equal(t, "active", dash.ActiveRoute.ID)

	require.NotNil(t, dash.NextUpcoming)
	assert.Equal(t, "soon", dash.NextUpcoming.ID)

	require.NotNil(t, dash.Progress)
	assert.Equal(t, 0, dash.Progress.CompletedStops)
	assert.Equal(t, 2, dash.Progress.TotalStops)

	assert.Len(t, dash.Buckets.Active, 1)
	assert.Len(t, dash.Buckets.Upcoming, 2)
}

func TestDashboard_NextNeverEqualsActive(t *testing.T) {
	backend := dispatch.NewMemory()
	now := time.Now()

	// The active route also has a future start; it must not double as "next".
	seedRoute(backend, "active", "ACTIVE", now.Add(time.Hour), now.Add(3*time.Hour))
	seedRoute(backend, "soon", "SCHEDULED", now.Add(2*time.Hour), now.Add(4*time.Hour))

	svc, _ := newTestService(backend)

	dash, err := svc.Dashboard(context.Background(), testDriverID)
	require.NoError(t, err)
	require.NotNil(t, dash.ActiveRoute)
	require.NotNil(t, dash.NextUpcoming)
	assert.NotEqual(t, dash.ActiveRoute.ID, dash.NextUpcoming.ID)
}

func TestSchedule_IncludesVirtualOccurrences(t *testing.T) {
	backend := dispatch.NewMemory()
	now := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC) // Monday

	morning := int64(8 * 3600)
	backend.SeedTemplates(testDriverID, []models.ShiftTemplate{
		{ID: "tpl-1", Name: "Morning Loop", StartTime: &morning, Weekdays: []int{1, 2}},
	})

	// Monday is materialized; Tuesday is not.
	tplID := "tpl-1"
	monStart := now
	concrete := seedRoute(backend, "r-mon", "SCHEDULED", monStart, monStart.Add(2*time.Hour))
	concrete.ShiftID = &tplID
	backend.SeedRoute(concrete)

	svc, _ := newTestService(backend)

	routes, err := svc.Schedule(context.Background(), testDriverID, now, now.AddDate(0, 0, 2))
	require.NoError(t, err)

	var concreteCount, virtualCount int
	for _, r := range routes {
		if r.IsVirtual {
			virtualCount++
			assert.Equal(t, "tpl-1", schedule.DevirtualizeID(r.ID))
		} else {
			concreteCount++
		}
	}
	assert.Equal(t, 1, concreteCount)
	assert.Equal(t, 1, virtualCount, "only the unmaterialized Tuesday synthesizes")
}
