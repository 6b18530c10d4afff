package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shuttleops-backend/internal/models"
	"shuttleops-backend/internal/schedule"
)

// Memory is an in-memory Facade for tests and the standalone agent demo.
// It applies the same semantics the real backend does: stop checkins are
// idempotent (a terminal stop never regresses), and location pushes carrying
// a stale sequence number are discarded.
type Memory struct {
	mu        sync.Mutex
	routes    map[string]*models.Route
	templates map[string][]models.ShiftTemplate // driverID -> templates
	pushes    []LocationPush
	lastSeq   map[string]uint64 // routeID -> highest seq accepted

	// Fail, when set, makes every mutating call return this error.
	Fail error

	now func() time.Time
}

// NewMemory creates an empty in-memory dispatch backend.
func NewMemory() *Memory {
	return &Memory{
		routes:    make(map[string]*models.Route),
		templates: make(map[string][]models.ShiftTemplate),
		lastSeq:   make(map[string]uint64),
		now:       time.Now,
	}
}

// SetNow overrides the clock used for server-side timestamps.
func (m *Memory) SetNow(now func() time.Time) { m.now = now }

// SeedRoute inserts or replaces a route.
func (m *Memory) SeedRoute(route models.Route) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := route
	m.routes[r.ID] = &r
}

// SeedTemplates registers shift templates for a driver.
func (m *Memory) SeedTemplates(driverID string, templates []models.ShiftTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[driverID] = templates
}

// Pushes returns a copy of every accepted location push.
func (m *Memory) Pushes() []LocationPush {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LocationPush, len(m.pushes))
	copy(out, m.pushes)
	return out
}

func cloneRoute(r *models.Route) *models.Route {
	clone := *r
	if r.Stops != nil {
		clone.Stops = make([]models.Stop, len(r.Stops))
		copy(clone.Stops, r.Stops)
	}
	return &clone
}

func (m *Memory) ListRoutes(ctx context.Context, filter ListFilter) ([]models.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.Route
	for _, r := range m.routes {
		if filter.DriverID != "" && (r.DriverID == nil || *r.DriverID != filter.DriverID) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		start := schedule.ResolveStartTime(r)
		if filter.From != nil && start != nil && start.Before(*filter.From) {
			continue
		}
		if filter.To != nil && start != nil && start.After(*filter.To) {
			continue
		}
		out = append(out, *cloneRoute(r))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) GetRoute(ctx context.Context, routeID string) (*models.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[routeID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRoute(r), nil
}

func (m *Memory) UpdateRouteStatus(ctx context.Context, routeID, status string) (*models.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return nil, m.Fail
	}
	r, ok := m.routes[routeID]
	if !ok {
		return nil, ErrNotFound
	}

	nowUnix := m.now().Unix()
	r.Status = status
	switch models.RouteStatus(status) {
	case models.RouteStatusActive, models.RouteStatusInProgress:
		if r.StartedAt == nil {
			started := nowUnix
			r.StartedAt = &started
		}
	case models.RouteStatusCompleted:
		if r.CompletedAt == nil {
			completed := nowUnix
			r.CompletedAt = &completed
		}
	}
	r.UpdatedAt = nowUnix
	return cloneRoute(r), nil
}

func (m *Memory) CheckinStop(ctx context.Context, routeID, stopID string, skipped bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	r, ok := m.routes[routeID]
	if !ok {
		return ErrNotFound
	}
	for i := range r.Stops {
		if r.Stops[i].ID != stopID {
			continue
		}
		if r.Stops[i].IsTerminal() {
			// Terminal stops never transition again; completed_at is kept.
			return nil
		}
		if skipped {
			r.Stops[i].Skipped = true
		} else {
			completed := m.now().Unix()
			r.Stops[i].CompletedAt = &completed
		}
		r.UpdatedAt = m.now().Unix()
		return nil
	}
	return fmt.Errorf("stop %s not found on route %s", stopID, routeID)
}

func (m *Memory) PushLocation(ctx context.Context, push LocationPush) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if push.Seq != 0 && push.Seq <= m.lastSeq[push.RouteID] {
		// Late sample from an older point in the stream; drop it.
		return nil
	}
	m.lastSeq[push.RouteID] = push.Seq
	m.pushes = append(m.pushes, push)
	return nil
}

func (m *Memory) RecordRouteCompletion(ctx context.Context, routeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	if _, ok := m.routes[routeID]; !ok {
		return ErrNotFound
	}
	return nil
}

func (m *Memory) ListShiftTemplates(ctx context.Context, driverID string) ([]models.ShiftTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ShiftTemplate(nil), m.templates[driverID]...), nil
}
