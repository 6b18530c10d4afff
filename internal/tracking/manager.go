package tracking

import (
	"context"
	"log"
	"sync"

	"shuttleops-backend/internal/dispatch"
	"shuttleops-backend/internal/metrics"
)

// Manager holds at most one live session per driver. It is the only owner of
// the per-driver positioning sources fed by the websocket layer.
type Manager struct {
	facade    dispatch.Facade
	publisher Publisher
	collector *metrics.Collector
	opts      Options

	mu       sync.RWMutex
	sessions map[string]*managed
}

type managed struct {
	session *Session
	source  *ChannelSource
}

// NewManager wires the shared dependencies every session gets.
func NewManager(facade dispatch.Facade, publisher Publisher, collector *metrics.Collector) *Manager {
	return &Manager{
		facade:    facade,
		publisher: publisher,
		collector: collector,
		opts: Options{
			Publisher: publisher,
			Metrics:   collector,
		},
		sessions: make(map[string]*managed),
	}
}

// Start creates and starts a session for the driver against the given route.
// An existing session for the driver is torn down first; a device reporting
// no GPS capability fails with ErrGPSUnavailable and nothing is registered.
// The whole replace-start-register sequence runs under the lock so two
// concurrent starts for one driver cannot both register: the later caller
// stops the earlier session before installing its own, and no session is
// ever left live without a map entry to stop it through.
func (m *Manager) Start(ctx context.Context, driverID, routeID string, gpsAvailable bool) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[driverID]; ok {
		delete(m.sessions, driverID)
		log.Printf("🔄 [TRACKING] Replacing existing session for driver %s", driverID)
		existing.session.Stop()
	}

	source := NewChannelSource(gpsAvailable)
	session := NewSession(m.facade, source, driverID, routeID, m.opts)
	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	m.sessions[driverID] = &managed{session: session, source: source}

	log.Printf("📍 [TRACKING] Session started: driver %s, route %s", driverID, routeID)
	return session, nil
}

// Feed delivers one device fix into the driver's session source. Returns
// false when the driver has no live session.
func (m *Manager) Feed(driverID string, sample Sample) bool {
	m.mu.RLock()
	entry, ok := m.sessions[driverID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	entry.source.Feed(sample)
	return true
}

// FeedError delivers a positioning error (e.g. permission denial reported by
// the device) into the driver's session source.
func (m *Manager) FeedError(driverID string, err error) bool {
	m.mu.RLock()
	entry, ok := m.sessions[driverID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	entry.source.FeedError(err)
	return true
}

// Session returns the driver's live session, or nil.
func (m *Manager) Session(driverID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if entry, ok := m.sessions[driverID]; ok {
		return entry.session
	}
	return nil
}

// Stop tears down the driver's session if one exists. Safe to call
// redundantly; a missing session is a no-op.
func (m *Manager) Stop(driverID string) {
	m.mu.Lock()
	entry, ok := m.sessions[driverID]
	if ok {
		delete(m.sessions, driverID)
	}
	m.mu.Unlock()
	if ok {
		entry.session.Stop()
		log.Printf("🛑 [TRACKING] Session stopped: driver %s", driverID)
	}
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
