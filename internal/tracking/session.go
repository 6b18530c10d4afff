package tracking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"shuttleops-backend/internal/dispatch"
	"shuttleops-backend/internal/metrics"
)

// State is the session lifecycle: Idle → Requesting → Tracking → Stopped/Idle.
type State string

const (
	StateIdle       State = "idle"
	StateRequesting State = "requesting"
	StateTracking   State = "tracking"
	StateStopped    State = "stopped"
)

// DefaultMinSyncInterval is the minimum spacing between two relays to the
// dispatch backend. Fixes arrive far more often; the first fix after the
// interval elapses is relayed immediately (minimum-interval throttle, not a
// debounce).
const DefaultMinSyncInterval = 10 * time.Second

// ErrAlreadyStarted is returned when Start is called on a live session.
var ErrAlreadyStarted = errors.New("tracking: session already started")

// Publisher receives every fix as it arrives, unthrottled. This is the live
// marker path (websocket fan-out, current-location mirror).
type Publisher interface {
	PublishSample(driverID, routeID string, sample Sample)
}

// Options tune a session. Zero values fall back to defaults.
type Options struct {
	MinSyncInterval time.Duration
	Publisher       Publisher
	Metrics         *metrics.Collector
	Now             func() time.Time
}

// Session captures one driver's live location while a route is in progress.
// It owns the positioning subscription exclusively; no other component
// touches it.
type Session struct {
	driverID string
	routeID  string
	facade   dispatch.Facade
	source   Source

	publisher   Publisher
	collector   *metrics.Collector
	minInterval time.Duration
	now         func() time.Time

	mu         sync.Mutex
	state      State
	lastSyncAt time.Time
	lastPos    *Sample
	lastErr    error
	seq        uint64
	sub        Subscription
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewSession binds a session to one driver and one route. It does nothing
// until Start.
func NewSession(facade dispatch.Facade, source Source, driverID, routeID string, opts Options) *Session {
	if opts.MinSyncInterval <= 0 {
		opts.MinSyncInterval = DefaultMinSyncInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Session{
		driverID:    driverID,
		routeID:     routeID,
		facade:      facade,
		source:      source,
		publisher:   opts.Publisher,
		collector:   opts.Metrics,
		minInterval: opts.MinSyncInterval,
		now:         opts.Now,
		state:       StateIdle,
	}
}

// RouteID returns the route the session is bound to.
func (s *Session) RouteID() string { return s.routeID }

// DriverID returns the driver the session belongs to.
func (s *Session) DriverID() string { return s.driverID }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastPosition returns a copy of the most recent fix, or nil before the first.
func (s *Session) LastPosition() *Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastPos == nil {
		return nil
	}
	pos := *s.lastPos
	return &pos
}

// LastError returns the most recent positioning or relay error, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Start begins capture: one immediate single-shot fix for a fast initial
// position, plus the continuous subscription that drives periodic sync.
// A device without positioning fails immediately and the session stays Idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateRequesting || s.state == StateTracking {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.source == nil || !s.source.Available() {
		s.state = StateIdle
		s.mu.Unlock()
		return ErrGPSUnavailable
	}
	s.state = StateRequesting
	s.lastSyncAt = time.Time{}
	s.lastErr = nil

	// The watch loop outlives the caller's (request-scoped) context; it ends
	// only via Stop or a fatal positioning error.
	runCtx, cancel := context.WithCancel(context.Background())
	sub, err := s.source.Watch(runCtx)
	if err != nil {
		s.state = StateIdle
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("failed to subscribe to position updates: %w", err)
	}
	s.sub = sub
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	// Fast initial fix. It updates the live marker and relays once, but does
	// not advance the sync clock; only the continuous path drives periodic
	// sync.
	go func() {
		fixCtx, cancelFix := context.WithTimeout(runCtx, 15*time.Second)
		defer cancelFix()
		sample, err := s.source.Current(fixCtx)
		if err != nil {
			log.Printf("⚠️  [TRACKING] Initial fix failed for driver %s: %v", s.driverID, err)
			return
		}
		s.record(sample)
		s.relay(runCtx, sample)
	}()

	go s.run(runCtx, sub)
	return nil
}

func (s *Session) run(ctx context.Context, sub Subscription) {
	defer close(s.done)
	for {
		select {
		case sample, ok := <-sub.Updates():
			if !ok {
				return
			}
			s.handleSample(ctx, sample)
		case err, ok := <-sub.Errs():
			if !ok {
				return
			}
			s.handleSourceError(err)
		case <-ctx.Done():
			return
		}
	}
}

// record stores the fix for live display and fans it out unthrottled.
func (s *Session) record(sample Sample) {
	s.mu.Lock()
	pos := sample
	s.lastPos = &pos
	if s.state == StateRequesting {
		s.state = StateTracking
		if s.collector != nil {
			s.collector.ActiveSessions.Inc()
		}
	}
	s.mu.Unlock()

	if s.publisher != nil {
		s.publisher.PublishSample(s.driverID, s.routeID, sample)
	}
}

// handleSample is the continuous path: every fix updates the live marker;
// only fixes arriving at least minInterval after the previous relay reach the
// dispatch backend.
func (s *Session) handleSample(ctx context.Context, sample Sample) {
	s.record(sample)

	s.mu.Lock()
	elapsed := s.now().Sub(s.lastSyncAt)
	due := elapsed >= s.minInterval
	if due {
		s.lastSyncAt = s.now()
	}
	s.mu.Unlock()

	if !due {
		if s.collector != nil {
			s.collector.ThrottledSamples.Inc()
		}
		return
	}
	s.relay(ctx, sample)
}

// relay is fire-and-forget relative to the position stream: a failed push is
// logged and does not stop tracking, retry, or block later fixes.
func (s *Session) relay(ctx context.Context, sample Sample) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	push := dispatch.LocationPush{
		RouteID:    s.routeID,
		DriverID:   s.driverID,
		Latitude:   sample.Latitude,
		Longitude:  sample.Longitude,
		Accuracy:   sample.Accuracy,
		RecordedAt: sample.RecordedAt,
		Seq:        seq,
	}
	if err := s.facade.PushLocation(ctx, push); err != nil {
		log.Printf("⚠️  [TRACKING] Location push failed for driver %s: %v", s.driverID, err)
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
		if s.collector != nil {
			s.collector.PushErrors.Inc()
		}
		return
	}
	if s.collector != nil {
		s.collector.LocationPushes.Inc()
	}
}

// handleSourceError: permission denial kills the session; anything else is
// surfaced but tracking continues best-effort.
func (s *Session) handleSourceError(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	if errors.Is(err, ErrPermissionDenied) {
		log.Printf("🔴 [TRACKING] Permission denied for driver %s, stopping session", s.driverID)
		s.stopTo(StateStopped)
		return
	}
	log.Printf("⚠️  [TRACKING] Positioning error for driver %s: %v", s.driverID, err)
}

// Stop releases the positioning subscription and returns to Idle. It is
// idempotent: stopping twice, or when never started, is a no-op.
func (s *Session) Stop() {
	s.stopTo(StateIdle)
}

func (s *Session) stopTo(final State) {
	s.mu.Lock()
	sub := s.sub
	cancel := s.cancel
	wasLive := s.state == StateTracking
	s.sub = nil
	s.cancel = nil
	s.state = final
	s.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	if cancel != nil {
		cancel()
	}
	if wasLive && s.collector != nil {
		s.collector.ActiveSessions.Dec()
	}
}
