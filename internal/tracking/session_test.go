package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttleops-backend/internal/dispatch"
)

// fakeClock advances only when told to, making throttle behavior exact.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func sampleAt(clock *fakeClock, lat, lng float64) Sample {
	return Sample{Latitude: lat, Longitude: lng, RecordedAt: clock.Now()}
}

func TestHandleSample_MinimumIntervalThrottle(t *testing.T) {
	backend := dispatch.NewMemory()
	clock := newFakeClock()
	source := NewChannelSource(true)

	s := NewSession(backend, source, "driver-1", "route-1", Options{
		MinSyncInterval: 10 * time.Second,
		Now:             clock.Now,
	})

	// 30 fixes 400ms apart span 11.6s: the first relays immediately, the
	// next after the 10s interval elapses, everything between is throttled.
	ctx := context.Background()
	for i := 0; i < 30; i++ {
		s.handleSample(ctx, sampleAt(clock, 37.33, -121.88))
		clock.Advance(400 * time.Millisecond)
	}

	pushes := backend.Pushes()
	assert.LessOrEqual(t, len(pushes), 2)
	assert.GreaterOrEqual(t, len(pushes), 1)

	// Every fix still updated the live position.
	require.NotNil(t, s.LastPosition())
}

func TestHandleSample_RelaysFirstFixAfterIntervalElapses(t *testing.T) {
	backend := dispatch.NewMemory()
	clock := newFakeClock()
	source := NewChannelSource(true)

	s := NewSession(backend, source, "driver-1", "route-1", Options{
		MinSyncInterval: 10 * time.Second,
		Now:             clock.Now,
	})

	ctx := context.Background()
	s.handleSample(ctx, sampleAt(clock, 37.0, -121.0))
	require.Len(t, backend.Pushes(), 1)

	clock.Advance(9 * time.Second)
	s.handleSample(ctx, sampleAt(clock, 37.1, -121.1))
	assert.Len(t, backend.Pushes(), 1, "fix inside the interval is throttled")

	clock.Advance(time.Second)
	s.handleSample(ctx, sampleAt(clock, 37.2, -121.2))
	assert.Len(t, backend.Pushes(), 2, "first fix at the interval boundary relays")
}

func TestInitialFixDoesNotAdvanceSyncClock(t *testing.T) {
	backend := dispatch.NewMemory()
	clock := newFakeClock()
	source := NewChannelSource(true)

	s := NewSession(backend, source, "driver-1", "route-1", Options{
		MinSyncInterval: 10 * time.Second,
		Now:             clock.Now,
	})

	ctx := context.Background()

	// The single-shot initial fix relays without touching the sync clock...
	initial := sampleAt(clock, 37.0, -121.0)
	s.record(initial)
	s.relay(ctx, initial)
	require.Len(t, backend.Pushes(), 1)

	// ...so the first continuous fix still relays immediately.
	s.handleSample(ctx, sampleAt(clock, 37.1, -121.1))
	assert.Len(t, backend.Pushes(), 2)
}

func TestRelay_SequenceNumbersIncrease(t *testing.T) {
	backend := dispatch.NewMemory()
	clock := newFakeClock()
	source := NewChannelSource(true)

	s := NewSession(backend, source, "driver-1", "route-1", Options{
		MinSyncInterval: time.Second,
		Now:             clock.Now,
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		s.handleSample(ctx, sampleAt(clock, 37.0, -121.0))
		clock.Advance(time.Second)
	}

	pushes := backend.Pushes()
	require.Len(t, pushes, 3)
	for i := 1; i < len(pushes); i++ {
		assert.Greater(t, pushes[i].Seq, pushes[i-1].Seq)
	}
}

func TestRelay_PushFailureIsNonFatal(t *testing.T) {
	backend := dispatch.NewMemory()
	backend.Fail = assert.AnError
	clock := newFakeClock()
	source := NewChannelSource(true)

	s := NewSession(backend, source, "driver-1", "route-1", Options{
		MinSyncInterval: time.Second,
		Now:             clock.Now,
	})

	ctx := context.Background()
	s.handleSample(ctx, sampleAt(clock, 37.0, -121.0))

	assert.ErrorIs(t, s.LastError(), assert.AnError)
	assert.NotNil(t, s.LastPosition(), "live position still updates on push failure")

	// Recovery: once the backend accepts pushes again, relays resume.
	backend.Fail = nil
	clock.Advance(time.Second)
	s.handleSample(ctx, sampleAt(clock, 37.1, -121.1))
	assert.Len(t, backend.Pushes(), 1)
}

func TestStart_GPSUnavailableStaysIdle(t *testing.T) {
	backend := dispatch.NewMemory()
	source := NewChannelSource(false)

	s := NewSession(backend, source, "driver-1", "route-1", Options{})
	err := s.Start(context.Background())

	assert.ErrorIs(t, err, ErrGPSUnavailable)
	assert.Equal(t, StateIdle, s.State())
}

func TestStart_SecondStartRejected(t *testing.T) {
	backend := dispatch.NewMemory()
	source := NewChannelSource(true)

	s := NewSession(backend, source, "driver-1", "route-1", Options{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
}

func TestSession_FirstFixMovesRequestingToTracking(t *testing.T) {
	backend := dispatch.NewMemory()
	source := NewChannelSource(true)

	s := NewSession(backend, source, "driver-1", "route-1", Options{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, StateRequesting, s.State())

	source.Feed(Sample{Latitude: 37.0, Longitude: -121.0, RecordedAt: time.Now()})

	assert.Eventually(t, func() bool {
		return s.State() == StateTracking && s.LastPosition() != nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStop_Idempotent(t *testing.T) {
	backend := dispatch.NewMemory()
	source := NewChannelSource(true)

	s := NewSession(backend, source, "driver-1", "route-1", Options{})
	require.NoError(t, s.Start(context.Background()))

	s.Stop()
	assert.Equal(t, StateIdle, s.State())

	s.Stop()
	assert.Equal(t, StateIdle, s.State())

	// A session that never started can also be stopped safely.
	fresh := NewSession(backend, source, "driver-2", "route-2", Options{})
	fresh.Stop()
	assert.Equal(t, StateIdle, fresh.State())
}

func TestPermissionDenied_AutoStops(t *testing.T) {
	backend := dispatch.NewMemory()
	source := NewChannelSource(true)

	s := NewSession(backend, source, "driver-1", "route-1", Options{})
	require.NoError(t, s.Start(context.Background()))

	source.FeedError(ErrPermissionDenied)

	assert.Eventually(t, func() bool {
		return s.State() == StateStopped
	}, 2*time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, s.LastError(), ErrPermissionDenied)
}

func TestTransientSourceError_KeepsTracking(t *testing.T) {
	backend := dispatch.NewMemory()
	source := NewChannelSource(true)

	s := NewSession(backend, source, "driver-1", "route-1", Options{})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	source.FeedError(ErrGPSUnavailable)

	assert.Eventually(t, func() bool {
		return s.LastError() != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotEqual(t, StateStopped, s.State())

	// Fixes still flow after a transient error.
	source.Feed(Sample{Latitude: 37.0, Longitude: -121.0, RecordedAt: time.Now()})
	assert.Eventually(t, func() bool {
		return s.LastPosition() != nil
	}, 2*time.Second, 10*time.Millisecond)
}
