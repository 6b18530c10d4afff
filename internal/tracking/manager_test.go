package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttleops-backend/internal/dispatch"
)

func TestManager_StartFeedStop(t *testing.T) {
	backend := dispatch.NewMemory()
	m := NewManager(backend, nil, nil)

	assert.False(t, m.Feed("driver-1", Sample{}), "no session yet")

	session, err := m.Start(context.Background(), "driver-1", "route-1", true)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, 1, m.Count())
	assert.Same(t, session, m.Session("driver-1"))

	assert.True(t, m.Feed("driver-1", Sample{Latitude: 37.0, Longitude: -121.0, RecordedAt: time.Now()}))

	m.Stop("driver-1")
	assert.Equal(t, 0, m.Count())
	assert.Nil(t, m.Session("driver-1"))
	assert.Equal(t, StateIdle, session.State())

	// Redundant stop is a no-op.
	m.Stop("driver-1")
}

func TestManager_StartWithoutGPSRegistersNothing(t *testing.T) {
	backend := dispatch.NewMemory()
	m := NewManager(backend, nil, nil)

	_, err := m.Start(context.Background(), "driver-1", "route-1", false)
	assert.ErrorIs(t, err, ErrGPSUnavailable)
	assert.Equal(t, 0, m.Count())
}

func TestManager_StartReplacesExistingSession(t *testing.T) {
	backend := dispatch.NewMemory()
	m := NewManager(backend, nil, nil)

	first, err := m.Start(context.Background(), "driver-1", "route-1", true)
	require.NoError(t, err)

	second, err := m.Start(context.Background(), "driver-1", "route-2", true)
	require.NoError(t, err)

	assert.Equal(t, 1, m.Count())
	assert.Same(t, second, m.Session("driver-1"))
	assert.Equal(t, "route-2", second.RouteID())
	assert.Equal(t, StateIdle, first.State(), "old session torn down")

	m.Stop("driver-1")
}

func TestManager_ConcurrentStartsLeaveOneLiveSession(t *testing.T) {
	backend := dispatch.NewMemory()
	m := NewManager(backend, nil, nil)

	const starters = 8
	sessions := make([]*Session, starters)
	var wg sync.WaitGroup
	for i := 0; i < starters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, err := m.Start(context.Background(), "driver-1", "route-1", true)
			assert.NoError(t, err)
			sessions[i] = session
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, m.Count())
	live := m.Session("driver-1")
	require.NotNil(t, live)

	// Every superseded session must already be torn down; only the
	// registered one may still be running.
	liveCount := 0
	for _, session := range sessions {
		require.NotNil(t, session)
		if session == live {
			liveCount++
			continue
		}
		assert.Equal(t, StateIdle, session.State())
	}
	assert.Equal(t, 1, liveCount)

	m.Stop("driver-1")
	assert.Equal(t, StateIdle, live.State())
}

func TestManager_FeedErrorReachesSession(t *testing.T) {
	backend := dispatch.NewMemory()
	m := NewManager(backend, nil, nil)

	session, err := m.Start(context.Background(), "driver-1", "route-1", true)
	require.NoError(t, err)

	assert.True(t, m.FeedError("driver-1", ErrPermissionDenied))
	assert.Eventually(t, func() bool {
		return session.State() == StateStopped
	}, 2*time.Second, 10*time.Millisecond)

	m.Stop("driver-1")
}
