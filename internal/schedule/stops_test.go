package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shuttleops-backend/internal/models"
)

func intp(v int) *int { return &v }

func TestResolveStopOrder_FirstNonNilWins(t *testing.T) {
	s := models.Stop{RouteOrder: intp(5), Sequence: intp(9), Order: intp(1)}
	assert.Equal(t, 5, ResolveStopOrder(&s, 0))

	s = models.Stop{Sequence: intp(9), Order: intp(1)}
	assert.Equal(t, 9, ResolveStopOrder(&s, 0))

	s = models.Stop{Order: intp(1)}
	assert.Equal(t, 1, ResolveStopOrder(&s, 0))

	s = models.Stop{}
	assert.Equal(t, 4, ResolveStopOrder(&s, 4))
}

func TestSortStops_MixedLegacyFields(t *testing.T) {
	stops := []models.Stop{
		{ID: "c", Order: intp(3)},
		{ID: "a", RouteOrder: intp(1)},
		{ID: "b", Sequence: intp(2)},
	}

	sorted := SortStops(stops)
	require.Len(t, sorted, 3)
	assert.Equal(t, "a", sorted[0].ID)
	assert.Equal(t, "b", sorted[1].ID)
	assert.Equal(t, "c", sorted[2].ID)

	// Input untouched.
	assert.Equal(t, "c", stops[0].ID)
}

func TestNextPendingStop_SkipsTerminalStops(t *testing.T) {
	done := time.Now().Unix()
	stops := []models.Stop{
		{ID: "s1", Sequence: intp(1), CompletedAt: &done},
		{ID: "s2", Sequence: intp(2), Skipped: true},
		{ID: "s3", Sequence: intp(3)},
	}

	next := NextPendingStop(stops)
	require.NotNil(t, next)
	assert.Equal(t, "s3", next.ID)

	stops[2].Skipped = true
	assert.Nil(t, NextPendingStop(stops))
}
