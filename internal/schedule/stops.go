package schedule

import (
	"sort"

	"shuttleops-backend/internal/models"
)

// ResolveStopOrder resolves a stop's traversal position from whichever legacy
// order field is present. Candidates are tried in sequence (route_order,
// sequence, order) and the first non-nil one wins; a stop carrying none of
// them falls back to its array index.
func ResolveStopOrder(s *models.Stop, index int) int {
	for _, candidate := range []*int{s.RouteOrder, s.Sequence, s.Order} {
		if candidate != nil {
			return *candidate
		}
	}
	return index
}

// SortStops returns a copy ordered by resolved stop order, stable on ties.
func SortStops(stops []models.Stop) []models.Stop {
	type keyed struct {
		stop  models.Stop
		order int
	}
	items := make([]keyed, len(stops))
	for i, s := range stops {
		stop := s
		items[i] = keyed{stop: stop, order: ResolveStopOrder(&stop, i)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].order < items[j].order
	})
	out := make([]models.Stop, len(stops))
	for i, it := range items {
		out[i] = it.stop
	}
	return out
}

// NextPendingStop returns the first stop in traversal order that has not
// reached a terminal state, or nil when every stop is done.
func NextPendingStop(stops []models.Stop) *models.Stop {
	ordered := SortStops(stops)
	for i := range ordered {
		if !ordered[i].IsTerminal() {
			return &ordered[i]
		}
	}
	return nil
}
