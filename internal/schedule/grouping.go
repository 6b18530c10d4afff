package schedule

import (
	"sort"
	"time"

	"shuttleops-backend/internal/models"
)

// Buckets partitions a route collection by effective status. Every input
// route lands in exactly one bucket; routes are copied by value, never mutated.
type Buckets struct {
	Active    []models.Route `json:"ACTIVE"`
	Upcoming  []models.Route `json:"UPCOMING"`
	Completed []models.Route `json:"COMPLETED"`
	Cancelled []models.Route `json:"CANCELLED"`
}

// Group derives each route's effective status against the reference time and
// buckets accordingly.
func Group(routes []models.Route, now time.Time) Buckets {
	var b Buckets
	for _, r := range routes {
		route := r
		switch Derive(&route, now) {
		case StatusActive:
			b.Active = append(b.Active, route)
		case StatusCompleted:
			b.Completed = append(b.Completed, route)
		case StatusCancelled:
			b.Cancelled = append(b.Cancelled, route)
		default:
			b.Upcoming = append(b.Upcoming, route)
		}
	}
	return b
}

// SortByStartTime returns a copy sorted ascending by resolved start time.
// Routes with no resolvable start sort last; ties keep input order.
func SortByStartTime(routes []models.Route) []models.Route {
	sorted := make([]models.Route, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		a := ResolveStartTime(&sorted[i])
		b := ResolveStartTime(&sorted[j])
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.Before(*b)
	})
	return sorted
}

// SortByEndTime returns a copy sorted ascending by resolved end time, with the
// same nil-last handling as SortByStartTime.
func SortByEndTime(routes []models.Route) []models.Route {
	sorted := make([]models.Route, len(routes))
	copy(sorted, routes)
	sort.SliceStable(sorted, func(i, j int) bool {
		a := ResolveEndTime(&sorted[i])
		b := ResolveEndTime(&sorted[j])
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.Before(*b)
	})
	return sorted
}

// Window bounds what a display surface shows; it never changes the underlying
// effective status.
type Window struct {
	Horizon       time.Duration
	FallbackCount int
}

// DefaultWindow matches the driver dashboard: a two-day horizon, and at most
// three raw entries when nothing falls inside it.
func DefaultWindow() Window {
	return Window{Horizon: 48 * time.Hour, FallbackCount: 3}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// UpcomingWindow keeps UPCOMING routes whose start falls between the start of
// the reference day and now+horizon, sorted ascending. When the filtered set
// is empty the first FallbackCount raw upcoming routes are returned instead,
// so a surface is never empty just because everything is far out. Routes with
// no resolvable start time are excluded from the near-term window.
func UpcomingWindow(upcoming []models.Route, now time.Time, w Window) []models.Route {
	sorted := SortByStartTime(upcoming)
	windowStart := startOfDay(now)
	windowEnd := now.Add(w.Horizon)

	var inWindow []models.Route
	for _, r := range sorted {
		route := r
		start := ResolveStartTime(&route)
		if start == nil {
			continue
		}
		if !start.Before(windowStart) && !start.After(windowEnd) {
			inWindow = append(inWindow, route)
		}
	}
	if len(inWindow) > 0 {
		return inWindow
	}
	if len(sorted) > w.FallbackCount {
		return sorted[:w.FallbackCount]
	}
	return sorted
}

// RecentCompletedWindow keeps COMPLETED routes whose end falls within the
// recent horizon, most-recent-first. When empty, the last FallbackCount raw
// completed routes are returned, also most-recent-first.
func RecentCompletedWindow(completed []models.Route, now time.Time, w Window) []models.Route {
	sorted := SortByEndTime(completed)
	windowStart := now.Add(-w.Horizon)

	var inWindow []models.Route
	for _, r := range sorted {
		route := r
		end := ResolveEndTime(&route)
		if end == nil {
			continue
		}
		if !end.Before(windowStart) && !end.After(now) {
			inWindow = append(inWindow, route)
		}
	}
	if len(inWindow) == 0 {
		n := len(sorted)
		count := w.FallbackCount
		if count > n {
			count = n
		}
		inWindow = sorted[n-count:]
	}
	return reversed(inWindow)
}

func reversed(routes []models.Route) []models.Route {
	out := make([]models.Route, len(routes))
	for i, r := range routes {
		out[len(routes)-1-i] = r
	}
	return out
}

// NextUpcoming picks the earliest-starting upcoming route at or after the
// reference time, never the one matching the currently active route's id so a
// route is not shown as both "active" and "next". Concrete routes win over
// virtual occurrences.
func NextUpcoming(upcoming []models.Route, now time.Time, activeRouteID string) *models.Route {
	sorted := SortByStartTime(upcoming)

	pick := func(allowVirtual bool) *models.Route {
		for i := range sorted {
			route := sorted[i]
			if activeRouteID != "" && route.ID == activeRouteID {
				continue
			}
			if !allowVirtual && (route.IsVirtual || IsVirtualID(route.ID)) {
				continue
			}
			start := ResolveStartTime(&route)
			if start == nil || start.Before(now) {
				continue
			}
			return &route
		}
		return nil
	}

	if next := pick(false); next != nil {
		return next
	}
	return pick(true)
}
