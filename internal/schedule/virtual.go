package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"shuttleops-backend/internal/models"
)

const virtualIDPrefix = "virtual-"

var dateSuffixPattern = regexp.MustCompile(`-\d{4}-\d{2}-\d{2}$`)

// VirtualID builds the synthetic id for an unmaterialized occurrence:
// virtual-<templateID>-YYYY-MM-DD-<n>.
func VirtualID(templateID string, date time.Time, n int) string {
	return fmt.Sprintf("%s%s-%s-%d", virtualIDPrefix, templateID, date.Format("2006-01-02"), n)
}

// IsVirtualID reports whether the id denotes a synthesized occurrence rather
// than a concrete dispatch record. Virtual routes are never navigable.
func IsVirtualID(id string) bool {
	return strings.HasPrefix(id, virtualIDPrefix)
}

// DevirtualizeID recovers the shift template id embedded in a virtual route
// id. Ids that are not in the virtual format come back unchanged.
func DevirtualizeID(routeID string) string {
	if !strings.HasPrefix(routeID, virtualIDPrefix) {
		return routeID
	}
	trimmed := strings.TrimPrefix(routeID, virtualIDPrefix)

	// Strip the trailing occurrence index, then the date.
	lastDash := strings.LastIndex(trimmed, "-")
	if lastDash == -1 {
		return routeID
	}
	withoutIndex := trimmed[:lastDash]
	if !dateSuffixPattern.MatchString(withoutIndex) {
		return routeID
	}
	templateID := dateSuffixPattern.ReplaceAllString(withoutIndex, "")
	if templateID == "" {
		return routeID
	}
	return templateID
}

// SynthesizeOccurrences emits a virtual route for every template occurrence in
// [from, to] that has no concrete route row. A template occurs on a date when
// it recurs on that weekday and no concrete route references the template on
// that day. Virtual routes carry no stops, are always UPCOMING, and point back
// at their template through original_route_id.
func SynthesizeOccurrences(templates []models.ShiftTemplate, concrete []models.Route, from, to time.Time) []models.Route {
	if to.Before(from) {
		return nil
	}

	// Index concrete routes by template id + calendar day.
	materialized := make(map[string]bool)
	for i := range concrete {
		r := &concrete[i]
		if r.ShiftID == nil {
			continue
		}
		start := ResolveStartTime(r)
		if start == nil {
			continue
		}
		materialized[*r.ShiftID+"@"+start.Format("2006-01-02")] = true
	}

	var occurrences []models.Route
	n := 0
	for day := startOfDay(from); !day.After(to); day = day.AddDate(0, 0, 1) {
		for ti := range templates {
			tpl := templates[ti]
			if !tpl.RecursOn(int(day.Weekday())) {
				continue
			}
			if materialized[tpl.ID+"@"+day.Format("2006-01-02")] {
				continue
			}

			dayUnix := day.Unix()
			templateID := tpl.ID
			route := models.Route{
				ID:              VirtualID(tpl.ID, day, n),
				Name:            tpl.Name,
				Status:          string(models.RouteStatusScheduled),
				Date:            &dayUnix,
				ShiftID:         &templateID,
				OriginalRouteID: &templateID,
				IsVirtual:       true,
				Shift:           &tpl,
			}
			if start := combineDateAndTime(&day, toTime(tpl.StartTime)); start != nil && tpl.StartTime != nil {
				ts := start.Unix()
				route.StartTime = &ts
			}
			if end := combineDateAndTime(&day, toTime(tpl.EndTime)); end != nil && tpl.EndTime != nil {
				ts := end.Unix()
				route.EndTime = &ts
			}
			occurrences = append(occurrences, route)
			n++
		}
	}
	return occurrences
}
