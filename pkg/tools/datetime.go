package tools

import (
	"strings"
	"time"
)

// Accepted datetime argument layouts, tried in order.
var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// maxQueryDays caps every query window.
const maxQueryDays = 14

// parseDateTime parses a tool datetime argument. Returns the zero time
// and false when the string matches none of the accepted layouts.
func parseDateTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// isDateOnly reports whether the argument carried no time-of-day part.
func isDateOnly(value string) bool {
	_, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(value), time.Local)
	return err == nil
}

// queryWindow resolves the [start, end] window of a query_* tool from its
// optional arguments:
//
//   - days defaults to 14 and is clamped to at most 14 (negative → 0)
//   - end defaults to now; a date-only end extends to 23:59:59
//   - start defaults to end − days
//   - the total window never exceeds 14 days
//
// hasStart/hasEnd tell whether the caller supplied parseable dates; the
// caller validates formats before calling.
func queryWindow(days int, hasDays bool, start time.Time, hasStart bool, end time.Time, hasEnd bool, now time.Time) (time.Time, time.Time) {
	if !hasDays {
		days = maxQueryDays
	}
	if days > maxQueryDays {
		days = maxQueryDays
	}
	if days < 0 {
		days = 0
	}

	windowEnd := now
	if hasEnd {
		windowEnd = end
	}

	windowStart := windowEnd.AddDate(0, 0, -days)
	if hasStart {
		windowStart = start
	}

	// Clamp the total window.
	if windowEnd.Sub(windowStart) > maxQueryDays*24*time.Hour {
		windowStart = windowEnd.Add(-maxQueryDays * 24 * time.Hour)
	}

	return windowStart, windowEnd
}

// endOfDay pushes a date-only end bound to the last second of that day.
func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
