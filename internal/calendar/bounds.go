package calendar

import (
	"fmt"
	"time"
)

// DayBounds returns the UTC instants delimiting the given calendar day
// in the schedule's timezone. The end bound is exclusive.
func DayBounds(year int, month time.Month, day int, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, month, day, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}

// ISOWeekBounds returns the UTC instants delimiting the given ISO week
// in the schedule's timezone. The end bound is exclusive.
func ISOWeekBounds(isoYear, isoWeek int, loc *time.Location) (time.Time, time.Time) {
	// January 4th always falls inside ISO week 1 of its year.
	jan4 := time.Date(isoYear, time.January, 4, 0, 0, 0, 0, loc)
	weekday := int(jan4.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	week1Monday := jan4.AddDate(0, 0, 1-weekday)
	start := week1Monday.AddDate(0, 0, (isoWeek-1)*7)
	end := start.AddDate(0, 0, 7)
	return start.UTC(), end.UTC()
}

// CivilMidnight treats t as a calendar date, ignoring its own location,
// and returns midnight of that date in loc. Use this for civil dates
// (API parameters, bucket keys) that arrive as UTC midnight; Midnight
// is for actual instants.
func CivilMidnight(t time.Time, loc *time.Location) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// DaysBetween lists every calendar day from 'from' to 'to' inclusive,
// each normalized to midnight in loc. The bounds are civil dates: their
// year, month and day are taken as-is.
func DaysBetween(from, to time.Time, loc *time.Location) []time.Time {
	start := CivilMidnight(from, loc)
	end := CivilMidnight(to, loc)

	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// Midnight normalizes t to the start of its calendar day in loc.
func Midnight(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// FormatDuration renders a second count as a compact human-readable
// duration such as "2d 4h 30m".
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
