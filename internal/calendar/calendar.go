package calendar

import (
	"fmt"
	"time"
)

// Config describes the weekly business schedule used for business-time
// arithmetic. Hours are whole local hours in the configured timezone.
type Config struct {
	Location     *time.Location
	BusinessDays map[time.Weekday]bool
	StartHour    int
	EndHour      int
}

// DefaultBusinessDays is Monday through Friday.
func DefaultBusinessDays() map[time.Weekday]bool {
	return map[time.Weekday]bool{
		time.Monday:    true,
		time.Tuesday:   true,
		time.Wednesday: true,
		time.Thursday:  true,
		time.Friday:    true,
	}
}

// Validate checks the schedule for obvious misconfiguration.
func (c Config) Validate() error {
	if c.Location == nil {
		return fmt.Errorf("calendar: location is required")
	}
	if c.StartHour < 0 || c.StartHour > 23 {
		return fmt.Errorf("calendar: start hour %d out of range", c.StartHour)
	}
	if c.EndHour < 1 || c.EndHour > 24 {
		return fmt.Errorf("calendar: end hour %d out of range", c.EndHour)
	}
	if c.EndHour <= c.StartHour {
		return fmt.Errorf("calendar: end hour %d not after start hour %d", c.EndHour, c.StartHour)
	}
	if len(c.BusinessDays) == 0 {
		return fmt.Errorf("calendar: no business days configured")
	}
	return nil
}

// WallSeconds returns the unrestricted elapsed duration between start
// and end in whole seconds, clamped at zero.
func WallSeconds(start, end time.Time) int64 {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// BusinessSeconds returns the portion of [start, end] that falls inside
// the configured weekly schedule, in whole seconds. The interval is
// walked one calendar day at a time in the schedule's timezone; a fixed
// offset formula would drift across DST transitions.
func BusinessSeconds(start, end time.Time, cfg Config) int64 {
	if !end.After(start) {
		return 0
	}

	localStart := start.In(cfg.Location)
	localEnd := end.In(cfg.Location)

	var total int64
	day := time.Date(localStart.Year(), localStart.Month(), localStart.Day(), 0, 0, 0, 0, cfg.Location)
	lastDay := time.Date(localEnd.Year(), localEnd.Month(), localEnd.Day(), 0, 0, 0, 0, cfg.Location)

	for !day.After(lastDay) {
		if cfg.BusinessDays[day.Weekday()] {
			windowStart := time.Date(day.Year(), day.Month(), day.Day(), cfg.StartHour, 0, 0, 0, cfg.Location)
			windowEnd := time.Date(day.Year(), day.Month(), day.Day(), cfg.EndHour, 0, 0, 0, cfg.Location)

			from := maxTime(localStart, windowStart)
			to := minTime(localEnd, windowEnd)
			if to.After(from) {
				total += int64(to.Sub(from) / time.Second)
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return total
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
