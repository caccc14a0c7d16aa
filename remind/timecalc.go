package remind

import (
	"strconv"
	"strings"
	"time"
)

// Defaults applied when the reminder time string cannot be parsed.
const (
	defaultHour   = 9
	defaultMinute = 0
)

// TriggerTime computes the instant a product's reminder should fire: the
// expiration date minus daysBefore days, with the time-of-day replaced by
// the parsed reminderTime in the process's local zone. The expiration's own
// time-of-day never influences the result.
//
// Parsing is lenient by policy: a malformed or missing hour defaults to 9, a
// malformed or missing minute to 0. Out-of-range values are normalized the
// way time.Date normalizes them. This function never fails.
func TriggerTime(expirationMillis int64, daysBefore int, reminderTime string) time.Time {
	exp := time.UnixMilli(expirationMillis).Local()
	day := exp.AddDate(0, 0, -daysBefore)
	hour, minute := parseClock(reminderTime)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

func parseClock(s string) (hour, minute int) {
	hour, minute = defaultHour, defaultMinute
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) > 0 {
		if h, err := strconv.Atoi(strings.TrimSpace(parts[0])); err == nil {
			hour = h
		}
	}
	if len(parts) > 1 {
		if m, err := strconv.Atoi(strings.TrimSpace(parts[1])); err == nil {
			minute = m
		}
	}
	return hour, minute
}
