// Package cadence computes when a recurring agent should next fire.
//
// Schedules are described the way operators enter them in the hub: a type
// (daily, weekly, fortnightly, monthly), a weekday name and an HH:MM time.
// Every function here is total: malformed input falls back to defaults
// instead of failing, and the returned instant is always strictly after the
// reference time.
package cadence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Type is a recurrence rule.
type Type string

const (
	Daily       Type = "daily"
	Weekly      Type = "weekly"
	Fortnightly Type = "fortnightly"
	Monthly     Type = "monthly"
)

// Types lists the recognised recurrence rules.
var Types = []Type{Daily, Weekly, Fortnightly, Monthly}

const (
	DefaultHour    = 9
	DefaultMinute  = 0
	DefaultWeekday = time.Monday
)

// Valid reports whether scheduleType is one of Types (case-insensitive).
func Valid(scheduleType string) bool {
	t := normalizeType(scheduleType)
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// ComputeNextRun returns the next execution instant for a schedule, strictly
// after from.
//
//   - daily: next HH:MM after from (today or tomorrow)
//   - weekly, fortnightly: next scheduleDay at HH:MM on or after from
//   - monthly: first scheduleDay of the month following from's month
//   - anything else: tomorrow at HH:MM
func ComputeNextRun(scheduleType, scheduleDay, scheduleTime string, from time.Time) time.Time {
	hour, minute := ParseTime(scheduleTime)

	switch normalizeType(scheduleType) {
	case Daily:
		return dailySchedule(hour, minute).Next(from)
	case Weekly, Fortnightly:
		return weeklySchedule(hour, minute, ParseWeekday(scheduleDay)).Next(from)
	case Monthly:
		firstOfNext := time.Date(from.Year(), from.Month()+1, 1, 0, 0, 0, 0, from.Location())
		return weeklySchedule(hour, minute, ParseWeekday(scheduleDay)).Next(firstOfNext.Add(-time.Nanosecond))
	default:
		return time.Date(from.Year(), from.Month(), from.Day()+1, hour, minute, 0, 0, from.Location())
	}
}

// NextAfterRun returns the next execution instant after an agent ran at
// executedAt. It equals ComputeNextRun except for fortnightly schedules,
// which skip one weekly occurrence so that on-time runs are 14 days apart.
func NextAfterRun(scheduleType, scheduleDay, scheduleTime string, executedAt time.Time) time.Time {
	next := ComputeNextRun(scheduleType, scheduleDay, scheduleTime, executedAt)
	if normalizeType(scheduleType) == Fortnightly {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// ParseTime parses an HH:MM 24-hour string. Missing or malformed values
// yield 09:00.
func ParseTime(s string) (hour, minute int) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return DefaultHour, DefaultMinute
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return DefaultHour, DefaultMinute
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return DefaultHour, DefaultMinute
	}
	return h, m
}

// ParseWeekday maps a weekday name (full or three-letter, any case) to a
// time.Weekday. Unknown names yield Monday.
func ParseWeekday(s string) time.Weekday {
	name := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || (len(name) == 3 && strings.HasPrefix(full, name)) {
			return d
		}
	}
	return DefaultWeekday
}

func normalizeType(s string) Type {
	return Type(strings.ToLower(strings.TrimSpace(s)))
}

// Schedules are built from standard cron specs so Next keeps from's location.
func dailySchedule(hour, minute int) cron.Schedule {
	return mustParse(fmt.Sprintf("%d %d * * *", minute, hour))
}

func weeklySchedule(hour, minute int, day time.Weekday) cron.Schedule {
	return mustParse(fmt.Sprintf("%d %d * * %d", minute, hour, int(day)))
}

func mustParse(spec string) cron.Schedule {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		// Specs are generated from range-checked values.
		panic(fmt.Sprintf("cadence: invalid generated spec %q: %v", spec, err))
	}
	return schedule
}
