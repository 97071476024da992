package service

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/unclebandit/wabroadcast-backend/internal/model"
)

// Recurrence lookahead windows. A weekly config with no matching day inside
// the window, or a monthly config whose dates never land on a valid calendar
// day, yields no next run rather than an error.
const (
	weeklyScanDays     = 7
	monthlyScanMonths  = 3
	defaultSendTime    = "09:00"
)

// NextRun computes when a recurring schedule should next fire, strictly after
// now. A campaign due at exactly now is deferred to the next occurrence, so a
// tick never double-fires it. Returns nil for manual schedules and for
// configs with no future occurrence inside the scan window.
func NextRun(scheduleType string, cfg model.ScheduleConfig, sendTime string, now time.Time) *time.Time {
	switch scheduleType {
	case model.ScheduleTypeInterval:
		return nextInterval(cfg, sendTime, now)
	case model.ScheduleTypeWeekly:
		return nextWeekly(cfg, sendTime, now)
	case model.ScheduleTypeMonthly:
		return nextMonthly(cfg, sendTime, now)
	}
	return nil // manual and unknown types never fire on their own
}

func nextInterval(cfg model.ScheduleConfig, sendTime string, now time.Time) *time.Time {
	if cfg.Value <= 0 {
		return nil
	}
	switch cfg.Unit {
	case "hours":
		t := now.Add(time.Duration(cfg.Value) * time.Hour)
		return &t
	case "days":
		hour, min := parseClock(sendTime)
		t := now.AddDate(0, 0, cfg.Value)
		t = time.Date(t.Year(), t.Month(), t.Day(), hour, min, 0, 0, now.Location())
		return &t
	}
	return nil
}

func nextWeekly(cfg model.ScheduleConfig, sendTime string, now time.Time) *time.Time {
	dayTimes := cfg.DayTimes
	if len(dayTimes) == 0 {
		// legacy config: a plain list of weekdays at the default send time
		dayTimes = map[int]string{}
		for _, d := range cfg.Days {
			dayTimes[d] = sendTime
		}
	}
	if len(dayTimes) == 0 {
		return nil
	}

	// Scan today plus the next 7 days; a same-day time already in the past is
	// skipped here and caught again when the scan wraps into next week.
	for i := 0; i <= weeklyScanDays; i++ {
		day := now.AddDate(0, 0, i)
		clock, ok := dayTimes[int(day.Weekday())]
		if !ok {
			continue
		}
		hour, min := parseClockOr(clock, sendTime)
		candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, min, 0, 0, now.Location())
		if candidate.After(now) {
			return &candidate
		}
	}
	return nil
}

func nextMonthly(cfg model.ScheduleConfig, sendTime string, now time.Time) *time.Time {
	dateTimes := cfg.DateTimes
	if len(dateTimes) == 0 {
		dateTimes = map[int]string{}
		for _, d := range cfg.Dates {
			dateTimes[d] = sendTime
		}
	}
	if len(dateTimes) == 0 {
		return nil
	}

	dates := make([]int, 0, len(dateTimes))
	for d := range dateTimes {
		dates = append(dates, d)
	}
	sort.Ints(dates)

	// Current month plus the next two. A date past a short month's length
	// (e.g. 31 in February) is no match for that month, not a crash.
	for m := 0; m < monthlyScanMonths; m++ {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, m, 0)
		for _, d := range dates {
			if d < 1 || d > daysInMonth(monthStart) {
				continue
			}
			hour, min := parseClockOr(dateTimes[d], sendTime)
			candidate := time.Date(monthStart.Year(), monthStart.Month(), d, hour, min, 0, 0, now.Location())
			if candidate.After(now) {
				return &candidate
			}
		}
	}
	return nil
}

func daysInMonth(t time.Time) int {
	firstOfNext := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1).Day()
}

// parseClock reads "HH:MM", falling back to 09:00 on malformed input.
func parseClock(clock string) (int, int) {
	return parseClockOr(clock, defaultSendTime)
}

func parseClockOr(clock, fallback string) (int, int) {
	hour, min, ok := splitClock(clock)
	if ok {
		return hour, min
	}
	hour, min, ok = splitClock(fallback)
	if ok {
		return hour, min
	}
	return 9, 0
}

func splitClock(clock string) (int, int, bool) {
	parts := strings.SplitN(strings.TrimSpace(clock), ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	min, err := strconv.Atoi(parts[1])
	if err != nil || min < 0 || min > 59 {
		return 0, 0, false
	}
	return hour, min, true
}
