package schedule

import (
	"time"

	"github.com/jonesrussell/quartz/internal/dateutil"
	"github.com/jonesrussell/quartz/internal/domain"
)

// calendarIntervalFireTimeAfter steps from the start time by whole calendar
// units. Month and year steps preserve the start's day-of-month when the
// target month has it, clamping to the month's last day otherwise, so a
// schedule anchored at month-end stays at month-end.
func calendarIntervalFireTimeAfter(t *domain.Trigger, after time.Time) *time.Time {
	c := t.CalendarInterval
	loc := c.Loc()
	start := t.StartTime.In(loc)
	if after.Before(start) {
		fire := t.StartTime
		return &fire
	}

	var fire time.Time
	switch c.Unit {
	case domain.IntervalSecond, domain.IntervalMinute, domain.IntervalHour:
		step := fixedUnitDuration(c.Unit) * time.Duration(c.Interval)
		n := int64(after.Sub(start)/step) + 1
		fire = start.Add(time.Duration(n) * step)
	case domain.IntervalDay, domain.IntervalWeek:
		days := c.Interval
		if c.Unit == domain.IntervalWeek {
			days *= 7
		}
		// Coarse jump, then settle: day lengths vary across DST.
		n := int(after.Sub(start).Hours()/24)/days - 1
		if n < 0 {
			n = 0
		}
		fire = addDaysWall(start, n*days)
		for !fire.After(after) {
			n++
			fire = addDaysWall(start, n*days)
		}
	case domain.IntervalMonth:
		months := monthsBetween(start, after.In(loc))/c.Interval - 1
		if months < 0 {
			months = 0
		}
		fire = addMonthsClamped(start, months*c.Interval)
		for !fire.After(after) {
			months++
			fire = addMonthsClamped(start, months*c.Interval)
		}
	case domain.IntervalYear:
		years := (after.In(loc).Year()-start.Year())/c.Interval - 1
		if years < 0 {
			years = 0
		}
		fire = addMonthsClamped(start, years*c.Interval*12)
		for !fire.After(after) {
			years++
			fire = addMonthsClamped(start, years*c.Interval*12)
		}
	default:
		return nil
	}
	return &fire
}

func fixedUnitDuration(u domain.IntervalUnit) time.Duration {
	switch u {
	case domain.IntervalMinute:
		return time.Minute
	case domain.IntervalHour:
		return time.Hour
	default:
		return time.Second
	}
}

// addDaysWall adds whole days keeping the wall-clock time of day.
func addDaysWall(t time.Time, days int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+days,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// addMonthsClamped adds months preserving the anchor's day-of-month when the
// target month has it, otherwise landing on the target's last day.
func addMonthsClamped(anchor time.Time, months int) time.Time {
	year := anchor.Year()
	month := int(anchor.Month()) + months
	year += (month - 1) / 12
	month = (month-1)%12 + 1

	day := anchor.Day()
	if last := dateutil.LastDayOfMonth(year, time.Month(month)); day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
}

func monthsBetween(a, b time.Time) int {
	m := (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
	if m < 0 {
		return 0
	}
	return m
}
