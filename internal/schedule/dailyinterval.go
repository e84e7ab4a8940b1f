package schedule

import (
	"time"

	"github.com/jonesrussell/quartz/internal/domain"
)

// dailySearchDayLimit bounds the day scan: with any weekday enabled a match
// is found within a week, so a bigger horizon only covers degenerate sets.
const dailySearchDayLimit = 62

// dailyFireTimeAfter finds the next instant within the daily window on an
// enabled weekday, strictly after the given time. The window end is
// inclusive: a step landing exactly on it fires.
func dailyFireTimeAfter(t *domain.Trigger, after time.Time) *time.Time {
	d := t.DailyTimeInterval
	if d.RepeatCount != domain.RepeatIndefinitely && d.TimesTriggered > d.RepeatCount {
		return nil
	}

	loc := d.Loc()
	if after.Before(t.StartTime) {
		after = t.StartTime.Add(-time.Millisecond)
	}
	// cursor is the earliest instant eligible to fire (inclusive).
	cursor := after.In(loc).Add(time.Millisecond)

	for i := 0; i < dailySearchDayLimit; i++ {
		if !d.FiresOn(cursor.Weekday()) {
			cursor = startOfNextDay(cursor, loc)
			continue
		}

		windowStart := d.StartTimeOfDay.On(cursor, loc)
		windowEnd := d.EndTimeOfDay.On(cursor, loc)

		var fire time.Time
		if !cursor.After(windowStart) {
			fire = windowStart
		} else {
			step := d.IntervalDuration()
			n := int64((cursor.Sub(windowStart) + step - 1) / step)
			fire = windowStart.Add(time.Duration(n) * step)
		}

		if fire.After(windowEnd) {
			cursor = startOfNextDay(cursor, loc)
			continue
		}
		return &fire
	}
	return nil
}

func startOfNextDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
}
