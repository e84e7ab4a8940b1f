package calendar_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/quartz/internal/calendar"
)

func TestAnnualCalendar(t *testing.T) {
	t.Parallel()

	cal := &calendar.AnnualCalendar{
		BaseCalendar: calendar.BaseCalendar{Location: time.UTC, Desc: "no christmas"},
		ExcludedDays: []calendar.MonthDay{{Month: time.December, Day: 25}},
	}

	assert.False(t, cal.IsTimeIncluded(time.Date(2026, time.December, 25, 12, 0, 0, 0, time.UTC)))
	assert.False(t, cal.IsTimeIncluded(time.Date(2027, time.December, 25, 12, 0, 0, 0, time.UTC)), "exclusion recurs every year")
	assert.True(t, cal.IsTimeIncluded(time.Date(2026, time.December, 24, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "no christmas", cal.Description())

	next := cal.NextIncludedTime(time.Date(2026, time.December, 25, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, time.December, 26, 0, 0, 0, 0, time.UTC), next)
}

func TestWeeklyCalendar_DefaultWeekend(t *testing.T) {
	t.Parallel()

	cal := calendar.NewWeeklyCalendar(nil, time.UTC)

	saturday := time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
	monday := time.Date(2026, time.March, 16, 10, 0, 0, 0, time.UTC)

	assert.False(t, cal.IsTimeIncluded(saturday))
	assert.False(t, cal.IsTimeIncluded(sunday))
	assert.True(t, cal.IsTimeIncluded(monday))

	next := cal.NextIncludedTime(saturday)
	assert.Equal(t, time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC), next)
}

func TestMonthlyCalendar(t *testing.T) {
	t.Parallel()

	cal := &calendar.MonthlyCalendar{
		BaseCalendar: calendar.BaseCalendar{Location: time.UTC},
		ExcludedDays: []int{1, 15},
	}

	assert.False(t, cal.IsTimeIncluded(time.Date(2026, time.March, 1, 8, 0, 0, 0, time.UTC)))
	assert.False(t, cal.IsTimeIncluded(time.Date(2026, time.April, 15, 8, 0, 0, 0, time.UTC)))
	assert.True(t, cal.IsTimeIncluded(time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)))
}

func TestHolidayCalendar(t *testing.T) {
	t.Parallel()

	cal := &calendar.HolidayCalendar{
		BaseCalendar: calendar.BaseCalendar{Location: time.UTC},
	}
	cal.AddExcludedDate(time.Date(2026, time.July, 4, 0, 0, 0, 0, time.UTC))

	// The whole day is excluded, any time of day.
	assert.False(t, cal.IsTimeIncluded(time.Date(2026, time.July, 4, 0, 0, 1, 0, time.UTC)))
	assert.False(t, cal.IsTimeIncluded(time.Date(2026, time.July, 4, 23, 59, 59, 0, time.UTC)))
	assert.True(t, cal.IsTimeIncluded(time.Date(2026, time.July, 5, 0, 0, 0, 0, time.UTC)))
	assert.True(t, cal.IsTimeIncluded(time.Date(2027, time.July, 4, 12, 0, 0, 0, time.UTC)), "holidays do not recur")
}

func TestDailyCalendar(t *testing.T) {
	t.Parallel()

	// Exclude 22:00-06:00 is expressed as two windows in practice; here a
	// simple 01:00-05:00 maintenance window.
	cal := &calendar.DailyCalendar{
		BaseCalendar: calendar.BaseCalendar{Location: time.UTC},
		RangeStart:   calendar.DayTime{Hour: 1},
		RangeEnd:     calendar.DayTime{Hour: 5},
	}

	assert.False(t, cal.IsTimeIncluded(time.Date(2026, time.March, 10, 3, 0, 0, 0, time.UTC)))
	assert.True(t, cal.IsTimeIncluded(time.Date(2026, time.March, 10, 5, 0, 0, 0, time.UTC)), "range end is exclusive")
	assert.True(t, cal.IsTimeIncluded(time.Date(2026, time.March, 10, 0, 59, 59, 0, time.UTC)))

	next := cal.NextIncludedTime(time.Date(2026, time.March, 10, 3, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, time.March, 10, 5, 0, 0, 0, time.UTC), next)
}

func TestDailyCalendar_Inverted(t *testing.T) {
	t.Parallel()

	// Inverted: only 09:00-17:00 is included.
	cal := &calendar.DailyCalendar{
		BaseCalendar: calendar.BaseCalendar{Location: time.UTC},
		RangeStart:   calendar.DayTime{Hour: 9},
		RangeEnd:     calendar.DayTime{Hour: 17},
		Invert:       true,
	}

	assert.True(t, cal.IsTimeIncluded(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)))
	assert.False(t, cal.IsTimeIncluded(time.Date(2026, time.March, 10, 18, 0, 0, 0, time.UTC)))

	// After hours jumps to tomorrow's window start.
	next := cal.NextIncludedTime(time.Date(2026, time.March, 10, 18, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, time.March, 11, 9, 0, 0, 0, time.UTC), next)
}

func TestCronCalendar(t *testing.T) {
	t.Parallel()

	// Mask out the hours before 08:00.
	cal, err := calendar.NewCronCalendar(nil, "* * 0-7 ? * *", time.UTC)
	require.NoError(t, err)

	assert.False(t, cal.IsTimeIncluded(time.Date(2026, time.March, 10, 6, 30, 0, 0, time.UTC)))
	assert.True(t, cal.IsTimeIncluded(time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC)))

	next := cal.NextIncludedTime(time.Date(2026, time.March, 10, 6, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC), next)
}

func TestCronCalendar_BadExpression(t *testing.T) {
	t.Parallel()

	_, err := calendar.NewCronCalendar(nil, "not a cron", time.UTC)
	require.Error(t, err)
}

func TestCalendarChaining(t *testing.T) {
	t.Parallel()

	// Weekdays only, minus a holiday: the chain ANDs the exclusions.
	holidays := &calendar.HolidayCalendar{
		BaseCalendar: calendar.BaseCalendar{Location: time.UTC},
	}
	holidays.AddExcludedDate(time.Date(2026, time.March, 17, 0, 0, 0, 0, time.UTC)) // a Tuesday

	weekdays := calendar.NewWeeklyCalendar(holidays, time.UTC)

	assert.False(t, weekdays.IsTimeIncluded(time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)), "Saturday excluded by this calendar")
	assert.False(t, weekdays.IsTimeIncluded(time.Date(2026, time.March, 17, 12, 0, 0, 0, time.UTC)), "holiday excluded through the base chain")
	assert.True(t, weekdays.IsTimeIncluded(time.Date(2026, time.March, 18, 12, 0, 0, 0, time.UTC)))
	assert.Same(t, calendar.Calendar(holidays), weekdays.Base())

	// NextIncludedTime from the Saturday before the holiday weekend settles
	// on Monday; from Monday the 16th it stays put.
	next := weekdays.NextIncludedTime(time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC), next)
}
