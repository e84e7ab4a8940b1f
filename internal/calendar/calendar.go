// Package calendar provides exclusion calendars: immutable predicates that
// remove instants from a trigger's eligible fire-time set. Calendars chain
// through an optional base calendar; an instant is included only when every
// calendar in the chain includes it.
package calendar

import (
	"time"
)

// Calendar decides whether an instant is eligible for firing.
type Calendar interface {
	// IsTimeIncluded reports whether t survives this calendar and its base
	// chain.
	IsTimeIncluded(t time.Time) bool

	// NextIncludedTime returns the first instant after t included by this
	// calendar and its base chain. The zero time means no such instant was
	// found within the search horizon.
	NextIncludedTime(t time.Time) time.Time

	// Base returns the chained calendar, or nil.
	Base() Calendar

	// Description is a human-readable summary.
	Description() string
}

// nextIncludedScanLimit bounds the day-stepping scans so a calendar that
// excludes everything cannot loop forever.
const nextIncludedScanLimit = 366 * 5

// BaseCalendar carries the chain link, description and evaluation zone the
// concrete calendars embed.
type BaseCalendar struct {
	BaseCal  Calendar
	Desc     string
	Location *time.Location
}

// Base returns the chained calendar.
func (b *BaseCalendar) Base() Calendar { return b.BaseCal }

// Description returns the summary text.
func (b *BaseCalendar) Description() string { return b.Desc }

// Loc returns the evaluation zone, defaulting to time.Local.
func (b *BaseCalendar) Loc() *time.Location {
	if b.Location == nil {
		return time.Local
	}
	return b.Location
}

func (b *BaseCalendar) baseIncludes(t time.Time) bool {
	return b.BaseCal == nil || b.BaseCal.IsTimeIncluded(t)
}

// IsTimeIncluded on the bare base calendar only consults the chain.
func (b *BaseCalendar) IsTimeIncluded(t time.Time) bool {
	return b.baseIncludes(t)
}

// NextIncludedTime on the bare base calendar delegates to the chain.
func (b *BaseCalendar) NextIncludedTime(t time.Time) time.Time {
	if b.BaseCal == nil {
		return t.Add(time.Millisecond)
	}
	return b.BaseCal.NextIncludedTime(t)
}

// scanDays steps day by day from t until included(t) holds for both the
// day-level predicate and the base chain, re-testing after each jump so
// chained exclusions reach a common fixed point.
func scanDays(t time.Time, loc *time.Location, included func(time.Time) bool) time.Time {
	for i := 0; i < nextIncludedScanLimit; i++ {
		if included(t) {
			return t
		}
		day := t.In(loc)
		t = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
	}
	return time.Time{}
}

// AnnualCalendar excludes a set of days of the year (month + day), every year.
type AnnualCalendar struct {
	BaseCalendar
	// ExcludedDays holds the excluded (month, day) pairs.
	ExcludedDays []MonthDay
}

// MonthDay is a recurring day of the year.
type MonthDay struct {
	Month time.Month
	Day   int
}

// IsDayExcluded reports whether the given month/day is excluded.
func (c *AnnualCalendar) IsDayExcluded(month time.Month, day int) bool {
	for _, d := range c.ExcludedDays {
		if d.Month == month && d.Day == day {
			return true
		}
	}
	return false
}

// IsTimeIncluded implements Calendar.
func (c *AnnualCalendar) IsTimeIncluded(t time.Time) bool {
	if !c.baseIncludes(t) {
		return false
	}
	local := t.In(c.Loc())
	return !c.IsDayExcluded(local.Month(), local.Day())
}

// NextIncludedTime implements Calendar.
func (c *AnnualCalendar) NextIncludedTime(t time.Time) time.Time {
	return scanDays(t, c.Loc(), c.IsTimeIncluded)
}

// WeeklyCalendar excludes a set of weekdays; by default Saturday and Sunday.
type WeeklyCalendar struct {
	BaseCalendar
	ExcludedDays []time.Weekday
}

// NewWeeklyCalendar builds a weekly calendar with the weekend excluded.
func NewWeeklyCalendar(base Calendar, loc *time.Location) *WeeklyCalendar {
	return &WeeklyCalendar{
		BaseCalendar: BaseCalendar{BaseCal: base, Location: loc},
		ExcludedDays: []time.Weekday{time.Saturday, time.Sunday},
	}
}

// IsDayExcluded reports whether the weekday is excluded.
func (c *WeeklyCalendar) IsDayExcluded(day time.Weekday) bool {
	for _, d := range c.ExcludedDays {
		if d == day {
			return true
		}
	}
	return false
}

// IsTimeIncluded implements Calendar.
func (c *WeeklyCalendar) IsTimeIncluded(t time.Time) bool {
	if !c.baseIncludes(t) {
		return false
	}
	return !c.IsDayExcluded(t.In(c.Loc()).Weekday())
}

// NextIncludedTime implements Calendar.
func (c *WeeklyCalendar) NextIncludedTime(t time.Time) time.Time {
	return scanDays(t, c.Loc(), c.IsTimeIncluded)
}

// MonthlyCalendar excludes a set of days of the month, every month.
type MonthlyCalendar struct {
	BaseCalendar
	ExcludedDays []int
}

// IsDayExcluded reports whether the day of month is excluded.
func (c *MonthlyCalendar) IsDayExcluded(day int) bool {
	for _, d := range c.ExcludedDays {
		if d == day {
			return true
		}
	}
	return false
}

// IsTimeIncluded implements Calendar.
func (c *MonthlyCalendar) IsTimeIncluded(t time.Time) bool {
	if !c.baseIncludes(t) {
		return false
	}
	return !c.IsDayExcluded(t.In(c.Loc()).Day())
}

// NextIncludedTime implements Calendar.
func (c *MonthlyCalendar) NextIncludedTime(t time.Time) time.Time {
	return scanDays(t, c.Loc(), c.IsTimeIncluded)
}

// HolidayCalendar excludes specific dates, whole days.
type HolidayCalendar struct {
	BaseCalendar
	// ExcludedDates are compared by year, month and day in the calendar's
	// zone.
	ExcludedDates []time.Time
}

// AddExcludedDate records a holiday.
func (c *HolidayCalendar) AddExcludedDate(d time.Time) {
	c.ExcludedDates = append(c.ExcludedDates, d)
}

// IsTimeIncluded implements Calendar.
func (c *HolidayCalendar) IsTimeIncluded(t time.Time) bool {
	if !c.baseIncludes(t) {
		return false
	}
	local := t.In(c.Loc())
	for _, d := range c.ExcludedDates {
		dl := d.In(c.Loc())
		if dl.Year() == local.Year() && dl.Month() == local.Month() && dl.Day() == local.Day() {
			return false
		}
	}
	return true
}

// NextIncludedTime implements Calendar.
func (c *HolidayCalendar) NextIncludedTime(t time.Time) time.Time {
	return scanDays(t, c.Loc(), c.IsTimeIncluded)
}

// DailyCalendar excludes a wall-clock window every day, or with Invert set,
// everything outside the window.
type DailyCalendar struct {
	BaseCalendar
	RangeStart DayTime
	RangeEnd   DayTime
	Invert     bool
}

// DayTime is a wall-clock instant within a day.
type DayTime struct {
	Hour, Minute, Second int
}

func (d DayTime) secondsOfDay() int { return d.Hour*3600 + d.Minute*60 + d.Second }

// IsTimeIncluded implements Calendar.
func (c *DailyCalendar) IsTimeIncluded(t time.Time) bool {
	if !c.baseIncludes(t) {
		return false
	}
	local := t.In(c.Loc())
	sec := local.Hour()*3600 + local.Minute()*60 + local.Second()
	inRange := sec >= c.RangeStart.secondsOfDay() && sec < c.RangeEnd.secondsOfDay()
	if c.Invert {
		return inRange
	}
	return !inRange
}

// NextIncludedTime implements Calendar.
func (c *DailyCalendar) NextIncludedTime(t time.Time) time.Time {
	loc := c.Loc()
	for i := 0; i < nextIncludedScanLimit; i++ {
		if c.IsTimeIncluded(t) {
			return t
		}
		local := t.In(loc)
		if c.Invert {
			// Jump to the range start, today or tomorrow.
			start := time.Date(local.Year(), local.Month(), local.Day(),
				c.RangeStart.Hour, c.RangeStart.Minute, c.RangeStart.Second, 0, loc)
			if !start.After(t) {
				start = start.AddDate(0, 0, 1)
			}
			t = start
			continue
		}
		// Jump past the excluded window.
		t = time.Date(local.Year(), local.Month(), local.Day(),
			c.RangeEnd.Hour, c.RangeEnd.Minute, c.RangeEnd.Second, 0, loc)
		if !t.After(local) {
			t = t.AddDate(0, 0, 1)
		}
	}
	return time.Time{}
}
