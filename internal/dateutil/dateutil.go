// Package dateutil provides the calendar arithmetic helpers the schedule
// evaluators and their callers share: even-unit rounding, next-multiple
// rounding, time-zone translation and field validation.
package dateutil

import (
	"time"

	"github.com/jonesrussell/quartz/internal/domain"
)

// Field bounds. Day-of-week is 1-based with 1 = Sunday.
const (
	MinYear = 1970
	MaxYear = 9999
)

// EvenHourDate rounds t up to the next even hour (13:05 -> 14:00).
func EvenHourDate(t time.Time) time.Time {
	return EvenHourDateBefore(t).Add(time.Hour)
}

// EvenHourDateBefore rounds t down to the previous even hour (13:05 -> 13:00).
func EvenHourDateBefore(t time.Time) time.Time {
	loc := t.Location()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
}

// EvenMinuteDate rounds t up to the next even minute (13:05:10 -> 13:06:00).
func EvenMinuteDate(t time.Time) time.Time {
	return EvenMinuteDateBefore(t).Add(time.Minute)
}

// EvenMinuteDateBefore rounds t down to the previous even minute.
func EvenMinuteDateBefore(t time.Time) time.Time {
	loc := t.Location()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
}

// EvenSecondDate rounds t up to the next even second.
func EvenSecondDate(t time.Time) time.Time {
	return EvenSecondDateBefore(t).Add(time.Second)
}

// EvenSecondDateBefore rounds t down to the previous even second.
func EvenSecondDateBefore(t time.Time) time.Time {
	loc := t.Location()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc)
}

// NextGivenMinuteDate rounds t up to the next multiple of base minutes past
// the hour. A base of 0 advances to the next hour boundary; a multiple that
// would reach 60 rolls up to the next hour.
//
//	11:16:41, base 20 -> 11:20:00
//	11:52:41, base 17 -> 12:00:00
//	11:17:41, base 0  -> 12:00:00
func NextGivenMinuteDate(t time.Time, base int) (time.Time, error) {
	if base < 0 || base > 59 {
		return time.Time{}, domain.ValidationErrorf("minute base must be in [0,59], got %d", base)
	}
	loc := t.Location()
	if base == 0 {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc).Add(time.Hour), nil
	}
	minute := t.Minute()
	next := minute + base - minute%base
	if next >= 60 {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc).Add(time.Hour), nil
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), next, 0, 0, loc), nil
}

// NextGivenSecondDate rounds t up to the next multiple of base seconds past
// the minute, with the same rules as NextGivenMinuteDate.
func NextGivenSecondDate(t time.Time, base int) (time.Time, error) {
	if base < 0 || base > 59 {
		return time.Time{}, domain.ValidationErrorf("second base must be in [0,59], got %d", base)
	}
	loc := t.Location()
	if base == 0 {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc).Add(time.Minute), nil
	}
	second := t.Second()
	next := second + base - second%base
	if next >= 60 {
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc).Add(time.Minute), nil
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), next, 0, loc), nil
}

// TranslateTime shifts t by the zone-offset difference between src and dst
// at the input instant, so the same wall-clock reading holds in dst.
func TranslateTime(t time.Time, src, dst *time.Location) time.Time {
	_, srcOffset := t.In(src).Zone()
	_, dstOffset := t.In(dst).Zone()
	return t.Add(-time.Duration(dstOffset-srcOffset) * time.Second)
}

// ValidateSecond checks s is in [0,59].
func ValidateSecond(s int) error {
	if s < 0 || s > 59 {
		return domain.ValidationErrorf("invalid second %d (must be in [0,59])", s)
	}
	return nil
}

// ValidateMinute checks m is in [0,59].
func ValidateMinute(m int) error {
	if m < 0 || m > 59 {
		return domain.ValidationErrorf("invalid minute %d (must be in [0,59])", m)
	}
	return nil
}

// ValidateHour checks h is in [0,23].
func ValidateHour(h int) error {
	if h < 0 || h > 23 {
		return domain.ValidationErrorf("invalid hour %d (must be in [0,23])", h)
	}
	return nil
}

// ValidateDayOfWeek checks d is in [1,7], 1 = Sunday.
func ValidateDayOfWeek(d int) error {
	if d < 1 || d > 7 {
		return domain.ValidationErrorf("invalid day of week %d (must be in [1,7], 1=Sunday)", d)
	}
	return nil
}

// ValidateDayOfMonth checks d is in [1,31].
func ValidateDayOfMonth(d int) error {
	if d < 1 || d > 31 {
		return domain.ValidationErrorf("invalid day of month %d (must be in [1,31])", d)
	}
	return nil
}

// ValidateMonth checks m is in [1,12].
func ValidateMonth(m int) error {
	if m < 1 || m > 12 {
		return domain.ValidationErrorf("invalid month %d (must be in [1,12])", m)
	}
	return nil
}

// ValidateYear checks y is in [MinYear, MaxYear].
func ValidateYear(y int) error {
	if y < MinYear || y > MaxYear {
		return domain.ValidationErrorf("invalid year %d (must be in [%d,%d])", y, MinYear, MaxYear)
	}
	return nil
}

// LastDayOfMonth returns the number of days in the month containing year/month.
func LastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1).Day()
}
