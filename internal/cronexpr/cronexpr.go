// Package cronexpr parses and evaluates 7-field cron expressions:
//
//	seconds minutes hours day-of-month month day-of-week [year]
//
// supporting the ? * , - / L W # operators, named months and weekdays, and
// time-zone aware evaluation. Day-of-week is 1-based with 1 = Sunday. One of
// day-of-month and day-of-week must be '?'.
//
// Daylight-saving rules: a fire time that falls into a spring-forward gap is
// moved to the first existing local instant at or after it; a fall-back
// repetition fires only at the first occurrence of the ambiguous local time.
package cronexpr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/quartz/internal/dateutil"
)

// Expression is a parsed cron expression. It is immutable and safe for
// concurrent use.
type Expression struct {
	source   string
	loc      *time.Location
	seconds  fieldSet
	minutes  fieldSet
	hours    fieldSet
	months   fieldSet
	years    fieldSet
	dom      domField
	dow      dowField
}

// ParseError describes a malformed expression, naming the offending field.
type ParseError struct {
	Expr  string
	Field string
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid cron expression %q: field %s: %s", e.Expr, e.Field, e.Msg)
}

func parseErr(expr, field, format string, args ...any) error {
	return &ParseError{Expr: expr, Field: field, Msg: fmt.Sprintf(format, args...)}
}

var monthNames = map[string]int{
	"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
	"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
}

var dayNames = map[string]int{
	"SUN": 1, "MON": 2, "TUE": 3, "WED": 4, "THU": 5, "FRI": 6, "SAT": 7,
}

// fieldSet is a plain numeric field: either "every value" or a value set.
type fieldSet struct {
	all bool
	set map[int]bool
}

func (f fieldSet) matches(v int) bool { return f.all || f.set[v] }

// domField is the day-of-month field with its special forms.
type domField struct {
	fieldSet
	unspecified bool // '?'
	last        bool // 'L' (optionally offset)
	lastOffset  int  // 'L-n'
	weekday     bool // 'W' modifier ('15W' or 'LW')
	weekdayDay  int  // day the W applies to; last day when combined with L
}

// dowField is the day-of-week field with its special forms.
type dowField struct {
	fieldSet
	unspecified bool // '?'
	lastOfMonth bool // 'nL': last such weekday of the month
	lastWeekday int
	nth         int // 'd#n': the nth such weekday of the month (0 = unset)
	nthWeekday  int
}

// Parse parses expr for evaluation in loc. A nil loc means time.Local.
func Parse(expr string, loc *time.Location) (*Expression, error) {
	if loc == nil {
		loc = time.Local
	}
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) < 6 || len(fields) > 7 {
		return nil, parseErr(expr, "count", "expected 6 or 7 fields, got %d", len(fields))
	}

	e := &Expression{source: expr, loc: loc}
	var err error
	if e.seconds, err = parseSet(expr, "seconds", fields[0], 0, 59, nil); err != nil {
		return nil, err
	}
	if e.minutes, err = parseSet(expr, "minutes", fields[1], 0, 59, nil); err != nil {
		return nil, err
	}
	if e.hours, err = parseSet(expr, "hours", fields[2], 0, 23, nil); err != nil {
		return nil, err
	}
	if e.dom, err = parseDOM(expr, fields[3]); err != nil {
		return nil, err
	}
	if e.months, err = parseSet(expr, "month", fields[4], 1, 12, monthNames); err != nil {
		return nil, err
	}
	if e.dow, err = parseDOW(expr, fields[5]); err != nil {
		return nil, err
	}
	if len(fields) == 7 {
		if e.years, err = parseSet(expr, "year", fields[6], dateutil.MinYear, dateutil.MaxYear, nil); err != nil {
			return nil, err
		}
	} else {
		e.years = fieldSet{all: true}
	}

	if !e.dom.unspecified && !e.dow.unspecified {
		return nil, parseErr(expr, "day", "one of day-of-month and day-of-week must be '?'")
	}
	if e.dom.unspecified && e.dow.unspecified {
		return nil, parseErr(expr, "day", "day-of-month and day-of-week cannot both be '?'")
	}
	return e, nil
}

// MustParse is Parse for statically-known expressions; it panics on error.
func MustParse(expr string, loc *time.Location) *Expression {
	e, err := Parse(expr, loc)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the source expression.
func (e *Expression) String() string { return e.source }

// Location returns the evaluation zone.
func (e *Expression) Location() *time.Location { return e.loc }

// parseSet parses a plain numeric field: comma list of '*', single values,
// ranges, each with an optional '/step'.
func parseSet(expr, name, s string, min, max int, names map[string]int) (fieldSet, error) {
	if s == "*" {
		return fieldSet{all: true}, nil
	}
	out := fieldSet{set: make(map[int]bool)}
	for _, part := range strings.Split(s, ",") {
		if err := parseRange(expr, name, part, min, max, names, out.set); err != nil {
			return fieldSet{}, err
		}
	}
	return out, nil
}

func parseRange(expr, name, part string, min, max int, names map[string]int, into map[int]bool) error {
	step := 1
	if idx := strings.IndexByte(part, '/'); idx >= 0 {
		var err error
		step, err = strconv.Atoi(part[idx+1:])
		if err != nil || step <= 0 {
			return parseErr(expr, name, "bad step in %q", part)
		}
		part = part[:idx]
	}

	lo, hi := min, max
	switch {
	case part == "*" || part == "":
		// full range; bare "/n" behaves as "*/n"
	case strings.Contains(part, "-"):
		bounds := strings.SplitN(part, "-", 2)
		var err error
		if lo, err = parseValue(bounds[0], names); err != nil {
			return parseErr(expr, name, "bad range start %q", bounds[0])
		}
		if hi, err = parseValue(bounds[1], names); err != nil {
			return parseErr(expr, name, "bad range end %q", bounds[1])
		}
	default:
		v, err := parseValue(part, names)
		if err != nil {
			return parseErr(expr, name, "bad value %q", part)
		}
		lo = v
		if step == 1 {
			hi = v
		}
	}

	if lo < min || hi > max {
		return parseErr(expr, name, "value out of range [%d,%d] in %q", min, max, part)
	}
	if hi < lo {
		// wrapping range, e.g. NOV-FEB
		for v := lo; v <= max; v += step {
			into[v] = true
		}
		for v := min; v <= hi; v += step {
			into[v] = true
		}
		return nil
	}
	for v := lo; v <= hi; v += step {
		into[v] = true
	}
	return nil
}

func parseValue(s string, names map[string]int) (int, error) {
	if names != nil {
		if v, ok := names[strings.ToUpper(s)]; ok {
			return v, nil
		}
	}
	return strconv.Atoi(s)
}

func parseDOM(expr, s string) (domField, error) {
	f := domField{}
	upper := strings.ToUpper(s)
	switch {
	case upper == "?":
		f.unspecified = true
		return f, nil
	case upper == "LW":
		f.last = true
		f.weekday = true
		return f, nil
	case upper == "L":
		f.last = true
		return f, nil
	case strings.HasPrefix(upper, "L-"):
		off, err := strconv.Atoi(upper[2:])
		if err != nil || off < 0 || off > 30 {
			return f, parseErr(expr, "day-of-month", "bad offset in %q", s)
		}
		f.last = true
		f.lastOffset = off
		return f, nil
	case strings.HasSuffix(upper, "W"):
		day, err := strconv.Atoi(upper[:len(upper)-1])
		if err != nil || day < 1 || day > 31 {
			return f, parseErr(expr, "day-of-month", "bad weekday-nearest day in %q", s)
		}
		f.weekday = true
		f.weekdayDay = day
		return f, nil
	default:
		set, err := parseSet(expr, "day-of-month", s, 1, 31, nil)
		if err != nil {
			return f, err
		}
		f.fieldSet = set
		return f, nil
	}
}

func parseDOW(expr, s string) (dowField, error) {
	f := dowField{}
	upper := strings.ToUpper(s)
	switch {
	case upper == "?":
		f.unspecified = true
		return f, nil
	case upper == "L": // bare L means Saturday
		f.lastOfMonth = true
		f.lastWeekday = 7
		return f, nil
	case strings.HasSuffix(upper, "L"):
		day, err := parseValue(upper[:len(upper)-1], dayNames)
		if err != nil || day < 1 || day > 7 {
			return f, parseErr(expr, "day-of-week", "bad last-day value in %q", s)
		}
		f.lastOfMonth = true
		f.lastWeekday = day
		return f, nil
	case strings.Contains(upper, "#"):
		parts := strings.SplitN(upper, "#", 2)
		day, err := parseValue(parts[0], dayNames)
		if err != nil || day < 1 || day > 7 {
			return f, parseErr(expr, "day-of-week", "bad weekday in %q", s)
		}
		nth, err := strconv.Atoi(parts[1])
		if err != nil || nth < 1 || nth > 5 {
			return f, parseErr(expr, "day-of-week", "nth must be in [1,5] in %q", s)
		}
		f.nth = nth
		f.nthWeekday = day
		return f, nil
	default:
		set, err := parseSet(expr, "day-of-week", s, 1, 7, dayNames)
		if err != nil {
			return f, err
		}
		f.fieldSet = set
		return f, nil
	}
}

// cronWeekday converts Go's 0-based Sunday to the 1-based cron convention.
func cronWeekday(d time.Weekday) int { return int(d) + 1 }

// dayMatches applies the dom/dow fields, including L, W and #, to the date
// carried by t.
func (e *Expression) dayMatches(t time.Time) bool {
	day := t.Day()
	lastDay := dateutil.LastDayOfMonth(t.Year(), t.Month())

	if !e.dom.unspecified {
		switch {
		case e.dom.last && e.dom.weekday: // LW
			return day == nearestWeekday(t.Year(), t.Month(), lastDay, lastDay)
		case e.dom.last:
			return day == lastDay-e.dom.lastOffset
		case e.dom.weekday:
			return day == nearestWeekday(t.Year(), t.Month(), e.dom.weekdayDay, lastDay)
		default:
			return e.dom.matches(day)
		}
	}

	wd := cronWeekday(t.Weekday())
	switch {
	case e.dow.lastOfMonth:
		return wd == e.dow.lastWeekday && day+7 > lastDay
	case e.dow.nth > 0:
		return wd == e.dow.nthWeekday && (day-1)/7+1 == e.dow.nth
	default:
		return e.dow.matches(wd)
	}
}

// nearestWeekday returns the day of month closest to target that is neither
// Saturday nor Sunday, without leaving the month.
func nearestWeekday(year int, month time.Month, target, lastDay int) int {
	if target > lastDay {
		target = lastDay
	}
	switch time.Date(year, month, target, 0, 0, 0, 0, time.UTC).Weekday() {
	case time.Saturday:
		if target == 1 {
			return 3 // roll forward to Monday
		}
		return target - 1
	case time.Sunday:
		if target == lastDay {
			return target - 2
		}
		return target + 1
	default:
		return target
	}
}

// IsSatisfiedBy reports whether t (truncated to the second) is a fire time.
func (e *Expression) IsSatisfiedBy(t time.Time) bool {
	t = t.In(e.loc)
	return e.years.matches(t.Year()) &&
		e.months.matches(int(t.Month())) &&
		e.dayMatches(t) &&
		e.hours.matches(t.Hour()) &&
		e.minutes.matches(t.Minute()) &&
		e.seconds.matches(t.Second())
}

// NextAfter returns the first fire time strictly after t, or false when the
// expression has no further fire times before the supported year bound.
func (e *Expression) NextAfter(after time.Time) (time.Time, bool) {
	// Advance to the next whole second.
	t := after.In(e.loc)
	if t.Nanosecond() > 0 {
		t = t.Add(time.Second - time.Duration(t.Nanosecond())*time.Nanosecond)
	} else {
		t = t.Add(time.Second)
	}

	for {
		if t.Year() > dateutil.MaxYear {
			return time.Time{}, false
		}
		if !e.years.matches(t.Year()) {
			t = time.Date(t.Year()+1, time.January, 1, 0, 0, 0, 0, e.loc)
			continue
		}
		if !e.months.matches(int(t.Month())) {
			t = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, e.loc)
			continue
		}
		if !e.dayMatches(t) {
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, e.loc)
			continue
		}
		if !e.hours.matches(t.Hour()) {
			next := time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, e.loc)
			// A spring-forward gap swallowed the requested hour. When the
			// missing hour is a scheduled one, fire at the first local
			// instant that exists after the gap.
			if next.Day() == t.Day() && next.Hour() != t.Hour()+1 &&
				e.hours.matches(t.Hour()+1) && next.After(after) {
				return next, true
			}
			t = next
			continue
		}
		if !e.minutes.matches(t.Minute()) {
			t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute()+1, 0, 0, e.loc)
			continue
		}
		if !e.seconds.matches(t.Second()) {
			t = t.Add(time.Second)
			continue
		}
		// A fall-back repetition makes some wall-clock readings ambiguous;
		// constructing the earlier occurrence could move backwards relative
		// to the caller's instant. Fire only forward.
		if !t.After(after) {
			t = t.Add(time.Second)
			continue
		}
		return t, true
	}
}
