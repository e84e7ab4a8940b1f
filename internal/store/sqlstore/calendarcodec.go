package sqlstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/jonesrussell/quartz/internal/calendar"
)

// calendarKind discriminates the persisted calendar variants.
type calendarKind string

const (
	calKindAnnual  calendarKind = "ANNUAL"
	calKindWeekly  calendarKind = "WEEKLY"
	calKindMonthly calendarKind = "MONTHLY"
	calKindHoliday calendarKind = "HOLIDAY"
	calKindDaily   calendarKind = "DAILY"
	calKindCron    calendarKind = "CRON"
)

// calendarRecord is the persisted form of a calendar chain. Concrete
// exported fields keep it gob-encodable; the time.Location is carried by
// zone name.
type calendarRecord struct {
	Kind        calendarKind
	Description string
	TimeZone    string
	Base        *calendarRecord

	MonthDays     []calendar.MonthDay // ANNUAL
	Weekdays      []int               // WEEKLY
	MonthlyDays   []int               // MONTHLY
	HolidayDates  []time.Time         // HOLIDAY
	RangeStart    calendar.DayTime    // DAILY
	RangeEnd      calendar.DayTime    // DAILY
	InvertTimeRng bool                // DAILY
	Expression    string              // CRON
}

// encodeCalendar flattens the calendar chain into a gob blob.
func encodeCalendar(cal calendar.Calendar) ([]byte, error) {
	rec, err := calendarToRecord(cal)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeCalendar rebuilds the calendar chain from its persisted form.
func decodeCalendar(blob []byte) (calendar.Calendar, error) {
	var rec calendarRecord
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}
	return recordToCalendar(&rec)
}

func calendarToRecord(cal calendar.Calendar) (*calendarRecord, error) {
	if cal == nil {
		return nil, nil
	}
	base, err := calendarToRecord(cal.Base())
	if err != nil {
		return nil, err
	}
	rec := &calendarRecord{Description: cal.Description(), Base: base}

	switch c := cal.(type) {
	case *calendar.AnnualCalendar:
		rec.Kind = calKindAnnual
		rec.TimeZone = zoneName(c.Location)
		rec.MonthDays = c.ExcludedDays
	case *calendar.WeeklyCalendar:
		rec.Kind = calKindWeekly
		rec.TimeZone = zoneName(c.Location)
		for _, d := range c.ExcludedDays {
			rec.Weekdays = append(rec.Weekdays, int(d))
		}
	case *calendar.MonthlyCalendar:
		rec.Kind = calKindMonthly
		rec.TimeZone = zoneName(c.Location)
		rec.MonthlyDays = c.ExcludedDays
	case *calendar.HolidayCalendar:
		rec.Kind = calKindHoliday
		rec.TimeZone = zoneName(c.Location)
		rec.HolidayDates = c.ExcludedDates
	case *calendar.DailyCalendar:
		rec.Kind = calKindDaily
		rec.TimeZone = zoneName(c.Location)
		rec.RangeStart = c.RangeStart
		rec.RangeEnd = c.RangeEnd
		rec.InvertTimeRng = c.Invert
	case *calendar.CronCalendar:
		rec.Kind = calKindCron
		rec.TimeZone = zoneName(c.Location)
		rec.Expression = c.Expression
	default:
		return nil, fmt.Errorf("encode calendar: unsupported type %T", cal)
	}
	return rec, nil
}

func recordToCalendar(rec *calendarRecord) (calendar.Calendar, error) {
	if rec == nil {
		return nil, nil
	}
	base, err := recordToCalendar(rec.Base)
	if err != nil {
		return nil, err
	}
	loc, err := loadZone(rec.TimeZone)
	if err != nil {
		return nil, err
	}
	common := calendar.BaseCalendar{BaseCal: base, Desc: rec.Description, Location: loc}

	switch rec.Kind {
	case calKindAnnual:
		return &calendar.AnnualCalendar{BaseCalendar: common, ExcludedDays: rec.MonthDays}, nil
	case calKindWeekly:
		days := make([]time.Weekday, 0, len(rec.Weekdays))
		for _, d := range rec.Weekdays {
			days = append(days, time.Weekday(d))
		}
		return &calendar.WeeklyCalendar{BaseCalendar: common, ExcludedDays: days}, nil
	case calKindMonthly:
		return &calendar.MonthlyCalendar{BaseCalendar: common, ExcludedDays: rec.MonthlyDays}, nil
	case calKindHoliday:
		return &calendar.HolidayCalendar{BaseCalendar: common, ExcludedDates: rec.HolidayDates}, nil
	case calKindDaily:
		return &calendar.DailyCalendar{
			BaseCalendar: common,
			RangeStart:   rec.RangeStart,
			RangeEnd:     rec.RangeEnd,
			Invert:       rec.InvertTimeRng,
		}, nil
	case calKindCron:
		cc, err := calendar.NewCronCalendar(base, rec.Expression, loc)
		if err != nil {
			return nil, err
		}
		cc.Desc = rec.Description
		return cc, nil
	default:
		return nil, fmt.Errorf("decode calendar: unknown kind %q", rec.Kind)
	}
}

func zoneName(loc *time.Location) string {
	if loc == nil {
		return ""
	}
	return loc.String()
}

func loadZone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return nil, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load calendar zone %q: %w", name, err)
	}
	return loc, nil
}
