package sqlstore

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonesrussell/quartz/internal/domain"
)

// encodeWeekdays renders a weekday set as csv of ints, Sunday = 0.
func encodeWeekdays(days []time.Weekday) string {
	parts := make([]string, 0, len(days))
	for _, d := range days {
		parts = append(parts, strconv.Itoa(int(d)))
	}
	return strings.Join(parts, ",")
}

func decodeWeekdays(s string) []time.Weekday {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	days := make([]time.Weekday, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			continue
		}
		days = append(days, time.Weekday(n))
	}
	return days
}

func encodeTimeOfDay(t domain.TimeOfDay) string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func decodeTimeOfDay(s string) (domain.TimeOfDay, error) {
	var t domain.TimeOfDay
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &t.Hour, &t.Minute, &t.Second); err != nil {
		return t, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	return t, nil
}

func decodeTimeOfDayPair(s string) (domain.TimeOfDay, domain.TimeOfDay, error) {
	first, second, ok := strings.Cut(s, ",")
	if !ok {
		return domain.TimeOfDay{}, domain.TimeOfDay{}, fmt.Errorf("parse time-of-day pair %q: missing separator", s)
	}
	start, err := decodeTimeOfDay(first)
	if err != nil {
		return domain.TimeOfDay{}, domain.TimeOfDay{}, err
	}
	end, err := decodeTimeOfDay(second)
	if err != nil {
		return domain.TimeOfDay{}, domain.TimeOfDay{}, err
	}
	return start, end, nil
}

// triggerBlobRecord is the gob form of a schedule variant for the blob
// delegate. Locations ride as zone names since time.Location does not
// encode.
type triggerBlobRecord struct {
	Simple *domain.SimpleSchedule

	CronExpression string
	CronZone       string

	CalIntInterval       int
	CalIntUnit           string
	CalIntTimesTriggered int
	CalIntZone           string
	HasCalInt            bool

	Daily     *dailyBlobRecord
	DailyZone string
}

type dailyBlobRecord struct {
	Start, End     domain.TimeOfDay
	DaysOfWeek     []int
	Interval       int
	Unit           string
	RepeatCount    int
	TimesTriggered int
}

func encodeTriggerBlob(t *domain.Trigger) ([]byte, error) {
	rec := triggerBlobRecord{Simple: t.Simple}
	if t.Cron != nil {
		rec.CronExpression = t.Cron.Expression
		rec.CronZone = zoneName(t.Cron.Location)
	}
	if t.CalendarInterval != nil {
		rec.HasCalInt = true
		rec.CalIntInterval = t.CalendarInterval.Interval
		rec.CalIntUnit = string(t.CalendarInterval.Unit)
		rec.CalIntTimesTriggered = t.CalendarInterval.TimesTriggered
		rec.CalIntZone = zoneName(t.CalendarInterval.Location)
	}
	if t.DailyTimeInterval != nil {
		s := t.DailyTimeInterval
		days := make([]int, 0, len(s.DaysOfWeek))
		for _, d := range s.DaysOfWeek {
			days = append(days, int(d))
		}
		rec.Daily = &dailyBlobRecord{
			Start:          s.StartTimeOfDay,
			End:            s.EndTimeOfDay,
			DaysOfWeek:     days,
			Interval:       s.Interval,
			Unit:           string(s.Unit),
			RepeatCount:    s.RepeatCount,
			TimesTriggered: s.TimesTriggered,
		}
		rec.DailyZone = zoneName(s.Location)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, fmt.Errorf("encode trigger blob %s: %w", t.Key, err)
	}
	return buf.Bytes(), nil
}

func decodeTriggerBlob(blob []byte) (*domain.Trigger, error) {
	var rec triggerBlobRecord
	if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode trigger blob: %w", err)
	}
	out := &domain.Trigger{Simple: rec.Simple}
	if rec.CronExpression != "" {
		loc, err := loadZone(rec.CronZone)
		if err != nil {
			return nil, err
		}
		out.Cron = &domain.CronSchedule{Expression: rec.CronExpression, Location: loc}
	}
	if rec.HasCalInt {
		loc, err := loadZone(rec.CalIntZone)
		if err != nil {
			return nil, err
		}
		out.CalendarInterval = &domain.CalendarIntervalSchedule{
			Interval:       rec.CalIntInterval,
			Unit:           domain.IntervalUnit(rec.CalIntUnit),
			TimesTriggered: rec.CalIntTimesTriggered,
			Location:       loc,
		}
	}
	if rec.Daily != nil {
		loc, err := loadZone(rec.DailyZone)
		if err != nil {
			return nil, err
		}
		days := make([]time.Weekday, 0, len(rec.Daily.DaysOfWeek))
		for _, d := range rec.Daily.DaysOfWeek {
			days = append(days, time.Weekday(d))
		}
		out.DailyTimeInterval = &domain.DailyTimeIntervalSchedule{
			StartTimeOfDay: rec.Daily.Start,
			EndTimeOfDay:   rec.Daily.End,
			DaysOfWeek:     days,
			Interval:       rec.Daily.Interval,
			Unit:           domain.IntervalUnit(rec.Daily.Unit),
			RepeatCount:    rec.Daily.RepeatCount,
			TimesTriggered: rec.Daily.TimesTriggered,
			Location:       loc,
		}
	}
	return out, nil
}
