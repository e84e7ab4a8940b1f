// Package schedule implements the per-variant fire time computations: first
// fire time, fire time after an instant, the advance applied when a trigger
// fires, misfire policy application and trigger validation.
//
// All functions take the trigger's calendar (nil when none is assigned) and
// honor the shared contracts: monotonicity, calendar filtering to a fixed
// point, end-time bounds and the daylight-saving rules of the cron engine.
package schedule

import (
	"errors"
	"time"

	"github.com/jonesrussell/quartz/internal/calendar"
	"github.com/jonesrussell/quartz/internal/cronexpr"
	"github.com/jonesrussell/quartz/internal/domain"
)

// ErrUnknownTriggerType is returned when a trigger carries no (or several)
// schedule variants.
var ErrUnknownTriggerType = errors.New("trigger has no valid schedule variant")

// calendarFixedPointLimit bounds the exclusion loop.
const calendarFixedPointLimit = 1000

// Validate checks the trigger's schedule fields and invariants. It is a
// client validation: stores call it before persisting.
func Validate(t *domain.Trigger) error {
	if t.Key.Name == "" {
		return domain.ValidationErrorf("trigger key name is required")
	}
	if t.JobKey.Name == "" {
		return domain.ValidationErrorf("trigger %s: job key is required", t.Key)
	}
	if t.EndTime != nil && !t.EndTime.After(t.StartTime) {
		return domain.ValidationErrorf("trigger %s: end time must be after start time", t.Key)
	}

	switch t.Type() {
	case domain.TriggerTypeSimple:
		s := t.Simple
		if s.RepeatCount < domain.RepeatIndefinitely {
			return domain.ValidationErrorf("trigger %s: repeat count must be >= -1", t.Key)
		}
		if s.RepeatCount != 0 && s.RepeatInterval <= 0 {
			return domain.ValidationErrorf("trigger %s: repeat interval must be positive", t.Key)
		}
		return validateSimpleMisfire(t)
	case domain.TriggerTypeCron:
		if _, err := cronexpr.Parse(t.Cron.Expression, t.Cron.Loc()); err != nil {
			return domain.ValidationErrorf("trigger %s: %v", t.Key, err)
		}
		return validateAdvanceMisfire(t)
	case domain.TriggerTypeCalendarInterval:
		c := t.CalendarInterval
		if c.Interval <= 0 {
			return domain.ValidationErrorf("trigger %s: interval must be positive", t.Key)
		}
		switch c.Unit {
		case domain.IntervalSecond, domain.IntervalMinute, domain.IntervalHour,
			domain.IntervalDay, domain.IntervalWeek, domain.IntervalMonth, domain.IntervalYear:
		default:
			return domain.ValidationErrorf("trigger %s: invalid interval unit %q", t.Key, c.Unit)
		}
		return validateAdvanceMisfire(t)
	case domain.TriggerTypeDailyTimeInterval:
		return validateDaily(t)
	default:
		return domain.ValidationErrorf("trigger %s: exactly one schedule variant must be set", t.Key)
	}
}

func validateSimpleMisfire(t *domain.Trigger) error {
	switch t.MisfireInstruction {
	case domain.MisfireIgnorePolicy, domain.MisfireSmartPolicy, domain.MisfireFireOnceNow,
		domain.MisfireSimpleRescheduleNowWithExistingCount,
		domain.MisfireSimpleRescheduleNowWithRemainingCount,
		domain.MisfireSimpleRescheduleNextWithRemainingCount,
		domain.MisfireSimpleRescheduleNextWithExistingCount:
		return nil
	default:
		return domain.ValidationErrorf("trigger %s: misfire instruction %d is invalid for simple triggers",
			t.Key, t.MisfireInstruction)
	}
}

func validateAdvanceMisfire(t *domain.Trigger) error {
	switch t.MisfireInstruction {
	case domain.MisfireIgnorePolicy, domain.MisfireSmartPolicy,
		domain.MisfireFireOnceNow, domain.MisfireDoNothing:
		return nil
	default:
		return domain.ValidationErrorf("trigger %s: misfire instruction %d is invalid for this trigger type",
			t.Key, t.MisfireInstruction)
	}
}

func validateDaily(t *domain.Trigger) error {
	d := t.DailyTimeInterval
	if d.Interval <= 0 {
		return domain.ValidationErrorf("trigger %s: interval must be positive", t.Key)
	}
	switch d.Unit {
	case domain.IntervalSecond, domain.IntervalMinute, domain.IntervalHour:
	default:
		return domain.ValidationErrorf("trigger %s: daily interval unit must be SECOND, MINUTE or HOUR", t.Key)
	}
	if d.IntervalDuration() > 24*time.Hour {
		return domain.ValidationErrorf("trigger %s: interval must not exceed 24 hours", t.Key)
	}
	for _, tod := range []domain.TimeOfDay{d.StartTimeOfDay, d.EndTimeOfDay} {
		if tod.Hour < 0 || tod.Hour > 23 || tod.Minute < 0 || tod.Minute > 59 || tod.Second < 0 || tod.Second > 59 {
			return domain.ValidationErrorf("trigger %s: invalid time of day %02d:%02d:%02d",
				t.Key, tod.Hour, tod.Minute, tod.Second)
		}
	}
	if !d.StartTimeOfDay.Before(d.EndTimeOfDay) {
		return domain.ValidationErrorf("trigger %s: start time of day must precede end time of day", t.Key)
	}
	if d.RepeatCount < domain.RepeatIndefinitely {
		return domain.ValidationErrorf("trigger %s: repeat count must be >= -1", t.Key)
	}
	for _, wd := range d.DaysOfWeek {
		if wd < time.Sunday || wd > time.Saturday {
			return domain.ValidationErrorf("trigger %s: invalid weekday %d", t.Key, wd)
		}
	}
	return validateAdvanceMisfire(t)
}

// ComputeFirstFireTime computes and sets the trigger's first fire time,
// respecting the calendar. Returns nil when the schedule never fires.
func ComputeFirstFireTime(t *domain.Trigger, cal calendar.Calendar) *time.Time {
	first := rawFireTimeOnOrAfter(t, t.StartTime)
	first = applyCalendar(t, first, cal)
	t.NextFireTime = first
	return first
}

// FireTimeAfter returns the first calendar-filtered fire time strictly after
// the given instant, without mutating the trigger.
func FireTimeAfter(t *domain.Trigger, after time.Time, cal calendar.Calendar) *time.Time {
	return applyCalendar(t, rawFireTimeAfter(t, after), cal)
}

// Triggered advances the trigger when it fires: previous becomes the instant
// just fired, next is recomputed, and the variant's fire counter increments.
func Triggered(t *domain.Trigger, cal calendar.Calendar) {
	switch t.Type() {
	case domain.TriggerTypeSimple:
		t.Simple.TimesTriggered++
	case domain.TriggerTypeCalendarInterval:
		t.CalendarInterval.TimesTriggered++
	case domain.TriggerTypeDailyTimeInterval:
		t.DailyTimeInterval.TimesTriggered++
	}
	t.PreviousFireTime = t.NextFireTime
	if t.NextFireTime == nil {
		return
	}
	t.NextFireTime = FireTimeAfter(t, *t.NextFireTime, cal)
}

// ExecutionComplete derives the completion instruction from the execution
// outcome, per the contract the run shell relies on.
func ExecutionComplete(t *domain.Trigger, execErr error) domain.CompletedExecutionInstruction {
	var jee *domain.JobExecutionError
	if errors.As(execErr, &jee) {
		switch {
		case jee.RefireImmediately:
			return domain.InstructionReExecuteJob
		case jee.UnscheduleTrigger:
			return domain.InstructionSetTriggerComplete
		case jee.UnscheduleAllTriggers:
			return domain.InstructionSetAllJobTriggersComplete
		}
	}
	if !t.MayFireAgain() {
		return domain.InstructionDeleteTrigger
	}
	return domain.InstructionNoop
}

// ComputeFireTimes evaluates up to max fire times from the trigger's start,
// without mutating the trigger. Used by tests and tooling.
func ComputeFireTimes(t *domain.Trigger, cal calendar.Calendar, max int) []time.Time {
	out := make([]time.Time, 0, max)
	next := applyCalendar(t, rawFireTimeOnOrAfter(t, t.StartTime), cal)
	for next != nil && len(out) < max {
		out = append(out, *next)
		next = FireTimeAfter(t, *next, cal)
	}
	return out
}

// applyCalendar drives excluded candidates forward: jump to the calendar's
// next included instant, then re-align to the schedule, until both agree.
func applyCalendar(t *domain.Trigger, next *time.Time, cal calendar.Calendar) *time.Time {
	if cal == nil {
		return next
	}
	for i := 0; next != nil && i < calendarFixedPointLimit; i++ {
		if cal.IsTimeIncluded(*next) {
			return next
		}
		included := cal.NextIncludedTime(*next)
		if included.IsZero() {
			return nil
		}
		next = rawFireTimeOnOrAfter(t, included)
	}
	return nil
}

// rawFireTimeOnOrAfter is rawFireTimeAfter with inclusive semantics.
func rawFireTimeOnOrAfter(t *domain.Trigger, at time.Time) *time.Time {
	return rawFireTimeAfter(t, at.Add(-time.Millisecond))
}

// rawFireTimeAfter dispatches the schedule-only (calendar-blind) computation.
func rawFireTimeAfter(t *domain.Trigger, after time.Time) *time.Time {
	var next *time.Time
	switch t.Type() {
	case domain.TriggerTypeSimple:
		next = simpleFireTimeAfter(t, after)
	case domain.TriggerTypeCron:
		next = cronFireTimeAfter(t, after)
	case domain.TriggerTypeCalendarInterval:
		next = calendarIntervalFireTimeAfter(t, after)
	case domain.TriggerTypeDailyTimeInterval:
		next = dailyFireTimeAfter(t, after)
	default:
		return nil
	}
	if next != nil && t.EndTime != nil && !next.Before(*t.EndTime) {
		return nil
	}
	return next
}
