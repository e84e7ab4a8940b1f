package domain

import (
	"time"
)

// TriggerType discriminates the schedule variant a trigger carries. The
// values double as the persisted TRIGGER_TYPE discriminators.
type TriggerType string

const (
	TriggerTypeSimple            TriggerType = "SIMPLE"
	TriggerTypeCron              TriggerType = "CRON"
	TriggerTypeCalendarInterval  TriggerType = "CAL_INT"
	TriggerTypeDailyTimeInterval TriggerType = "DAILY_I"
)

// TriggerState is the persisted lifecycle state of a trigger.
type TriggerState string

const (
	StateWaiting       TriggerState = "WAITING"
	StateAcquired      TriggerState = "ACQUIRED"
	StateExecuting     TriggerState = "EXECUTING"
	StateComplete      TriggerState = "COMPLETE"
	StatePaused        TriggerState = "PAUSED"
	StatePausedBlocked TriggerState = "PAUSED_BLOCKED"
	StateBlocked       TriggerState = "BLOCKED"
	StateError         TriggerState = "ERROR"
)

// TriggerStatus is the client-visible view of a trigger's state.
type TriggerStatus string

const (
	StatusNone     TriggerStatus = "NONE"
	StatusNormal   TriggerStatus = "NORMAL"
	StatusPaused   TriggerStatus = "PAUSED"
	StatusComplete TriggerStatus = "COMPLETE"
	StatusError    TriggerStatus = "ERROR"
	StatusBlocked  TriggerStatus = "BLOCKED"
)

// StatusOf maps a persisted state to the client-visible status.
func StatusOf(state TriggerState) TriggerStatus {
	switch state {
	case StateWaiting, StateAcquired, StateExecuting:
		return StatusNormal
	case StatePaused, StatePausedBlocked:
		return StatusPaused
	case StateComplete:
		return StatusComplete
	case StateBlocked:
		return StatusBlocked
	case StateError:
		return StatusError
	default:
		return StatusNone
	}
}

// Misfire instructions shared across trigger types.
const (
	// MisfireIgnorePolicy skips misfire handling entirely: all missed fire
	// times are evaluated as if they were on time.
	MisfireIgnorePolicy = -1

	// MisfireSmartPolicy resolves to a type-specific default at misfire time.
	MisfireSmartPolicy = 0

	// MisfireFireOnceNow fires immediately once, then resumes the schedule.
	// For simple triggers this is "fire now".
	MisfireFireOnceNow = 1

	// MisfireDoNothing advances to the next scheduled time after now without
	// firing for the missed instants. Not valid for simple triggers.
	MisfireDoNothing = 2
)

// Misfire instructions specific to simple triggers.
const (
	MisfireSimpleRescheduleNowWithExistingCount   = 2
	MisfireSimpleRescheduleNowWithRemainingCount  = 3
	MisfireSimpleRescheduleNextWithRemainingCount = 4
	MisfireSimpleRescheduleNextWithExistingCount  = 5
)

// RepeatIndefinitely as a repeat count means the schedule has no count bound.
const RepeatIndefinitely = -1

// DefaultPriority is assigned to triggers built without an explicit priority.
const DefaultPriority = 5

// IntervalUnit is the unit of a calendar-interval or daily-time-interval step.
type IntervalUnit string

const (
	IntervalSecond IntervalUnit = "SECOND"
	IntervalMinute IntervalUnit = "MINUTE"
	IntervalHour   IntervalUnit = "HOUR"
	IntervalDay    IntervalUnit = "DAY"
	IntervalWeek   IntervalUnit = "WEEK"
	IntervalMonth  IntervalUnit = "MONTH"
	IntervalYear   IntervalUnit = "YEAR"
)

// SimpleSchedule fires at startTime + k*RepeatInterval for k = 0..RepeatCount.
type SimpleSchedule struct {
	RepeatInterval time.Duration
	// RepeatCount is the number of repeats after the first fire;
	// RepeatIndefinitely removes the bound.
	RepeatCount    int
	TimesTriggered int
}

// CronSchedule fires per a 7-field cron expression evaluated in Location.
type CronSchedule struct {
	Expression string
	Location   *time.Location
}

// Loc returns the schedule's location, defaulting to time.Local.
func (s *CronSchedule) Loc() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// CalendarIntervalSchedule steps by calendar arithmetic: adding a month to
// Jan 31 lands on the last day of February, and the schedule sticks to
// month-end once it has slipped there.
type CalendarIntervalSchedule struct {
	Interval       int
	Unit           IntervalUnit
	Location       *time.Location
	TimesTriggered int
}

// Loc returns the schedule's location, defaulting to time.Local.
func (s *CalendarIntervalSchedule) Loc() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// TimeOfDay is a wall-clock time within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// SecondsOfDay converts to seconds since local midnight.
func (t TimeOfDay) SecondsOfDay() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// Before reports whether t is earlier in the day than other.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.SecondsOfDay() < other.SecondsOfDay()
}

// On anchors the time-of-day to the date of ref in loc.
func (t TimeOfDay) On(ref time.Time, loc *time.Location) time.Time {
	ref = ref.In(loc)
	return time.Date(ref.Year(), ref.Month(), ref.Day(), t.Hour, t.Minute, t.Second, 0, loc)
}

// DailyTimeIntervalSchedule fires within [StartTimeOfDay, EndTimeOfDay] on
// the configured weekdays, stepping by Interval Units. Interval x Unit must
// stay within 24 hours.
type DailyTimeIntervalSchedule struct {
	StartTimeOfDay TimeOfDay
	EndTimeOfDay   TimeOfDay
	// DaysOfWeek restricts firing days; empty means every day.
	DaysOfWeek []time.Weekday
	Interval   int
	Unit       IntervalUnit // SECOND, MINUTE or HOUR
	// RepeatCount bounds total fires; RepeatIndefinitely removes the bound.
	RepeatCount    int
	TimesTriggered int
	Location       *time.Location
}

// Loc returns the schedule's location, defaulting to time.Local.
func (s *DailyTimeIntervalSchedule) Loc() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// FiresOn reports whether the schedule fires on the given weekday.
func (s *DailyTimeIntervalSchedule) FiresOn(day time.Weekday) bool {
	if len(s.DaysOfWeek) == 0 {
		return true
	}
	for _, d := range s.DaysOfWeek {
		if d == day {
			return true
		}
	}
	return false
}

// IntervalDuration is the step as a duration.
func (s *DailyTimeIntervalSchedule) IntervalDuration() time.Duration {
	switch s.Unit {
	case IntervalMinute:
		return time.Duration(s.Interval) * time.Minute
	case IntervalHour:
		return time.Duration(s.Interval) * time.Hour
	default:
		return time.Duration(s.Interval) * time.Second
	}
}

// Trigger is a firing rule bound to a job. Exactly one schedule variant
// pointer is set; Type() reports which. Stores own all state transitions and
// fire-time advances; clients only create triggers and pause/resume them.
type Trigger struct {
	Key         TriggerKey
	JobKey      JobKey
	Description string

	// CalendarName names an exclusion calendar applied to every candidate
	// fire time; empty means none.
	CalendarName string

	Priority           int
	MisfireInstruction int
	JobData            JobDataMap

	StartTime        time.Time
	EndTime          *time.Time
	NextFireTime     *time.Time
	PreviousFireTime *time.Time

	// FireInstanceID is assigned by the store when the trigger fires.
	FireInstanceID string

	Simple            *SimpleSchedule
	Cron              *CronSchedule
	CalendarInterval  *CalendarIntervalSchedule
	DailyTimeInterval *DailyTimeIntervalSchedule
}

// Type reports the schedule variant, or "" when none or several are set.
func (t *Trigger) Type() TriggerType {
	var typ TriggerType
	n := 0
	if t.Simple != nil {
		typ, n = TriggerTypeSimple, n+1
	}
	if t.Cron != nil {
		typ, n = TriggerTypeCron, n+1
	}
	if t.CalendarInterval != nil {
		typ, n = TriggerTypeCalendarInterval, n+1
	}
	if t.DailyTimeInterval != nil {
		typ, n = TriggerTypeDailyTimeInterval, n+1
	}
	if n != 1 {
		return ""
	}
	return typ
}

// MayFireAgain reports whether the trigger has a future fire time.
func (t *Trigger) MayFireAgain() bool {
	return t.NextFireTime != nil
}

// Clone returns a copy safe to hand across store boundaries.
func (t *Trigger) Clone() *Trigger {
	out := *t
	out.JobData = t.JobData.Clone()
	out.EndTime = cloneTime(t.EndTime)
	out.NextFireTime = cloneTime(t.NextFireTime)
	out.PreviousFireTime = cloneTime(t.PreviousFireTime)
	if t.Simple != nil {
		s := *t.Simple
		out.Simple = &s
	}
	if t.Cron != nil {
		c := *t.Cron
		out.Cron = &c
	}
	if t.CalendarInterval != nil {
		c := *t.CalendarInterval
		out.CalendarInterval = &c
	}
	if t.DailyTimeInterval != nil {
		d := *t.DailyTimeInterval
		d.DaysOfWeek = append([]time.Weekday(nil), t.DaysOfWeekOrNil()...)
		out.DailyTimeInterval = &d
	}
	return &out
}

// DaysOfWeekOrNil returns the daily schedule's weekday set, or nil when the
// trigger is not daily-time-interval.
func (t *Trigger) DaysOfWeekOrNil() []time.Weekday {
	if t.DailyTimeInterval == nil {
		return nil
	}
	return t.DailyTimeInterval.DaysOfWeek
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// TimePtr is a convenience for building optional time fields.
func TimePtr(t time.Time) *time.Time { return &t }

// CompletedExecutionInstruction tells the store what to do with a trigger
// after its job finished.
type CompletedExecutionInstruction int

const (
	InstructionNoop CompletedExecutionInstruction = iota
	InstructionReExecuteJob
	InstructionSetTriggerComplete
	InstructionDeleteTrigger
	InstructionSetAllJobTriggersComplete
	InstructionSetTriggerError
	InstructionSetAllJobTriggersError
)
