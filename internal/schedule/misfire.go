package schedule

import (
	"time"

	"github.com/jonesrussell/quartz/internal/calendar"
	"github.com/jonesrussell/quartz/internal/domain"
)

// UpdateAfterMisfire applies the trigger's misfire policy, recomputing
// NextFireTime (and, for simple triggers, the repeat bookkeeping) relative
// to now. Stores call this when they detect a trigger whose next fire time
// fell behind by more than the misfire threshold.
func UpdateAfterMisfire(t *domain.Trigger, cal calendar.Calendar, now time.Time) {
	if t.MisfireInstruction == domain.MisfireIgnorePolicy {
		return
	}
	switch t.Type() {
	case domain.TriggerTypeSimple:
		simpleUpdateAfterMisfire(t, cal, now)
	default:
		advanceUpdateAfterMisfire(t, cal, now)
	}
}

// simpleUpdateAfterMisfire resolves SMART_POLICY to the simple-trigger
// default, then applies the instruction's documented transformation.
func simpleUpdateAfterMisfire(t *domain.Trigger, cal calendar.Calendar, now time.Time) {
	s := t.Simple
	instr := t.MisfireInstruction
	if instr == domain.MisfireSmartPolicy {
		switch {
		case s.RepeatCount == 0:
			instr = domain.MisfireFireOnceNow
		case s.RepeatCount == domain.RepeatIndefinitely:
			instr = domain.MisfireSimpleRescheduleNextWithRemainingCount
		default:
			instr = domain.MisfireSimpleRescheduleNowWithRemainingCount
		}
	}
	if instr == domain.MisfireFireOnceNow && s.RepeatCount != 0 {
		instr = domain.MisfireSimpleRescheduleNowWithRemainingCount
	}

	switch instr {
	case domain.MisfireFireOnceNow:
		t.StartTime = now
		t.NextFireTime = &now

	case domain.MisfireSimpleRescheduleNowWithExistingCount:
		t.StartTime = now
		t.NextFireTime = applyCalendar(t, &now, cal)

	case domain.MisfireSimpleRescheduleNowWithRemainingCount:
		remaining := s.RepeatCount
		if remaining != domain.RepeatIndefinitely {
			remaining -= s.TimesTriggered
			if remaining < 0 {
				remaining = 0
			}
		}
		s.RepeatCount = remaining
		s.TimesTriggered = 0
		t.StartTime = now
		t.NextFireTime = applyCalendar(t, &now, cal)

	case domain.MisfireSimpleRescheduleNextWithRemainingCount,
		domain.MisfireSimpleRescheduleNextWithExistingCount:
		t.NextFireTime = FireTimeAfter(t, now, cal)
	}
}

// advanceUpdateAfterMisfire handles the cron, calendar-interval and
// daily-time-interval variants, whose smart default is to fire once now.
func advanceUpdateAfterMisfire(t *domain.Trigger, cal calendar.Calendar, now time.Time) {
	instr := t.MisfireInstruction
	if instr == domain.MisfireSmartPolicy {
		instr = domain.MisfireFireOnceNow
	}
	switch instr {
	case domain.MisfireFireOnceNow:
		t.NextFireTime = &now
	case domain.MisfireDoNothing:
		t.NextFireTime = FireTimeAfter(t, now, cal)
	}
}
