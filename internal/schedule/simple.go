package schedule

import (
	"time"

	"github.com/jonesrussell/quartz/internal/domain"
)

// simpleFireTimeAfter computes the next start + k*interval instant strictly
// after the given time, honoring the repeat count.
func simpleFireTimeAfter(t *domain.Trigger, after time.Time) *time.Time {
	s := t.Simple

	if s.RepeatCount != domain.RepeatIndefinitely && s.TimesTriggered > s.RepeatCount {
		return nil
	}
	if after.Before(t.StartTime) {
		start := t.StartTime
		return &start
	}
	if s.RepeatCount == 0 {
		return nil
	}

	elapsed := after.Sub(t.StartTime)
	n := int64(elapsed/s.RepeatInterval) + 1
	if s.RepeatCount != domain.RepeatIndefinitely && n > int64(s.RepeatCount) {
		return nil
	}

	fire := t.StartTime.Add(time.Duration(n) * s.RepeatInterval)
	return &fire
}

// simpleTotalFireCount returns the bound on fires, or -1 when unbounded.
func simpleTotalFireCount(s *domain.SimpleSchedule) int {
	if s.RepeatCount == domain.RepeatIndefinitely {
		return domain.RepeatIndefinitely
	}
	return s.RepeatCount + 1
}
