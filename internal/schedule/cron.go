package schedule

import (
	"time"

	"github.com/jonesrussell/quartz/internal/cronexpr"
	"github.com/jonesrussell/quartz/internal/domain"
)

// cronFireTimeAfter evaluates the trigger's expression strictly after the
// given instant, never before the trigger's start time.
func cronFireTimeAfter(t *domain.Trigger, after time.Time) *time.Time {
	expr, err := cronexpr.Parse(t.Cron.Expression, t.Cron.Loc())
	if err != nil {
		// Validation rejects bad expressions at store time; a trigger that
		// reaches here unparseable simply stops firing.
		return nil
	}
	if after.Before(t.StartTime.Add(-time.Millisecond)) {
		after = t.StartTime.Add(-time.Millisecond)
	}
	next, ok := expr.NextAfter(after)
	if !ok {
		return nil
	}
	return &next
}
