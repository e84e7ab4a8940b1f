package calendar

import (
	"time"

	"github.com/jonesrussell/quartz/internal/cronexpr"
)

// CronCalendar excludes every instant matched by a cron expression. Useful
// for masking whole wall-clock regions, e.g. "* * 0-7 ? * *" excludes the
// hours before 08:00.
type CronCalendar struct {
	BaseCalendar
	Expression string

	expr *cronexpr.Expression
}

// NewCronCalendar parses expr and builds the calendar.
func NewCronCalendar(base Calendar, expr string, loc *time.Location) (*CronCalendar, error) {
	parsed, err := cronexpr.Parse(expr, loc)
	if err != nil {
		return nil, err
	}
	return &CronCalendar{
		BaseCalendar: BaseCalendar{BaseCal: base, Location: loc},
		Expression:   expr,
		expr:         parsed,
	}, nil
}

func (c *CronCalendar) compiled() (*cronexpr.Expression, error) {
	if c.expr == nil {
		parsed, err := cronexpr.Parse(c.Expression, c.Loc())
		if err != nil {
			return nil, err
		}
		c.expr = parsed
	}
	return c.expr, nil
}

// IsTimeIncluded implements Calendar.
func (c *CronCalendar) IsTimeIncluded(t time.Time) bool {
	if !c.baseIncludes(t) {
		return false
	}
	expr, err := c.compiled()
	if err != nil {
		// An unparseable mask excludes nothing.
		return true
	}
	return !expr.IsSatisfiedBy(t)
}

// NextIncludedTime implements Calendar.
func (c *CronCalendar) NextIncludedTime(t time.Time) time.Time {
	limit := t.AddDate(5, 0, 0)
	for t.Before(limit) {
		if c.IsTimeIncluded(t) {
			return t
		}
		t = t.Truncate(time.Second).Add(time.Second)
	}
	return time.Time{}
}
