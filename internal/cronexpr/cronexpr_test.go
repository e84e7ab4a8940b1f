package cronexpr_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/quartz/internal/cronexpr"
)

func TestParse_FieldValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{"every second", "* * * * * ?", false},
		{"business hours", "0 0 9-17 ? * MON-FRI", false},
		{"named month", "0 15 10 ? MAR TUE", false},
		{"with year", "0 0 0 1 1 ? 2030", false},
		{"last day of month", "0 0 12 L * ?", false},
		{"last weekday of month", "0 0 12 LW * ?", false},
		{"nearest weekday", "0 0 12 15W * ?", false},
		{"third day offset from last", "0 0 12 L-3 * ?", false},
		{"last friday", "0 0 22 ? * FRIL", false},
		{"second tuesday", "0 0 8 ? * TUE#2", false},
		{"too few fields", "* * * * *", true},
		{"too many fields", "* * * * * ? 2030 1", true},
		{"both days specified", "0 0 0 1 * MON", true},
		{"both days unspecified", "0 0 0 ? * ?", true},
		{"second out of range", "60 * * ? * *", true},
		{"bad step", "0/0 * * ? * *", true},
		{"nth out of range", "0 0 8 ? * TUE#6", true},
		{"bad name", "0 0 8 ? * NOPE", true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := cronexpr.Parse(tt.expr, time.UTC)
			if tt.wantErr {
				require.Error(t, err)
				var pe *cronexpr.ParseError
				assert.True(t, errors.As(err, &pe), "expected a ParseError, got %T", err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNextAfter_Basic(t *testing.T) {
	t.Parallel()

	e := cronexpr.MustParse("0 30 10 ? * *", time.UTC)

	after := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	next, ok := e.NextAfter(after)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.March, 10, 10, 30, 0, 0, time.UTC), next)

	// Strictly after: the fire time itself yields the next day.
	next2, ok := e.NextAfter(next)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.March, 11, 10, 30, 0, 0, time.UTC), next2)
}

func TestNextAfter_SubSecondRoundsUp(t *testing.T) {
	t.Parallel()

	e := cronexpr.MustParse("* * * ? * *", time.UTC)
	after := time.Date(2026, time.March, 10, 9, 0, 0, 500_000_000, time.UTC)
	next, ok := e.NextAfter(after)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.March, 10, 9, 0, 1, 0, time.UTC), next)
}

func TestNextAfter_WeekdayRange(t *testing.T) {
	t.Parallel()

	e := cronexpr.MustParse("0 0 9 ? * MON-FRI", time.UTC)

	// Friday evening rolls to Monday morning.
	after := time.Date(2026, time.March, 13, 18, 0, 0, 0, time.UTC) // Friday
	next, ok := e.NextAfter(after)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.March, 16, 9, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.Monday, next.Weekday())
}

func TestNextAfter_LastDayOfMonth(t *testing.T) {
	t.Parallel()

	e := cronexpr.MustParse("0 0 12 L * ?", time.UTC)

	next, ok := e.NextAfter(time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.February, 28, 12, 0, 0, 0, time.UTC), next)

	next, ok = e.NextAfter(time.Date(2028, time.February, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, 29, next.Day())
}

func TestNextAfter_NearestWeekday(t *testing.T) {
	t.Parallel()

	// August 15 2026 is a Saturday; 15W resolves to Friday the 14th.
	e := cronexpr.MustParse("0 0 12 15W * ?", time.UTC)
	next, ok := e.NextAfter(time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.August, 14, 12, 0, 0, 0, time.UTC), next)
}

func TestNextAfter_NthWeekday(t *testing.T) {
	t.Parallel()

	// Second Tuesday of March 2026 is the 10th.
	e := cronexpr.MustParse("0 0 8 ? * TUE#2", time.UTC)
	next, ok := e.NextAfter(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.March, 10, 8, 0, 0, 0, time.UTC), next)
}

func TestNextAfter_LastWeekdayOfMonth(t *testing.T) {
	t.Parallel()

	// Last Friday of March 2026 is the 27th.
	e := cronexpr.MustParse("0 0 22 ? * FRIL", time.UTC)
	next, ok := e.NextAfter(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, time.March, 27, 22, 0, 0, 0, time.UTC), next)
}

func TestNextAfter_YearBound(t *testing.T) {
	t.Parallel()

	e := cronexpr.MustParse("0 0 0 1 1 ? 2030", time.UTC)

	next, ok := e.NextAfter(time.Date(2029, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, 2030, next.Year())

	_, ok = e.NextAfter(time.Date(2030, time.June, 1, 0, 0, 0, 0, time.UTC))
	assert.False(t, ok, "expression with an exhausted year field has no next fire time")
}

func TestNextAfter_SpringForwardGap(t *testing.T) {
	t.Parallel()

	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2026-03-08 02:30 does not exist in New York; the fire moves to the
	// first existing instant after the gap, 03:00.
	e := cronexpr.MustParse("0 30 2 * * ?", newYork)
	next, ok := e.NextAfter(time.Date(2026, time.March, 8, 1, 0, 0, 0, newYork))
	require.True(t, ok)
	assert.Equal(t, 8, next.Day())
	assert.Equal(t, 3, next.Hour())

	// The following day fires at the normal wall-clock time again.
	next2, ok := e.NextAfter(next)
	require.True(t, ok)
	assert.Equal(t, 9, next2.Day())
	assert.Equal(t, 2, next2.Hour())
	assert.Equal(t, 30, next2.Minute())
}

func TestNextAfter_FallBackFiresOnce(t *testing.T) {
	t.Parallel()

	newYork, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2026-11-01 01:30 occurs twice in New York. The schedule fires at the
	// first occurrence; asking for the next fire from there must move to the
	// next day, not the repeated hour.
	e := cronexpr.MustParse("0 30 1 * * ?", newYork)
	first, ok := e.NextAfter(time.Date(2026, time.November, 1, 0, 0, 0, 0, newYork))
	require.True(t, ok)
	assert.Equal(t, 1, first.Day())

	second, ok := e.NextAfter(first)
	require.True(t, ok)
	assert.Equal(t, 2, second.Day(), "ambiguous hour must fire only once")
	assert.True(t, second.After(first))
}

func TestIsSatisfiedBy(t *testing.T) {
	t.Parallel()

	e := cronexpr.MustParse("0 0 9-17 ? * MON-FRI", time.UTC)

	assert.True(t, e.IsSatisfiedBy(time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)))  // Tuesday
	assert.False(t, e.IsSatisfiedBy(time.Date(2026, time.March, 8, 9, 0, 0, 0, time.UTC)))  // Sunday
	assert.False(t, e.IsSatisfiedBy(time.Date(2026, time.March, 10, 18, 0, 0, 0, time.UTC)) /* after hours */)
}

func TestParse_WrappingRange(t *testing.T) {
	t.Parallel()

	// NOV-FEB wraps the year boundary.
	e := cronexpr.MustParse("0 0 0 1 NOV-FEB ?", time.UTC)
	next, ok := e.NextAfter(time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.November, next.Month())
}
