package schedule_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/quartz/internal/calendar"
	"github.com/jonesrussell/quartz/internal/domain"
	"github.com/jonesrussell/quartz/internal/schedule"
)

// Monday, March 2nd 2026.
var baseTime = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

func simpleTrigger(count int, interval time.Duration) *domain.Trigger {
	return &domain.Trigger{
		Key:       domain.TriggerKey{Name: "t1", Group: domain.DefaultGroup},
		JobKey:    domain.JobKey{Name: "j1", Group: domain.DefaultGroup},
		StartTime: baseTime,
		Simple:    &domain.SimpleSchedule{RepeatCount: count, RepeatInterval: interval},
	}
}

func cronTrigger(expr string) *domain.Trigger {
	return &domain.Trigger{
		Key:       domain.TriggerKey{Name: "t1", Group: domain.DefaultGroup},
		JobKey:    domain.JobKey{Name: "j1", Group: domain.DefaultGroup},
		StartTime: baseTime,
		Cron:      &domain.CronSchedule{Expression: expr, Location: time.UTC},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	endBeforeStart := simpleTrigger(0, 0)
	endBeforeStart.EndTime = domain.TimePtr(baseTime.Add(-time.Hour))

	zeroInterval := simpleTrigger(5, 0)

	badUnit := &domain.Trigger{
		Key:              domain.TriggerKey{Name: "t1", Group: domain.DefaultGroup},
		JobKey:           domain.JobKey{Name: "j1", Group: domain.DefaultGroup},
		StartTime:        baseTime,
		CalendarInterval: &domain.CalendarIntervalSchedule{Interval: 1, Unit: "FORTNIGHT"},
	}

	dailyBackwards := &domain.Trigger{
		Key:       domain.TriggerKey{Name: "t1", Group: domain.DefaultGroup},
		JobKey:    domain.JobKey{Name: "j1", Group: domain.DefaultGroup},
		StartTime: baseTime,
		DailyTimeInterval: &domain.DailyTimeIntervalSchedule{
			StartTimeOfDay: domain.TimeOfDay{Hour: 17},
			EndTimeOfDay:   domain.TimeOfDay{Hour: 9},
			Interval:       1,
			Unit:           domain.IntervalHour,
			RepeatCount:    domain.RepeatIndefinitely,
		},
	}

	dailyDayUnit := &domain.Trigger{
		Key:       domain.TriggerKey{Name: "t1", Group: domain.DefaultGroup},
		JobKey:    domain.JobKey{Name: "j1", Group: domain.DefaultGroup},
		StartTime: baseTime,
		DailyTimeInterval: &domain.DailyTimeIntervalSchedule{
			StartTimeOfDay: domain.TimeOfDay{Hour: 9},
			EndTimeOfDay:   domain.TimeOfDay{Hour: 17},
			Interval:       1,
			Unit:           domain.IntervalDay,
			RepeatCount:    domain.RepeatIndefinitely,
		},
	}

	badSimpleMisfire := simpleTrigger(3, time.Minute)
	badSimpleMisfire.MisfireInstruction = 99

	badCronMisfire := cronTrigger("0 0 12 * * ?")
	badCronMisfire.MisfireInstruction = domain.MisfireSimpleRescheduleNextWithRemainingCount

	noVariant := &domain.Trigger{
		Key:       domain.TriggerKey{Name: "t1", Group: domain.DefaultGroup},
		JobKey:    domain.JobKey{Name: "j1", Group: domain.DefaultGroup},
		StartTime: baseTime,
	}

	twoVariants := cronTrigger("0 0 12 * * ?")
	twoVariants.Simple = &domain.SimpleSchedule{}

	tests := []struct {
		name    string
		trigger *domain.Trigger
		wantErr bool
	}{
		{"valid simple one-shot", simpleTrigger(0, 0), false},
		{"valid simple repeating", simpleTrigger(domain.RepeatIndefinitely, time.Minute), false},
		{"valid cron", cronTrigger("0 0/5 * * * ?"), false},
		{"missing trigger name", &domain.Trigger{JobKey: domain.JobKey{Name: "j1"}}, true},
		{"missing job key", &domain.Trigger{Key: domain.TriggerKey{Name: "t1"}}, true},
		{"end time before start", endBeforeStart, true},
		{"repeat count below -1", simpleTrigger(-2, time.Minute), true},
		{"zero interval with repeats", zeroInterval, true},
		{"bad cron expression", cronTrigger("not a cron"), true},
		{"bad interval unit", badUnit, true},
		{"daily window backwards", dailyBackwards, true},
		{"daily unit too coarse", dailyDayUnit, true},
		{"simple misfire out of range", badSimpleMisfire, true},
		{"cron misfire simple-only", badCronMisfire, true},
		{"no schedule variant", noVariant, true},
		{"two schedule variants", twoVariants, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := schedule.Validate(tt.trigger)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, domain.IsValidationError(err), "want validation error, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestComputeFirstFireTime_Simple(t *testing.T) {
	t.Parallel()

	tr := simpleTrigger(2, 10*time.Second)
	first := schedule.ComputeFirstFireTime(tr, nil)
	require.NotNil(t, first)
	assert.Equal(t, baseTime, *first)
	require.NotNil(t, tr.NextFireTime)
	assert.Equal(t, baseTime, *tr.NextFireTime)
}

func TestComputeFireTimes_SimpleBounded(t *testing.T) {
	t.Parallel()

	tr := simpleTrigger(2, 10*time.Second)
	fires := schedule.ComputeFireTimes(tr, nil, 10)
	require.Len(t, fires, 3)
	assert.Equal(t, baseTime, fires[0])
	assert.Equal(t, baseTime.Add(10*time.Second), fires[1])
	assert.Equal(t, baseTime.Add(20*time.Second), fires[2])
}

func TestFireTimeAfter_Simple(t *testing.T) {
	t.Parallel()

	tr := simpleTrigger(domain.RepeatIndefinitely, time.Minute)

	tests := []struct {
		name  string
		after time.Time
		want  time.Time
	}{
		{"before start", baseTime.Add(-time.Hour), baseTime},
		{"exactly on a fire", baseTime.Add(3 * time.Minute), baseTime.Add(4 * time.Minute)},
		{"between fires", baseTime.Add(90 * time.Second), baseTime.Add(2 * time.Minute)},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := schedule.FireTimeAfter(tr, tt.after, nil)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestFireTimeAfter_EndTimeBound(t *testing.T) {
	t.Parallel()

	tr := simpleTrigger(domain.RepeatIndefinitely, time.Minute)
	tr.EndTime = domain.TimePtr(baseTime.Add(2 * time.Minute))

	// The fire coinciding with the end time is excluded.
	got := schedule.FireTimeAfter(tr, baseTime.Add(time.Minute), nil)
	assert.Nil(t, got)

	got = schedule.FireTimeAfter(tr, baseTime.Add(30*time.Second), nil)
	require.NotNil(t, got)
	assert.Equal(t, baseTime.Add(time.Minute), *got)
}

func TestFireTimeAfter_Cron(t *testing.T) {
	t.Parallel()

	tr := cronTrigger("0 0 12 * * ?")
	got := schedule.FireTimeAfter(tr, baseTime, nil)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC), *got)

	// Never before the start time, even when asked about the distant past.
	got = schedule.FireTimeAfter(tr, baseTime.AddDate(-1, 0, 0), nil)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC), *got)
}

func TestFireTimeAfter_CalendarIntervalMonthClamp(t *testing.T) {
	t.Parallel()

	tr := &domain.Trigger{
		Key:       domain.TriggerKey{Name: "eom", Group: domain.DefaultGroup},
		JobKey:    domain.JobKey{Name: "j1", Group: domain.DefaultGroup},
		StartTime: time.Date(2026, time.January, 31, 8, 0, 0, 0, time.UTC),
		CalendarInterval: &domain.CalendarIntervalSchedule{
			Interval: 1,
			Unit:     domain.IntervalMonth,
			Location: time.UTC,
		},
	}

	fires := schedule.ComputeFireTimes(tr, nil, 4)
	require.Len(t, fires, 4)
	assert.Equal(t, time.Date(2026, time.January, 31, 8, 0, 0, 0, time.UTC), fires[0])
	// February lacks a 31st, so the fire clamps to the 28th.
	assert.Equal(t, time.Date(2026, time.February, 28, 8, 0, 0, 0, time.UTC), fires[1])
	// The anchor is the start date, so March returns to the 31st.
	assert.Equal(t, time.Date(2026, time.March, 31, 8, 0, 0, 0, time.UTC), fires[2])
	assert.Equal(t, time.Date(2026, time.April, 30, 8, 0, 0, 0, time.UTC), fires[3])
}

func TestFireTimeAfter_DailyTimeInterval(t *testing.T) {
	t.Parallel()

	tr := &domain.Trigger{
		Key:       domain.TriggerKey{Name: "office", Group: domain.DefaultGroup},
		JobKey:    domain.JobKey{Name: "j1", Group: domain.DefaultGroup},
		StartTime: baseTime,
		DailyTimeInterval: &domain.DailyTimeIntervalSchedule{
			StartTimeOfDay: domain.TimeOfDay{Hour: 9},
			EndTimeOfDay:   domain.TimeOfDay{Hour: 17},
			DaysOfWeek: []time.Weekday{
				time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
			},
			Interval:    1,
			Unit:        domain.IntervalHour,
			RepeatCount: domain.RepeatIndefinitely,
			Location:    time.UTC,
		},
	}

	friday := time.Date(2026, time.March, 6, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		after time.Time
		want  time.Time
	}{
		{
			"mid window rounds up to the next step",
			friday.Add(16*time.Hour + 30*time.Minute),
			friday.Add(17 * time.Hour),
		},
		{
			"window end is inclusive, then skips the weekend",
			friday.Add(17 * time.Hour),
			time.Date(2026, time.March, 9, 9, 0, 0, 0, time.UTC),
		},
		{
			"before the window snaps to its start",
			friday.Add(6 * time.Hour),
			friday.Add(9 * time.Hour),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := schedule.FireTimeAfter(tr, tt.after, nil)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.In(time.UTC))
		})
	}
}

func TestTriggered(t *testing.T) {
	t.Parallel()

	tr := simpleTrigger(1, time.Minute)
	require.NotNil(t, schedule.ComputeFirstFireTime(tr, nil))

	schedule.Triggered(tr, nil)
	assert.Equal(t, 1, tr.Simple.TimesTriggered)
	require.NotNil(t, tr.PreviousFireTime)
	assert.Equal(t, baseTime, *tr.PreviousFireTime)
	require.NotNil(t, tr.NextFireTime)
	assert.Equal(t, baseTime.Add(time.Minute), *tr.NextFireTime)
	assert.True(t, tr.MayFireAgain())

	schedule.Triggered(tr, nil)
	assert.Equal(t, 2, tr.Simple.TimesTriggered)
	assert.Nil(t, tr.NextFireTime)
	assert.False(t, tr.MayFireAgain())
}

func TestCalendarFiltering(t *testing.T) {
	t.Parallel()

	weekends := calendar.NewWeeklyCalendar(nil, time.UTC)

	// Hourly schedule anchored on a Saturday: the first included fire is the
	// first schedule instant on Monday.
	tr := simpleTrigger(domain.RepeatIndefinitely, time.Hour)
	tr.StartTime = time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC)

	first := schedule.ComputeFirstFireTime(tr, weekends)
	require.NotNil(t, first)
	assert.Equal(t, time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC), *first)

	// Friday evening fires pass through untouched.
	got := schedule.FireTimeAfter(tr, time.Date(2026, time.March, 13, 22, 0, 0, 0, time.UTC), weekends)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2026, time.March, 13, 23, 0, 0, 0, time.UTC), *got)
}

func TestUpdateAfterMisfire_Simple(t *testing.T) {
	t.Parallel()

	now := baseTime.Add(10 * time.Minute)

	t.Run("ignore policy leaves the trigger alone", func(t *testing.T) {
		t.Parallel()
		tr := simpleTrigger(domain.RepeatIndefinitely, time.Minute)
		tr.MisfireInstruction = domain.MisfireIgnorePolicy
		tr.NextFireTime = domain.TimePtr(baseTime)

		schedule.UpdateAfterMisfire(tr, nil, now)
		require.NotNil(t, tr.NextFireTime)
		assert.Equal(t, baseTime, *tr.NextFireTime)
	})

	t.Run("smart policy on a one-shot fires once now", func(t *testing.T) {
		t.Parallel()
		tr := simpleTrigger(0, 0)
		tr.MisfireInstruction = domain.MisfireSmartPolicy
		tr.NextFireTime = domain.TimePtr(baseTime)

		schedule.UpdateAfterMisfire(tr, nil, now)
		assert.Equal(t, now, tr.StartTime)
		require.NotNil(t, tr.NextFireTime)
		assert.Equal(t, now, *tr.NextFireTime)
	})

	t.Run("smart policy on an unbounded trigger reschedules to next", func(t *testing.T) {
		t.Parallel()
		tr := simpleTrigger(domain.RepeatIndefinitely, time.Minute)
		tr.NextFireTime = domain.TimePtr(baseTime)

		schedule.UpdateAfterMisfire(tr, nil, now)
		require.NotNil(t, tr.NextFireTime)
		assert.Equal(t, baseTime.Add(11*time.Minute), *tr.NextFireTime)
		assert.Equal(t, baseTime, tr.StartTime)
	})

	t.Run("reschedule now with remaining count resets bookkeeping", func(t *testing.T) {
		t.Parallel()
		tr := simpleTrigger(10, time.Minute)
		tr.Simple.TimesTriggered = 4
		tr.MisfireInstruction = domain.MisfireSimpleRescheduleNowWithRemainingCount
		tr.NextFireTime = domain.TimePtr(baseTime)

		schedule.UpdateAfterMisfire(tr, nil, now)
		assert.Equal(t, 6, tr.Simple.RepeatCount)
		assert.Equal(t, 0, tr.Simple.TimesTriggered)
		assert.Equal(t, now, tr.StartTime)
		require.NotNil(t, tr.NextFireTime)
		assert.Equal(t, now, *tr.NextFireTime)
	})
}

func TestUpdateAfterMisfire_Cron(t *testing.T) {
	t.Parallel()

	// Missed the noon fire; it is now mid afternoon.
	now := time.Date(2026, time.March, 2, 15, 30, 0, 0, time.UTC)

	t.Run("smart policy fires once now", func(t *testing.T) {
		t.Parallel()
		tr := cronTrigger("0 0 12 * * ?")
		tr.NextFireTime = domain.TimePtr(time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC))

		schedule.UpdateAfterMisfire(tr, nil, now)
		require.NotNil(t, tr.NextFireTime)
		assert.Equal(t, now, *tr.NextFireTime)
	})

	t.Run("do nothing advances past now", func(t *testing.T) {
		t.Parallel()
		tr := cronTrigger("0 0 12 * * ?")
		tr.MisfireInstruction = domain.MisfireDoNothing
		tr.NextFireTime = domain.TimePtr(time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC))

		schedule.UpdateAfterMisfire(tr, nil, now)
		require.NotNil(t, tr.NextFireTime)
		assert.Equal(t, time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC), *tr.NextFireTime)
	})
}

func TestExecutionComplete(t *testing.T) {
	t.Parallel()

	future := domain.TimePtr(baseTime.Add(time.Hour))

	tests := []struct {
		name    string
		next    *time.Time
		execErr error
		want    domain.CompletedExecutionInstruction
	}{
		{"success with more fires", future, nil, domain.InstructionNoop},
		{"success, trigger exhausted", nil, nil, domain.InstructionDeleteTrigger},
		{
			"refire immediately",
			future,
			&domain.JobExecutionError{Cause: errors.New("transient"), RefireImmediately: true},
			domain.InstructionReExecuteJob,
		},
		{
			"unschedule firing trigger",
			future,
			&domain.JobExecutionError{Cause: errors.New("broken"), UnscheduleTrigger: true},
			domain.InstructionSetTriggerComplete,
		},
		{
			"unschedule all job triggers",
			future,
			&domain.JobExecutionError{Cause: errors.New("broken"), UnscheduleAllTriggers: true},
			domain.InstructionSetAllJobTriggersComplete,
		},
		{
			"wrapped execution error is still honored",
			future,
			fmt.Errorf("run failed: %w", &domain.JobExecutionError{RefireImmediately: true}),
			domain.InstructionReExecuteJob,
		},
		{"plain error with more fires", future, errors.New("boom"), domain.InstructionNoop},
		{"plain error, trigger exhausted", nil, errors.New("boom"), domain.InstructionDeleteTrigger},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr := simpleTrigger(domain.RepeatIndefinitely, time.Minute)
			tr.NextFireTime = tt.next
			assert.Equal(t, tt.want, schedule.ExecutionComplete(tr, tt.execErr))
		})
	}
}
