package domain_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/quartz/internal/domain"
)

func TestNewKey(t *testing.T) {
	t.Parallel()

	k, err := domain.NewKey("report", "")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultGroup, k.Group)
	assert.Equal(t, "DEFAULT.report", k.String())

	k, err = domain.NewKey("report", "eu")
	require.NoError(t, err)
	assert.Equal(t, "eu.report", k.String())

	_, err = domain.NewKey("", "eu")
	assert.ErrorIs(t, err, domain.ErrEmptyName)

	assert.Panics(t, func() { domain.MustKey("", "") })
}

func TestKey_Less(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b domain.Key
		want bool
	}{
		{"group wins over name", domain.MustKey("z", "a"), domain.MustKey("a", "b"), true},
		{"same group orders by name", domain.MustKey("a", "g"), domain.MustKey("b", "g"), true},
		{"equal keys", domain.MustKey("a", "g"), domain.MustKey("a", "g"), false},
		{"reversed", domain.MustKey("b", "g"), domain.MustKey("a", "g"), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.a.Less(tt.b))
		})
	}
}

func TestTrigger_Type(t *testing.T) {
	t.Parallel()

	tr := &domain.Trigger{Simple: &domain.SimpleSchedule{}}
	assert.Equal(t, domain.TriggerTypeSimple, tr.Type())

	tr = &domain.Trigger{Cron: &domain.CronSchedule{Expression: "0 0 12 * * ?"}}
	assert.Equal(t, domain.TriggerTypeCron, tr.Type())

	// No variant and several variants both yield the empty type.
	assert.Equal(t, domain.TriggerType(""), (&domain.Trigger{}).Type())
	both := &domain.Trigger{
		Simple: &domain.SimpleSchedule{},
		Cron:   &domain.CronSchedule{},
	}
	assert.Equal(t, domain.TriggerType(""), both.Type())
}

func TestTrigger_Clone(t *testing.T) {
	t.Parallel()

	next := time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)
	tr := &domain.Trigger{
		Key:          domain.MustKey("t1", "g"),
		JobKey:       domain.MustKey("j1", "g"),
		JobData:      domain.JobDataMap{"retries": 3},
		NextFireTime: domain.TimePtr(next),
		Simple:       &domain.SimpleSchedule{RepeatCount: 5, RepeatInterval: time.Minute},
	}

	cp := tr.Clone()
	cp.JobData["retries"] = 9
	*cp.NextFireTime = next.Add(time.Hour)
	cp.Simple.TimesTriggered = 4

	assert.Equal(t, 3, tr.JobData["retries"])
	assert.Equal(t, next, *tr.NextFireTime)
	assert.Equal(t, 0, tr.Simple.TimesTriggered)
}

func TestJobDetail_Validate(t *testing.T) {
	t.Parallel()

	d := &domain.JobDetail{Key: domain.MustKey("j1", ""), JobType: "reportJob"}
	assert.NoError(t, d.Validate())

	err := (&domain.JobDetail{JobType: "reportJob"}).Validate()
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))

	err = (&domain.JobDetail{Key: domain.MustKey("j1", "")}).Validate()
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
}

func TestJobDataMap_CloneAndMerge(t *testing.T) {
	t.Parallel()

	base := domain.JobDataMap{"a": 1, "b": "job"}

	cp := base.Clone()
	cp["a"] = 2
	assert.Equal(t, 1, base["a"])

	merged := base.Merge(domain.JobDataMap{"b": "trigger", "c": true})
	assert.Equal(t, 1, merged["a"])
	assert.Equal(t, "trigger", merged["b"])
	assert.Equal(t, true, merged["c"])
	// Merge never mutates the receiver.
	assert.Equal(t, "job", base["b"])

	var nilMap domain.JobDataMap
	assert.NotNil(t, nilMap.Clone())
	assert.Equal(t, 1, nilMap.Merge(domain.JobDataMap{"a": 1})["a"])
}

func TestJobDataMap_TypedGetters(t *testing.T) {
	t.Parallel()

	m := domain.JobDataMap{
		"str":     "hello",
		"int":     42,
		"int64":   int64(7),
		"float":   3.0,
		"boolStr": "true",
		"bool":    false,
	}

	assert.Equal(t, "hello", m.GetString("str"))
	assert.Equal(t, "", m.GetString("missing"))

	got, ok := m.GetInt("int")
	require.True(t, ok)
	assert.Equal(t, 42, got)

	_, ok = m.GetInt("float")
	assert.False(t, ok)

	_, ok = m.GetInt("str")
	assert.False(t, ok)

	got64, ok := m.GetInt64("int64")
	require.True(t, ok)
	assert.Equal(t, int64(7), got64)

	b, ok := m.GetBool("bool")
	require.True(t, ok)
	assert.False(t, b)

	b, ok = m.GetBool("boolStr")
	require.True(t, ok)
	assert.True(t, b)
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state domain.TriggerState
		want  domain.TriggerStatus
	}{
		{domain.StateWaiting, domain.StatusNormal},
		{domain.StateAcquired, domain.StatusNormal},
		{domain.StateExecuting, domain.StatusNormal},
		{domain.StatePaused, domain.StatusPaused},
		{domain.StatePausedBlocked, domain.StatusPaused},
		{domain.StateBlocked, domain.StatusBlocked},
		{domain.StateComplete, domain.StatusComplete},
		{domain.StateError, domain.StatusError},
		{domain.TriggerState("BOGUS"), domain.StatusNone},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.state), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, domain.StatusOf(tt.state))
		})
	}
}

func TestJobExecutionError(t *testing.T) {
	t.Parallel()

	cause := errors.New("db unreachable")
	jee := &domain.JobExecutionError{Cause: cause, RefireImmediately: true}

	assert.ErrorIs(t, jee, cause)

	wrapped := fmt.Errorf("job failed: %w", jee)
	var target *domain.JobExecutionError
	require.True(t, errors.As(wrapped, &target))
	assert.True(t, target.RefireImmediately)

	// An execution error without a cause still renders a message.
	assert.NotEmpty(t, (&domain.JobExecutionError{}).Error())
}
