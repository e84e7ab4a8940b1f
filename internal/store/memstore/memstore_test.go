package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/quartz/internal/calendar"
	"github.com/jonesrussell/quartz/internal/domain"
	"github.com/jonesrussell/quartz/internal/matcher"
	"github.com/jonesrussell/quartz/internal/store"
	"github.com/jonesrussell/quartz/internal/store/memstore"
)

type fakeSignaler struct {
	signals   int
	misfired  []domain.TriggerKey
	finalized []domain.TriggerKey
}

func (f *fakeSignaler) SignalSchedulingChange(*time.Time) { f.signals++ }

func (f *fakeSignaler) NotifyTriggerListenersMisfired(t *domain.Trigger) {
	f.misfired = append(f.misfired, t.Key)
}

func (f *fakeSignaler) NotifySchedulerListenersFinalized(t *domain.Trigger) {
	f.finalized = append(f.finalized, t.Key)
}

func (f *fakeSignaler) NotifySchedulerListenersError(string, error) {}

func newJob(name string) *domain.JobDetail {
	return &domain.JobDetail{
		Key:     domain.MustKey(name, ""),
		JobType: "testJob",
		JobData: domain.JobDataMap{},
		Durable: true,
	}
}

func newTransientJob(name string) *domain.JobDetail {
	d := newJob(name)
	d.Durable = false
	return d
}

// newTrigger builds a repeating trigger due at the given instant.
func newTrigger(name, jobName string, due time.Time) *domain.Trigger {
	t := &domain.Trigger{
		Key:       domain.MustKey(name, ""),
		JobKey:    domain.MustKey(jobName, ""),
		StartTime: due,
		Simple: &domain.SimpleSchedule{
			RepeatCount:    domain.RepeatIndefinitely,
			RepeatInterval: time.Hour,
		},
	}
	t.NextFireTime = domain.TimePtr(due)
	return t
}

// oneShot builds a trigger that fires exactly once, at due.
func oneShot(name, jobName string, due time.Time) *domain.Trigger {
	t := &domain.Trigger{
		Key:       domain.MustKey(name, ""),
		JobKey:    domain.MustKey(jobName, ""),
		StartTime: due,
		Simple:    &domain.SimpleSchedule{},
	}
	t.NextFireTime = domain.TimePtr(due)
	return t
}

func TestStoreAndRetrieve(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.New(memstore.Config{}, nil)

	job := newJob("j1")
	job.JobData["region"] = "eu"
	require.NoError(t, s.StoreJob(ctx, job, false))

	err := s.StoreJob(ctx, newJob("j1"), false)
	assert.ErrorIs(t, err, store.ErrObjectAlreadyExists)
	assert.NoError(t, s.StoreJob(ctx, newJob("j1"), true))

	tr := newTrigger("t1", "j1", time.Now().Add(time.Hour))
	require.NoError(t, s.StoreTrigger(ctx, tr, false))
	assert.ErrorIs(t, s.StoreTrigger(ctx, tr, false), store.ErrObjectAlreadyExists)

	// Stored copies are isolated from the caller's structs.
	tr.Simple.RepeatInterval = time.Minute
	got, err := s.RetrieveTrigger(ctx, tr.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, time.Hour, got.Simple.RepeatInterval)

	missing, err := s.RetrieveJob(ctx, domain.MustKey("nope", ""))
	require.NoError(t, err)
	assert.Nil(t, missing)

	exists, err := s.CheckTriggerExists(ctx, tr.Key)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStoreJob_RejectsNonDurableWithoutTrigger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.New(memstore.Config{}, nil)

	err := s.StoreJob(ctx, newTransientJob("loner"), false)
	assert.ErrorIs(t, err, store.ErrJobNotDurable)

	// Atomic store-with-trigger is the way in for non-durable jobs.
	require.NoError(t, s.StoreJobAndTrigger(ctx, newTransientJob("paired"),
		newTrigger("t1", "paired", time.Now())))

	// Replacing a non-durable job that kept its trigger is fine.
	assert.NoError(t, s.StoreJob(ctx, newTransientJob("paired"), true))
}

func TestStoreTrigger_ReferentialChecks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.New(memstore.Config{}, nil)

	orphan := newTrigger("t1", "absent", time.Now())
	assert.ErrorIs(t, s.StoreTrigger(ctx, orphan, false), store.ErrJobNotFound)

	require.NoError(t, s.StoreJob(ctx, newJob("j1"), false))
	withCal := newTrigger("t2", "j1", time.Now())
	withCal.CalendarName = "holidays"
	assert.ErrorIs(t, s.StoreTrigger(ctx, withCal, false), store.ErrCalendarNotFound)

	invalid := newTrigger("t3", "j1", time.Now())
	invalid.Simple = nil
	err := s.StoreTrigger(ctx, invalid, false)
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
}

func TestRemoveTrigger_CollectsNonDurableJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.New(memstore.Config{}, nil)

	require.NoError(t, s.StoreJobAndTrigger(ctx, newTransientJob("transient"),
		newTrigger("t1", "transient", time.Now())))

	require.NoError(t, s.StoreJob(ctx, newJob("keeper"), false))
	require.NoError(t, s.StoreTrigger(ctx, newTrigger("t2", "keeper", time.Now()), false))

	removed, err := s.RemoveTrigger(ctx, domain.MustKey("t1", ""))
	require.NoError(t, err)
	assert.True(t, removed)
	exists, err := s.CheckJobExists(ctx, domain.MustKey("transient", ""))
	require.NoError(t, err)
	assert.False(t, exists, "non-durable job should be collected with its last trigger")

	removed, err = s.RemoveTrigger(ctx, domain.MustKey("t2", ""))
	require.NoError(t, err)
	assert.True(t, removed)
	exists, err = s.CheckJobExists(ctx, domain.MustKey("keeper", ""))
	require.NoError(t, err)
	assert.True(t, exists, "durable job survives losing its last trigger")

	removed, err = s.RemoveTrigger(ctx, domain.MustKey("t1", ""))
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestReplaceTrigger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.New(memstore.Config{}, nil)

	require.NoError(t, s.StoreJob(ctx, newJob("j1"), false))
	require.NoError(t, s.StoreJob(ctx, newJob("j2"), false))
	require.NoError(t, s.StoreTrigger(ctx, newTrigger("t1", "j1", time.Now()), false))

	other := newTrigger("t1b", "j2", time.Now())
	_, err := s.ReplaceTrigger(ctx, domain.MustKey("t1", ""), other)
	assert.Error(t, err, "replacement must reference the same job")

	replacement := newTrigger("t1b", "j1", time.Now().Add(time.Minute))
	ok, err := s.ReplaceTrigger(ctx, domain.MustKey("t1", ""), replacement)
	require.NoError(t, err)
	assert.True(t, ok)

	gone, err := s.RetrieveTrigger(ctx, domain.MustKey("t1", ""))
	require.NoError(t, err)
	assert.Nil(t, gone)
	got, err := s.RetrieveTrigger(ctx, domain.MustKey("t1b", ""))
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestPauseResume_StickyGroups(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.New(memstore.Config{}, nil)

	require.NoError(t, s.StoreJob(ctx, newJob("j1"), false))

	early := newTrigger("early", "j1", time.Now().Add(time.Hour))
	early.Key.Group = "batch"
	require.NoError(t, s.StoreTrigger(ctx, early, false))

	groups, err := s.PauseTriggers(ctx, matcher.GroupEquals("batch"))
	require.NoError(t, err)
	assert.Equal(t, []string{"batch"}, groups)

	status, err := s.TriggerStatus(ctx, early.Key)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, status)

	// The exact-group pause is sticky: triggers stored afterwards into the
	// group start out paused.
	late := newTrigger("late", "j1", time.Now().Add(time.Hour))
	late.Key.Group = "batch"
	require.NoError(t, s.StoreTrigger(ctx, late, false))
	status, err = s.TriggerStatus(ctx, late.Key)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, status)

	paused, err := s.PausedTriggerGroups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"batch"}, paused)

	_, err = s.ResumeTriggers(ctx, matcher.GroupEquals("batch"))
	require.NoError(t, err)
	paused, err = s.PausedTriggerGroups(ctx)
	require.NoError(t, err)
	assert.Empty(t, paused)
	for _, key := range []domain.TriggerKey{early.Key, late.Key} {
		status, err = s.TriggerStatus(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusNormal, status)
	}
}

func TestPauseAll_ResumeAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.New(memstore.Config{}, nil)

	require.NoError(t, s.StoreJob(ctx, newJob("j1"), false))
	require.NoError(t, s.StoreTrigger(ctx, newTrigger("t1", "j1", time.Now().Add(time.Hour)), false))

	require.NoError(t, s.PauseAll(ctx))
	status, err := s.TriggerStatus(ctx, domain.MustKey("t1", ""))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, status)

	acquired, err := s.AcquireNextTriggers(ctx, time.Now().Add(2*time.Hour), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, acquired)

	require.NoError(t, s.ResumeAll(ctx))
	status, err = s.TriggerStatus(ctx, domain.MustKey("t1", ""))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNormal, status)
}

func TestAcquireNextTriggers_FireOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.New(memstore.Config{}, nil)
	now := time.Now()

	require.NoError(t, s.StoreJob(ctx, newJob("j1"), false))

	later := newTrigger("later", "j1", now.Add(-time.Second))
	earlyHigh := newTrigger("high", "j1", now.Add(-2*time.Second))
	earlyHigh.Priority = 9
	earlyLow := newTrigger("low", "j1", now.Add(-2*time.Second))
	earlyLow.Priority = 1
	future := newTrigger("future", "j1", now.Add(time.Hour))

	for _, tr := range []*domain.Trigger{later, earlyHigh, earlyLow, future} {
		require.NoError(t, s.StoreTrigger(ctx, tr, false))
	}

	acquired, err := s.AcquireNextTriggers(ctx, now, 10, 0)
	require.NoError(t, err)
	require.Len(t, acquired, 3)
	assert.Equal(t, "high", acquired[0].Key.Name)
	assert.Equal(t, "low", acquired[1].Key.Name)
	assert.Equal(t, "later", acquired[2].Key.Name)
	for _, tr := range acquired {
		assert.NotEmpty(t, tr.FireInstanceID)
	}

	// A second acquire finds nothing: the batch is claimed.
	again, err := s.AcquireNextTriggers(ctx, now, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, again)

	// Releasing returns a trigger to the pool.
	require.NoError(t, s.ReleaseAcquiredTrigger(ctx, acquired[0]))
	again, err = s.AcquireNextTriggers(ctx, now, 10, 0)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "high", again[0].Key.Name)
}

func TestAcquireNextTriggers_MaxCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.New(memstore.Config{}, nil)
	now := time.Now()

	require.NoError(t, s.StoreJob(ctx, newJob("j1"), false))
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, s.StoreTrigger(ctx, newTrigger(name, "j1", now.Add(-time.Second)), false))
	}

	acquired, err := s.AcquireNextTriggers(ctx, now, 2, 0)
	require.NoError(t, err)
	assert.Len(t, acquired, 2)
}

func TestAcquireNextTriggers_NonConcurrentJobOncePerBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.New(memstore.Config{}, nil)
	now := time.Now()

	serial := newJob("serial")
	serial.Capabilities.DisallowConcurrentExecution = true
	require.NoError(t, s.StoreJob(ctx, serial, false))
	require.NoError(t, s.StoreTrigger(ctx, newTrigger("t1", "serial", now.Add(-2*time.Second)), false))
	require.NoError(t, s.StoreTrigger(ctx, newTrigger("t2", "serial", now.Add(-time.Second)), false))

	acquired, err := s.AcquireNextTriggers(ctx, now, 10, 0)
	require.NoError(t, err)
	require.Len(t, acquired, 1)
	assert.Equal(t, "t1", acquired[0].Key.Name)
}

func TestAcquireNextTriggers_AppliesMisfire(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sig := &fakeSignaler{}
	s := memstore.New(memstore.Config{MisfireThreshold: time.Minute}, nil)
	require.NoError(t, s.Initialize(ctx, sig))
	now := time.Now()

	require.NoError(t, s.StoreJob(ctx, newJob("j1"), false))

	// Smart policy on an unbounded simple trigger reschedules to the next
	// instant, which lands outside the batch window.
	skipped := newTrigger("skipped", "j1", now.Add(-5*time.Minute))
	require.NoError(t, s.StoreTrigger(ctx, skipped, false))

	// Fire-once-now pulls the missed fire up to the present.
	recovered := newTrigger("recovered", "j1", now.Add(-5*time.Minute))
	recovered.MisfireInstruction = domain.MisfireFireOnceNow
	require.NoError(t, s.StoreTrigger(ctx, recovered, false))

	acquired, err := s.AcquireNextTriggers(ctx, now.Add(time.Second), 10, 0)
	require.NoError(t, err)
	require.Len(t, acquired, 1)
	assert.Equal(t, "recovered", acquired[0].Key.Name)
	assert.ElementsMatch(t, []domain.TriggerKey{skipped.Key, recovered.Key}, sig.misfired)

	got, err := s.RetrieveTrigger(ctx, skipped.Key)
	require.NoError(t, err)
	require.NotNil(t, got.NextFireTime)
	assert.True(t, got.NextFireTime.After(now), "skipped trigger reschedules into the future")
}

func TestTriggersFired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.New(memstore.Config{}, nil)
	now := time.Now()

	require.NoError(t, s.StoreJob(ctx, newJob("j1"), false))
	due := now.Add(-time.Second)
	require.NoError(t, s.StoreTrigger(ctx, newTrigger("t1", "j1", due), false))

	acquired, err := s.AcquireNextTriggers(ctx, now, 1, 0)
	require.NoError(t, err)
	require.Len(t, acquired, 1)

	results, err := s.TriggersFired(ctx, acquired)
	require.NoError(t, err)
	require.Len(t, results, 1)
	bundle := results[0].Bundle
	require.NotNil(t, bundle)
	assert.Equal(t, "j1", bundle.JobDetail.Key.Name)
	require.NotNil(t, bundle.ScheduledFireTime)
	assert.True(t, bundle.ScheduledFireTime.Equal(due))
	require.NotNil(t, bundle.Trigger.PreviousFireTime)
	assert.True(t, bundle.Trigger.PreviousFireTime.Equal(due))
	require.NotNil(t, bundle.NextFireTime)
	assert.True(t, bundle.NextFireTime.Equal(due.Add(time.Hour)))
	assert.False(t, bundle.JobDisallowsConcurrency)

	// Firing a trigger that was never acquired yields an empty result.
	stale := newTrigger("t1", "j1", due)
	results, err = s.TriggersFired(ctx, []*domain.Trigger{stale})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Nil(t, results[0].Bundle)
	assert.NoError(t, results[0].Err)
}

func TestTriggersFired_ExhaustedTriggerCompletes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.New(memstore.Config{}, nil)
	now := time.Now()

	require.NoError(t, s.StoreJob(ctx, newJob("j1"), false))
	require.NoError(t, s.StoreTrigger(ctx, oneShot("once", "j1", now.Add(-time.Second)), false))

	acquired, err := s.AcquireNextTriggers(ctx, now, 1, 0)
	require.NoError(t, err)
	require.Len(t, acquired, 1)

	results, err := s.TriggersFired(ctx, acquired)
	require.NoError(t, err)
	require.NotNil(t, results[0].Bundle)
	assert.Nil(t, results[0].Bundle.NextFireTime)

	status, err := s.TriggerStatus(ctx, domain.MustKey("once", ""))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusComplete, status)
}

func TestNonConcurrentJob_BlocksAndUnblocks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sig := &fakeSignaler{}
	s := memstore.New(memstore.Config{}, nil)
	require.NoError(t, s.Initialize(ctx, sig))
	now := time.Now()

	serial := newJob("serial")
	serial.Capabilities.DisallowConcurrentExecution = true
	require.NoError(t, s.StoreJob(ctx, serial, false))
	require.NoError(t, s.StoreTrigger(ctx, newTrigger("t1", "serial", now.Add(-time.Second)), false))
	require.NoError(t, s.StoreTrigger(ctx, newTrigger("t2", "serial", now.Add(-time.Second)), false))

	acquired, err := s.AcquireNextTriggers(ctx, now, 10, 0)
	require.NoError(t, err)
	require.Len(t, acquired, 1)

	results, err := s.TriggersFired(ctx, acquired)
	require.NoError(t, err)
	require.NotNil(t, results[0].Bundle)
	assert.True(t, results[0].Bundle.JobDisallowsConcurrency)

	// The job's other trigger is held while the execution is in flight.
	status, err := s.TriggerStatus(ctx, domain.MustKey("t2", ""))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusBlocked, status)
	blocked, err := s.AcquireNextTriggers(ctx, now, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, blocked)

	fired := results[0].Bundle.Trigger
	require.NoError(t, s.TriggeredJobComplete(ctx, fired, results[0].Bundle.JobDetail, domain.InstructionNoop))

	status, err = s.TriggerStatus(ctx, domain.MustKey("t2", ""))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNormal, status)
	released, err := s.AcquireNextTriggers(ctx, now, 10, 0)
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, "t2", released[0].Key.Name)
}

func TestTriggeredJobComplete_Instructions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Now()

	fire := func(t *testing.T, s *memstore.Store) *store.TriggerFiredBundle {
		t.Helper()
		acquired, err := s.AcquireNextTriggers(ctx, now, 1, 0)
		require.NoError(t, err)
		require.Len(t, acquired, 1)
		results, err := s.TriggersFired(ctx, acquired)
		require.NoError(t, err)
		require.NotNil(t, results[0].Bundle)
		return results[0].Bundle
	}

	t.Run("delete trigger collects the non-durable job", func(t *testing.T) {
		t.Parallel()
		s := memstore.New(memstore.Config{}, nil)
		require.NoError(t, s.StoreJobAndTrigger(ctx, newTransientJob("j1"),
			oneShot("once", "j1", now.Add(-time.Second))))

		b := fire(t, s)
		require.NoError(t, s.TriggeredJobComplete(ctx, b.Trigger, b.JobDetail, domain.InstructionDeleteTrigger))

		exists, err := s.CheckTriggerExists(ctx, domain.MustKey("once", ""))
		require.NoError(t, err)
		assert.False(t, exists)
		exists, err = s.CheckJobExists(ctx, domain.MustKey("j1", ""))
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("delete trigger keeps one rescheduled during execution", func(t *testing.T) {
		t.Parallel()
		s := memstore.New(memstore.Config{}, nil)
		require.NoError(t, s.StoreJob(ctx, newJob("j1"), false))
		require.NoError(t, s.StoreTrigger(ctx, oneShot("once", "j1", now.Add(-time.Second)), false))

		b := fire(t, s)
		require.Nil(t, b.Trigger.NextFireTime, "one-shot must be exhausted by the fire")

		// The job replaces its own exhausted trigger mid-execution.
		require.NoError(t, s.StoreTrigger(ctx, newTrigger("once", "j1", now.Add(time.Hour)), true))

		require.NoError(t, s.TriggeredJobComplete(ctx, b.Trigger, b.JobDetail, domain.InstructionDeleteTrigger))

		got, err := s.RetrieveTrigger(ctx, domain.MustKey("once", ""))
		require.NoError(t, err)
		require.NotNil(t, got, "fresh trigger must survive the delete instruction")
		assert.NotNil(t, got.NextFireTime)
	})

	t.Run("set trigger complete", func(t *testing.T) {
		t.Parallel()
		s := memstore.New(memstore.Config{}, nil)
		require.NoError(t, s.StoreJob(ctx, newJob("j1"), false))
		require.NoError(t, s.StoreTrigger(ctx, newTrigger("t1", "j1", now.Add(-time.Second)), false))

		b := fire(t, s)
		require.NoError(t, s.TriggeredJobComplete(ctx, b.Trigger, b.JobDetail, domain.InstructionSetTriggerComplete))

		status, err := s.TriggerStatus(ctx, domain.MustKey("t1", ""))
		require.NoError(t, err)
		assert.Equal(t, domain.StatusComplete, status)
	})

	t.Run("set all job triggers complete", func(t *testing.T) {
		t.Parallel()
		s := memstore.New(memstore.Config{}, nil)
		require.NoError(t, s.StoreJob(ctx, newJob("j1"), false))
		require.NoError(t, s.StoreTrigger(ctx, newTrigger("t1", "j1", now.Add(-time.Second)), false))
		require.NoError(t, s.StoreTrigger(ctx, newTrigger("t2", "j1", now.Add(time.Hour)), false))

		b := fire(t, s)
		require.NoError(t, s.TriggeredJobComplete(ctx, b.Trigger, b.JobDetail, domain.InstructionSetAllJobTriggersComplete))

		for _, name := range []string{"t1", "t2"} {
			status, err := s.TriggerStatus(ctx, domain.MustKey(name, ""))
			require.NoError(t, err)
			assert.Equal(t, domain.StatusComplete, status)
		}
	})

	t.Run("persists job data when the job asks", func(t *testing.T) {
		t.Parallel()
		s := memstore.New(memstore.Config{}, nil)
		job := newJob("counter")
		job.Capabilities.PersistJobDataAfterExecution = true
		job.JobData["count"] = 1
		require.NoError(t, s.StoreJob(ctx, job, false))
		require.NoError(t, s.StoreTrigger(ctx, newTrigger("t1", "counter", now.Add(-time.Second)), false))

		b := fire(t, s)
		b.JobDetail.JobData["count"] = 2
		require.NoError(t, s.TriggeredJobComplete(ctx, b.Trigger, b.JobDetail, domain.InstructionNoop))

		got, err := s.RetrieveJob(ctx, domain.MustKey("counter", ""))
		require.NoError(t, err)
		count, ok := got.JobData.GetInt("count")
		require.True(t, ok)
		assert.Equal(t, 2, count)
	})
}

func TestCalendars(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.New(memstore.Config{}, nil)

	weekends := calendar.NewWeeklyCalendar(nil, time.UTC)
	require.NoError(t, s.StoreCalendar(ctx, "weekends", weekends, false, false))
	assert.ErrorIs(t, s.StoreCalendar(ctx, "weekends", weekends, false, false), store.ErrObjectAlreadyExists)

	names, err := s.CalendarNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"weekends"}, names)

	require.NoError(t, s.StoreJob(ctx, newJob("j1"), false))
	tr := newTrigger("t1", "j1", time.Now().Add(time.Hour))
	tr.CalendarName = "weekends"
	require.NoError(t, s.StoreTrigger(ctx, tr, false))

	_, err = s.RemoveCalendar(ctx, "weekends")
	assert.ErrorIs(t, err, store.ErrCalendarInUse)

	_, err = s.RemoveTrigger(ctx, tr.Key)
	require.NoError(t, err)
	removed, err := s.RemoveCalendar(ctx, "weekends")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestGroupQueries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.New(memstore.Config{}, nil)

	for _, group := range []string{"reports", "cleanup"} {
		job := newJob("j-" + group)
		job.Key.Group = group
		require.NoError(t, s.StoreJob(ctx, job, false))

		tr := newTrigger("t-"+group, "j-"+group, time.Now().Add(time.Hour))
		tr.Key.Group = group
		tr.JobKey.Group = group
		require.NoError(t, s.StoreTrigger(ctx, tr, false))
	}

	keys, err := s.JobKeys(ctx, matcher.GroupEquals("reports"))
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "j-reports", keys[0].Name)

	tkeys, err := s.TriggerKeys(ctx, matcher.GroupStartsWith("clean"))
	require.NoError(t, err)
	require.Len(t, tkeys, 1)
	assert.Equal(t, "t-cleanup", tkeys[0].Name)

	groups, err := s.JobGroupNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cleanup", "reports"}, groups)

	triggers, err := s.TriggersForJob(ctx, domain.MustKey("j-reports", "reports"))
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, "t-reports", triggers[0].Key.Name)
}

func TestClearAllSchedulingData(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := memstore.New(memstore.Config{}, nil)

	require.NoError(t, s.StoreJob(ctx, newJob("j1"), false))
	require.NoError(t, s.StoreTrigger(ctx, newTrigger("t1", "j1", time.Now()), false))
	require.NoError(t, s.StoreCalendar(ctx, "cal", calendar.NewWeeklyCalendar(nil, time.UTC), false, false))

	require.NoError(t, s.ClearAllSchedulingData(ctx))

	exists, err := s.CheckJobExists(ctx, domain.MustKey("j1", ""))
	require.NoError(t, err)
	assert.False(t, exists)
	names, err := s.CalendarNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}
