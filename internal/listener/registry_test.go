package listener_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/quartz/internal/domain"
	"github.com/jonesrussell/quartz/internal/listener"
	"github.com/jonesrussell/quartz/internal/matcher"
)

type recordingTriggerListener struct {
	listener.BaseTriggerListener

	log     *[]string
	veto    bool
	fireErr error
}

func (l *recordingTriggerListener) TriggerFired(_ context.Context, _ *domain.JobExecutionContext) error {
	*l.log = append(*l.log, l.ListenerName+":fired")
	return l.fireErr
}

func (l *recordingTriggerListener) VetoJobExecution(_ context.Context, _ *domain.JobExecutionContext) (bool, error) {
	*l.log = append(*l.log, l.ListenerName+":veto")
	return l.veto, nil
}

type recordingJobListener struct {
	listener.BaseJobListener

	log *[]string
}

func (l *recordingJobListener) JobWasExecuted(_ context.Context, _ *domain.JobExecutionContext, _ error) error {
	*l.log = append(*l.log, l.ListenerName+":executed")
	return nil
}

type errorCollector struct {
	listener.BaseSchedulerListener

	errs []error
}

func (c *errorCollector) SchedulerError(_ string, err error) {
	c.errs = append(c.errs, err)
}

func execContext(triggerGroup, jobGroup string) *domain.JobExecutionContext {
	return &domain.JobExecutionContext{
		Trigger:   &domain.Trigger{Key: domain.TriggerKey{Name: "t1", Group: triggerGroup}},
		JobDetail: &domain.JobDetail{Key: domain.JobKey{Name: "j1", Group: jobGroup}},
	}
}

func TestRegistry_ConcurrentRegistrationAndFanout(t *testing.T) {
	t.Parallel()

	r := listener.NewRegistry(nil)
	ec := execContext("g", "g")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r.AddTriggerListener(listener.BaseTriggerListener{
				ListenerName: fmt.Sprintf("l%d", i),
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			r.NotifyTriggerFired(context.Background(), ec)
		}
	}()
	wg.Wait()

	assert.Len(t, r.TriggerListeners(), 1000)
}

func TestRegistry_FanoutOrder(t *testing.T) {
	t.Parallel()

	var log []string
	r := listener.NewRegistry(nil)
	r.AddTriggerListener(&recordingTriggerListener{
		BaseTriggerListener: listener.BaseTriggerListener{ListenerName: "first"}, log: &log,
	})
	r.AddTriggerListener(&recordingTriggerListener{
		BaseTriggerListener: listener.BaseTriggerListener{ListenerName: "second"}, log: &log,
	})

	r.NotifyTriggerFired(context.Background(), execContext("g", "g"))
	assert.Equal(t, []string{"first:fired", "second:fired"}, log)
}

func TestRegistry_MatcherFiltering(t *testing.T) {
	t.Parallel()

	var log []string
	r := listener.NewRegistry(nil)
	r.AddTriggerListener(&recordingTriggerListener{
		BaseTriggerListener: listener.BaseTriggerListener{ListenerName: "reports-only"}, log: &log,
	}, matcher.GroupEquals("reports"))
	r.AddTriggerListener(&recordingTriggerListener{
		BaseTriggerListener: listener.BaseTriggerListener{ListenerName: "everything"}, log: &log,
	})

	r.NotifyTriggerFired(context.Background(), execContext("batch", "batch"))
	assert.Equal(t, []string{"everything:fired"}, log)

	log = log[:0]
	r.NotifyTriggerFired(context.Background(), execContext("reports", "reports"))
	assert.Equal(t, []string{"reports-only:fired", "everything:fired"}, log)
}

func TestRegistry_VetoAnyTrue(t *testing.T) {
	t.Parallel()

	var log []string
	r := listener.NewRegistry(nil)
	r.AddTriggerListener(&recordingTriggerListener{
		BaseTriggerListener: listener.BaseTriggerListener{ListenerName: "approve"}, log: &log,
	})
	r.AddTriggerListener(&recordingTriggerListener{
		BaseTriggerListener: listener.BaseTriggerListener{ListenerName: "deny"}, log: &log, veto: true,
	})

	vetoed := r.NotifyVetoJobExecution(context.Background(), execContext("g", "g"))
	assert.True(t, vetoed)
	// Every listener is still consulted, even after a veto.
	assert.Equal(t, []string{"approve:veto", "deny:veto"}, log)

	r2 := listener.NewRegistry(nil)
	r2.AddTriggerListener(&recordingTriggerListener{
		BaseTriggerListener: listener.BaseTriggerListener{ListenerName: "approve"}, log: &log,
	})
	assert.False(t, r2.NotifyVetoJobExecution(context.Background(), execContext("g", "g")))
}

func TestRegistry_FaultIsolation(t *testing.T) {
	t.Parallel()

	var log []string
	collector := &errorCollector{}
	r := listener.NewRegistry(nil)
	r.AddSchedulerListener(collector)
	r.AddTriggerListener(&recordingTriggerListener{
		BaseTriggerListener: listener.BaseTriggerListener{ListenerName: "broken"},
		log:                 &log,
		fireErr:             errors.New("listener blew up"),
	})
	r.AddTriggerListener(&recordingTriggerListener{
		BaseTriggerListener: listener.BaseTriggerListener{ListenerName: "healthy"}, log: &log,
	})

	r.NotifyTriggerFired(context.Background(), execContext("g", "g"))

	// The failure is reported as a scheduler error and the fanout continues.
	assert.Equal(t, []string{"broken:fired", "healthy:fired"}, log)
	require.Len(t, collector.errs, 1)
	assert.ErrorContains(t, collector.errs[0], "listener blew up")
}

func TestRegistry_RemoveByName(t *testing.T) {
	t.Parallel()

	var log []string
	r := listener.NewRegistry(nil)
	r.AddJobListener(&recordingJobListener{
		BaseJobListener: listener.BaseJobListener{ListenerName: "keep"}, log: &log,
	})
	r.AddJobListener(&recordingJobListener{
		BaseJobListener: listener.BaseJobListener{ListenerName: "drop"}, log: &log,
	})

	assert.True(t, r.RemoveJobListener("drop"))
	assert.False(t, r.RemoveJobListener("drop"))

	r.NotifyJobWasExecuted(context.Background(), execContext("g", "g"), nil)
	assert.Equal(t, []string{"keep:executed"}, log)

	names := make([]string, 0, 1)
	for _, l := range r.JobListeners() {
		names = append(names, l.Name())
	}
	assert.Equal(t, []string{"keep"}, names)
}

func TestRegistry_SchedulerFanout(t *testing.T) {
	t.Parallel()

	collector := &errorCollector{}
	var started int
	r := listener.NewRegistry(nil)
	r.AddSchedulerListener(collector)

	r.NotifyScheduler(func(l listener.SchedulerListener) {
		started++
		l.SchedulerStarted()
	})
	assert.Equal(t, 1, started)

	assert.True(t, r.RemoveSchedulerListener(collector))
	assert.False(t, r.RemoveSchedulerListener(collector))
}
