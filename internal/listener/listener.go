// Package listener defines the trigger, job and scheduler listener
// contracts and the insertion-ordered registries that fan events out to
// them. Listener failures never abort the fanout or the job's completion
// path; they surface as scheduler-error events instead.
package listener

import (
	"context"

	"github.com/jonesrussell/quartz/internal/domain"
)

// TriggerListener receives trigger lifecycle events. VetoJobExecution may
// prevent the associated job from running.
type TriggerListener interface {
	// Name identifies the registration for removal.
	Name() string

	// TriggerFired is called when a trigger has fired and its job is about
	// to be handed to a worker.
	TriggerFired(ctx context.Context, ec *domain.JobExecutionContext) error

	// VetoJobExecution is called after TriggerFired. Returning true skips
	// job execution for this fire.
	VetoJobExecution(ctx context.Context, ec *domain.JobExecutionContext) (bool, error)

	// TriggerMisfired is called when the trigger missed its fire time by
	// more than the misfire threshold.
	TriggerMisfired(ctx context.Context, t *domain.Trigger) error

	// TriggerComplete is called after the job finished and the trigger's
	// completion instruction has been derived.
	TriggerComplete(ctx context.Context, ec *domain.JobExecutionContext, instr domain.CompletedExecutionInstruction) error
}

// JobListener receives job execution events.
type JobListener interface {
	Name() string

	// JobToBeExecuted is called just before Execute, after no trigger
	// listener vetoed the fire.
	JobToBeExecuted(ctx context.Context, ec *domain.JobExecutionContext) error

	// JobExecutionVetoed is called instead of JobToBeExecuted when a
	// trigger listener vetoed the fire.
	JobExecutionVetoed(ctx context.Context, ec *domain.JobExecutionContext) error

	// JobWasExecuted is called after Execute returned; execErr is the
	// job's error, nil on success.
	JobWasExecuted(ctx context.Context, ec *domain.JobExecutionContext, execErr error) error
}

// SchedulerListener receives scheduler-wide events. Its methods are the
// terminal error sink, so they do not return errors themselves.
type SchedulerListener interface {
	SchedulerStarted()
	SchedulerInStandbyMode()
	SchedulerShuttingDown()
	SchedulerShutdown()

	// SchedulerError reports an internal failure: a store error, a
	// misbehaving listener, or a job run shell problem.
	SchedulerError(msg string, err error)

	JobScheduled(t *domain.Trigger)
	JobUnscheduled(key domain.TriggerKey)
	JobAdded(detail *domain.JobDetail)
	JobDeleted(key domain.JobKey)

	// TriggerFinalized is called when a trigger will never fire again and
	// has been removed from the store.
	TriggerFinalized(t *domain.Trigger)
	TriggerPaused(key domain.TriggerKey)
	TriggersPaused(group string)
	TriggerResumed(key domain.TriggerKey)
	TriggersResumed(group string)
}

// BaseTriggerListener is a no-op TriggerListener for embedding.
type BaseTriggerListener struct {
	ListenerName string
}

func (b BaseTriggerListener) Name() string { return b.ListenerName }

func (BaseTriggerListener) TriggerFired(context.Context, *domain.JobExecutionContext) error {
	return nil
}

func (BaseTriggerListener) VetoJobExecution(context.Context, *domain.JobExecutionContext) (bool, error) {
	return false, nil
}

func (BaseTriggerListener) TriggerMisfired(context.Context, *domain.Trigger) error { return nil }

func (BaseTriggerListener) TriggerComplete(context.Context, *domain.JobExecutionContext, domain.CompletedExecutionInstruction) error {
	return nil
}

// BaseJobListener is a no-op JobListener for embedding.
type BaseJobListener struct {
	ListenerName string
}

func (b BaseJobListener) Name() string { return b.ListenerName }

func (BaseJobListener) JobToBeExecuted(context.Context, *domain.JobExecutionContext) error {
	return nil
}

func (BaseJobListener) JobExecutionVetoed(context.Context, *domain.JobExecutionContext) error {
	return nil
}

func (BaseJobListener) JobWasExecuted(context.Context, *domain.JobExecutionContext, error) error {
	return nil
}

// BaseSchedulerListener is a no-op SchedulerListener for embedding.
type BaseSchedulerListener struct{}

func (BaseSchedulerListener) SchedulerStarted()                      {}
func (BaseSchedulerListener) SchedulerInStandbyMode()                {}
func (BaseSchedulerListener) SchedulerShuttingDown()                 {}
func (BaseSchedulerListener) SchedulerShutdown()                     {}
func (BaseSchedulerListener) SchedulerError(string, error)           {}
func (BaseSchedulerListener) JobScheduled(*domain.Trigger)           {}
func (BaseSchedulerListener) JobUnscheduled(domain.TriggerKey)       {}
func (BaseSchedulerListener) JobAdded(*domain.JobDetail)             {}
func (BaseSchedulerListener) JobDeleted(domain.JobKey)               {}
func (BaseSchedulerListener) TriggerFinalized(*domain.Trigger)       {}
func (BaseSchedulerListener) TriggerPaused(domain.TriggerKey)        {}
func (BaseSchedulerListener) TriggersPaused(string)                  {}
func (BaseSchedulerListener) TriggerResumed(domain.TriggerKey)       {}
func (BaseSchedulerListener) TriggersResumed(string)                 {}
