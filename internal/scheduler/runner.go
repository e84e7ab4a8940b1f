package scheduler

import (
	"context"
	"fmt"

	"github.com/jonesrussell/quartz/internal/domain"
	"github.com/jonesrussell/quartz/internal/logger"
	"github.com/jonesrussell/quartz/internal/schedule"
	"github.com/jonesrussell/quartz/internal/store"
)

// runJob is the run shell executed on a worker slot for one fire bundle:
// veto check, listener fanout, job execution with panic recovery, completion
// instruction derivation and the store's completion call. Listener failures
// become scheduler-error events and never derail the completion path.
func (s *Scheduler) runJob(ctx context.Context, b *store.TriggerFiredBundle) {
	ec := &domain.JobExecutionContext{
		JobDetail:      b.JobDetail,
		Trigger:        b.Trigger,
		FireInstanceID: b.Trigger.FireInstanceID,
		FireTime:       b.FireTime,
		PrevFireTime:   b.PrevFireTime,
		NextFireTime:   b.NextFireTime,
		Recovering:     b.Recovering,
		MergedJobData:  b.JobDetail.JobData.Merge(b.Trigger.JobData),
	}
	if b.ScheduledFireTime != nil {
		ec.ScheduledFireTime = *b.ScheduledFireTime
	}
	log := s.log.With("job", b.JobDetail.Key.String(), "trigger", b.Trigger.Key.String(), "fire_instance", ec.FireInstanceID)

	job, err := s.registry.NewJob(b.JobDetail.JobType)
	if err != nil {
		s.listeners.NotifySchedulerError("could not instantiate job", err)
		log.Error("job instantiation failed", "job_type", b.JobDetail.JobType, "error", err)
		s.completeFire(ctx, ec, domain.InstructionSetAllJobTriggersError, log)
		return
	}

	if s.listeners.NotifyVetoJobExecution(ctx, ec) {
		log.Debug("job execution vetoed")
		s.listeners.NotifyJobExecutionVetoed(ctx, ec)
		s.listeners.NotifyTriggerMisfired(ctx, ec.Trigger)
		instr := domain.InstructionNoop
		if !ec.Trigger.MayFireAgain() {
			instr = domain.InstructionSetTriggerComplete
		}
		s.completeFire(ctx, ec, instr, log)
		return
	}

	s.listeners.NotifyTriggerFired(ctx, ec)

	for {
		s.listeners.NotifyJobToBeExecuted(ctx, ec)

		s.trackRunning(ec.FireInstanceID, b.JobDetail.Key, job)
		execErr := s.executeJob(ctx, job, ec)
		s.untrackRunning(ec.FireInstanceID)

		ec.Err = execErr
		if execErr != nil {
			log.Error("job execution failed", "refire_count", ec.RefireCount, "error", execErr)
		} else {
			log.Debug("job executed", "refire_count", ec.RefireCount)
		}

		s.listeners.NotifyJobWasExecuted(ctx, ec, execErr)

		instr := schedule.ExecutionComplete(ec.Trigger, execErr)
		s.listeners.NotifyTriggerComplete(ctx, ec, instr)

		if instr == domain.InstructionReExecuteJob {
			ec.RefireCount++
			ec.Err = nil
			continue
		}

		s.completeFire(ctx, ec, instr, log)
		return
	}
}

// executeJob invokes the job, converting a panic into an error so a
// misbehaving job cannot take the worker down.
func (s *Scheduler) executeJob(ctx context.Context, job domain.Job, ec *domain.JobExecutionContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", ec.JobDetail.Key, p)
		}
	}()
	return job.Execute(ctx, ec)
}

func (s *Scheduler) completeFire(ctx context.Context, ec *domain.JobExecutionContext, instr domain.CompletedExecutionInstruction, log logger.Interface) {
	if err := s.store.TriggeredJobComplete(ctx, ec.Trigger, ec.JobDetail, instr); err != nil {
		s.listeners.NotifySchedulerError("failed to finalize fired trigger", err)
		log.Error("trigger completion failed", "error", err)
	}
}
