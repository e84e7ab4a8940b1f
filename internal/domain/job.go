package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Job is a unit of work executed by the scheduler's worker pool.
// Implementations are resolved from JobDetail.JobType via the registry the
// scheduler was built with.
type Job interface {
	Execute(ctx context.Context, execCtx *JobExecutionContext) error
}

// Interruptible is an optional capability: jobs implementing it can be asked
// to stop early via Scheduler.Interrupt. Interruption is best-effort; jobs
// that do not implement it cannot be preempted.
type Interruptible interface {
	Interrupt() error
}

// JobCapabilities describes execution flags that in other runtimes come from
// job-class annotations. They are resolved once, at JobDetail construction.
type JobCapabilities struct {
	// DisallowConcurrentExecution marks the job as a per-job critical
	// section: while one execution is in flight, other triggers of the same
	// job are held in the BLOCKED state.
	DisallowConcurrentExecution bool

	// PersistJobDataAfterExecution stores the job data map back after each
	// execution, making mutations visible to the next fire.
	PersistJobDataAfterExecution bool
}

// JobDetail describes a stored job: identity, the type used to instantiate
// it, its data, and its durability/recovery flags.
type JobDetail struct {
	Key         JobKey
	JobType     string
	Description string
	JobData     JobDataMap

	// Durable jobs survive with no triggers pointing at them; non-durable
	// jobs are deleted when their last trigger is removed.
	Durable bool

	// RequestsRecovery re-fires the job after an instance crash, preserving
	// the originally scheduled fire time.
	RequestsRecovery bool

	Capabilities JobCapabilities
}

// Validate checks the detail is storable.
func (d *JobDetail) Validate() error {
	if d.Key.Name == "" {
		return ValidationErrorf("job key name is required")
	}
	if d.JobType == "" {
		return ValidationErrorf("job %s: job type is required", d.Key)
	}
	return nil
}

// Clone returns a copy safe to hand across store boundaries.
func (d *JobDetail) Clone() *JobDetail {
	out := *d
	out.JobData = d.JobData.Clone()
	return &out
}

// JobExecutionContext is handed to Job.Execute and to job/trigger listeners.
// MergedJobData overlays the trigger's data on the job's data; when the job
// persists data after execution, mutations to JobDetail.JobData are written
// back by the store.
type JobExecutionContext struct {
	JobDetail *JobDetail
	Trigger   *Trigger

	// FireInstanceID uniquely identifies this firing across the cluster.
	FireInstanceID string

	FireTime          time.Time
	ScheduledFireTime time.Time
	PrevFireTime      *time.Time
	NextFireTime      *time.Time

	// Recovering is set when this execution replays a fire lost to an
	// instance crash.
	Recovering bool

	// RefireCount counts immediate re-executions requested by the job's
	// completion instruction.
	RefireCount int

	MergedJobData JobDataMap

	// Result and Err are set after Execute returns, before completion
	// listeners run.
	Result any
	Err    error
}

// Keys the scheduler injects into a recovered execution's data map.
const (
	DataKeyRecoveringTriggerName  = "QRTZ_FAILED_JOB_ORIG_TRIGGER_NAME"
	DataKeyRecoveringTriggerGroup = "QRTZ_FAILED_JOB_ORIG_TRIGGER_GROUP"
	DataKeyRecoveringFireTime     = "QRTZ_FAILED_JOB_ORIG_TRIGGER_FIRETIME_MS"
	DataKeyRecoveringSchedTime    = "QRTZ_FAILED_JOB_ORIG_TRIGGER_SCHEDULED_FIRETIME_MS"
)

// ValidationError marks client errors: bad input that is rejected
// synchronously with no state change.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// ValidationErrorf builds a ValidationError.
func ValidationErrorf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a client validation error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
