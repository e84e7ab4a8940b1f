package domain

// JobExecutionError lets a job steer the scheduler's reaction to a failed
// (or deliberately short-circuited) execution. Plain errors returned from
// Execute are treated as a JobExecutionError with no flags set.
type JobExecutionError struct {
	Cause error

	// RefireImmediately asks the worker to run the job again right away.
	RefireImmediately bool

	// UnscheduleTrigger completes the firing trigger.
	UnscheduleTrigger bool

	// UnscheduleAllTriggers completes every trigger of the job.
	UnscheduleAllTriggers bool
}

func (e *JobExecutionError) Error() string {
	if e.Cause == nil {
		return "job execution error"
	}
	return "job execution error: " + e.Cause.Error()
}

func (e *JobExecutionError) Unwrap() error { return e.Cause }
