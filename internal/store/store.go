// Package store defines the job store contract shared by the in-memory
// and clustered SQL implementations, plus the types flowing across the
// acquire, fire and complete pipeline.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jonesrussell/quartz/internal/calendar"
	"github.com/jonesrussell/quartz/internal/domain"
	"github.com/jonesrussell/quartz/internal/matcher"
)

var (
	// ErrJobNotFound is returned when an operation references a job that
	// does not exist in the store.
	ErrJobNotFound = errors.New("job not found")

	// ErrTriggerNotFound is returned when an operation references a
	// trigger that does not exist in the store.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrCalendarNotFound is returned when a trigger references a
	// calendar that does not exist in the store.
	ErrCalendarNotFound = errors.New("calendar not found")

	// ErrObjectAlreadyExists is returned by Store* operations when the
	// object exists and replace was not requested.
	ErrObjectAlreadyExists = errors.New("object already exists")

	// ErrCalendarInUse is returned when removing a calendar still
	// referenced by triggers.
	ErrCalendarInUse = errors.New("calendar referenced by triggers")

	// ErrJobNotDurable is returned when storing a non-durable job with no
	// trigger referencing it.
	ErrJobNotDurable = errors.New("non-durable job stored without trigger")
)

// SchedulerSignaler is the store's callback channel into the scheduler.
// Stores use it to wake the scheduling loop after mutations and to report
// trigger events detected inside store operations.
type SchedulerSignaler interface {
	// SignalSchedulingChange tells the loop a trigger with the given
	// candidate fire time may now be due earlier than its current wait.
	// A nil candidate means "recheck immediately".
	SignalSchedulingChange(candidateNewTime *time.Time)

	// NotifyTriggerListenersMisfired reports a misfired trigger.
	NotifyTriggerListenersMisfired(t *domain.Trigger)

	// NotifySchedulerListenersFinalized reports a trigger that will never
	// fire again and has been removed.
	NotifySchedulerListenersFinalized(t *domain.Trigger)

	// NotifySchedulerListenersError reports an internal store failure.
	NotifySchedulerListenersError(msg string, err error)
}

// TriggerFiredBundle carries everything a worker needs to run one fire.
type TriggerFiredBundle struct {
	JobDetail         *domain.JobDetail
	Trigger           *domain.Trigger
	Calendar          calendar.Calendar
	Recovering        bool
	FireTime          time.Time
	ScheduledFireTime *time.Time
	PrevFireTime      *time.Time
	NextFireTime      *time.Time

	// JobDisallowsConcurrency reports that the job entered the BLOCKED
	// protocol for this fire.
	JobDisallowsConcurrency bool
}

// TriggerFiredResult is the per-trigger outcome of TriggersFired. A nil
// Bundle with a nil Err means the trigger could not be fired (vanished,
// paused or completed between acquire and fire) and should be skipped
// silently.
type TriggerFiredResult struct {
	Bundle *TriggerFiredBundle
	Err    error
}

// JobStore is the persistence contract behind the scheduler. All
// operations are atomic with respect to one another; the clustered
// implementation additionally coordinates across processes.
type JobStore interface {
	// Initialize wires the signaler and prepares the store for use.
	Initialize(ctx context.Context, sig SchedulerSignaler) error

	// Shutdown releases the store's resources.
	Shutdown(ctx context.Context) error

	// SupportsPersistence reports whether scheduling data survives
	// process restarts.
	SupportsPersistence() bool

	// Clustered reports whether the store coordinates multiple scheduler
	// instances.
	Clustered() bool

	// StoreJob stores the job, replacing an existing one only when
	// replace is set. Storing a non-durable job with no trigger fails
	// with ErrJobNotDurable.
	StoreJob(ctx context.Context, detail *domain.JobDetail, replace bool) error

	// StoreTrigger stores the trigger. The referenced job must exist.
	StoreTrigger(ctx context.Context, t *domain.Trigger, replace bool) error

	// StoreJobAndTrigger stores both atomically; neither may replace.
	StoreJobAndTrigger(ctx context.Context, detail *domain.JobDetail, t *domain.Trigger) error

	// RemoveJob deletes the job and all its triggers, reporting whether
	// the job existed.
	RemoveJob(ctx context.Context, key domain.JobKey) (bool, error)

	// RemoveTrigger deletes the trigger. When its job is non-durable and
	// no other trigger references it, the job is deleted too.
	RemoveTrigger(ctx context.Context, key domain.TriggerKey) (bool, error)

	// ReplaceTrigger swaps the trigger with newTrigger, which must
	// reference the same job. Reports whether the old trigger existed.
	ReplaceTrigger(ctx context.Context, key domain.TriggerKey, newTrigger *domain.Trigger) (bool, error)

	// RetrieveJob returns the job, or nil when absent.
	RetrieveJob(ctx context.Context, key domain.JobKey) (*domain.JobDetail, error)

	// RetrieveTrigger returns the trigger, or nil when absent.
	RetrieveTrigger(ctx context.Context, key domain.TriggerKey) (*domain.Trigger, error)

	CheckJobExists(ctx context.Context, key domain.JobKey) (bool, error)
	CheckTriggerExists(ctx context.Context, key domain.TriggerKey) (bool, error)

	// ClearAllSchedulingData removes all jobs, triggers, calendars and
	// paused group markers.
	ClearAllSchedulingData(ctx context.Context) error

	// StoreCalendar stores the named calendar. With updateTriggers set,
	// triggers referencing the calendar get their fire times recomputed.
	StoreCalendar(ctx context.Context, name string, cal calendar.Calendar, replace, updateTriggers bool) error

	// RemoveCalendar deletes the calendar; fails with ErrCalendarInUse
	// when triggers still reference it.
	RemoveCalendar(ctx context.Context, name string) (bool, error)

	// RetrieveCalendar returns the calendar, or nil when absent.
	RetrieveCalendar(ctx context.Context, name string) (calendar.Calendar, error)

	CalendarNames(ctx context.Context) ([]string, error)

	JobKeys(ctx context.Context, m matcher.GroupMatcher) ([]domain.JobKey, error)
	TriggerKeys(ctx context.Context, m matcher.GroupMatcher) ([]domain.TriggerKey, error)
	JobGroupNames(ctx context.Context) ([]string, error)
	TriggerGroupNames(ctx context.Context) ([]string, error)

	// TriggersForJob returns all triggers referencing the job.
	TriggersForJob(ctx context.Context, key domain.JobKey) ([]*domain.Trigger, error)

	// TriggerStatus returns the public status of the trigger, StatusNone
	// when absent.
	TriggerStatus(ctx context.Context, key domain.TriggerKey) (domain.TriggerStatus, error)

	// ResetTriggerFromErrorState returns an ERROR trigger to WAITING (or
	// PAUSED when its group is paused).
	ResetTriggerFromErrorState(ctx context.Context, key domain.TriggerKey) error

	PauseTrigger(ctx context.Context, key domain.TriggerKey) error

	// PauseTriggers pauses matching triggers and returns the affected
	// groups. An exact-group matcher marks the group sticky: triggers
	// added into it later are created PAUSED.
	PauseTriggers(ctx context.Context, m matcher.GroupMatcher) ([]string, error)

	PauseJob(ctx context.Context, key domain.JobKey) error
	PauseJobs(ctx context.Context, m matcher.GroupMatcher) ([]string, error)

	// ResumeTrigger returns the trigger to WAITING, applying the misfire
	// policy if its fire time passed while paused.
	ResumeTrigger(ctx context.Context, key domain.TriggerKey) error

	ResumeTriggers(ctx context.Context, m matcher.GroupMatcher) ([]string, error)
	ResumeJob(ctx context.Context, key domain.JobKey) error
	ResumeJobs(ctx context.Context, m matcher.GroupMatcher) ([]string, error)

	// PauseAll pauses every trigger group, including groups created
	// later.
	PauseAll(ctx context.Context) error

	// ResumeAll resumes every trigger group and clears all sticky
	// markers.
	ResumeAll(ctx context.Context) error

	PausedTriggerGroups(ctx context.Context) ([]string, error)

	// AcquireNextTriggers atomically claims up to maxCount WAITING
	// triggers due no later than noLaterThan+timeWindow, ordered by
	// (nextFireTime asc, priority desc, key asc). Misfired candidates
	// have their misfire policy applied first.
	AcquireNextTriggers(ctx context.Context, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]*domain.Trigger, error)

	// ReleaseAcquiredTrigger returns an acquired but unfired trigger to
	// WAITING.
	ReleaseAcquiredTrigger(ctx context.Context, t *domain.Trigger) error

	// TriggersFired transitions the acquired triggers to EXECUTING,
	// advances their schedules and resolves their fire bundles. Results
	// are positional with the input.
	TriggersFired(ctx context.Context, triggers []*domain.Trigger) ([]TriggerFiredResult, error)

	// TriggeredJobComplete finalizes a fire: applies the completion
	// instruction, persists job data when the job requests it, and
	// unblocks the job when this was its last executing instance.
	TriggeredJobComplete(ctx context.Context, t *domain.Trigger, detail *domain.JobDetail, instr domain.CompletedExecutionInstruction) error
}
