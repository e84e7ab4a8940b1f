// Package scheduler ties the job store, the worker pool and the listener
// registries together behind the scheduling facade. One Scheduler owns one
// scheduling loop; clustered deployments run one Scheduler per process
// against a shared SQL store.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/quartz/internal/calendar"
	"github.com/jonesrussell/quartz/internal/domain"
	"github.com/jonesrussell/quartz/internal/listener"
	"github.com/jonesrussell/quartz/internal/logger"
	"github.com/jonesrussell/quartz/internal/matcher"
	"github.com/jonesrussell/quartz/internal/schedule"
	"github.com/jonesrussell/quartz/internal/store"
	"github.com/jonesrussell/quartz/internal/worker"
)

// ManualTriggersGroup holds the one-shot triggers created by TriggerJob.
const ManualTriggersGroup = "MANUAL_TRIGGER"

// State is the scheduler lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateStandby
	StateStarted
	StateShuttingDown
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStandby:
		return "standby"
	case StateStarted:
		return "started"
	case StateShuttingDown:
		return "shutting_down"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

var (
	// ErrSchedulerShutdown is returned by operations invoked after
	// Shutdown.
	ErrSchedulerShutdown = errors.New("scheduler has been shut down")

	// ErrTriggerWillNeverFire is returned when scheduling a trigger whose
	// schedule, filtered through its calendar, yields no fire time at all.
	ErrTriggerWillNeverFire = errors.New("trigger will never fire")
)

type runningJob struct {
	jobKey domain.JobKey
	job    domain.Job
}

// Scheduler is the facade over one scheduling instance.
type Scheduler struct {
	cfg       Config
	store     store.JobStore
	pool      *worker.Pool
	listeners *listener.Registry
	registry  *JobRegistry
	log       logger.Interface

	state atomic.Int32
	loop  *loop

	initOnce sync.Once
	initErr  error

	runMu   sync.Mutex
	running map[string]runningJob
}

// New builds a scheduler. The store is initialized lazily on the first
// Start; until then the facade operations work against an uninitialized
// store only if the store allows it, so call Start (or Standby-start) before
// scheduling against a clustered store.
func New(cfg Config, st store.JobStore, pool *worker.Pool, listeners *listener.Registry, registry *JobRegistry, log logger.Interface) (*Scheduler, error) {
	if st == nil {
		return nil, errors.New("job store is required")
	}
	if pool == nil {
		return nil, errors.New("worker pool is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scheduler config: %w", err)
	}
	if listeners == nil {
		listeners = listener.NewRegistry(log)
	}
	if registry == nil {
		registry = NewJobRegistry()
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	s := &Scheduler{
		cfg:       cfg.withDefaults(),
		store:     st,
		pool:      pool,
		listeners: listeners,
		registry:  registry,
		running:   make(map[string]runningJob),
	}
	s.log = log.With("component", "scheduler", "instance", s.cfg.InstanceID)
	s.loop = newLoop(s)
	s.state.Store(int32(StateCreated))
	return s, nil
}

// Name returns the scheduler name shared by clustered peers.
func (s *Scheduler) Name() string { return s.cfg.Name }

// InstanceID returns this instance's unique id.
func (s *Scheduler) InstanceID() string { return s.cfg.InstanceID }

// State returns the current lifecycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// ListenerRegistry exposes the listener registries for registration.
func (s *Scheduler) ListenerRegistry() *listener.Registry { return s.listeners }

// JobRegistry exposes the job type registry.
func (s *Scheduler) Jobs() *JobRegistry { return s.registry }

func (s *Scheduler) checkNotShutdown() error {
	switch s.State() {
	case StateShuttingDown, StateShutdown:
		return ErrSchedulerShutdown
	default:
		return nil
	}
}

// initialize wires the signaler into the store exactly once.
func (s *Scheduler) initialize(ctx context.Context) error {
	s.initOnce.Do(func() {
		s.initErr = s.store.Initialize(ctx, &storeSignaler{s: s})
	})
	return s.initErr
}

// Start moves the scheduler into STARTED and begins firing triggers. The
// first call initializes the store and spawns the scheduling loop; Start
// after Standby just resumes the loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.checkNotShutdown(); err != nil {
		return err
	}
	if err := s.initialize(ctx); err != nil {
		return fmt.Errorf("initialize job store: %w", err)
	}
	if err := s.pool.Start(); err != nil && !errors.Is(err, worker.ErrPoolAlreadyRunning) {
		return fmt.Errorf("start worker pool: %w", err)
	}

	if s.state.CompareAndSwap(int32(StateCreated), int32(StateStarted)) {
		s.loop.start()
	} else if !s.state.CompareAndSwap(int32(StateStandby), int32(StateStarted)) {
		// Already started, nothing to do.
		return nil
	}

	s.log.Info("scheduler started", "name", s.cfg.Name)
	s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.SchedulerStarted() })
	s.loop.signal(nil)
	return nil
}

// Standby pauses trigger firing without releasing any resources. Jobs
// already handed to workers keep running.
func (s *Scheduler) Standby() error {
	if err := s.checkNotShutdown(); err != nil {
		return err
	}
	if !s.state.CompareAndSwap(int32(StateStarted), int32(StateStandby)) {
		if !s.state.CompareAndSwap(int32(StateCreated), int32(StateStandby)) {
			return nil
		}
		s.loop.start()
	}
	s.log.Info("scheduler in standby")
	s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.SchedulerInStandbyMode() })
	s.loop.signal(nil)
	return nil
}

// Shutdown stops the scheduling loop, drains the worker pool when wait is
// set, and closes the store. The scheduler cannot be restarted afterwards.
func (s *Scheduler) Shutdown(ctx context.Context, wait bool) error {
	prev := State(s.state.Swap(int32(StateShuttingDown)))
	if prev == StateShuttingDown || prev == StateShutdown {
		s.state.Store(int32(prev))
		return nil
	}
	s.log.Info("scheduler shutting down", "wait_for_jobs", wait)
	s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.SchedulerShuttingDown() })

	if prev == StateStarted || prev == StateStandby {
		s.loop.stop()
	}

	poolCtx := ctx
	if !wait {
		var cancel context.CancelFunc
		poolCtx, cancel = context.WithCancel(ctx)
		cancel()
	}
	if err := s.pool.Stop(poolCtx); err != nil && wait {
		s.log.Error("worker pool drain incomplete", "error", err)
	}

	var storeErr error
	if err := s.store.Shutdown(ctx); err != nil {
		storeErr = fmt.Errorf("shut down job store: %w", err)
		s.log.Error("job store shutdown failed", "error", err)
	}

	s.state.Store(int32(StateShutdown))
	s.log.Info("scheduler shut down")
	s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.SchedulerShutdown() })
	return storeErr
}

// ScheduleJob stores the job and its trigger atomically and returns the
// trigger's first fire time.
func (s *Scheduler) ScheduleJob(ctx context.Context, detail *domain.JobDetail, t *domain.Trigger) (*time.Time, error) {
	if err := s.checkNotShutdown(); err != nil {
		return nil, err
	}
	if detail == nil {
		return nil, domain.ValidationErrorf("job detail is required")
	}
	if t == nil {
		return nil, domain.ValidationErrorf("trigger is required")
	}
	if err := detail.Validate(); err != nil {
		return nil, err
	}
	if t.JobKey.IsZero() {
		t.JobKey = detail.Key
	} else if t.JobKey != detail.Key {
		return nil, domain.ValidationErrorf("trigger %s references job %s, not %s", t.Key, t.JobKey, detail.Key)
	}

	first, err := s.prepareTrigger(ctx, t)
	if err != nil {
		return nil, err
	}
	if err := s.store.StoreJobAndTrigger(ctx, detail, t); err != nil {
		return nil, err
	}

	s.log.Debug("job scheduled", "job", detail.Key.String(), "trigger", t.Key.String(), "first_fire", first)
	s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.JobAdded(detail) })
	s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.JobScheduled(t) })
	s.loop.signal(first)
	return first, nil
}

// ScheduleTrigger schedules an additional trigger for an already stored job.
func (s *Scheduler) ScheduleTrigger(ctx context.Context, t *domain.Trigger) (*time.Time, error) {
	if err := s.checkNotShutdown(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, domain.ValidationErrorf("trigger is required")
	}
	first, err := s.prepareTrigger(ctx, t)
	if err != nil {
		return nil, err
	}
	if err := s.store.StoreTrigger(ctx, t, false); err != nil {
		return nil, err
	}
	s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.JobScheduled(t) })
	s.loop.signal(first)
	return first, nil
}

// prepareTrigger validates the trigger and computes its first fire time
// through its calendar, mutating NextFireTime.
func (s *Scheduler) prepareTrigger(ctx context.Context, t *domain.Trigger) (*time.Time, error) {
	if err := schedule.Validate(t); err != nil {
		return nil, err
	}
	var cal calendar.Calendar
	if t.CalendarName != "" {
		var err error
		cal, err = s.store.RetrieveCalendar(ctx, t.CalendarName)
		if err != nil {
			return nil, err
		}
		if cal == nil {
			return nil, domain.ValidationErrorf("trigger %s references unknown calendar %q", t.Key, t.CalendarName)
		}
	}
	first := schedule.ComputeFirstFireTime(t, cal)
	if first == nil {
		return nil, fmt.Errorf("trigger %s: %w", t.Key, ErrTriggerWillNeverFire)
	}
	t.NextFireTime = domain.TimePtr(*first)
	return first, nil
}

// AddJob stores a job without a trigger. Non-durable jobs are rejected by
// the store.
func (s *Scheduler) AddJob(ctx context.Context, detail *domain.JobDetail, replace bool) error {
	if err := s.checkNotShutdown(); err != nil {
		return err
	}
	if detail == nil {
		return domain.ValidationErrorf("job detail is required")
	}
	if err := s.store.StoreJob(ctx, detail, replace); err != nil {
		return err
	}
	s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.JobAdded(detail) })
	return nil
}

// DeleteJob removes the job and all of its triggers.
func (s *Scheduler) DeleteJob(ctx context.Context, key domain.JobKey) (bool, error) {
	if err := s.checkNotShutdown(); err != nil {
		return false, err
	}
	existed, err := s.store.RemoveJob(ctx, key)
	if err != nil {
		return false, err
	}
	if existed {
		s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.JobDeleted(key) })
	}
	return existed, nil
}

// UnscheduleJob removes the trigger, deleting its job too when the job is
// non-durable and this was its last trigger.
func (s *Scheduler) UnscheduleJob(ctx context.Context, key domain.TriggerKey) (bool, error) {
	if err := s.checkNotShutdown(); err != nil {
		return false, err
	}
	existed, err := s.store.RemoveTrigger(ctx, key)
	if err != nil {
		return false, err
	}
	if existed {
		s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.JobUnscheduled(key) })
	}
	return existed, nil
}

// RescheduleJob replaces the trigger with newTrigger, which fires the same
// job. Returns the new first fire time, or nil when the old trigger was not
// found.
func (s *Scheduler) RescheduleJob(ctx context.Context, key domain.TriggerKey, newTrigger *domain.Trigger) (*time.Time, error) {
	if err := s.checkNotShutdown(); err != nil {
		return nil, err
	}
	if newTrigger == nil {
		return nil, domain.ValidationErrorf("new trigger is required")
	}
	old, err := s.store.RetrieveTrigger(ctx, key)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, nil
	}
	if newTrigger.JobKey.IsZero() {
		newTrigger.JobKey = old.JobKey
	}
	first, err := s.prepareTrigger(ctx, newTrigger)
	if err != nil {
		return nil, err
	}
	replaced, err := s.store.ReplaceTrigger(ctx, key, newTrigger)
	if err != nil {
		return nil, err
	}
	if !replaced {
		return nil, nil
	}
	s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.JobUnscheduled(key) })
	s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.JobScheduled(newTrigger) })
	s.loop.signal(first)
	return first, nil
}

// TriggerJob fires the job once, now, with the given data overlaid on the
// job's own data map.
func (s *Scheduler) TriggerJob(ctx context.Context, key domain.JobKey, data domain.JobDataMap) error {
	if err := s.checkNotShutdown(); err != nil {
		return err
	}
	now := time.Now()
	t := &domain.Trigger{
		Key:                domain.TriggerKey{Name: "MT_" + uuid.New().String(), Group: ManualTriggersGroup},
		JobKey:             key,
		JobData:            data.Clone(),
		StartTime:          now,
		MisfireInstruction: domain.MisfireIgnorePolicy,
		Simple:             &domain.SimpleSchedule{},
	}
	first, err := s.prepareTrigger(ctx, t)
	if err != nil {
		return err
	}
	if err := s.store.StoreTrigger(ctx, t, false); err != nil {
		return err
	}
	s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.JobScheduled(t) })
	s.loop.signal(first)
	return nil
}

// PauseTrigger pauses the trigger.
func (s *Scheduler) PauseTrigger(ctx context.Context, key domain.TriggerKey) error {
	if err := s.checkNotShutdown(); err != nil {
		return err
	}
	if err := s.store.PauseTrigger(ctx, key); err != nil {
		return err
	}
	s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.TriggerPaused(key) })
	return nil
}

// PauseTriggers pauses all triggers in matching groups and returns the
// affected group names. Exact-group matchers mark the group sticky.
func (s *Scheduler) PauseTriggers(ctx context.Context, m matcher.GroupMatcher) ([]string, error) {
	if err := s.checkNotShutdown(); err != nil {
		return nil, err
	}
	groups, err := s.store.PauseTriggers(ctx, m)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		group := g
		s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.TriggersPaused(group) })
	}
	return groups, nil
}

// PauseJob pauses every trigger of the job.
func (s *Scheduler) PauseJob(ctx context.Context, key domain.JobKey) error {
	if err := s.checkNotShutdown(); err != nil {
		return err
	}
	return s.store.PauseJob(ctx, key)
}

// PauseJobs pauses the triggers of every job in matching groups.
func (s *Scheduler) PauseJobs(ctx context.Context, m matcher.GroupMatcher) ([]string, error) {
	if err := s.checkNotShutdown(); err != nil {
		return nil, err
	}
	return s.store.PauseJobs(ctx, m)
}

// ResumeTrigger resumes the trigger, applying its misfire policy when its
// fire time passed while paused.
func (s *Scheduler) ResumeTrigger(ctx context.Context, key domain.TriggerKey) error {
	if err := s.checkNotShutdown(); err != nil {
		return err
	}
	if err := s.store.ResumeTrigger(ctx, key); err != nil {
		return err
	}
	s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.TriggerResumed(key) })
	s.loop.signal(nil)
	return nil
}

// ResumeTriggers resumes matching groups and clears their sticky markers.
func (s *Scheduler) ResumeTriggers(ctx context.Context, m matcher.GroupMatcher) ([]string, error) {
	if err := s.checkNotShutdown(); err != nil {
		return nil, err
	}
	groups, err := s.store.ResumeTriggers(ctx, m)
	if err != nil {
		return nil, err
	}
	for _, g := range groups {
		group := g
		s.listeners.NotifyScheduler(func(l listener.SchedulerListener) { l.TriggersResumed(group) })
	}
	s.loop.signal(nil)
	return groups, nil
}

// ResumeJob resumes every trigger of the job.
func (s *Scheduler) ResumeJob(ctx context.Context, key domain.JobKey) error {
	if err := s.checkNotShutdown(); err != nil {
		return err
	}
	if err := s.store.ResumeJob(ctx, key); err != nil {
		return err
	}
	s.loop.signal(nil)
	return nil
}

// ResumeJobs resumes the triggers of every job in matching groups.
func (s *Scheduler) ResumeJobs(ctx context.Context, m matcher.GroupMatcher) ([]string, error) {
	if err := s.checkNotShutdown(); err != nil {
		return nil, err
	}
	groups, err := s.store.ResumeJobs(ctx, m)
	if err != nil {
		return nil, err
	}
	s.loop.signal(nil)
	return groups, nil
}

// PauseAll pauses every trigger group, including groups created later.
func (s *Scheduler) PauseAll(ctx context.Context) error {
	if err := s.checkNotShutdown(); err != nil {
		return err
	}
	return s.store.PauseAll(ctx)
}

// ResumeAll resumes every trigger group and clears all sticky markers.
func (s *Scheduler) ResumeAll(ctx context.Context) error {
	if err := s.checkNotShutdown(); err != nil {
		return err
	}
	if err := s.store.ResumeAll(ctx); err != nil {
		return err
	}
	s.loop.signal(nil)
	return nil
}

// TriggerState returns the trigger's public status, StatusNone when absent.
func (s *Scheduler) TriggerState(ctx context.Context, key domain.TriggerKey) (domain.TriggerStatus, error) {
	return s.store.TriggerStatus(ctx, key)
}

// ResetTriggerFromErrorState returns an ERROR trigger to normal operation.
func (s *Scheduler) ResetTriggerFromErrorState(ctx context.Context, key domain.TriggerKey) error {
	if err := s.checkNotShutdown(); err != nil {
		return err
	}
	if err := s.store.ResetTriggerFromErrorState(ctx, key); err != nil {
		return err
	}
	s.loop.signal(nil)
	return nil
}

// AddCalendar stores a named calendar. With updateTriggers set, fire times
// of triggers referencing it are recomputed.
func (s *Scheduler) AddCalendar(ctx context.Context, name string, cal calendar.Calendar, replace, updateTriggers bool) error {
	if err := s.checkNotShutdown(); err != nil {
		return err
	}
	if err := s.store.StoreCalendar(ctx, name, cal, replace, updateTriggers); err != nil {
		return err
	}
	if updateTriggers {
		s.loop.signal(nil)
	}
	return nil
}

// DeleteCalendar removes the calendar; it must not be referenced by any
// trigger.
func (s *Scheduler) DeleteCalendar(ctx context.Context, name string) (bool, error) {
	if err := s.checkNotShutdown(); err != nil {
		return false, err
	}
	return s.store.RemoveCalendar(ctx, name)
}

// GetCalendar returns the named calendar, nil when absent.
func (s *Scheduler) GetCalendar(ctx context.Context, name string) (calendar.Calendar, error) {
	return s.store.RetrieveCalendar(ctx, name)
}

// CalendarNames lists the stored calendar names.
func (s *Scheduler) CalendarNames(ctx context.Context) ([]string, error) {
	return s.store.CalendarNames(ctx)
}

// GetJobDetail returns the stored job, nil when absent.
func (s *Scheduler) GetJobDetail(ctx context.Context, key domain.JobKey) (*domain.JobDetail, error) {
	return s.store.RetrieveJob(ctx, key)
}

// GetTrigger returns the stored trigger, nil when absent.
func (s *Scheduler) GetTrigger(ctx context.Context, key domain.TriggerKey) (*domain.Trigger, error) {
	return s.store.RetrieveTrigger(ctx, key)
}

// TriggersOfJob returns all triggers referencing the job.
func (s *Scheduler) TriggersOfJob(ctx context.Context, key domain.JobKey) ([]*domain.Trigger, error) {
	return s.store.TriggersForJob(ctx, key)
}

// JobKeys lists stored job keys with groups accepted by m.
func (s *Scheduler) JobKeys(ctx context.Context, m matcher.GroupMatcher) ([]domain.JobKey, error) {
	return s.store.JobKeys(ctx, m)
}

// TriggerKeys lists stored trigger keys with groups accepted by m.
func (s *Scheduler) TriggerKeys(ctx context.Context, m matcher.GroupMatcher) ([]domain.TriggerKey, error) {
	return s.store.TriggerKeys(ctx, m)
}

// JobGroupNames lists the distinct job groups.
func (s *Scheduler) JobGroupNames(ctx context.Context) ([]string, error) {
	return s.store.JobGroupNames(ctx)
}

// TriggerGroupNames lists the distinct trigger groups.
func (s *Scheduler) TriggerGroupNames(ctx context.Context) ([]string, error) {
	return s.store.TriggerGroupNames(ctx)
}

// PausedTriggerGroups lists the sticky paused trigger groups.
func (s *Scheduler) PausedTriggerGroups(ctx context.Context) ([]string, error) {
	return s.store.PausedTriggerGroups(ctx)
}

// CheckJobExists reports whether the job is stored.
func (s *Scheduler) CheckJobExists(ctx context.Context, key domain.JobKey) (bool, error) {
	return s.store.CheckJobExists(ctx, key)
}

// CheckTriggerExists reports whether the trigger is stored.
func (s *Scheduler) CheckTriggerExists(ctx context.Context, key domain.TriggerKey) (bool, error) {
	return s.store.CheckTriggerExists(ctx, key)
}

// Clear removes all jobs, triggers, calendars and paused-group markers.
func (s *Scheduler) Clear(ctx context.Context) error {
	if err := s.checkNotShutdown(); err != nil {
		return err
	}
	return s.store.ClearAllSchedulingData(ctx)
}

// Interrupt asks every currently executing instance of the job to stop.
// Only jobs implementing domain.Interruptible can be interrupted; the
// return value reports whether at least one running instance was asked.
func (s *Scheduler) Interrupt(key domain.JobKey) (bool, error) {
	s.runMu.Lock()
	var targets []domain.Job
	for _, r := range s.running {
		if r.jobKey == key {
			targets = append(targets, r.job)
		}
	}
	s.runMu.Unlock()

	interrupted := false
	var errs error
	for _, job := range targets {
		in, ok := job.(domain.Interruptible)
		if !ok {
			continue
		}
		interrupted = true
		if err := in.Interrupt(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("interrupt job %s: %w", key, err))
		}
	}
	return interrupted, errs
}

// CurrentlyExecutingJobs returns the job keys with at least one execution
// in flight on this instance.
func (s *Scheduler) CurrentlyExecutingJobs() []domain.JobKey {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	seen := make(map[domain.JobKey]struct{}, len(s.running))
	out := make([]domain.JobKey, 0, len(s.running))
	for _, r := range s.running {
		if _, ok := seen[r.jobKey]; ok {
			continue
		}
		seen[r.jobKey] = struct{}{}
		out = append(out, r.jobKey)
	}
	return out
}

func (s *Scheduler) trackRunning(fireInstanceID string, key domain.JobKey, job domain.Job) {
	s.runMu.Lock()
	s.running[fireInstanceID] = runningJob{jobKey: key, job: job}
	s.runMu.Unlock()
}

func (s *Scheduler) untrackRunning(fireInstanceID string) {
	s.runMu.Lock()
	delete(s.running, fireInstanceID)
	s.runMu.Unlock()
}
