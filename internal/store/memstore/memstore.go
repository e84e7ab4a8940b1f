// Package memstore provides the in-memory job store. A single mutex
// guards all state; a time-ordered index over waiting triggers backs the
// acquire path. Nothing survives process restart.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/quartz/internal/calendar"
	"github.com/jonesrussell/quartz/internal/domain"
	"github.com/jonesrussell/quartz/internal/logger"
	"github.com/jonesrussell/quartz/internal/matcher"
	"github.com/jonesrussell/quartz/internal/schedule"
	"github.com/jonesrussell/quartz/internal/store"
)

// DefaultMisfireThreshold matches the clustered store's default.
const DefaultMisfireThreshold = time.Minute

// Config carries the store's tunables.
type Config struct {
	// MisfireThreshold is how far a WAITING trigger's next fire time may
	// lag behind the clock before its misfire policy applies. Zero means
	// DefaultMisfireThreshold.
	MisfireThreshold time.Duration
}

type triggerRecord struct {
	trigger *domain.Trigger
	state   domain.TriggerState
}

type jobRecord struct {
	detail *domain.JobDetail
}

// Store is the in-memory job store.
type Store struct {
	mu  sync.Mutex
	log logger.Interface
	sig store.SchedulerSignaler

	misfireThreshold time.Duration

	jobs     map[domain.JobKey]*jobRecord
	triggers map[domain.TriggerKey]*triggerRecord

	// timeIndex holds the WAITING trigger records ordered by
	// (nextFireTime asc, priority desc, key asc).
	timeIndex []*triggerRecord

	calendars map[string]calendar.Calendar

	pausedTriggerGroups map[string]struct{}
	pausedJobGroups     map[string]struct{}

	// blockedJobs are concurrency-disallowed jobs with a fire in flight.
	blockedJobs map[domain.JobKey]struct{}

	// firedRecords tracks in-flight fires by fire instance id.
	firedRecords map[string]*domain.FiredTriggerRecord
}

var _ store.JobStore = (*Store)(nil)

// New builds an empty store. A nil log falls back to the no-op logger.
func New(cfg Config, log logger.Interface) *Store {
	if log == nil {
		log = logger.NewNoOp()
	}
	threshold := cfg.MisfireThreshold
	if threshold <= 0 {
		threshold = DefaultMisfireThreshold
	}
	return &Store{
		log:                 log,
		misfireThreshold:    threshold,
		jobs:                make(map[domain.JobKey]*jobRecord),
		triggers:            make(map[domain.TriggerKey]*triggerRecord),
		calendars:           make(map[string]calendar.Calendar),
		pausedTriggerGroups: make(map[string]struct{}),
		pausedJobGroups:     make(map[string]struct{}),
		blockedJobs:         make(map[domain.JobKey]struct{}),
		firedRecords:        make(map[string]*domain.FiredTriggerRecord),
	}
}

// Initialize wires the signaler.
func (s *Store) Initialize(_ context.Context, sig store.SchedulerSignaler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sig = sig
	return nil
}

// Shutdown is a no-op for the in-memory store.
func (s *Store) Shutdown(context.Context) error { return nil }

func (s *Store) SupportsPersistence() bool { return false }

func (s *Store) Clustered() bool { return false }

// fireOrderLess implements the acquire ordering. Triggers without a next
// fire time sort last.
func fireOrderLess(a, b *domain.Trigger) bool {
	an, bn := a.NextFireTime, b.NextFireTime
	switch {
	case an == nil && bn == nil:
	case an == nil:
		return false
	case bn == nil:
		return true
	case !an.Equal(*bn):
		return an.Before(*bn)
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Key.Less(b.Key)
}

// indexInsert adds rec to the time index, keeping it sorted.
func (s *Store) indexInsert(rec *triggerRecord) {
	i := sort.Search(len(s.timeIndex), func(i int) bool {
		return fireOrderLess(rec.trigger, s.timeIndex[i].trigger)
	})
	s.timeIndex = append(s.timeIndex, nil)
	copy(s.timeIndex[i+1:], s.timeIndex[i:])
	s.timeIndex[i] = rec
}

// indexRemove drops rec from the time index if present.
func (s *Store) indexRemove(rec *triggerRecord) {
	for i, r := range s.timeIndex {
		if r == rec {
			s.timeIndex = append(s.timeIndex[:i], s.timeIndex[i+1:]...)
			return
		}
	}
}

// setState transitions rec, maintaining the time index invariant that it
// holds exactly the WAITING records.
func (s *Store) setState(rec *triggerRecord, state domain.TriggerState) {
	if rec.state == state {
		return
	}
	wasWaiting := rec.state == domain.StateWaiting
	rec.state = state
	if wasWaiting {
		s.indexRemove(rec)
	}
	if state == domain.StateWaiting {
		s.indexInsert(rec)
	}
}

// StoreJob stores the job detail. A non-durable job must already have a
// trigger pointing at it; jobs stored ahead of their triggers have to be
// durable.
func (s *Store) StoreJob(_ context.Context, detail *domain.JobDetail, replace bool) error {
	if err := detail.Validate(); err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !detail.Durable && !s.jobHasTriggersLocked(detail.Key) {
		return fmt.Errorf("job %s: %w", detail.Key, store.ErrJobNotDurable)
	}
	return s.storeJobLocked(detail, replace)
}

func (s *Store) jobHasTriggersLocked(key domain.JobKey) bool {
	for _, rec := range s.triggers {
		if rec.trigger.JobKey == key {
			return true
		}
	}
	return false
}

func (s *Store) storeJobLocked(detail *domain.JobDetail, replace bool) error {
	if _, ok := s.jobs[detail.Key]; ok && !replace {
		return fmt.Errorf("job %s: %w", detail.Key, store.ErrObjectAlreadyExists)
	}
	s.jobs[detail.Key] = &jobRecord{detail: detail.Clone()}
	return nil
}

// StoreTrigger stores the trigger in WAITING state, or PAUSED when its
// group or its job's group carries a sticky pause.
func (s *Store) StoreTrigger(_ context.Context, t *domain.Trigger, replace bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeTriggerLocked(t, replace)
}

func (s *Store) storeTriggerLocked(t *domain.Trigger, replace bool) error {
	if err := schedule.Validate(t); err != nil {
		return fmt.Errorf("store trigger: %w", err)
	}
	if existing, ok := s.triggers[t.Key]; ok {
		if !replace {
			return fmt.Errorf("trigger %s: %w", t.Key, store.ErrObjectAlreadyExists)
		}
		s.indexRemove(existing)
		delete(s.triggers, t.Key)
	}
	if _, ok := s.jobs[t.JobKey]; !ok {
		return fmt.Errorf("trigger %s references job %s: %w", t.Key, t.JobKey, store.ErrJobNotFound)
	}
	if t.CalendarName != "" {
		if _, ok := s.calendars[t.CalendarName]; !ok {
			return fmt.Errorf("trigger %s references calendar %q: %w", t.Key, t.CalendarName, store.ErrCalendarNotFound)
		}
	}

	rec := &triggerRecord{trigger: t.Clone(), state: domain.StateWaiting}

	_, triggerGroupPaused := s.pausedTriggerGroups[t.Key.Group]
	_, jobGroupPaused := s.pausedJobGroups[t.JobKey.Group]
	_, jobBlocked := s.blockedJobs[t.JobKey]
	switch {
	case triggerGroupPaused || jobGroupPaused:
		rec.state = domain.StatePaused
		if jobBlocked {
			rec.state = domain.StatePausedBlocked
		}
	case jobBlocked:
		rec.state = domain.StateBlocked
	}

	s.triggers[t.Key] = rec
	if rec.state == domain.StateWaiting {
		s.indexInsert(rec)
	}
	return nil
}

// StoreJobAndTrigger stores both atomically, replacing neither.
func (s *Store) StoreJobAndTrigger(_ context.Context, detail *domain.JobDetail, t *domain.Trigger) error {
	if err := detail.Validate(); err != nil {
		return fmt.Errorf("store job and trigger: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.storeJobLocked(detail, false); err != nil {
		return err
	}
	if err := s.storeTriggerLocked(t, false); err != nil {
		delete(s.jobs, detail.Key)
		return err
	}
	return nil
}

// RemoveJob deletes the job and every trigger referencing it.
func (s *Store) RemoveJob(_ context.Context, key domain.JobKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[key]; !ok {
		return false, nil
	}
	for tk, rec := range s.triggers {
		if rec.trigger.JobKey == key {
			s.indexRemove(rec)
			delete(s.triggers, tk)
		}
	}
	delete(s.jobs, key)
	delete(s.blockedJobs, key)
	return true, nil
}

// RemoveTrigger deletes the trigger, garbage-collecting a non-durable job
// left with no other triggers.
func (s *Store) RemoveTrigger(_ context.Context, key domain.TriggerKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeTriggerLocked(key, true)
}

func (s *Store) removeTriggerLocked(key domain.TriggerKey, collectJob bool) (bool, error) {
	rec, ok := s.triggers[key]
	if !ok {
		return false, nil
	}
	s.indexRemove(rec)
	delete(s.triggers, key)

	if !collectJob {
		return true, nil
	}
	jobKey := rec.trigger.JobKey
	job, ok := s.jobs[jobKey]
	if !ok || job.detail.Durable {
		return true, nil
	}
	for _, other := range s.triggers {
		if other.trigger.JobKey == jobKey {
			return true, nil
		}
	}
	delete(s.jobs, jobKey)
	delete(s.blockedJobs, jobKey)
	return true, nil
}

// ReplaceTrigger swaps the trigger for newTrigger, which must reference
// the same job.
func (s *Store) ReplaceTrigger(_ context.Context, key domain.TriggerKey, newTrigger *domain.Trigger) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[key]
	if !ok {
		return false, nil
	}
	if rec.trigger.JobKey != newTrigger.JobKey {
		return false, fmt.Errorf("replace trigger %s: new trigger references different job %s", key, newTrigger.JobKey)
	}
	if _, err := s.removeTriggerLocked(key, false); err != nil {
		return false, err
	}
	if err := s.storeTriggerLocked(newTrigger, false); err != nil {
		// restore the old trigger so the swap stays atomic
		restoreErr := s.storeTriggerLocked(rec.trigger, false)
		if restoreErr != nil {
			s.log.Error("failed to restore trigger after replace failure",
				"trigger", key.String(), "error", restoreErr)
		}
		return false, err
	}
	return true, nil
}

// RetrieveJob returns a copy of the job, or nil when absent.
func (s *Store) RetrieveJob(_ context.Context, key domain.JobKey) (*domain.JobDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[key]
	if !ok {
		return nil, nil
	}
	return job.detail.Clone(), nil
}

// RetrieveTrigger returns a copy of the trigger, or nil when absent.
func (s *Store) RetrieveTrigger(_ context.Context, key domain.TriggerKey) (*domain.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[key]
	if !ok {
		return nil, nil
	}
	return rec.trigger.Clone(), nil
}

func (s *Store) CheckJobExists(_ context.Context, key domain.JobKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[key]
	return ok, nil
}

func (s *Store) CheckTriggerExists(_ context.Context, key domain.TriggerKey) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.triggers[key]
	return ok, nil
}

// ClearAllSchedulingData resets the store to empty.
func (s *Store) ClearAllSchedulingData(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[domain.JobKey]*jobRecord)
	s.triggers = make(map[domain.TriggerKey]*triggerRecord)
	s.timeIndex = nil
	s.calendars = make(map[string]calendar.Calendar)
	s.pausedTriggerGroups = make(map[string]struct{})
	s.pausedJobGroups = make(map[string]struct{})
	s.blockedJobs = make(map[domain.JobKey]struct{})
	s.firedRecords = make(map[string]*domain.FiredTriggerRecord)
	return nil
}

// StoreCalendar stores the named calendar. With updateTriggers set, the
// fire times of triggers referencing it are recomputed through the new
// calendar.
func (s *Store) StoreCalendar(_ context.Context, name string, cal calendar.Calendar, replace, updateTriggers bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.calendars[name]; ok && !replace {
		return fmt.Errorf("calendar %q: %w", name, store.ErrObjectAlreadyExists)
	}
	s.calendars[name] = cal
	if !updateTriggers {
		return nil
	}
	for _, rec := range s.triggers {
		if rec.trigger.CalendarName != name {
			continue
		}
		wasWaiting := rec.state == domain.StateWaiting
		if wasWaiting {
			s.indexRemove(rec)
		}
		rec.trigger.NextFireTime = schedule.FireTimeAfter(rec.trigger, time.Now(), cal)
		if wasWaiting {
			s.indexInsert(rec)
		}
	}
	return nil
}

// RemoveCalendar deletes the calendar unless triggers still reference it.
func (s *Store) RemoveCalendar(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.triggers {
		if rec.trigger.CalendarName == name {
			return false, fmt.Errorf("calendar %q: %w", name, store.ErrCalendarInUse)
		}
	}
	if _, ok := s.calendars[name]; !ok {
		return false, nil
	}
	delete(s.calendars, name)
	return true, nil
}

// RetrieveCalendar returns the calendar, or nil when absent.
func (s *Store) RetrieveCalendar(_ context.Context, name string) (calendar.Calendar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calendars[name], nil
}

func (s *Store) CalendarNames(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.calendars))
	for name := range s.calendars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// JobKeys returns the keys of jobs whose group matches m.
func (s *Store) JobKeys(_ context.Context, m matcher.GroupMatcher) ([]domain.JobKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []domain.JobKey
	for key := range s.jobs {
		if m.MatchesGroup(key.Group) {
			keys = append(keys, key)
		}
	}
	sortKeys(keys)
	return keys, nil
}

// TriggerKeys returns the keys of triggers whose group matches m.
func (s *Store) TriggerKeys(_ context.Context, m matcher.GroupMatcher) ([]domain.TriggerKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []domain.TriggerKey
	for key := range s.triggers {
		if m.MatchesGroup(key.Group) {
			keys = append(keys, key)
		}
	}
	sortKeys(keys)
	return keys, nil
}

func sortKeys(keys []domain.Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

func (s *Store) JobGroupNames(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for key := range s.jobs {
		seen[key.Group] = struct{}{}
	}
	return sortedSet(seen), nil
}

func (s *Store) TriggerGroupNames(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{})
	for key := range s.triggers {
		seen[key.Group] = struct{}{}
	}
	return sortedSet(seen), nil
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// TriggersForJob returns copies of all triggers referencing the job.
func (s *Store) TriggersForJob(_ context.Context, key domain.JobKey) ([]*domain.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Trigger
	for _, rec := range s.triggers {
		if rec.trigger.JobKey == key {
			out = append(out, rec.trigger.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out, nil
}

// TriggerStatus maps the trigger's internal state to its public status.
func (s *Store) TriggerStatus(_ context.Context, key domain.TriggerKey) (domain.TriggerStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[key]
	if !ok {
		return domain.StatusNone, nil
	}
	return domain.StatusOf(rec.state), nil
}

// ResetTriggerFromErrorState returns an ERROR trigger to WAITING, or
// PAUSED when its group carries a sticky pause.
func (s *Store) ResetTriggerFromErrorState(_ context.Context, key domain.TriggerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[key]
	if !ok {
		return fmt.Errorf("trigger %s: %w", key, store.ErrTriggerNotFound)
	}
	if rec.state != domain.StateError {
		return nil
	}
	if _, paused := s.pausedTriggerGroups[key.Group]; paused {
		s.setState(rec, domain.StatePaused)
	} else {
		s.setState(rec, domain.StateWaiting)
	}
	if s.sig != nil {
		s.sig.SignalSchedulingChange(rec.trigger.NextFireTime)
	}
	return nil
}

func newFireInstanceID() string { return uuid.New().String() }
