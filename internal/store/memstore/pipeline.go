package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/quartz/internal/domain"
	"github.com/jonesrussell/quartz/internal/matcher"
	"github.com/jonesrussell/quartz/internal/schedule"
	"github.com/jonesrussell/quartz/internal/store"
)

// PauseTrigger moves the trigger into PAUSED (or PAUSED_BLOCKED when it
// is currently blocked). COMPLETE triggers stay complete.
func (s *Store) PauseTrigger(_ context.Context, key domain.TriggerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseTriggerLocked(key)
}

func (s *Store) pauseTriggerLocked(key domain.TriggerKey) error {
	rec, ok := s.triggers[key]
	if !ok {
		return fmt.Errorf("trigger %s: %w", key, store.ErrTriggerNotFound)
	}
	switch rec.state {
	case domain.StateComplete, domain.StatePaused, domain.StatePausedBlocked:
		return nil
	case domain.StateBlocked:
		s.setState(rec, domain.StatePausedBlocked)
	default:
		s.setState(rec, domain.StatePaused)
	}
	return nil
}

// PauseTriggers pauses all matching triggers. An exact-group match marks
// the group sticky so triggers added later start PAUSED.
func (s *Store) PauseTriggers(_ context.Context, m matcher.GroupMatcher) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.IsExactGroup() {
		s.pausedTriggerGroups[m.Value] = struct{}{}
	} else {
		for _, rec := range s.triggers {
			if m.MatchesGroup(rec.trigger.Key.Group) {
				s.pausedTriggerGroups[rec.trigger.Key.Group] = struct{}{}
			}
		}
	}

	affected := make(map[string]struct{})
	for key := range s.triggers {
		if !m.MatchesGroup(key.Group) {
			continue
		}
		affected[key.Group] = struct{}{}
		if err := s.pauseTriggerLocked(key); err != nil {
			return nil, err
		}
	}
	return sortedSet(affected), nil
}

// PauseJob pauses every trigger of the job.
func (s *Store) PauseJob(_ context.Context, key domain.JobKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[key]; !ok {
		return fmt.Errorf("job %s: %w", key, store.ErrJobNotFound)
	}
	for tk, rec := range s.triggers {
		if rec.trigger.JobKey == key {
			if err := s.pauseTriggerLocked(tk); err != nil {
				return err
			}
		}
	}
	return nil
}

// PauseJobs pauses the triggers of all matching jobs, marking exact job
// groups sticky.
func (s *Store) PauseJobs(_ context.Context, m matcher.GroupMatcher) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.IsExactGroup() {
		s.pausedJobGroups[m.Value] = struct{}{}
	} else {
		for key := range s.jobs {
			if m.MatchesGroup(key.Group) {
				s.pausedJobGroups[key.Group] = struct{}{}
			}
		}
	}

	affected := make(map[string]struct{})
	for jk := range s.jobs {
		if !m.MatchesGroup(jk.Group) {
			continue
		}
		affected[jk.Group] = struct{}{}
		for tk, rec := range s.triggers {
			if rec.trigger.JobKey == jk {
				if err := s.pauseTriggerLocked(tk); err != nil {
					return nil, err
				}
			}
		}
	}
	return sortedSet(affected), nil
}

// ResumeTrigger returns a paused trigger to WAITING (or BLOCKED when its
// job is blocked), applying the misfire policy if its fire time passed
// while paused.
func (s *Store) ResumeTrigger(_ context.Context, key domain.TriggerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeTriggerLocked(key)
}

func (s *Store) resumeTriggerLocked(key domain.TriggerKey) error {
	rec, ok := s.triggers[key]
	if !ok {
		return fmt.Errorf("trigger %s: %w", key, store.ErrTriggerNotFound)
	}
	if rec.state != domain.StatePaused && rec.state != domain.StatePausedBlocked {
		return nil
	}
	blocked := rec.state == domain.StatePausedBlocked
	if _, jobBlocked := s.blockedJobs[rec.trigger.JobKey]; !jobBlocked {
		blocked = false
	}
	if blocked {
		s.setState(rec, domain.StateBlocked)
	} else {
		s.setState(rec, domain.StateWaiting)
	}
	s.applyMisfireLocked(rec)
	if rec.state == domain.StateWaiting && s.sig != nil {
		s.sig.SignalSchedulingChange(rec.trigger.NextFireTime)
	}
	return nil
}

// ResumeTriggers resumes all matching triggers and clears matching sticky
// markers.
func (s *Store) ResumeTriggers(_ context.Context, m matcher.GroupMatcher) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for group := range s.pausedTriggerGroups {
		if m.MatchesGroup(group) {
			delete(s.pausedTriggerGroups, group)
		}
	}
	affected := make(map[string]struct{})
	for key := range s.triggers {
		if !m.MatchesGroup(key.Group) {
			continue
		}
		affected[key.Group] = struct{}{}
		if err := s.resumeTriggerLocked(key); err != nil {
			return nil, err
		}
	}
	return sortedSet(affected), nil
}

// ResumeJob resumes every trigger of the job.
func (s *Store) ResumeJob(_ context.Context, key domain.JobKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[key]; !ok {
		return fmt.Errorf("job %s: %w", key, store.ErrJobNotFound)
	}
	for tk, rec := range s.triggers {
		if rec.trigger.JobKey == key {
			if err := s.resumeTriggerLocked(tk); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResumeJobs resumes the triggers of matching jobs and clears matching
// sticky job-group markers.
func (s *Store) ResumeJobs(_ context.Context, m matcher.GroupMatcher) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for group := range s.pausedJobGroups {
		if m.MatchesGroup(group) {
			delete(s.pausedJobGroups, group)
		}
	}
	affected := make(map[string]struct{})
	for jk := range s.jobs {
		if !m.MatchesGroup(jk.Group) {
			continue
		}
		affected[jk.Group] = struct{}{}
		for tk, rec := range s.triggers {
			if rec.trigger.JobKey == jk {
				if err := s.resumeTriggerLocked(tk); err != nil {
					return nil, err
				}
			}
		}
	}
	return sortedSet(affected), nil
}

// PauseAll pauses every trigger group and marks all of them sticky,
// including groups created later.
func (s *Store) PauseAll(ctx context.Context) error {
	_, err := s.PauseTriggers(ctx, matcher.AnyGroup())
	return err
}

// ResumeAll resumes every trigger group and clears all sticky markers.
func (s *Store) ResumeAll(ctx context.Context) error {
	_, err := s.ResumeTriggers(ctx, matcher.AnyGroup())
	return err
}

func (s *Store) PausedTriggerGroups(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedSet(s.pausedTriggerGroups), nil
}

// applyMisfireLocked checks rec against the misfire threshold and, when
// misfired, applies its policy. Reports whether the trigger misfired.
// When the policy exhausts the schedule the trigger goes COMPLETE.
func (s *Store) applyMisfireLocked(rec *triggerRecord) bool {
	misfireTime := time.Now().Add(-s.misfireThreshold)
	next := rec.trigger.NextFireTime
	if next == nil || next.After(misfireTime) ||
		rec.trigger.MisfireInstruction == domain.MisfireIgnorePolicy {
		return false
	}

	cal := s.calendars[rec.trigger.CalendarName]
	if s.sig != nil {
		s.sig.NotifyTriggerListenersMisfired(rec.trigger.Clone())
	}

	wasWaiting := rec.state == domain.StateWaiting
	if wasWaiting {
		s.indexRemove(rec)
	}
	schedule.UpdateAfterMisfire(rec.trigger, cal, time.Now())

	if rec.trigger.NextFireTime == nil {
		rec.state = domain.StateComplete
		if s.sig != nil {
			s.sig.NotifySchedulerListenersFinalized(rec.trigger.Clone())
		}
		return true
	}
	if wasWaiting {
		s.indexInsert(rec)
	}
	if next.Equal(*rec.trigger.NextFireTime) {
		return false
	}
	return true
}

// AcquireNextTriggers claims up to maxCount due triggers in fire order.
// Triggers of a concurrency-disallowed job are claimed at most once per
// batch.
func (s *Store) AcquireNextTriggers(_ context.Context, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]*domain.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		acquired     []*domain.Trigger
		excludedJobs = make(map[domain.JobKey]struct{})
		batchEnd     = noLaterThan
	)

	// Walk a snapshot: misfire application reorders the live index.
	snapshot := make([]*triggerRecord, len(s.timeIndex))
	copy(snapshot, s.timeIndex)

	for _, rec := range snapshot {
		if len(acquired) >= maxCount {
			break
		}
		if rec.state != domain.StateWaiting {
			continue
		}
		if rec.trigger.NextFireTime == nil {
			continue
		}
		if s.applyMisfireLocked(rec) && (rec.trigger.NextFireTime == nil ||
			rec.trigger.NextFireTime.After(batchEnd)) {
			continue
		}
		if rec.trigger.NextFireTime.After(batchEnd) {
			break
		}

		if _, excluded := excludedJobs[rec.trigger.JobKey]; excluded {
			continue
		}
		if job, ok := s.jobs[rec.trigger.JobKey]; ok &&
			job.detail.Capabilities.DisallowConcurrentExecution {
			excludedJobs[rec.trigger.JobKey] = struct{}{}
		}

		s.setState(rec, domain.StateAcquired)
		rec.trigger.FireInstanceID = newFireInstanceID()
		s.firedRecords[rec.trigger.FireInstanceID] = &domain.FiredTriggerRecord{
			FireInstanceID: rec.trigger.FireInstanceID,
			TriggerKey:     rec.trigger.Key,
			JobKey:         rec.trigger.JobKey,
			FiredTime:      time.Now(),
			ScheduledTime:  *rec.trigger.NextFireTime,
			Priority:       rec.trigger.Priority,
			State:          domain.FiredStateAcquired,
		}
		acquired = append(acquired, rec.trigger.Clone())

		if len(acquired) == 1 {
			first := *rec.trigger.NextFireTime
			if now := time.Now(); first.Before(now) {
				first = now
			}
			if end := first.Add(timeWindow); end.After(batchEnd) {
				batchEnd = end
			}
		}
	}
	return acquired, nil
}

// ReleaseAcquiredTrigger returns an acquired trigger to WAITING.
func (s *Store) ReleaseAcquiredTrigger(_ context.Context, t *domain.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.triggers[t.Key]
	if !ok || rec.state != domain.StateAcquired {
		return nil
	}
	s.setState(rec, domain.StateWaiting)
	delete(s.firedRecords, t.FireInstanceID)
	return nil
}

// TriggersFired advances each acquired trigger's schedule and builds its
// fire bundle. A trigger that is no longer ACQUIRED yields an empty
// result.
func (s *Store) TriggersFired(_ context.Context, triggers []*domain.Trigger) ([]store.TriggerFiredResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]store.TriggerFiredResult, 0, len(triggers))
	for _, t := range triggers {
		rec, ok := s.triggers[t.Key]
		if !ok || rec.state != domain.StateAcquired {
			results = append(results, store.TriggerFiredResult{})
			continue
		}
		calendarObj := s.calendars[rec.trigger.CalendarName]
		if rec.trigger.CalendarName != "" && calendarObj == nil {
			results = append(results, store.TriggerFiredResult{})
			continue
		}

		job, ok := s.jobs[rec.trigger.JobKey]
		if !ok {
			results = append(results, store.TriggerFiredResult{
				Err: fmt.Errorf("fired trigger %s references job %s: %w",
					t.Key, rec.trigger.JobKey, store.ErrJobNotFound),
			})
			continue
		}

		prev := rec.trigger.PreviousFireTime
		scheduled := rec.trigger.NextFireTime
		schedule.Triggered(rec.trigger, calendarObj)

		fr := s.firedRecords[rec.trigger.FireInstanceID]
		if fr != nil {
			fr.State = domain.FiredStateExecuting
		}

		bundle := &store.TriggerFiredBundle{
			JobDetail:         job.detail.Clone(),
			Trigger:           rec.trigger.Clone(),
			Calendar:          calendarObj,
			FireTime:          time.Now(),
			ScheduledFireTime: scheduled,
			PrevFireTime:      prev,
			NextFireTime:      rec.trigger.NextFireTime,
		}

		if job.detail.Capabilities.DisallowConcurrentExecution {
			bundle.JobDisallowsConcurrency = true
			s.blockJobLocked(rec.trigger.JobKey, rec)
		}

		if rec.trigger.NextFireTime != nil {
			s.setState(rec, domain.StateWaiting)
		} else {
			s.setState(rec, domain.StateComplete)
		}
		results = append(results, store.TriggerFiredResult{Bundle: bundle})
	}
	return results, nil
}

// blockJobLocked marks the job blocked and parks its other triggers.
func (s *Store) blockJobLocked(key domain.JobKey, firing *triggerRecord) {
	s.blockedJobs[key] = struct{}{}
	for _, rec := range s.triggers {
		if rec == firing || rec.trigger.JobKey != key {
			continue
		}
		switch rec.state {
		case domain.StateWaiting, domain.StateAcquired:
			s.setState(rec, domain.StateBlocked)
		case domain.StatePaused:
			s.setState(rec, domain.StatePausedBlocked)
		}
	}
}

// unblockJobLocked lifts the job's block and releases its parked triggers.
func (s *Store) unblockJobLocked(key domain.JobKey) {
	delete(s.blockedJobs, key)
	for _, rec := range s.triggers {
		if rec.trigger.JobKey != key {
			continue
		}
		switch rec.state {
		case domain.StateBlocked:
			s.setState(rec, domain.StateWaiting)
		case domain.StatePausedBlocked:
			s.setState(rec, domain.StatePaused)
		}
	}
	if s.sig != nil {
		s.sig.SignalSchedulingChange(nil)
	}
}

// TriggeredJobComplete finalizes a fire: persists updated job data when
// the job asks for it, lifts the job's block, and applies the completion
// instruction.
func (s *Store) TriggeredJobComplete(_ context.Context, t *domain.Trigger, detail *domain.JobDetail, instr domain.CompletedExecutionInstruction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.firedRecords, t.FireInstanceID)

	if job, ok := s.jobs[detail.Key]; ok {
		if detail.Capabilities.PersistJobDataAfterExecution {
			job.detail.JobData = detail.JobData.Clone()
		}
		if detail.Capabilities.DisallowConcurrentExecution {
			s.unblockJobLocked(detail.Key)
		}
	}

	rec, ok := s.triggers[t.Key]
	if !ok {
		return nil
	}

	switch instr {
	case domain.InstructionDeleteTrigger:
		// A schedule exhausted in this execution must not delete a
		// trigger that was rescheduled underneath it.
		if t.NextFireTime == nil && rec.trigger.NextFireTime != nil {
			return nil
		}
		if _, err := s.removeTriggerLocked(t.Key, true); err != nil {
			return err
		}
		if s.sig != nil {
			s.sig.SignalSchedulingChange(nil)
		}
	case domain.InstructionSetTriggerComplete:
		s.setState(rec, domain.StateComplete)
		if s.sig != nil {
			s.sig.SignalSchedulingChange(nil)
		}
	case domain.InstructionSetTriggerError:
		s.log.Error("trigger set to ERROR state", "trigger", t.Key.String())
		s.setState(rec, domain.StateError)
		if s.sig != nil {
			s.sig.SignalSchedulingChange(nil)
		}
	case domain.InstructionSetAllJobTriggersComplete:
		s.setJobTriggerStatesLocked(t.JobKey, domain.StateComplete)
	case domain.InstructionSetAllJobTriggersError:
		s.log.Error("all triggers of job set to ERROR state", "job", t.JobKey.String())
		s.setJobTriggerStatesLocked(t.JobKey, domain.StateError)
	}
	return nil
}

func (s *Store) setJobTriggerStatesLocked(key domain.JobKey, state domain.TriggerState) {
	for _, rec := range s.triggers {
		if rec.trigger.JobKey == key {
			s.setState(rec, state)
		}
	}
	if s.sig != nil {
		s.sig.SignalSchedulingChange(nil)
	}
}
