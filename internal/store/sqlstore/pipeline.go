package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/quartz/internal/calendar"
	"github.com/jonesrussell/quartz/internal/domain"
	"github.com/jonesrussell/quartz/internal/schedule"
	"github.com/jonesrussell/quartz/internal/store"
)

// AcquireNextTriggers claims up to maxCount due WAITING triggers in fire
// order. The claim is a compare-and-set on the trigger row plus a fired
// record, so peers scanning concurrently cannot double-acquire.
func (s *Store) AcquireNextTriggers(ctx context.Context, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]*domain.Trigger, error) {
	var acquired []*domain.Trigger
	err := s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		if err := s.recoverMisfiredJobs(ctx, sess); err != nil {
			return err
		}
		var err error
		acquired, err = s.acquireInLock(ctx, sess, noLaterThan, maxCount, timeWindow)
		return err
	})
	return acquired, err
}

// recoverMisfiredJobs applies the misfire policy to a bounded number of stale
// WAITING triggers so acquisition sees corrected fire times.
func (s *Store) recoverMisfiredJobs(ctx context.Context, sess *session) error {
	misfireTime := time.Now().Add(-s.cfg.MisfireThreshold)
	query := s.dialect.LimitRows(s.dao.q(qSelectMisfiredTriggersInState), DefaultMaxMisfiresToHandle)
	keys, err := s.dao.selectTriggerKeys(ctx, sess, query,
		s.cfg.SchedName, toMillis(misfireTime), string(domain.StateWaiting))
	if err != nil {
		return err
	}
	for _, key := range keys {
		t, err := s.dao.selectTrigger(ctx, sess, key)
		if err != nil {
			return err
		}
		if t == nil {
			continue
		}
		if _, err := s.applyMisfire(ctx, sess, t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) acquireInLock(ctx context.Context, sess *session, noLaterThan time.Time, maxCount int, timeWindow time.Duration) ([]*domain.Trigger, error) {
	var (
		acquired     []*domain.Trigger
		excludedJobs = make(map[domain.JobKey]struct{})
		batchEnd     = noLaterThan
	)

	misfireTime := time.Now().Add(-s.cfg.MisfireThreshold)

	// Over-select: some candidates lose the CAS or are excluded by the
	// concurrency rule.
	query := s.dialect.LimitRows(s.dao.q(qSelectNextTriggerToAcquire), maxCount*2)
	keys, err := s.dao.selectTriggerKeys(ctx, sess, query,
		s.cfg.SchedName, string(domain.StateWaiting),
		toMillis(noLaterThan.Add(timeWindow)), toMillis(misfireTime))
	if err != nil {
		return nil, err
	}

	for _, key := range keys {
		if len(acquired) >= maxCount {
			break
		}
		t, err := s.dao.selectTrigger(ctx, sess, key)
		if err != nil {
			return nil, err
		}
		if t == nil || t.NextFireTime == nil {
			continue
		}
		if t.NextFireTime.After(batchEnd) {
			break
		}
		if _, excluded := excludedJobs[t.JobKey]; excluded {
			continue
		}

		job, err := s.dao.selectJob(ctx, sess, t.JobKey)
		if err != nil {
			return nil, err
		}
		if job == nil {
			s.log.Error("acquired trigger references missing job, marking ERROR",
				"trigger", t.Key.String(), "job", t.JobKey.String())
			if err := s.dao.updateTriggerState(ctx, sess, key, domain.StateError); err != nil {
				return nil, err
			}
			continue
		}
		if job.Capabilities.DisallowConcurrentExecution {
			excludedJobs[t.JobKey] = struct{}{}
		}

		got, err := s.dao.updateTriggerStateFromStates(ctx, sess, key, domain.StateAcquired,
			domain.StateWaiting, domain.StateWaiting, domain.StateWaiting)
		if err != nil {
			return nil, err
		}
		if !got {
			continue
		}

		t.FireInstanceID = uuid.New().String()
		if err := s.dao.updateTrigger(ctx, sess, t, domain.StateAcquired); err != nil {
			return nil, err
		}
		if err := s.dao.insertFiredTrigger(ctx, sess, &domain.FiredTriggerRecord{
			FireInstanceID:                t.FireInstanceID,
			TriggerKey:                    t.Key,
			JobKey:                        t.JobKey,
			InstanceID:                    s.cfg.InstanceID,
			FiredTime:                     time.Now(),
			ScheduledTime:                 *t.NextFireTime,
			Priority:                      t.Priority,
			State:                         domain.FiredStateAcquired,
			ConcurrentExecutionDisallowed: job.Capabilities.DisallowConcurrentExecution,
			RequestsRecovery:              job.RequestsRecovery,
		}); err != nil {
			return nil, err
		}
		acquired = append(acquired, t)

		if len(acquired) == 1 {
			first := *t.NextFireTime
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

// ReleaseAcquiredTrigger returns an acquired but unfired trigger to
// WAITING and drops its fired record.
func (s *Store) ReleaseAcquiredTrigger(ctx context.Context, t *domain.Trigger) error {
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		if _, err := s.dao.updateTriggerStateFromStates(ctx, sess, t.Key, domain.StateWaiting,
			domain.StateAcquired, domain.StateAcquired, domain.StateAcquired); err != nil {
			return err
		}
		return s.dao.deleteFiredTrigger(ctx, sess, t.FireInstanceID)
	})
}

// TriggersFired advances each acquired trigger's schedule, flips its
// fired record to EXECUTING and builds the fire bundle. Triggers no
// longer ACQUIRED yield empty results.
func (s *Store) TriggersFired(ctx context.Context, triggers []*domain.Trigger) ([]store.TriggerFiredResult, error) {
	results := make([]store.TriggerFiredResult, 0, len(triggers))
	err := s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		results = results[:0]
		for _, t := range triggers {
			res, err := s.triggerFiredInLock(ctx, sess, t)
			if err != nil {
				return err
			}
			results = append(results, res)
		}
		return nil
	})
	return results, err
}

func (s *Store) triggerFiredInLock(ctx context.Context, sess *session, t *domain.Trigger) (store.TriggerFiredResult, error) {
	state, err := s.dao.selectTriggerState(ctx, sess, t.Key)
	if err != nil {
		return store.TriggerFiredResult{}, err
	}
	if state != domain.StateAcquired {
		return store.TriggerFiredResult{}, nil
	}
	stored, err := s.dao.selectTrigger(ctx, sess, t.Key)
	if err != nil {
		return store.TriggerFiredResult{}, err
	}
	if stored == nil {
		return store.TriggerFiredResult{}, nil
	}

	var calendarObj calendar.Calendar
	if stored.CalendarName != "" {
		calendarObj, err = s.retrieveCalendarInLock(ctx, sess, stored.CalendarName)
		if err != nil {
			return store.TriggerFiredResult{}, err
		}
		if calendarObj == nil {
			if err := s.dao.deleteFiredTrigger(ctx, sess, stored.FireInstanceID); err != nil {
				return store.TriggerFiredResult{}, err
			}
			return store.TriggerFiredResult{}, nil
		}
	}

	job, err := s.dao.selectJob(ctx, sess, stored.JobKey)
	if err != nil {
		return store.TriggerFiredResult{}, err
	}
	if job == nil {
		return store.TriggerFiredResult{
			Err: fmt.Errorf("fired trigger %s references job %s: %w",
				t.Key, stored.JobKey, store.ErrJobNotFound),
		}, nil
	}

	prev := stored.PreviousFireTime
	scheduled := stored.NextFireTime
	schedule.Triggered(stored, calendarObj)

	fired := &domain.FiredTriggerRecord{
		FireInstanceID:                stored.FireInstanceID,
		TriggerKey:                    stored.Key,
		JobKey:                        stored.JobKey,
		InstanceID:                    s.cfg.InstanceID,
		FiredTime:                     time.Now(),
		Priority:                      stored.Priority,
		State:                         domain.FiredStateExecuting,
		ConcurrentExecutionDisallowed: job.Capabilities.DisallowConcurrentExecution,
		RequestsRecovery:              job.RequestsRecovery,
	}
	if scheduled != nil {
		fired.ScheduledTime = *scheduled
	}
	if err := s.dao.updateFiredTrigger(ctx, sess, fired); err != nil {
		return store.TriggerFiredResult{}, err
	}

	nextState := domain.StateWaiting
	if stored.NextFireTime == nil {
		nextState = domain.StateComplete
	}
	if err := s.dao.updateTrigger(ctx, sess, stored, nextState); err != nil {
		return store.TriggerFiredResult{}, err
	}

	bundle := &store.TriggerFiredBundle{
		JobDetail:         job,
		Trigger:           stored.Clone(),
		Calendar:          calendarObj,
		Recovering:        stored.Key.Group == RecoveringJobsGroup,
		FireTime:          fired.FiredTime,
		ScheduledFireTime: scheduled,
		PrevFireTime:      prev,
		NextFireTime:      stored.NextFireTime,
	}

	if job.Capabilities.DisallowConcurrentExecution {
		bundle.JobDisallowsConcurrency = true
		if err := s.blockJobInLock(ctx, sess, stored.JobKey); err != nil {
			return store.TriggerFiredResult{}, err
		}
	}
	return store.TriggerFiredResult{Bundle: bundle}, nil
}

// blockJobInLock parks the job's idle triggers while a
// concurrency-disallowed execution runs.
func (s *Store) blockJobInLock(ctx context.Context, sess *session, key domain.JobKey) error {
	if err := s.dao.updateJobTriggerStatesFromState(ctx, sess, key,
		domain.StateBlocked, domain.StateWaiting); err != nil {
		return err
	}
	if err := s.dao.updateJobTriggerStatesFromState(ctx, sess, key,
		domain.StateBlocked, domain.StateAcquired); err != nil {
		return err
	}
	return s.dao.updateJobTriggerStatesFromState(ctx, sess, key,
		domain.StatePausedBlocked, domain.StatePaused)
}

func (s *Store) unblockJobInLock(ctx context.Context, sess *session, key domain.JobKey) error {
	if err := s.dao.updateJobTriggerStatesFromState(ctx, sess, key,
		domain.StateWaiting, domain.StateBlocked); err != nil {
		return err
	}
	return s.dao.updateJobTriggerStatesFromState(ctx, sess, key,
		domain.StatePaused, domain.StatePausedBlocked)
}

// TriggeredJobComplete finalizes a fire: persists updated job data when
// the job asks for it, lifts the job's block, applies the completion
// instruction and drops the fired record.
func (s *Store) TriggeredJobComplete(ctx context.Context, t *domain.Trigger, detail *domain.JobDetail, instr domain.CompletedExecutionInstruction) error {
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		if err := s.dao.deleteFiredTrigger(ctx, sess, t.FireInstanceID); err != nil {
			return err
		}

		if detail != nil {
			if detail.Capabilities.PersistJobDataAfterExecution {
				if err := s.dao.updateJobData(ctx, sess, detail.Key, detail.JobData); err != nil {
					return err
				}
			}
			if detail.Capabilities.DisallowConcurrentExecution {
				if err := s.unblockJobInLock(ctx, sess, detail.Key); err != nil {
					return err
				}
				if s.sig != nil {
					s.sig.SignalSchedulingChange(nil)
				}
			}
		}

		switch instr {
		case domain.InstructionDeleteTrigger:
			stored, err := s.dao.selectTrigger(ctx, sess, t.Key)
			if err != nil {
				return err
			}
			if stored == nil {
				return nil
			}
			// A schedule exhausted in this execution must not delete a
			// trigger that was rescheduled underneath it.
			if t.NextFireTime == nil && stored.NextFireTime != nil {
				return nil
			}
			_, err = s.removeTriggerInLock(ctx, sess, t.Key)
			return err

		case domain.InstructionSetTriggerComplete:
			if err := s.dao.updateTriggerState(ctx, sess, t.Key, domain.StateComplete); err != nil {
				return err
			}
			if s.sig != nil {
				s.sig.SignalSchedulingChange(nil)
			}
			return nil

		case domain.InstructionSetTriggerError:
			s.log.Warn("trigger set to ERROR state", "trigger", t.Key.String())
			if err := s.dao.updateTriggerState(ctx, sess, t.Key, domain.StateError); err != nil {
				return err
			}
			if s.sig != nil {
				s.sig.SignalSchedulingChange(nil)
			}
			return nil

		case domain.InstructionSetAllJobTriggersComplete:
			return s.dao.updateJobTriggerStates(ctx, sess, t.JobKey, domain.StateComplete)

		case domain.InstructionSetAllJobTriggersError:
			s.log.Warn("all job triggers set to ERROR state", "job", t.JobKey.String())
			return s.dao.updateJobTriggerStates(ctx, sess, t.JobKey, domain.StateError)
		}
		return nil
	})
}
