package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/quartz/internal/calendar"
	"github.com/jonesrussell/quartz/internal/domain"
	"github.com/jonesrussell/quartz/internal/matcher"
	"github.com/jonesrussell/quartz/internal/schedule"
)

// PauseTrigger pauses one trigger. EXECUTING work is unaffected; a
// BLOCKED trigger becomes PAUSED_BLOCKED so it resumes into the right
// state.
func (s *Store) PauseTrigger(ctx context.Context, key domain.TriggerKey) error {
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		return s.pauseTriggerInLock(ctx, sess, key)
	})
}

func (s *Store) pauseTriggerInLock(ctx context.Context, sess *session, key domain.TriggerKey) error {
	state, err := s.dao.selectTriggerState(ctx, sess, key)
	if err != nil {
		return err
	}
	switch state {
	case "", domain.StateComplete, domain.StatePaused, domain.StatePausedBlocked:
		return nil
	case domain.StateBlocked:
		return s.dao.updateTriggerState(ctx, sess, key, domain.StatePausedBlocked)
	default:
		return s.dao.updateTriggerState(ctx, sess, key, domain.StatePaused)
	}
}

// PauseTriggers pauses all triggers whose group matches m and returns the
// affected groups. Matched groups become sticky: an exact-name matcher
// pauses the group even when it holds no triggers yet.
func (s *Store) PauseTriggers(ctx context.Context, m matcher.GroupMatcher) ([]string, error) {
	var groups []string
	err := s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		var err error
		groups, err = s.pauseTriggersInLock(ctx, sess, m)
		return err
	})
	return groups, err
}

func (s *Store) pauseTriggersInLock(ctx context.Context, sess *session, m matcher.GroupMatcher) ([]string, error) {
	groups, err := s.matchingTriggerGroups(ctx, sess, m)
	if err != nil {
		return nil, err
	}
	if m.IsExactGroup() && len(groups) == 0 {
		groups = append(groups, m.Value)
	}
	for _, group := range groups {
		keys, err := s.dao.selectTriggerKeys(ctx, sess, s.dao.q(qSelectTriggerKeysLike),
			s.cfg.SchedName, group)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			if key.Group != group {
				continue
			}
			if err := s.pauseTriggerInLock(ctx, sess, key); err != nil {
				return nil, err
			}
		}
		paused, err := s.dao.isGroupPaused(ctx, sess, group)
		if err != nil {
			return nil, err
		}
		if !paused {
			if err := s.dao.insertPausedGroup(ctx, sess, group); err != nil {
				return nil, err
			}
		}
	}
	return groups, nil
}

func (s *Store) matchingTriggerGroups(ctx context.Context, sess *session, m matcher.GroupMatcher) ([]string, error) {
	var all []string
	if err := sess.tx.SelectContext(ctx, &all, sess.tx.Rebind(s.dao.q(qSelectTriggerGroups)), s.cfg.SchedName); err != nil {
		return nil, fmt.Errorf("select trigger groups: %w", err)
	}
	var groups []string
	for _, g := range all {
		if m.MatchesGroup(g) {
			groups = append(groups, g)
		}
	}
	return groups, nil
}

// PauseJob pauses every trigger of the job.
func (s *Store) PauseJob(ctx context.Context, key domain.JobKey) error {
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		keys, err := s.dao.selectTriggerKeys(ctx, sess, s.dao.q(qSelectTriggersForJob),
			s.cfg.SchedName, key.Name, key.Group)
		if err != nil {
			return err
		}
		for _, tk := range keys {
			if err := s.pauseTriggerInLock(ctx, sess, tk); err != nil {
				return err
			}
		}
		return nil
	})
}

// PauseJobs pauses the triggers of every job whose group matches m and
// returns the affected job groups. The pause is not sticky for jobs
// scheduled later; sticky pausing is a trigger-group concept here.
func (s *Store) PauseJobs(ctx context.Context, m matcher.GroupMatcher) ([]string, error) {
	var groups []string
	err := s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		jobKeys, err := s.dao.selectJobKeys(ctx, sess, s.dao.q(qSelectAllJobKeys), s.cfg.SchedName)
		if err != nil {
			return err
		}
		seen := make(map[string]struct{})
		for _, jk := range jobKeys {
			if !m.MatchesGroup(jk.Group) {
				continue
			}
			if _, ok := seen[jk.Group]; !ok {
				seen[jk.Group] = struct{}{}
				groups = append(groups, jk.Group)
			}
			keys, err := s.dao.selectTriggerKeys(ctx, sess, s.dao.q(qSelectTriggersForJob),
				s.cfg.SchedName, jk.Name, jk.Group)
			if err != nil {
				return err
			}
			for _, tk := range keys {
				if err := s.pauseTriggerInLock(ctx, sess, tk); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return groups, err
}

// ResumeTrigger resumes a paused trigger, applying the misfire policy to
// fire times that went stale while paused.
func (s *Store) ResumeTrigger(ctx context.Context, key domain.TriggerKey) error {
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		return s.resumeTriggerInLock(ctx, sess, key)
	})
}

func (s *Store) resumeTriggerInLock(ctx context.Context, sess *session, key domain.TriggerKey) error {
	t, err := s.dao.selectTrigger(ctx, sess, key)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	state, err := s.dao.selectTriggerState(ctx, sess, key)
	if err != nil {
		return err
	}
	if state != domain.StatePaused && state != domain.StatePausedBlocked {
		return nil
	}

	blocked := state == domain.StatePausedBlocked
	if blocked {
		blocked, err = s.jobIsBlocked(ctx, sess, t.JobKey)
		if err != nil {
			return err
		}
	}
	target := domain.StateWaiting
	if blocked {
		target = domain.StateBlocked
	}

	misfired, err := s.applyMisfire(ctx, sess, t)
	if err != nil {
		return err
	}
	if misfired {
		// applyMisfire rewrote the row; only the state remains to fix.
		if t.NextFireTime == nil {
			return nil
		}
	}
	return s.dao.updateTriggerState(ctx, sess, key, target)
}

// applyMisfire runs the misfire policy when the trigger's next fire time
// is older than the threshold, persisting the recomputed times. Reports
// whether anything changed.
func (s *Store) applyMisfire(ctx context.Context, sess *session, t *domain.Trigger) (bool, error) {
	if t.NextFireTime == nil {
		return false, nil
	}
	misfireTime := time.Now().Add(-s.cfg.MisfireThreshold)
	if !t.NextFireTime.Before(misfireTime) {
		return false, nil
	}
	if t.MisfireInstruction == domain.MisfireIgnorePolicy {
		return false, nil
	}

	var cal calendar.Calendar
	if t.CalendarName != "" {
		c, err := s.retrieveCalendarInLock(ctx, sess, t.CalendarName)
		if err != nil {
			return false, err
		}
		cal = c
	}

	if s.sig != nil {
		s.sig.NotifyTriggerListenersMisfired(t.Clone())
	}
	schedule.UpdateAfterMisfire(t, cal, time.Now())

	if t.NextFireTime == nil {
		if err := s.dao.updateTrigger(ctx, sess, t, domain.StateComplete); err != nil {
			return false, err
		}
		if s.sig != nil {
			s.sig.NotifySchedulerListenersFinalized(t.Clone())
		}
		return true, nil
	}
	state, err := s.dao.selectTriggerState(ctx, sess, t.Key)
	if err != nil {
		return false, err
	}
	if err := s.dao.updateTrigger(ctx, sess, t, state); err != nil {
		return false, err
	}
	return true, nil
}

// ResumeTriggers resumes all triggers whose group matches m, clearing the
// matching sticky group markers first.
func (s *Store) ResumeTriggers(ctx context.Context, m matcher.GroupMatcher) ([]string, error) {
	var groups []string
	err := s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		var err error
		groups, err = s.resumeTriggersInLock(ctx, sess, m)
		return err
	})
	return groups, err
}

func (s *Store) resumeTriggersInLock(ctx context.Context, sess *session, m matcher.GroupMatcher) ([]string, error) {
	if pattern, ok := groupSQLPattern(m); ok {
		if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(s.dao.q(qDeletePausedGroupsLike)),
			s.cfg.SchedName, pattern); err != nil {
			return nil, fmt.Errorf("delete paused groups: %w", err)
		}
	} else {
		pausedGroups, err := s.pausedGroupsInLock(ctx, sess)
		if err != nil {
			return nil, err
		}
		for _, g := range pausedGroups {
			if m.MatchesGroup(g) {
				if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(s.dao.q(qDeletePausedGroupsLike)),
					s.cfg.SchedName, g); err != nil {
					return nil, fmt.Errorf("delete paused group %q: %w", g, err)
				}
			}
		}
	}

	groups, err := s.matchingTriggerGroups(ctx, sess, m)
	if err != nil {
		return nil, err
	}
	for _, group := range groups {
		keys, err := s.dao.selectTriggerKeys(ctx, sess, s.dao.q(qSelectTriggerKeysLike),
			s.cfg.SchedName, group)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			if key.Group != group {
				continue
			}
			if err := s.resumeTriggerInLock(ctx, sess, key); err != nil {
				return nil, err
			}
		}
	}
	return groups, nil
}

// ResumeJob resumes every trigger of the job.
func (s *Store) ResumeJob(ctx context.Context, key domain.JobKey) error {
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		keys, err := s.dao.selectTriggerKeys(ctx, sess, s.dao.q(qSelectTriggersForJob),
			s.cfg.SchedName, key.Name, key.Group)
		if err != nil {
			return err
		}
		for _, tk := range keys {
			if err := s.resumeTriggerInLock(ctx, sess, tk); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResumeJobs resumes the triggers of every job whose group matches m and
// returns the affected job groups.
func (s *Store) ResumeJobs(ctx context.Context, m matcher.GroupMatcher) ([]string, error) {
	var groups []string
	err := s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		jobKeys, err := s.dao.selectJobKeys(ctx, sess, s.dao.q(qSelectAllJobKeys), s.cfg.SchedName)
		if err != nil {
			return err
		}
		seen := make(map[string]struct{})
		for _, jk := range jobKeys {
			if !m.MatchesGroup(jk.Group) {
				continue
			}
			if _, ok := seen[jk.Group]; !ok {
				seen[jk.Group] = struct{}{}
				groups = append(groups, jk.Group)
			}
			keys, err := s.dao.selectTriggerKeys(ctx, sess, s.dao.q(qSelectTriggersForJob),
				s.cfg.SchedName, jk.Name, jk.Group)
			if err != nil {
				return err
			}
			for _, tk := range keys {
				if err := s.resumeTriggerInLock(ctx, sess, tk); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return groups, err
}

// PauseAll pauses every trigger group and drops a marker so groups
// created afterwards start paused too.
func (s *Store) PauseAll(ctx context.Context) error {
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		if _, err := s.pauseTriggersInLock(ctx, sess, matcher.AnyGroup()); err != nil {
			return err
		}
		paused, err := s.dao.isGroupPaused(ctx, sess, allGroupsPausedMarker)
		if err != nil {
			return err
		}
		if !paused {
			return s.dao.insertPausedGroup(ctx, sess, allGroupsPausedMarker)
		}
		return nil
	})
}

// ResumeAll resumes every trigger group and clears all sticky markers.
func (s *Store) ResumeAll(ctx context.Context) error {
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		if _, err := s.resumeTriggersInLock(ctx, sess, matcher.AnyGroup()); err != nil {
			return err
		}
		if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(s.dao.q(qDeleteAllPausedGroups)),
			s.cfg.SchedName); err != nil {
			return fmt.Errorf("clear paused groups: %w", err)
		}
		return nil
	})
}

// PausedTriggerGroups returns the sticky paused group names.
func (s *Store) PausedTriggerGroups(ctx context.Context) ([]string, error) {
	var groups []string
	err := s.executeInLock(ctx, "", func(sess *session) error {
		var err error
		groups, err = s.pausedGroupsInLock(ctx, sess)
		return err
	})
	return groups, err
}

func (s *Store) pausedGroupsInLock(ctx context.Context, sess *session) ([]string, error) {
	var groups []string
	if err := sess.tx.SelectContext(ctx, &groups, sess.tx.Rebind(s.dao.q(qSelectPausedGroups)),
		s.cfg.SchedName); err != nil {
		return nil, fmt.Errorf("select paused groups: %w", err)
	}
	out := groups[:0]
	for _, g := range groups {
		if g != allGroupsPausedMarker {
			out = append(out, g)
		}
	}
	return out, nil
}
