package sqlstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/quartz/internal/domain"
)

// RecoveringJobsGroup holds the one-shot triggers created to replay
// fires lost to a crashed instance.
const RecoveringJobsGroup = "RECOVERING_JOBS"

// checkinGracePeriod is added to a peer's own checkin interval before it
// is considered dead; it absorbs clock skew and GC pauses.
const checkinGracePeriod = 7500 * time.Millisecond

// clusterManager heartbeats this instance and recovers the work of peers
// that stopped checking in.
type clusterManager struct {
	s    *Store
	done chan struct{}
	wg   sync.WaitGroup
}

func newClusterManager(s *Store) *clusterManager {
	return &clusterManager{s: s, done: make(chan struct{})}
}

func (cm *clusterManager) start() {
	ctx := context.Background()
	if err := cm.s.clusterCheckin(ctx); err != nil {
		cm.s.log.Error("initial cluster checkin failed", "error", err)
	}
	cm.wg.Add(1)
	go cm.run()
}

func (cm *clusterManager) stop() {
	close(cm.done)
	cm.wg.Wait()
}

func (cm *clusterManager) run() {
	defer cm.wg.Done()
	ticker := time.NewTicker(cm.s.cfg.ClusterCheckinInterval)
	defer ticker.Stop()
	for {
		select {
		case <-cm.done:
			return
		case <-ticker.C:
			if err := cm.s.clusterCheckin(context.Background()); err != nil {
				cm.s.log.Error("cluster checkin failed", "error", err)
				if cm.s.sig != nil {
					cm.s.sig.NotifySchedulerListenersError("cluster checkin failed", err)
				}
			}
		}
	}
}

// clusterCheckin scans for dead peers, records this instance's heartbeat,
// and recovers the in-flight work of whatever failed. All time comparisons
// use the database clock; peer wall-clocks are never compared directly.
// The first checkin also treats a pre-existing state row or fired records
// under this instance's own id as a crashed prior incarnation.
func (s *Store) clusterCheckin(ctx context.Context) error {
	selfRecovery := !s.checkedIn
	var failed []*domain.SchedulerInstance
	err := s.executeInLock(ctx, LockStateAccess, func(sess *session) error {
		dbNow, err := s.dao.selectNow(ctx, sess)
		if err != nil {
			return err
		}
		failed, err = s.findFailedInstances(ctx, sess, dbNow, selfRecovery)
		if err != nil {
			return err
		}
		res, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(s.dao.q(qUpdateSchedulerState)),
			toMillis(dbNow), s.cfg.SchedName, s.cfg.InstanceID)
		if err != nil {
			return fmt.Errorf("update scheduler state: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(s.dao.q(qInsertSchedulerState)),
				s.cfg.SchedName, s.cfg.InstanceID, toMillis(dbNow),
				s.cfg.ClusterCheckinInterval.Milliseconds()); err != nil {
				return fmt.Errorf("insert scheduler state: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.checkedIn = true
	if len(failed) == 0 {
		return nil
	}
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		if err := s.sem.obtain(ctx, sess, LockStateAccess); err != nil {
			return err
		}
		for _, inst := range failed {
			if err := s.recoverInstance(ctx, sess, inst.InstanceID); err != nil {
				return err
			}
			// This incarnation's heartbeat row was just written; only
			// dead peers lose theirs.
			if inst.InstanceID == s.cfg.InstanceID {
				continue
			}
			if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(s.dao.q(qDeleteSchedulerState)),
				s.cfg.SchedName, inst.InstanceID); err != nil {
				return fmt.Errorf("delete scheduler state %s: %w", inst.InstanceID, err)
			}
		}
		return nil
	})
}

// findFailedInstances returns peers whose heartbeat went stale at dbNow,
// plus phantom instances that left fired records but no state row.
func (s *Store) findFailedInstances(ctx context.Context, sess *session, dbNow time.Time, selfRecovery bool) ([]*domain.SchedulerInstance, error) {
	states, err := s.dao.selectSchedulerStates(ctx, sess)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := sess.tx.SelectContext(ctx, &names,
		sess.tx.Rebind(s.dao.q(qSelectFiredTriggerInstanceNames)), s.cfg.SchedName); err != nil {
		return nil, fmt.Errorf("select fired trigger instances: %w", err)
	}
	return s.selectFailedInstances(states, names, dbNow, selfRecovery), nil
}

// selectFailedInstances applies the failure rules to the state and fired
// rows already read under the lock.
func (s *Store) selectFailedInstances(states []*domain.SchedulerInstance, firedInstances []string, dbNow time.Time, selfRecovery bool) []*domain.SchedulerInstance {
	known := make(map[string]struct{}, len(states))
	var failed []*domain.SchedulerInstance

	for _, st := range states {
		known[st.InstanceID] = struct{}{}
		if st.InstanceID == s.cfg.InstanceID {
			// A state row under this id before the first checkin belongs
			// to a prior incarnation.
			if selfRecovery {
				failed = append(failed, st)
			}
			continue
		}
		interval := st.CheckinInterval
		if s.cfg.ClusterCheckinInterval > interval {
			interval = s.cfg.ClusterCheckinInterval
		}
		if st.LastCheckin.Add(interval + checkinGracePeriod).Before(dbNow) {
			failed = append(failed, st)
		}
	}

	for _, name := range firedInstances {
		if name == s.cfg.InstanceID && !selfRecovery {
			continue
		}
		if _, ok := known[name]; !ok {
			failed = append(failed, &domain.SchedulerInstance{InstanceID: name})
		}
	}
	return failed
}

// recoverInstance releases or replays everything a dead peer had in
// flight.
func (s *Store) recoverInstance(ctx context.Context, sess *session, instanceID string) error {
	recs, err := s.dao.selectFiredTriggersOfInstance(ctx, sess, instanceID)
	if err != nil {
		return err
	}
	s.log.Info("recovering work of failed instance",
		"failedInstance", instanceID, "inFlight", len(recs))

	var recovered, released int
	for _, rec := range recs {
		if rec.ConcurrentExecutionDisallowed {
			if err := s.unblockJobInLock(ctx, sess, rec.JobKey); err != nil {
				return err
			}
		}
		switch rec.State {
		case domain.FiredStateAcquired:
			got, err := s.dao.updateTriggerStateFromStates(ctx, sess, rec.TriggerKey,
				domain.StateWaiting, domain.StateAcquired, domain.StateBlocked, domain.StateAcquired)
			if err != nil {
				return err
			}
			if got {
				released++
			}
		default:
			if rec.RequestsRecovery {
				if err := s.storeRecoveryTrigger(ctx, sess, rec); err != nil {
					return err
				}
				recovered++
			}
			// A completed schedule left behind by the crash must not
			// linger in a fired state.
			if err := s.completeStaleTrigger(ctx, sess, rec.TriggerKey); err != nil {
				return err
			}
		}
		if err := s.dao.deleteFiredTrigger(ctx, sess, rec.FireInstanceID); err != nil {
			return err
		}
	}
	s.log.Info("instance recovery finished",
		"failedInstance", instanceID, "recovered", recovered, "released", released)
	return nil
}

// storeRecoveryTrigger schedules a one-shot trigger replaying a fire that
// was executing when its instance died. The original trigger identity and
// fire times ride along in the job data.
func (s *Store) storeRecoveryTrigger(ctx context.Context, sess *session, rec *domain.FiredTriggerRecord) error {
	jobExists, err := s.dao.jobExists(ctx, sess, rec.JobKey)
	if err != nil {
		return err
	}
	if !jobExists {
		s.log.Warn("cannot recover fire, job no longer exists",
			"job", rec.JobKey.String(), "trigger", rec.TriggerKey.String())
		return nil
	}
	orig, err := s.dao.selectTrigger(ctx, sess, rec.TriggerKey)
	if err != nil {
		return err
	}
	data := domain.JobDataMap{}
	if orig != nil {
		data = orig.JobData.Clone()
	}
	data[domain.DataKeyRecoveringTriggerName] = rec.TriggerKey.Name
	data[domain.DataKeyRecoveringTriggerGroup] = rec.TriggerKey.Group
	data[domain.DataKeyRecoveringFireTime] = strconv.FormatInt(rec.FiredTime.UnixMilli(), 10)
	data[domain.DataKeyRecoveringSchedTime] = strconv.FormatInt(rec.ScheduledTime.UnixMilli(), 10)

	now := time.Now()
	recovery := &domain.Trigger{
		Key: domain.TriggerKey{
			Name:  "recover_" + rec.FireInstanceID + "_" + uuid.New().String(),
			Group: RecoveringJobsGroup,
		},
		JobKey:             rec.JobKey,
		Description:        "recovery trigger for " + rec.TriggerKey.String(),
		Priority:           rec.Priority,
		MisfireInstruction: domain.MisfireIgnorePolicy,
		JobData:            data,
		StartTime:          now,
		NextFireTime:       domain.TimePtr(now),
		Simple:             &domain.SimpleSchedule{},
	}
	return s.storeTriggerInLock(ctx, sess, recovery, false, domain.StateWaiting, true)
}

// completeStaleTrigger finishes a trigger whose schedule was exhausted at
// fire time but whose completion never ran.
func (s *Store) completeStaleTrigger(ctx context.Context, sess *session, key domain.TriggerKey) error {
	t, err := s.dao.selectTrigger(ctx, sess, key)
	if err != nil {
		return err
	}
	if t == nil || t.NextFireTime != nil {
		return nil
	}
	state, err := s.dao.selectTriggerState(ctx, sess, key)
	if err != nil {
		return err
	}
	if state == domain.StateComplete {
		_, err = s.removeTriggerInLock(ctx, sess, key)
		return err
	}
	return nil
}

// recoverOwnFiredTriggers is the non-clustered variant of crash recovery:
// at startup, anything this instance left in flight is released or
// replayed, and stuck claims are reset.
func (s *Store) recoverOwnFiredTriggers(ctx context.Context) error {
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(s.dao.q(qUpdateTriggerGroupStateFromStates)),
			string(domain.StateWaiting), s.cfg.SchedName, "%",
			string(domain.StateAcquired), string(domain.StateBlocked), string(domain.StateAcquired)); err != nil {
			return fmt.Errorf("reset stuck trigger claims: %w", err)
		}
		if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(s.dao.q(qUpdateTriggerGroupStateFromStates)),
			string(domain.StatePaused), s.cfg.SchedName, "%",
			string(domain.StatePausedBlocked), string(domain.StatePausedBlocked), string(domain.StatePausedBlocked)); err != nil {
			return fmt.Errorf("reset stuck blocked pauses: %w", err)
		}

		recs, err := s.dao.selectFiredTriggersOfInstance(ctx, sess, s.cfg.InstanceID)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if rec.RequestsRecovery && rec.State == domain.FiredStateExecuting {
				if err := s.storeRecoveryTrigger(ctx, sess, rec); err != nil {
					return err
				}
			}
		}
		if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(s.dao.q(qDeleteFiredTriggersOfInstance)),
			s.cfg.SchedName, s.cfg.InstanceID); err != nil {
			return fmt.Errorf("clear own fired triggers: %w", err)
		}
		return nil
	})
}
