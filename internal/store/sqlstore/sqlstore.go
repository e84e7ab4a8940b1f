// Package sqlstore provides the clustered SQL job store. All scheduling
// state lives in the database; peers coordinate exclusively through named
// row locks and heartbeat rows, so any number of scheduler instances can
// share one schema.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/quartz/internal/calendar"
	"github.com/jonesrussell/quartz/internal/domain"
	"github.com/jonesrussell/quartz/internal/logger"
	"github.com/jonesrussell/quartz/internal/matcher"
	"github.com/jonesrussell/quartz/internal/schedule"
	"github.com/jonesrussell/quartz/internal/store"
)

const (
	// DefaultTablePrefix matches the upstream schema naming.
	DefaultTablePrefix = "qrtz_"

	// DefaultMisfireThreshold is how far a fire time may lag before the
	// misfire policy applies.
	DefaultMisfireThreshold = time.Minute

	// DefaultClusterCheckinInterval is the heartbeat period.
	DefaultClusterCheckinInterval = 7500 * time.Millisecond

	// DefaultMaxMisfiresToHandle bounds misfire work done per acquire
	// pass so one huge backlog cannot starve the loop.
	DefaultMaxMisfiresToHandle = 20

	// allGroupsPausedMarker is stored in PAUSED_TRIGGER_GRPS by PauseAll
	// so groups created afterwards start paused too.
	allGroupsPausedMarker = "_$_ALL_GROUPS_PAUSED_$_"
)

// Config carries the store's tunables. SchedName and InstanceID identify
// the cluster and this member; every peer must agree on SchedName,
// TablePrefix and UseProperties.
type Config struct {
	SchedName   string
	InstanceID  string
	TablePrefix string

	// UseProperties stores job data as key/value text instead of opaque
	// blobs, restricting values to strings.
	UseProperties bool

	MisfireThreshold       time.Duration
	Clustered              bool
	ClusterCheckinInterval time.Duration

	LockMaxRetry    int
	LockRetryPeriod time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.TablePrefix == "" {
		out.TablePrefix = DefaultTablePrefix
	}
	if out.MisfireThreshold <= 0 {
		out.MisfireThreshold = DefaultMisfireThreshold
	}
	if out.ClusterCheckinInterval <= 0 {
		out.ClusterCheckinInterval = DefaultClusterCheckinInterval
	}
	return out
}

// Store is the clustered SQL job store.
type Store struct {
	db      *sqlx.DB
	cfg     Config
	dialect Dialect
	dao     *dao
	sem     *rowLockSemaphore
	sig     store.SchedulerSignaler
	log     logger.Interface

	cluster *clusterManager

	// checkedIn flips after the first successful cluster checkin; the
	// first pass also recovers this id's prior incarnation.
	checkedIn bool
}

var _ store.JobStore = (*Store)(nil)

// New builds a store over an open database handle. The handle is owned by
// the caller; Shutdown stops background work but does not close it.
func New(db *sqlx.DB, cfg Config, dialect Dialect, log logger.Interface) (*Store, error) {
	if cfg.SchedName == "" {
		return nil, fmt.Errorf("sqlstore: SchedName is required")
	}
	if cfg.InstanceID == "" {
		return nil, fmt.Errorf("sqlstore: InstanceID is required")
	}
	if log == nil {
		log = logger.NewNoOp()
	}
	cfg = cfg.withDefaults()

	var serializer JobDataSerializer = GobSerializer{}
	if cfg.UseProperties {
		serializer = PropertiesSerializer{}
	}
	d := &dao{
		schedName:  cfg.SchedName,
		prefix:     cfg.TablePrefix,
		serializer: serializer,
	}
	d.delegates = []triggerPersistenceDelegate{
		&simpleDelegate{d: d},
		&cronDelegate{d: d},
		&calendarIntervalDelegate{d: d},
		&dailyTimeIntervalDelegate{d: d},
		&blobDelegate{d: d},
	}

	s := &Store{
		db:      db,
		cfg:     cfg,
		dialect: dialect,
		dao:     d,
		sem: newRowLockSemaphore(dialect, cfg.TablePrefix, cfg.SchedName,
			cfg.LockMaxRetry, cfg.LockRetryPeriod, log),
		log: log.With("component", "sqlstore", "instance", cfg.InstanceID),
	}
	return s, nil
}

// Initialize wires the signaler, recovers this instance's own orphaned
// fires, and, when clustered, starts the cluster manager.
func (s *Store) Initialize(ctx context.Context, sig store.SchedulerSignaler) error {
	s.sig = sig
	if s.cfg.Clustered {
		s.cluster = newClusterManager(s)
		s.cluster.start()
		return nil
	}
	if err := s.recoverOwnFiredTriggers(ctx); err != nil {
		return fmt.Errorf("startup recovery: %w", err)
	}
	return nil
}

// Shutdown stops the cluster manager and removes this instance's
// heartbeat row.
func (s *Store) Shutdown(ctx context.Context) error {
	if s.cluster != nil {
		s.cluster.stop()
		err := s.executeInLock(ctx, LockStateAccess, func(sess *session) error {
			_, execErr := sess.tx.ExecContext(ctx, sess.tx.Rebind(s.dao.q(qDeleteSchedulerState)),
				s.cfg.SchedName, s.cfg.InstanceID)
			return execErr
		})
		if err != nil {
			s.log.Warn("failed to remove scheduler state row on shutdown", "error", err)
		}
	}
	return nil
}

func (s *Store) SupportsPersistence() bool { return true }

func (s *Store) Clustered() bool { return s.cfg.Clustered }

// executeInLock runs fn inside one transaction, holding the named row
// lock when lockName is non-empty. Errors roll the transaction back.
func (s *Store) executeInLock(ctx context.Context, lockName string, fn func(sess *session) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	sess := &session{tx: tx, owned: make(map[string]struct{})}

	if lockName != "" {
		if err := s.sem.obtain(ctx, sess, lockName); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.log.Warn("rollback failed", "error", rbErr)
			}
			return err
		}
	}
	if err := fn(sess); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// StoreJob stores the job detail under TRIGGER_ACCESS. A non-durable job
// must already have a trigger pointing at it; jobs stored ahead of their
// triggers have to be durable.
func (s *Store) StoreJob(ctx context.Context, detail *domain.JobDetail, replace bool) error {
	if err := detail.Validate(); err != nil {
		return fmt.Errorf("store job: %w", err)
	}
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		if !detail.Durable {
			var remaining int
			if err := sess.tx.GetContext(ctx, &remaining, sess.tx.Rebind(s.dao.q(qSelectNumTriggersForJob)),
				s.dao.schedName, detail.Key.Name, detail.Key.Group); err != nil {
				return fmt.Errorf("count triggers of job %s: %w", detail.Key, err)
			}
			if remaining == 0 {
				return fmt.Errorf("job %s: %w", detail.Key, store.ErrJobNotDurable)
			}
		}
		return s.storeJobInLock(ctx, sess, detail, replace)
	})
}

func (s *Store) storeJobInLock(ctx context.Context, sess *session, detail *domain.JobDetail, replace bool) error {
	exists, err := s.dao.jobExists(ctx, sess, detail.Key)
	if err != nil {
		return err
	}
	if exists {
		if !replace {
			return fmt.Errorf("job %s: %w", detail.Key, store.ErrObjectAlreadyExists)
		}
		return s.dao.updateJob(ctx, sess, detail)
	}
	return s.dao.insertJob(ctx, sess, detail)
}

// StoreTrigger stores the trigger under TRIGGER_ACCESS.
func (s *Store) StoreTrigger(ctx context.Context, t *domain.Trigger, replace bool) error {
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		return s.storeTriggerInLock(ctx, sess, t, replace, domain.StateWaiting, false)
	})
}

// storeTriggerInLock persists t with the right initial state: sticky
// paused groups and blocked jobs override the requested state.
func (s *Store) storeTriggerInLock(ctx context.Context, sess *session, t *domain.Trigger, replace bool, state domain.TriggerState, forceState bool) error {
	if err := schedule.Validate(t); err != nil {
		return fmt.Errorf("store trigger: %w", err)
	}
	exists, err := s.dao.triggerExists(ctx, sess, t.Key)
	if err != nil {
		return err
	}
	if exists && !replace {
		return fmt.Errorf("trigger %s: %w", t.Key, store.ErrObjectAlreadyExists)
	}
	jobExists, err := s.dao.jobExists(ctx, sess, t.JobKey)
	if err != nil {
		return err
	}
	if !jobExists {
		return fmt.Errorf("trigger %s references job %s: %w", t.Key, t.JobKey, store.ErrJobNotFound)
	}
	if t.CalendarName != "" {
		var n int
		if err := sess.tx.GetContext(ctx, &n, sess.tx.Rebind(s.dao.q(qSelectCalendarExists)),
			s.cfg.SchedName, t.CalendarName); err != nil {
			return fmt.Errorf("calendar exists %q: %w", t.CalendarName, err)
		}
		if n == 0 {
			return fmt.Errorf("trigger %s references calendar %q: %w", t.Key, t.CalendarName, store.ErrCalendarNotFound)
		}
	}

	if !forceState {
		state, err = s.initialTriggerState(ctx, sess, t)
		if err != nil {
			return err
		}
	}

	if exists {
		if err := s.replaceTriggerRow(ctx, sess, t, state); err != nil {
			return err
		}
		return nil
	}
	return s.dao.insertTrigger(ctx, sess, t, state)
}

// replaceTriggerRow rewrites an existing trigger, switching delegates when
// the schedule variant changed.
func (s *Store) replaceTriggerRow(ctx context.Context, sess *session, t *domain.Trigger, state domain.TriggerState) error {
	var oldType string
	err := sess.tx.GetContext(ctx, &oldType,
		sess.tx.Rebind(s.dao.q(`SELECT trigger_type FROM {p}triggers
			WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`)),
		s.cfg.SchedName, t.Key.Name, t.Key.Group)
	if err != nil {
		return fmt.Errorf("replace trigger %s: %w", t.Key, err)
	}
	newDel, err := delegateFor(s.dao.delegates, t)
	if err != nil {
		return err
	}
	if oldType == newDel.Discriminator() {
		return s.dao.updateTrigger(ctx, sess, t, state)
	}
	oldDel, err := delegateForType(s.dao.delegates, oldType)
	if err != nil {
		return err
	}
	if err := oldDel.Delete(ctx, sess, t.Key); err != nil {
		return err
	}
	row, err := s.dao.triggerToRow(t, state, newDel.Discriminator())
	if err != nil {
		return err
	}
	_, err = sess.tx.ExecContext(ctx, sess.tx.Rebind(s.dao.q(qUpdateTrigger)),
		row.JobName, row.JobGroup, row.Description, row.NextFireTime,
		row.PrevFireTime, row.Priority, row.TriggerState, row.TriggerType,
		row.StartTime, row.EndTime, row.CalendarName, row.MisfireInstr,
		row.JobData, row.TimeZone, row.FireInstanceN,
		row.SchedName, row.TriggerName, row.TriggerGroup)
	if err != nil {
		return fmt.Errorf("replace trigger %s: %w", t.Key, err)
	}
	return newDel.Insert(ctx, sess, t)
}

// initialTriggerState resolves the state a newly stored trigger starts in.
func (s *Store) initialTriggerState(ctx context.Context, sess *session, t *domain.Trigger) (domain.TriggerState, error) {
	groupPaused, err := s.dao.isGroupPaused(ctx, sess, t.Key.Group)
	if err != nil {
		return "", err
	}
	if !groupPaused {
		groupPaused, err = s.dao.isGroupPaused(ctx, sess, allGroupsPausedMarker)
		if err != nil {
			return "", err
		}
	}
	blocked, err := s.jobIsBlocked(ctx, sess, t.JobKey)
	if err != nil {
		return "", err
	}
	switch {
	case groupPaused && blocked:
		return domain.StatePausedBlocked, nil
	case groupPaused:
		return domain.StatePaused, nil
	case blocked:
		return domain.StateBlocked, nil
	}
	return domain.StateWaiting, nil
}

// jobIsBlocked reports whether a concurrency-disallowed execution of the
// job is in flight anywhere in the cluster.
func (s *Store) jobIsBlocked(ctx context.Context, sess *session, key domain.JobKey) (bool, error) {
	var n int
	query := s.dao.q(`SELECT COUNT(*) FROM {p}fired_triggers
		WHERE sched_name = ? AND job_name = ? AND job_group = ?
		AND is_nonconcurrent = ?`)
	if err := sess.tx.GetContext(ctx, &n, sess.tx.Rebind(query),
		s.cfg.SchedName, key.Name, key.Group, true); err != nil {
		return false, fmt.Errorf("job blocked %s: %w", key, err)
	}
	return n > 0, nil
}

// StoreJobAndTrigger stores both under one lock and transaction.
func (s *Store) StoreJobAndTrigger(ctx context.Context, detail *domain.JobDetail, t *domain.Trigger) error {
	if err := detail.Validate(); err != nil {
		return fmt.Errorf("store job and trigger: %w", err)
	}
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		if err := s.storeJobInLock(ctx, sess, detail, false); err != nil {
			return err
		}
		return s.storeTriggerInLock(ctx, sess, t, false, domain.StateWaiting, false)
	})
}

// RemoveJob deletes the job and all its triggers.
func (s *Store) RemoveJob(ctx context.Context, key domain.JobKey) (bool, error) {
	var removed bool
	err := s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		keys, err := s.dao.selectTriggerKeys(ctx, sess, s.dao.q(qSelectTriggersForJob),
			s.cfg.SchedName, key.Name, key.Group)
		if err != nil {
			return err
		}
		for _, tk := range keys {
			if _, err := s.dao.deleteTrigger(ctx, sess, tk); err != nil {
				return err
			}
		}
		removed, err = s.dao.deleteJob(ctx, sess, key)
		return err
	})
	return removed, err
}

// RemoveTrigger deletes the trigger, garbage-collecting a non-durable job
// left without triggers.
func (s *Store) RemoveTrigger(ctx context.Context, key domain.TriggerKey) (bool, error) {
	var removed bool
	err := s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		var err error
		removed, err = s.removeTriggerInLock(ctx, sess, key)
		return err
	})
	return removed, err
}

func (s *Store) removeTriggerInLock(ctx context.Context, sess *session, key domain.TriggerKey) (bool, error) {
	t, err := s.dao.selectTrigger(ctx, sess, key)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, nil
	}
	if _, err := s.dao.deleteTrigger(ctx, sess, key); err != nil {
		return false, err
	}

	job, err := s.dao.selectJob(ctx, sess, t.JobKey)
	if err != nil {
		return false, err
	}
	if job == nil || job.Durable {
		return true, nil
	}
	var remaining int
	if err := sess.tx.GetContext(ctx, &remaining, sess.tx.Rebind(s.dao.q(qSelectNumTriggersForJob)),
		s.cfg.SchedName, t.JobKey.Name, t.JobKey.Group); err != nil {
		return false, fmt.Errorf("count triggers for job %s: %w", t.JobKey, err)
	}
	if remaining == 0 {
		if _, err := s.dao.deleteJob(ctx, sess, t.JobKey); err != nil {
			return false, err
		}
	}
	return true, nil
}

// ReplaceTrigger swaps the trigger for newTrigger, which must reference
// the same job.
func (s *Store) ReplaceTrigger(ctx context.Context, key domain.TriggerKey, newTrigger *domain.Trigger) (bool, error) {
	var replaced bool
	err := s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		old, err := s.dao.selectTrigger(ctx, sess, key)
		if err != nil {
			return err
		}
		if old == nil {
			return nil
		}
		if old.JobKey != newTrigger.JobKey {
			return fmt.Errorf("replace trigger %s: new trigger references different job %s", key, newTrigger.JobKey)
		}
		if _, err := s.dao.deleteTrigger(ctx, sess, key); err != nil {
			return err
		}
		if err := s.storeTriggerInLock(ctx, sess, newTrigger, false, domain.StateWaiting, false); err != nil {
			return err
		}
		replaced = true
		return nil
	})
	return replaced, err
}

// RetrieveJob returns the job, or nil when absent.
func (s *Store) RetrieveJob(ctx context.Context, key domain.JobKey) (*domain.JobDetail, error) {
	var detail *domain.JobDetail
	err := s.executeInLock(ctx, "", func(sess *session) error {
		var err error
		detail, err = s.dao.selectJob(ctx, sess, key)
		return err
	})
	return detail, err
}

// RetrieveTrigger returns the trigger, or nil when absent.
func (s *Store) RetrieveTrigger(ctx context.Context, key domain.TriggerKey) (*domain.Trigger, error) {
	var t *domain.Trigger
	err := s.executeInLock(ctx, "", func(sess *session) error {
		var err error
		t, err = s.dao.selectTrigger(ctx, sess, key)
		return err
	})
	return t, err
}

func (s *Store) CheckJobExists(ctx context.Context, key domain.JobKey) (bool, error) {
	var exists bool
	err := s.executeInLock(ctx, "", func(sess *session) error {
		var err error
		exists, err = s.dao.jobExists(ctx, sess, key)
		return err
	})
	return exists, err
}

func (s *Store) CheckTriggerExists(ctx context.Context, key domain.TriggerKey) (bool, error) {
	var exists bool
	err := s.executeInLock(ctx, "", func(sess *session) error {
		var err error
		exists, err = s.dao.triggerExists(ctx, sess, key)
		return err
	})
	return exists, err
}

// ClearAllSchedulingData empties every table except LOCKS and
// SCHEDULER_STATE.
func (s *Store) ClearAllSchedulingData(ctx context.Context) error {
	tables := []string{
		"simple_triggers", "cron_triggers", "simprop_triggers",
		"blob_triggers", "fired_triggers", "triggers", "job_details",
		"calendars", "paused_trigger_grps",
	}
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		for _, table := range tables {
			query := s.dao.q(fmt.Sprintf(qDeleteAll, table))
			if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(query), s.cfg.SchedName); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

// StoreCalendar stores the named calendar; with updateTriggers set, the
// fire times of referencing triggers are recomputed.
func (s *Store) StoreCalendar(ctx context.Context, name string, cal calendar.Calendar, replace, updateTriggers bool) error {
	blob, err := encodeCalendar(cal)
	if err != nil {
		return err
	}
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		var n int
		if err := sess.tx.GetContext(ctx, &n, sess.tx.Rebind(s.dao.q(qSelectCalendarExists)),
			s.cfg.SchedName, name); err != nil {
			return fmt.Errorf("calendar exists %q: %w", name, err)
		}
		if n > 0 {
			if !replace {
				return fmt.Errorf("calendar %q: %w", name, store.ErrObjectAlreadyExists)
			}
			if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(s.dao.q(qUpdateCalendar)),
				blob, s.cfg.SchedName, name); err != nil {
				return fmt.Errorf("update calendar %q: %w", name, err)
			}
		} else {
			if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(s.dao.q(qInsertCalendar)),
				s.cfg.SchedName, name, blob); err != nil {
				return fmt.Errorf("insert calendar %q: %w", name, err)
			}
		}
		if !updateTriggers {
			return nil
		}

		keys, err := s.dao.selectTriggerKeys(ctx, sess, s.dao.q(qSelectTriggersForCalendar),
			s.cfg.SchedName, name)
		if err != nil {
			return err
		}
		for _, tk := range keys {
			t, err := s.dao.selectTrigger(ctx, sess, tk)
			if err != nil {
				return err
			}
			if t == nil {
				continue
			}
			t.NextFireTime = schedule.FireTimeAfter(t, time.Now(), cal)
			state, err := s.dao.selectTriggerState(ctx, sess, tk)
			if err != nil {
				return err
			}
			if err := s.dao.updateTrigger(ctx, sess, t, state); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveCalendar deletes the calendar unless triggers still reference it.
func (s *Store) RemoveCalendar(ctx context.Context, name string) (bool, error) {
	var removed bool
	err := s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		var refs int
		query := s.dao.q(`SELECT COUNT(*) FROM {p}triggers
			WHERE sched_name = ? AND calendar_name = ?`)
		if err := sess.tx.GetContext(ctx, &refs, sess.tx.Rebind(query), s.cfg.SchedName, name); err != nil {
			return fmt.Errorf("calendar references %q: %w", name, err)
		}
		if refs > 0 {
			return fmt.Errorf("calendar %q: %w", name, store.ErrCalendarInUse)
		}
		res, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(s.dao.q(qDeleteCalendar)),
			s.cfg.SchedName, name)
		if err != nil {
			return fmt.Errorf("delete calendar %q: %w", name, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		removed = n > 0
		return nil
	})
	return removed, err
}

// RetrieveCalendar returns the calendar, or nil when absent.
func (s *Store) RetrieveCalendar(ctx context.Context, name string) (calendar.Calendar, error) {
	var cal calendar.Calendar
	err := s.executeInLock(ctx, "", func(sess *session) error {
		var err error
		cal, err = s.retrieveCalendarInLock(ctx, sess, name)
		return err
	})
	return cal, err
}

func (s *Store) retrieveCalendarInLock(ctx context.Context, sess *session, name string) (calendar.Calendar, error) {
	var blob []byte
	err := sess.tx.GetContext(ctx, &blob, sess.tx.Rebind(s.dao.q(qSelectCalendar)),
		s.cfg.SchedName, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select calendar %q: %w", name, err)
	}
	return decodeCalendar(blob)
}

func (s *Store) CalendarNames(ctx context.Context) ([]string, error) {
	var names []string
	err := s.executeInLock(ctx, "", func(sess *session) error {
		return sess.tx.SelectContext(ctx, &names, sess.tx.Rebind(s.dao.q(qSelectCalendarNames)), s.cfg.SchedName)
	})
	return names, err
}

// JobKeys returns the keys of jobs whose group matches m.
func (s *Store) JobKeys(ctx context.Context, m matcher.GroupMatcher) ([]domain.JobKey, error) {
	var keys []domain.JobKey
	err := s.executeInLock(ctx, "", func(sess *session) error {
		var err error
		if pattern, ok := groupSQLPattern(m); ok {
			keys, err = s.dao.selectJobKeys(ctx, sess, s.dao.q(qSelectJobKeysLike), s.cfg.SchedName, pattern)
			return err
		}
		all, err := s.dao.selectJobKeys(ctx, sess, s.dao.q(qSelectAllJobKeys), s.cfg.SchedName)
		if err != nil {
			return err
		}
		for _, k := range all {
			if m.MatchesGroup(k.Group) {
				keys = append(keys, k)
			}
		}
		return nil
	})
	return keys, err
}

// TriggerKeys returns the keys of triggers whose group matches m.
func (s *Store) TriggerKeys(ctx context.Context, m matcher.GroupMatcher) ([]domain.TriggerKey, error) {
	var keys []domain.TriggerKey
	err := s.executeInLock(ctx, "", func(sess *session) error {
		var err error
		if pattern, ok := groupSQLPattern(m); ok {
			keys, err = s.dao.selectTriggerKeys(ctx, sess, s.dao.q(qSelectTriggerKeysLike), s.cfg.SchedName, pattern)
			return err
		}
		all, err := s.dao.selectTriggerKeys(ctx, sess, s.dao.q(qSelectAllTriggerKeys), s.cfg.SchedName)
		if err != nil {
			return err
		}
		for _, k := range all {
			if m.MatchesGroup(k.Group) {
				keys = append(keys, k)
			}
		}
		return nil
	})
	return keys, err
}

func (s *Store) JobGroupNames(ctx context.Context) ([]string, error) {
	var groups []string
	err := s.executeInLock(ctx, "", func(sess *session) error {
		return sess.tx.SelectContext(ctx, &groups, sess.tx.Rebind(s.dao.q(qSelectJobGroups)), s.cfg.SchedName)
	})
	return groups, err
}

func (s *Store) TriggerGroupNames(ctx context.Context) ([]string, error) {
	var groups []string
	err := s.executeInLock(ctx, "", func(sess *session) error {
		return sess.tx.SelectContext(ctx, &groups, sess.tx.Rebind(s.dao.q(qSelectTriggerGroups)), s.cfg.SchedName)
	})
	return groups, err
}

// TriggersForJob returns all triggers referencing the job.
func (s *Store) TriggersForJob(ctx context.Context, key domain.JobKey) ([]*domain.Trigger, error) {
	var out []*domain.Trigger
	err := s.executeInLock(ctx, "", func(sess *session) error {
		keys, err := s.dao.selectTriggerKeys(ctx, sess, s.dao.q(qSelectTriggersForJob),
			s.cfg.SchedName, key.Name, key.Group)
		if err != nil {
			return err
		}
		for _, tk := range keys {
			t, err := s.dao.selectTrigger(ctx, sess, tk)
			if err != nil {
				return err
			}
			if t != nil {
				out = append(out, t)
			}
		}
		return nil
	})
	return out, err
}

// TriggerStatus maps the persisted state to the client-visible status.
func (s *Store) TriggerStatus(ctx context.Context, key domain.TriggerKey) (domain.TriggerStatus, error) {
	status := domain.StatusNone
	err := s.executeInLock(ctx, "", func(sess *session) error {
		state, err := s.dao.selectTriggerState(ctx, sess, key)
		if err != nil {
			return err
		}
		if state != "" {
			status = domain.StatusOf(state)
		}
		return nil
	})
	return status, err
}

// ResetTriggerFromErrorState returns an ERROR trigger to WAITING, or
// PAUSED when its group carries a sticky pause.
func (s *Store) ResetTriggerFromErrorState(ctx context.Context, key domain.TriggerKey) error {
	return s.executeInLock(ctx, LockTriggerAccess, func(sess *session) error {
		state, err := s.dao.selectTriggerState(ctx, sess, key)
		if err != nil {
			return err
		}
		if state == "" {
			return fmt.Errorf("trigger %s: %w", key, store.ErrTriggerNotFound)
		}
		if state != domain.StateError {
			return nil
		}
		target := domain.StateWaiting
		paused, err := s.dao.isGroupPaused(ctx, sess, key.Group)
		if err != nil {
			return err
		}
		if paused {
			target = domain.StatePaused
		}
		return s.dao.updateTriggerState(ctx, sess, key, target)
	})
}
