package sqlstore

import (
	"context"
	"fmt"
	"strings"
)

// Migrate installs the store's schema and seeds the lock rows. It is
// idempotent and safe to run from every instance at startup.
func (s *Store) Migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS {p}job_details (
			sched_name        VARCHAR(120) NOT NULL,
			job_name          VARCHAR(200) NOT NULL,
			job_group         VARCHAR(200) NOT NULL,
			description       VARCHAR(250),
			job_class_name    VARCHAR(250) NOT NULL,
			is_durable        {bool} NOT NULL,
			is_nonconcurrent  {bool} NOT NULL,
			is_update_data    {bool} NOT NULL,
			requests_recovery {bool} NOT NULL,
			job_data          {blob},
			PRIMARY KEY (sched_name, job_name, job_group)
		)`,
		`CREATE TABLE IF NOT EXISTS {p}triggers (
			sched_name       VARCHAR(120) NOT NULL,
			trigger_name     VARCHAR(200) NOT NULL,
			trigger_group    VARCHAR(200) NOT NULL,
			job_name         VARCHAR(200) NOT NULL,
			job_group        VARCHAR(200) NOT NULL,
			description      VARCHAR(250),
			next_fire_time   BIGINT,
			prev_fire_time   BIGINT,
			priority         INTEGER NOT NULL,
			trigger_state    VARCHAR(16) NOT NULL,
			trigger_type     VARCHAR(8) NOT NULL,
			start_time       BIGINT NOT NULL,
			end_time         BIGINT,
			calendar_name    VARCHAR(200),
			misfire_instr    INTEGER NOT NULL,
			job_data         {blob},
			time_zone_id     VARCHAR(80),
			fire_instance_id VARCHAR(95),
			PRIMARY KEY (sched_name, trigger_name, trigger_group),
			FOREIGN KEY (sched_name, job_name, job_group)
				REFERENCES {p}job_details (sched_name, job_name, job_group)
		)`,
		`CREATE TABLE IF NOT EXISTS {p}simple_triggers (
			sched_name      VARCHAR(120) NOT NULL,
			trigger_name    VARCHAR(200) NOT NULL,
			trigger_group   VARCHAR(200) NOT NULL,
			repeat_count    BIGINT NOT NULL,
			repeat_interval BIGINT NOT NULL,
			times_triggered BIGINT NOT NULL,
			PRIMARY KEY (sched_name, trigger_name, trigger_group),
			FOREIGN KEY (sched_name, trigger_name, trigger_group)
				REFERENCES {p}triggers (sched_name, trigger_name, trigger_group)
				ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS {p}cron_triggers (
			sched_name      VARCHAR(120) NOT NULL,
			trigger_name    VARCHAR(200) NOT NULL,
			trigger_group   VARCHAR(200) NOT NULL,
			cron_expression VARCHAR(120) NOT NULL,
			PRIMARY KEY (sched_name, trigger_name, trigger_group),
			FOREIGN KEY (sched_name, trigger_name, trigger_group)
				REFERENCES {p}triggers (sched_name, trigger_name, trigger_group)
				ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS {p}simprop_triggers (
			sched_name    VARCHAR(120) NOT NULL,
			trigger_name  VARCHAR(200) NOT NULL,
			trigger_group VARCHAR(200) NOT NULL,
			str_prop_1    VARCHAR(512),
			str_prop_2    VARCHAR(512),
			str_prop_3    VARCHAR(512),
			int_prop_1    INTEGER,
			int_prop_2    INTEGER,
			long_prop_1   BIGINT,
			long_prop_2   BIGINT,
			dec_prop_1    NUMERIC(13,4),
			dec_prop_2    NUMERIC(13,4),
			bool_prop_1   {bool},
			bool_prop_2   {bool},
			PRIMARY KEY (sched_name, trigger_name, trigger_group),
			FOREIGN KEY (sched_name, trigger_name, trigger_group)
				REFERENCES {p}triggers (sched_name, trigger_name, trigger_group)
				ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS {p}blob_triggers (
			sched_name    VARCHAR(120) NOT NULL,
			trigger_name  VARCHAR(200) NOT NULL,
			trigger_group VARCHAR(200) NOT NULL,
			blob_data     {blob},
			PRIMARY KEY (sched_name, trigger_name, trigger_group),
			FOREIGN KEY (sched_name, trigger_name, trigger_group)
				REFERENCES {p}triggers (sched_name, trigger_name, trigger_group)
				ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS {p}calendars (
			sched_name    VARCHAR(120) NOT NULL,
			calendar_name VARCHAR(200) NOT NULL,
			calendar      {blob} NOT NULL,
			PRIMARY KEY (sched_name, calendar_name)
		)`,
		`CREATE TABLE IF NOT EXISTS {p}paused_trigger_grps (
			sched_name    VARCHAR(120) NOT NULL,
			trigger_group VARCHAR(200) NOT NULL,
			PRIMARY KEY (sched_name, trigger_group)
		)`,
		`CREATE TABLE IF NOT EXISTS {p}fired_triggers (
			sched_name        VARCHAR(120) NOT NULL,
			entry_id          VARCHAR(95) NOT NULL,
			trigger_name      VARCHAR(200) NOT NULL,
			trigger_group     VARCHAR(200) NOT NULL,
			instance_name     VARCHAR(200) NOT NULL,
			fired_time        BIGINT NOT NULL,
			sched_time        BIGINT NOT NULL,
			priority          INTEGER NOT NULL,
			state             VARCHAR(16) NOT NULL,
			job_name          VARCHAR(200) NOT NULL,
			job_group         VARCHAR(200) NOT NULL,
			is_nonconcurrent  {bool} NOT NULL,
			requests_recovery {bool} NOT NULL,
			PRIMARY KEY (sched_name, entry_id)
		)`,
		`CREATE TABLE IF NOT EXISTS {p}scheduler_state (
			sched_name        VARCHAR(120) NOT NULL,
			instance_name     VARCHAR(200) NOT NULL,
			last_checkin_time BIGINT NOT NULL,
			checkin_interval  BIGINT NOT NULL,
			PRIMARY KEY (sched_name, instance_name)
		)`,
		`CREATE TABLE IF NOT EXISTS {p}locks (
			sched_name VARCHAR(120) NOT NULL,
			lock_name  VARCHAR(40) NOT NULL,
			PRIMARY KEY (sched_name, lock_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_{p}t_next_fire_time
			ON {p}triggers (sched_name, trigger_state, next_fire_time)`,
		`CREATE INDEX IF NOT EXISTS idx_{p}ft_inst_name
			ON {p}fired_triggers (sched_name, instance_name)`,
		`CREATE INDEX IF NOT EXISTS idx_{p}ft_job_req
			ON {p}fired_triggers (sched_name, job_name, job_group)`,
	}

	for _, stmt := range ddl {
		stmt = strings.ReplaceAll(stmt, "{bool}", s.dialect.BoolType())
		stmt = strings.ReplaceAll(stmt, "{blob}", s.dialect.BlobType())
		stmt = expandPrefix(stmt, s.cfg.TablePrefix)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return s.seedLockRows(ctx)
}

// seedLockRows inserts the semaphore rows every instance contends on.
// Losing the insert race to a peer is the expected case.
func (s *Store) seedLockRows(ctx context.Context) error {
	for _, lockName := range []string{LockTriggerAccess, LockStateAccess} {
		err := s.executeInLock(ctx, "", func(sess *session) error {
			var n int
			query := s.dao.q(`SELECT COUNT(*) FROM {p}locks WHERE sched_name = ? AND lock_name = ?`)
			if err := sess.tx.GetContext(ctx, &n, sess.tx.Rebind(query), s.cfg.SchedName, lockName); err != nil {
				return err
			}
			if n > 0 {
				return nil
			}
			_, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(s.sem.insertSQL),
				s.cfg.SchedName, lockName)
			return err
		})
		if err != nil {
			s.log.Debug("lock row seed raced with a peer", "lock", lockName, "error", err)
		}
	}
	return nil
}
