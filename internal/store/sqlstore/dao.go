package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/quartz/internal/domain"
	"github.com/jonesrussell/quartz/internal/matcher"
)

// session is one store transaction plus the row locks it holds. Lock
// acquisition through the semaphore is reentrant per session; everything
// releases at commit or rollback.
type session struct {
	tx    *sqlx.Tx
	owned map[string]struct{}
}

// dao performs row-level operations. It owns template expansion and the
// mapping between rows and domain types; locking and transaction policy
// live a level up, in the store.
type dao struct {
	schedName  string
	prefix     string
	serializer JobDataSerializer
	delegates  []triggerPersistenceDelegate
}

func (d *dao) q(tmpl string) string { return expandPrefix(tmpl, d.prefix) }

// --- jobs ---

func (d *dao) jobToRow(detail *domain.JobDetail) (jobDetailRow, error) {
	data, err := d.serializer.Encode(detail.JobData)
	if err != nil {
		return jobDetailRow{}, fmt.Errorf("job %s: %w", detail.Key, err)
	}
	return jobDetailRow{
		SchedName:        d.schedName,
		JobName:          detail.Key.Name,
		JobGroup:         detail.Key.Group,
		Description:      nullString(detail.Description),
		JobClassName:     detail.JobType,
		IsDurable:        detail.Durable,
		IsNonconcurrent:  detail.Capabilities.DisallowConcurrentExecution,
		IsUpdateData:     detail.Capabilities.PersistJobDataAfterExecution,
		RequestsRecovery: detail.RequestsRecovery,
		JobData:          data,
	}, nil
}

func (d *dao) rowToJob(row jobDetailRow) (*domain.JobDetail, error) {
	data, err := d.serializer.Decode(row.JobData)
	if err != nil {
		return nil, fmt.Errorf("job %s.%s: %w", row.JobGroup, row.JobName, err)
	}
	return &domain.JobDetail{
		Key:              domain.JobKey{Name: row.JobName, Group: row.JobGroup},
		JobType:          row.JobClassName,
		Description:      row.Description.String,
		JobData:          data,
		Durable:          row.IsDurable,
		RequestsRecovery: row.RequestsRecovery,
		Capabilities: domain.JobCapabilities{
			DisallowConcurrentExecution:  row.IsNonconcurrent,
			PersistJobDataAfterExecution: row.IsUpdateData,
		},
	}, nil
}

func (d *dao) insertJob(ctx context.Context, sess *session, detail *domain.JobDetail) error {
	row, err := d.jobToRow(detail)
	if err != nil {
		return err
	}
	_, err = sess.tx.ExecContext(ctx, sess.tx.Rebind(d.q(qInsertJobDetail)),
		row.SchedName, row.JobName, row.JobGroup, row.Description,
		row.JobClassName, row.IsDurable, row.IsNonconcurrent, row.IsUpdateData,
		row.RequestsRecovery, row.JobData)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", detail.Key, err)
	}
	return nil
}

func (d *dao) updateJob(ctx context.Context, sess *session, detail *domain.JobDetail) error {
	row, err := d.jobToRow(detail)
	if err != nil {
		return err
	}
	_, err = sess.tx.ExecContext(ctx, sess.tx.Rebind(d.q(qUpdateJobDetail)),
		row.Description, row.JobClassName, row.IsDurable, row.IsNonconcurrent,
		row.IsUpdateData, row.RequestsRecovery, row.JobData,
		row.SchedName, row.JobName, row.JobGroup)
	if err != nil {
		return fmt.Errorf("update job %s: %w", detail.Key, err)
	}
	return nil
}

func (d *dao) selectJob(ctx context.Context, sess *session, key domain.JobKey) (*domain.JobDetail, error) {
	var row jobDetailRow
	err := sess.tx.GetContext(ctx, &row, sess.tx.Rebind(d.q(qSelectJobDetail)),
		d.schedName, key.Name, key.Group)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select job %s: %w", key, err)
	}
	return d.rowToJob(row)
}

func (d *dao) deleteJob(ctx context.Context, sess *session, key domain.JobKey) (bool, error) {
	res, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(d.q(qDeleteJobDetail)),
		d.schedName, key.Name, key.Group)
	if err != nil {
		return false, fmt.Errorf("delete job %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *dao) jobExists(ctx context.Context, sess *session, key domain.JobKey) (bool, error) {
	var n int
	err := sess.tx.GetContext(ctx, &n, sess.tx.Rebind(d.q(qSelectJobExists)),
		d.schedName, key.Name, key.Group)
	if err != nil {
		return false, fmt.Errorf("job exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (d *dao) updateJobData(ctx context.Context, sess *session, key domain.JobKey, data domain.JobDataMap) error {
	blob, err := d.serializer.Encode(data)
	if err != nil {
		return fmt.Errorf("job %s: %w", key, err)
	}
	if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(d.q(qUpdateJobData)),
		blob, d.schedName, key.Name, key.Group); err != nil {
		return fmt.Errorf("update job data %s: %w", key, err)
	}
	return nil
}

// --- triggers ---

func (d *dao) triggerToRow(t *domain.Trigger, state domain.TriggerState, discriminator string) (triggerRow, error) {
	data, err := d.serializer.Encode(t.JobData)
	if err != nil {
		return triggerRow{}, fmt.Errorf("trigger %s: %w", t.Key, err)
	}
	return triggerRow{
		SchedName:     d.schedName,
		TriggerName:   t.Key.Name,
		TriggerGroup:  t.Key.Group,
		JobName:       t.JobKey.Name,
		JobGroup:      t.JobKey.Group,
		Description:   nullString(t.Description),
		NextFireTime:  toMillisPtr(t.NextFireTime),
		PrevFireTime:  toMillisPtr(t.PreviousFireTime),
		Priority:      t.Priority,
		TriggerState:  string(state),
		TriggerType:   discriminator,
		StartTime:     toMillis(t.StartTime),
		EndTime:       toMillisPtr(t.EndTime),
		CalendarName:  nullString(t.CalendarName),
		MisfireInstr:  t.MisfireInstruction,
		JobData:       data,
		TimeZone:      nullString(triggerZoneName(t)),
		FireInstanceN: nullString(t.FireInstanceID),
	}, nil
}

// triggerZoneName extracts the evaluation zone of zone-aware variants.
func triggerZoneName(t *domain.Trigger) string {
	switch {
	case t.Cron != nil:
		return zoneName(t.Cron.Location)
	case t.CalendarInterval != nil:
		return zoneName(t.CalendarInterval.Location)
	case t.DailyTimeInterval != nil:
		return zoneName(t.DailyTimeInterval.Location)
	}
	return ""
}

// rowToTriggerShell maps the common columns; the schedule variant is
// filled afterwards by the owning delegate.
func (d *dao) rowToTriggerShell(row triggerRow) (*domain.Trigger, error) {
	data, err := d.serializer.Decode(row.JobData)
	if err != nil {
		return nil, fmt.Errorf("trigger %s.%s: %w", row.TriggerGroup, row.TriggerName, err)
	}
	loc, err := loadZone(row.TimeZone.String)
	if err != nil {
		return nil, err
	}
	t := &domain.Trigger{
		Key:                domain.TriggerKey{Name: row.TriggerName, Group: row.TriggerGroup},
		JobKey:             domain.JobKey{Name: row.JobName, Group: row.JobGroup},
		Description:        row.Description.String,
		CalendarName:       row.CalendarName.String,
		Priority:           row.Priority,
		MisfireInstruction: row.MisfireInstr,
		JobData:            data,
		StartTime:          fromMillis(row.StartTime),
		EndTime:            fromMillisPtr(row.EndTime),
		NextFireTime:       fromMillisPtr(row.NextFireTime),
		PreviousFireTime:   fromMillisPtr(row.PrevFireTime),
		FireInstanceID:     row.FireInstanceN.String,
	}
	// Seed the variant with its zone so the delegate load keeps it.
	switch row.TriggerType {
	case string(domain.TriggerTypeCron):
		t.Cron = &domain.CronSchedule{Location: loc}
	case string(domain.TriggerTypeCalendarInterval):
		t.CalendarInterval = &domain.CalendarIntervalSchedule{Location: loc}
	case string(domain.TriggerTypeDailyTimeInterval):
		t.DailyTimeInterval = &domain.DailyTimeIntervalSchedule{Location: loc}
	}
	return t, nil
}

func (d *dao) insertTrigger(ctx context.Context, sess *session, t *domain.Trigger, state domain.TriggerState) error {
	del, err := delegateFor(d.delegates, t)
	if err != nil {
		return err
	}
	row, err := d.triggerToRow(t, state, del.Discriminator())
	if err != nil {
		return err
	}
	_, err = sess.tx.ExecContext(ctx, sess.tx.Rebind(d.q(qInsertTrigger)),
		row.SchedName, row.TriggerName, row.TriggerGroup, row.JobName,
		row.JobGroup, row.Description, row.NextFireTime, row.PrevFireTime,
		row.Priority, row.TriggerState, row.TriggerType, row.StartTime,
		row.EndTime, row.CalendarName, row.MisfireInstr, row.JobData,
		row.TimeZone, row.FireInstanceN)
	if err != nil {
		return fmt.Errorf("insert trigger %s: %w", t.Key, err)
	}
	return del.Insert(ctx, sess, t)
}

func (d *dao) updateTrigger(ctx context.Context, sess *session, t *domain.Trigger, state domain.TriggerState) error {
	del, err := delegateFor(d.delegates, t)
	if err != nil {
		return err
	}
	row, err := d.triggerToRow(t, state, del.Discriminator())
	if err != nil {
		return err
	}
	_, err = sess.tx.ExecContext(ctx, sess.tx.Rebind(d.q(qUpdateTrigger)),
		row.JobName, row.JobGroup, row.Description, row.NextFireTime,
		row.PrevFireTime, row.Priority, row.TriggerState, row.TriggerType,
		row.StartTime, row.EndTime, row.CalendarName, row.MisfireInstr,
		row.JobData, row.TimeZone, row.FireInstanceN,
		row.SchedName, row.TriggerName, row.TriggerGroup)
	if err != nil {
		return fmt.Errorf("update trigger %s: %w", t.Key, err)
	}
	return del.Update(ctx, sess, t)
}

func (d *dao) selectTrigger(ctx context.Context, sess *session, key domain.TriggerKey) (*domain.Trigger, error) {
	var row triggerRow
	err := sess.tx.GetContext(ctx, &row, sess.tx.Rebind(d.q(qSelectTrigger)),
		d.schedName, key.Name, key.Group)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select trigger %s: %w", key, err)
	}
	t, err := d.rowToTriggerShell(row)
	if err != nil {
		return nil, err
	}
	del, err := delegateForType(d.delegates, row.TriggerType)
	if err != nil {
		return nil, err
	}
	if err := del.Load(ctx, sess, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (d *dao) deleteTrigger(ctx context.Context, sess *session, key domain.TriggerKey) (bool, error) {
	var triggerType string
	err := sess.tx.GetContext(ctx, &triggerType,
		sess.tx.Rebind(d.q(`SELECT trigger_type FROM {p}triggers
			WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`)),
		d.schedName, key.Name, key.Group)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete trigger %s: %w", key, err)
	}
	del, err := delegateForType(d.delegates, triggerType)
	if err != nil {
		return false, err
	}
	if err := del.Delete(ctx, sess, key); err != nil {
		return false, err
	}
	if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(d.q(qDeleteTrigger)),
		d.schedName, key.Name, key.Group); err != nil {
		return false, fmt.Errorf("delete trigger %s: %w", key, err)
	}
	return true, nil
}

func (d *dao) triggerExists(ctx context.Context, sess *session, key domain.TriggerKey) (bool, error) {
	var n int
	err := sess.tx.GetContext(ctx, &n, sess.tx.Rebind(d.q(qSelectTriggerExists)),
		d.schedName, key.Name, key.Group)
	if err != nil {
		return false, fmt.Errorf("trigger exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (d *dao) selectTriggerState(ctx context.Context, sess *session, key domain.TriggerKey) (domain.TriggerState, error) {
	var state string
	err := sess.tx.GetContext(ctx, &state, sess.tx.Rebind(d.q(qSelectTriggerState)),
		d.schedName, key.Name, key.Group)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select trigger state %s: %w", key, err)
	}
	return domain.TriggerState(state), nil
}

func (d *dao) updateTriggerState(ctx context.Context, sess *session, key domain.TriggerKey, state domain.TriggerState) error {
	if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(d.q(qUpdateTriggerState)),
		string(state), d.schedName, key.Name, key.Group); err != nil {
		return fmt.Errorf("update trigger state %s: %w", key, err)
	}
	return nil
}

// updateTriggerStateFromStates transitions only when the current state is
// one of the three given, reporting whether a row changed. This is the
// compare-and-swap backing acquire.
func (d *dao) updateTriggerStateFromStates(ctx context.Context, sess *session, key domain.TriggerKey, to domain.TriggerState, from1, from2, from3 domain.TriggerState) (bool, error) {
	res, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(d.q(qUpdateTriggerStateFromStates)),
		string(to), d.schedName, key.Name, key.Group,
		string(from1), string(from2), string(from3))
	if err != nil {
		return false, fmt.Errorf("cas trigger state %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *dao) updateJobTriggerStatesFromState(ctx context.Context, sess *session, key domain.JobKey, to, from domain.TriggerState) error {
	if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(d.q(qUpdateJobTriggerStatesFromState)),
		string(to), d.schedName, key.Name, key.Group, string(from)); err != nil {
		return fmt.Errorf("update job trigger states %s: %w", key, err)
	}
	return nil
}

func (d *dao) updateJobTriggerStates(ctx context.Context, sess *session, key domain.JobKey, to domain.TriggerState) error {
	if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(d.q(qUpdateJobTriggerStates)),
		string(to), d.schedName, key.Name, key.Group); err != nil {
		return fmt.Errorf("update job trigger states %s: %w", key, err)
	}
	return nil
}

type keyRow struct {
	Name  string `db:"trigger_name"`
	Group string `db:"trigger_group"`
}

type jobKeyRow struct {
	Name  string `db:"job_name"`
	Group string `db:"job_group"`
}

func (d *dao) selectTriggerKeys(ctx context.Context, sess *session, query string, args ...any) ([]domain.TriggerKey, error) {
	var rows []keyRow
	if err := sess.tx.SelectContext(ctx, &rows, sess.tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select trigger keys: %w", err)
	}
	keys := make([]domain.TriggerKey, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, domain.TriggerKey{Name: r.Name, Group: r.Group})
	}
	return keys, nil
}

func (d *dao) selectJobKeys(ctx context.Context, sess *session, query string, args ...any) ([]domain.JobKey, error) {
	var rows []jobKeyRow
	if err := sess.tx.SelectContext(ctx, &rows, sess.tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select job keys: %w", err)
	}
	keys := make([]domain.JobKey, 0, len(rows))
	for _, r := range rows {
		keys = append(keys, domain.JobKey{Name: r.Name, Group: r.Group})
	}
	return keys, nil
}

// groupSQLPattern converts a group matcher to a LIKE pattern, or reports
// that rows must be filtered in code.
func groupSQLPattern(m matcher.GroupMatcher) (string, bool) {
	switch m.Op {
	case matcher.OpEquals:
		return m.Value, true
	case matcher.OpStartsWith:
		return m.Value + "%", true
	case matcher.OpEndsWith:
		return "%" + m.Value, true
	case matcher.OpContains:
		return "%" + m.Value + "%", true
	case matcher.OpAnything:
		return "%", true
	}
	return "", false
}

// --- simple properties ---

func (d *dao) insertSimpleProps(ctx context.Context, sess *session, row simplePropsRow) error {
	query := d.q(`INSERT INTO {p}simprop_triggers
		(sched_name, trigger_name, trigger_group, str_prop_1, str_prop_2,
		 str_prop_3, int_prop_1, int_prop_2, long_prop_1, long_prop_2,
		 dec_prop_1, dec_prop_2, bool_prop_1, bool_prop_2)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(query),
		row.SchedName, row.TriggerName, row.TriggerGroup,
		row.Str1, row.Str2, row.Str3, row.Int1, row.Int2,
		row.Long1, row.Long2, row.Dec1, row.Dec2, row.Bool1, row.Bool2)
	if err != nil {
		return fmt.Errorf("insert simprop trigger %s.%s: %w", row.TriggerGroup, row.TriggerName, err)
	}
	return nil
}

func (d *dao) updateSimpleProps(ctx context.Context, sess *session, row simplePropsRow) error {
	query := d.q(`UPDATE {p}simprop_triggers SET str_prop_1 = ?, str_prop_2 = ?,
		str_prop_3 = ?, int_prop_1 = ?, int_prop_2 = ?, long_prop_1 = ?,
		long_prop_2 = ?, dec_prop_1 = ?, dec_prop_2 = ?, bool_prop_1 = ?,
		bool_prop_2 = ?
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`)
	_, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(query),
		row.Str1, row.Str2, row.Str3, row.Int1, row.Int2,
		row.Long1, row.Long2, row.Dec1, row.Dec2, row.Bool1, row.Bool2,
		row.SchedName, row.TriggerName, row.TriggerGroup)
	if err != nil {
		return fmt.Errorf("update simprop trigger %s.%s: %w", row.TriggerGroup, row.TriggerName, err)
	}
	return nil
}

func (d *dao) deleteSimpleProps(ctx context.Context, sess *session, key domain.TriggerKey) error {
	query := d.q(`DELETE FROM {p}simprop_triggers
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`)
	if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(query), d.schedName, key.Name, key.Group); err != nil {
		return fmt.Errorf("delete simprop trigger %s: %w", key, err)
	}
	return nil
}

func (d *dao) selectSimpleProps(ctx context.Context, sess *session, key domain.TriggerKey) (simplePropsRow, error) {
	var row simplePropsRow
	query := d.q(`SELECT * FROM {p}simprop_triggers
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`)
	err := sess.tx.GetContext(ctx, &row, sess.tx.Rebind(query), d.schedName, key.Name, key.Group)
	if err != nil {
		return row, fmt.Errorf("select simprop trigger %s: %w", key, err)
	}
	return row, nil
}

// --- fired triggers ---

func (d *dao) insertFiredTrigger(ctx context.Context, sess *session, rec *domain.FiredTriggerRecord) error {
	_, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(d.q(qInsertFiredTrigger)),
		d.schedName, rec.FireInstanceID, rec.TriggerKey.Name, rec.TriggerKey.Group,
		rec.InstanceID, toMillis(rec.FiredTime), toMillis(rec.ScheduledTime),
		rec.Priority, rec.State, rec.JobKey.Name, rec.JobKey.Group,
		rec.ConcurrentExecutionDisallowed, rec.RequestsRecovery)
	if err != nil {
		return fmt.Errorf("insert fired trigger %s: %w", rec.FireInstanceID, err)
	}
	return nil
}

func (d *dao) updateFiredTrigger(ctx context.Context, sess *session, rec *domain.FiredTriggerRecord) error {
	_, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(d.q(qUpdateFiredTrigger)),
		rec.InstanceID, toMillis(rec.FiredTime), toMillis(rec.ScheduledTime),
		rec.State, rec.JobKey.Name, rec.JobKey.Group,
		rec.ConcurrentExecutionDisallowed, rec.RequestsRecovery,
		d.schedName, rec.FireInstanceID)
	if err != nil {
		return fmt.Errorf("update fired trigger %s: %w", rec.FireInstanceID, err)
	}
	return nil
}

func (d *dao) deleteFiredTrigger(ctx context.Context, sess *session, fireInstanceID string) error {
	if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(d.q(qDeleteFiredTrigger)),
		d.schedName, fireInstanceID); err != nil {
		return fmt.Errorf("delete fired trigger %s: %w", fireInstanceID, err)
	}
	return nil
}

func rowToFired(row firedTriggerRow) *domain.FiredTriggerRecord {
	return &domain.FiredTriggerRecord{
		FireInstanceID:                row.EntryID,
		TriggerKey:                    domain.TriggerKey{Name: row.TriggerName, Group: row.TriggerGroup},
		JobKey:                        domain.JobKey{Name: row.JobName, Group: row.JobGroup},
		InstanceID:                    row.InstanceName,
		FiredTime:                     fromMillis(row.FiredTime),
		ScheduledTime:                 fromMillis(row.SchedTime),
		Priority:                      row.Priority,
		State:                         row.State,
		ConcurrentExecutionDisallowed: row.IsNonconcurrent,
		RequestsRecovery:              row.RequestsRecovery,
	}
}

func (d *dao) selectFiredTriggersOfInstance(ctx context.Context, sess *session, instanceID string) ([]*domain.FiredTriggerRecord, error) {
	var rows []firedTriggerRow
	err := sess.tx.SelectContext(ctx, &rows, sess.tx.Rebind(d.q(qSelectFiredTriggersOfInstance)),
		d.schedName, instanceID)
	if err != nil {
		return nil, fmt.Errorf("select fired triggers of %s: %w", instanceID, err)
	}
	out := make([]*domain.FiredTriggerRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToFired(r))
	}
	return out, nil
}

func (d *dao) selectFiredTriggersOfJob(ctx context.Context, sess *session, key domain.JobKey) ([]*domain.FiredTriggerRecord, error) {
	var rows []firedTriggerRow
	err := sess.tx.SelectContext(ctx, &rows, sess.tx.Rebind(d.q(qSelectFiredTriggersOfJob)),
		d.schedName, key.Name, key.Group)
	if err != nil {
		return nil, fmt.Errorf("select fired triggers of job %s: %w", key, err)
	}
	out := make([]*domain.FiredTriggerRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToFired(r))
	}
	return out, nil
}

// --- paused groups ---

func (d *dao) isGroupPaused(ctx context.Context, sess *session, group string) (bool, error) {
	var n int
	err := sess.tx.GetContext(ctx, &n, sess.tx.Rebind(d.q(qSelectPausedGroupExists)),
		d.schedName, group)
	if err != nil {
		return false, fmt.Errorf("paused group %q: %w", group, err)
	}
	return n > 0, nil
}

func (d *dao) insertPausedGroup(ctx context.Context, sess *session, group string) error {
	if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(d.q(qInsertPausedGroup)),
		d.schedName, group); err != nil {
		return fmt.Errorf("insert paused group %q: %w", group, err)
	}
	return nil
}

// --- scheduler state ---

// selectNow reads the database clock inside the current transaction.
func (d *dao) selectNow(ctx context.Context, sess *session) (time.Time, error) {
	var now time.Time
	if err := sess.tx.GetContext(ctx, &now, qSelectCurrentTimestamp); err != nil {
		return time.Time{}, fmt.Errorf("select database time: %w", err)
	}
	return now, nil
}

func (d *dao) selectSchedulerStates(ctx context.Context, sess *session) ([]*domain.SchedulerInstance, error) {
	var rows []schedulerStateRow
	if err := sess.tx.SelectContext(ctx, &rows, sess.tx.Rebind(d.q(qSelectSchedulerStates)), d.schedName); err != nil {
		return nil, fmt.Errorf("select scheduler states: %w", err)
	}
	out := make([]*domain.SchedulerInstance, 0, len(rows))
	for _, r := range rows {
		out = append(out, &domain.SchedulerInstance{
			InstanceID:      r.InstanceName,
			LastCheckin:     fromMillis(r.LastCheckinTime),
			CheckinInterval: time.Duration(r.CheckinInterval) * time.Millisecond,
		})
	}
	return out, nil
}
