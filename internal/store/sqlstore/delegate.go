package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/quartz/internal/domain"
)

// TriggerTypeBlob marks triggers persisted by the fallback blob delegate.
const TriggerTypeBlob = "BLOB"

// triggerPersistenceDelegate stores one trigger type's schedule properties
// in its auxiliary table. The discriminator is written to
// TRIGGERS.trigger_type and routes loads back to the right delegate.
type triggerPersistenceDelegate interface {
	// CanHandle reports whether the delegate persists this trigger.
	CanHandle(t *domain.Trigger) bool

	// Discriminator is the trigger_type value the delegate owns.
	Discriminator() string

	Insert(ctx context.Context, sess *session, t *domain.Trigger) error
	Update(ctx context.Context, sess *session, t *domain.Trigger) error
	Delete(ctx context.Context, sess *session, key domain.TriggerKey) error

	// Load fills the schedule variant of a trigger whose common columns
	// are already populated.
	Load(ctx context.Context, sess *session, t *domain.Trigger) error
}

// simpleDelegate persists SIMPLE triggers in the SIMPLE_TRIGGERS table.
type simpleDelegate struct{ d *dao }

func (sd *simpleDelegate) CanHandle(t *domain.Trigger) bool {
	return t.Type() == domain.TriggerTypeSimple
}

func (sd *simpleDelegate) Discriminator() string {
	return string(domain.TriggerTypeSimple)
}

func (sd *simpleDelegate) Insert(ctx context.Context, sess *session, t *domain.Trigger) error {
	query := sd.d.q(`INSERT INTO {p}simple_triggers
		(sched_name, trigger_name, trigger_group, repeat_count, repeat_interval, times_triggered)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(query),
		sd.d.schedName, t.Key.Name, t.Key.Group,
		int64(t.Simple.RepeatCount), t.Simple.RepeatInterval.Milliseconds(),
		int64(t.Simple.TimesTriggered))
	if err != nil {
		return fmt.Errorf("insert simple trigger %s: %w", t.Key, err)
	}
	return nil
}

func (sd *simpleDelegate) Update(ctx context.Context, sess *session, t *domain.Trigger) error {
	query := sd.d.q(`UPDATE {p}simple_triggers SET repeat_count = ?,
		repeat_interval = ?, times_triggered = ?
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`)
	_, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(query),
		int64(t.Simple.RepeatCount), t.Simple.RepeatInterval.Milliseconds(),
		int64(t.Simple.TimesTriggered),
		sd.d.schedName, t.Key.Name, t.Key.Group)
	if err != nil {
		return fmt.Errorf("update simple trigger %s: %w", t.Key, err)
	}
	return nil
}

func (sd *simpleDelegate) Delete(ctx context.Context, sess *session, key domain.TriggerKey) error {
	query := sd.d.q(`DELETE FROM {p}simple_triggers
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`)
	if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(query), sd.d.schedName, key.Name, key.Group); err != nil {
		return fmt.Errorf("delete simple trigger %s: %w", key, err)
	}
	return nil
}

func (sd *simpleDelegate) Load(ctx context.Context, sess *session, t *domain.Trigger) error {
	var row struct {
		RepeatCount    int64 `db:"repeat_count"`
		RepeatInterval int64 `db:"repeat_interval"`
		TimesTriggered int64 `db:"times_triggered"`
	}
	query := sd.d.q(`SELECT repeat_count, repeat_interval, times_triggered
		FROM {p}simple_triggers
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`)
	err := sess.tx.GetContext(ctx, &row, sess.tx.Rebind(query), sd.d.schedName, t.Key.Name, t.Key.Group)
	if err != nil {
		return fmt.Errorf("load simple trigger %s: %w", t.Key, err)
	}
	t.Simple = &domain.SimpleSchedule{
		RepeatCount:    int(row.RepeatCount),
		RepeatInterval: time.Duration(row.RepeatInterval) * time.Millisecond,
		TimesTriggered: int(row.TimesTriggered),
	}
	return nil
}

// cronDelegate persists CRON triggers in the CRON_TRIGGERS table. The
// evaluation zone rides in TRIGGERS.time_zone_id.
type cronDelegate struct{ d *dao }

func (cd *cronDelegate) CanHandle(t *domain.Trigger) bool {
	return t.Type() == domain.TriggerTypeCron
}

func (cd *cronDelegate) Discriminator() string {
	return string(domain.TriggerTypeCron)
}

func (cd *cronDelegate) Insert(ctx context.Context, sess *session, t *domain.Trigger) error {
	query := cd.d.q(`INSERT INTO {p}cron_triggers
		(sched_name, trigger_name, trigger_group, cron_expression)
		VALUES (?, ?, ?, ?)`)
	_, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(query),
		cd.d.schedName, t.Key.Name, t.Key.Group, t.Cron.Expression)
	if err != nil {
		return fmt.Errorf("insert cron trigger %s: %w", t.Key, err)
	}
	return nil
}

func (cd *cronDelegate) Update(ctx context.Context, sess *session, t *domain.Trigger) error {
	query := cd.d.q(`UPDATE {p}cron_triggers SET cron_expression = ?
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`)
	_, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(query),
		t.Cron.Expression, cd.d.schedName, t.Key.Name, t.Key.Group)
	if err != nil {
		return fmt.Errorf("update cron trigger %s: %w", t.Key, err)
	}
	return nil
}

func (cd *cronDelegate) Delete(ctx context.Context, sess *session, key domain.TriggerKey) error {
	query := cd.d.q(`DELETE FROM {p}cron_triggers
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`)
	if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(query), cd.d.schedName, key.Name, key.Group); err != nil {
		return fmt.Errorf("delete cron trigger %s: %w", key, err)
	}
	return nil
}

func (cd *cronDelegate) Load(ctx context.Context, sess *session, t *domain.Trigger) error {
	var expr string
	query := cd.d.q(`SELECT cron_expression FROM {p}cron_triggers
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`)
	err := sess.tx.GetContext(ctx, &expr, sess.tx.Rebind(query), cd.d.schedName, t.Key.Name, t.Key.Group)
	if err != nil {
		return fmt.Errorf("load cron trigger %s: %w", t.Key, err)
	}
	t.Cron = &domain.CronSchedule{Expression: expr, Location: t.Cron.Loc()}
	return nil
}

// Simple-properties slots used by the calendar-interval and
// daily-time-interval delegates, mirroring the generic SIMPROP layout.
//
// CAL_INT:  str1=unit, int1=interval, int2=timesTriggered
// DAILY_I:  str1=unit, str2=daysOfWeek (csv), str3=start,end "HH:MM:SS,HH:MM:SS"
//           int1=interval, int2=timesTriggered, long1=repeatCount

// calendarIntervalDelegate persists CAL_INT triggers using the generic
// simple-properties table.
type calendarIntervalDelegate struct{ d *dao }

func (cd *calendarIntervalDelegate) CanHandle(t *domain.Trigger) bool {
	return t.Type() == domain.TriggerTypeCalendarInterval
}

func (cd *calendarIntervalDelegate) Discriminator() string {
	return string(domain.TriggerTypeCalendarInterval)
}

func (cd *calendarIntervalDelegate) props(t *domain.Trigger) simplePropsRow {
	s := t.CalendarInterval
	return simplePropsRow{
		SchedName:    cd.d.schedName,
		TriggerName:  t.Key.Name,
		TriggerGroup: t.Key.Group,
		Str1:         nullString(string(s.Unit)),
		Int1:         sql.NullInt64{Int64: int64(s.Interval), Valid: true},
		Int2:         sql.NullInt64{Int64: int64(s.TimesTriggered), Valid: true},
	}
}

func (cd *calendarIntervalDelegate) Insert(ctx context.Context, sess *session, t *domain.Trigger) error {
	return cd.d.insertSimpleProps(ctx, sess, cd.props(t))
}

func (cd *calendarIntervalDelegate) Update(ctx context.Context, sess *session, t *domain.Trigger) error {
	return cd.d.updateSimpleProps(ctx, sess, cd.props(t))
}

func (cd *calendarIntervalDelegate) Delete(ctx context.Context, sess *session, key domain.TriggerKey) error {
	return cd.d.deleteSimpleProps(ctx, sess, key)
}

func (cd *calendarIntervalDelegate) Load(ctx context.Context, sess *session, t *domain.Trigger) error {
	row, err := cd.d.selectSimpleProps(ctx, sess, t.Key)
	if err != nil {
		return fmt.Errorf("load calendar-interval trigger %s: %w", t.Key, err)
	}
	loc := time.Local
	if t.CalendarInterval != nil {
		loc = t.CalendarInterval.Loc()
	}
	t.CalendarInterval = &domain.CalendarIntervalSchedule{
		Unit:           domain.IntervalUnit(row.Str1.String),
		Interval:       int(row.Int1.Int64),
		TimesTriggered: int(row.Int2.Int64),
		Location:       loc,
	}
	return nil
}

// dailyTimeIntervalDelegate persists DAILY_I triggers using the generic
// simple-properties table.
type dailyTimeIntervalDelegate struct{ d *dao }

func (dd *dailyTimeIntervalDelegate) CanHandle(t *domain.Trigger) bool {
	return t.Type() == domain.TriggerTypeDailyTimeInterval
}

func (dd *dailyTimeIntervalDelegate) Discriminator() string {
	return string(domain.TriggerTypeDailyTimeInterval)
}

func (dd *dailyTimeIntervalDelegate) props(t *domain.Trigger) simplePropsRow {
	s := t.DailyTimeInterval
	return simplePropsRow{
		SchedName:    dd.d.schedName,
		TriggerName:  t.Key.Name,
		TriggerGroup: t.Key.Group,
		Str1:         nullString(string(s.Unit)),
		Str2:         nullString(encodeWeekdays(s.DaysOfWeek)),
		Str3:         nullString(encodeTimeOfDay(s.StartTimeOfDay) + "," + encodeTimeOfDay(s.EndTimeOfDay)),
		Int1:         sql.NullInt64{Int64: int64(s.Interval), Valid: true},
		Int2:         sql.NullInt64{Int64: int64(s.TimesTriggered), Valid: true},
		Long1:        sql.NullInt64{Int64: int64(s.RepeatCount), Valid: true},
	}
}

func (dd *dailyTimeIntervalDelegate) Insert(ctx context.Context, sess *session, t *domain.Trigger) error {
	return dd.d.insertSimpleProps(ctx, sess, dd.props(t))
}

func (dd *dailyTimeIntervalDelegate) Update(ctx context.Context, sess *session, t *domain.Trigger) error {
	return dd.d.updateSimpleProps(ctx, sess, dd.props(t))
}

func (dd *dailyTimeIntervalDelegate) Delete(ctx context.Context, sess *session, key domain.TriggerKey) error {
	return dd.d.deleteSimpleProps(ctx, sess, key)
}

func (dd *dailyTimeIntervalDelegate) Load(ctx context.Context, sess *session, t *domain.Trigger) error {
	row, err := dd.d.selectSimpleProps(ctx, sess, t.Key)
	if err != nil {
		return fmt.Errorf("load daily-time-interval trigger %s: %w", t.Key, err)
	}
	start, end, err := decodeTimeOfDayPair(row.Str3.String)
	if err != nil {
		return fmt.Errorf("load daily-time-interval trigger %s: %w", t.Key, err)
	}
	loc := time.Local
	if t.DailyTimeInterval != nil {
		loc = t.DailyTimeInterval.Loc()
	}
	t.DailyTimeInterval = &domain.DailyTimeIntervalSchedule{
		Unit:           domain.IntervalUnit(row.Str1.String),
		DaysOfWeek:     decodeWeekdays(row.Str2.String),
		StartTimeOfDay: start,
		EndTimeOfDay:   end,
		Interval:       int(row.Int1.Int64),
		TimesTriggered: int(row.Int2.Int64),
		RepeatCount:    int(row.Long1.Int64),
		Location:       loc,
	}
	return nil
}

// blobDelegate is the fallback: the whole trigger is gob-encoded into the
// BLOB_TRIGGERS table. It handles any trigger no other delegate claims.
type blobDelegate struct{ d *dao }

func (bd *blobDelegate) CanHandle(*domain.Trigger) bool { return true }

func (bd *blobDelegate) Discriminator() string { return TriggerTypeBlob }

func (bd *blobDelegate) Insert(ctx context.Context, sess *session, t *domain.Trigger) error {
	blob, err := encodeTriggerBlob(t)
	if err != nil {
		return err
	}
	query := bd.d.q(`INSERT INTO {p}blob_triggers
		(sched_name, trigger_name, trigger_group, blob_data)
		VALUES (?, ?, ?, ?)`)
	if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(query), bd.d.schedName, t.Key.Name, t.Key.Group, blob); err != nil {
		return fmt.Errorf("insert blob trigger %s: %w", t.Key, err)
	}
	return nil
}

func (bd *blobDelegate) Update(ctx context.Context, sess *session, t *domain.Trigger) error {
	blob, err := encodeTriggerBlob(t)
	if err != nil {
		return err
	}
	query := bd.d.q(`UPDATE {p}blob_triggers SET blob_data = ?
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`)
	if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(query), blob, bd.d.schedName, t.Key.Name, t.Key.Group); err != nil {
		return fmt.Errorf("update blob trigger %s: %w", t.Key, err)
	}
	return nil
}

func (bd *blobDelegate) Delete(ctx context.Context, sess *session, key domain.TriggerKey) error {
	query := bd.d.q(`DELETE FROM {p}blob_triggers
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`)
	if _, err := sess.tx.ExecContext(ctx, sess.tx.Rebind(query), bd.d.schedName, key.Name, key.Group); err != nil {
		return fmt.Errorf("delete blob trigger %s: %w", key, err)
	}
	return nil
}

func (bd *blobDelegate) Load(ctx context.Context, sess *session, t *domain.Trigger) error {
	var blob []byte
	query := bd.d.q(`SELECT blob_data FROM {p}blob_triggers
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`)
	err := sess.tx.GetContext(ctx, &blob, sess.tx.Rebind(query), bd.d.schedName, t.Key.Name, t.Key.Group)
	if err != nil {
		return fmt.Errorf("load blob trigger %s: %w", t.Key, err)
	}
	decoded, err := decodeTriggerBlob(blob)
	if err != nil {
		return err
	}
	t.Simple = decoded.Simple
	t.Cron = decoded.Cron
	t.CalendarInterval = decoded.CalendarInterval
	t.DailyTimeInterval = decoded.DailyTimeInterval
	return nil
}

var errNoDelegate = errors.New("no persistence delegate for trigger type")

// delegateFor routes a trigger to the delegate that persists it. The blob
// delegate is last and claims anything left over.
func delegateFor(delegates []triggerPersistenceDelegate, t *domain.Trigger) (triggerPersistenceDelegate, error) {
	for _, d := range delegates {
		if d.CanHandle(t) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("trigger %s: %w", t.Key, errNoDelegate)
}

// delegateForType routes a persisted discriminator back to its delegate.
func delegateForType(delegates []triggerPersistenceDelegate, triggerType string) (triggerPersistenceDelegate, error) {
	for _, d := range delegates {
		if d.Discriminator() == triggerType {
			return d, nil
		}
	}
	return nil, fmt.Errorf("trigger type %q: %w", triggerType, errNoDelegate)
}
