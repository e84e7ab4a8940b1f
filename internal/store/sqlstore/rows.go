package sqlstore

import (
	"database/sql"
	"time"

	"github.com/jonesrussell/quartz/internal/domain"
)

// Row structs mirror the persisted schema one to one; conversion to and
// from domain types happens in the DAO layer.

type jobDetailRow struct {
	SchedName        string         `db:"sched_name"`
	JobName          string         `db:"job_name"`
	JobGroup         string         `db:"job_group"`
	Description      sql.NullString `db:"description"`
	JobClassName     string         `db:"job_class_name"`
	IsDurable        bool           `db:"is_durable"`
	IsNonconcurrent  bool           `db:"is_nonconcurrent"`
	IsUpdateData     bool           `db:"is_update_data"`
	RequestsRecovery bool           `db:"requests_recovery"`
	JobData          []byte         `db:"job_data"`
}

type triggerRow struct {
	SchedName     string         `db:"sched_name"`
	TriggerName   string         `db:"trigger_name"`
	TriggerGroup  string         `db:"trigger_group"`
	JobName       string         `db:"job_name"`
	JobGroup      string         `db:"job_group"`
	Description   sql.NullString `db:"description"`
	NextFireTime  sql.NullInt64  `db:"next_fire_time"`
	PrevFireTime  sql.NullInt64  `db:"prev_fire_time"`
	Priority      int            `db:"priority"`
	TriggerState  string         `db:"trigger_state"`
	TriggerType   string         `db:"trigger_type"`
	StartTime     int64          `db:"start_time"`
	EndTime       sql.NullInt64  `db:"end_time"`
	CalendarName  sql.NullString `db:"calendar_name"`
	MisfireInstr  int            `db:"misfire_instr"`
	JobData       []byte         `db:"job_data"`
	TimeZone      sql.NullString `db:"time_zone_id"`
	FireInstanceN sql.NullString `db:"fire_instance_id"`
}

type firedTriggerRow struct {
	SchedName        string `db:"sched_name"`
	EntryID          string `db:"entry_id"`
	TriggerName      string `db:"trigger_name"`
	TriggerGroup     string `db:"trigger_group"`
	InstanceName     string `db:"instance_name"`
	FiredTime        int64  `db:"fired_time"`
	SchedTime        int64  `db:"sched_time"`
	Priority         int    `db:"priority"`
	State            string `db:"state"`
	JobName          string `db:"job_name"`
	JobGroup         string `db:"job_group"`
	IsNonconcurrent  bool   `db:"is_nonconcurrent"`
	RequestsRecovery bool   `db:"requests_recovery"`
}

type schedulerStateRow struct {
	SchedName       string `db:"sched_name"`
	InstanceName    string `db:"instance_name"`
	LastCheckinTime int64  `db:"last_checkin_time"`
	CheckinInterval int64  `db:"checkin_interval"`
}

type simplePropsRow struct {
	SchedName    string          `db:"sched_name"`
	TriggerName  string          `db:"trigger_name"`
	TriggerGroup string          `db:"trigger_group"`
	Str1         sql.NullString  `db:"str_prop_1"`
	Str2         sql.NullString  `db:"str_prop_2"`
	Str3         sql.NullString  `db:"str_prop_3"`
	Int1         sql.NullInt64   `db:"int_prop_1"`
	Int2         sql.NullInt64   `db:"int_prop_2"`
	Long1        sql.NullInt64   `db:"long_prop_1"`
	Long2        sql.NullInt64   `db:"long_prop_2"`
	Dec1         sql.NullFloat64 `db:"dec_prop_1"`
	Dec2         sql.NullFloat64 `db:"dec_prop_2"`
	Bool1        sql.NullBool    `db:"bool_prop_1"`
	Bool2        sql.NullBool    `db:"bool_prop_2"`
}

// Fire times persist as epoch milliseconds.

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func toMillisPtr(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func fromMillisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	return domain.TimePtr(time.UnixMilli(v.Int64))
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
