package sqlstore

import "strings"

// Query templates use {p} for the configured table prefix; the schedule
// name is always the first bind argument. Templates are written with ?
// placeholders and rebound per driver.

const (
	qInsertJobDetail = `INSERT INTO {p}job_details
		(sched_name, job_name, job_group, description, job_class_name,
		 is_durable, is_nonconcurrent, is_update_data, requests_recovery, job_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	qUpdateJobDetail = `UPDATE {p}job_details SET description = ?,
		job_class_name = ?, is_durable = ?, is_nonconcurrent = ?,
		is_update_data = ?, requests_recovery = ?, job_data = ?
		WHERE sched_name = ? AND job_name = ? AND job_group = ?`

	qSelectJobDetail = `SELECT * FROM {p}job_details
		WHERE sched_name = ? AND job_name = ? AND job_group = ?`

	qDeleteJobDetail = `DELETE FROM {p}job_details
		WHERE sched_name = ? AND job_name = ? AND job_group = ?`

	qUpdateJobData = `UPDATE {p}job_details SET job_data = ?
		WHERE sched_name = ? AND job_name = ? AND job_group = ?`

	qSelectJobExists = `SELECT COUNT(*) FROM {p}job_details
		WHERE sched_name = ? AND job_name = ? AND job_group = ?`

	qSelectJobGroups = `SELECT DISTINCT job_group FROM {p}job_details
		WHERE sched_name = ? ORDER BY job_group`

	qSelectJobKeysLike = `SELECT job_name, job_group FROM {p}job_details
		WHERE sched_name = ? AND job_group LIKE ? ORDER BY job_group, job_name`

	qSelectAllJobKeys = `SELECT job_name, job_group FROM {p}job_details
		WHERE sched_name = ? ORDER BY job_group, job_name`

	qInsertTrigger = `INSERT INTO {p}triggers
		(sched_name, trigger_name, trigger_group, job_name, job_group,
		 description, next_fire_time, prev_fire_time, priority, trigger_state,
		 trigger_type, start_time, end_time, calendar_name, misfire_instr,
		 job_data, time_zone_id, fire_instance_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	qUpdateTrigger = `UPDATE {p}triggers SET job_name = ?, job_group = ?,
		description = ?, next_fire_time = ?, prev_fire_time = ?, priority = ?,
		trigger_state = ?, trigger_type = ?, start_time = ?, end_time = ?,
		calendar_name = ?, misfire_instr = ?, job_data = ?, time_zone_id = ?,
		fire_instance_id = ?
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`

	qSelectTrigger = `SELECT * FROM {p}triggers
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`

	qDeleteTrigger = `DELETE FROM {p}triggers
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`

	qSelectTriggerState = `SELECT trigger_state FROM {p}triggers
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`

	qUpdateTriggerState = `UPDATE {p}triggers SET trigger_state = ?
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`

	qUpdateTriggerStateFromStates = `UPDATE {p}triggers SET trigger_state = ?
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?
		AND trigger_state IN (?, ?, ?)`

	qUpdateTriggerGroupStateFromStates = `UPDATE {p}triggers SET trigger_state = ?
		WHERE sched_name = ? AND trigger_group LIKE ?
		AND trigger_state IN (?, ?, ?)`

	qUpdateJobTriggerStates = `UPDATE {p}triggers SET trigger_state = ?
		WHERE sched_name = ? AND job_name = ? AND job_group = ?`

	qUpdateJobTriggerStatesFromState = `UPDATE {p}triggers SET trigger_state = ?
		WHERE sched_name = ? AND job_name = ? AND job_group = ?
		AND trigger_state = ?`

	qSelectTriggerExists = `SELECT COUNT(*) FROM {p}triggers
		WHERE sched_name = ? AND trigger_name = ? AND trigger_group = ?`

	qSelectTriggersForJob = `SELECT trigger_name, trigger_group FROM {p}triggers
		WHERE sched_name = ? AND job_name = ? AND job_group = ?
		ORDER BY trigger_group, trigger_name`

	qSelectNumTriggersForJob = `SELECT COUNT(*) FROM {p}triggers
		WHERE sched_name = ? AND job_name = ? AND job_group = ?`

	qSelectTriggersForCalendar = `SELECT trigger_name, trigger_group FROM {p}triggers
		WHERE sched_name = ? AND calendar_name = ?`

	qSelectTriggerGroups = `SELECT DISTINCT trigger_group FROM {p}triggers
		WHERE sched_name = ? ORDER BY trigger_group`

	qSelectTriggerKeysLike = `SELECT trigger_name, trigger_group FROM {p}triggers
		WHERE sched_name = ? AND trigger_group LIKE ?
		ORDER BY trigger_group, trigger_name`

	qSelectAllTriggerKeys = `SELECT trigger_name, trigger_group FROM {p}triggers
		WHERE sched_name = ? ORDER BY trigger_group, trigger_name`

	// Acquire ordering per the scheduling contract.
	qSelectNextTriggerToAcquire = `SELECT trigger_name, trigger_group
		FROM {p}triggers
		WHERE sched_name = ? AND trigger_state = ? AND next_fire_time <= ?
		AND (misfire_instr = -1 OR (misfire_instr <> -1 AND next_fire_time >= ?))
		ORDER BY next_fire_time ASC, priority DESC, trigger_group ASC, trigger_name ASC`

	qSelectMisfiredTriggersInState = `SELECT trigger_name, trigger_group
		FROM {p}triggers
		WHERE sched_name = ? AND misfire_instr <> -1
		AND next_fire_time < ? AND trigger_state = ?
		ORDER BY next_fire_time ASC, priority DESC`

	qInsertFiredTrigger = `INSERT INTO {p}fired_triggers
		(sched_name, entry_id, trigger_name, trigger_group, instance_name,
		 fired_time, sched_time, priority, state, job_name, job_group,
		 is_nonconcurrent, requests_recovery)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	qUpdateFiredTrigger = `UPDATE {p}fired_triggers SET instance_name = ?,
		fired_time = ?, sched_time = ?, state = ?, job_name = ?, job_group = ?,
		is_nonconcurrent = ?, requests_recovery = ?
		WHERE sched_name = ? AND entry_id = ?`

	qDeleteFiredTrigger = `DELETE FROM {p}fired_triggers
		WHERE sched_name = ? AND entry_id = ?`

	qSelectFiredTriggersOfJob = `SELECT * FROM {p}fired_triggers
		WHERE sched_name = ? AND job_name = ? AND job_group = ?`

	qSelectFiredTriggersOfInstance = `SELECT * FROM {p}fired_triggers
		WHERE sched_name = ? AND instance_name = ?`

	qDeleteFiredTriggersOfInstance = `DELETE FROM {p}fired_triggers
		WHERE sched_name = ? AND instance_name = ?`

	qSelectFiredTriggerInstanceNames = `SELECT DISTINCT instance_name
		FROM {p}fired_triggers WHERE sched_name = ?`

	qInsertCalendar = `INSERT INTO {p}calendars
		(sched_name, calendar_name, calendar) VALUES (?, ?, ?)`

	qUpdateCalendar = `UPDATE {p}calendars SET calendar = ?
		WHERE sched_name = ? AND calendar_name = ?`

	qSelectCalendar = `SELECT calendar FROM {p}calendars
		WHERE sched_name = ? AND calendar_name = ?`

	qDeleteCalendar = `DELETE FROM {p}calendars
		WHERE sched_name = ? AND calendar_name = ?`

	qSelectCalendarExists = `SELECT COUNT(*) FROM {p}calendars
		WHERE sched_name = ? AND calendar_name = ?`

	qSelectCalendarNames = `SELECT calendar_name FROM {p}calendars
		WHERE sched_name = ? ORDER BY calendar_name`

	qInsertPausedGroup = `INSERT INTO {p}paused_trigger_grps
		(sched_name, trigger_group) VALUES (?, ?)`

	qDeletePausedGroupsLike = `DELETE FROM {p}paused_trigger_grps
		WHERE sched_name = ? AND trigger_group LIKE ?`

	qDeleteAllPausedGroups = `DELETE FROM {p}paused_trigger_grps
		WHERE sched_name = ?`

	qSelectPausedGroups = `SELECT trigger_group FROM {p}paused_trigger_grps
		WHERE sched_name = ? ORDER BY trigger_group`

	qSelectPausedGroupExists = `SELECT COUNT(*) FROM {p}paused_trigger_grps
		WHERE sched_name = ? AND trigger_group = ?`

	qInsertSchedulerState = `INSERT INTO {p}scheduler_state
		(sched_name, instance_name, last_checkin_time, checkin_interval)
		VALUES (?, ?, ?, ?)`

	qUpdateSchedulerState = `UPDATE {p}scheduler_state SET last_checkin_time = ?
		WHERE sched_name = ? AND instance_name = ?`

	qDeleteSchedulerState = `DELETE FROM {p}scheduler_state
		WHERE sched_name = ? AND instance_name = ?`

	qSelectSchedulerStates = `SELECT * FROM {p}scheduler_state
		WHERE sched_name = ?`

	// Peers compare heartbeats against the database clock, never against
	// each other's wall clocks.
	qSelectCurrentTimestamp = `SELECT CURRENT_TIMESTAMP`

	qDeleteAll = `DELETE FROM {p}%s WHERE sched_name = ?`
)

// expandPrefix substitutes the configured table prefix into a template.
func expandPrefix(query, prefix string) string {
	return strings.ReplaceAll(query, "{p}", prefix)
}
