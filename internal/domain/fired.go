package domain

import "time"

// Fired-trigger states: a record is ACQUIRED between acquire and fire, and
// EXECUTING between fire and completion.
const (
	FiredStateAcquired  = "ACQUIRED"
	FiredStateExecuting = "EXECUTING"
)

// FiredTriggerRecord is the persisted evidence that a scheduler instance has
// claimed a fire. It exists only between acquire and completion and is the
// basis for crash recovery.
type FiredTriggerRecord struct {
	FireInstanceID string
	TriggerKey     TriggerKey
	JobKey         JobKey
	InstanceID     string
	FiredTime      time.Time
	ScheduledTime  time.Time
	Priority       int
	State          string

	ConcurrentExecutionDisallowed bool
	RequestsRecovery              bool
}

// SchedulerInstance is one row of cluster membership state: the heartbeat a
// peer writes at every checkin.
type SchedulerInstance struct {
	InstanceID      string
	LastCheckin     time.Time
	CheckinInterval time.Duration
}
