package scheduler

import (
	"errors"
	"time"
)

const (
	// DefaultIdleWaitTime is how far ahead the loop looks for due triggers
	// when it has nothing claimed.
	DefaultIdleWaitTime = 30 * time.Second

	// DefaultBatchTimeWindow widens one acquire batch past its first fire
	// time; zero keeps batches tight.
	DefaultBatchTimeWindow = 0 * time.Millisecond

	// DefaultMaxBatchSize caps triggers claimed per acquire pass.
	DefaultMaxBatchSize = 1

	// DefaultDBRetryInterval is the backoff after a store failure in the
	// scheduling loop.
	DefaultDBRetryInterval = 15 * time.Second

	// DefaultMisfireThreshold mirrors the store's misfire threshold. The
	// loop releases waiting triggers misfireThreshold/2 early so they fire
	// on time rather than land in the misfire sweep.
	DefaultMisfireThreshold = time.Minute
)

// Config holds the scheduler facade's tunables. Name and InstanceID
// identify this scheduler; clustered peers share Name and differ in
// InstanceID.
type Config struct {
	Name       string
	InstanceID string

	IdleWaitTime     time.Duration
	BatchTimeWindow  time.Duration
	MaxBatchSize     int
	DBRetryInterval  time.Duration
	MisfireThreshold time.Duration
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Name == "" {
		out.Name = "QuartzScheduler"
	}
	if out.IdleWaitTime <= 0 {
		out.IdleWaitTime = DefaultIdleWaitTime
	}
	if out.BatchTimeWindow < 0 {
		out.BatchTimeWindow = DefaultBatchTimeWindow
	}
	if out.MaxBatchSize <= 0 {
		out.MaxBatchSize = DefaultMaxBatchSize
	}
	if out.DBRetryInterval <= 0 {
		out.DBRetryInterval = DefaultDBRetryInterval
	}
	if out.MisfireThreshold <= 0 {
		out.MisfireThreshold = DefaultMisfireThreshold
	}
	return out
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.InstanceID == "" {
		return errors.New("instance id is required")
	}
	return nil
}
