// Package config provides configuration management for the scheduler. It
// loads values from a YAML file, environment variables and an optional .env
// file, and applies scheduler defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonesrussell/quartz/internal/logger"
)

// AutoInstanceID asks the loader to derive a unique instance id from the
// hostname and a random suffix.
const AutoInstanceID = "AUTO"

// Job store types.
const (
	StoreTypeMemory = "memory"
	StoreTypeSQL    = "sql"
)

// Scheduler defaults
const (
	defaultInstanceName = "QuartzScheduler"
	defaultThreadCount  = 10
	defaultStoreType    = StoreTypeMemory
	defaultDriver       = "postgres"
)

// Config represents the full application configuration.
type Config struct {
	// Scheduler identifies the instance and tunes the scheduling loop.
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	// ThreadPool sizes the worker pool.
	ThreadPool ThreadPoolConfig `mapstructure:"threadPool"`
	// JobStore selects and configures trigger persistence.
	JobStore JobStoreConfig `mapstructure:"jobStore"`
	// DataSource configures the SQL connection for the sql store.
	DataSource DataSourceConfig `mapstructure:"dataSource"`
	// Logging configures the structured logger.
	Logging logger.Config `mapstructure:"logging"`
}

// SchedulerConfig identifies the scheduler and tunes its loop.
type SchedulerConfig struct {
	// InstanceName is shared by every node of one logical scheduler.
	InstanceName string `mapstructure:"instanceName"`
	// InstanceID must be unique per node; AUTO derives one.
	InstanceID string `mapstructure:"instanceId"`

	IdleWaitTime    time.Duration `mapstructure:"idleWaitTime"`
	BatchTimeWindow time.Duration `mapstructure:"batchTimeWindow"`
	MaxBatchSize    int           `mapstructure:"maxBatchSize"`
	DBRetryInterval time.Duration `mapstructure:"dbRetryInterval"`
}

// ThreadPoolConfig sizes the worker pool.
type ThreadPoolConfig struct {
	ThreadCount int `mapstructure:"threadCount"`
}

// JobStoreConfig selects the store implementation and its behavior.
type JobStoreConfig struct {
	// Type is "memory" or "sql".
	Type string `mapstructure:"type"`
	// Driver is the SQL dialect: "postgres" or "sqlserver".
	Driver string `mapstructure:"driver"`

	TablePrefix      string        `mapstructure:"tablePrefix"`
	UseProperties    bool          `mapstructure:"useProperties"`
	MisfireThreshold time.Duration `mapstructure:"misfireThreshold"`

	IsClustered            bool          `mapstructure:"isClustered"`
	ClusterCheckinInterval time.Duration `mapstructure:"clusterCheckinInterval"`

	LockMaxRetry    int           `mapstructure:"lockMaxRetry"`
	LockRetryPeriod time.Duration `mapstructure:"lockRetryPeriod"`

	// AutoMigrate creates the schema on startup when it is missing.
	AutoMigrate bool `mapstructure:"autoMigrate"`
}

// DataSourceConfig configures the SQL connection pool.
type DataSourceConfig struct {
	// DSN is the driver-specific connection string.
	DSN string `mapstructure:"dsn"`

	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

// Validate checks the configuration for a runnable scheduler.
func (c *Config) Validate() error {
	if c.Scheduler.InstanceName == "" {
		return fmt.Errorf("scheduler: instanceName is required")
	}
	if c.Scheduler.InstanceID == "" {
		return fmt.Errorf("scheduler: instanceId is required (use %q to derive one)", AutoInstanceID)
	}
	if c.ThreadPool.ThreadCount <= 0 {
		return fmt.Errorf("threadPool: threadCount must be positive, got %d", c.ThreadPool.ThreadCount)
	}
	switch c.JobStore.Type {
	case StoreTypeMemory:
	case StoreTypeSQL:
		if c.DataSource.DSN == "" {
			return fmt.Errorf("dataSource: dsn is required for the sql job store")
		}
		if c.JobStore.Driver != "postgres" && c.JobStore.Driver != "sqlserver" {
			return fmt.Errorf("jobStore: unknown driver %q", c.JobStore.Driver)
		}
	default:
		return fmt.Errorf("jobStore: unknown type %q", c.JobStore.Type)
	}
	if c.JobStore.IsClustered && c.JobStore.Type != StoreTypeSQL {
		return fmt.Errorf("jobStore: clustering requires the sql store")
	}
	return nil
}

// ResolveInstanceID replaces an AUTO instance id with a generated one.
func (c *Config) ResolveInstanceID() {
	if !strings.EqualFold(c.Scheduler.InstanceID, AutoInstanceID) {
		return
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "quartz"
	}
	c.Scheduler.InstanceID = fmt.Sprintf("%s-%s", host, uuid.New().String()[:8])
}

func setDefaults(c *Config) {
	if c.Scheduler.InstanceName == "" {
		c.Scheduler.InstanceName = defaultInstanceName
	}
	if c.Scheduler.InstanceID == "" {
		c.Scheduler.InstanceID = AutoInstanceID
	}
	if c.ThreadPool.ThreadCount == 0 {
		c.ThreadPool.ThreadCount = defaultThreadCount
	}
	if c.JobStore.Type == "" {
		c.JobStore.Type = defaultStoreType
	}
	if c.JobStore.Driver == "" {
		c.JobStore.Driver = defaultDriver
	}
}
