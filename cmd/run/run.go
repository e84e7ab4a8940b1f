// Package run implements the command that starts the scheduler daemon.
package run

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	// Register the drivers the jobStore.driver setting can name.
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/jonesrussell/quartz/internal/config"
	"github.com/jonesrussell/quartz/internal/logger"
	"github.com/jonesrussell/quartz/internal/scheduler"
	"github.com/jonesrussell/quartz/internal/store"
	"github.com/jonesrussell/quartz/internal/store/memstore"
	"github.com/jonesrussell/quartz/internal/store/sqlstore"
	"github.com/jonesrussell/quartz/internal/worker"
)

const shutdownTimeout = 30 * time.Second

// Command returns the run command.
func Command(cfgFile *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the scheduler and block until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			if *debug {
				cfg.Logging.Level = logger.DebugLevel
				cfg.Logging.Development = true
			}
			log, err := logger.New(&cfg.Logging)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			return runScheduler(cmd.Context(), cfg, log)
		},
	}
}

func runScheduler(ctx context.Context, cfg *config.Config, log logger.Interface) error {
	st, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	poolCfg := worker.DefaultConfig()
	poolCfg.PoolSize = cfg.ThreadPool.ThreadCount
	pool, err := worker.NewPool(poolCfg, log)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}

	sched, err := scheduler.New(scheduler.Config{
		Name:             cfg.Scheduler.InstanceName,
		InstanceID:       cfg.Scheduler.InstanceID,
		IdleWaitTime:     cfg.Scheduler.IdleWaitTime,
		BatchTimeWindow:  cfg.Scheduler.BatchTimeWindow,
		MaxBatchSize:     cfg.Scheduler.MaxBatchSize,
		DBRetryInterval:  cfg.Scheduler.DBRetryInterval,
		MisfireThreshold: cfg.JobStore.MisfireThreshold,
	}, st, pool, nil, nil, log)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	log.Info("scheduler running",
		"instance", cfg.Scheduler.InstanceID,
		"store", cfg.JobStore.Type,
		"workers", cfg.ThreadPool.ThreadCount)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return sched.Shutdown(shutdownCtx, true)
}

// buildStore assembles the configured job store.
func buildStore(ctx context.Context, cfg *config.Config, log logger.Interface) (store.JobStore, error) {
	if cfg.JobStore.Type == config.StoreTypeMemory {
		return memstore.New(memstore.Config{MisfireThreshold: cfg.JobStore.MisfireThreshold}, log), nil
	}

	db, err := OpenDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	st, err := sqlstore.New(db, sqlstore.Config{
		SchedName:              cfg.Scheduler.InstanceName,
		InstanceID:             cfg.Scheduler.InstanceID,
		TablePrefix:            cfg.JobStore.TablePrefix,
		UseProperties:          cfg.JobStore.UseProperties,
		MisfireThreshold:       cfg.JobStore.MisfireThreshold,
		Clustered:              cfg.JobStore.IsClustered,
		ClusterCheckinInterval: cfg.JobStore.ClusterCheckinInterval,
		LockMaxRetry:           cfg.JobStore.LockMaxRetry,
		LockRetryPeriod:        cfg.JobStore.LockRetryPeriod,
	}, Dialect(cfg.JobStore.Driver), log)
	if err != nil {
		return nil, fmt.Errorf("create sql job store: %w", err)
	}

	if cfg.JobStore.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate job store schema: %w", err)
		}
	}
	return st, nil
}

// OpenDB connects the configured data source and applies pool limits.
func OpenDB(ctx context.Context, cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, cfg.JobStore.Driver, cfg.DataSource.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect data source: %w", err)
	}
	if cfg.DataSource.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.DataSource.MaxOpenConns)
	}
	if cfg.DataSource.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.DataSource.MaxIdleConns)
	}
	if cfg.DataSource.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.DataSource.ConnMaxLifetime)
	}
	return db, nil
}

// Dialect maps the configured driver name to its SQL dialect.
func Dialect(driver string) sqlstore.Dialect {
	if driver == "sqlserver" {
		return sqlstore.SQLServerDialect{}
	}
	return sqlstore.PostgresDialect{}
}
