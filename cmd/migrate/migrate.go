// Package migrate implements the command that creates the job store schema.
package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/jonesrussell/quartz/cmd/run"
	"github.com/jonesrussell/quartz/internal/config"
	"github.com/jonesrussell/quartz/internal/logger"
	"github.com/jonesrussell/quartz/internal/store/sqlstore"
)

// Command returns the migrate command.
func Command(cfgFile *string, debug *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the scheduler tables and seed the lock rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}
			if cfg.JobStore.Type != config.StoreTypeSQL {
				return fmt.Errorf("jobStore type %q needs no migration", cfg.JobStore.Type)
			}
			if *debug {
				cfg.Logging.Level = logger.DebugLevel
			}
			log, err := logger.New(&cfg.Logging)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}

			ctx := cmd.Context()
			db, err := run.OpenDB(ctx, cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			st, err := sqlstore.New(db, sqlstore.Config{
				SchedName:     cfg.Scheduler.InstanceName,
				InstanceID:    cfg.Scheduler.InstanceID,
				TablePrefix:   cfg.JobStore.TablePrefix,
				UseProperties: cfg.JobStore.UseProperties,
			}, run.Dialect(cfg.JobStore.Driver), log)
			if err != nil {
				return fmt.Errorf("create sql job store: %w", err)
			}
			if err := st.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate job store schema: %w", err)
			}
			log.Info("schema migration complete", "prefix", cfg.JobStore.TablePrefix)
			return nil
		},
	}
}
