// Package cmd implements the command-line interface for the quartz
// scheduler daemon.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/quartz/cmd/migrate"
	"github.com/jonesrussell/quartz/cmd/run"
)

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// debug forces debug logging regardless of the configured level.
	debug bool

	rootCmd = &cobra.Command{
		Use:   "quartz",
		Short: "A clustered job scheduler",
		Long:  `A job scheduler with cron, interval and calendar triggers, durable SQL persistence and cluster failover.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is ./quartz.yml)",
	)
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("quartz version %s\n", "1.0.0")
		},
	})

	rootCmd.AddCommand(run.Command(&cfgFile, &debug))
	rootCmd.AddCommand(migrate.Command(&cfgFile, &debug))
}
