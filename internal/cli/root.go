// Package cli provides Cobra command definitions for flowtrigger.
package cli

import (
	"fmt"

	"github.com/RealZimboGuy/flowtrigger/internal/config"
	"github.com/RealZimboGuy/flowtrigger/pkg/flowtrigger"
	"github.com/spf13/cobra"
)

// GlobalOptions are the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigPath string
	LogLevel   string
}

// NewRootCommand creates the flowtrigger root command with all subcommands attached.
func NewRootCommand(version string) *cobra.Command {
	opts := &GlobalOptions{}

	cmd := &cobra.Command{
		Use:   "flowtrigger",
		Short: "Cron and webhook triggered workflow scheduler",
		Long: `flowtrigger schedules workflow executions from cron expressions and signed
webhooks, queues them for a pool of workers and tracks every run to a terminal status.

Settings are read from GFLOW_* environment variables and optionally a config file.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return applyGlobalOptions(opts)
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (yaml, json or toml) merged over the environment")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.CompletionOptions.DisableDefaultCmd = true

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewNextCommand())

	return cmd
}

func applyGlobalOptions(opts *GlobalOptions) error {
	if opts.ConfigPath != "" {
		if err := config.ReadConfigFile(opts.ConfigPath); err != nil {
			return fmt.Errorf("failed to read config %s: %w", opts.ConfigPath, err)
		}
	}
	if opts.LogLevel != "" {
		config.Set(config.LOG_LEVEL, opts.LogLevel)
	}
	flowtrigger.SetupLogger()
	return nil
}
