package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/RealZimboGuy/flowtrigger/internal/config"
	"github.com/RealZimboGuy/flowtrigger/pkg/flowtrigger"
	"github.com/spf13/cobra"
)

// ServeOptions contains the options for the serve command.
type ServeOptions struct {
	Port        string
	NoScheduler bool
	NoWorker    bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, worker pool and HTTP API",
		Long: `Run the engine: migrate the database, then start the scheduler loop, the worker
pool and the HTTP server with the webhook intake and admin API.

Any number of instances may share one database. Use --no-scheduler or --no-worker
to split scheduling and execution across processes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Port, "port", "", "HTTP port, overrides GFLOW_ENGINE_SERVER_WEB_PORT")
	cmd.Flags().BoolVar(&opts.NoScheduler, "no-scheduler", false, "do not run the scheduler loop in this process")
	cmd.Flags().BoolVar(&opts.NoWorker, "no-worker", false, "do not run workers in this process")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	if opts.Port != "" {
		config.Set(config.ENGINE_SERVER_WEB_PORT, opts.Port)
	}
	if opts.NoScheduler {
		config.Set(config.SCHEDULER_ENABLED, false)
	}
	if opts.NoWorker {
		config.Set(config.WORKER_ENABLED, false)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return flowtrigger.Start(ctx, nil)
}
