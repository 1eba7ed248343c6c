package cli

import (
	"context"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"wolfie/internal/app"
	"wolfie/pkg/config"
	"wolfie/pkg/logger"
	"wolfie/pkg/state/shutdown"
)

const shutdownTimeout = 20 * time.Second

func newServeCmd(info BuildInfo) *cobra.Command {
	var flags config.Flags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the department portal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.Set = changedFlags(cmd, "addr", "db", "config")
			return runServe(cmd.Context(), flags, info)
		},
	}
	bindConfigFlags(cmd, &flags)
	return cmd
}

func runServe(parent context.Context, flags config.Flags, info BuildInfo) error {
	if parent == nil {
		parent = context.Background()
	}
	eff, err := loadConfig(flags)
	if err != nil {
		return err
	}

	// initialize logger after config is fully loaded
	logger.Init(eff.Config.Logging.Level)
	defer logger.Sync()

	logger.Info("effective_config_loaded", "source", eff.Source, "addr", eff.Addr, "db_path", eff.DBPath)
	logger.Info("system_logical_cores", "logical_cores", runtime.NumCPU())

	a, err := app.New(eff, info.Version, info.Commit, info.BuildDate)
	if err != nil {
		shutdown.Abort("failed to initialize app", err)
	}

	ctx, cancel := shutdown.SetupSignalHandler(parent)
	defer cancel()

	if err := a.Run(ctx); err != nil {
		shutdown.Abort("app run failed", err)
	}

	// bounded so teardown cannot hang forever
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	return a.Shutdown(shutdownCtx)
}
