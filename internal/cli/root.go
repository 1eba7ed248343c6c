// Package cli wires the wolfie subcommands.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"wolfie/pkg/config"
)

// BuildInfo is stamped into the binary at link time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// NewRootCmd builds the command tree.
func NewRootCmd(info BuildInfo) *cobra.Command {
	root := &cobra.Command{
		Use:   "wolfie",
		Short: "Wolfie, the CCS academic support assistant",
		Long: `Wolfie runs the department portal, the retrieval service behind the
chat and a terminal chat client.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", info.Version, info.Commit, info.BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			// load .env file if present
			_ = godotenv.Load(".env")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newServeCmd(info))
	root.AddCommand(newRAGCmd())
	root.AddCommand(newChatCmd())
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute(info BuildInfo) {
	if err := NewRootCmd(info).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bindConfigFlags registers --addr, --db and --config on cmd.
func bindConfigFlags(cmd *cobra.Command, flags *config.Flags) {
	cmd.Flags().StringVar(&flags.Addr, "addr", "", "listen address (host:port)")
	cmd.Flags().StringVar(&flags.DB, "db", "", "database directory")
	cmd.Flags().StringVar(&flags.Config, "config", "", "config file (default $WOLFIE_CONFIG)")
}

// changedFlags records which of names were set on the command line.
func changedFlags(cmd *cobra.Command, names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		if f := cmd.Flags().Lookup(n); f != nil && f.Changed {
			set[n] = true
		}
	}
	return set
}

// loadConfig resolves the effective config from the file, the environment
// and the flags.
func loadConfig(flags config.Flags) (config.EffectiveConfigResult, error) {
	fileCfg, fileExists, err := config.ParseConfigFile(flags)
	if err != nil {
		return config.EffectiveConfigResult{}, fmt.Errorf("load config file: %w", err)
	}
	envCfg, envRes := config.ParseConfigEnvs()
	eff, err := config.LoadEffectiveConfig(flags, fileCfg, fileExists, envCfg, envRes)
	if err != nil {
		return config.EffectiveConfigResult{}, fmt.Errorf("build effective config: %w", err)
	}
	return eff, nil
}
