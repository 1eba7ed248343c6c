package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	ragsvc "wolfie/internal/rag"
	"wolfie/pkg/logger"
	"wolfie/pkg/state/shutdown"
	"wolfie/pkg/telemetry"
)

type ragOptions struct {
	addr         string
	dataDir      string
	watch        bool
	ingestFolder bool
	telemetryDir string
	logLevel     string
}

func newRAGCmd() *cobra.Command {
	var o ragOptions
	cmd := &cobra.Command{
		Use:   "rag",
		Short: "Run the retrieval service the chat answers from",
		Long: `Runs the ingestion and question answering API. Settings come from
WOLFIE_RAG_* environment variables; the flags below override them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ragsvc.LoadConfig()
			if err != nil {
				return err
			}
			cfg = o.apply(cmd, cfg)
			return runRAG(cmd.Context(), cfg, o)
		},
	}
	o.bind(cmd)
	return cmd
}

func (o *ragOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.addr, "addr", "", "listen address (overrides WOLFIE_RAG_ADDR)")
	cmd.Flags().StringVar(&o.dataDir, "data-dir", "", "data root; uploads, source and vectors live under it")
	cmd.Flags().BoolVar(&o.watch, "watch", false, "ingest files created or rewritten in the source folder")
	cmd.Flags().BoolVar(&o.ingestFolder, "ingest-folder", false, "ingest the source folder before serving")
	cmd.Flags().StringVar(&o.telemetryDir, "telemetry-dir", "", "write sampled traces to this directory")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error (default $WOLFIE_LOG_LEVEL)")
}

// apply layers the flags that were set over the environment config.
func (o ragOptions) apply(cmd *cobra.Command, cfg ragsvc.Config) ragsvc.Config {
	set := changedFlags(cmd, "addr", "data-dir", "watch")
	if set["data-dir"] {
		cfg = cfg.WithDataDir(o.dataDir)
	}
	if set["addr"] {
		cfg.Addr = o.addr
	}
	if set["watch"] {
		cfg.Watch = o.watch
	}
	return cfg
}

func runRAG(parent context.Context, cfg ragsvc.Config, o ragOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	logger.Init(o.logLevel)
	defer logger.Sync()

	if o.telemetryDir != "" {
		if err := telemetry.Init(o.telemetryDir, telemetry.Options{SampleRate: 0.1, SlowThreshold: 2 * time.Second}); err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer telemetry.Close()
	}

	svc, err := ragsvc.Open(cfg)
	if err != nil {
		return fmt.Errorf("open rag service: %w", err)
	}
	logger.Info("rag_config_loaded",
		"addr", cfg.Addr, "data_dir", cfg.DataDir, "embedding_provider", cfg.EmbeddingProvider,
		"embedding_model", cfg.EmbeddingModel, "chat_model", cfg.ChatModel, "watch", cfg.Watch)

	ctx, cancel := shutdown.SetupSignalHandler(parent)
	defer cancel()

	if o.ingestFolder {
		results, err := svc.IngestFolder(ctx)
		if err != nil {
			logger.Warn("startup_folder_ingest_failed", "error", err)
		} else {
			logger.Info("startup_folder_ingested", "files", len(results))
		}
	}
	return ragsvc.Serve(ctx, svc)
}
