package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"wolfie/internal/tui"
	"wolfie/pkg/chat"
	"wolfie/pkg/config"
	"wolfie/pkg/logger"
	"wolfie/pkg/rag"
	"wolfie/pkg/state"
	"wolfie/pkg/state/shutdown"
)

type chatOptions struct {
	configPath string
	ragURL     string
	topK       int
	style      string
	logFile    string
}

func newChatCmd() *cobra.Command {
	var o chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with Wolfie in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := config.Flags{Config: o.configPath, Set: changedFlags(cmd, "config")}
			eff, err := loadConfig(flags)
			if err != nil {
				return err
			}
			rc := eff.Config.RAG
			if cmd.Flags().Changed("rag-url") {
				rc.URL = o.ragURL
			}
			if cmd.Flags().Changed("top-k") {
				rc.TopK = o.topK
			}
			if o.logFile, err = chatLogFile(cmd, o.logFile, eff.DBPath); err != nil {
				return err
			}
			return runChat(cmd.Context(), rc, eff.Config.Logging.Level, o)
		},
	}
	cmd.Flags().StringVar(&o.configPath, "config", "", "config file (default $WOLFIE_CONFIG)")
	cmd.Flags().StringVar(&o.ragURL, "rag-url", "", "retrieval service url (default rag.url)")
	cmd.Flags().IntVar(&o.topK, "top-k", 0, "chunks retrieved per question (default rag.top_k)")
	cmd.Flags().StringVar(&o.style, "style", "dark", "markdown style: dark, light, dracula, ascii or notty")
	cmd.Flags().StringVar(&o.logFile, "log-file", "", "log file; the screen belongs to the chat (default <db>/state/logs/"+chatLogName+")")
	return cmd
}

const chatLogName = "chat.log"

// chatLogFile keeps an explicit --log-file, otherwise logs next to the
// portal's state under dbPath.
func chatLogFile(cmd *cobra.Command, flagValue, dbPath string) (string, error) {
	if cmd.Flags().Changed("log-file") {
		return flagValue, nil
	}
	return state.LogFile(dbPath, chatLogName)
}

// chatLogSink keeps logs off the terminal unless a sink was configured.
func chatLogSink(logFile string) string {
	if s := os.Getenv("WOLFIE_LOG_SINK"); s != "" {
		return s
	}
	if logFile == "" {
		return "discard"
	}
	return "file:" + logFile
}

func runChat(parent context.Context, rc config.RAGConfig, level string, o chatOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	if err := os.Setenv("WOLFIE_LOG_SINK", chatLogSink(o.logFile)); err != nil {
		return fmt.Errorf("set log sink: %w", err)
	}
	logger.Init(level)
	defer logger.Sync()

	client := rag.New(rc.URL)
	orch := chat.NewOrchestrator(client, chat.Options{
		TopK:         rc.TopK,
		QueryTimeout: rc.QueryTimeout.Duration(),
		StagePause:   rc.StagePause.Duration(),
		Fetcher: &chat.Transfer{
			AllowLocal:  true,
			AllowRemote: true,
			MaxBytes:    rc.MaxAttachmentSize.Int64(),
		},
	})
	defer orch.Close()
	logger.Info("chat_started", "rag_url", client.BaseURL(), "top_k", rc.TopK)

	ctx, cancel := shutdown.SetupSignalHandler(parent)
	defer cancel()
	return tui.Run(ctx, orch, tui.Options{GlamourStyle: o.style})
}
