package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"wolfie/internal/retention"
	"wolfie/pkg/api"
	"wolfie/pkg/auth"
	"wolfie/pkg/catalog"
	"wolfie/pkg/chat"
	"wolfie/pkg/config"
	"wolfie/pkg/logger"
	"wolfie/pkg/rag"
	"wolfie/pkg/state"
	"wolfie/pkg/storage"
	"wolfie/pkg/store"
	"wolfie/pkg/telemetry"
)

// App holds the portal's runtime state.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	db       *store.Store
	sessions *auth.Sessions
	gateway  *auth.Gateway
	chats    *api.ChatRegistry
	rag      *rag.Client
	files    *storage.Client
	catalog  *catalog.Catalog

	retentionCancel context.CancelFunc
	srvFast         *fasthttp.Server
}

// New validates the effective config and opens everything the portal needs.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := config.ValidateConfig(eff); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg := eff.Config

	if err := state.Init(eff.DBPath); err != nil {
		return nil, fmt.Errorf("state dirs: %w", err)
	}
	if err := logger.AttachAuditFileSink(state.PathsVar.Audit); err != nil {
		logger.Warn("audit_sink_unavailable", "error", err)
	}

	tc := cfg.Telemetry
	if err := telemetry.Init(state.PathsVar.Tel, telemetry.Options{
		BufferSize:    int(tc.BufferSize.Int64()),
		QueueCapacity: tc.QueueCapacity,
		FlushInterval: tc.FlushInterval.Duration(),
		MaxFileSize:   tc.FileMaxSize.Int64(),
		SampleRate:    tc.SampleRate,
		SlowThreshold: tc.SlowThreshold.Duration(),
	}); err != nil {
		logger.Warn("telemetry_init_failed", "error", err)
	}

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	db, err := store.Open(state.PathsVar.Store, store.Options{})
	if err != nil {
		return nil, err
	}

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		db:        db,
		catalog:   cat,
		rag: rag.New(cfg.RAG.URL, rag.WithHTTPClient(&http.Client{
			// the orchestrator bounds queries; ingestion of large files needs headroom
			Timeout: cfg.RAG.QueryTimeout.Duration() * 2,
		})),
		files: storage.New(storage.Config{
			Endpoint: cfg.Storage.Endpoint,
			Project:  cfg.Storage.Project,
			APIKey:   cfg.Storage.APIKey,
			Timeout:  cfg.Storage.Timeout.Duration(),
			MaxBytes: cfg.Storage.MaxDownloadSize.Int64(),
		}),
	}
	a.sessions = auth.NewSessions(db, cfg.Security.SessionTTL.Duration())
	a.gateway = auth.NewGateway(a.secConfig(), a.sessions)
	a.chats = api.NewChatRegistry(a.newChat, api.DefaultChatIdle)

	if cfg.Storage.Project == "" {
		logger.Warn("storage_unconfigured", "endpoint", cfg.Storage.Endpoint)
	}
	logger.Info("app_initialized", "store", state.PathsVar.Store, "rag", a.rag.BaseURL(), "programs", len(cat.Programs))
	return a, nil
}

func (a *App) secConfig() auth.SecConfig {
	cfg := a.eff.Config
	return auth.SecConfig{
		AllowedOrigins: append([]string{}, cfg.Security.CORS.AllowedOrigins...),
		RPS:            cfg.Security.RateLimit.RPS,
		Burst:          cfg.Security.RateLimit.Burst,
		IPWhitelist:    append([]string{}, cfg.Security.IPWhitelist...),
		AdminKeys:      cfg.AdminKeySet(),
		SigningKeys:    cfg.SigningKeySet(),
		SessionTTL:     cfg.Security.SessionTTL.Duration(),
		CookieSecure:   cfg.Security.CookieSecure,
		PublicURL:      cfg.Server.PublicURL,
	}
}

// newChat builds the orchestrator behind one browser session. Attachments
// arrive from the browser as data: URLs only.
func (a *App) newChat() *chat.Orchestrator {
	rc := a.eff.Config.RAG
	return chat.NewOrchestrator(a.rag, chat.Options{
		TopK:         rc.TopK,
		QueryTimeout: rc.QueryTimeout.Duration(),
		StagePause:   rc.StagePause.Duration(),
		Fetcher:      &chat.Transfer{MaxBytes: rc.MaxAttachmentSize.Int64()},
	})
}

// Run prints the banner, starts the background jobs and serves until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	cancel, _, err := retention.Start(ctx, a.eff.Config.Retention, a.sessions)
	if err != nil {
		return fmt.Errorf("start retention: %w", err)
	}
	a.retentionCancel = cancel

	errCh := a.startHTTP(ctx)
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}
