package app

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"wolfie/pkg/api"
	"wolfie/pkg/config/banner"
	"wolfie/pkg/router"
)

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" && a.commit != "" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" && a.buildDate != "" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}

// readyzHandlerFast reports ready once the store is open and the RAG
// service answers its health check.
func (a *App) readyzHandlerFast(ctx *fasthttp.RequestCtx) {
	if a.db == nil || !a.db.Ready() {
		_ = router.WriteJSONStatus(ctx, fasthttp.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	if a.rag != nil {
		hctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := a.rag.Health(hctx)
		cancel()
		if err != nil {
			_ = router.WriteJSONStatus(ctx, fasthttp.StatusServiceUnavailable, map[string]string{"status": "rag unhealthy"})
			return
		}
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	_ = router.WriteJSON(ctx, map[string]string{"status": "ok", "version": ver})
}

func (a *App) healthzHandlerFast(ctx *fasthttp.RequestCtx) {
	_ = router.WriteJSON(ctx, map[string]string{"status": "ok"})
}

// handler builds the full request chain: the gateway in front of the router.
func (a *App) handler() fasthttp.RequestHandler {
	cfg := a.eff.Config
	portal := api.New(api.Deps{
		Catalog:      a.catalog,
		Files:        a.files,
		Chats:        a.chats,
		Sessions:     a.sessions,
		Store:        a.db,
		SigningKeys:  cfg.SigningKeySet(),
		PublicURL:    cfg.Server.PublicURL,
		CookieSecure: cfg.Security.CookieSecure,
	})

	r := router.New()
	r.GET("/healthz", a.healthzHandlerFast)
	r.GET("/readyz", a.readyzHandlerFast)
	api.RegisterRoutes(r, portal)
	r.NotFound(func(ctx *fasthttp.RequestCtx) {
		router.WriteJSONError(ctx, fasthttp.StatusNotFound, "not found")
	})
	return a.gateway.Wrap(r.Handler)
}

// startHTTP builds and starts the fasthttp server, returning a channel that delivers errors.
func (a *App) startHTTP(_ context.Context) <-chan error {
	cfg := a.eff.Config

	// chat submissions are answered synchronously and carry attachments as
	// data: URLs, so writes and bodies are allowed to be much larger than
	// for a plain JSON API
	const (
		readBufferSize       = 64 * 1024        // 64 KiB read buffer per connection
		maxRequestBodySize   = 32 * 1024 * 1024 // 32 MiB, room for a base64 attachment
		concurrency          = 0                // unlimited
		readTimeout          = 30 * time.Second
		writeTimeout         = 3 * time.Minute // longer than a full ingest plus query
		idleTimeout          = 30 * time.Second
		maxKeepaliveDuration = 5 * time.Minute
	)
	a.srvFast = &fasthttp.Server{
		Name:                 "wolfie",
		Handler:              a.handler(),
		ReadBufferSize:       readBufferSize,
		MaxRequestBodySize:   maxRequestBodySize,
		Concurrency:          concurrency,
		ReduceMemoryUsage:    true,
		ReadTimeout:          readTimeout,
		WriteTimeout:         writeTimeout,
		IdleTimeout:          idleTimeout,
		MaxKeepaliveDuration: maxKeepaliveDuration,
	}

	errCh := make(chan error, 1)
	go func() {
		addr := a.eff.Addr
		if addr == "" {
			addr = cfg.Addr()
		}
		tls := cfg.Server.TLS
		if tls.CertFile != "" && tls.KeyFile != "" {
			errCh <- a.srvFast.ListenAndServeTLS(addr, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.srvFast.ListenAndServe(addr)
	}()
	return errCh
}
