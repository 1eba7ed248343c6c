package rag

import (
	"context"
	"time"

	"github.com/valyala/fasthttp"

	"wolfie/pkg/logger"
)

// Serve runs the HTTP API, and the source watcher when enabled, until ctx
// is cancelled or the listener fails.
func Serve(ctx context.Context, s *Service) error {
	const (
		readBufferSize = 64 * 1024
		readTimeout    = 60 * time.Second
		writeTimeout   = 3 * time.Minute // generation can be slow
		idleTimeout    = 30 * time.Second
	)
	srv := &fasthttp.Server{
		Name:           "wolfie-rag",
		Handler:        Handler(s),
		ReadBufferSize: readBufferSize,
		// leave room above the file limit so oversized uploads get a JSON 413
		MaxRequestBodySize: int(s.cfg.MaxFileSize)*2 + 1<<20,
		ReadTimeout:        readTimeout,
		WriteTimeout:       writeTimeout,
		IdleTimeout:        idleTimeout,
		ReduceMemoryUsage:  true,
	}

	wctx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	if s.cfg.Watch {
		go func() {
			if err := s.Watch(wctx); err != nil {
				logger.Error("source_watch_failed", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rag_listening", "addr", s.cfg.Addr, "chunks", s.store.Count())
		errCh <- srv.ListenAndServe(s.cfg.Addr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("rag_shutdown")
		if err := srv.Shutdown(); err != nil {
			logger.Error("rag_shutdown_failed", "error", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}
