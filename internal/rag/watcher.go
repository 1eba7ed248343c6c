package rag

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"wolfie/pkg/logger"
)

const watchDebounce = 500 * time.Millisecond

// Watch re-ingests allowed files in the source folder when they are
// created or rewritten, until ctx is cancelled. Bursts of events for the
// same file are debounced.
func (s *Service) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(s.cfg.SourceDir); err != nil {
		return fmt.Errorf("watch %s: %w", s.cfg.SourceDir, err)
	}
	logger.Info("source_watch_started", "dir", s.cfg.SourceDir)

	var (
		mu      sync.Mutex
		pending = map[string]*time.Timer{}
		wg      sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		for _, t := range pending {
			if t.Stop() {
				wg.Done()
			}
		}
		mu.Unlock()
		wg.Wait()
	}()

	schedule := func(path string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := pending[path]; ok && t.Stop() {
			wg.Done()
		}
		wg.Add(1)
		var t *time.Timer
		t = time.AfterFunc(watchDebounce, func() {
			defer wg.Done()
			mu.Lock()
			if pending[path] == t {
				delete(pending, path)
			}
			mu.Unlock()
			docID, n, err := s.IngestFile(ctx, path)
			if err != nil {
				logger.Error("watch_ingest_failed", "path", path, "error", err)
				return
			}
			logger.Info("watch_ingested", "doc_id", docID, "chunks", n)
		})
		pending[path] = t
	}

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !s.cfg.extensionAllowed(filepath.Base(ev.Name)) {
				continue
			}
			schedule(ev.Name)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("source_watch_error", "error", err)
		case <-ctx.Done():
			logger.Info("source_watch_stopped")
			return nil
		}
	}
}
