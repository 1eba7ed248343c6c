package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/google/uuid"

	"wolfie/pkg/config"
	"wolfie/pkg/logger"
	"wolfie/pkg/telemetry"
)

// Purger removes expired records. auth.Sessions implements it.
type Purger interface {
	PurgeExpired(now time.Time) (int, error)
	CountExpired(now time.Time) (int, error)
}

// Result describes one retention run.
type Result struct {
	RunID  string
	Purged int
	DryRun bool
}

// Manager runs the expired-session purge on a cron schedule.
type Manager struct {
	cfg    config.RetentionConfig
	purger Purger
	now    func() time.Time

	mu      sync.Mutex
	running bool
}

// NewManager builds a manager; it does not start scheduling.
func NewManager(cfg config.RetentionConfig, purger Purger) *Manager {
	return &Manager{cfg: cfg, purger: purger, now: time.Now}
}

// Start launches the schedule loop and returns its cancel func. A disabled
// or paused retention returns a no-op cancel.
func Start(ctx context.Context, cfg config.RetentionConfig, purger Purger) (context.CancelFunc, *Manager, error) {
	if !cfg.Enabled || cfg.Paused {
		logger.Info("retention_disabled", "paused", cfg.Paused)
		return func() {}, nil, nil
	}
	if !gronx.New().IsValid(cfg.Cron) {
		return nil, nil, fmt.Errorf("invalid retention cron %q", cfg.Cron)
	}
	rm := NewManager(cfg, purger)
	ctx2, cancel := context.WithCancel(ctx)
	logger.Info("retention_enabled", "cron", cfg.Cron, "dry_run", cfg.DryRun)
	go rm.scheduleLoop(ctx2)
	return cancel, rm, nil
}

func (rm *Manager) scheduleLoop(ctx context.Context) {
	for {
		next, err := gronx.NextTickAfter(rm.cfg.Cron, rm.now(), false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", rm.cfg.Cron, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Until(next)
		if wait < time.Second {
			wait = time.Second
		}
		select {
		case <-time.After(wait):
			if _, err := rm.RunOnce(); err != nil {
				logger.Error("retention_run_error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce runs a purge now. Overlapping runs are skipped.
func (rm *Manager) RunOnce() (Result, error) {
	rm.mu.Lock()
	if rm.running {
		rm.mu.Unlock()
		logger.Warn("retention_run_skipped", "reason", "already_running")
		return Result{}, nil
	}
	rm.running = true
	rm.mu.Unlock()
	defer func() {
		rm.mu.Lock()
		rm.running = false
		rm.mu.Unlock()
	}()

	tr := telemetry.Track("retention.run")
	defer tr.Finish()

	res := Result{RunID: uuid.NewString(), DryRun: rm.cfg.DryRun}
	now := rm.now()
	logger.Info("retention_run_start", "run_id", res.RunID, "dry_run", res.DryRun)

	var err error
	if res.DryRun {
		res.Purged, err = rm.purger.CountExpired(now)
	} else {
		res.Purged, err = rm.purger.PurgeExpired(now)
	}
	tr.Mark("purge")
	if err != nil {
		logger.AuditInfo("retention_run_failed", "run_id", res.RunID, "error", err.Error())
		return res, fmt.Errorf("purge expired sessions: %w", err)
	}

	logger.AuditInfo("retention_run_complete", "run_id", res.RunID, "purged", res.Purged, "dry_run", res.DryRun)
	return res, nil
}
