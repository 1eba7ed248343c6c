package shutdown

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/valyala/fasthttp"

	"wolfie/pkg/logger"
	"wolfie/pkg/state"
	"wolfie/pkg/telemetry"
)

// Components lists what ShutdownApp tears down. Nil fields are skipped.
type Components struct {
	Server    *fasthttp.Server
	Retention context.CancelFunc
	// Gateway stops the limiter pool.
	Gateway interface{ Shutdown() }
	// Chats closes every live conversation.
	Chats interface{ Close() }
	Store interface{ Close() error }
}

// ShutdownApp stops the server first, then background work, then storage,
// and finally telemetry.
func ShutdownApp(ctx context.Context, c Components) error {
	logger.Info("shutdown_requested")

	// stop accepting new requests
	if c.Server != nil {
		logger.Info("shutdown_stopping_http")
		if err := c.Server.Shutdown(); err != nil {
			logger.Error("shutdown_http_error", "error", err)
		}
	}

	if c.Retention != nil {
		logger.Info("shutdown_stopping_retention")
		c.Retention()
	}

	if c.Chats != nil {
		logger.Info("shutdown_closing_chats")
		c.Chats.Close()
	}

	if c.Gateway != nil {
		c.Gateway.Shutdown()
	}

	var storeErr error
	if c.Store != nil {
		logger.Info("shutdown_closing_store")
		if storeErr = c.Store.Close(); storeErr != nil {
			logger.Error("shutdown_store_close_error", "error", storeErr)
		}
	}

	logger.Info("shutdown_closing_telemetry")
	telemetry.Close()

	logger.Info("shutdown_complete")
	logger.Sync()
	return storeErr
}

// Abort writes a crash dump and exits. Used for fatal startup errors.
func Abort(reason string, err error) {
	state.Crash(reason, err)
}

// SetupSignalHandler installs handlers for SIGINT/SIGTERM and SIGPIPE and
// returns a context cancelled when any of them arrives.
func SetupSignalHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigc:
			logger.Info("signal_received", "signal", s.String(), "msg", "shutdown requested")
			cancel()
		case <-ctx.Done():
		}
	}()

	// watch for SIGPIPE and dump goroutine stacks to aid diagnostics
	sigpipe := make(chan os.Signal, 1)
	signal.Notify(sigpipe, syscall.SIGPIPE)
	go func() {
		select {
		case s := <-sigpipe:
			logger.Info("signal_received", "signal", s.String(), "msg", "SIGPIPE - dumping goroutine stacks")
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			logger.Info("goroutine_stack_dump", "dump", string(buf[:n]))
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigc)
		signal.Stop(sigpipe)
		cancel()
	}
}
