package app

import (
	"context"

	"wolfie/pkg/state/shutdown"
)

// Shutdown stops the server and releases everything New opened.
func (a *App) Shutdown(ctx context.Context) error {
	return shutdown.ShutdownApp(ctx, shutdown.Components{
		Server:    a.srvFast,
		Retention: a.retentionCancel,
		Gateway:   a.gateway,
		Chats:     a.chats,
		Store:     a.db,
	})
}
