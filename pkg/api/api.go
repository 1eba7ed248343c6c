// Package api serves the student portal: public pages, the signed-in
// dashboard and program details, the storage download proxy and the chat.
package api

import (
	"context"

	"wolfie/pkg/auth"
	"wolfie/pkg/catalog"
	"wolfie/pkg/storage"
	"wolfie/pkg/store"
)

// FileStore is the storage backend behind the download proxy.
type FileStore interface {
	Download(ctx context.Context, bucketID, fileID string) (*storage.Download, error)
	Verify(ctx context.Context, bucketID, fileID string) (*storage.Verification, error)
}

// Deps wires the portal handlers.
type Deps struct {
	Catalog  *catalog.Catalog
	Files    FileStore
	Chats    *ChatRegistry
	Sessions *auth.Sessions
	// Store holds chat activity counters. Nil disables recording.
	Store        *store.Store
	SigningKeys  map[string]struct{}
	PublicURL    string
	CookieSecure bool
}

// API holds the portal handlers.
type API struct {
	d Deps
}

// New builds the handlers.
func New(d Deps) *API {
	return &API{d: d}
}
