// Package storage proxies file downloads from an Appwrite storage bucket.
package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/appwrite/sdk-for-go/appwrite"
	"github.com/appwrite/sdk-for-go/client"
	"github.com/appwrite/sdk-for-go/models"
	appwritestorage "github.com/appwrite/sdk-for-go/storage"
	"github.com/dustin/go-humanize"
)

// DefaultEndpoint is the Appwrite cloud API root.
const DefaultEndpoint = "https://sfo.cloud.appwrite.io/v1"

// DefaultMaxBytes caps a download when the config leaves it unset.
const DefaultMaxBytes = 25 << 20

var (
	ErrNotFound     = errors.New("file not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrTooLarge     = errors.New("file too large")
)

// user-facing texts
const (
	NotFoundText     = "File not found in Appwrite Storage. Please check the bucket and file ID."
	UnauthorizedText = "Authentication failed. Check your storage API key."
	FallbackText     = "Failed to download file"
)

// Error is a failed storage call.
type Error struct {
	Op      string
	Status  int
	Message string
	kind    error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("storage %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("storage %s: status %d", e.Op, e.Status)
}

func (e *Error) Unwrap() error { return e.kind }

// UserMessage maps err to the text shown to the user.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return NotFoundText
	case errors.Is(err, ErrUnauthorized):
		return UnauthorizedText
	}
	var se *Error
	if errors.As(err, &se) && strings.TrimSpace(se.Message) != "" {
		return se.Message
	}
	if s := strings.TrimSpace(err.Error()); s != "" {
		return s
	}
	return FallbackText
}

// File is the metadata of a stored file.
type File struct {
	ID           string `json:"$id"`
	BucketID     string `json:"bucketId"`
	Name         string `json:"name"`
	MimeType     string `json:"mimeType"`
	SizeOriginal int64  `json:"sizeOriginal"`
}

func fileFrom(m *models.File) *File {
	return &File{
		ID:           m.Id,
		BucketID:     m.BucketId,
		Name:         m.Name,
		MimeType:     m.MimeType,
		SizeOriginal: int64(m.SizeOriginal),
	}
}

// Download is a file encoded for the browser.
type Download struct {
	Base64   string `json:"base64"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// Verification reports whether a file exists.
type Verification struct {
	Exists bool  `json:"exists"`
	File   *File `json:"file,omitempty"`
}

// Config holds the Appwrite project credentials.
type Config struct {
	Endpoint string
	Project  string
	APIKey   string
	Timeout  time.Duration
	// MaxBytes caps a download; the file is base64 encoded in memory.
	MaxBytes int64
}

// Client reads files through the Appwrite storage service.
type Client struct {
	cfg     Config
	buckets *appwritestorage.Storage
}

// New returns a client. An empty endpoint falls back to DefaultEndpoint.
func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	opts := []client.ClientOption{
		appwrite.WithEndpoint(cfg.Endpoint),
		appwrite.WithProject(cfg.Project),
	}
	if cfg.APIKey != "" {
		opts = append(opts, appwrite.WithKey(cfg.APIKey))
	}
	return &Client{cfg: cfg, buckets: appwrite.NewStorage(appwrite.NewClient(opts...))}
}

// GetFile fetches file metadata.
func (c *Client) GetFile(ctx context.Context, bucketID, fileID string) (*File, error) {
	m, err := call(ctx, c.cfg.Timeout, "get_file", func() (*models.File, error) {
		return c.buckets.GetFile(bucketID, fileID)
	})
	if err != nil {
		return nil, err
	}
	return fileFrom(m), nil
}

// Download fetches metadata then content and returns it base64 encoded.
// Files over the configured cap are refused before and after the transfer.
func (c *Client) Download(ctx context.Context, bucketID, fileID string) (*Download, error) {
	f, err := c.GetFile(ctx, bucketID, fileID)
	if err != nil {
		return nil, err
	}
	if f.SizeOriginal > c.cfg.MaxBytes {
		return nil, c.tooLarge(f.SizeOriginal)
	}
	raw, err := call(ctx, c.cfg.Timeout, "download", func() (*[]byte, error) {
		return c.buckets.GetFileDownload(bucketID, fileID)
	})
	if err != nil {
		return nil, err
	}
	var data []byte
	if raw != nil {
		data = *raw
	}
	if int64(len(data)) > c.cfg.MaxBytes {
		return nil, c.tooLarge(int64(len(data)))
	}
	size := f.SizeOriginal
	if size == 0 {
		size = int64(len(data))
	}
	return &Download{
		Base64:   base64.StdEncoding.EncodeToString(data),
		Name:     f.Name,
		MimeType: f.MimeType,
		Size:     size,
	}, nil
}

func (c *Client) tooLarge(size int64) error {
	return &Error{
		Op:      "download",
		Status:  http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("File is too large to download: %s (max %s)", humanize.IBytes(uint64(size)), humanize.IBytes(uint64(c.cfg.MaxBytes))),
		kind:    ErrTooLarge,
	}
}

// Verify reports whether the file exists. Only ErrNotFound is folded into
// Exists=false; other failures are returned.
func (c *Client) Verify(ctx context.Context, bucketID, fileID string) (*Verification, error) {
	f, err := c.GetFile(ctx, bucketID, fileID)
	if errors.Is(err, ErrNotFound) {
		return &Verification{Exists: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Verification{Exists: true, File: f}, nil
}

// call runs a blocking SDK request, giving up when ctx or the timeout ends
// first. The SDK takes no context, so an abandoned request finishes in the
// background.
func call[T any](ctx context.Context, timeout time.Duration, op string, fn func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("storage %s: %w", op, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return r.v, mapError(op, r.err)
		}
		return r.v, nil
	}
}

// appwriteError is the part of the SDK's error type the mapping needs.
type appwriteError interface {
	error
	GetStatusCode() int
	GetMessage() string
}

// mapError turns an SDK failure into an *Error carrying ErrNotFound or
// ErrUnauthorized where the status or error type says so.
func mapError(op string, err error) error {
	var ae appwriteError
	if !errors.As(err, &ae) {
		return fmt.Errorf("storage %s: %w", op, err)
	}
	e := &Error{Op: op, Status: ae.GetStatusCode(), Message: strings.TrimSpace(ae.GetMessage())}
	var typed interface{ GetType() string }
	notFoundType := errors.As(err, &typed) && strings.Contains(typed.GetType(), "not_found")
	switch {
	case e.Status == http.StatusNotFound || notFoundType:
		e.kind = ErrNotFound
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden:
		e.kind = ErrUnauthorized
	}
	return e
}
