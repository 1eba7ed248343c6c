package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

// DefaultMaxAttachmentBytes caps a single attachment.
const DefaultMaxAttachmentBytes = 20 << 20

var (
	// ErrSourceNotAllowed is returned for attachment schemes the transfer
	// was not configured to read.
	ErrSourceNotAllowed = errors.New("attachment source not allowed")
	// ErrTooLarge is returned when an attachment exceeds MaxBytes.
	ErrTooLarge = errors.New("attachment too large")
)

// Fetcher turns an attachment reference into bytes.
type Fetcher interface {
	Fetch(ctx context.Context, a Attachment) ([]byte, error)
}

// Transfer reads attachments from data: URLs and, when enabled, from the
// local filesystem and http(s) URLs.
type Transfer struct {
	Client      *http.Client
	AllowLocal  bool
	AllowRemote bool
	MaxBytes    int64
}

func (t *Transfer) limit() int64 {
	if t.MaxBytes > 0 {
		return t.MaxBytes
	}
	return DefaultMaxAttachmentBytes
}

// Fetch implements Fetcher.
func (t *Transfer) Fetch(ctx context.Context, a Attachment) ([]byte, error) {
	ref := strings.TrimSpace(a.URL)
	if ref == "" {
		return nil, errors.New("attachment has no url")
	}
	lower := strings.ToLower(ref)
	switch {
	case strings.HasPrefix(lower, "data:"):
		data, err := decodeDataURL(ref)
		if err != nil {
			return nil, err
		}
		return data, t.checkSize(int64(len(data)))
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		if !t.AllowRemote {
			return nil, fmt.Errorf("%w: %s", ErrSourceNotAllowed, "http")
		}
		return t.fetchRemote(ctx, ref)
	case strings.HasPrefix(lower, "file://"):
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("parse file url: %w", err)
		}
		return t.readLocal(u.Path)
	case strings.Contains(ref, "://"):
		return nil, fmt.Errorf("%w: %s", ErrSourceNotAllowed, ref[:strings.Index(ref, "://")])
	default:
		return t.readLocal(ref)
	}
}

func (t *Transfer) readLocal(path string) ([]byte, error) {
	if !t.AllowLocal {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotAllowed, "file")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat attachment: %w", err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("attachment %s is a directory", path)
	}
	if err := t.checkSize(fi.Size()); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func (t *Transfer) fetchRemote(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch attachment: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, t.limit()+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return data, t.checkSize(int64(len(data)))
}

func (t *Transfer) checkSize(n int64) error {
	if n > t.limit() {
		return fmt.Errorf("%w: %s exceeds %s", ErrTooLarge,
			humanize.IBytes(uint64(n)), humanize.IBytes(uint64(t.limit())))
	}
	return nil
}

// decodeDataURL decodes "data:[<mediatype>][;base64],<payload>".
func decodeDataURL(ref string) ([]byte, error) {
	rest := ref[len("data:"):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return nil, errors.New("malformed data url")
	}
	meta, payload := rest[:comma], rest[comma+1:]
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
			if err != nil {
				return nil, fmt.Errorf("decode data url: %w", err)
			}
		}
		return data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data url: %w", err)
	}
	return []byte(s), nil
}

func dataURLMediaType(ref string) string {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(strings.ToLower(ref), "data:") {
		return ""
	}
	rest := ref[len("data:"):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return ""
	}
	mt, _, _ := strings.Cut(rest[:comma], ";")
	return strings.TrimSpace(mt)
}
