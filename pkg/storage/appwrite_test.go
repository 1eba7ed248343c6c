package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func fileMeta(id string, size int) string {
	return fmt.Sprintf(`{"$id":%q,"bucketId":"b1","name":"form.pdf","mimeType":"application/pdf","sizeOriginal":%d}`, id, size)
}

// newAppwrite serves the storage routes of an Appwrite project "proj".
func newAppwrite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/storage/buckets/b1/files/f1", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Appwrite-Key") != "secret" {
			writeJSON(w, http.StatusUnauthorized, `{"message":"The current user is not authorized","code":401,"type":"general_unauthorized_scope"}`)
			return
		}
		assert.Equal(t, "proj", r.Header.Get("X-Appwrite-Project"))
		writeJSON(w, http.StatusOK, fileMeta("f1", 5))
	})
	mux.HandleFunc("/storage/buckets/b1/files/f1/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-"))
	})
	mux.HandleFunc("/storage/buckets/b1/files/big", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, fileMeta("big", 10<<20))
	})
	mux.HandleFunc("/storage/buckets/b1/files/big/download", func(w http.ResponseWriter, r *http.Request) {
		t.Error("oversized file must not be downloaded")
	})
	// metadata understates the content
	mux.HandleFunc("/storage/buckets/b1/files/grown", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, fileMeta("grown", 10))
	})
	mux.HandleFunc("/storage/buckets/b1/files/grown/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(bytes.Repeat([]byte("a"), 2048))
	})
	mux.HandleFunc("/storage/buckets/b1/files/broken", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, `{"message":"Server Error","code":500,"type":"general_unknown"}`)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, `{"message":"File not found","code":404,"type":"storage_file_not_found"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDownload(t *testing.T) {
	srv := newAppwrite(t)
	c := New(Config{Endpoint: srv.URL, Project: "proj", APIKey: "secret"})

	d, err := c.Download(context.Background(), "b1", "f1")
	require.NoError(t, err)
	assert.Equal(t, "form.pdf", d.Name)
	assert.Equal(t, "application/pdf", d.MimeType)
	assert.Equal(t, int64(5), d.Size)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("%PDF-")), d.Base64)
}

func TestDownloadSizeCap(t *testing.T) {
	srv := newAppwrite(t)
	c := New(Config{Endpoint: srv.URL, Project: "proj", APIKey: "secret", MaxBytes: 1024})

	for _, id := range []string{"big", "grown"} {
		_, err := c.Download(context.Background(), "b1", id)
		assert.ErrorIs(t, err, ErrTooLarge, id)
		assert.Contains(t, UserMessage(err), "too large", id)
	}

	d, err := c.Download(context.Background(), "b1", "f1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), d.Size)
}

func TestDownloadHonorsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		writeJSON(w, http.StatusOK, fileMeta("f1", 5))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := New(Config{Endpoint: srv.URL, Project: "proj", Timeout: time.Minute})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.GetFile(ctx, "b1", "f1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestErrorMapping(t *testing.T) {
	srv := newAppwrite(t)

	_, err := New(Config{Endpoint: srv.URL, Project: "proj", APIKey: "secret"}).Download(context.Background(), "b1", "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, NotFoundText, UserMessage(err))

	_, err = New(Config{Endpoint: srv.URL, Project: "proj", APIKey: "wrong"}).GetFile(context.Background(), "b1", "f1")
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, UnauthorizedText, UserMessage(err))

	_, err = New(Config{Endpoint: srv.URL, Project: "proj", APIKey: "secret"}).GetFile(context.Background(), "b1", "broken")
	assert.Equal(t, "Server Error", UserMessage(err))

	assert.Equal(t, FallbackText, UserMessage(errors.New(" ")))
	assert.Equal(t, "", UserMessage(nil))
}

func TestVerify(t *testing.T) {
	srv := newAppwrite(t)
	c := New(Config{Endpoint: srv.URL, Project: "proj", APIKey: "secret"})

	v, err := c.Verify(context.Background(), "b1", "f1")
	require.NoError(t, err)
	assert.True(t, v.Exists)
	assert.Equal(t, "form.pdf", v.File.Name)

	v, err = c.Verify(context.Background(), "b1", "missing")
	require.NoError(t, err)
	assert.False(t, v.Exists)
	assert.Nil(t, v.File)

	_, err = c.Verify(context.Background(), "b1", "broken")
	assert.Error(t, err)
}

func TestDefaultEndpoint(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultEndpoint, c.cfg.Endpoint)
	assert.Equal(t, int64(DefaultMaxBytes), c.cfg.MaxBytes)
}
