package rag

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wolfie/pkg/chat"
)

func TestIngestSendsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/ingest", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "doc-1-0", r.FormValue("doc_id"))
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "notes.txt", hdr.Filename)
		assert.Equal(t, "text/plain", hdr.Header.Get("Content-Type"))
		assert.Equal(t, "hello", string(data))
		_ = json.NewEncoder(w).Encode(IngestResponse{Status: "success", DocID: "doc-1-0", ChunksCreated: 1})
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	resp, err := c.Ingest(context.Background(), "doc-1-0", "notes.txt", "text/plain", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 1, resp.ChunksCreated)
}

func TestQueryRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "What are the admission requirements?", req.Question)
		assert.Equal(t, 5, req.TopK)
		_ = json.NewEncoder(w).Encode(QueryResponse{Answer: "You need a high school diploma."})
	}))
	defer srv.Close()

	answer, err := New(srv.URL).Answer(context.Background(), "What are the admission requirements?", 5)
	require.NoError(t, err)
	assert.Equal(t, "You need a high school diploma.", answer)
}

func TestErrorsCarryDetail(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		detail string
	}{
		{"detail", 400, `{"detail":"Question cannot be empty"}`, "Question cannot be empty"},
		{"error", 500, `{"error":"boom"}`, "boom"},
		{"structured", 422, `{"detail":[{"loc":["body","question"]}]}`, `[{"loc":["body","question"]}]`},
		{"plain", 502, `bad gateway`, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(c.status)
				_, _ = w.Write([]byte(c.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL).Query(context.Background(), "q", 5)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, c.status, apiErr.Status)
			assert.Equal(t, c.detail, apiErr.Detail())
			assert.Equal(t, "query", apiErr.Op)
		})
	}
}

func TestIngestDocumentFailureSurfacesThroughChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(srv.URL).IngestDocument(context.Background(), chat.Document{ID: "d", Filename: "a.txt", Data: []byte("x")})
	require.Error(t, err)
	assert.Equal(t, "ingest failed: status 500", chat.ErrorText(err))
}

func TestQueryHonoursContext(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL).Query(ctx, "q", 5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer srv.Close()
	assert.NoError(t, New(srv.URL).Health(context.Background()))

	assert.Error(t, New("").Health(context.Background()))
}
