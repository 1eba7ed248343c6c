// Package rag is the HTTP client for the retrieval-augmented-generation
// service: document ingestion, question answering and health.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"wolfie/pkg/chat"
)

const maxErrorBody = 64 << 10

// Client talks to a RAG service rooted at BaseURL.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New returns a client for baseURL. The http.Client has no timeout of its
// own; callers bound calls with their context.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Transport: http.DefaultTransport},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string { return c.baseURL }

// IngestResponse is returned by a successful ingestion.
type IngestResponse struct {
	Status        string `json:"status"`
	DocID         string `json:"doc_id"`
	ChunksCreated int    `json:"chunks_created"`
}

// QueryRequest is the body of a query call.
type QueryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// Source is one passage the answer was grounded on.
type Source struct {
	DocID      string  `json:"doc_id"`
	ChunkID    int     `json:"chunk_id"`
	Content    string  `json:"content"`
	Similarity float32 `json:"similarity"`
}

// QueryResponse is returned by a successful query.
type QueryResponse struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// APIError is a non-2xx answer from the service.
type APIError struct {
	Op     string
	Status int
	detail string
}

func (e *APIError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.Status, e.detail)
	}
	return fmt.Sprintf("%s failed: status %d", e.Op, e.Status)
}

// Detail returns the message the server put in its error body, if any.
func (e *APIError) Detail() string { return e.detail }

// Ingest uploads one document as multipart form data with fields doc_id and
// file.
func (c *Client) Ingest(ctx context.Context, docID, filename, mediaType string, data []byte) (*IngestResponse, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("doc_id", docID); err != nil {
		return nil, fmt.Errorf("write doc_id: %w", err)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	h.Set("Content-Type", mediaType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write file part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	var out IngestResponse
	if err := c.do(ctx, "ingest", http.MethodPost, "/api/v1/ingest", w.FormDataContentType(), &body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Query asks question against the indexed documents.
func (c *Client) Query(ctx context.Context, question string, topK int) (*QueryResponse, error) {
	payload, err := json.Marshal(QueryRequest{Question: question, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	var out QueryResponse
	if err := c.do(ctx, "query", http.MethodPost, "/api/v1/query", "application/json", bytes.NewReader(payload), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reports whether the service answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, "health", http.MethodGet, "/health", "", nil, &out); err != nil {
		return err
	}
	if out.Status != "healthy" {
		return fmt.Errorf("health: unexpected status %q", out.Status)
	}
	return nil
}

// IngestDocument adapts Ingest to the chat orchestrator.
func (c *Client) IngestDocument(ctx context.Context, doc chat.Document) error {
	_, err := c.Ingest(ctx, doc.ID, doc.Filename, doc.MediaType, doc.Data)
	return err
}

// Answer adapts Query to the chat orchestrator.
func (c *Client) Answer(ctx context.Context, question string, topK int) (string, error) {
	resp, err := c.Query(ctx, question, topK)
	if err != nil {
		return "", err
	}
	return resp.Answer, nil
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("%s: rag service url not configured", op)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	observe(op, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Op: op, Status: resp.StatusCode, detail: errorDetail(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// errorDetail pulls "detail" or "error" out of an error body. A detail that
// is not a string (validation errors) is returned as compact JSON.
func errorDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if len(body.Detail) > 0 && string(body.Detail) != "null" {
		var s string
		if json.Unmarshal(body.Detail, &s) == nil {
			return strings.TrimSpace(s)
		}
		var buf bytes.Buffer
		if json.Compact(&buf, body.Detail) == nil {
			return buf.String()
		}
	}
	return strings.TrimSpace(body.Error)
}
