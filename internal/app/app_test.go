package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"wolfie/pkg/auth"
	"wolfie/pkg/config"
)

func newRAGStub(t *testing.T, healthy *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/health":
			if !healthy.Load() {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"detail":"down"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"healthy"}`))
		case "/api/v1/query":
			_, _ = w.Write([]byte(`{"answer":"Enrollment opens in June.","sources":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Not Found"}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func call(h fasthttp.RequestHandler, method, uri, cookie, body string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if cookie != "" {
		ctx.Request.Header.SetCookie(auth.CookieName, cookie)
	}
	if body != "" {
		ctx.Request.Header.SetContentType("application/json")
		ctx.Request.SetBodyString(body)
	}
	h(&ctx)
	return &ctx
}

// The state directories are initialised once per process, so the whole
// app lifecycle is exercised from a single test.
func TestAppLifecycle(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	rag := newRAGStub(t, &healthy)

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	dir := t.TempDir()
	cfg.Server.DBPath = dir
	cfg.RAG.URL = rag.URL
	cfg.RAG.StagePause = -1
	cfg.Security.SigningKeys = []string{"k1"}
	cfg.Retention.Enabled = false

	a, err := New(config.EffectiveConfigResult{Config: cfg, Addr: "127.0.0.1:0", DBPath: dir, Source: "flags"}, "1.2.3", "none", "unknown")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	h := a.handler()

	t.Run("healthz", func(t *testing.T) {
		ctx := call(h, "GET", "/healthz", "", "")
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"status":"ok"}`, string(ctx.Response.Body()))
	})

	t.Run("readyz", func(t *testing.T) {
		ctx := call(h, "GET", "/readyz", "", "")
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"status":"ok","version":"1.2.3"}`, string(ctx.Response.Body()))

		healthy.Store(false)
		defer healthy.Store(true)
		ctx = call(h, "GET", "/readyz", "", "")
		assert.Equal(t, fasthttp.StatusServiceUnavailable, ctx.Response.StatusCode())
	})

	t.Run("login and chat", func(t *testing.T) {
		sig := auth.CreateHMACSignature("student_7", "k1")
		ctx := call(h, "POST", "/login", "", `{"userId":"student_7","firstName":"Grace","signature":"`+sig+`"}`)
		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
		cookie := string(ctx.Response.Header.PeekCookie(auth.CookieName))
		require.NotEmpty(t, cookie)

		var c fasthttp.Cookie
		require.NoError(t, c.Parse(cookie))
		sid := string(c.Value())

		ctx = call(h, "POST", "/api/chat/messages", sid, `{"text":"When is enrollment?"}`)
		require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode(), string(ctx.Response.Body()))
		var resp struct {
			State struct {
				Messages []struct {
					Content string `json:"content"`
				} `json:"messages"`
			} `json:"state"`
		}
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
		require.Len(t, resp.State.Messages, 2)
		assert.Equal(t, "Enrollment opens in June.", resp.State.Messages[1].Content)
		assert.Equal(t, 1, a.chats.Len())
	})

	t.Run("unknown route", func(t *testing.T) {
		ctx := call(h, "GET", "/nope", "", "")
		assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	})
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(config.EffectiveConfigResult{}, "dev", "none", "unknown")
	require.Error(t, err)
}
