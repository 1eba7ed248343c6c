package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"wolfie/pkg/store"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newCtx(method, uri string) *fasthttp.RequestCtx {
	var ctx fasthttp.RequestCtx
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	return &ctx
}

func TestHMACSignature(t *testing.T) {
	keys := map[string]struct{}{"old": {}, "new": {}}
	sig := CreateHMACSignature("student-1", "new")
	assert.Len(t, sig, 64)
	assert.True(t, VerifyHMACSignature("student-1", sig, keys))
	assert.True(t, VerifyHMACSignature("student-1", CreateHMACSignature("student-1", "old"), keys))
	assert.False(t, VerifyHMACSignature("student-2", sig, keys))
	assert.False(t, VerifyHMACSignature("student-1", "", keys))
	assert.False(t, VerifyHMACSignature("student-1", sig, nil))
}

func TestValidateUserID(t *testing.T) {
	cases := []struct {
		id   string
		want error
	}{
		{"", ErrUserRequired},
		{"a:b", ErrUserInvalid},
		{string(make([]byte, 129)), ErrUserTooLong},
		{"user_123", nil},
	}
	for _, c := range cases {
		err := ValidateUserID(c.id)
		if c.want == nil {
			assert.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, c.want)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	m := NewSessions(newStore(t), time.Hour)
	s, err := m.Create("user_1", "Ada")
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.FirstName)

	require.NoError(t, m.Delete(s.ID))
	_, err = m.Get(s.ID)
	assert.ErrorIs(t, err, ErrNoSession)

	_, err = m.Get("")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestSessionExpiryAndPurge(t *testing.T) {
	m := NewSessions(newStore(t), time.Minute)
	base := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	old, err := m.Create("a", "A")
	require.NoError(t, err)
	m.now = func() time.Time { return base.Add(30 * time.Second) }
	fresh, err := m.Create("b", "B")
	require.NoError(t, err)

	n, err := m.PurgeExpired(base.Add(70 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	m.now = func() time.Time { return base.Add(70 * time.Second) }
	_, err = m.Get(old.ID)
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = m.Get(fresh.ID)
	assert.NoError(t, err)

	m.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = m.Get(fresh.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestGatewayResolvesSessionCookie(t *testing.T) {
	sessions := NewSessions(newStore(t), time.Hour)
	g := NewGateway(SecConfig{}, sessions)
	defer g.Shutdown()
	s, err := sessions.Create("user_1", "Ada")
	require.NoError(t, err)

	var seen Session
	var ok bool
	h := g.Wrap(RequireAPI(func(ctx *fasthttp.RequestCtx) {
		seen, ok = SessionFrom(ctx)
	}))

	ctx := newCtx("GET", "/api/chat/messages")
	ctx.Request.Header.SetCookie(CookieName, s.ID)
	h(ctx)
	require.True(t, ok)
	assert.Equal(t, "user_1", seen.UserID)

	ctx = newCtx("GET", "/api/chat/messages")
	h(ctx)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"error":"unauthorized"}`, string(ctx.Response.Body()))
}

func TestRequirePageRedirects(t *testing.T) {
	g := NewGateway(SecConfig{}, NewSessions(newStore(t), time.Hour))
	defer g.Shutdown()
	h := g.Wrap(RequirePage(func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusOK) }))

	ctx := newCtx("GET", "/dashboard")
	ctx.Request.Header.SetCookie(CookieName, "unknown")
	h(ctx)
	assert.Equal(t, fasthttp.StatusFound, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Header.Peek("Location")), "/login")
}

func TestRequireAdmin(t *testing.T) {
	g := NewGateway(SecConfig{AdminKeys: map[string]struct{}{"admin-key": {}}}, nil)
	defer g.Shutdown()
	h := g.Wrap(RequireAdmin(func(ctx *fasthttp.RequestCtx) { ctx.SetStatusCode(fasthttp.StatusOK) }))

	ctx := newCtx("GET", "/admin/debug/prometheus")
	ctx.Request.Header.Set("Authorization", "Bearer admin-key")
	h(ctx)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	ctx = newCtx("GET", "/admin/debug/prometheus")
	ctx.Request.Header.Set("X-API-Key", "nope")
	h(ctx)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
}

func TestGatewayRateLimit(t *testing.T) {
	g := NewGateway(SecConfig{RPS: 0.001, Burst: 1}, nil)
	defer g.Shutdown()
	h := g.Wrap(func(ctx *fasthttp.RequestCtx) {})

	first := newCtx("GET", "/prospectus")
	h(first)
	assert.Equal(t, fasthttp.StatusOK, first.Response.StatusCode())

	second := newCtx("GET", "/prospectus")
	h(second)
	assert.Equal(t, fasthttp.StatusTooManyRequests, second.Response.StatusCode())

	health := newCtx("GET", "/healthz")
	h(health)
	assert.Equal(t, fasthttp.StatusOK, health.Response.StatusCode())
}

func TestGatewayCORSAndWhitelist(t *testing.T) {
	g := NewGateway(SecConfig{AllowedOrigins: []string{"https://ccs.example.edu"}, IPWhitelist: []string{"10.0.0.1"}}, nil)
	defer g.Shutdown()
	h := g.Wrap(func(ctx *fasthttp.RequestCtx) {})

	ctx := newCtx("OPTIONS", "/api/chat/messages")
	ctx.Request.Header.Set("Origin", "https://ccs.example.edu")
	h(ctx)
	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())
	assert.Equal(t, "https://ccs.example.edu", string(ctx.Response.Header.Peek("Access-Control-Allow-Origin")))

	ctx = newCtx("GET", "/resources")
	h(ctx)
	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
}

func TestLimiterPoolSweep(t *testing.T) {
	p := newLimiterPool(10, 1)
	defer p.Shutdown()
	assert.True(t, p.Allow("a"))
	assert.Equal(t, 1, p.Size())
	p.sweep(time.Now().Add(time.Minute))
	assert.Equal(t, 0, p.Size())

	open := newLimiterPool(0, 0)
	for i := 0; i < 5; i++ {
		assert.True(t, open.Allow("x"))
	}
}
