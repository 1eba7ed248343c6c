package auth

import (
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"wolfie/pkg/logger"
	"wolfie/pkg/router"
	"wolfie/pkg/telemetry"
)

const (
	sessionValue = "session"
	roleValue    = "role"
)

// Gateway resolves the caller of every request: CORS, IP whitelist, admin
// API keys, session cookie and per-caller rate limiting. It does not reject
// anonymous callers; RequirePage, RequireAPI and RequireAdmin do.
type Gateway struct {
	cfg      SecConfig
	sessions *Sessions
	limiters *limiterPool
}

// NewGateway builds the request gateway.
func NewGateway(cfg SecConfig, sessions *Sessions) *Gateway {
	return &Gateway{cfg: cfg, sessions: sessions, limiters: newLimiterPool(cfg.RPS, cfg.Burst)}
}

// Shutdown stops the limiter cleanup loop.
func (g *Gateway) Shutdown() { g.limiters.Shutdown() }

// Sessions returns the session manager behind the gateway.
func (g *Gateway) Sessions() *Sessions { return g.sessions }

// Config returns the security settings.
func (g *Gateway) Config() SecConfig { return g.cfg }

// Wrap returns next behind the gateway.
func (g *Gateway) Wrap(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	cfg := g.cfg
	return func(ctx *fasthttp.RequestCtx) {
		logger.LogRequestFast(ctx)

		// cors headers and handle options shortcut
		origin := router.GetHeader(ctx, "Origin")
		if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
			ctx.Response.Header.Set("Access-Control-Allow-Origin", origin)
			ctx.Response.Header.Set("Access-Control-Allow-Credentials", "true")
			ctx.Response.Header.Set("Vary", "Origin")
			ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
			ctx.Response.Header.Set("Access-Control-Max-Age", "600")
			ctx.Response.Header.Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key")
		}
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		// ip whitelist check (always before all other checks except cors/options)
		if len(cfg.IPWhitelist) > 0 {
			ip := router.ClientIP(ctx)
			if !ipWhitelisted(ip, cfg.IPWhitelist) {
				router.WriteJSONError(ctx, fasthttp.StatusForbidden, "forbidden")
				logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", router.GetPath(ctx))
				return
			}
		}

		if publicAllowedPath(ctx) {
			next(ctx)
			return
		}

		limitKey := router.ClientIP(ctx)
		role := RoleUnauth
		if key := router.ExtractAPIKey(ctx); key != "" {
			if _, ok := cfg.AdminKeys[key]; ok {
				role = RoleAdmin
				limitKey = "key:" + key
			}
		}
		if role == RoleUnauth {
			if s, ok := g.resolveSession(ctx); ok {
				role = RoleUser
				limitKey = "session:" + s.ID
			}
		}
		ctx.SetUserValue(roleValue, role)

		if !g.limiters.Allow(limitKey) {
			router.WriteJSONError(ctx, fasthttp.StatusTooManyRequests, "rate limit exceeded")
			logger.Warn("rate_limited", "role", role.String(), "path", router.GetPath(ctx))
			return
		}
		next(ctx)
	}
}

func (g *Gateway) resolveSession(ctx *fasthttp.RequestCtx) (Session, bool) {
	id := string(ctx.Request.Header.Cookie(CookieName))
	if id == "" || g.sessions == nil {
		return Session{}, false
	}
	tr := telemetry.Track("auth.resolve_session")
	defer tr.Finish()

	s, err := g.sessions.Get(id)
	if err != nil {
		if se, ok := IsSessionError(err); ok {
			logger.Debug("session_rejected", "reason", se.Type, "path", router.GetPath(ctx))
			ClearSessionCookie(ctx, g.cfg.CookieSecure)
		} else {
			logger.Error("session_lookup_failed", "error", err)
		}
		return Session{}, false
	}
	ctx.SetUserValue(sessionValue, s)
	return s, true
}

// SessionFrom returns the session the gateway attached to ctx.
func SessionFrom(ctx *fasthttp.RequestCtx) (Session, bool) {
	s, ok := ctx.UserValue(sessionValue).(Session)
	return s, ok
}

// RoleFrom returns the role the gateway resolved.
func RoleFrom(ctx *fasthttp.RequestCtx) Role {
	r, _ := ctx.UserValue(roleValue).(Role)
	return r
}

// RequirePage redirects anonymous callers to /login.
func RequirePage(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if _, ok := SessionFrom(ctx); !ok {
			ctx.Redirect("/login", fasthttp.StatusFound)
			return
		}
		next(ctx)
	}
}

// RequireAPI answers anonymous callers with 401 JSON.
func RequireAPI(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if _, ok := SessionFrom(ctx); !ok {
			router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, "unauthorized")
			logger.Warn("request_unauthorized", "path", router.GetPath(ctx), "remote", ctx.RemoteAddr().String())
			return
		}
		next(ctx)
	}
}

// RequireAdmin only lets admin API keys through.
func RequireAdmin(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if RoleFrom(ctx) != RoleAdmin {
			router.WriteJSONError(ctx, fasthttp.StatusForbidden, "admin api key required")
			logger.Warn("admin_route_violation", "path", router.GetPath(ctx), "remote", ctx.RemoteAddr().String())
			return
		}
		next(ctx)
	}
}

// SetSessionCookie stores s in the response cookie.
func SetSessionCookie(ctx *fasthttp.RequestCtx, s Session, secure bool) {
	c := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(c)
	c.SetKey(CookieName)
	c.SetValue(s.ID)
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetSecure(secure)
	c.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	c.SetExpire(s.ExpiresAt)
	ctx.Response.Header.SetCookie(c)
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(ctx *fasthttp.RequestCtx, secure bool) {
	c := fasthttp.AcquireCookie()
	defer fasthttp.ReleaseCookie(c)
	c.SetKey(CookieName)
	c.SetValue("")
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetSecure(secure)
	c.SetExpire(time.Unix(0, 0))
	ctx.Response.Header.SetCookie(c)
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}

func publicAllowedPath(ctx *fasthttp.RequestCtx) bool {
	path := router.GetPath(ctx)
	method := string(ctx.Method())
	return (path == "/healthz" || path == "/readyz") && method == fasthttp.MethodGet
}
