package api

import (
	"strings"

	"github.com/valyala/fasthttp"

	"wolfie/pkg/auth"
	"wolfie/pkg/logger"
	"wolfie/pkg/router"
	"wolfie/pkg/telemetry"
)

type LoginRequest struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	Signature string `json:"signature"`
}

type LoginResponse struct {
	RedirectURL string `json:"redirectUrl"`
	UserID      string `json:"userId"`
	FirstName   string `json:"firstName"`
	ExpiresAt   string `json:"expiresAt"`
}

// LoginInfo tells the client how to sign in. Signed-in users go straight to
// the dashboard.
func (a *API) LoginInfo(ctx *fasthttp.RequestCtx) {
	if _, ok := auth.SessionFrom(ctx); ok {
		ctx.Redirect("/dashboard", fasthttp.StatusFound)
		return
	}
	_ = router.WriteJSON(ctx, map[string]any{
		"title":       "Sign in to Wolfie",
		"method":      "POST",
		"action":      "/login",
		"fields":      []string{"userId", "firstName", "signature"},
		"redirectUrl": "/dashboard",
		"backUrl":     "/",
	})
}

// Login exchanges a signed user id for a session cookie.
func (a *API) Login(ctx *fasthttp.RequestCtx) {
	tr := telemetry.Track("api.login")
	defer tr.Finish()

	var req LoginRequest
	if !router.DecodeJSONBody(ctx, &req) {
		logins.WithLabelValues("bad_request").Inc()
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if err := auth.ValidateUserID(req.UserID); err != nil {
		logins.WithLabelValues("bad_request").Inc()
		router.WriteJSONError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}

	tr.Mark("verify_signature")
	if !auth.VerifyHMACSignature(req.UserID, strings.TrimSpace(req.Signature), a.d.SigningKeys) {
		logins.WithLabelValues("rejected").Inc()
		logger.Warn("login_rejected", "reason", "invalid_signature", "remote", router.ClientIP(ctx))
		router.WriteJSONError(ctx, fasthttp.StatusUnauthorized, auth.ErrInvalidSignature.Error())
		return
	}

	tr.Mark("create_session")
	s, err := a.d.Sessions.Create(req.UserID, strings.TrimSpace(req.FirstName))
	if err != nil {
		logins.WithLabelValues("error").Inc()
		logger.Error("session_create_failed", "error", err)
		router.WriteJSONError(ctx, fasthttp.StatusInternalServerError, "failed to create session")
		return
	}
	auth.SetSessionCookie(ctx, s, a.d.CookieSecure)
	logins.WithLabelValues("ok").Inc()
	logger.AuditInfo("login", "user_id", s.UserID, "remote", router.ClientIP(ctx))

	_ = router.WriteJSON(ctx, LoginResponse{
		RedirectURL: "/dashboard",
		UserID:      s.UserID,
		FirstName:   s.FirstName,
		ExpiresAt:   s.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

// SignOut ends the session if there is one and tells the client where to go.
func (a *API) SignOut(ctx *fasthttp.RequestCtx) {
	a.endSession(ctx)
	_ = router.WriteJSON(ctx, map[string]string{"redirectUrl": "/login"})
}

// SignOutRedirect is the link form of SignOut.
func (a *API) SignOutRedirect(ctx *fasthttp.RequestCtx) {
	a.endSession(ctx)
	ctx.Redirect(a.d.PublicURL+"/login", fasthttp.StatusFound)
}

func (a *API) endSession(ctx *fasthttp.RequestCtx) {
	if s, ok := auth.SessionFrom(ctx); ok {
		if a.d.Chats != nil {
			a.d.Chats.Drop(s.ID)
		}
		if err := a.d.Sessions.Delete(s.ID); err != nil {
			logger.Error("session_delete_failed", "error", err)
		}
		logger.AuditInfo("logout", "user_id", s.UserID)
	}
	auth.ClearSessionCookie(ctx, a.d.CookieSecure)
}
