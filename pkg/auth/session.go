package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"wolfie/pkg/logger"
	"wolfie/pkg/store"
)

// CookieName is the session cookie.
const CookieName = "wolfie_session"

const sessionPrefix = "session:"

// DefaultSessionTTL applies when SecConfig.SessionTTL is zero.
const DefaultSessionTTL = 12 * time.Hour

// SessionError is a sign-in or session lookup failure with its HTTP status.
type SessionError struct {
	Type    string
	Message string
	Code    int
}

func (e *SessionError) Error() string { return e.Message }

var (
	ErrUserRequired     = &SessionError{"user_required", "user id required", fasthttp.StatusBadRequest}
	ErrUserTooLong      = &SessionError{"user_too_long", "user id too long", fasthttp.StatusBadRequest}
	ErrUserInvalid      = &SessionError{"user_invalid", "user id contains invalid characters", fasthttp.StatusBadRequest}
	ErrInvalidSignature = &SessionError{"invalid_signature", "missing or invalid signature", fasthttp.StatusUnauthorized}
	ErrNoSession        = &SessionError{"no_session", "unauthorized", fasthttp.StatusUnauthorized}
	ErrSessionExpired   = &SessionError{"session_expired", "session expired", fasthttp.StatusUnauthorized}
)

// Session is a signed-in user.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FirstName string    `json:"first_name"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether s is past its expiry at now.
func (s Session) Expired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// Sessions keeps sessions in the store.
type Sessions struct {
	db  *store.Store
	ttl time.Duration
	now func() time.Time
}

// NewSessions returns a session manager. ttl <= 0 uses DefaultSessionTTL.
func NewSessions(db *store.Store, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{db: db, ttl: ttl, now: time.Now}
}

// TTL returns the session lifetime.
func (m *Sessions) TTL() time.Duration { return m.ttl }

func sessionKey(id string) string { return sessionPrefix + id }

// Create starts a session for userID.
func (m *Sessions) Create(userID, firstName string) (Session, error) {
	if err := ValidateUserID(userID); err != nil {
		return Session{}, err
	}
	now := m.now().UTC()
	s := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		FirstName: firstName,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.db.PutJSON(sessionKey(s.ID), s); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}
	logger.Info("session_created", "user", userID, "expires_at", s.ExpiresAt)
	return s, nil
}

// Get returns a live session. Expired sessions are deleted on sight.
func (m *Sessions) Get(id string) (Session, error) {
	if id == "" {
		return Session{}, ErrNoSession
	}
	var s Session
	if err := m.db.GetJSON(sessionKey(id), &s); err != nil {
		if store.IsNotFound(err) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	if s.Expired(m.now()) {
		_ = m.db.Delete(sessionKey(id))
		return Session{}, ErrSessionExpired
	}
	return s, nil
}

// Delete ends a session. Unknown ids are ignored.
func (m *Sessions) Delete(id string) error {
	if id == "" {
		return nil
	}
	return m.db.Delete(sessionKey(id))
}

// PurgeExpired removes every session that expired before now and returns
// how many were removed.
func (m *Sessions) PurgeExpired(now time.Time) (int, error) {
	expired, err := m.expiredKeys(now)
	if err != nil {
		return 0, err
	}
	if err := m.db.DeleteKeys(expired); err != nil {
		return 0, err
	}
	return len(expired), nil
}

// CountExpired reports how many sessions PurgeExpired would remove.
func (m *Sessions) CountExpired(now time.Time) (int, error) {
	expired, err := m.expiredKeys(now)
	return len(expired), err
}

func (m *Sessions) expiredKeys(now time.Time) ([]string, error) {
	var expired []string
	err := m.db.Scan(sessionPrefix, func(key string, value []byte) error {
		var s Session
		if err := json.Unmarshal(value, &s); err != nil {
			logger.Warn("session_corrupt", "key", key, "error", err)
			expired = append(expired, key)
			return nil
		}
		if s.Expired(now) {
			expired = append(expired, key)
		}
		return nil
	})
	return expired, err
}

// IsSessionError reports whether err is a SessionError and returns it.
func IsSessionError(err error) (*SessionError, bool) {
	var se *SessionError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
