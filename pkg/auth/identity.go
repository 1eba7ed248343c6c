package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// caller role
type Role int

const (
	RoleUnauth Role = iota
	RoleUser
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAdmin:
		return "admin"
	default:
		return "unauth"
	}
}

// security config
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	AdminKeys      map[string]struct{}
	// SigningKeys verify the signature the identity provider hands out with
	// a user id. Any key in the set is accepted so keys can be rotated.
	SigningKeys  map[string]struct{}
	SessionTTL   time.Duration
	CookieSecure bool
	// PublicURL prefixes redirect targets.
	PublicURL string
}

// CreateHMACSignature returns hex(HMAC-SHA256(userID, key)).
func CreateHMACSignature(userID, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(userID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHMACSignature checks signature against every signing key.
func VerifyHMACSignature(userID, signature string, keys map[string]struct{}) bool {
	signature = strings.ToLower(strings.TrimSpace(signature))
	if userID == "" || signature == "" {
		return false
	}
	for k := range keys {
		expected := CreateHMACSignature(userID, k)
		if hmac.Equal([]byte(expected), []byte(signature)) {
			return true
		}
	}
	return false
}

// ValidateUserID rejects ids the session store cannot key on.
func ValidateUserID(id string) error {
	switch {
	case id == "":
		return ErrUserRequired
	case len(id) > 128:
		return ErrUserTooLong
	case strings.ContainsAny(id, ":\x00"):
		return ErrUserInvalid
	}
	return nil
}
