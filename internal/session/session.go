// Package session guards the admin surface with a single shared password and
// a stateless, HMAC-signed session cookie.
package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// CookieName is the session cookie carrying the token.
const CookieName = "cms_session"

// DefaultTTL is the fixed session lifetime. Sessions are never refreshed.
const DefaultTTL = 24 * time.Hour

var ErrSecretNotConfigured = errors.New("session secret is not configured")

// Config holds the guard's credentials and cookie settings.
type Config struct {
	Password     string
	Secret       string
	TTL          time.Duration
	SecureCookie bool
}

// Guard verifies the admin password and issues/validates session tokens.
// It is safe for concurrent use.
type Guard struct {
	password     string
	secret       []byte
	ttl          time.Duration
	secureCookie bool
	now          func() time.Time
}

// NewGuard creates a Guard. A zero TTL means DefaultTTL.
func NewGuard(cfg Config) *Guard {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{
		password:     cfg.Password,
		secret:       []byte(cfg.Secret),
		ttl:          ttl,
		secureCookie: cfg.SecureCookie,
		now:          time.Now,
	}
}

// WithClock returns a copy of g reading time from now.
func (g *Guard) WithClock(now func() time.Time) *Guard {
	c := *g
	c.now = now
	return &c
}

// VerifyPassword reports whether candidate matches the configured password.
// An unset password never matches. A configured bcrypt hash is checked
// with bcrypt; anything else is compared in constant time.
func (g *Guard) VerifyPassword(candidate string) bool {
	if g.password == "" || candidate == "" {
		return false
	}
	if isBcryptHash(g.password) {
		return bcrypt.CompareHashAndPassword([]byte(g.password), []byte(candidate)) == nil
	}
	if len(candidate) != len(g.password) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(g.password)) == 1
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// CreateToken returns "<unix-millis>:<hex hmac-sha256(secret, unix-millis)>".
func (g *Guard) CreateToken() (string, error) {
	if len(g.secret) == 0 {
		return "", ErrSecretNotConfigured
	}
	ts := strconv.FormatInt(g.now().UnixMilli(), 10)
	return ts + ":" + g.sign(ts), nil
}

// VerifyToken reports whether token is well formed, signed with the
// configured secret and no older than the TTL. It fails closed.
func (g *Guard) VerifyToken(token string) bool {
	if len(g.secret) == 0 {
		return false
	}

	parts := strings.Split(token, ":")
	if len(parts) != 2 {
		return false
	}
	ts, mac := parts[0], parts[1]

	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if g.now().UnixMilli()-issued >= g.ttl.Milliseconds() {
		return false
	}

	expected := g.sign(ts)
	if len(mac) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(mac), []byte(expected)) == 1
}

func (g *Guard) sign(ts string) string {
	h := hmac.New(sha256.New, g.secret)
	h.Write([]byte(ts))
	return hex.EncodeToString(h.Sum(nil))
}

// IsAuthenticated reports whether r carries a valid session cookie.
func (g *Guard) IsAuthenticated(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return false
	}
	return g.VerifyToken(c.Value)
}

// SetCookie writes the session cookie for token.
func (g *Guard) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(g.ttl.Seconds()),
		HttpOnly: true,
		Secure:   g.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

// ClearCookie expires the session cookie.
func (g *Guard) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   g.secureCookie,
		SameSite: http.SameSiteStrictMode,
	})
}

// GenerateSecret returns 32 random bytes hex-encoded, suitable for CMS_SESSION_SECRET.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}
