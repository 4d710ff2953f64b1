package session

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestVerifyPassword(t *testing.T) {
	g := NewGuard(Config{Password: "hunter2", Secret: testSecret})

	tests := []struct {
		candidate string
		want      bool
	}{
		{"hunter2", true},
		{"hunter3", false},
		{"hunter", false},
		{"hunter22", false},
		{"", false},
		{"HUNTER2", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, g.VerifyPassword(tt.candidate), "candidate %q", tt.candidate)
	}
}

func TestVerifyPassword_Unconfigured(t *testing.T) {
	g := NewGuard(Config{Secret: testSecret})

	assert.False(t, g.VerifyPassword(""))
	assert.False(t, g.VerifyPassword("anything"))
}

func TestVerifyPassword_BcryptHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	g := NewGuard(Config{Password: string(hash), Secret: testSecret})

	assert.True(t, g.VerifyPassword("s3cret"))
	assert.False(t, g.VerifyPassword("s3cre"))
	assert.False(t, g.VerifyPassword(string(hash)))
}

func TestCreateToken_Format(t *testing.T) {
	issued := time.UnixMilli(1760000000123)
	g := NewGuard(Config{Secret: testSecret}).WithClock(fixedClock(issued))

	token, err := g.CreateToken()
	require.NoError(t, err)

	parts := strings.Split(token, ":")
	require.Len(t, parts, 2)
	assert.Equal(t, strconv.FormatInt(issued.UnixMilli(), 10), parts[0])
	assert.Len(t, parts[1], 64)
}

func TestCreateToken_NoSecret(t *testing.T) {
	_, err := NewGuard(Config{Password: "x"}).CreateToken()
	assert.ErrorIs(t, err, ErrSecretNotConfigured)
}

func TestVerifyToken_ExpiryBoundary(t *testing.T) {
	issued := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	g := NewGuard(Config{Secret: testSecret}).WithClock(fixedClock(issued))

	token, err := g.CreateToken()
	require.NoError(t, err)

	assert.True(t, g.VerifyToken(token), "fresh token")
	assert.True(t, g.WithClock(fixedClock(issued.Add(24*time.Hour-time.Second))).VerifyToken(token), "T+24h-1s")
	assert.False(t, g.WithClock(fixedClock(issued.Add(24*time.Hour))).VerifyToken(token), "exactly T+24h")
	assert.False(t, g.WithClock(fixedClock(issued.Add(24*time.Hour+time.Second))).VerifyToken(token), "T+24h+1s")
}

func TestVerifyToken_Tampered(t *testing.T) {
	issued := time.Now()
	g := NewGuard(Config{Secret: testSecret}).WithClock(fixedClock(issued))

	token, err := g.CreateToken()
	require.NoError(t, err)
	ts, mac, _ := strings.Cut(token, ":")

	flipped := []byte(mac)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}

	later := strconv.FormatInt(issued.Add(time.Hour).UnixMilli(), 10)

	tests := map[string]string{
		"flipped hmac char":   ts + ":" + string(flipped),
		"shifted timestamp":   later + ":" + mac,
		"truncated hmac":      ts + ":" + mac[:63],
		"empty":               "",
		"no separator":        ts + mac,
		"extra segment":       token + ":x",
		"non-numeric ts":      "abc:" + mac,
		"other secret":        ts + ":" + NewGuard(Config{Secret: "other"}).sign(ts),
		"non-hex same length": ts + ":" + strings.Repeat("z", 64),
	}
	for name, tok := range tests {
		assert.False(t, g.VerifyToken(tok), name)
	}
}

func TestVerifyToken_NoSecretFailsClosed(t *testing.T) {
	signer := NewGuard(Config{Secret: testSecret})
	token, err := signer.CreateToken()
	require.NoError(t, err)

	assert.False(t, NewGuard(Config{}).VerifyToken(token))
}

func TestCookieLifecycle(t *testing.T) {
	g := NewGuard(Config{Password: "pw", Secret: testSecret, SecureCookie: true})

	token, err := g.CreateToken()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	g.SetCookie(rec, token)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, CookieName, c.Name)
	assert.Equal(t, token, c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, 24*60*60, c.MaxAge)
	assert.Equal(t, "/", c.Path)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/auth/verify", nil)
	req.AddCookie(c)
	assert.True(t, g.IsAuthenticated(req))

	rec = httptest.NewRecorder()
	g.ClearCookie(rec)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, "", cleared[0].Value)
	assert.Less(t, cleared[0].MaxAge, 0)
}

func TestIsAuthenticated_NoCookie(t *testing.T) {
	g := NewGuard(Config{Secret: testSecret})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, g.IsAuthenticated(req))

	req.AddCookie(&http.Cookie{Name: CookieName, Value: "garbage"})
	assert.False(t, g.IsAuthenticated(req))
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret()
	require.NoError(t, err)
	b, err := GenerateSecret()
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}
