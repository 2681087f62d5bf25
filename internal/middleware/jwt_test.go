package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iruldev/gatewaycore/internal/ctxutil"
)

var primarySecret = []byte("0123456789abcdef0123456789abcdef")
var deprecatedSecret = []byte("fedcba9876543210fedcba9876543210")

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestNewJWTAuthenticatorRejectsShortKeys(t *testing.T) {
	_, err := NewJWTAuthenticator(JWTConfig{Keys: []SigningKey{{Secret: []byte("short")}}})
	assert.Error(t, err)
}

func TestNewJWTAuthenticatorRequiresAtLeastOneKey(t *testing.T) {
	_, err := NewJWTAuthenticator(JWTConfig{})
	assert.Error(t, err)
}

func TestAuthenticateAcceptsPrimaryKeyToken(t *testing.T) {
	auth, err := NewJWTAuthenticator(JWTConfig{Keys: []SigningKey{{Secret: primarySecret}}})
	require.NoError(t, err)

	token := signToken(t, primarySecret, jwt.MapClaims{"sub": "user-1", "roles": []any{"admin"}})
	claims, err := auth.Authenticate(token, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, []string{"admin"}, claims.Roles)
	assert.False(t, claims.UsedDeprecatedKey)
}

func TestAuthenticateFallsBackToDeprecatedKeyWithinGracePeriod(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	auth, err := NewJWTAuthenticator(JWTConfig{Keys: []SigningKey{
		{Secret: primarySecret},
		{Secret: deprecatedSecret, Deprecated: true, ExpiresAt: now.Add(time.Hour)},
	}})
	require.NoError(t, err)

	token := signToken(t, deprecatedSecret, jwt.MapClaims{"sub": "user-2"})
	claims, err := auth.Authenticate(token, now)
	require.NoError(t, err)
	assert.Equal(t, "user-2", claims.Subject)
	assert.True(t, claims.UsedDeprecatedKey, "a token verified by the deprecated key must be flagged")
}

func TestAuthenticateRejectsDeprecatedKeyPastGracePeriod(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	auth, err := NewJWTAuthenticator(JWTConfig{Keys: []SigningKey{
		{Secret: primarySecret},
		{Secret: deprecatedSecret, Deprecated: true, ExpiresAt: now.Add(-time.Hour)},
	}})
	require.NoError(t, err)

	token := signToken(t, deprecatedSecret, jwt.MapClaims{"sub": "user-2"})
	_, err = auth.Authenticate(token, now)
	assert.Error(t, err, "a deprecated key past its grace period must not verify tokens")
}

func TestAuthenticateRejectsTokenSignedByUnknownKey(t *testing.T) {
	auth, err := NewJWTAuthenticator(JWTConfig{Keys: []SigningKey{{Secret: primarySecret}}})
	require.NoError(t, err)

	token := signToken(t, []byte("not-a-configured-key-not-a-configured-key"), jwt.MapClaims{"sub": "user-3"})
	_, err = auth.Authenticate(token, time.Now())
	assert.Error(t, err)
}

func TestJWTAuthMiddlewareRejectsMissingAuthorizationHeader(t *testing.T) {
	auth, err := NewJWTAuthenticator(JWTConfig{Keys: []SigningKey{{Secret: primarySecret}}})
	require.NoError(t, err)

	called := false
	h := JWTAuth(auth, nil, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestJWTAuthMiddlewareAttachesClaimsOnSuccess(t *testing.T) {
	auth, err := NewJWTAuthenticator(JWTConfig{Keys: []SigningKey{{Secret: primarySecret}}})
	require.NoError(t, err)

	var gotSubject string
	h := JWTAuth(auth, nil, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := ctxutil.ClaimsFromContext(r.Context())
		gotSubject = claims.Subject
		w.WriteHeader(http.StatusOK)
	}))

	token := signToken(t, primarySecret, jwt.MapClaims{"sub": "user-9"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-9", gotSubject)
}

func TestJWTAuthMiddlewareWarnsWhenDeprecatedKeyUsed(t *testing.T) {
	// JWTAuth calls Authenticate with the real clock, so the grace period
	// must extend past the actual wall-clock time, not a fixed test time.
	auth, err := NewJWTAuthenticator(JWTConfig{Keys: []SigningKey{
		{Secret: primarySecret},
		{Secret: deprecatedSecret, Deprecated: true, ExpiresAt: time.Now().Add(time.Hour)},
	}})
	require.NoError(t, err)

	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)

	h := JWTAuth(auth, log, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	token := signToken(t, deprecatedSecret, jwt.MapClaims{"sub": "user-2"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, logs.Len(), "verifying a deprecated key must emit exactly one warning record")
	assert.Contains(t, logs.All()[0].Message, "deprecated")
}
