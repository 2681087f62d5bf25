package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iruldev/gatewaycore/internal/ctxutil"
)

func TestTokenBucketAllowsUpToCapacityThenBlocks(t *testing.T) {
	b := &TokenBucket{tokens: 2, capacity: 2, refillRate: 0, lastRefill: time.Unix(0, 0)}

	now := time.Unix(0, 0)
	assert.True(t, b.Allow(now))
	assert.True(t, b.Allow(now))
	assert.False(t, b.Allow(now), "bucket must reject once tokens are exhausted")
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	b := &TokenBucket{tokens: 0, capacity: 5, refillRate: 1, lastRefill: time.Unix(0, 0)}

	assert.False(t, b.Allow(time.Unix(0, 0)))
	assert.True(t, b.Allow(time.Unix(2, 0)), "2 seconds at 1 token/sec should refill enough for one request")
}

func TestInMemoryRateLimiterTracksBucketsPerKey(t *testing.T) {
	l := NewInMemoryRateLimiter(0, 1)
	now := time.Unix(0, 0)

	assert.True(t, l.Allow("a", now))
	assert.False(t, l.Allow("a", now), "second request for the same key must be blocked")
	assert.True(t, l.Allow("b", now), "a distinct key must have its own independent bucket")
}

func TestIPKeyExtractorPrefersClientIPFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	req = req.WithContext(ctxutil.WithClientIP(req.Context(), "203.0.113.1"))

	assert.Equal(t, "203.0.113.1", IPKeyExtractor(req))
}

func TestIPKeyExtractorFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	assert.Equal(t, "10.0.0.1:1234", IPKeyExtractor(req))
}

func TestUserIDKeyExtractorPrefersSubjectOverIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(ctxutil.WithClaims(req.Context(), ctxutil.Claims{Subject: "user-1"}))

	assert.Equal(t, "user-1", UserIDKeyExtractor(req))
}

func TestRateLimiterMiddlewareRejectsOverLimitRequests(t *testing.T) {
	limiter := NewInMemoryRateLimiter(0, 1)
	h := RateLimiter(limiter, func(r *http.Request) string { return "fixed-key" }, false)(okHandler())

	rec1 := httptest.NewRecorder()
	h.ServeHTTP(rec1, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec2.Code)
	assert.Equal(t, "1", rec2.Header().Get("Retry-After"))
}
