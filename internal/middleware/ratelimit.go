package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/httprate"

	"github.com/iruldev/gatewaycore/internal/contract"
	"github.com/iruldev/gatewaycore/internal/ctxutil"
	"github.com/iruldev/gatewaycore/internal/gwerrors"
)

// KeyExtractor derives the rate-limit bucket key from a request, mirroring
// internal/interface/http/middleware/ratelimit.go's
// IPKeyExtractor/UserIDKeyExtractor.
type KeyExtractor func(r *http.Request) string

// IPKeyExtractor buckets by the sanitized client IP (§4.9).
func IPKeyExtractor(r *http.Request) string {
	if ip := ctxutil.ClientIP(r.Context()); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// UserIDKeyExtractor buckets by authenticated subject, falling back to IP
// for anonymous requests.
func UserIDKeyExtractor(r *http.Request) string {
	if claims, ok := ctxutil.ClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		return claims.Subject
	}
	return IPKeyExtractor(r)
}

// TokenBucket is a single caller's rate-limit bucket, grounded on
// internal/interface/http/middleware/ratelimit.go's TokenBucket.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	lastRefill time.Time
}

// Allow reports whether one token is available, refilling first.
func (b *TokenBucket) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = minFloat(b.capacity, b.tokens+elapsed*b.refillRate)
		b.lastRefill = now
	}
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// InMemoryRateLimiter buckets callers by KeyExtractor, grounded on
// internal/interface/http/middleware/ratelimit.go's InMemoryRateLimiter.
// Buckets live in a mutex-guarded map; idle buckets are never removed.
type InMemoryRateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*TokenBucket
	capacity float64
	rate     float64
}

// NewInMemoryRateLimiter builds a limiter allowing rate requests/sec with
// burst capacity.
func NewInMemoryRateLimiter(rate, capacity float64) *InMemoryRateLimiter {
	return &InMemoryRateLimiter{buckets: make(map[string]*TokenBucket), capacity: capacity, rate: rate}
}

func (l *InMemoryRateLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &TokenBucket{tokens: l.capacity, capacity: l.capacity, refillRate: l.rate, lastRefill: now}
		l.buckets[key] = b
	}
	l.mu.Unlock()
	return b.Allow(now)
}

// RateLimiter builds rate-limit middleware backed by an InMemoryRateLimiter
// (spec §4.2: "external store; policy and store type ... out of scope
// here" — the gateway core still needs a default in-process store so the
// chain is runnable standalone).
func RateLimiter(limiter *InMemoryRateLimiter, keyFn KeyExtractor, production bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if !limiter.Allow(key, time.Now()) {
				ge := gwerrors.New("rate_limiter", gwerrors.KindPolicy, gwerrors.CodeRateLimited, "rate limit exceeded", nil)
				w.Header().Set("Retry-After", "1")
				contract.WriteError(w, r.Context(), ge, time.Now(), production)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HTTPRateLimiter is an alternate rate-limit backend using
// github.com/go-chi/httprate, grounded on
// internal/transport/http/middleware/ratelimit.go's httprate wiring. Kept
// alongside InMemoryRateLimiter as a selectable alternative, mirroring the
// teacher's own two parallel rate-limit implementations.
func HTTPRateLimiter(requestsPerWindow int, window time.Duration, keyFn KeyExtractor) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerWindow,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return keyFn(r), nil
		}),
	)
}
