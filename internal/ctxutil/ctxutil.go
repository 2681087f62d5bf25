// Package ctxutil carries request-scoped values (request id, sanitized
// client IP, auth claims, a middleware scratch bag) the way the teacher's
// internal/ctxutil and internal/transport/http/ctxutil packages do: unexported
// key types per concern, a get/set accessor pair per key.
package ctxutil

import (
	"context"
	"sync"
)

type (
	requestIDKey struct{}
	clientIPKey  struct{}
	claimsKey    struct{}
	bagKey       struct{}
)

// Claims is the authenticated-principal payload attached by the JWT or
// API-key middleware, mirroring transport/http/ctxutil/claims.go.
type Claims struct {
	Subject     string
	Roles       []string
	Permissions []string
	APIKeyID    string
	Metadata    map[string]any

	// UsedDeprecatedKey is set by the JWT authenticator when the token
	// verified against a non-primary (deprecated, non-expired) signing key.
	UsedDeprecatedKey bool
}

// WithRequestID attaches the request id to ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request id, or "" if none was attached.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey{}).(string)
	return v
}

// WithClientIP attaches the sanitized client IP to ctx.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// ClientIP returns the sanitized client IP, or "" if none was attached.
func ClientIP(ctx context.Context) string {
	v, _ := ctx.Value(clientIPKey{}).(string)
	return v
}

// WithClaims attaches authenticated principal claims to ctx.
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the attached Claims and whether any were present.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	v, ok := ctx.Value(claimsKey{}).(Claims)
	return v, ok
}

// Bag is the mutable key-value map the Middleware Chain threads downstream
// (spec §4.2: "a mutable key-value map for downstream stages"). It is safe
// for concurrent use because a single request's middlewares execute
// sequentially, but hook goroutines spawned by advisory callbacks may still
// read it, hence the mutex.
type Bag struct {
	mu   sync.Mutex
	data map[string]any
}

// WithBag attaches a fresh Bag to ctx, returning the new context and the bag
// so callers can populate it without a context lookup.
func WithBag(ctx context.Context) (context.Context, *Bag) {
	b := &Bag{data: make(map[string]any)}
	return context.WithValue(ctx, bagKey{}, b), b
}

// BagFromContext returns the request's Bag, or nil if none was attached.
func BagFromContext(ctx context.Context) *Bag {
	b, _ := ctx.Value(bagKey{}).(*Bag)
	return b
}

// Set stores a value under key.
func (b *Bag) Set(key string, value any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
}

// Get retrieves the value stored under key.
func (b *Bag) Get(key string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	return v, ok
}
