// Package middleware implements the Middleware Chain (spec §4.2): request
// id propagation, size limiting, input validation, JWT/API-key auth, CORS,
// rate limiting, security headers, and the outermost error handler.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/iruldev/gatewaycore/internal/ctxutil"
)

// HeaderRequestID is the inbound/outbound header name, matching
// internal/interface/http/middleware/requestid.go.
const HeaderRequestID = "X-Request-ID"

// RequestID attaches a request-scoped id (generated if X-Request-ID is
// absent, per spec §4.2) and a fresh ctxutil.Bag to the request context,
// then echoes the id on the response. Grounded on
// internal/interface/http/middleware/requestid.go's UUID generation merged
// with internal/transport/http/middleware/requestid.go's propagation style.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" {
			id = uuid.New().String()
		}

		ctx := ctxutil.WithRequestID(r.Context(), id)
		ctx, _ = ctxutil.WithBag(ctx)

		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
