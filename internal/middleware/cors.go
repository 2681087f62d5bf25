package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iruldev/gatewaycore/internal/contract"
	"github.com/iruldev/gatewaycore/internal/gwerrors"
)

// CORSConfig is a declarative CORS policy (spec §4.2: "preflight handling
// per configured origin/method/header allow-lists; reject wildcard origin
// combined with credentials"). No CORS middleware exists anywhere in the
// example pack, so this is authored from scratch in the same
// functional-option/declarative-config-struct idiom as
// internal/interface/http/middleware/ratelimit.go's MiddlewareConfig.
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// CORS returns middleware implementing spec §4.2's CORS rules, including
// rejecting a wildcard origin combined with AllowCredentials at
// construction time (a configuration error, not a per-request one).
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	wildcard := containsString(cfg.AllowedOrigins, "*")
	if wildcard && cfg.AllowCredentials {
		panic("middleware: CORS wildcard origin cannot be combined with AllowCredentials")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := wildcard || containsStringFold(cfg.AllowedOrigins, origin)

			if origin != "" && allowed {
				if wildcard && !cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Add("Vary", "Origin")
				}
				if cfg.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				if !allowed {
					writeForbidden(w, r, "origin not allowed")
					return
				}
				if len(cfg.AllowedMethods) > 0 {
					w.Header().Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
				}
				if len(cfg.AllowedHeaders) > 0 {
					w.Header().Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
				}
				if cfg.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int(cfg.MaxAge.Seconds())))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func containsString(ss []string, v string) bool {
	for _, s := range ss {
		if s == v {
			return true
		}
	}
	return false
}

func containsStringFold(ss []string, v string) bool {
	for _, s := range ss {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func writeForbidden(w http.ResponseWriter, r *http.Request, msg string) {
	ge := gwerrors.New("cors", gwerrors.KindAuth, gwerrors.CodeForbidden, msg, nil)
	contract.WriteError(w, r.Context(), ge, time.Now(), false)
}
