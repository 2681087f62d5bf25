package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/iruldev/gatewaycore/internal/ctxutil"
	"github.com/iruldev/gatewaycore/internal/gwerrors"
)

// KeyInfo is what a successful API-key validation yields, mirroring
// internal/interface/http/middleware/apikey.go's KeyInfo.
type KeyInfo struct {
	ServiceID string
}

// KeyValidator is the pluggable API-key verification strategy, grounded on
// internal/interface/http/middleware/apikey.go's KeyValidator interface.
type KeyValidator interface {
	Validate(ctx context.Context, key string) (*KeyInfo, error)
}

// MapKeyValidator is a literal allow-list validator, grounded on
// internal/interface/http/middleware/apikey.go's MapKeyValidator, useful
// for tests and small static deployments.
type MapKeyValidator map[string]string // key -> serviceID

func (m MapKeyValidator) Validate(_ context.Context, key string) (*KeyInfo, error) {
	serviceID, ok := m[key]
	if !ok {
		return nil, errInvalidAPIKey
	}
	return &KeyInfo{ServiceID: serviceID}, nil
}

// EnvKeyValidator parses a "key:service_id,key2:service_id2" string,
// mirroring internal/interface/http/middleware/apikey.go's EnvKeyValidator.
func EnvKeyValidator(raw string) MapKeyValidator {
	m := make(MapKeyValidator)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		m[parts[0]] = parts[1]
	}
	return m
}

var errInvalidAPIKey = gwerrors.New("apikey_auth", gwerrors.KindAuth, gwerrors.CodeUnauthorized, "invalid API key", nil)

// HeaderAPIKey is the inbound header name carrying the API key.
const HeaderAPIKey = "X-API-Key"

// APIKeyAuth builds the API-key-auth middleware (spec §4.2: "API-key mode
// accepts a literal allow-list or a custom validation callback").
func APIKeyAuth(validator KeyValidator, production bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderAPIKey)
			if key == "" {
				writeAuthError(w, r, "missing API key", production)
				return
			}
			info, err := validator.Validate(r.Context(), key)
			if err != nil || info == nil {
				writeAuthError(w, r, "invalid API key", production)
				return
			}
			claims := ctxutil.Claims{APIKeyID: info.ServiceID}
			ctx := ctxutil.WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
