package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/iruldev/gatewaycore/internal/contract"
	"github.com/iruldev/gatewaycore/internal/ctxutil"
	"github.com/iruldev/gatewaycore/internal/gwerrors"
)

// MinSecretKeyLength mirrors internal/interface/http/middleware/jwt.go's
// MinSecretKeyLength.
const MinSecretKeyLength = 32

// SigningKey is one verification key, with an optional expiry for
// deprecated keys (spec §4.2: "primary + deprecated with grace period").
type SigningKey struct {
	Secret     []byte
	Deprecated bool
	ExpiresAt  time.Time // zero means no expiry
}

// JWTConfig mirrors internal/interface/http/middleware/jwt.go's JWTConfig,
// extended with multiple keys per spec §4.2/property 9.
type JWTConfig struct {
	Keys     []SigningKey // Keys[0] is tried first (the primary key)
	Issuer   string
	Audience string
}

// JWTAuthenticator verifies bearer tokens against the configured key set,
// grounded on internal/interface/http/middleware/jwt.go's JWTAuthenticator
// (buildParserOptions restricting to HS256, jwt.MapClaims -> ctxutil.Claims
// mapping), extended to try each non-expired deprecated key in turn and
// record ctxutil.Claims.UsedDeprecatedKey, matching spec §4.2/property 9.
type JWTAuthenticator struct {
	cfg JWTConfig
}

// NewJWTAuthenticator builds a JWTAuthenticator. Each key shorter than
// MinSecretKeyLength is rejected at construction (fail fast, mirroring the
// teacher's validation-at-startup style).
func NewJWTAuthenticator(cfg JWTConfig) (*JWTAuthenticator, error) {
	if len(cfg.Keys) == 0 {
		return nil, errors.New("jwt: at least one signing key is required")
	}
	for i, k := range cfg.Keys {
		if len(k.Secret) < MinSecretKeyLength {
			return nil, errors.New("jwt: signing key " + strconv.Itoa(i) + " shorter than minimum length")
		}
	}
	return &JWTAuthenticator{cfg: cfg}, nil
}

func (a *JWTAuthenticator) buildParserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	return opts
}

// Authenticate verifies tokenString against the primary key, then each
// non-expired deprecated key in order, returning the first success. It
// returns an error if every key fails.
func (a *JWTAuthenticator) Authenticate(tokenString string, now time.Time) (ctxutil.Claims, error) {
	var lastErr error
	for _, key := range a.cfg.Keys {
		if key.Deprecated && !key.ExpiresAt.IsZero() && now.After(key.ExpiresAt) {
			continue // deprecated key past its grace period, spec property 9
		}
		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
			return key.Secret, nil
		}, a.buildParserOptions()...)
		if err != nil || !token.Valid {
			lastErr = err
			continue
		}
		return mapClaimsOf(claims, key.Deprecated), nil
	}
	if lastErr == nil {
		lastErr = errors.New("jwt: no signing key verified the token")
	}
	return ctxutil.Claims{}, lastErr
}

func mapClaimsOf(mc jwt.MapClaims, usedDeprecated bool) ctxutil.Claims {
	c := ctxutil.Claims{UsedDeprecatedKey: usedDeprecated, Metadata: map[string]any{}}
	if sub, ok := mc["sub"].(string); ok {
		c.Subject = sub
	}
	if roles, ok := mc["roles"].([]any); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				c.Roles = append(c.Roles, s)
			}
		}
	}
	if perms, ok := mc["permissions"].([]any); ok {
		for _, p := range perms {
			if s, ok := p.(string); ok {
				c.Permissions = append(c.Permissions, s)
			}
		}
	}
	for k, v := range mc {
		switch k {
		case "sub", "roles", "permissions", "iss", "aud", "exp", "iat", "nbf":
			continue
		default:
			c.Metadata[k] = v
		}
	}
	return c
}

// JWTAuth builds the JWT-auth middleware: 401 on missing, malformed, or
// invalid credentials (spec §4.2). It emits a warning record when a
// deprecated key verified the token, per spec §4.2.
func JWTAuth(auth *JWTAuthenticator, log *zap.Logger, production bool) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if authHeader == "" || !strings.HasPrefix(authHeader, prefix) {
				writeAuthError(w, r, "missing or malformed Authorization header", production)
				return
			}
			tokenString := strings.TrimPrefix(authHeader, prefix)

			claims, err := auth.Authenticate(tokenString, time.Now())
			if err != nil {
				writeAuthError(w, r, "invalid credentials", production)
				return
			}

			if claims.UsedDeprecatedKey {
				log.Warn("jwt token verified with a deprecated signing key",
					zap.String("requestId", ctxutil.RequestID(r.Context())),
					zap.String("subject", claims.Subject),
				)
			}

			ctx := ctxutil.WithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAuthError(w http.ResponseWriter, r *http.Request, msg string, production bool) {
	ge := gwerrors.New("jwt_auth", gwerrors.KindAuth, gwerrors.CodeUnauthorized, msg, nil)
	contract.WriteError(w, r.Context(), ge, time.Now(), production)
}
