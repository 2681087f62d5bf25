package middleware

import (
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/iruldev/gatewaycore/internal/contract"
	"github.com/iruldev/gatewaycore/internal/gwerrors"
)

// ValidatorConfig mirrors spec §4.2's Input Validator heuristics: "best-effort
// ... false positives are acceptable per policy".
type ValidatorConfig struct {
	AllowedPathChars *regexp.Regexp
	Production       bool
}

var (
	defaultAllowedPathChars = regexp.MustCompile(`^[A-Za-z0-9\-._~/%]*$`)

	dotdotPattern = regexp.MustCompile(`(\.\./|\.\.\\|%2e%2e|%2E%2E)`)
	nulPattern    = regexp.MustCompile("\x00|%00")

	sqlInjectionPattern = regexp.MustCompile(`(?i)(\bunion\b.*\bselect\b|\bselect\b.*\bfrom\b|\bdrop\s+table\b|\bor\s+1=1\b|;--|'\s*or\s*')`)
	xssPattern          = regexp.MustCompile(`(?i)(<script\b|javascript:|on\w+\s*=)`)
	cmdInjectionPattern = regexp.MustCompile(`(?i)(\|\||&&|;\s*rm\s|\$\(|` + "`" + `)`)

	headerTokenPattern = regexp.MustCompile(`^[!#$%&'*+\-.^_` + "`" + `|~0-9A-Za-z]+$`)
)

// DefaultValidatorConfig returns the baseline heuristic set.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{AllowedPathChars: defaultAllowedPathChars}
}

// InputValidator rejects requests matching spec §4.2's blocklist: path
// traversal, NUL bytes, disallowed path characters, malformed header
// names/values, and SQL/XSS/command-injection-shaped query parameters.
// Grounded on the teacher's go-playground/validator struct-tag validation
// (internal/transport/http/contract/validation.go) generalized here to
// transport-layer heuristics, since the teacher validates decoded request
// bodies, not raw path/header bytes.
func InputValidator(cfg ValidatorConfig) func(http.Handler) http.Handler {
	allowed := cfg.AllowedPathChars
	if allowed == nil {
		allowed = defaultAllowedPathChars
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if dotdotPattern.MatchString(path) || dotdotPattern.MatchString(r.URL.RawPath) {
				writeValidationError(w, r, "path traversal sequence rejected", cfg.Production)
				return
			}
			if nulPattern.MatchString(path) {
				writeValidationError(w, r, "NUL byte in path rejected", cfg.Production)
				return
			}
			if !allowed.MatchString(path) {
				writeValidationError(w, r, "path contains disallowed characters", cfg.Production)
				return
			}

			for name, values := range r.Header {
				if !headerTokenPattern.MatchString(name) {
					writeValidationError(w, r, "malformed header name rejected", cfg.Production)
					return
				}
				for _, v := range values {
					if strings.ContainsRune(v, 0) {
						writeValidationError(w, r, "malformed header value rejected", cfg.Production)
						return
					}
				}
			}

			for _, values := range r.URL.Query() {
				for _, v := range values {
					if sqlInjectionPattern.MatchString(v) || xssPattern.MatchString(v) || cmdInjectionPattern.MatchString(v) {
						writeValidationError(w, r, "query parameter matched a blocked pattern", cfg.Production)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeValidationError(w http.ResponseWriter, r *http.Request, msg string, production bool) {
	ge := gwerrors.New("input_validator", gwerrors.KindInput, gwerrors.CodeValidationError, msg, nil)
	contract.WriteError(w, r.Context(), ge, time.Now(), production)
}
