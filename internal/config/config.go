// Package config loads process-level gateway configuration from the
// environment, grounded on internal/infra/config/config.go's
// envconfig-tagged struct + Validate()/Redacted()/IsDevelopment() idiom.
package config

import (
	"fmt"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config is the gateway's process-level configuration: everything that
// comes from the environment rather than the declarative routes file
// (internal/routespec). Mirrors the teacher's single flat envconfig struct.
type Config struct {
	Env         string `envconfig:"ENV" default:"development"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"gatewaycore"`

	Hostname string `envconfig:"HOSTNAME" default:"0.0.0.0"`
	Port     int    `envconfig:"PORT" default:"8080"`

	TLSEnabled   bool   `envconfig:"TLS_ENABLED" default:"false"`
	TLSCertFile  string `envconfig:"TLS_CERT_FILE"`
	TLSKeyFile   string `envconfig:"TLS_KEY_FILE"`
	TLSRedirectPort int `envconfig:"TLS_REDIRECT_PORT" default:"0"`

	RoutesFile string `envconfig:"ROUTES_FILE" default:"routes.yaml"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	HealthPath  string `envconfig:"HEALTH_PATH" default:"/health"`
	MetricsPath string `envconfig:"METRICS_PATH" default:"/metrics"`
	AdminPath   string `envconfig:"ADMIN_PATH" default:"/admin"`

	ReadTimeoutMs     int `envconfig:"READ_TIMEOUT_MS" default:"10000"`
	WriteTimeoutMs    int `envconfig:"WRITE_TIMEOUT_MS" default:"30000"`
	IdleTimeoutMs     int `envconfig:"IDLE_TIMEOUT_MS" default:"120000"`
	ShutdownGraceMs   int `envconfig:"SHUTDOWN_GRACE_MS" default:"15000"`

	ClusterEnabled          bool `envconfig:"CLUSTER_ENABLED" default:"false"`
	ClusterWorkers          int  `envconfig:"CLUSTER_WORKERS" default:"0"`
	ClusterRespawnThreshold int  `envconfig:"CLUSTER_RESPAWN_THRESHOLD" default:"5"`
	ClusterRespawnWindowMs  int  `envconfig:"CLUSTER_RESPAWN_WINDOW_MS" default:"60000"`
	ClusterMaxRestarts      int  `envconfig:"CLUSTER_MAX_RESTARTS" default:"100"`
	ClusterShutdownMs       int  `envconfig:"CLUSTER_SHUTDOWN_TIMEOUT_MS" default:"15000"`
	ClusterSettleMs         int  `envconfig:"CLUSTER_SETTLE_MS" default:"500"`

	JWTSecretKey      string `envconfig:"JWT_SECRET_KEY"`
	JWTDeprecatedKey  string `envconfig:"JWT_DEPRECATED_KEY"`
	JWTIssuer         string `envconfig:"JWT_ISSUER"`
	JWTAudience       string `envconfig:"JWT_AUDIENCE"`

	APIKeys string `envconfig:"API_KEYS"` // "key:service_id,key2:service_id2"

	TrustedProxyCIDRs string `envconfig:"TRUSTED_PROXY_CIDRS"`
	TrustedProviders  string `envconfig:"TRUSTED_PROXY_PROVIDERS"` // cloudflare,aws,gcp,azure
	MaxForwardedDepth int    `envconfig:"MAX_FORWARDED_DEPTH" default:"1"`

	SessionSweepIntervalMs int `envconfig:"SESSION_SWEEP_INTERVAL_MS" default:"300000"`
}

const MinJWTSecretKeyLength = 32

// Load reads Config from the environment with the "GATEWAY" prefix, matching
// the teacher's envconfig.Process usage.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("GATEWAY", &c); err != nil {
		return nil, fmt.Errorf("config: load: %w", err)
	}
	return &c, nil
}

// Validate fails fast on invalid or missing required combinations, mirroring
// internal/infra/config/config.go's Validate().
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PORT must be in 1-65535, got %d", c.Port)
	}
	if c.TLSEnabled {
		if c.TLSCertFile == "" || c.TLSKeyFile == "" {
			return fmt.Errorf("config: TLS_CERT_FILE and TLS_KEY_FILE are required when TLS_ENABLED=true")
		}
	}
	if c.IsProduction() {
		if c.JWTSecretKey != "" && len(c.JWTSecretKey) < MinJWTSecretKeyLength {
			return fmt.Errorf("config: JWT_SECRET_KEY must be at least %d bytes in production", MinJWTSecretKeyLength)
		}
	}
	if c.ClusterEnabled && c.ClusterWorkers < 0 {
		return fmt.Errorf("config: CLUSTER_WORKERS must be >= 0")
	}
	if c.MaxForwardedDepth < 1 {
		return fmt.Errorf("config: MAX_FORWARDED_DEPTH must be >= 1")
	}
	return nil
}

// IsDevelopment reports whether Env is "development" or "dev".
func (c *Config) IsDevelopment() bool {
	e := strings.ToLower(c.Env)
	return e == "development" || e == "dev"
}

// IsProduction reports whether Env is "production" or "prod".
func (c *Config) IsProduction() bool {
	e := strings.ToLower(c.Env)
	return e == "production" || e == "prod"
}

// Redacted returns a string safe for logging, with secrets masked, mirroring
// internal/infra/config/config.go's Redacted().
func (c *Config) Redacted() string {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***redacted***"
	}
	return fmt.Sprintf(
		"Config{Env:%s Service:%s Hostname:%s Port:%d TLSEnabled:%t RoutesFile:%s "+
			"JWTSecretKey:%s JWTDeprecatedKey:%s APIKeys:%s ClusterEnabled:%t ClusterWorkers:%d}",
		c.Env, c.ServiceName, c.Hostname, c.Port, c.TLSEnabled, c.RoutesFile,
		mask(c.JWTSecretKey), mask(c.JWTDeprecatedKey), mask(c.APIKeys),
		c.ClusterEnabled, c.ClusterWorkers,
	)
}
