// Package routespec loads the declarative route table (spec §6
// "Configuration: Routes") from a YAML file, independent of the
// environment-sourced internal/config.Config — the same config-surface
// split the teacher draws between env-based internal/infra/config and a
// file-based domain config, expressed here with yaml.v3 instead of koanf
// (koanf is imported by the teacher's internal/config but absent from its
// go.mod/go.sum, so it is not a usable grounding source).
package routespec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the top-level shape of the routes YAML document.
type File struct {
	Routes []RouteSpec `yaml:"routes"`
}

// RouteSpec declares one route entry (spec §3 Route).
type RouteSpec struct {
	Pattern string   `yaml:"pattern"`
	Methods []string `yaml:"methods"`

	Upstream  string           `yaml:"upstream,omitempty"` // single static target URL
	Pool      *PoolSpec        `yaml:"pool,omitempty"`
	Proxy     ProxySpec        `yaml:"proxy,omitempty"`
	Breaker   BreakerSpec      `yaml:"breaker,omitempty"`
	Health    HealthSpec       `yaml:"health,omitempty"`
	Sticky    *StickySpec      `yaml:"sticky,omitempty"`
	Middleware []string        `yaml:"middleware,omitempty"`
}

// PoolSpec declares a load-balanced target pool (spec §3 TargetPool).
type PoolSpec struct {
	Strategy string             `yaml:"strategy"`
	Targets  []TargetSpec       `yaml:"targets"`
}

// TargetSpec declares one upstream instance (spec §3 Target).
type TargetSpec struct {
	URL    string `yaml:"url"`
	Weight int    `yaml:"weight"`
}

// StickySpec declares sticky-session configuration (spec §3 stickyConfig).
type StickySpec struct {
	CookieName string `yaml:"cookieName"`
	TTLMs      int64  `yaml:"ttlMs"`
	Source     string `yaml:"source"` // "cookie" | "client_ip"
}

// ProxySpec declares per-route dispatch options (spec §3 Route.proxy).
type ProxySpec struct {
	TimeoutMs          int      `yaml:"timeoutMs"`
	PathRewriteFrom     string   `yaml:"pathRewriteFrom,omitempty"`
	PathRewriteTo       string   `yaml:"pathRewriteTo,omitempty"`
	HeadersAdd          map[string]string `yaml:"headersAdd,omitempty"`
	HeadersRemove       []string `yaml:"headersRemove,omitempty"`
	PreserveHost        bool     `yaml:"preserveHost"`
	MaxAttempts         int      `yaml:"maxAttempts"`
	RetryNonIdempotent  bool     `yaml:"retryNonIdempotent"`
}

// BreakerSpec overrides per-target circuit-breaker defaults (spec §3
// CircuitBreaker).
type BreakerSpec struct {
	FailureThreshold  int `yaml:"failureThreshold"`
	ResetTimeoutMs    int `yaml:"resetTimeoutMs"`
	HalfOpenMaxProbes int `yaml:"halfOpenMaxProbes"`
}

// HealthSpec configures the per-target health probe (spec §4.5).
type HealthSpec struct {
	Disabled       bool   `yaml:"disabled"`
	Path           string `yaml:"path"`
	IntervalMs     int    `yaml:"intervalMs"`
	TimeoutMs      int    `yaml:"timeoutMs"`
	ExpectedStatus int    `yaml:"expectedStatus"`
	HealthyAfter   int    `yaml:"healthyAfter"`   // k
	UnhealthyAfter int    `yaml:"unhealthyAfter"` // m
}

// Load reads and parses the routes file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("routespec: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("routespec: parse %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks structural invariants the route table compiler depends on
// (spec §4.1: "compilation rejects empty patterns...").
func (f *File) Validate() error {
	for i, r := range f.Routes {
		if r.Pattern == "" {
			return fmt.Errorf("routespec: route[%d]: pattern must not be empty", i)
		}
		if r.Upstream == "" && r.Pool == nil {
			return fmt.Errorf("routespec: route[%d] (%s): either upstream or pool is required", i, r.Pattern)
		}
		if r.Upstream != "" && r.Pool != nil {
			return fmt.Errorf("routespec: route[%d] (%s): upstream and pool are mutually exclusive", i, r.Pattern)
		}
		if r.Pool != nil && len(r.Pool.Targets) == 0 {
			return fmt.Errorf("routespec: route[%d] (%s): pool must declare at least one target", i, r.Pattern)
		}
	}
	return nil
}
