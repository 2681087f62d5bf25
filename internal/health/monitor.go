// Package health implements the Health Monitor (spec §4.5): a scheduled
// per-target probe that updates the target's healthy flag via hysteresis,
// grounded on the teacher's liveness/readiness split
// (internal/transport/http/handler/{liveness,readiness}.go and its
// github.com/heptiolabs/healthcheck usage) generalized from "is the
// gateway alive" to "is this upstream target alive", driven by
// internal/clock so tests can advance probe intervals deterministically
// (DESIGN NOTES §9, properties 5/7).
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iruldev/gatewaycore/internal/clock"
)

// Target is the subset of internal/target.Target the monitor needs, kept as
// an interface to avoid an import cycle and to ease testing with fakes.
type Target interface {
	TargetID() string
	RecordProbe(success bool, healthyAfter, unhealthyAfter int) (changed bool)
}

// Config mirrors spec §4.5's per-route health-check parameters.
type Config struct {
	Disabled       bool
	Path           string
	Interval       time.Duration
	Timeout        time.Duration
	ExpectedStatus int
	HealthyAfter   int // k
	UnhealthyAfter int // m
}

// DefaultConfig mirrors spec §4.5 defaults.
func DefaultConfig() Config {
	return Config{
		Path:           "/health",
		Interval:       10 * time.Second,
		Timeout:        2 * time.Second,
		ExpectedStatus: http.StatusOK,
		HealthyAfter:   1,
		UnhealthyAfter: 2,
	}
}

// Monitor schedules one prober per target. Each prober enforces
// at-most-one-in-flight by skipping a tick if the previous probe has not
// returned (spec §4.5: "a late response arriving after the next interval is
// discarded").
type Monitor struct {
	clk    clock.Clock
	client *http.Client
	log    *zap.Logger

	mu      sync.Mutex
	targets map[string]*probe
}

type probe struct {
	target Target
	baseURL string
	cfg    Config
	stopCh chan struct{}
	busy   chan struct{} // 1-buffered: held while a probe is in flight
}

// NewMonitor builds a Monitor using clk for scheduling and client for
// issuing probe requests (a dedicated *http.Client, not the Dispatcher's,
// so probe timeouts never interact with proxied-request timeouts).
func NewMonitor(clk clock.Clock, client *http.Client, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{clk: clk, client: client, log: log, targets: make(map[string]*probe)}
}

// Watch registers t for scheduled probing against baseURL+cfg.Path. If
// cfg.Disabled, health is pinned true permanently (spec §4.5) and no
// goroutine is started.
func (m *Monitor) Watch(t Target, baseURL string, cfg Config) {
	if cfg.Disabled {
		t.RecordProbe(true, 1, 1)
		return
	}
	p := &probe{target: t, baseURL: baseURL, cfg: cfg, stopCh: make(chan struct{}), busy: make(chan struct{}, 1)}

	m.mu.Lock()
	m.targets[t.TargetID()] = p
	m.mu.Unlock()

	go m.run(p)
}

// Unwatch stops probing a target (called on RemoveTarget).
func (m *Monitor) Unwatch(id string) {
	m.mu.Lock()
	p, ok := m.targets[id]
	delete(m.targets, id)
	m.mu.Unlock()
	if ok {
		close(p.stopCh)
	}
}

func (m *Monitor) run(p *probe) {
	ticker := m.clk.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C():
			m.tick(p)
		}
	}
}

func (m *Monitor) tick(p *probe) {
	select {
	case p.busy <- struct{}{}:
	default:
		// previous probe still in flight; spec §4.5 discards this tick.
		return
	}
	go func() {
		defer func() { <-p.busy }()
		success := m.probeOnce(p)
		if p.target.RecordProbe(success, p.cfg.HealthyAfter, p.cfg.UnhealthyAfter) {
			m.log.Info("target health changed", zap.String("target", p.target.TargetID()), zap.Bool("probeSuccess", success))
		}
	}()
}

func (m *Monitor) probeOnce(p *probe) bool {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+p.cfg.Path, nil)
	if err != nil {
		return false
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	expected := p.cfg.ExpectedStatus
	if expected == 0 {
		expected = http.StatusOK
	}
	return resp.StatusCode == expected
}

// Stop unwatches every target, stopping all prober goroutines.
func (m *Monitor) Stop() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.targets))
	for id := range m.targets {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Unwatch(id)
	}
}
