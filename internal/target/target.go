// Package target implements the Target Pool (spec §3/§4.4): the mutable set
// of upstream endpoints backing one route, each carrying weight, active
// connection count, EWMA latency, health state, and circuit-breaker state.
//
// Grounded on spec §3/§4.4's data model directly; the copy-on-write
// membership discipline (§5: "readers take a consistent snapshot
// (copy-on-write list or RCU-style); writers ... serialize") follows the
// teacher's preference for atomic-pointer-swapped immutable structures
// (internal/infra/resilience/bulkhead.go's atomic counters, chi's
// build-then-freeze router), and the per-target counters follow
// bulkhead.go's atomic.Int64 active/waiting-count style.
package target

import (
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iruldev/gatewaycore/internal/breaker"
	"github.com/iruldev/gatewaycore/internal/selector"
)

// DefaultEWMAAlpha is the spec §3 default smoothing factor.
const DefaultEWMAAlpha = 0.2

// Target is one upstream endpoint under a route's Pool (spec §3 Target).
type Target struct {
	ID      string
	URL     *url.URL
	Breaker breaker.CircuitBreaker

	weight atomic.Int32
	active atomic.Int64

	latencyMu       sync.Mutex
	ewmaLatencyMs   float64
	hasObservation  bool

	healthMu              sync.Mutex
	healthy               bool
	consecutiveFailures   int
	consecutiveSuccesses  int
}

// newTarget constructs a Target starting healthy with counters zeroed
// (spec §4.5: "a target newly added starts healthy with counters zeroed").
func newTarget(id string, u *url.URL, weight int, cb breaker.CircuitBreaker) *Target {
	t := &Target{ID: id, URL: u, Breaker: cb, healthy: true}
	t.weight.Store(int32(weight))
	return t
}

// TargetID satisfies selector.Candidate and health.Target.
func (t *Target) TargetID() string { return t.ID }

// Weight satisfies selector.Candidate.
func (t *Target) Weight() int { return int(t.weight.Load()) }

// SetWeight mutates the target's weight in place (dynamic API, spec §3:
// "0 disables").
func (t *Target) SetWeight(w int) { t.weight.Store(int32(w)) }

// Active satisfies selector.Candidate.
func (t *Target) Active() int64 { return t.active.Load() }

// IncrActive increments the in-flight count before dispatch (spec §4.4).
func (t *Target) IncrActive() { t.active.Add(1) }

// DecrActive decrements the in-flight count exactly once per request,
// regardless of outcome (spec §4.4/property 6).
func (t *Target) DecrActive() { t.active.Add(-1) }

// EWMALatencyMs satisfies selector.Candidate.
func (t *Target) EWMALatencyMs() float64 {
	t.latencyMu.Lock()
	defer t.latencyMu.Unlock()
	return t.ewmaLatencyMs
}

// HasObservation satisfies selector.Candidate.
func (t *Target) HasObservation() bool {
	t.latencyMu.Lock()
	defer t.latencyMu.Unlock()
	return t.hasObservation
}

// RecordLatency folds a completed attempt's latency into the EWMA using
// alpha (spec §3: "updated on each completed request with factor α").
// Updated on completed attempts only (spec §4.4).
func (t *Target) RecordLatency(d time.Duration, alpha float64) {
	if alpha <= 0 {
		alpha = DefaultEWMAAlpha
	}
	ms := float64(d) / float64(time.Millisecond)

	t.latencyMu.Lock()
	defer t.latencyMu.Unlock()
	if !t.hasObservation {
		t.ewmaLatencyMs = ms
		t.hasObservation = true
		return
	}
	t.ewmaLatencyMs = alpha*ms + (1-alpha)*t.ewmaLatencyMs
}

// Healthy reports the current health-monitor-derived flag (spec §3).
func (t *Target) Healthy() bool {
	t.healthMu.Lock()
	defer t.healthMu.Unlock()
	return t.healthy
}

// RecordProbe applies one health-probe outcome with k/m hysteresis (spec
// §4.5) and reports whether the healthy flag flipped.
func (t *Target) RecordProbe(success bool, healthyAfter, unhealthyAfter int) bool {
	if healthyAfter <= 0 {
		healthyAfter = 1
	}
	if unhealthyAfter <= 0 {
		unhealthyAfter = 1
	}

	t.healthMu.Lock()
	defer t.healthMu.Unlock()

	if success {
		t.consecutiveFailures = 0
		t.consecutiveSuccesses++
		if !t.healthy && t.consecutiveSuccesses >= healthyAfter {
			t.healthy = true
			return true
		}
		return false
	}

	t.consecutiveSuccesses = 0
	t.consecutiveFailures++
	if t.healthy && t.consecutiveFailures >= unhealthyAfter {
		t.healthy = false
		return true
	}
	return false
}

// ConsecutiveFailures and ConsecutiveSuccesses expose hysteresis counters
// for admin introspection and tests.
func (t *Target) ConsecutiveFailures() int {
	t.healthMu.Lock()
	defer t.healthMu.Unlock()
	return t.consecutiveFailures
}

func (t *Target) ConsecutiveSuccesses() int {
	t.healthMu.Lock()
	defer t.healthMu.Unlock()
	return t.consecutiveSuccesses
}

// Eligible reports spec §4.4's selection precondition: healthy, breaker not
// Open, and weight > 0.
func (t *Target) Eligible() bool {
	if !t.Healthy() {
		return false
	}
	if t.Weight() <= 0 {
		return false
	}
	if t.Breaker != nil && t.Breaker.State() == breaker.StateOpen {
		return false
	}
	return true
}

// StickySource mirrors spec §3 stickyConfig.source.
type StickySource string

const (
	StickyCookie   StickySource = "cookie"
	StickyClientIP StickySource = "client_ip"
)

// StickyConfig mirrors spec §3 TargetPool.stickyConfig.
type StickyConfig struct {
	Enabled    bool
	CookieName string
	TTL        time.Duration
	Source     StickySource
}

// Pool is the mutable set of Targets backing one Route (spec §3
// TargetPool), exclusively owned by its Route. Membership is copy-on-write
// (an atomic.Pointer swapped by serialized writers) so the Selector always
// reads a consistent snapshot without blocking in-flight requests (spec
// §5).
type Pool struct {
	name     string
	strategy selector.Strategy
	sticky   StickyConfig

	writeMu  sync.Mutex
	members  atomic.Pointer[[]*Target]

	cursorMu sync.Mutex
	cursor   selector.Cursor
}

// NewPool builds an empty Pool for name using strategy and sticky config.
func NewPool(name string, strategy selector.Strategy, sticky StickyConfig) *Pool {
	p := &Pool{name: name, strategy: strategy, sticky: sticky}
	empty := make([]*Target, 0)
	p.members.Store(&empty)
	return p
}

// Name returns the owning route's identifier (admin introspection).
func (p *Pool) Name() string { return p.name }

// Strategy returns the pool's configured load-balancing strategy.
func (p *Pool) Strategy() selector.Strategy { return p.strategy }

// Sticky returns the pool's sticky-session configuration.
func (p *Pool) Sticky() StickyConfig { return p.sticky }

// AddTarget registers a new Target under id, built by the control plane
// (configuration or dynamic API, spec §3). Returns an error if id is
// already registered.
func (p *Pool) AddTarget(id string, u *url.URL, weight int, cfg breaker.Config, opts ...breaker.Option) (*Target, error) {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	cur := *p.members.Load()
	for _, t := range cur {
		if t.ID == id {
			return nil, fmt.Errorf("target: duplicate target id %q in pool %q", id, p.name)
		}
	}

	cb := breaker.NewCircuitBreaker(id, cfg, opts...)
	t := newTarget(id, u, weight, cb)

	next := make([]*Target, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = t
	p.members.Store(&next)
	return t, nil
}

// RemoveTarget deletes the target by id (spec §3: "destroyed by explicit
// removal; sessions pinned to a removed target are invalidated on next
// access" -- invalidation happens lazily in the Dispatcher/affinity Store,
// which treat a missing-or-ineligible lookup as a cache miss).
func (p *Pool) RemoveTarget(id string) bool {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	cur := *p.members.Load()
	idx := -1
	for i, t := range cur {
		if t.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}

	next := make([]*Target, 0, len(cur)-1)
	next = append(next, cur[:idx]...)
	next = append(next, cur[idx+1:]...)
	p.members.Store(&next)
	return true
}

// SetWeight mutates a live target's weight without a membership swap
// (spec §3: "weight: positive integer ... 0 disables").
func (p *Pool) SetWeight(id string, weight int) bool {
	t, ok := p.Get(id)
	if !ok {
		return false
	}
	t.SetWeight(weight)
	return true
}

// Get looks up a target by id in the current membership snapshot.
func (p *Pool) Get(id string) (*Target, bool) {
	for _, t := range *p.members.Load() {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// Members returns every registered target (healthy or not), for admin
// introspection and metrics.
func (p *Pool) Members() []*Target {
	cur := *p.members.Load()
	out := make([]*Target, len(cur))
	copy(out, cur)
	return out
}

// Eligible returns the snapshot of targets the Selector may choose from
// (spec §4.4 "Eligible" glossary entry: healthy ∧ breaker∉Open ∧ weight>0).
func (p *Pool) Eligible() []*Target {
	cur := *p.members.Load()
	out := make([]*Target, 0, len(cur))
	for _, t := range cur {
		if t.Eligible() {
			out = append(out, t)
		}
	}
	return out
}

// Select runs the Selector once against a fresh eligible snapshot (spec
// §4.4: "The Selector is consulted once per dispatch attempt... operates on
// a snapshot"). It returns gwerrors.ErrNoEligibleTarget (via
// internal/selector) when no target is eligible.
func (p *Pool) Select(fp selector.Fingerprint) (*Target, error) {
	eligible := p.Eligible()

	p.cursorMu.Lock()
	defer p.cursorMu.Unlock()
	return selector.Select(eligible, p.strategy, &p.cursor, fp)
}

// HasOpenBreaker reports whether the pool holds at least one target that
// would otherwise be Eligible (healthy, weight>0) but is excluded solely
// because its circuit breaker is Open (spec §4.6 failure semantics: "Breaker
// Open" takes priority over "NoEligibleTarget" when both would apply).
func (p *Pool) HasOpenBreaker() bool {
	for _, t := range *p.members.Load() {
		if t.Healthy() && t.Weight() > 0 && t.Breaker != nil && t.Breaker.State() == breaker.StateOpen {
			return true
		}
	}
	return false
}
