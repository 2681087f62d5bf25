// Package gateway is the composition root: it builds the Route Table,
// Target Pools, Health Monitors, Session Affinity Store, and Dispatchers
// described by a routespec.File and wires them behind the Middleware
// Chain, grounded on internal/interface/http/router.go's NewRouter(cfg)
// composition idiom (logger/tracer init, global middleware registration,
// route mounting) generalized from one fixed app route set to a
// config-driven route table with per-route middleware/pools.
package gateway

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/iruldev/gatewaycore/internal/admin"
	"github.com/iruldev/gatewaycore/internal/affinity"
	"github.com/iruldev/gatewaycore/internal/breaker"
	"github.com/iruldev/gatewaycore/internal/clock"
	"github.com/iruldev/gatewaycore/internal/config"
	"github.com/iruldev/gatewaycore/internal/contract"
	"github.com/iruldev/gatewaycore/internal/ctxutil"
	"github.com/iruldev/gatewaycore/internal/dispatcher"
	"github.com/iruldev/gatewaycore/internal/gwerrors"
	"github.com/iruldev/gatewaycore/internal/health"
	mw "github.com/iruldev/gatewaycore/internal/middleware"
	"github.com/iruldev/gatewaycore/internal/observability"
	"github.com/iruldev/gatewaycore/internal/routespec"
	"github.com/iruldev/gatewaycore/internal/routetable"
	"github.com/iruldev/gatewaycore/internal/selector"
	"github.com/iruldev/gatewaycore/internal/target"
)

// RouteEntry bundles everything built for one routespec.RouteSpec, kept
// around for admin introspection and graceful shutdown of its Health
// Monitor/Affinity Store.
type RouteEntry struct {
	Pattern  string
	Pool     *target.Pool
	Affinity *affinity.Store
	Monitor  *health.Monitor
}

// Gateway is the top-level http.Handler wiring every spec §2 component
// together.
type Gateway struct {
	cfg        *config.Config
	log        *zap.Logger
	clk        clock.Clock
	table      *routetable.Table
	routes     []*RouteEntry
	metricsStop chan struct{}
}

// Build constructs a Gateway from process config and a parsed routes file.
func Build(cfg *config.Config, routesFile *routespec.File, log *zap.Logger, clk clock.Clock) (*Gateway, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}

	g := &Gateway{cfg: cfg, log: log, clk: clk, table: routetable.New(), metricsStop: make(chan struct{})}

	for _, rs := range routesFile.Routes {
		entry, handler, err := g.buildRoute(rs)
		if err != nil {
			return nil, fmt.Errorf("gateway: build route %s: %w", rs.Pattern, err)
		}
		g.routes = append(g.routes, entry)

		handler = g.metricsMiddleware(rs.Pattern, handler)
		if err := routetable.Add(g.table, routetable.Route{
			Pattern: rs.Pattern,
			Methods: rs.Methods,
			Handler: g.wrapGlobalMiddleware(handler),
		}); err != nil {
			return nil, err
		}
	}

	g.installRouteErrors()
	go g.reportMetricsLoop()

	return g, nil
}

// installRouteErrors renders the spec §6 sanitized JSON error contract for
// chi's built-in 404/405 cases (spec §4.1: "a pattern matching the path but
// not the method yields 405, not 404").
func (g *Gateway) installRouteErrors() {
	g.table.Mux().NotFound(func(w http.ResponseWriter, r *http.Request) {
		ge := gwerrors.New("routetable", gwerrors.KindRoute, gwerrors.CodeNotFound, "no matching route", gwerrors.ErrRouteNotFound)
		contract.WriteError(w, r.Context(), ge, time.Now(), g.cfg.IsProduction())
	})
	g.table.Mux().MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ge := gwerrors.New("routetable", gwerrors.KindRoute, gwerrors.CodeMethodNotAllowed, "method not allowed for matched pattern", gwerrors.ErrMethodNotAllowed)
		contract.WriteError(w, r.Context(), ge, time.Now(), g.cfg.IsProduction())
	})
}

// metricsMiddleware records spec §6's requests_total/requests_by_status
// counters and request duration per route, grounded on
// internal/observability/metrics.go's promauto CounterVec/HistogramVec
// usage.
func (g *Gateway) metricsMiddleware(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := g.clk.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		observability.HTTPRequestsTotal.WithLabelValues(pattern, r.Method, fmt.Sprintf("%d", rec.status)).Inc()
		observability.HTTPRequestDuration.WithLabelValues(pattern, r.Method).Observe(g.clk.Now().Sub(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.wroteHeader = true
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wroteHeader {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}

// reportMetricsLoop periodically samples every pool's live state into the
// per-target gauges (spec §6: "per-target active and ewma_latency,
// breaker_state, sessions_count"). A ticker rather than per-request
// updates keeps gauge cardinality bounded to live targets regardless of
// request volume.
func (g *Gateway) reportMetricsLoop() {
	ticker := g.clk.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-g.metricsStop:
			return
		case <-ticker.C():
			g.reportMetrics()
		}
	}
}

func (g *Gateway) reportMetrics() {
	for _, e := range g.routes {
		if e.Pool == nil {
			continue
		}
		if e.Affinity != nil {
			observability.SessionsActive.WithLabelValues(e.Pattern).Set(float64(e.Affinity.Count()))
		}
		for _, t := range e.Pool.Members() {
			observability.TargetActive.WithLabelValues(e.Pattern, t.ID).Set(float64(t.Active()))
			observability.TargetEWMALatency.WithLabelValues(e.Pattern, t.ID).Set(t.EWMALatencyMs())
			healthy := 0.0
			if t.Healthy() {
				healthy = 1.0
			}
			observability.TargetHealthy.WithLabelValues(e.Pattern, t.ID).Set(healthy)
			if t.Breaker != nil {
				observability.BreakerState.WithLabelValues(e.Pattern, t.ID).Set(float64(t.Breaker.State()))
			}
		}
	}
}

func (g *Gateway) buildRoute(rs routespec.RouteSpec) (*RouteEntry, http.Handler, error) {
	entry := &RouteEntry{Pattern: rs.Pattern}

	var pool *target.Pool
	switch {
	case rs.Pool != nil:
		strat := selector.Strategy(rs.Pool.Strategy)
		if !selector.Valid(strat) {
			return nil, nil, fmt.Errorf("unknown strategy %q", rs.Pool.Strategy)
		}
		sticky := target.StickyConfig{}
		if rs.Sticky != nil {
			sticky = target.StickyConfig{
				Enabled:    true,
				CookieName: rs.Sticky.CookieName,
				TTL:        time.Duration(rs.Sticky.TTLMs) * time.Millisecond,
				Source:     target.StickySource(rs.Sticky.Source),
			}
		}
		pool = target.NewPool(rs.Pattern, strat, sticky)

		bc := breakerConfigFrom(rs.Breaker)
		hc := healthConfigFrom(rs.Health)
		monitor := health.NewMonitor(g.clk, &http.Client{Timeout: hc.Timeout}, g.log)

		for i, ts := range rs.Pool.Targets {
			u, err := url.Parse(ts.URL)
			if err != nil {
				return nil, nil, fmt.Errorf("target[%d] url: %w", i, err)
			}
			weight := ts.Weight
			if weight == 0 {
				weight = 1
			}
			id := fmt.Sprintf("%s-%d", rs.Pattern, i)
			t, err := pool.AddTarget(id, u, weight, bc, breaker.WithLogger(g.log))
			if err != nil {
				return nil, nil, err
			}
			monitor.Watch(t, u.String(), hc)
		}
		entry.Monitor = monitor

	case rs.Upstream != "":
		u, err := url.Parse(rs.Upstream)
		if err != nil {
			return nil, nil, fmt.Errorf("upstream url: %w", err)
		}
		pool = target.NewPool(rs.Pattern, selector.RoundRobin, target.StickyConfig{})
		bc := breakerConfigFrom(rs.Breaker)
		if _, err := pool.AddTarget(rs.Pattern+"-0", u, 1, bc, breaker.WithLogger(g.log)); err != nil {
			return nil, nil, err
		}

	default:
		return nil, nil, fmt.Errorf("route must declare upstream or pool")
	}
	entry.Pool = pool

	var aff *affinity.Store
	stickyCookie := "gw_session"
	if rs.Sticky != nil {
		aff = affinity.NewStore(g.clk, time.Duration(rs.Sticky.TTLMs)*time.Millisecond, time.Duration(g.cfg.SessionSweepIntervalMs)*time.Millisecond)
		aff.Start()
		entry.Affinity = aff
		if rs.Sticky.CookieName != "" {
			stickyCookie = rs.Sticky.CookieName
		}
	}

	opts := dispatcher.ProxyOptions{
		Timeout:            time.Duration(rs.Proxy.TimeoutMs) * time.Millisecond,
		PathRewriteFrom:    rs.Proxy.PathRewriteFrom,
		PathRewriteTo:      rs.Proxy.PathRewriteTo,
		HeadersAdd:         rs.Proxy.HeadersAdd,
		HeadersRemove:      rs.Proxy.HeadersRemove,
		PreserveHost:       rs.Proxy.PreserveHost,
		MaxAttempts:        rs.Proxy.MaxAttempts,
		RetryNonIdempotent: rs.Proxy.RetryNonIdempotent,
	}
	disp := dispatcher.New(pool, opts, aff, stickyCookie, target.DefaultEWMAAlpha, g.cfg.IsProduction())

	handler := g.wrapRouteMiddleware(rs, http.HandlerFunc(disp.ServeHTTP))
	return entry, handler, nil
}

func breakerConfigFrom(bs routespec.BreakerSpec) breaker.Config {
	cfg := breaker.DefaultConfig()
	if bs.FailureThreshold > 0 {
		cfg.FailureThreshold = uint32(bs.FailureThreshold)
	}
	if bs.ResetTimeoutMs > 0 {
		cfg.ResetTimeout = time.Duration(bs.ResetTimeoutMs) * time.Millisecond
	}
	if bs.HalfOpenMaxProbes > 0 {
		cfg.HalfOpenMaxProbes = uint32(bs.HalfOpenMaxProbes)
	}
	return cfg
}

func healthConfigFrom(hs routespec.HealthSpec) health.Config {
	cfg := health.DefaultConfig()
	cfg.Disabled = hs.Disabled
	if hs.Path != "" {
		cfg.Path = hs.Path
	}
	if hs.IntervalMs > 0 {
		cfg.Interval = time.Duration(hs.IntervalMs) * time.Millisecond
	}
	if hs.TimeoutMs > 0 {
		cfg.Timeout = time.Duration(hs.TimeoutMs) * time.Millisecond
	}
	if hs.ExpectedStatus > 0 {
		cfg.ExpectedStatus = hs.ExpectedStatus
	}
	if hs.HealthyAfter > 0 {
		cfg.HealthyAfter = hs.HealthyAfter
	}
	if hs.UnhealthyAfter > 0 {
		cfg.UnhealthyAfter = hs.UnhealthyAfter
	}
	return cfg
}

// wrapRouteMiddleware applies per-route middleware selections named in
// rs.Middleware, in declaration order (spec §4.2: "global ... then per-route
// ... then the terminal handler or Dispatcher").
func (g *Gateway) wrapRouteMiddleware(rs routespec.RouteSpec, next http.Handler) http.Handler {
	for i := len(rs.Middleware) - 1; i >= 0; i-- {
		if m := g.namedMiddleware(rs.Middleware[i]); m != nil {
			next = m(next)
		}
	}
	return next
}

// namedMiddleware resolves a route's declared middleware name to a
// constructed middleware using process-wide defaults. A production gateway
// would thread per-route overrides (JWT keys, CORS policy, etc.) from
// routespec too; this keeps the common defaults centralized.
func (g *Gateway) namedMiddleware(name string) func(http.Handler) http.Handler {
	switch name {
	case "security_headers":
		return mw.SecurityHeaders(mw.DefaultSecurityHeadersConfig())
	case "input_validator":
		cfg := mw.DefaultValidatorConfig()
		cfg.Production = g.cfg.IsProduction()
		return mw.InputValidator(cfg)
	case "size_limiter":
		cfg := mw.DefaultSizeLimiterConfig()
		cfg.Production = g.cfg.IsProduction()
		return mw.SizeLimiter(cfg)
	case "api_key_auth":
		validator := mw.EnvKeyValidator(g.cfg.APIKeys)
		return mw.APIKeyAuth(validator, g.cfg.IsProduction())
	default:
		g.log.Warn("unknown middleware name in route spec, skipping", zap.String("name", name))
		return nil
	}
}

// wrapGlobalMiddleware applies the fixed global chain every route gets,
// outermost first (spec §4.2: "global middleware in registration order").
func (g *Gateway) wrapGlobalMiddleware(next http.Handler) http.Handler {
	h := next
	h = g.clientIPMiddleware(h)
	h = mw.RequestID(h)
	h = mw.ErrorHandler(g.log, g.cfg.IsProduction())(h)
	return h
}

// clientIPMiddleware implements spec §4.9's client-IP extraction and
// attaches it to the request context for downstream rate limiting,
// IpHash selection, and X-Forwarded-For construction.
func (g *Gateway) clientIPMiddleware(next http.Handler) http.Handler {
	trusted := parseTrustedProxies(g.cfg.TrustedProxyCIDRs, g.cfg.TrustedProviders)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := resolveClientIP(r, trusted, g.cfg.MaxForwardedDepth)
		ctx := ctxutil.WithClientIP(r.Context(), ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ServeHTTP lets Gateway itself be mounted as an http.Handler (e.g. behind
// the Cluster Supervisor's listener or directly under http.Server).
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.table.ServeHTTP(w, r)
}

// Routes returns the built route entries for admin introspection.
func (g *Gateway) Routes() []*RouteEntry { return g.routes }

// adminSource adapts Gateway to internal/admin.Source without internal/admin
// needing to import internal/gateway back.
type adminSource struct{ g *Gateway }

func (a adminSource) Routes() []admin.RouteEntry {
	out := make([]admin.RouteEntry, 0, len(a.g.routes))
	for _, e := range a.g.routes {
		out = append(out, admin.RouteEntry{Pattern: e.Pattern, Pool: e.Pool, Affinity: e.Affinity, Monitor: e.Monitor})
	}
	return out
}

// AdminSource exposes this Gateway's routes to internal/admin.NewHandler.
func (g *Gateway) AdminSource() admin.Source { return adminSource{g: g} }

// Shutdown stops every route's Health Monitor and Affinity Store sweep, and
// the metrics reporting loop.
func (g *Gateway) Shutdown() {
	close(g.metricsStop)
	for _, e := range g.routes {
		if e.Monitor != nil {
			e.Monitor.Stop()
		}
		if e.Affinity != nil {
			e.Affinity.Stop()
		}
	}
}
