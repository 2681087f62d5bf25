// Package dispatcher implements the Dispatcher (spec §4.6): selects a
// target, mutates the request per proxy config, forwards it via
// net/http/httputil.ReverseProxy with per-attempt retry and circuit
// breaking, and funnels the response back with header hygiene enforced.
//
// Grounded on the teacher's pattern of wrapping stdlib network primitives
// (internal/infra/wrapper/http.go) composed with
// internal/infra/resilience/retry.go + circuit_breaker.go for the attempt
// loop; net/http/httputil.ReverseProxy itself has no teacher-repo analogue
// (the teacher is not a proxy), so its Director/ModifyResponse/ErrorHandler
// wiring follows the standard library's documented reverse-proxy idiom.
package dispatcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/iruldev/gatewaycore/internal/affinity"
	"github.com/iruldev/gatewaycore/internal/contract"
	"github.com/iruldev/gatewaycore/internal/ctxutil"
	"github.com/iruldev/gatewaycore/internal/gwerrors"
	"github.com/iruldev/gatewaycore/internal/retry"
	"github.com/iruldev/gatewaycore/internal/selector"
	"github.com/iruldev/gatewaycore/internal/target"
)

// hopByHopHeaders are stripped from both the outbound request and the
// inbound response (spec §4.6).
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Proxy-Connection", "TE", "Trailer", "Transfer-Encoding", "Upgrade",
}

func stripHopByHop(h http.Header) {
	if conn := h.Get("Connection"); conn != "" {
		for _, f := range strings.Split(conn, ",") {
			h.Del(strings.TrimSpace(f))
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// ProxyOptions mirrors spec §3 Route.proxy.
type ProxyOptions struct {
	Timeout            time.Duration
	PathRewriteFrom    string
	PathRewriteTo      string
	HeadersAdd         map[string]string
	HeadersRemove      []string
	PreserveHost       bool
	MaxAttempts        int
	RetryNonIdempotent bool
}

// Pool is the subset of *target.Pool the Dispatcher needs.
type Pool interface {
	Select(fp selector.Fingerprint) (*target.Target, error)
	Get(id string) (*target.Target, bool)
	HasOpenBreaker() bool
}

// Dispatcher forwards a matched request to a Pool's selected Target.
type Dispatcher struct {
	pool        Pool
	opts        ProxyOptions
	affinity    *affinity.Store // nil disables sticky sessions
	stickyCookie string
	ewmaAlpha   float64
	production  bool
}

// New builds a Dispatcher for one route.
func New(pool Pool, opts ProxyOptions, aff *affinity.Store, stickyCookie string, ewmaAlpha float64, production bool) *Dispatcher {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if stickyCookie == "" {
		stickyCookie = "gw_session"
	}
	return &Dispatcher{
		pool:         pool,
		opts:         opts,
		affinity:     aff,
		stickyCookie: stickyCookie,
		ewmaAlpha:    ewmaAlpha,
		production:   production,
	}
}

var safeMethods = map[string]bool{http.MethodGet: true, http.MethodHead: true, http.MethodOptions: true}

// ServeHTTP implements the dispatch lifecycle described in spec §4.6: pick a
// target, forward, retry on transport/timeout failures (never silently on
// 5xx), and fall back to a sanitized error response if every attempt fails
// before a response was obtained.
func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fp := selector.Fingerprint{ClientIP: ctxutil.ClientIP(r.Context())}

	maxAttempts := d.opts.MaxAttempts
	if !safeMethods[r.Method] && !d.opts.RetryNonIdempotent {
		maxAttempts = 1 // spec §7: non-idempotent methods retried only if explicitly enabled
	}

	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = maxAttempts
	retrier := retry.NewRetrier(cfg)

	tried := make(map[string]bool)
	var lastErr error
	var lastTarget string
	responded := false

	// The go-retry backoff (exponential, jittered, capped) runs the attempt
	// loop in place of a hand-rolled sleep; fn reports back via its return
	// value whether to stop (nil or a terminal error) or continue
	// (retry.Continue), per spec §4.6's per-attempt retry/backoff semantics.
	_ = retrier.Do(r.Context(), func(ctx context.Context) error {
		t, sessionID, err := d.selectTarget(r, fp, tried)
		if err != nil {
			lastErr = d.classifySelectionError(err)
			return lastErr
		}
		if t.ID == lastTarget {
			// The Selector handed back the target whose attempt just failed;
			// this attempt is spent without sending to it again, so the same
			// target is never retried consecutively.
			return retry.Continue(lastErr)
		}
		lastTarget = t.ID
		tried[t.ID] = true

		ok, status, attemptErr := d.attemptOnce(w, r, t)
		if ok {
			// Response already streamed to the client (success or upstream
			// 5xx forwarded verbatim); nothing left to retry.
			if status < 500 && d.affinity != nil && sessionID != "" {
				d.affinity.Bind(sessionID, t.ID)
			}
			responded = true
			return nil
		}

		lastErr = attemptErr
		if !retry.DefaultIsRetryable(attemptErr) && !errors.Is(attemptErr, gwerrors.ErrBreakerOpen) {
			return attemptErr
		}
		return retry.Continue(attemptErr)
	})

	if responded {
		return
	}
	d.writeError(w, r, lastErr)
}

// classifySelectionError upgrades a NoEligibleTarget failure to
// CircuitBreakerOpen when the pool's only ineligible members are excluded
// solely because their breaker tripped open (spec §4.6 failure semantics:
// "Breaker Open" takes priority over "NoEligibleTarget"; scenario S4).
func (d *Dispatcher) classifySelectionError(err error) error {
	if errors.Is(err, gwerrors.ErrNoEligibleTarget) && d.pool.HasOpenBreaker() {
		return gwerrors.New("dispatcher", gwerrors.KindUpstreamUnavailable, gwerrors.CodeCircuitBreakerOpen,
			"circuit breaker open for every eligible target", gwerrors.ErrBreakerOpen)
	}
	return err
}

func (d *Dispatcher) selectTarget(r *http.Request, fp selector.Fingerprint, tried map[string]bool) (*target.Target, string, error) {
	sessionID := d.stickySessionID(r)
	if d.affinity != nil && sessionID != "" {
		if b, ok := d.affinity.Lookup(sessionID); ok && !tried[b.TargetID] {
			if t, ok := d.pool.Get(b.TargetID); ok && t.Eligible() {
				return t, sessionID, nil
			}
		}
	}

	t, err := d.pool.Select(fp)
	if err != nil {
		return nil, sessionID, err
	}
	if d.affinity != nil && sessionID == "" {
		if id, genErr := affinity.NewSessionID(); genErr == nil {
			sessionID = id
		}
	}
	return t, sessionID, nil
}

func (d *Dispatcher) stickySessionID(r *http.Request) string {
	if d.affinity == nil {
		return ""
	}
	c, err := r.Cookie(d.stickyCookie)
	if err != nil || !affinity.ValidSessionID(c.Value) {
		return ""
	}
	return c.Value
}

// attemptOnce forwards r to t. responded=true means a response (success or
// forwarded 5xx) was written to w and the caller must not retry.
// responded=false means no bytes reached w yet, so the caller is free to
// retry a different target.
func (d *Dispatcher) attemptOnce(w http.ResponseWriter, r *http.Request, t *target.Target) (responded bool, status int, err error) {
	ctx, cancel := context.WithTimeout(r.Context(), d.timeoutOr(30*time.Second))
	defer cancel()

	t.IncrActive()
	start := time.Now()
	defer t.DecrActive()

	var transportErr error
	var wrote bool

	breakerErr := t.Breaker.Execute(ctx, func(ctx context.Context) error {
		rr := r.Clone(ctx)
		d.rewrite(rr, t)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		rp := &httputil.ReverseProxy{
			Director: func(req *http.Request) {},
			ModifyResponse: func(resp *http.Response) error {
				stripHopByHop(resp.Header)
				return nil
			},
			ErrorHandler: func(_ http.ResponseWriter, _ *http.Request, e error) {
				transportErr = classifyTransportError(e)
			},
		}
		rp.ServeHTTP(rec, rr)
		status = rec.status
		wrote = transportErr == nil

		// Report to the breaker per spec §4.3/§4.6: transport error, timeout,
		// or response status >=500 all count as a dispatch failure, even
		// though a >=500 response is still forwarded verbatim to the client.
		if transportErr != nil {
			return transportErr
		}
		if status >= 500 {
			return errUpstreamFailureStatus
		}
		return nil
	})

	if !wrote {
		if transportErr != nil {
			return false, status, transportErr
		}
		// fn never ran: the breaker itself rejected the attempt (open).
		return false, status, breakerErr
	}

	t.RecordLatency(time.Since(start), d.ewmaAlpha)
	return true, status, nil
}

// errUpstreamFailureStatus marks a >=500 response as a breaker failure
// without being surfaced to the client (the response itself was already
// forwarded verbatim).
var errUpstreamFailureStatus = errors.New("dispatcher: upstream responded with a failure status")

// statusRecorder captures the status code ReverseProxy writes so the
// Dispatcher can classify it for breaker accounting without buffering the
// body (spec §4.6: "body is streamed without full buffering when
// possible").
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

func classifyTransportError(e error) error {
	var netErr net.Error
	if errors.As(e, &netErr) && netErr.Timeout() {
		return gwerrors.New("dispatcher", gwerrors.KindUpstreamTimeout, gwerrors.CodeUpstreamTimeout, "upstream request timed out", e)
	}
	return gwerrors.New("dispatcher", gwerrors.KindUpstreamTransport, gwerrors.CodeUpstreamTransport, "upstream transport error", e)
}

func (d *Dispatcher) timeoutOr(fallback time.Duration) time.Duration {
	if d.opts.Timeout > 0 {
		return d.opts.Timeout
	}
	return fallback
}

func (d *Dispatcher) rewrite(r *http.Request, t *target.Target) {
	dest := t.URL
	r.URL.Scheme = dest.Scheme
	r.URL.Host = dest.Host

	if d.opts.PathRewriteFrom != "" && strings.HasPrefix(r.URL.Path, d.opts.PathRewriteFrom) {
		r.URL.Path = d.opts.PathRewriteTo + strings.TrimPrefix(r.URL.Path, d.opts.PathRewriteFrom)
	}

	if !d.opts.PreserveHost {
		r.Host = dest.Host
	}

	stripHopByHop(r.Header)

	clientIP := ctxutil.ClientIP(r.Context())
	if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
		r.Header.Set("X-Forwarded-For", prior+", "+clientIP)
	} else {
		r.Header.Set("X-Forwarded-For", clientIP)
	}
	proto := "http"
	if r.TLS != nil {
		proto = "https"
	}
	r.Header.Set("X-Forwarded-Proto", proto)
	r.Header.Set("X-Request-ID", ctxutil.RequestID(r.Context()))

	for k, v := range d.opts.HeadersAdd {
		r.Header.Set(k, v)
	}
	for _, k := range d.opts.HeadersRemove {
		r.Header.Del(k)
	}
}

func (d *Dispatcher) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		err = gwerrors.New("dispatcher", gwerrors.KindUpstreamUnavailable, gwerrors.CodeNoHealthyUpstream,
			"no healthy upstream", gwerrors.ErrNoEligibleTarget)
	}
	if ge, ok := gwerrors.As(err); ok && ge.Code == gwerrors.CodeCircuitBreakerOpen {
		w.Header().Set("Retry-After", "60")
	}
	contract.WriteError(w, r.Context(), err, time.Now(), d.production)
}
