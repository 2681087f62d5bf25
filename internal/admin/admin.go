// Package admin implements a read-only introspection endpoint over live
// Target Pool / Circuit Breaker / Session Affinity state -- a feature the
// distilled spec does not name but the Metrics exposure contract (spec §6)
// implies a human-facing surface would want, supplementing the spec per the
// task's "Supplemented features" allowance.
//
// Grounded on the teacher's internal/interface/http/admin package shape:
// one handler per concern, gated behind auth middleware by the caller, a
// flat JSON envelope response (internal/interface/http/admin/handler.go,
// queues.go, roles.go all follow this pattern).
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/iruldev/gatewaycore/internal/affinity"
	"github.com/iruldev/gatewaycore/internal/health"
	"github.com/iruldev/gatewaycore/internal/target"
)

// RouteEntry is the subset of gateway.RouteEntry admin needs, expressed as
// an interface-shaped struct literal rather than an import of
// internal/gateway, so internal/gateway (which will construct and pass
// these) never needs to import internal/admin back.
type RouteEntry struct {
	Pattern  string
	Pool     *target.Pool
	Affinity *affinity.Store
	Monitor  *health.Monitor
}

// Source supplies the live route entries to report on.
type Source interface {
	Routes() []RouteEntry
}

// TargetView is one target's reported state.
type TargetView struct {
	ID            string  `json:"id"`
	URL           string  `json:"url"`
	Weight        int     `json:"weight"`
	Active        int64   `json:"active"`
	EWMALatencyMs float64 `json:"ewmaLatencyMs"`
	Healthy       bool    `json:"healthy"`
	BreakerState  string  `json:"breakerState"`
}

// PoolView is one route's reported pool state.
type PoolView struct {
	Pattern        string       `json:"pattern"`
	Strategy       string       `json:"strategy"`
	StickyEnabled  bool         `json:"stickyEnabled"`
	SessionsActive int          `json:"sessionsActive"`
	Targets        []TargetView `json:"targets"`
}

// Snapshot is the full /admin/pools response body.
type Snapshot struct {
	GeneratedAt time.Time  `json:"generatedAt"`
	Pools       []PoolView `json:"pools"`
}

// Handler serves GET /admin/pools (and is mountable at whatever path
// internal/config.Config.AdminPath names).
type Handler struct {
	src Source
	now func() time.Time
}

// NewHandler builds an admin Handler over src.
func NewHandler(src Source) *Handler {
	return &Handler{src: src, now: time.Now}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snap := Snapshot{GeneratedAt: h.now()}
	for _, entry := range h.src.Routes() {
		if entry.Pool == nil {
			continue
		}
		pv := PoolView{
			Pattern:  entry.Pattern,
			Strategy: string(entry.Pool.Strategy()),
		}
		if sticky := entry.Pool.Sticky(); sticky.Enabled {
			pv.StickyEnabled = true
		}
		if entry.Affinity != nil {
			pv.SessionsActive = entry.Affinity.Count()
		}
		for _, t := range entry.Pool.Members() {
			state := "closed"
			if t.Breaker != nil {
				state = t.Breaker.State().String()
			}
			pv.Targets = append(pv.Targets, TargetView{
				ID:            t.ID,
				URL:           t.URL.String(),
				Weight:        t.Weight(),
				Active:        t.Active(),
				EWMALatencyMs: t.EWMALatencyMs(),
				Healthy:       t.Healthy(),
				BreakerState:  state,
			})
		}
		snap.Pools = append(snap.Pools, pv)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(snap)
}
