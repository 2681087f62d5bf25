// Package routetable implements the Route Table (spec §3/§4.1): ordered
// pattern+method matching with literal-over-wildcard preference, grounded
// on internal/interface/http/router.go and routes.go's chi.Router mounting
// idiom (github.com/go-chi/chi/v5).
package routetable

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/iruldev/gatewaycore/internal/gwerrors"
)

// Route is the descriptor a match resolves to (spec §3 Route). The table
// only needs Pattern/Methods/Handler to route; upstream/proxy/middleware
// wiring lives in internal/gateway, which builds these from routespec.
type Route struct {
	Pattern string
	Methods []string // empty means ANY
	Handler http.Handler
}

// Table wraps a chi.Mux to get spec §4.1's literal-over-wildcard,
// first-fit-by-declaration-order matching for free, while keeping an
// explicit registered-route list for admin introspection. The 404 vs 405
// classification comes from chi itself (see ServeHTTP).
type Table struct {
	mux    *chi.Mux
	routes []Route
}

// New builds an empty Table.
func New() *Table {
	return &Table{mux: chi.NewRouter()}
}

// Add appends route to the table (spec §4.1: "Idempotency is not required;
// duplicates select the earliest"). Patterns are validated per spec:
// non-empty, and any ":" segment must be followed by an identifier.
func Add(t *Table, route Route) error {
	if route.Pattern == "" {
		return gwerrors.New("routetable", gwerrors.KindInternal, gwerrors.CodeInternalError,
			"route pattern must not be empty", nil)
	}
	if err := validatePattern(route.Pattern); err != nil {
		return err
	}

	t.routes = append(t.routes, route)

	methods := route.Methods
	if len(methods) == 0 {
		methods = []string{"ANY"}
	}
	for _, m := range methods {
		if strings.EqualFold(m, "ANY") {
			t.mux.Handle(route.Pattern, route.Handler)
			continue
		}
		t.mux.Method(strings.ToUpper(m), route.Pattern, route.Handler)
	}
	return nil
}

func validatePattern(pattern string) error {
	for _, seg := range strings.Split(pattern, "/") {
		if strings.HasPrefix(seg, ":") && len(seg) == 1 {
			return gwerrors.New("routetable", gwerrors.KindInternal, gwerrors.CodeInternalError,
				"malformed pattern: ':' must be followed by a parameter name: "+pattern, nil)
		}
	}
	return nil
}

// MatchResult pairs a matched Route with its path parameters. No function in
// this package returns one; requests are routed through ServeHTTP.
type MatchResult struct {
	Route  *Route
	Params map[string]string
}

// ServeHTTP delegates to the underlying chi mux, which performs the
// literal-over-wildcard, method-aware routing spec §4.1 describes
// (mismatched method on an otherwise-matching pattern yields 405 via chi's
// MethodNotAllowedHandler, not 404).
func (t *Table) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.mux.ServeHTTP(w, r)
}

// Mux exposes the underlying chi.Mux for NotFound/MethodNotAllowed handler
// registration. OPTIONS requests go through chi's method filtering like any
// other method: an OPTIONS request to a pattern registered without OPTIONS
// or ANY gets 405, and no CORS middleware runs ahead of that filtering.
func (t *Table) Mux() *chi.Mux { return t.mux }

// Routes returns the registered route descriptors in declaration order, for
// admin introspection.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}
