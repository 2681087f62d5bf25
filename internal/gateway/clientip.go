package gateway

import (
	"net"
	"net/http"
	"strings"
)

// providerRanges holds, per provider name, the static
// (non-fetched) CIDR sets spec §4.9 allows ("a named provider set --
// Cloudflare, AWS, GCP, Azure -- with static ranges"). These are
// representative published ranges, not live-fetched; a production gateway
// would refresh AWS/GCP/Azure ranges periodically from their published
// JSON feeds, which is out of this core's scope (§1: "configuration file
// loading ... out of scope").
var providerRanges = map[string][]string{
	"cloudflare": {
		"173.245.48.0/20", "103.21.244.0/22", "103.22.200.0/22",
		"103.31.4.0/22", "141.101.64.0/18", "108.162.192.0/18",
		"190.93.240.0/20", "188.114.96.0/20", "197.234.240.0/22",
		"198.41.128.0/17", "162.158.0.0/15", "104.16.0.0/13",
		"104.24.0.0/14", "172.64.0.0/13", "131.0.72.0/22",
	},
	"aws": {
		"13.32.0.0/15", "52.46.0.0/18", "99.77.128.0/18", "205.251.192.0/19",
	},
	"gcp": {
		"34.96.0.0/20", "35.191.0.0/16", "130.211.0.0/22",
	},
	"azure": {
		"13.64.0.0/11", "20.33.0.0/16", "40.64.0.0/10",
	},
}

// trustedProxies resolves spec §4.9's "trusted proxy" predicate: CIDR
// membership in a configured list or a named provider set.
type trustedProxies struct {
	nets []*net.IPNet
}

func (t *trustedProxies) trusts(ip net.IP) bool {
	if t == nil || ip == nil {
		return false
	}
	for _, n := range t.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// parseTrustedProxies builds a trustedProxies set from a comma-separated
// CIDR list and a comma-separated provider-name list (spec §4.9).
func parseTrustedProxies(cidrsCSV, providersCSV string) *trustedProxies {
	t := &trustedProxies{}
	for _, raw := range strings.Split(cidrsCSV, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if _, n, err := net.ParseCIDR(raw); err == nil {
			t.nets = append(t.nets, n)
		}
	}
	for _, name := range strings.Split(providersCSV, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		for _, raw := range providerRanges[name] {
			if _, n, err := net.ParseCIDR(raw); err == nil {
				t.nets = append(t.nets, n)
			}
		}
	}
	return t
}

// resolveClientIP implements spec §4.9: when the direct peer is a trusted
// proxy, use the first IP of X-Forwarded-For (bounded by maxForwardedDepth);
// otherwise use the direct socket IP. All header-chain IPs are validated;
// an invalid chain falls back to the socket IP. Per DESIGN NOTES open
// question 3, an untrusted peer's X-Forwarded-For is discarded entirely for
// trust decisions -- the socket IP remains authoritative.
func resolveClientIP(r *http.Request, trusted *trustedProxies, maxForwardedDepth int) string {
	socketIP := socketIPFromRemoteAddr(r.RemoteAddr)

	if !trusted.trusts(net.ParseIP(socketIP)) {
		return socketIP
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return socketIP
	}

	if maxForwardedDepth <= 0 {
		maxForwardedDepth = 1
	}
	parts := strings.Split(xff, ",")
	if len(parts) > maxForwardedDepth {
		parts = parts[:maxForwardedDepth]
	}
	for _, p := range parts {
		if net.ParseIP(strings.TrimSpace(p)) == nil {
			// spec §4.9: "an invalid chain falls back to the socket IP".
			return socketIP
		}
	}

	first := strings.TrimSpace(parts[0])
	if first == "" {
		return socketIP
	}
	return first
}

func socketIPFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
