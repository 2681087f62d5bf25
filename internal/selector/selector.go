// Package selector implements the pure Selector function (spec §4.4): given
// a pool snapshot, a strategy, and a request fingerprint, choose one
// eligible Target. Strategies are expressed as small pure functions
// dispatched by a tagged Strategy constant rather than by string name,
// grounded on DESIGN NOTES §9 ("Dynamic strategy dispatch by string name:
// express the strategy as a tagged variant and a pure function per tag").
//
// Select is generic over Candidate rather than importing internal/target
// directly, so internal/target (which owns the Pool and needs the
// Selector) does not form an import cycle with this package.
package selector

import (
	"crypto/rand"
	"hash/fnv"
	"math/big"
	"sort"

	"github.com/iruldev/gatewaycore/internal/gwerrors"
)

// Strategy is a tagged load-balancing variant (spec §3 TargetPool.strategy).
type Strategy string

const (
	RoundRobin               Strategy = "round_robin"
	Weighted                 Strategy = "weighted"
	Random                   Strategy = "random"
	LeastConnections         Strategy = "least_connections"
	WeightedLeastConnections Strategy = "weighted_least_connections"
	P2C                      Strategy = "p2c"
	IpHash                   Strategy = "ip_hash"
	Latency                  Strategy = "latency"
)

// Valid reports whether s is a recognized strategy (DESIGN NOTES §9:
// "registration maps config strings to variants at startup, rejecting
// unknown names early").
func Valid(s Strategy) bool {
	switch s {
	case RoundRobin, Weighted, Random, LeastConnections, WeightedLeastConnections, P2C, IpHash, Latency:
		return true
	default:
		return false
	}
}

// Fingerprint carries the per-request signal strategies consult (client IP
// for IpHash; nothing for the rest).
type Fingerprint struct {
	ClientIP string
}

// Candidate is everything the Selector needs to know about one pool member.
// internal/target.Target implements this.
type Candidate interface {
	TargetID() string
	Weight() int
	Active() int64
	EWMALatencyMs() float64
	HasObservation() bool
}

// Cursor holds the mutable RoundRobin/Weighted dispatch state the Pool owns
// (spec §3 TargetPool.rrCursor). Kept separate from Candidate so the
// Selector itself stays a pure function of (snapshot, cursor value,
// fingerprint).
type Cursor struct {
	rr   uint64
	swrr map[string]int // per-target current weight for smoothed weighted round-robin
}

// Select runs strategy over the (already eligible) snapshot, returning
// gwerrors.ErrNoEligibleTarget if it is empty (spec §4.4).
func Select[T Candidate](snapshot []T, strategy Strategy, cur *Cursor, fp Fingerprint) (T, error) {
	var zero T
	if len(snapshot) == 0 {
		return zero, gwerrors.New("selector", gwerrors.KindUpstreamUnavailable, gwerrors.CodeNoHealthyUpstream,
			"no eligible target in snapshot", gwerrors.ErrNoEligibleTarget)
	}

	switch strategy {
	case RoundRobin:
		return selectRoundRobin(snapshot, cur), nil
	case Weighted:
		return selectWeighted(snapshot, cur), nil
	case Random:
		return selectRandom(snapshot), nil
	case LeastConnections:
		return selectLeastConnections(snapshot), nil
	case WeightedLeastConnections:
		return selectWeightedLeastConnections(snapshot), nil
	case P2C:
		return selectP2C(snapshot), nil
	case IpHash:
		return selectIPHash(snapshot, fp.ClientIP), nil
	case Latency:
		return selectLatency(snapshot), nil
	default:
		return selectRoundRobin(snapshot, cur), nil
	}
}

func selectRoundRobin[T Candidate](snapshot []T, cur *Cursor) T {
	n := uint64(len(snapshot))
	i := cur.rr % n
	cur.rr++
	return snapshot[i]
}

// selectWeighted implements smoothed weighted round-robin: each call picks
// the target with the highest current weight, then decrements it by the sum
// of all weights (the standard SWRR step), matching spec §4.4's "interleave
// deterministic by smoothed weighted round-robin".
func selectWeighted[T Candidate](snapshot []T, cur *Cursor) T {
	total := 0
	for _, t := range snapshot {
		total += t.Weight()
	}
	if total <= 0 {
		return selectRoundRobin(snapshot, cur)
	}
	if cur.swrr == nil {
		cur.swrr = make(map[string]int, len(snapshot))
	}
	var best T
	bestSet := false
	bestCurrent := -1 << 62
	for _, t := range snapshot {
		cur.swrr[t.TargetID()] += t.Weight()
		if !bestSet || cur.swrr[t.TargetID()] > bestCurrent {
			bestCurrent = cur.swrr[t.TargetID()]
			best = t
			bestSet = true
		}
	}
	cur.swrr[best.TargetID()] -= total
	return best
}

func selectRandom[T Candidate](snapshot []T) T {
	n := big.NewInt(int64(len(snapshot)))
	idx, err := rand.Int(rand.Reader, n)
	if err != nil {
		return snapshot[0]
	}
	return snapshot[idx.Int64()]
}

func selectLeastConnections[T Candidate](snapshot []T) T {
	best := snapshot[0]
	for _, t := range snapshot[1:] {
		if lessLoaded(t, best) {
			best = t
		}
	}
	return best
}

// lessLoaded is the shared tie-break rule: lower active, then lower
// ewmaLatency, then lower id (spec §4.4 LeastConnections).
func lessLoaded[T Candidate](a, b T) bool {
	if a.Active() != b.Active() {
		return a.Active() < b.Active()
	}
	if a.EWMALatencyMs() != b.EWMALatencyMs() {
		return a.EWMALatencyMs() < b.EWMALatencyMs()
	}
	return a.TargetID() < b.TargetID()
}

func selectWeightedLeastConnections[T Candidate](snapshot []T) T {
	best := snapshot[0]
	bestLoad := loadRatio(best)
	for _, t := range snapshot[1:] {
		load := loadRatio(t)
		if load < bestLoad || (load == bestLoad && lessLoaded(t, best)) {
			best = t
			bestLoad = load
		}
	}
	return best
}

func loadRatio[T Candidate](t T) float64 {
	w := t.Weight()
	if w <= 0 {
		w = 1
	}
	return float64(t.Active()) / float64(w)
}

func selectP2C[T Candidate](snapshot []T) T {
	if len(snapshot) == 1 {
		return snapshot[0]
	}
	i, j := randomDistinctPair(len(snapshot))
	a, b := snapshot[i], snapshot[j]
	if lessLoaded(a, b) {
		return a
	}
	return b
}

func randomDistinctPair(n int) (int, int) {
	i := randIntn(n)
	j := randIntn(n - 1)
	if j >= i {
		j++
	}
	return i, j
}

func randIntn(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// selectIPHash hashes clientIP over the ordered eligible list (spec §4.4:
// "not consistent hashing").
func selectIPHash[T Candidate](snapshot []T, clientIP string) T {
	ordered := make([]T, len(snapshot))
	copy(ordered, snapshot)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].TargetID() < ordered[j].TargetID() })

	h := fnv.New64a()
	_, _ = h.Write([]byte(clientIP))
	idx := h.Sum64() % uint64(len(ordered))
	return ordered[idx]
}

func selectLatency[T Candidate](snapshot []T) T {
	for _, t := range snapshot {
		if !t.HasObservation() {
			return t
		}
	}
	best := snapshot[0]
	for _, t := range snapshot[1:] {
		if t.EWMALatencyMs() < best.EWMALatencyMs() {
			best = t
		}
	}
	return best
}
