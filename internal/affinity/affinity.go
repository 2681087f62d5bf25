// Package affinity implements the Session Affinity Store (spec §3/§4.7):
// sessionId -> SessionBinding with a background sweep, grounded on
// internal/interface/http/middleware/ratelimit.go's InMemoryRateLimiter
// (sync.Map + bucketEntry + background cleanup goroutine guarded by
// sync.Once + Stop()), generalized from rate-limit buckets to session
// bindings.
package affinity

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/iruldev/gatewaycore/internal/clock"
)

// MinSessionIDHexLength is the minimum accepted length of a session id
// (spec §4.7: "≥128 bits of cryptographic randomness ... length ≥32").
const MinSessionIDHexLength = 32

// Binding mirrors spec §3 SessionBinding.
type Binding struct {
	SessionID string
	TargetID  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Store is the in-memory sessionId -> Binding map (spec §4.7).
type Store struct {
	clk          clock.Clock
	ttl          time.Duration
	sweepEvery   time.Duration
	mu           sync.RWMutex
	bindings     map[string]Binding
	startOnce    sync.Once
	stopOnce     sync.Once
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// NewStore builds a Store with the given TTL and sweep interval (spec §4.7:
// "background sweep every 300 s").
func NewStore(clk clock.Clock, ttl, sweepEvery time.Duration) *Store {
	if sweepEvery <= 0 {
		sweepEvery = 300 * time.Second
	}
	return &Store{
		clk:        clk,
		ttl:        ttl,
		sweepEvery: sweepEvery,
		bindings:   make(map[string]Binding),
		stopCh:     make(chan struct{}),
	}
}

// Start launches the background sweep goroutine. Calls after the first are
// no-ops.
func (s *Store) Start() {
	s.startOnce.Do(func() {
		ticker := s.clk.NewTicker(s.sweepEvery)
		s.wg.Add(1)
		go s.sweepLoop(ticker)
	})
}

// Stop terminates the sweep goroutine and waits for it to exit.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Store) sweepLoop(ticker clock.Ticker) {
	defer s.wg.Done()
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C():
			s.sweep(now)
		}
	}
}

func (s *Store) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, b := range s.bindings {
		if now.After(b.ExpiresAt) {
			delete(s.bindings, id)
		}
	}
}

// NewSessionID generates a cryptographically random lowercase-hex session
// id with at least 128 bits of entropy (16 bytes -> 32 hex chars).
func NewSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// ValidSessionID checks the hex shape and minimum length (spec §4.7: "no
// Shannon-entropy test").
func ValidSessionID(id string) bool {
	if len(id) < MinSessionIDHexLength {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}

// Lookup returns the binding for sessionID, and whether it was present and
// unexpired. Expired entries are treated as absent but left for the sweep
// to reclaim.
func (s *Store) Lookup(sessionID string) (Binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[sessionID]
	if !ok {
		return Binding{}, false
	}
	if s.clk.Now().After(b.ExpiresAt) {
		return Binding{}, false
	}
	return b, true
}

// Bind creates or renews a binding (spec §4.7: "renewed on each successful
// use").
func (s *Store) Bind(sessionID, targetID string) Binding {
	now := s.clk.Now()
	b := Binding{
		SessionID: sessionID,
		TargetID:  targetID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.mu.Lock()
	s.bindings[sessionID] = b
	s.mu.Unlock()
	return b
}

// Remove deletes a binding outright (used when a target is removed and its
// bindings must be invalidated, spec §3).
func (s *Store) Remove(sessionID string) {
	s.mu.Lock()
	delete(s.bindings, sessionID)
	s.mu.Unlock()
}

// Count returns the number of live bindings, for metrics (spec §6
// sessions_count).
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bindings)
}
