package affinity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iruldev/gatewaycore/internal/clock"
)

func TestNewSessionIDIsValidAndUnique(t *testing.T) {
	a, err := NewSessionID()
	require.NoError(t, err)
	b, err := NewSessionID()
	require.NoError(t, err)

	assert.True(t, ValidSessionID(a))
	assert.NotEqual(t, a, b)
}

func TestValidSessionIDRejectsShortOrNonHex(t *testing.T) {
	assert.False(t, ValidSessionID("abc"))
	assert.False(t, ValidSessionID("zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz"))
	assert.True(t, ValidSessionID("0123456789abcdef0123456789abcdef"))
}

func TestBindAndLookupRoundTrip(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	store := NewStore(clk, time.Minute, time.Hour)

	store.Bind("sess1", "target-a")
	b, ok := store.Lookup("sess1")
	require.True(t, ok)
	assert.Equal(t, "target-a", b.TargetID)
}

func TestLookupReportsMissingForExpiredBinding(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	store := NewStore(clk, time.Second, time.Hour)

	store.Bind("sess1", "target-a")
	clk.Advance(2 * time.Second)

	_, ok := store.Lookup("sess1")
	assert.False(t, ok, "an expired binding must be treated as absent even before the sweep runs")
}

func TestBindRenewsExpiryOnRebind(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	store := NewStore(clk, time.Second, time.Hour)

	store.Bind("sess1", "target-a")
	clk.Advance(900 * time.Millisecond)
	store.Bind("sess1", "target-a")
	clk.Advance(900 * time.Millisecond)

	_, ok := store.Lookup("sess1")
	assert.True(t, ok, "rebinding before expiry extends the TTL")
}

func TestRemoveDeletesBindingOutright(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	store := NewStore(clk, time.Minute, time.Hour)
	store.Bind("sess1", "target-a")

	store.Remove("sess1")
	_, ok := store.Lookup("sess1")
	assert.False(t, ok)
}

func TestCountReflectsLiveBindings(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	store := NewStore(clk, time.Minute, time.Hour)
	assert.Equal(t, 0, store.Count())

	store.Bind("a", "t1")
	store.Bind("b", "t2")
	assert.Equal(t, 2, store.Count())

	store.Remove("a")
	assert.Equal(t, 1, store.Count())
}

func TestBackgroundSweepReclaimsExpiredBindings(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	store := NewStore(clk, time.Second, 5*time.Second)
	store.Start()
	defer store.Stop()

	store.Bind("sess1", "target-a")
	require.Equal(t, 1, store.Count())

	clk.Advance(2 * time.Second)  // binding expires
	clk.Advance(5 * time.Second) // sweep tick fires

	assert.Eventually(t, func() bool {
		return store.Count() == 0
	}, time.Second, time.Millisecond, "the background sweep must reclaim expired bindings")
}

func TestStopIsIdempotentAndWaitsForSweepGoroutine(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	store := NewStore(clk, time.Minute, time.Hour)
	store.Start()

	store.Stop()
	assert.NotPanics(t, func() { store.Stop() })
}
