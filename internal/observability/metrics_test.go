package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPRequestsTotalIncrementsByLabel(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestsTotal.WithLabelValues("/api/users", "GET", "200").Inc()
	HTTPRequestsTotal.WithLabelValues("/api/users", "GET", "200").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/api/users", "GET", "200")))
}

func TestTargetHealthyGaugeReflectsLastSetValue(t *testing.T) {
	TargetHealthy.WithLabelValues("/api/orders", "t1").Set(1)
	assert.Equal(t, float64(1), testutil.ToFloat64(TargetHealthy.WithLabelValues("/api/orders", "t1")))

	TargetHealthy.WithLabelValues("/api/orders", "t1").Set(0)
	assert.Equal(t, float64(0), testutil.ToFloat64(TargetHealthy.WithLabelValues("/api/orders", "t1")))
}

func TestPanicsTotalCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(PanicsTotal)
	PanicsTotal.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(PanicsTotal))
}

func TestClusterWorkersAliveGaugeSet(t *testing.T) {
	ClusterWorkersAlive.Set(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(ClusterWorkersAlive))
}
