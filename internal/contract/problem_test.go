package contract

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iruldev/gatewaycore/internal/ctxutil"
	"github.com/iruldev/gatewaycore/internal/gwerrors"
)

func TestStatusForKnownAndUnknownCodes(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, StatusFor(gwerrors.CodeCircuitBreakerOpen))
	assert.Equal(t, http.StatusBadGateway, StatusFor(gwerrors.CodeUpstreamTransport))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(gwerrors.Code("NOT_REGISTERED")))
}

func TestNewProblemInDevelopmentKeepsMessageAndDetails(t *testing.T) {
	ge := gwerrors.New("dispatcher", gwerrors.KindUpstreamTimeout, gwerrors.CodeUpstreamTimeout, "timed out talking to upstream-3", nil)
	ge.Details = []string{"attempt 1 of 3 failed"}

	p := NewProblem(ge, "req-1", time.Unix(100, 0), false)
	assert.Equal(t, "timed out talking to upstream-3", p.Detail)
	assert.Equal(t, []string{"attempt 1 of 3 failed"}, p.Details)
	assert.Equal(t, http.StatusGatewayTimeout, p.Status)
}

func TestNewProblemInProductionRedactsMessageAndDropsDetails(t *testing.T) {
	ge := gwerrors.New("dispatcher", gwerrors.KindUpstreamTimeout, gwerrors.CodeUpstreamTimeout, "timed out talking to upstream-3 at 10.0.0.5", nil)
	ge.Details = []string{"internal stack info"}

	p := NewProblem(ge, "req-1", time.Unix(100, 0), true)
	assert.Equal(t, "Upstream Timeout", p.Detail, "production must replace the message with the generic title")
	assert.Empty(t, p.Details, "production must drop details")
}

func TestWriteErrorProducesStableJSONEnvelope(t *testing.T) {
	ctx := ctxutil.WithRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "req-42")
	ge := gwerrors.New("routetable", gwerrors.KindRoute, gwerrors.CodeNotFound, "no matching route", gwerrors.ErrRouteNotFound)

	rec := httptest.NewRecorder()
	WriteError(rec, ctx, ge, time.Unix(500, 0), false)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var body struct {
		Error struct {
			Code      string `json:"code"`
			Message   string `json:"message"`
			RequestID string `json:"requestId"`
			Timestamp int64  `json:"timestamp"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.Equal(t, "req-42", body.Error.RequestID)
	assert.Equal(t, "no matching route", body.Error.Message)
	assert.Equal(t, int64(500000), body.Error.Timestamp)
}

func TestWriteErrorClassifiesNonGatewayErrorAsInternal(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil).Context(), assertionError{}, time.Now(), false)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type assertionError struct{}

func (assertionError) Error() string { return "unexpected internal failure" }
