package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iruldev/gatewaycore/internal/ctxutil"
)

func TestMapKeyValidatorValidateHitAndMiss(t *testing.T) {
	v := MapKeyValidator{"key-1": "service-a"}

	info, err := v.Validate(t.Context(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, "service-a", info.ServiceID)

	_, err = v.Validate(t.Context(), "unknown")
	assert.Error(t, err)
}

func TestEnvKeyValidatorParsesPairs(t *testing.T) {
	v := EnvKeyValidator("key-1:service-a,key-2:service-b")

	info, err := v.Validate(t.Context(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, "service-a", info.ServiceID)

	info, err = v.Validate(t.Context(), "key-2")
	require.NoError(t, err)
	assert.Equal(t, "service-b", info.ServiceID)
}

func TestEnvKeyValidatorSkipsMalformedAndEmptyPairs(t *testing.T) {
	v := EnvKeyValidator(" ,key-1:service-a,malformed,key-2:,:service-c,")

	assert.Len(t, v, 1, "only the well-formed key:service pair should be parsed")
	info, err := v.Validate(t.Context(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, "service-a", info.ServiceID)
}

func TestAPIKeyAuthRejectsMissingHeader(t *testing.T) {
	called := false
	h := APIKeyAuth(MapKeyValidator{"key-1": "svc"}, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestAPIKeyAuthRejectsInvalidKey(t *testing.T) {
	h := APIKeyAuth(MapKeyValidator{"key-1": "svc"}, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached with an invalid key")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAPIKey, "bogus")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyAuthAttachesClaimsOnSuccess(t *testing.T) {
	var gotServiceID string
	h := APIKeyAuth(MapKeyValidator{"key-1": "svc-a"}, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ctxutil.ClaimsFromContext(r.Context())
		require.True(t, ok)
		gotServiceID = claims.APIKeyID
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAPIKey, "key-1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "svc-a", gotServiceID)
}
