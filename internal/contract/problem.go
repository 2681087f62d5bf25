// Package contract renders gwerrors.GatewayError as the stable JSON error
// contract from spec §6/§7, grounded on
// internal/transport/http/contract/problem.go's RFC 7807 Problem wrapper.
package contract

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/moogar0880/problems"

	"github.com/iruldev/gatewaycore/internal/ctxutil"
	"github.com/iruldev/gatewaycore/internal/gwerrors"
)

// Problem extends problems.DefaultProblem with the fields the gateway's
// stable error contract requires.
type Problem struct {
	*problems.DefaultProblem
	Code      gwerrors.Code `json:"code"`
	RequestID string        `json:"requestId"`
	Timestamp int64         `json:"timestamp"`
	Details   []string      `json:"details,omitempty"`
}

// errorEnvelope is the wire shape from spec §6:
// {"error":{"code","message","requestId","timestamp","details"}}
type errorEnvelope struct {
	Error struct {
		Code      gwerrors.Code `json:"code"`
		Message   string        `json:"message"`
		RequestID string        `json:"requestId"`
		Timestamp int64         `json:"timestamp"`
		Details   []string      `json:"details,omitempty"`
	} `json:"error"`
}

type statusEntry struct {
	status int
	title  string
}

// registry maps each stable Code to its HTTP status and RFC 7807 title,
// mirroring the teacher's mapper-table approach in
// internal/transport/http/contract.
var registry = map[gwerrors.Code]statusEntry{
	gwerrors.CodeValidationError:      {http.StatusBadRequest, "Validation Error"},
	gwerrors.CodePayloadTooLarge:      {http.StatusRequestEntityTooLarge, "Payload Too Large"},
	gwerrors.CodeURITooLong:           {http.StatusRequestURITooLong, "URI Too Long"},
	gwerrors.CodeHeaderFieldsTooLarge: {http.StatusRequestHeaderFieldsTooLarge, "Request Header Fields Too Large"},
	gwerrors.CodeUnauthorized:         {http.StatusUnauthorized, "Unauthorized"},
	gwerrors.CodeForbidden:            {http.StatusForbidden, "Forbidden"},
	gwerrors.CodeNotFound:             {http.StatusNotFound, "Not Found"},
	gwerrors.CodeMethodNotAllowed:     {http.StatusMethodNotAllowed, "Method Not Allowed"},
	gwerrors.CodeRateLimited:          {http.StatusTooManyRequests, "Rate Limited"},
	gwerrors.CodeCircuitBreakerOpen:   {http.StatusServiceUnavailable, "Circuit Breaker Open"},
	gwerrors.CodeNoHealthyUpstream:    {http.StatusServiceUnavailable, "No Healthy Upstream"},
	gwerrors.CodeUpstreamTransport:    {http.StatusBadGateway, "Upstream Transport Error"},
	gwerrors.CodeUpstreamTimeout:      {http.StatusGatewayTimeout, "Upstream Timeout"},
	gwerrors.CodeInternalError:        {http.StatusInternalServerError, "Internal Error"},
}

// StatusFor returns the HTTP status mapped to code, defaulting to 500 for an
// unregistered code (should not happen post-compile).
func StatusFor(code gwerrors.Code) int {
	if e, ok := registry[code]; ok {
		return e.status
	}
	return http.StatusInternalServerError
}

// NewProblem builds a Problem from a GatewayError for the given request id.
// In production mode, message is replaced by the generic title and Details
// is dropped (spec §7: "messages are generic; stack traces ... never
// included").
func NewProblem(ge *gwerrors.GatewayError, requestID string, now time.Time, production bool) *Problem {
	entry, ok := registry[ge.Code]
	if !ok {
		entry = statusEntry{http.StatusInternalServerError, "Internal Error"}
	}
	message := ge.Message
	var details []string
	if production {
		message = entry.title
	} else {
		details = ge.Details
	}
	dp := problems.NewStatusProblem(entry.status)
	dp.Title = entry.title
	dp.Detail = message
	return &Problem{
		DefaultProblem: dp,
		Code:           ge.Code,
		RequestID:      requestID,
		Timestamp:      now.UnixMilli(),
		Details:        details,
	}
}

// WriteProblem renders p as the stable JSON error envelope and writes it to
// w with the correct status code.
func WriteProblem(w http.ResponseWriter, p *Problem) {
	var env errorEnvelope
	env.Error.Code = p.Code
	env.Error.Message = p.Detail
	env.Error.RequestID = p.RequestID
	env.Error.Timestamp = p.Timestamp
	env.Error.Details = p.Details

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(env)
}

// WriteError is the convenience path used by middleware: classify err,
// pull the request id from ctx, build the Problem, and write it.
func WriteError(w http.ResponseWriter, ctx context.Context, err error, now time.Time, production bool) {
	ge, ok := gwerrors.As(err)
	if !ok {
		ge = gwerrors.New("unknown", gwerrors.KindInternal, gwerrors.CodeInternalError, "unexpected error", err)
	}
	WriteProblem(w, NewProblem(ge, ctxutil.RequestID(ctx), now, production))
}
