package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/iruldev/gatewaycore/internal/contract"
	"github.com/iruldev/gatewaycore/internal/ctxutil"
	"github.com/iruldev/gatewaycore/internal/gwerrors"
	"github.com/iruldev/gatewaycore/internal/observability"
)

// ErrorHandler is the outermost middleware (spec §4.2): it recovers a panic
// anywhere in the rest of the chain, counts and logs it, and answers with a
// 500 INTERNAL_ERROR envelope. Errors that inner layers render themselves
// pass through untouched. It merges
// internal/transport/http/middleware/recover.go's panic-counter +
// RFC7807-response pattern with
// internal/interface/http/middleware/error_handler.go's recovery-logging
// structure.
func ErrorHandler(log *zap.Logger, production bool) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					observability.PanicsTotal.Inc()
					log.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("requestId", ctxutil.RequestID(r.Context())),
						zap.ByteString("stack", debug.Stack()),
					)
					ge := gwerrors.New("panic_recovery", gwerrors.KindInternal, gwerrors.CodeInternalError,
						"internal server error", nil)
					contract.WriteError(w, r.Context(), ge, time.Now(), production)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
