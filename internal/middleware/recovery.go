package middleware

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/jhaveripatric/api-gateway/internal/cors"
)

// Recovery recovers from panics and returns 500 error carrying the request
// id. When policy is set, the response gets the same cross-origin headers as
// any other response so browsers can read it.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recovery(logger *zap.Logger, policy *cors.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				reqID := GetRequestID(r.Context())
				logger.Error("panic recovered",
					zap.String("request_id", reqID),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)

				if policy != nil {
					policy.Evaluate(r.Header.Get("Origin"), "", nil).Apply(w.Header(), false)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error":      "internal_error",
					"message":    "internal server error",
					"request_id": reqID,
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
