package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/godamri/helix-audit/http/response"
)

// PanicRecovery turns a handler panic into a 500 envelope. The process keeps
// serving.
func PanicRecovery(logger *slog.Logger) func(http.Handler) http.Handler {
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

				logger.ErrorContext(r.Context(), "HTTP PANIC RECOVERED",
					"error", fmt.Sprintf("%v", rec),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				// The stack stays in the log.
				response.ErrorJSON(w, r, response.ErrSystem, "Internal server error.")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
