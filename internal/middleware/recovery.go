package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"barrel-market-api/internal/logging"
	"barrel-market-api/pkg/apierror"
	"barrel-market-api/pkg/response"
)

// NewRecovery turns a handler panic into a 500 response.
func NewRecovery(log *slog.Logger) func(http.Handler) http.Handler {
	log = logging.Component(log, "http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					log.Error("panic",
						"error", err,
						"path", r.URL.Path,
						"request_id", GetRequestID(r.Context()),
						"stack", string(debug.Stack()),
					)
					response.Error(w, apierror.InternalError("internal server error"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
