package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/joeychilson/strmanip/logger"
)

// Logger returns a middleware that logs HTTP requests using the provided logger.
// The request ID is also placed on the request context so downstream loggers
// built with WithContext carry it.
func Logger(log logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			reqID := middleware.GetReqID(r.Context())
			if reqID != "" {
				r = r.WithContext(logger.ContextWithFields(r.Context(), "request_id", reqID))
			}

			reqLog := log.With(
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)

			reqLog.Debug("request started")

			next.ServeHTTP(ww, r)

			reqLog.Info("request completed",
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}
