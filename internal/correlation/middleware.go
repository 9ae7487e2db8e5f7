package correlation

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Middleware derives request_id from X-Request-ID (generating one if
// absent) and correlation_id from X-Correlation-ID likewise, stores both in
// the request context, echoes them back as response headers, and on
// completion emits one structured log record with method, the matched
// route pattern, status, and duration in milliseconds.
func Middleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = NewID()
			}
			corrID := r.Header.Get("X-Correlation-ID")
			if corrID == "" {
				corrID = NewID()
			}

			w.Header().Set("X-Request-ID", reqID)
			w.Header().Set("X-Correlation-ID", corrID)

			ctx := WithRequestID(r.Context(), reqID)
			ctx = WithCorrelationID(ctx, corrID)

			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r.WithContext(ctx))

			path := r.URL.Path
			if rc := chi.RouteContext(ctx); rc != nil {
				if pattern := rc.RoutePattern(); pattern != "" {
					path = pattern
				}
			}

			logger.InfoContext(ctx, "http request",
				"method", r.Method,
				"path", path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}
