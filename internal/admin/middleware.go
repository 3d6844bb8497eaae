package admin

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/syncbridge/eventbridge/internal/pkg/logger"
)

// statusWriter captures the response status code, adapted from the
// teacher's internal/delivery/http/middleware/logger.go responseWriter.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// requestLogger logs method/path/status/duration for every admin request,
// the same fields the teacher's HTTP logger middleware records.
func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.WithFields(map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      sw.statusCode,
				"duration_ms": time.Since(start).Milliseconds(),
			}).Debug("admin request")
		})
	}
}

// recovery recovers a panicking handler into a 500, matching the teacher's
// internal/delivery/http/middleware/recovery.go.
func recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.GetZerologLogger().Error().
						Interface("panic", rec).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Str("stacktrace", string(debug.Stack())).
						Msg("admin handler panic recovered")
					writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
