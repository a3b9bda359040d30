package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/kiranshivaraju/renderhub/internal/metrics"
)

// RequestRecorder receives the outcome of every API request.
type RequestRecorder interface {
	RecordAPIRequest(responseTimeMs float64, isError bool)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logger logs each request and feeds its duration and outcome to rec.
// Responses with status 400 and above count as errors. rec may be nil.
func Logger(rec RequestRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sr, r)

			elapsed := time.Since(start)
			if rec != nil {
				rec.RecordAPIRequest(float64(elapsed.Microseconds())/1000, sr.status >= http.StatusBadRequest)
			}
			metrics.ObserveRequest(r.Method, sr.status, elapsed.Seconds())

			slog.Info("request",
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", sr.status,
				"duration_ms", elapsed.Milliseconds(),
				"remote_addr", r.RemoteAddr,
			)
		})
	}
}
