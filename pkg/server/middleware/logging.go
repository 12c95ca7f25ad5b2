package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"arbor-hq/gatekeeper/pkg/telemetry/logging"
	"arbor-hq/gatekeeper/pkg/telemetry/metrics"
)

// statusRecorder captures the response status code for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Logging logs one line per request and records request metrics. The
// collector may be nil when metrics are disabled.
func Logging(logger *slog.Logger, collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			logger.Info("request",
				"request_id", logging.RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration_ms", duration.Milliseconds(),
			)

			if collector != nil {
				collector.RecordRequest(r.Method, strconv.Itoa(rec.status), duration)
			}
		})
	}
}
