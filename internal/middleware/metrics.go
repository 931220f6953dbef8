package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/josh-kwaku/interbank-settlement/internal/metrics"
)

// Metrics records request counts and latency by matched route pattern. It must wrap
// the ServeMux directly so the pattern set during routing is visible afterwards.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := routeLabel(r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
