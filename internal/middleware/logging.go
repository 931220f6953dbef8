package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/interbank-settlement/internal/logging"
)

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestID returns the id Logging assigned to the request, or "" outside one.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Logging tags every request with an id (kept from X-Request-ID when the caller sent
// one), scopes the context logger to it and writes one summary line when the request
// finishes. Inner layers add fields to that line with logging.AddRequestFields.
// base is the bank's logger, so each line carries its bank_prefix.
func Logging(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			logger := base.With("request_id", id)
			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			ctx = logging.WithRequestFields(logging.WithLogger(ctx, logger))
			r = r.WithContext(ctx)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if quietPath(r.URL.Path) {
				return
			}

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []any{
				"method", r.Method,
				"route", routeLabel(r),
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
			}
			logger.Log(ctx, level, "request completed", append(attrs, logging.RequestFields(ctx)...)...)
		})
	}
}

// quietPath reports health check and scrape endpoints that would drown the request log.
func quietPath(path string) bool {
	return strings.HasPrefix(path, "/health") || path == "/metrics"
}

// routeLabel is the ServeMux pattern that matched r. It is only set once the request
// has been routed.
func routeLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	return r.Pattern
}
