package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/josh-kwaku/interbank-settlement/internal/handler"
	"github.com/josh-kwaku/interbank-settlement/internal/logging"
	"github.com/josh-kwaku/interbank-settlement/internal/metrics"
)

const b2bPathPrefix = "/transactions/b2b"

// Recovery turns a handler panic into a 500. Peer banks calling /transactions/b2b get
// the settlement protocol's {"error"} body; API clients get the response envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			metrics.HTTPPanics.WithLabelValues(routeLabel(r)).Inc()
			logging.FromContext(r.Context()).Error("panic recovered",
				"panic", rec,
				"route", routeLabel(r),
				"stack", string(debug.Stack()),
			)

			if strings.HasPrefix(r.URL.Path, b2bPathPrefix) {
				handler.RespondProtocolError(w, fmt.Errorf("panic: %v", rec))
				return
			}
			handler.RespondAppError(w, handler.ErrInternalError, nil)
		}()
		next.ServeHTTP(w, r)
	})
}
