package middleware

import (
	"net/http"
	"strings"

	"github.com/josh-kwaku/interbank-settlement/internal/auth"
	"github.com/josh-kwaku/interbank-settlement/internal/handler"
	"github.com/josh-kwaku/interbank-settlement/internal/logging"
)

// Auth admits requests that carry a valid HS256 session token. The session goes on
// the context for handlers, and the user id goes on the request log line and the
// context logger.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			header := r.Header.Get("Authorization")
			token, found := strings.CutPrefix(header, "Bearer ")
			switch {
			case header == "":
				handler.RespondAppError(w, handler.ErrMissingToken, nil)
				return
			case !found || token == "":
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			session, err := auth.ValidateToken(token, secret)
			if err != nil {
				logging.FromContext(ctx).Warn("session token rejected", "error", err)
				handler.RespondAppError(w, handler.ErrInvalidToken, nil)
				return
			}

			logging.AddRequestFields(ctx, "user_id", session.UserID)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("user_id", session.UserID))
			ctx = auth.ContextWithSession(ctx, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
