package auth

import (
	"context"

	"github.com/google/uuid"
)

type sessionKey struct{}

// ContextWithSession records the authenticated caller for downstream handlers.
func ContextWithSession(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, sessionKey{}, c)
}

func SessionFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(sessionKey{}).(*Claims)
	return c, ok && c != nil
}

// UserIDFromContext is the owner of every account the caller may debit or list.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	c, ok := SessionFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return c.UserID, true
}
