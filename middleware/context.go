package middleware

import (
	"context"

	"github.com/ebsalem/portal/models"
)

// Context key type to avoid collisions
type contextKey string

const (
	// SessionKey is the context key for the signed-in session
	SessionKey contextKey = "session"
)

// GetSessionFromContext retrieves the session placed by RequireRole
func GetSessionFromContext(ctx context.Context) *models.Session {
	if val := ctx.Value(SessionKey); val != nil {
		if sess, ok := val.(*models.Session); ok {
			return sess
		}
	}
	return nil
}

// WithSession adds a session to the context
func WithSession(ctx context.Context, sess *models.Session) context.Context {
	return context.WithValue(ctx, SessionKey, sess)
}
