package middleware

import (
	"net/http"
	"net/url"
	"slices"

	"github.com/ebsalem/portal/models"
	"github.com/ebsalem/portal/session"
	"github.com/ebsalem/portal/utils"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// SessionSource publishes the current session snapshot
type SessionSource interface {
	Snapshot() session.Snapshot
}

// AuthMiddleware gates portal routes on the session manager's state
type AuthMiddleware struct {
	source SessionSource
	logger *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(source SessionSource, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		source: source,
		logger: logger,
	}
}

// RequireRole is the ProtectedRoute gate. Signed-out callers are redirected
// to the login page and callers outside roles get 403. A first check that
// is still loading yields 503; a signed-in session being re-checked is
// served. No roles means any signed-in user.
func (m *AuthMiddleware) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := middleware.GetReqID(r.Context())
			snap := m.source.Snapshot()

			switch {
			case snap.Authenticated && snap.Session != nil:
			case snap.State == session.StateLoading:
				w.Header().Set("Retry-After", "1")
				_ = utils.WriteError(w, http.StatusServiceUnavailable, "Session is loading", nil)
				return
			default:
				m.logger.Debug("no session; redirecting to login",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path))
				http.Redirect(w, r, loginRedirect(r), http.StatusFound)
				return
			}

			if len(roles) > 0 && !slices.Contains(roles, snap.Session.Role) {
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.String("path", r.URL.Path),
					zap.String("role", snap.Session.Role.String()))
				_ = utils.WriteForbidden(w, "Insufficient permissions")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), snap.Session)))
		})
	}
}

func loginRedirect(r *http.Request) string {
	return session.LoginPath + "?" + url.Values{"next": {r.URL.RequestURI()}}.Encode()
}
