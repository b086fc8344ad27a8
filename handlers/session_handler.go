package handlers

import (
	"net/http"

	"github.com/ebsalem/portal/app"
	"github.com/ebsalem/portal/session"
	"github.com/ebsalem/portal/utils"
	"go.uber.org/zap"
)

// SessionHandler returns the current session snapshot
func SessionHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteOK(w, deps.Manager.Snapshot())
	}
}

// CheckSessionHandler re-runs the session check and returns the resulting snapshot
func CheckSessionHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Manager.CheckAuth(r.Context()); err != nil {
			deps.Logger.Warn("session check failed", zap.Error(err))
			_ = utils.WriteBadGateway(w, session.UserMessage(err))
			return
		}
		_ = utils.WriteOK(w, deps.Manager.Snapshot())
	}
}

// RefreshSessionHandler refreshes the session. A rejected refresh leaves the
// snapshot unauthenticated and answers 401.
func RefreshSessionHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Manager.RefreshAuth(r.Context()); err != nil {
			if session.IsAuthAbsentError(err) {
				_ = utils.WriteUnauthorized(w, "Session expired")
				return
			}
			deps.Logger.Warn("session refresh failed", zap.Error(err))
			_ = utils.WriteBadGateway(w, session.UserMessage(err))
			return
		}
		_ = utils.WriteOK(w, deps.Manager.Snapshot())
	}
}

// LocalLogoutHandler ends the session when no hosted UI is configured
func LocalLogoutHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Manager.Logout(r.Context()); err != nil {
			deps.Logger.Warn("logout left local data behind", zap.Error(err))
		}
		http.Redirect(w, r, session.LoginPath, http.StatusFound)
	}
}
