package handlers

import (
	"net/http"

	"github.com/ebsalem/portal/app"
	"github.com/ebsalem/portal/auth"
	"github.com/ebsalem/portal/middleware"
	"github.com/ebsalem/portal/models"
	"github.com/ebsalem/portal/session"
	"github.com/ebsalem/portal/utils"
)

// PageDescriptor is what the portal serves for a page route. Rendering is
// left to the front end.
type PageDescriptor struct {
	Path    string          `json:"path"`
	Title   string          `json:"title"`
	Public  bool            `json:"public"`
	Roles   []models.Role   `json:"roles,omitempty"`
	Session *models.Session `json:"session,omitempty"`
	// LoginURL is set on the login page
	LoginURL string `json:"loginUrl,omitempty"`
}

// PageHandler serves a page descriptor. Protected pages read the session put
// in the context by the route gate; public pages read the snapshot.
func PageHandler(deps *app.Dependencies, path, title string, roles []models.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := middleware.GetSessionFromContext(r.Context())
		if sess == nil && deps.Manager != nil {
			sess = deps.Manager.Snapshot().Session
		}
		_ = utils.WriteOK(w, PageDescriptor{
			Path:    path,
			Title:   title,
			Public:  len(roles) == 0,
			Roles:   roles,
			Session: sess,
		})
	}
}

// LoginPageHandler sends signed-in users on to ?next= or their role's
// dashboard; everyone else gets the login page descriptor.
func LoginPageHandler(deps *app.Dependencies, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := deps.Manager.Snapshot()
		if snap.Authenticated && snap.Session != nil {
			http.Redirect(w, r, auth.NextPath(r, session.RedirectFor(snap.Session.Role)), http.StatusFound)
			return
		}
		_ = utils.WriteOK(w, PageDescriptor{
			Path:     session.LoginPath,
			Title:    title,
			Public:   true,
			LoginURL: "/auth/login",
		})
	}
}
