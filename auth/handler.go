package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/ebsalem/portal/models"
	"github.com/ebsalem/portal/session"
	"github.com/ebsalem/portal/tokenstore"
	"github.com/ebsalem/portal/utils"
	"go.uber.org/zap"
)

const (
	// StateCookieName is the cookie name for OAuth state (CSRF)
	StateCookieName = "oauth_state"
	// VerifierCookieName holds the PKCE code verifier between login and callback
	VerifierCookieName = "oauth_verifier"
	stateCookieMaxAge  = 600
)

// HostedUI builds the identity provider redirect URLs
type HostedUI interface {
	AuthorizeURL(state, verifier string) string
	LogoutURL() string
}

// SessionManager runs the login and logout lifecycle
type SessionManager interface {
	Login(ctx context.Context, code, verifier string) (*models.Session, error)
	Logout(ctx context.Context) error
}

// Handler handles OAuth2 authentication flows (login, callback, logout).
type Handler struct {
	hostedUI HostedUI
	manager  SessionManager
	secure   bool
	logger   *zap.Logger

	// OnLogin, when set, observes every callback outcome
	OnLogin func(*models.Session, error)
}

// NewHandler creates a new auth handler. hostedUI may be nil when Cognito
// is not configured; login then answers 500.
func NewHandler(hostedUI HostedUI, manager SessionManager, redirectURI string, logger *zap.Logger) *Handler {
	return &Handler{
		hostedUI: hostedUI,
		manager:  manager,
		secure:   strings.HasPrefix(redirectURI, "https"),
		logger:   logger,
	}
}

// HandleLogin redirects to the hosted UI for OAuth2 authorization
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.hostedUI == nil {
		h.logger.Error("cognito not configured")
		_ = utils.WriteInternalServerError(w, "Authentication not configured")
		return
	}

	state, err := generateSecureState()
	if err != nil {
		h.logger.Error("failed to generate state", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to initiate login")
		return
	}

	verifier := tokenstore.NewVerifier()
	h.setCookie(w, StateCookieName, state, stateCookieMaxAge)
	h.setCookie(w, VerifierCookieName, verifier, stateCookieMaxAge)
	http.Redirect(w, r, h.hostedUI.AuthorizeURL(state, verifier), http.StatusFound)
}

// HandleCallback checks the CSRF state, hands the authorization code to the
// session manager and redirects by role
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		h.logger.Warn("hosted UI returned an error",
			zap.String("error", providerErr),
			zap.String("description", query.Get("error_description")))
		h.notify(nil, session.NewDomainError(session.ErrorTypeAuthAbsent, "sign-in cancelled", nil))
		_ = utils.WriteUnauthorized(w, "Authentication failed")
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" {
		_ = utils.WriteBadRequest(w, "Missing authorization code", nil)
		return
	}
	if state == "" {
		_ = utils.WriteBadRequest(w, "Missing state parameter", nil)
		return
	}

	stateCookie, err := r.Cookie(StateCookieName)
	if err != nil || stateCookie.Value != state {
		_ = utils.WriteBadRequest(w, "Invalid or expired state", nil)
		return
	}
	verifierCookie, err := r.Cookie(VerifierCookieName)
	if err != nil || verifierCookie.Value == "" {
		_ = utils.WriteBadRequest(w, "Invalid or expired state", nil)
		return
	}
	h.setCookie(w, StateCookieName, "", -1)
	h.setCookie(w, VerifierCookieName, "", -1)

	sess, err := h.manager.Login(r.Context(), code, verifierCookie.Value)
	h.notify(sess, err)
	if err != nil {
		h.logger.Warn("login failed", zap.Error(err))
		if session.IsAuthAbsentError(err) {
			_ = utils.WriteUnauthorized(w, "Authentication failed")
			return
		}
		_ = utils.WriteError(w, http.StatusBadGateway, session.UserMessage(err), nil)
		return
	}

	http.Redirect(w, r, session.RedirectFor(sess.Role), http.StatusFound)
}

// HandleLogout ends the session and redirects to the hosted UI logout,
// or to the login page when Cognito is not configured
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Logout(r.Context()); err != nil {
		h.logger.Warn("logout left local data behind", zap.Error(err))
	}

	target := session.LoginPath
	if h.hostedUI != nil {
		target = h.hostedUI.LogoutURL()
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) notify(sess *models.Session, err error) {
	if h.OnLogin != nil {
		h.OnLogin(sess, err)
	}
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// NextPath returns the validated post-login target carried in ?next=,
// falling back to def. Only same-origin absolute paths are accepted.
func NextPath(r *http.Request, def string) string {
	next := r.URL.Query().Get("next")
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return def
	}
	if u, err := url.Parse(next); err != nil || u.Host != "" {
		return def
	}
	return next
}

func generateSecureState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
