// Package session owns the authentication lifecycle: it checks the backend
// session, logs in through the hosted UI, refreshes near-expiry tokens and
// logs out, publishing every transition as an immutable Snapshot.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ebsalem/portal/client"
	"github.com/ebsalem/portal/cognito"
	"github.com/ebsalem/portal/models"
	"github.com/ebsalem/portal/storage"
	"github.com/ebsalem/portal/storage/memory"
	"github.com/ebsalem/portal/tokenstore"
	"go.uber.org/zap"
)

// DefaultRefreshThreshold is how close to expiry a profile may be before
// CheckAuth refreshes instead of committing it
const DefaultRefreshThreshold = 60 * time.Second

// API is the subset of the backend client the manager drives
type API interface {
	Health(ctx context.Context) error
	Login(ctx context.Context, req *client.LoginRequest) (*models.Profile, error)
	Logout(ctx context.Context) error
	Profile(ctx context.Context) (*models.Profile, error)
	Refresh(ctx context.Context, req *client.RefreshRequest) (*models.Profile, error)
}

// IdentityProvider runs the hosted UI grants
type IdentityProvider interface {
	ExchangeCode(ctx context.Context, code, verifier string) (*models.Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (*models.Tokens, error)
}

// TokenStore persists the identity provider token set
type TokenStore interface {
	Tokens(ctx context.Context) (*models.Tokens, error)
	Save(ctx context.Context, t *models.Tokens) error
	SignOut(ctx context.Context) error
}

// TokenVerifier checks an ID token signature before it is trusted
type TokenVerifier interface {
	ValidateToken(ctx context.Context, token string) (*cognito.ParsedClaims, error)
}

// cookieClearer is implemented by API clients that hold backend cookies
type cookieClearer interface {
	ClearCookies()
}

// Options configures a Manager
type Options struct {
	API      API
	Provider IdentityProvider
	Tokens   TokenStore

	// Local is the persistent scope; Session is the transient scope.
	// Both default to in-memory stores.
	Local   storage.Storage
	Session storage.Storage

	// Verifier is optional; when nil ID tokens are decoded without verification
	Verifier  TokenVerifier
	Navigator Navigator
	Logger    *zap.Logger

	RefreshThreshold time.Duration
	Now              func() time.Time
}

// Manager is the process-wide owner of the session
type Manager struct {
	api       API
	provider  IdentityProvider
	tokens    TokenStore
	local     storage.Storage
	transient storage.Storage
	verifier  TokenVerifier
	navigator Navigator
	logger    *zap.Logger
	threshold time.Duration
	now       func() time.Time

	checking   guard
	refreshing guard
	loggingIn  guard
	loggingOut guard

	// commitMu orders session commits against epoch changes. epoch is
	// bumped by Login and Logout; CheckAuth and RefreshAuth only commit
	// results obtained under the epoch they started in.
	commitMu sync.Mutex
	epoch    uint64

	mu        sync.RWMutex
	snap      Snapshot
	listeners map[int]Listener
	nextID    int
	// publishMu keeps listener delivery in transition order
	publishMu sync.Mutex
}

// NewManager creates a manager in the loading state
func NewManager(opts Options) (*Manager, error) {
	if opts.API == nil {
		return nil, errors.New("session: API is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("session: token store is required")
	}
	if opts.Local == nil {
		opts.Local = memory.New()
	}
	if opts.Session == nil {
		opts.Session = memory.New()
	}
	if opts.Navigator == nil {
		opts.Navigator = noopNavigator{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.RefreshThreshold <= 0 {
		opts.RefreshThreshold = DefaultRefreshThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		api:       opts.API,
		provider:  opts.Provider,
		tokens:    opts.Tokens,
		local:     opts.Local,
		transient: opts.Session,
		verifier:  opts.Verifier,
		navigator: opts.Navigator,
		logger:    opts.Logger,
		threshold: opts.RefreshThreshold,
		now:       opts.Now,
		snap:      Snapshot{State: StateLoading},
		listeners: make(map[int]Listener),
	}, nil
}

// Snapshot returns the current session state
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.clone()
}

// Subscribe registers fn for every subsequent transition and returns a
// function that removes it
func (m *Manager) Subscribe(fn Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// CheckAuth resolves the current session from the backend. Overlapping
// calls are no-ops. An unreachable backend or a rejected session resolves
// to unauthenticated without an error.
func (m *Manager) CheckAuth(ctx context.Context) error {
	if !m.checking.tryAcquire() {
		m.logger.Debug("check auth already in flight")
		return nil
	}
	defer m.checking.release()

	epoch := m.currentEpoch()
	// a signed-in session stays authenticated while it is re-checked
	m.commit(epoch, func() {
		m.update(func(s *Snapshot) {
			if !s.Authenticated {
				s.State = StateLoading
			}
			s.Error = ""
		})
	})

	if err := m.api.Health(ctx); err != nil {
		m.logger.Debug("backend health check failed; treating as signed out", zap.Error(err))
		m.commitUnauthenticated(epoch, "")
		return nil
	}

	profile, err := m.api.Profile(ctx)
	if err != nil {
		derr := classify("profile fetch failed", err)
		if derr.Type == ErrorTypeAuthAbsent {
			m.logger.Debug("no backend session", zap.Error(err))
			m.commitUnauthenticated(epoch, "")
			return nil
		}
		m.logger.Error("profile fetch failed", zap.Error(err))
		if !m.commitUnauthenticated(epoch, UserMessage(derr)) {
			return nil
		}
		return derr
	}

	sess := m.resolveSession(ctx, profile, "")
	if m.currentEpoch() != epoch {
		m.logger.Debug("session changed during check; dropping result")
		return nil
	}
	if sess.ExpiresWithin(m.now(), m.threshold) {
		m.logger.Info("session near expiry; refreshing",
			zap.String("user_id", sess.UserID),
			zap.Time("expires_at", sess.ExpiresAt),
		)
		err := m.RefreshAuth(ctx)
		if IsAuthAbsentError(err) {
			return nil
		}
		return err
	}

	if !m.setAuthenticated(ctx, epoch, sess) {
		m.logger.Debug("session changed during check; dropping result")
	}
	return nil
}

// Login completes a hosted UI sign-in: it exchanges the authorization code,
// forwards the tokens to the backend to mint cookies, backfills role and
// groups from the ID token and redirects by role. verifier is the PKCE code
// verifier of the authorize request, or empty when none was sent.
func (m *Manager) Login(ctx context.Context, code, verifier string) (*models.Session, error) {
	if !m.loggingIn.tryAcquire() {
		return nil, ErrLoginInProgress
	}
	defer m.loggingIn.release()

	epoch := m.bumpEpoch()
	sess, err := m.login(ctx, epoch, code, verifier)
	if err != nil {
		derr := classify("login failed", err)
		m.logger.Warn("login failed", zap.String("error_type", string(derr.Type)), zap.Error(err))
		m.commitUnauthenticated(epoch, UserMessage(derr))
		return nil, derr
	}

	if !m.setAuthenticated(ctx, epoch, sess) {
		m.logger.Info("logout during login; discarding session", zap.String("user_id", sess.UserID))
		m.clearCookies()
		return nil, ErrLoginSuperseded
	}
	m.logger.Info("signed in",
		zap.String("user_id", sess.UserID),
		zap.String("role", sess.Role.String()),
	)
	m.navigator.Navigate(RedirectFor(sess.Role))
	return sess.Clone(), nil
}

func (m *Manager) login(ctx context.Context, epoch uint64, code, verifier string) (*models.Session, error) {
	if m.provider == nil {
		return nil, errors.New("identity provider not configured")
	}

	tokens, err := m.provider.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	if err := m.transient.Set(ctx, storage.KeyIDTokenTemp, []byte(tokens.IDToken), 0); err != nil {
		return nil, fmt.Errorf("stash id token: %w", err)
	}
	defer func() {
		if err := m.transient.Delete(context.WithoutCancel(ctx), storage.KeyIDTokenTemp); err != nil {
			m.logger.Warn("failed to clear temporary id token", zap.Error(err))
		}
	}()

	if m.verifier != nil {
		if _, err := m.verifier.ValidateToken(ctx, tokens.IDToken); err != nil {
			return nil, NewDomainError(ErrorTypeAuthAbsent, "id token rejected", err)
		}
	}

	if err := m.saveTokens(ctx, epoch, tokens); err != nil {
		if errors.Is(err, errSessionChanged) {
			return nil, ErrLoginSuperseded
		}
		return nil, err
	}

	profile, err := m.api.Login(ctx, &client.LoginRequest{
		IDToken:      tokens.IDToken,
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	})
	if err != nil {
		return nil, fmt.Errorf("backend login: %w", err)
	}

	return m.resolveSession(ctx, profile, tokens.IDToken), nil
}

// RefreshAuth renews the session. When a refresh token is stored the
// identity provider grant runs first; backend cookies are then re-minted.
// Overlapping calls are no-ops. On failure the session is cleared.
func (m *Manager) RefreshAuth(ctx context.Context) error {
	if !m.refreshing.tryAcquire() {
		m.logger.Debug("refresh already in flight")
		return nil
	}
	defer m.refreshing.release()

	epoch := m.currentEpoch()
	m.commit(epoch, func() {
		m.update(func(s *Snapshot) {
			s.Refreshing = true
		})
	})

	sess, err := m.refresh(ctx, epoch)
	if err != nil {
		derr := classify("session refresh failed", err)
		msg := ""
		if derr.Type == ErrorTypeAuthAbsent {
			m.logger.Debug("session refresh rejected", zap.Error(err))
		} else {
			m.logger.Error("session refresh failed", zap.Error(err))
			msg = UserMessage(derr)
		}
		stale := !m.commit(epoch, func() {
			m.clearStorage(ctx)
			m.setUnauthenticated(msg)
		})
		if stale {
			m.logger.Debug("session changed during refresh; dropping failure")
			return nil
		}
		return derr
	}

	if !m.setAuthenticated(ctx, epoch, sess) {
		m.logger.Debug("session changed during refresh; dropping result")
	}
	return nil
}

func (m *Manager) refresh(ctx context.Context, epoch uint64) (*models.Session, error) {
	req := &client.RefreshRequest{}
	idToken := ""

	tokens, err := m.tokens.Tokens(ctx)
	switch {
	case err == nil:
		if tokens.RefreshToken != "" && m.provider != nil {
			renewed, rerr := m.provider.Refresh(ctx, tokens.RefreshToken)
			if rerr != nil {
				return nil, fmt.Errorf("refresh grant: %w", rerr)
			}
			if err := m.saveTokens(ctx, epoch, renewed); err != nil {
				return nil, err
			}
			tokens = renewed
		}
		req.IDToken = tokens.IDToken
		req.AccessToken = tokens.AccessToken
		idToken = tokens.IDToken
	case errors.Is(err, tokenstore.ErrNoTokens):
		// cookie-only session; the backend refreshes from its own cookie
	default:
		return nil, fmt.Errorf("load tokens: %w", err)
	}

	profile, err := m.api.Refresh(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("backend refresh: %w", err)
	}
	return m.resolveSession(ctx, profile, idToken), nil
}

// Logout ends the session. The backend call and token revocation are best
// effort; the manager always ends unauthenticated and redirects to the
// login page. Overlapping calls are no-ops. The returned error reports
// local storage that could not be cleared.
func (m *Manager) Logout(ctx context.Context) error {
	if !m.loggingOut.tryAcquire() {
		m.logger.Debug("logout already in flight")
		return nil
	}
	defer m.loggingOut.release()

	// invalidate checks and refreshes already in flight
	m.bumpEpoch()

	if err := m.api.Logout(ctx); err != nil {
		if client.IsAuthAbsent(err) {
			m.logger.Debug("backend logout skipped", zap.Error(err))
		} else {
			m.logger.Warn("backend logout failed", zap.Error(err))
		}
	}
	m.clearCookies()

	if err := m.tokens.SignOut(ctx); err != nil {
		m.logger.Warn("token sign out failed", zap.Error(err))
	}
	err := m.clearStorage(ctx)

	// and any that started while storage was being cleared
	m.bumpEpoch()
	m.setUnauthenticated("")
	m.navigator.Navigate(LoginPath)
	if err != nil {
		return NewDomainError(ErrorTypeUnexpected, "failed to clear local session data", err)
	}
	return nil
}

// resolveSession builds a session from a backend profile, filling role,
// groups and expiry from the ID token when the backend leaves them out.
func (m *Manager) resolveSession(ctx context.Context, profile *models.Profile, idToken string) *models.Session {
	sess := profile.ToSession()
	if !sess.Role.IsKnown() && len(sess.Groups) > 0 {
		sess.Role = cognito.RoleFromGroups(sess.Groups)
	}
	if sess.Role.IsKnown() && len(sess.Groups) > 0 && !sess.ExpiresAt.IsZero() {
		return sess
	}

	if idToken == "" {
		if t, err := m.tokens.Tokens(ctx); err == nil {
			idToken = t.IDToken
		}
	}
	if idToken == "" {
		return sess
	}

	claims, err := cognito.DecodeClaims(idToken)
	if err != nil {
		m.logger.Warn("id token not decodable; no role information",
			zap.Error(classify("decode id token", err)),
		)
		return sess
	}
	if !sess.Role.IsKnown() {
		sess.Role = cognito.RoleFromGroups(claims.Groups)
	}
	if len(sess.Groups) == 0 {
		sess.Groups = claims.Groups
	}
	if sess.ExpiresAt.IsZero() && claims.ExpiresAt != nil {
		sess.ExpiresAt = claims.ExpiresAt.Time
	}
	return sess
}

func (m *Manager) clearStorage(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	if err := m.local.Delete(ctx, storage.LocalAuthKeys...); err != nil {
		errs = append(errs, fmt.Errorf("local storage: %w", err))
	}
	if err := m.transient.Delete(ctx, storage.SessionAuthKeys...); err != nil {
		errs = append(errs, fmt.Errorf("session storage: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		m.logger.Warn("failed to clear auth storage", zap.Error(err))
		return err
	}
	return nil
}

// setAuthenticated commits sess and caches it as the UI user, unless the
// epoch has moved on. It reports whether the commit happened.
func (m *Manager) setAuthenticated(ctx context.Context, epoch uint64, sess *models.Session) bool {
	return m.commit(epoch, func() {
		if raw, err := json.Marshal(sess); err == nil {
			if err := m.local.Set(ctx, storage.KeyUser, raw, 0); err != nil {
				m.logger.Debug("failed to cache user", zap.Error(err))
			}
		}
		m.update(func(s *Snapshot) {
			s.State = StateAuthenticated
			s.Authenticated = true
			s.Refreshing = false
			s.Session = sess.Clone()
			s.Error = ""
		})
	})
}

// saveTokens stores t unless the epoch has moved on
func (m *Manager) saveTokens(ctx context.Context, epoch uint64, t *models.Tokens) error {
	var err error
	if !m.commit(epoch, func() { err = m.tokens.Save(ctx, t) }) {
		return errSessionChanged
	}
	if err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}

func (m *Manager) clearCookies() {
	if cc, ok := m.api.(cookieClearer); ok {
		cc.ClearCookies()
	}
}

func (m *Manager) commitUnauthenticated(epoch uint64, message string) bool {
	return m.commit(epoch, func() {
		m.setUnauthenticated(message)
	})
}

func (m *Manager) currentEpoch() uint64 {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	return m.epoch
}

func (m *Manager) bumpEpoch() uint64 {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	m.epoch++
	return m.epoch
}

// commit runs fn only if the epoch is still epoch
func (m *Manager) commit(epoch uint64, fn func()) bool {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	if m.epoch != epoch {
		return false
	}
	fn()
	return true
}

func (m *Manager) setUnauthenticated(message string) {
	m.update(func(s *Snapshot) {
		s.State = StateUnauthenticated
		s.Authenticated = false
		s.Refreshing = false
		s.Session = nil
		s.Error = message
	})
}

// update applies fn to the snapshot and delivers the result to listeners
func (m *Manager) update(fn func(*Snapshot)) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	next := m.snap.clone()
	fn(&next)
	m.snap = next
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	for _, l := range listeners {
		l(next.clone())
	}
}
