package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/ebsalem/portal/client"
	"github.com/ebsalem/portal/models"
	"github.com/ebsalem/portal/storage"
	"github.com/ebsalem/portal/storage/memory"
	"github.com/ebsalem/portal/tokenstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	m        *Manager
	api      *mockAPI
	provider *mockProvider
	tokens   *tokenstore.Store
	local    *memory.Storage
	session  *memory.Storage
	nav      *recordingNavigator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		api:      new(mockAPI),
		provider: new(mockProvider),
		local:    memory.New(),
		session:  memory.New(),
		nav:      &recordingNavigator{},
	}
	h.tokens = tokenstore.NewStore(h.local, nil, zap.NewNop())

	m, err := NewManager(Options{
		API:       h.api,
		Provider:  h.provider,
		Tokens:    h.tokens,
		Local:     h.local,
		Session:   h.session,
		Navigator: h.nav,
		Logger:    zap.NewNop(),
		Now:       func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	h.m = m
	return h
}

func TestNewManager(t *testing.T) {
	_, err := NewManager(Options{})
	assert.Error(t, err)

	m, err := NewManager(Options{API: new(mockAPI), Tokens: tokenstore.NewStore(memory.New(), nil, zap.NewNop())})
	require.NoError(t, err)
	snap := m.Snapshot()
	assert.Equal(t, StateLoading, snap.State)
	assert.False(t, snap.Authenticated)
	assert.Nil(t, snap.Session)
	assert.Equal(t, DefaultRefreshThreshold, m.threshold)
}

func TestCheckAuth_Authenticated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.api.On("Health", mock.Anything).Return(nil).Once()
	h.api.On("Profile", mock.Anything).Return(&models.Profile{
		ID:    "u-1",
		Email: "ana@ebsalem.org",
		Name:  "Ana",
		Role:  "student",
		Exp:   fixedNow.Add(time.Hour).Unix(),
	}, nil).Once()

	require.NoError(t, h.m.CheckAuth(ctx))

	snap := h.m.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.True(t, snap.Authenticated)
	require.NotNil(t, snap.Session)
	assert.Equal(t, models.RoleStudent, snap.Session.Role)
	assert.Equal(t, "u-1", snap.Session.UserID)

	cached, err := h.local.Get(ctx, storage.KeyUser)
	require.NoError(t, err)
	assert.Contains(t, string(cached), `"userId":"u-1"`)
	h.api.AssertExpectations(t)
}

func TestCheckAuth_HealthFailureIsNoSession(t *testing.T) {
	h := newHarness(t)

	h.api.On("Health", mock.Anything).Return(&client.NetworkError{Method: "GET", Path: "/health", Err: errors.New("connection refused")})

	require.NoError(t, h.m.CheckAuth(context.Background()))

	snap := h.m.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Empty(t, snap.Error)
	h.api.AssertNotCalled(t, "Profile", mock.Anything)
}

func TestCheckAuth_ProfileErrors(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantErr   bool
		wantError bool
	}{
		{"unauthorized", &client.APIError{StatusCode: http.StatusUnauthorized}, false, false},
		{"forbidden", &client.APIError{StatusCode: http.StatusForbidden}, false, false},
		{"network", &client.NetworkError{Err: errors.New("reset")}, false, false},
		{"server error", &client.APIError{StatusCode: http.StatusInternalServerError, Message: "db down"}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.api.On("Health", mock.Anything).Return(nil)
			h.api.On("Profile", mock.Anything).Return(nil, tt.err)

			err := h.m.CheckAuth(context.Background())
			snap := h.m.Snapshot()
			assert.Equal(t, StateUnauthenticated, snap.State)
			assert.Nil(t, snap.Session)

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsUnexpectedError(err))
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantError, snap.Error != "")
		})
	}
}

func TestCheckAuth_NearExpiryRefreshes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.api.On("Health", mock.Anything).Return(nil)
	h.api.On("Profile", mock.Anything).Return(&models.Profile{
		ID:   "u-1",
		Role: "coordinator",
		Exp:  fixedNow.Add(30 * time.Second).Unix(),
	}, nil).Once()
	h.api.On("Refresh", mock.Anything, mock.Anything).Return(&models.Profile{
		ID:   "u-1",
		Role: "coordinator",
		Exp:  fixedNow.Add(time.Hour).Unix(),
	}, nil).Once()

	var states []Snapshot
	unsubscribe := h.m.Subscribe(func(s Snapshot) { states = append(states, s) })
	defer unsubscribe()

	require.NoError(t, h.m.CheckAuth(ctx))

	snap := h.m.Snapshot()
	assert.Equal(t, StateAuthenticated, snap.State)
	assert.Equal(t, fixedNow.Add(time.Hour).Unix(), snap.Session.ExpiresAt.Unix(), "stale profile is not committed")
	h.api.AssertNumberOfCalls(t, "Refresh", 1)

	var sawRefreshing bool
	for _, s := range states {
		if s.Refreshing {
			sawRefreshing = true
			assert.Nil(t, s.Session, "stale profile never published")
		}
	}
	assert.True(t, sawRefreshing)
}

func TestCheckAuth_NearExpiryRefreshRejected(t *testing.T) {
	h := newHarness(t)

	h.api.On("Health", mock.Anything).Return(nil)
	h.api.On("Profile", mock.Anything).Return(&models.Profile{ID: "u-1", Exp: fixedNow.Add(10 * time.Second).Unix()}, nil)
	h.api.On("Refresh", mock.Anything, mock.Anything).Return(nil, &client.APIError{StatusCode: http.StatusUnauthorized})

	require.NoError(t, h.m.CheckAuth(context.Background()))
	assert.Equal(t, StateUnauthenticated, h.m.Snapshot().State)
}

func TestCheckAuth_ConcurrentCallsFetchProfileOnce(t *testing.T) {
	h := newHarness(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.api.On("Health", mock.Anything).Return(nil)
	h.api.On("Profile", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(&models.Profile{ID: "u-1", Role: "admin"}, nil).Once()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, h.m.CheckAuth(context.Background()))
	}()

	<-entered
	assert.Equal(t, opInFlight, h.m.checking.current())
	// second trigger while the first is in flight is a no-op
	require.NoError(t, h.m.CheckAuth(context.Background()))
	close(release)
	wg.Wait()

	h.api.AssertNumberOfCalls(t, "Profile", 1)
	assert.Equal(t, opIdle, h.m.checking.current())
	assert.Equal(t, models.RoleAdmin, h.m.Snapshot().Role())
}

func TestLogin_BackfillsRoleFromIDToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	raw := idToken(t, "u-7", []string{"estudiantes", "administradores"}, fixedNow.Add(time.Hour))
	tokens := &models.Tokens{IDToken: raw, AccessToken: "access", RefreshToken: "refresh"}
	h.provider.On("ExchangeCode", mock.Anything, "code-1", "v-1").Return(tokens, nil)
	h.api.On("Login", mock.Anything, mock.MatchedBy(func(req *client.LoginRequest) bool {
		return req.IDToken == raw && req.AccessToken == "access" && req.RefreshToken == "refresh"
	})).Run(func(mock.Arguments) {
		stashed, err := h.session.Get(ctx, storage.KeyIDTokenTemp)
		assert.NoError(t, err)
		assert.Equal(t, raw, string(stashed))
	}).Return(&models.Profile{ID: "u-7", Email: "u-7@ebsalem.org"}, nil)

	sess, err := h.m.Login(ctx, "code-1", "v-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, sess.Role)
	assert.Equal(t, []string{"estudiantes", "administradores"}, sess.Groups)
	assert.Equal(t, fixedNow.Add(time.Hour).Unix(), sess.ExpiresAt.Unix())

	assert.Equal(t, []string{"/admin/dashboard"}, h.nav.visited())
	assert.True(t, h.m.Snapshot().Authenticated)

	_, err = h.session.Get(ctx, storage.KeyIDTokenTemp)
	assert.ErrorIs(t, err, storage.ErrNotFound, "temporary id token is removed")

	stored, err := h.tokens.Tokens(ctx)
	require.NoError(t, err)
	assert.Equal(t, "refresh", stored.RefreshToken)
}

func TestLogin_BackendRoleWins(t *testing.T) {
	h := newHarness(t)

	raw := idToken(t, "u-2", []string{"administradores"}, time.Time{})
	h.provider.On("ExchangeCode", mock.Anything, "c", "v-1").Return(&models.Tokens{IDToken: raw, AccessToken: "a"}, nil)
	h.api.On("Login", mock.Anything, mock.Anything).Return(&models.Profile{ID: "u-2", Role: "coordinator", Groups: []string{"coordinadores"}}, nil)

	sess, err := h.m.Login(context.Background(), "c", "v-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleCoordinator, sess.Role)
	assert.Equal(t, []string{"/coordinator/dashboard"}, h.nav.visited())
}

func TestLogin_MalformedIDTokenMeansNoRole(t *testing.T) {
	h := newHarness(t)

	h.provider.On("ExchangeCode", mock.Anything, "c", "v-1").Return(&models.Tokens{IDToken: "not-a-jwt", AccessToken: "a"}, nil)
	h.api.On("Login", mock.Anything, mock.Anything).Return(&models.Profile{ID: "u-3"}, nil)

	sess, err := h.m.Login(context.Background(), "c", "v-1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleUnknown, sess.Role)
	assert.Equal(t, []string{"/"}, h.nav.visited())
}

func TestLogin_Failures(t *testing.T) {
	t.Run("code exchange rejected", func(t *testing.T) {
		h := newHarness(t)
		h.provider.On("ExchangeCode", mock.Anything, "stale", "v-1").
			Return(nil, &tokenstore.TokenError{StatusCode: 400, Code: "invalid_grant"})

		_, err := h.m.Login(context.Background(), "stale", "v-1")
		require.Error(t, err)
		assert.True(t, IsAuthAbsentError(err))

		snap := h.m.Snapshot()
		assert.Equal(t, StateUnauthenticated, snap.State)
		assert.Contains(t, snap.Error, "login failed")
		assert.Empty(t, h.nav.visited())
		h.api.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
	})

	t.Run("backend login error", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()
		h.provider.On("ExchangeCode", mock.Anything, "c", "v-1").Return(&models.Tokens{IDToken: "x.y.z", AccessToken: "a"}, nil)
		h.api.On("Login", mock.Anything, mock.Anything).Return(nil, &client.APIError{StatusCode: 500})

		_, err := h.m.Login(ctx, "c", "v-1")
		require.Error(t, err)
		assert.True(t, IsUnexpectedError(err))

		_, err = h.session.Get(ctx, storage.KeyIDTokenTemp)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("login in progress", func(t *testing.T) {
		h := newHarness(t)
		require.True(t, h.m.loggingIn.tryAcquire())
		defer h.m.loggingIn.release()

		_, err := h.m.Login(context.Background(), "c", "v-1")
		assert.ErrorIs(t, err, ErrLoginInProgress)
		h.provider.AssertNotCalled(t, "ExchangeCode", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestRefreshAuth_UsesRefreshGrant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.tokens.Save(ctx, &models.Tokens{IDToken: "old-id", AccessToken: "old", RefreshToken: "r-1"}))

	h.provider.On("Refresh", mock.Anything, "r-1").
		Return(&models.Tokens{IDToken: "new-id", AccessToken: "new", RefreshToken: "r-1"}, nil)
	h.api.On("Refresh", mock.Anything, &client.RefreshRequest{IDToken: "new-id", AccessToken: "new"}).
		Return(&models.Profile{ID: "u-1", Role: "student"}, nil)

	require.NoError(t, h.m.RefreshAuth(ctx))

	snap := h.m.Snapshot()
	assert.True(t, snap.Authenticated)
	assert.False(t, snap.Refreshing)

	access, err := h.tokens.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", access)
}

func TestRefreshAuth_CookieOnly(t *testing.T) {
	h := newHarness(t)

	h.api.On("Refresh", mock.Anything, &client.RefreshRequest{}).Return(&models.Profile{ID: "u-1"}, nil)

	require.NoError(t, h.m.RefreshAuth(context.Background()))
	assert.True(t, h.m.Snapshot().Authenticated)
	h.provider.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
}

func TestRefreshAuth_FailureForcesUnauthenticated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.tokens.Save(ctx, &models.Tokens{IDToken: "id", AccessToken: "a", RefreshToken: "r"}))

	h.provider.On("Refresh", mock.Anything, "r").Return(nil, errors.New("tls handshake timeout"))

	err := h.m.RefreshAuth(ctx)
	require.Error(t, err)
	assert.True(t, IsUnexpectedError(err))

	snap := h.m.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.NotEmpty(t, snap.Error)
	_, err = h.tokens.Tokens(ctx)
	assert.ErrorIs(t, err, tokenstore.ErrNoTokens)
}

func TestRefreshAuth_InFlightIsNoop(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.m.refreshing.tryAcquire())
	defer h.m.refreshing.release()

	assert.NoError(t, h.m.RefreshAuth(context.Background()))
	h.api.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
}

func TestLogout_ClearsEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.api.On("Health", mock.Anything).Return(nil)
	h.api.On("Profile", mock.Anything).Return(&models.Profile{ID: "u-1", Role: "student"}, nil)
	require.NoError(t, h.m.CheckAuth(ctx))

	require.NoError(t, h.tokens.Save(ctx, &models.Tokens{IDToken: "id", AccessToken: "a"}))
	require.NoError(t, h.local.Set(ctx, storage.KeyDarkMode, []byte("true"), 0))
	require.NoError(t, h.session.Set(ctx, storage.KeyIDTokenTemp, []byte("id"), 0))

	h.api.On("Logout", mock.Anything).Return(errors.New("backend exploded"))

	require.NoError(t, h.m.Logout(ctx))

	for _, key := range storage.LocalAuthKeys {
		_, err := h.local.Get(ctx, key)
		assert.ErrorIs(t, err, storage.ErrNotFound, key)
	}
	for _, key := range storage.SessionAuthKeys {
		_, err := h.session.Get(ctx, key)
		assert.ErrorIs(t, err, storage.ErrNotFound, key)
	}

	snap := h.m.Snapshot()
	assert.Nil(t, snap.Session)
	assert.False(t, snap.Authenticated)
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Equal(t, []string{LoginPath}, h.nav.visited())
}

func TestLogout_InFlightIsNoop(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.m.loggingOut.tryAcquire())

	assert.NoError(t, h.m.Logout(context.Background()))
	h.api.AssertNotCalled(t, "Logout", mock.Anything)
	assert.Empty(t, h.nav.visited())

	// the guard is per invocation, not one-shot
	h.m.loggingOut.release()
	h.api.On("Logout", mock.Anything).Return(nil)
	require.NoError(t, h.m.Logout(context.Background()))
	require.NoError(t, h.m.Logout(context.Background()))
	h.api.AssertNumberOfCalls(t, "Logout", 2)
}

func TestLogout_WinsOverInFlightCheck(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	h.api.On("Health", mock.Anything).Return(nil)
	h.api.On("Profile", mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(&models.Profile{ID: "u-1", Role: "student", Exp: fixedNow.Add(time.Hour).Unix()}, nil).Once()
	h.api.On("Logout", mock.Anything).Return(nil)

	done := make(chan error, 1)
	go func() { done <- h.m.CheckAuth(ctx) }()

	<-entered
	require.NoError(t, h.m.Logout(ctx))
	close(release)
	require.NoError(t, <-done)

	snap := h.m.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.False(t, snap.Authenticated)
	assert.Nil(t, snap.Session)

	_, err := h.local.Get(ctx, storage.KeyUser)
	assert.ErrorIs(t, err, storage.ErrNotFound, "signed-out user is not cached again")
}

func TestLogout_WinsOverInFlightRefresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	h.api.On("Refresh", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(&models.Profile{ID: "u-1", Role: "student"}, nil).Once()
	h.api.On("Logout", mock.Anything).Return(nil)

	done := make(chan error, 1)
	go func() { done <- h.m.RefreshAuth(ctx) }()

	<-entered
	require.NoError(t, h.m.Logout(ctx))
	close(release)
	require.NoError(t, <-done)

	assert.False(t, h.m.Snapshot().Authenticated)
	_, err := h.local.Get(ctx, storage.KeyUser)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLogout_DropsLateRefreshGrant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.tokens.Save(ctx, &models.Tokens{IDToken: "id", AccessToken: "a", RefreshToken: "r-1"}))

	entered := make(chan struct{})
	release := make(chan struct{})
	h.provider.On("Refresh", mock.Anything, "r-1").Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(&models.Tokens{IDToken: "id-2", AccessToken: "a-2", RefreshToken: "r-1"}, nil)
	h.api.On("Logout", mock.Anything).Return(nil)

	done := make(chan error, 1)
	go func() { done <- h.m.RefreshAuth(ctx) }()

	<-entered
	require.NoError(t, h.m.Logout(ctx))
	close(release)
	require.NoError(t, <-done)

	_, err := h.tokens.Tokens(ctx)
	assert.ErrorIs(t, err, tokenstore.ErrNoTokens, "renewed tokens are not written after sign-out")
	h.api.AssertNotCalled(t, "Refresh", mock.Anything, mock.Anything)
	assert.False(t, h.m.Snapshot().Authenticated)
}

func TestLogout_DuringLoginDiscardsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	raw := idToken(t, "u-7", []string{"estudiantes"}, fixedNow.Add(time.Hour))
	h.provider.On("ExchangeCode", mock.Anything, "code-1", "v-1").Return(&models.Tokens{IDToken: raw, AccessToken: "a", RefreshToken: "r"}, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	h.api.On("Login", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		close(entered)
		<-release
	}).Return(&models.Profile{ID: "u-7", Role: "student"}, nil)
	h.api.On("Logout", mock.Anything).Return(nil)

	type result struct {
		sess *models.Session
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sess, err := h.m.Login(ctx, "code-1", "v-1")
		done <- result{sess, err}
	}()

	<-entered
	require.NoError(t, h.m.Logout(ctx))
	close(release)
	res := <-done

	require.Error(t, res.err)
	assert.ErrorIs(t, res.err, ErrLoginSuperseded)
	assert.True(t, IsAuthAbsentError(res.err))
	assert.Nil(t, res.sess)
	assert.False(t, h.m.Snapshot().Authenticated)
	assert.Equal(t, []string{LoginPath}, h.nav.visited(), "no role redirect after sign-out")

	_, err := h.tokens.Tokens(ctx)
	assert.ErrorIs(t, err, tokenstore.ErrNoTokens)
}

func TestCheckAuth_RecheckStaysAuthenticated(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.api.On("Health", mock.Anything).Return(nil)
	h.api.On("Profile", mock.Anything).Return(&models.Profile{ID: "u-1", Role: "admin", Exp: fixedNow.Add(time.Hour).Unix()}, nil)
	require.NoError(t, h.m.CheckAuth(ctx))

	var states []State
	unsubscribe := h.m.Subscribe(func(s Snapshot) { states = append(states, s.State) })
	defer unsubscribe()

	require.NoError(t, h.m.CheckAuth(ctx))
	require.NotEmpty(t, states)
	for _, s := range states {
		assert.Equal(t, StateAuthenticated, s, "signed-in session never drops to loading")
	}
}

func TestSubscribe(t *testing.T) {
	h := newHarness(t)
	h.api.On("Health", mock.Anything).Return(errors.New("down"))

	var got []State
	unsubscribe := h.m.Subscribe(func(s Snapshot) { got = append(got, s.State) })

	require.NoError(t, h.m.CheckAuth(context.Background()))
	assert.Equal(t, []State{StateLoading, StateUnauthenticated}, got)

	unsubscribe()
	unsubscribe()
	require.NoError(t, h.m.CheckAuth(context.Background()))
	assert.Len(t, got, 2)
}

func TestSnapshot_IsACopy(t *testing.T) {
	h := newHarness(t)
	h.api.On("Health", mock.Anything).Return(nil)
	h.api.On("Profile", mock.Anything).Return(&models.Profile{ID: "u-1", Role: "student", Groups: []string{"estudiantes"}}, nil)
	require.NoError(t, h.m.CheckAuth(context.Background()))

	snap := h.m.Snapshot()
	snap.Session.Groups[0] = "administradores"
	snap.Session.Role = models.RoleAdmin

	again := h.m.Snapshot()
	assert.Equal(t, models.RoleStudent, again.Session.Role)
	assert.Equal(t, []string{"estudiantes"}, again.Session.Groups)
}
