package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ebsalem/portal/client"
	"github.com/ebsalem/portal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockAPI) Login(ctx context.Context, req *client.LoginRequest) (*models.Profile, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *mockAPI) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockAPI) Profile(ctx context.Context) (*models.Profile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

func (m *mockAPI) Refresh(ctx context.Context, req *client.RefreshRequest) (*models.Profile, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Profile), args.Error(1)
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) ExchangeCode(ctx context.Context, code, verifier string) (*models.Tokens, error) {
	args := m.Called(ctx, code, verifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tokens), args.Error(1)
}

func (m *mockProvider) Refresh(ctx context.Context, refreshToken string) (*models.Tokens, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tokens), args.Error(1)
}

type recordingNavigator struct {
	mu    sync.Mutex
	paths []string
}

func (n *recordingNavigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, path)
}

func (n *recordingNavigator) visited() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.paths...)
}

// idToken builds an unsigned three-segment JWT carrying the given groups
func idToken(t *testing.T, sub string, groups []string, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":       sub,
		"email":     sub + "@ebsalem.org",
		"token_use": "id",
	}
	if groups != nil {
		claims["cognito:groups"] = groups
	}
	if !exp.IsZero() {
		claims["exp"] = exp.Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	return token
}
