package tokenstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ebsalem/portal/models"
	"github.com/ebsalem/portal/storage"
	"github.com/ebsalem/portal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockRevoker struct {
	mock.Mock
}

func (m *mockRevoker) Revoke(ctx context.Context, refreshToken string) error {
	args := m.Called(ctx, refreshToken)
	return args.Error(0)
}

func sampleTokens() *models.Tokens {
	return &models.Tokens{
		AccessToken:  "access",
		IDToken:      "id",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		ExpiresAt:    time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
	}
}

func TestStore_Empty(t *testing.T) {
	s := NewStore(memory.New(), nil, zap.NewNop())
	ctx := context.Background()

	_, err := s.Tokens(ctx)
	assert.ErrorIs(t, err, ErrNoTokens)
	_, err = s.AccessToken(ctx)
	assert.ErrorIs(t, err, ErrNoTokens)
	_, err = s.IDToken(ctx)
	assert.ErrorIs(t, err, ErrNoTokens)
}

func TestStore_SaveAndLoad(t *testing.T) {
	local := memory.New()
	s := NewStore(local, nil, zap.NewNop())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, sampleTokens()))

	access, err := s.AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access", access)

	id, err := s.IDToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id", id)

	got, err := s.Tokens(ctx)
	require.NoError(t, err)
	assert.True(t, sampleTokens().ExpiresAt.Equal(got.ExpiresAt))

	raw, err := local.Get(ctx, storage.KeyTokens)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"refresh_token":"refresh"`)
}

func TestStore_CorruptEntry(t *testing.T) {
	local := memory.New()
	ctx := context.Background()
	require.NoError(t, local.Set(ctx, storage.KeyTokens, []byte("{not json"), 0))

	s := NewStore(local, nil, zap.NewNop())
	_, err := s.Tokens(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoTokens)

	// SignOut still clears it
	require.NoError(t, s.SignOut(ctx))
	_, err = local.Get(ctx, storage.KeyTokens)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_SignOut(t *testing.T) {
	t.Run("revokes refresh token and clears", func(t *testing.T) {
		local := memory.New()
		revoker := new(mockRevoker)
		revoker.On("Revoke", mock.Anything, "refresh").Return(nil).Once()

		s := NewStore(local, revoker, zap.NewNop())
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, sampleTokens()))

		require.NoError(t, s.SignOut(ctx))

		_, err := s.Tokens(ctx)
		assert.ErrorIs(t, err, ErrNoTokens)
		revoker.AssertExpectations(t)
	})

	t.Run("revocation failure is not fatal", func(t *testing.T) {
		local := memory.New()
		revoker := new(mockRevoker)
		revoker.On("Revoke", mock.Anything, "refresh").Return(errors.New("network down"))

		s := NewStore(local, revoker, zap.NewNop())
		ctx := context.Background()
		require.NoError(t, s.Save(ctx, sampleTokens()))

		require.NoError(t, s.SignOut(ctx))
		_, err := local.Get(ctx, storage.KeyTokens)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("nothing stored", func(t *testing.T) {
		revoker := new(mockRevoker)
		s := NewStore(memory.New(), revoker, zap.NewNop())

		require.NoError(t, s.SignOut(context.Background()))
		revoker.AssertNotCalled(t, "Revoke", mock.Anything, mock.Anything)
	})
}

func TestStore_ExpiredAccessToken(t *testing.T) {
	s := NewStore(memory.New(), nil, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, sampleTokens()))

	s.now = func() time.Time { return time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC) }
	_, err := s.AccessToken(ctx)
	assert.ErrorIs(t, err, ErrTokenExpired)

	id, err := s.IDToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id", id, "refresh still has the rest of the set")
}
