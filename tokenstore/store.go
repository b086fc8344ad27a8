// Package tokenstore keeps the identity provider token set and wraps the
// hosted UI endpoints that produce it.
package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ebsalem/portal/models"
	"github.com/ebsalem/portal/storage"
	"go.uber.org/zap"
)

var (
	// ErrNoTokens is returned when no token set has been saved
	ErrNoTokens = errors.New("no tokens stored")
	// ErrTokenExpired is returned by AccessToken once the access token has lapsed
	ErrTokenExpired = errors.New("access token expired")
)

// Revoker revokes a refresh token at the identity provider
type Revoker interface {
	Revoke(ctx context.Context, refreshToken string) error
}

// Store persists the token set in local storage under storage.KeyTokens
type Store struct {
	local   storage.Storage
	revoker Revoker
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore creates a token store. revoker may be nil.
func NewStore(local storage.Storage, revoker Revoker, logger *zap.Logger) *Store {
	return &Store{
		local:   local,
		revoker: revoker,
		logger:  logger,
		now:     time.Now,
	}
}

// Tokens returns the stored token set or ErrNoTokens
func (s *Store) Tokens(ctx context.Context) (*models.Tokens, error) {
	raw, err := s.local.Get(ctx, storage.KeyTokens)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNoTokens
	}
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}

	var t models.Tokens
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decode stored tokens: %w", err)
	}
	return &t, nil
}

// AccessToken returns the stored access token while it is still valid
func (s *Store) AccessToken(ctx context.Context) (string, error) {
	t, err := s.Tokens(ctx)
	if err != nil {
		return "", err
	}
	if t.AccessToken == "" {
		return "", ErrNoTokens
	}
	if t.Expired(s.now()) {
		return "", ErrTokenExpired
	}
	return t.AccessToken, nil
}

// IDToken returns the stored ID token
func (s *Store) IDToken(ctx context.Context) (string, error) {
	t, err := s.Tokens(ctx)
	if err != nil {
		return "", err
	}
	if t.IDToken == "" {
		return "", ErrNoTokens
	}
	return t.IDToken, nil
}

// Save replaces the stored token set
func (s *Store) Save(ctx context.Context, t *models.Tokens) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode tokens: %w", err)
	}
	if err := s.local.Set(ctx, storage.KeyTokens, raw, 0); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}

// SignOut revokes the refresh token (best effort) and removes the token set
func (s *Store) SignOut(ctx context.Context) error {
	t, err := s.Tokens(ctx)
	switch {
	case err == nil && t.RefreshToken != "" && s.revoker != nil:
		if rerr := s.revoker.Revoke(ctx, t.RefreshToken); rerr != nil {
			s.logger.Warn("refresh token revocation failed", zap.Error(rerr))
		}
	case err != nil && !errors.Is(err, ErrNoTokens):
		s.logger.Debug("discarding unreadable token set", zap.Error(err))
	}

	if err := s.local.Delete(ctx, storage.KeyTokens); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}
