package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ebsalem/portal/models"
	"github.com/ebsalem/portal/utils"
)

// LoginRequest forwards identity provider tokens so the backend can mint session cookies
type LoginRequest struct {
	IDToken      string `json:"idToken" validate:"required"`
	AccessToken  string `json:"accessToken" validate:"required"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// RefreshRequest re-mints backend cookies. Tokens are optional; the backend
// falls back to its refresh cookie.
type RefreshRequest struct {
	IDToken     string `json:"idToken,omitempty"`
	AccessToken string `json:"accessToken,omitempty"`
}

// Health probes backend liveness
func (c *Client) Health(ctx context.Context) error {
	return c.Do(ctx, http.MethodGet, c.healthPath, nil, nil)
}

// Login exchanges provider tokens for backend session cookies and returns the profile
func (c *Client) Login(ctx context.Context, req *LoginRequest) (*models.Profile, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("invalid login request: %w", err)
	}
	return c.profileCall(ctx, http.MethodPost, "/auth/login", req)
}

// Logout asks the backend to drop its session
func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

// Profile returns the identity behind the current session cookies
func (c *Client) Profile(ctx context.Context) (*models.Profile, error) {
	return c.profileCall(ctx, http.MethodGet, "/auth/profile", nil)
}

// Refresh re-mints backend session cookies and returns the updated profile
func (c *Client) Refresh(ctx context.Context, req *RefreshRequest) (*models.Profile, error) {
	if req == nil {
		req = &RefreshRequest{}
	}
	return c.profileCall(ctx, http.MethodPost, "/auth/refresh", req)
}

func (c *Client) profileCall(ctx context.Context, method, path string, in any) (*models.Profile, error) {
	var profile models.Profile
	if err := c.Do(ctx, method, path, in, &profile); err != nil {
		return nil, err
	}
	if err := utils.ValidateStruct(&profile); err != nil {
		return nil, fmt.Errorf("invalid profile from %s: %w", path, err)
	}
	return &profile, nil
}
