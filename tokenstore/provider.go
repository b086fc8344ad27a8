package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ebsalem/portal/config"
	"github.com/ebsalem/portal/models"
	"golang.org/x/oauth2"
)

// ErrNotConfigured is returned when the hosted UI domain or client ID is missing
var ErrNotConfigured = errors.New("cognito not configured")

// TokenError is an OAuth2 error returned by the token or revoke endpoint
type TokenError struct {
	StatusCode  int
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *TokenError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token endpoint: %s (status %d): %s", e.Code, e.StatusCode, e.Description)
	}
	return fmt.Sprintf("token endpoint: %s (status %d)", e.Code, e.StatusCode)
}

// IsInvalidGrant reports whether err is a rejected code or refresh token
func IsInvalidGrant(err error) bool {
	var te *TokenError
	return errors.As(err, &te) && te.Code == "invalid_grant"
}

// Provider talks to the Cognito hosted UI OAuth2 endpoints. The authorize,
// code exchange and refresh grants go through golang.org/x/oauth2; revoke
// and logout are Cognito specific.
type Provider struct {
	cfg        config.CognitoConfig
	oauth      *oauth2.Config
	httpClient *http.Client
}

// NewProvider creates a hosted UI client. A nil httpClient uses a 10s timeout client.
func NewProvider(cfg config.CognitoConfig, httpClient *http.Client) *Provider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	p := &Provider{
		cfg:        cfg,
		httpClient: httpClient,
	}

	// public clients send client_id in the form, confidential ones use basic auth
	authStyle := oauth2.AuthStyleInParams
	if cfg.ClientSecret != "" {
		authStyle = oauth2.AuthStyleInHeader
	}
	p.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   p.endpoint("/oauth2/authorize"),
			TokenURL:  p.endpoint("/oauth2/token"),
			AuthStyle: authStyle,
		},
	}
	return p
}

// NewVerifier returns a fresh PKCE code verifier
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// AuthorizeURL returns the hosted UI login URL carrying the CSRF state and,
// when verifier is set, its S256 PKCE challenge
func (p *Provider) AuthorizeURL(state, verifier string) string {
	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return p.oauth.AuthCodeURL(state, opts...)
}

// LogoutURL returns the hosted UI logout URL. Cognito redirects to
// FrontEndURL afterwards, or to the origin of the redirect URI.
func (p *Provider) LogoutURL() string {
	logoutURI := p.cfg.FrontEndURL
	if logoutURI == "" {
		logoutURI = p.cfg.RedirectURI
		if parsed, err := url.Parse(p.cfg.RedirectURI); err == nil {
			logoutURI = parsed.Scheme + "://" + parsed.Host
		}
	}
	params := url.Values{
		"client_id":  {p.cfg.ClientID},
		"logout_uri": {logoutURI},
	}
	return p.endpoint("/logout") + "?" + params.Encode()
}

// ExchangeCode exchanges an authorization code for a token set. verifier is
// the PKCE code verifier whose challenge went out with the authorize URL.
func (p *Provider) ExchangeCode(ctx context.Context, code, verifier string) (*models.Tokens, error) {
	if !p.configured() {
		return nil, ErrNotConfigured
	}
	if code == "" {
		return nil, fmt.Errorf("authorization code is required")
	}

	var opts []oauth2.AuthCodeOption
	if verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	tok, err := p.oauth.Exchange(p.clientContext(ctx), code, opts...)
	if err != nil {
		return nil, tokenError(err)
	}

	tokens := fromOAuth2(tok)
	if tokens.IDToken == "" {
		return nil, fmt.Errorf("no id_token in response")
	}
	return tokens, nil
}

// Refresh runs the refresh_token grant. Cognito does not rotate refresh
// tokens, so the one passed in is carried over into the result.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (*models.Tokens, error) {
	if !p.configured() {
		return nil, ErrNotConfigured
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	tok, err := p.oauth.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, tokenError(err)
	}

	tokens := fromOAuth2(tok)
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	return tokens, nil
}

// Revoke invalidates a refresh token and the access tokens minted from it
func (p *Provider) Revoke(ctx context.Context, refreshToken string) error {
	if !p.configured() {
		return ErrNotConfigured
	}
	data := url.Values{
		"token":     {refreshToken},
		"client_id": {p.cfg.ClientID},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/oauth2/revoke"), strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.cfg.ClientSecret != "" {
		req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeTokenError(resp)
	}
	return nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func (p *Provider) endpoint(path string) string {
	return strings.TrimSuffix(p.cfg.Domain, "/") + path
}

func (p *Provider) configured() bool {
	return p.cfg.Domain != "" && p.cfg.ClientID != ""
}

func fromOAuth2(tok *oauth2.Token) *models.Tokens {
	tokens := &models.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		tokens.IDToken = id
	}
	return tokens
}

// tokenError turns an oauth2 retrieve failure into a TokenError
func tokenError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return fmt.Errorf("token request failed: %w", err)
	}
	te := &TokenError{
		Code:        re.ErrorCode,
		Description: re.ErrorDescription,
	}
	if re.Response != nil {
		te.StatusCode = re.Response.StatusCode
	}
	if te.Code == "" {
		te.Code = "http_error"
		te.Description = strings.TrimSpace(string(re.Body))
	}
	return te
}

func decodeTokenError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	te := &TokenError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, te); err != nil || te.Code == "" {
		te.Code = "http_error"
		te.Description = strings.TrimSpace(string(body))
	}
	return te
}
