package cognito

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ebsalem/portal/models"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformedToken is returned when a token is not a three-segment JWT
	// or its payload is not valid base64url JSON
	ErrMalformedToken = errors.New("malformed token")

	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")
)

// Claims represents the identity claims carried by Cognito ID and access tokens
type Claims struct {
	jwt.RegisteredClaims
	Email           string   `json:"email"`
	EmailVerified   bool     `json:"email_verified"`
	Name            string   `json:"name"`
	GivenName       string   `json:"given_name"`
	FamilyName      string   `json:"family_name"`
	TokenUse        string   `json:"token_use"`
	AuthTime        int64    `json:"auth_time"`
	ClientID        string   `json:"client_id"`
	CognitoUsername string   `json:"cognito:username"`
	Groups          []string `json:"cognito:groups"`
}

// ParsedClaims is the decoded identity with the application role resolved
type ParsedClaims struct {
	Sub           string
	Email         string
	EmailVerified bool
	Name          string
	Username      string
	TokenUse      string
	Groups        []string
	Role          models.Role
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// DisplayName returns the best human-readable name available in the claims
func (p *ParsedClaims) DisplayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Username != "":
		return p.Username
	default:
		return p.Email
	}
}

var segmentParser = jwt.NewParser(jwt.WithoutClaimsValidation())

// DecodeClaims decodes the payload segment of a JWT without verifying its
// signature. Only the payload is inspected; the header and signature
// segments must be present but are not decoded.
func DecodeClaims(tokenString string) (*Claims, error) {
	parts := strings.Split(tokenString, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not base64url: %v", ErrMalformedToken, err)
	}

	claims := &Claims{}
	if err := json.Unmarshal(payload, claims); err != nil {
		return nil, fmt.Errorf("%w: payload is not JSON: %v", ErrMalformedToken, err)
	}
	return claims, nil
}

// ExtractClaims decodes a token without validation and resolves its role.
// Use it for display decisions only; authorization belongs to the backend.
func ExtractClaims(tokenString string) (*ParsedClaims, error) {
	claims, err := DecodeClaims(tokenString)
	if err != nil {
		return nil, err
	}
	return parseClaims(claims)
}

// ExtractClaimsFromValidatedToken extracts claims from an already validated jwt.Token
func ExtractClaimsFromValidatedToken(token *jwt.Token) (*ParsedClaims, error) {
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	return parseClaims(claims)
}

func parseClaims(claims *Claims) (*ParsedClaims, error) {
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	name := claims.Name
	if name == "" && (claims.GivenName != "" || claims.FamilyName != "") {
		name = strings.TrimSpace(claims.GivenName + " " + claims.FamilyName)
	}

	parsed := &ParsedClaims{
		Sub:           claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          name,
		Username:      claims.CognitoUsername,
		TokenUse:      claims.TokenUse,
		Groups:        claims.Groups,
		Role:          RoleFromGroups(claims.Groups),
	}
	if claims.IssuedAt != nil {
		parsed.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		parsed.ExpiresAt = claims.ExpiresAt.Time
	}

	return parsed, nil
}
