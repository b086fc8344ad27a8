package models

import (
	"slices"
	"time"
)

// Session is the authenticated identity held by the session manager.
// It is created on login or profile fetch and replaced on refresh.
type Session struct {
	UserID    string    `json:"userId" yaml:"userId"`
	Email     string    `json:"email" yaml:"email"`
	Name      string    `json:"name" yaml:"name"`
	Role      Role      `json:"role" yaml:"role"`
	Groups    []string  `json:"groups" yaml:"groups"`
	ExpiresAt time.Time `json:"expiresAt" yaml:"expiresAt"`
}

// ExpiresWithin reports whether the session expires less than d after now.
// A zero ExpiresAt means the backend did not report an expiry.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return s.ExpiresAt.Sub(now) < d
}

// Clone returns a deep copy so snapshots never alias manager state
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Groups = slices.Clone(s.Groups)
	return &c
}

// Profile is the normalized identity record returned by the backend
// profile, login and refresh endpoints.
type Profile struct {
	ID     string   `json:"id" validate:"required"`
	Email  string   `json:"email" validate:"omitempty,email"`
	Name   string   `json:"name"`
	Role   string   `json:"role,omitempty"`
	Groups []string `json:"groups,omitempty"`
	// Exp is the token expiry in Unix seconds, 0 when unknown
	Exp int64 `json:"exp,omitempty"`
}

// ExpiresAt converts Exp into a time, zero when unknown
func (p *Profile) ExpiresAt() time.Time {
	if p.Exp == 0 {
		return time.Time{}
	}
	return time.Unix(p.Exp, 0)
}

// ToSession builds a Session from the profile. The role is taken as-is;
// callers backfill it from the ID token when the backend omits it.
func (p *Profile) ToSession() *Session {
	return &Session{
		UserID:    p.ID,
		Email:     p.Email,
		Name:      p.Name,
		Role:      ParseRole(p.Role),
		Groups:    slices.Clone(p.Groups),
		ExpiresAt: p.ExpiresAt(),
	}
}
