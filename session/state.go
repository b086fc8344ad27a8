package session

import (
	"github.com/ebsalem/portal/models"
)

// State is the top-level session state
type State string

const (
	StateLoading         State = "loading"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"
)

// Snapshot is an immutable view of the session published to consumers
type Snapshot struct {
	State         State           `json:"state" yaml:"state"`
	Authenticated bool            `json:"authenticated" yaml:"authenticated"`
	Refreshing    bool            `json:"refreshing" yaml:"refreshing"`
	Session       *models.Session `json:"session" yaml:"session"`
	Error         string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// Role returns the session role, RoleUnknown when signed out
func (s Snapshot) Role() models.Role {
	if s.Session == nil {
		return models.RoleUnknown
	}
	return s.Session.Role
}

func (s Snapshot) clone() Snapshot {
	s.Session = s.Session.Clone()
	return s
}

// Listener receives every state transition. It runs synchronously and
// must not call back into Manager operations.
type Listener func(Snapshot)
