package models

// Role is the application role a user acts under. It is derived from the
// identity provider's group membership and never set directly by the user.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleCoordinator Role = "coordinator"
	RoleStudent     Role = "student"
	RoleUnknown     Role = "unknown"
)

// rolePriority orders roles for precedence checks; higher wins.
var rolePriority = map[Role]int{
	RoleUnknown:     0,
	RoleStudent:     1,
	RoleCoordinator: 2,
	RoleAdmin:       3,
}

// ParseRole normalizes a backend-supplied role string. Anything outside the
// closed set becomes RoleUnknown.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin, RoleCoordinator, RoleStudent:
		return Role(s)
	default:
		return RoleUnknown
	}
}

// Priority returns the precedence rank of the role
func (r Role) Priority() int {
	return rolePriority[r]
}

// Outranks reports whether r takes precedence over other
func (r Role) Outranks(other Role) bool {
	return r.Priority() > other.Priority()
}

// IsKnown returns true for every role except RoleUnknown
func (r Role) IsKnown() bool {
	return r.Priority() > 0
}

func (r Role) String() string {
	if r == "" {
		return string(RoleUnknown)
	}
	return string(r)
}
