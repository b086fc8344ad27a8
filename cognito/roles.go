package cognito

import (
	"strings"

	"github.com/ebsalem/portal/models"
)

// groupRoles maps identity provider group names to application roles.
// Keys are lower-case; lookups trim and fold case.
var groupRoles = map[string]models.Role{
	"administradores": models.RoleAdmin,
	"admin":           models.RoleAdmin,
	"admins":          models.RoleAdmin,
	"coordinadores":   models.RoleCoordinator,
	"coordinator":     models.RoleCoordinator,
	"coordinators":    models.RoleCoordinator,
	"estudiantes":     models.RoleStudent,
	"student":         models.RoleStudent,
	"students":        models.RoleStudent,
}

// RoleForGroup returns the role a single group maps to and whether the group is known
func RoleForGroup(group string) (models.Role, bool) {
	role, ok := groupRoles[strings.ToLower(strings.TrimSpace(group))]
	return role, ok
}

// RoleFromGroups resolves the highest-precedence role among groups.
// Unknown groups are ignored; no match yields models.RoleUnknown.
func RoleFromGroups(groups []string) models.Role {
	best := models.RoleUnknown
	for _, g := range groups {
		if role, ok := RoleForGroup(g); ok && role.Outranks(best) {
			best = role
		}
	}
	return best
}
