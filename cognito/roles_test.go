package cognito

import (
	"testing"

	"github.com/ebsalem/portal/models"
	"github.com/stretchr/testify/assert"
)

func TestRoleForGroup(t *testing.T) {
	role, ok := RoleForGroup("coordinadores")
	assert.True(t, ok)
	assert.Equal(t, models.RoleCoordinator, role)

	_, ok = RoleForGroup("profesores")
	assert.False(t, ok)
}

func TestRoleFromGroups_OrderIndependent(t *testing.T) {
	a := RoleFromGroups([]string{"administradores", "estudiantes", "coordinadores"})
	b := RoleFromGroups([]string{"coordinadores", "estudiantes", "administradores"})
	assert.Equal(t, models.RoleAdmin, a)
	assert.Equal(t, a, b)
}
