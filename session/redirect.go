package session

import "github.com/ebsalem/portal/models"

// Navigation targets
const (
	HomePath  = "/"
	LoginPath = "/login"
)

var roleHome = map[models.Role]string{
	models.RoleAdmin:       "/admin/dashboard",
	models.RoleCoordinator: "/coordinator/dashboard",
	models.RoleStudent:     "/student/dashboard",
}

// RedirectFor returns the landing page for a role
func RedirectFor(role models.Role) string {
	if path, ok := roleHome[role]; ok {
		return path
	}
	return HomePath
}

// Navigator performs post-login and post-logout redirects
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(path string)

// Navigate calls f(path)
func (f NavigatorFunc) Navigate(path string) {
	f(path)
}

type noopNavigator struct{}

func (noopNavigator) Navigate(string) {}
