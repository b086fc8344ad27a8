package routes

import (
	"slices"

	"github.com/ebsalem/portal/models"
)

// Page is one client-side route of the portal
type Page struct {
	Path  string        `json:"path"`
	Title string        `json:"title"`
	Roles []models.Role `json:"roles,omitempty"` // empty means public
}

// Public reports whether the page needs no session
func (p Page) Public() bool {
	return len(p.Roles) == 0
}

// Allows reports whether role may open the page
func (p Page) Allows(role models.Role) bool {
	return p.Public() || slices.Contains(p.Roles, role)
}

var (
	studentOnly     = []models.Role{models.RoleStudent}
	coordinatorArea = []models.Role{models.RoleCoordinator, models.RoleAdmin}
	adminOnly       = []models.Role{models.RoleAdmin}
)

// Pages is the portal route table
var Pages = []Page{
	{Path: "/", Title: "Inicio"},
	{Path: "/login", Title: "Iniciar sesión"},
	{Path: "/courses", Title: "Cursos"},
	{Path: "/about", Title: "Acerca de"},

	{Path: "/student/dashboard", Title: "Panel del estudiante", Roles: studentOnly},
	{Path: "/student/courses", Title: "Mis cursos", Roles: studentOnly},
	{Path: "/student/grades", Title: "Mis calificaciones", Roles: studentOnly},
	{Path: "/student/certificates", Title: "Mis certificados", Roles: studentOnly},
	{Path: "/student/assignments", Title: "Mis tareas", Roles: studentOnly},

	{Path: "/coordinator/dashboard", Title: "Panel del coordinador", Roles: coordinatorArea},
	{Path: "/coordinator/reports", Title: "Reportes", Roles: coordinatorArea},

	{Path: "/admin/dashboard", Title: "Panel de administración", Roles: adminOnly},
	{Path: "/admin/users", Title: "Usuarios", Roles: adminOnly},
	{Path: "/admin/courses", Title: "Cursos", Roles: adminOnly},
	{Path: "/admin/assignments", Title: "Tareas", Roles: adminOnly},
	{Path: "/admin/exams", Title: "Exámenes", Roles: adminOnly},
	{Path: "/admin/grades", Title: "Calificaciones", Roles: adminOnly},
	{Path: "/admin/reports", Title: "Reportes", Roles: adminOnly},
}

// Visible returns the pages role may open, in table order. It feeds the
// portal navigation.
func Visible(role models.Role) []Page {
	var pages []Page
	for _, p := range Pages {
		if p.Allows(role) {
			pages = append(pages, p)
		}
	}
	return pages
}
