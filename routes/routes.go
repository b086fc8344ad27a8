package routes

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ebsalem/portal/app"
	"github.com/ebsalem/portal/config"
	"github.com/ebsalem/portal/handlers"
	"github.com/ebsalem/portal/session"
	"github.com/ebsalem/portal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the portal routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(deps.Config),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))

	// OAuth2 auth endpoints (Cognito)
	r.Route("/auth", func(r chi.Router) {
		r.Get("/login", handlers.AuthLoginHandler(deps))
		r.Get("/callback", handlers.AuthCallbackHandler(deps))
		r.Get("/logout", handlers.AuthLogoutHandler(deps, handlers.LocalLogoutHandler(deps)))
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", handlers.SessionHandler(deps))
		r.Post("/session/check", handlers.CheckSessionHandler(deps))
		r.Post("/session/refresh", handlers.RefreshSessionHandler(deps))
		r.Get("/pages", pagesHandler(deps))

		// Student data proxied through the API client
		r.Route("/student", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireRole(studentOnly...))
			r.Get("/courses", handlers.StudentCoursesHandler(deps))
			r.Get("/grades", handlers.StudentGradesHandler(deps))
		})
	})

	// Page routes
	for _, page := range Pages {
		if page.Path == session.LoginPath {
			r.Get(page.Path, handlers.LoginPageHandler(deps, page.Title))
			continue
		}
		h := http.Handler(handlers.PageHandler(deps, page.Path, page.Title, page.Roles))
		if !page.Public() {
			h = deps.AuthMiddleware.RequireRole(page.Roles...)(h)
		}
		r.Method(http.MethodGet, page.Path, h)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

// pagesHandler lists the pages the current session may open
func pagesHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteOK(w, Visible(deps.Manager.Snapshot().Role()))
	}
}

// allowedOrigins lists the only origins trusted with credentialed requests:
// the front end and the portal itself. The list is never empty, since an
// empty list makes the cors handler admit every origin.
func allowedOrigins(cfg *config.Config) []string {
	var origins []string
	if cfg != nil {
		if u, err := url.Parse(cfg.Cognito.FrontEndURL); err == nil && u.Scheme != "" && u.Host != "" {
			origins = append(origins, u.Scheme+"://"+u.Host)
		}
		if cfg.Server.Port > 0 {
			host := cfg.Server.Host
			if host == "" || host == "0.0.0.0" {
				host = "localhost"
			}
			origins = append(origins, "http://"+net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port)))
		}
	}
	if len(origins) == 0 {
		origins = append(origins, "http://localhost:8765")
	}
	return origins
}
