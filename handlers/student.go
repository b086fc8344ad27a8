package handlers

import (
	"net/http"
	"net/url"

	"github.com/ebsalem/portal/app"
	"github.com/ebsalem/portal/client"
	"github.com/ebsalem/portal/middleware"
	"github.com/ebsalem/portal/utils"
	"go.uber.org/zap"
)

// StudentCoursesHandler lists the signed-in student's courses
func StudentCoursesHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, ok := studentQuery(w, r)
		if !ok {
			return
		}
		courses, err := deps.Client.Courses().List(r.Context(), query)
		if err != nil {
			writeBackendError(w, deps.Logger, "list courses", err)
			return
		}
		_ = utils.WriteOK(w, courses)
	}
}

// StudentGradesHandler lists the signed-in student's grades
func StudentGradesHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, ok := studentQuery(w, r)
		if !ok {
			return
		}
		if courseID := r.URL.Query().Get("courseId"); courseID != "" {
			query.Set("courseId", courseID)
		}
		grades, err := deps.Client.Grades().List(r.Context(), query)
		if err != nil {
			writeBackendError(w, deps.Logger, "list grades", err)
			return
		}
		_ = utils.WriteOK(w, grades)
	}
}

func studentQuery(w http.ResponseWriter, r *http.Request) (url.Values, bool) {
	sess := middleware.GetSessionFromContext(r.Context())
	if sess == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return nil, false
	}
	return url.Values{"studentId": {sess.UserID}}, true
}

// writeBackendError maps a backend failure onto the portal response
func writeBackendError(w http.ResponseWriter, logger *zap.Logger, op string, err error) {
	switch client.StatusCode(err) {
	case http.StatusUnauthorized:
		_ = utils.WriteUnauthorized(w, "Session expired")
	case http.StatusForbidden:
		_ = utils.WriteForbidden(w, "Insufficient permissions")
	case http.StatusNotFound:
		_ = utils.WriteNotFound(w, "Not found")
	default:
		logger.Error("backend request failed", zap.String("op", op), zap.Error(err))
		_ = utils.WriteBadGateway(w, "Backend unavailable")
	}
}
