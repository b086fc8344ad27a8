package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/ebsalem/portal/models"
	"github.com/ebsalem/portal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResource_CRUD(t *testing.T) {
	type call struct {
		method string
		path   string
		query  string
	}
	var calls []call

	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.EscapedPath(), r.URL.RawQuery})
		switch r.Method {
		case http.MethodGet:
			if r.URL.Path == "/api/courses" {
				_ = utils.WriteOK(w, []models.Course{{ID: "c1", Title: "Genesis"}, {ID: "c2", Title: "Exodus"}})
				return
			}
			_ = json.NewEncoder(w).Encode(models.Course{ID: "c1", Title: "Genesis"})
		case http.MethodPost, http.MethodPut:
			var in models.Course
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			in.ID = "c9"
			_ = json.NewEncoder(w).Encode(in)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}), nil)
	ctx := context.Background()
	courses := c.Courses()
	assert.Equal(t, "/courses", courses.Path())

	list, err := courses.List(ctx, url.Values{"published": {"true"}})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	one, err := courses.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Genesis", one.Title)

	created, err := courses.Create(ctx, &models.Course{Title: "Psalms"})
	require.NoError(t, err)
	assert.Equal(t, "c9", created.ID)

	updated, err := courses.Update(ctx, "c 1/x", &models.Course{Title: "Psalms II"})
	require.NoError(t, err)
	assert.Equal(t, "Psalms II", updated.Title)

	require.NoError(t, courses.Delete(ctx, "c1"))

	require.Len(t, calls, 5)
	assert.Equal(t, call{http.MethodGet, "/api/courses", "published=true"}, calls[0])
	assert.Equal(t, call{http.MethodGet, "/api/courses/c1", ""}, calls[1])
	assert.Equal(t, call{http.MethodPost, "/api/courses", ""}, calls[2])
	assert.Equal(t, call{http.MethodPut, "/api/courses/c%201%2Fx", ""}, calls[3])
	assert.Equal(t, call{http.MethodDelete, "/api/courses/c1", ""}, calls[4])
}

func TestResource_Validation(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
	}), nil)
	ctx := context.Background()

	_, err := c.Courses().Create(ctx, &models.Course{})
	require.Error(t, err)
	assert.True(t, utils.IsValidationError(err))

	_, err = c.Users().Update(ctx, "u1", &models.User{Email: "not-an-email"})
	assert.True(t, utils.IsValidationError(err))

	_, err = c.Grades().Get(ctx, "")
	assert.ErrorIs(t, err, errEmptyID)
	assert.ErrorIs(t, c.Exams().Delete(ctx, ""), errEmptyID)
}

func TestClient_ResourcePaths(t *testing.T) {
	c, err := New(Config{BaseURL: "http://localhost:8080/api"})
	require.NoError(t, err)

	assert.Equal(t, "/courses", c.Courses().Path())
	assert.Equal(t, "/users", c.Users().Path())
	assert.Equal(t, "/assignments", c.Assignments().Path())
	assert.Equal(t, "/exams", c.Exams().Path())
	assert.Equal(t, "/grades", c.Grades().Path())
	assert.Equal(t, "/reports", c.Reports().Path())
	assert.Equal(t, "/certificates", c.Certificates().Path())
}
