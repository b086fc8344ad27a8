package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ebsalem/portal/models"
	"github.com/ebsalem/portal/utils"
)

// Resource is a CRUD collection under a backend path
type Resource[T any] struct {
	c    *Client
	path string
}

// NewResource binds a collection path to the client
func NewResource[T any](c *Client, path string) *Resource[T] {
	return &Resource[T]{c: c, path: path}
}

// Path returns the collection path
func (r *Resource[T]) Path() string {
	return r.path
}

// List returns the collection, filtered by query when non-empty
func (r *Resource[T]) List(ctx context.Context, query url.Values) ([]T, error) {
	path := r.path
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var items []T
	if err := r.c.Do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Get returns a single item
func (r *Resource[T]) Get(ctx context.Context, id string) (*T, error) {
	if id == "" {
		return nil, errEmptyID
	}
	var item T
	if err := r.c.Do(ctx, http.MethodGet, r.itemPath(id), nil, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create validates and posts a new item
func (r *Resource[T]) Create(ctx context.Context, item *T) (*T, error) {
	if err := utils.ValidateStruct(item); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", r.path, err)
	}
	var created T
	if err := r.c.Do(ctx, http.MethodPost, r.path, item, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Update validates and replaces an item
func (r *Resource[T]) Update(ctx context.Context, id string, item *T) (*T, error) {
	if id == "" {
		return nil, errEmptyID
	}
	if err := utils.ValidateStruct(item); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", r.path, err)
	}
	var updated T
	if err := r.c.Do(ctx, http.MethodPut, r.itemPath(id), item, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes an item
func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errEmptyID
	}
	return r.c.Do(ctx, http.MethodDelete, r.itemPath(id), nil, nil)
}

func (r *Resource[T]) itemPath(id string) string {
	return r.path + "/" + url.PathEscape(id)
}

// Courses is the course catalog
func (c *Client) Courses() *Resource[models.Course] {
	return NewResource[models.Course](c, "/courses")
}

// Users is the admin user directory
func (c *Client) Users() *Resource[models.User] {
	return NewResource[models.User](c, "/users")
}

// Assignments lists coursework
func (c *Client) Assignments() *Resource[models.Assignment] {
	return NewResource[models.Assignment](c, "/assignments")
}

// Exams lists scheduled exams
func (c *Client) Exams() *Resource[models.Exam] {
	return NewResource[models.Exam](c, "/exams")
}

// Grades lists scores
func (c *Client) Grades() *Resource[models.Grade] {
	return NewResource[models.Grade](c, "/grades")
}

// Reports lists admin reports
func (c *Client) Reports() *Resource[models.Report] {
	return NewResource[models.Report](c, "/reports")
}

// Certificates lists issued certificates
func (c *Client) Certificates() *Resource[models.Certificate] {
	return NewResource[models.Certificate](c, "/certificates")
}
