package client

import (
	"errors"
	"fmt"
	"net/http"
)

var errEmptyID = errors.New("id is required")

// APIError is returned for any non-2xx backend response
type APIError struct {
	StatusCode int
	Code       string `json:"error"`
	Message    string `json:"message"`
	Method     string
	Path       string
	RequestID  string
}

// Error implements the error interface
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// NetworkError is returned when the backend could not be reached
type NetworkError struct {
	Method string
	Path   string
	Err    error
}

// Error implements the error interface
func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: backend unreachable: %v", e.Method, e.Path, e.Err)
}

// Unwrap implements error unwrapping
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status of an *APIError in err's chain, or 0
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNetworkError checks if the backend was unreachable
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsAuthAbsent reports the expected "no session" outcomes: 401, 403 or an
// unreachable backend.
func IsAuthAbsent(err error) bool {
	switch StatusCode(err) {
	case http.StatusUnauthorized, http.StatusForbidden:
		return true
	}
	return IsNetworkError(err)
}

// IsNotFound checks for a 404 response
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}
