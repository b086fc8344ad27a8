package session

import (
	"errors"
	"fmt"

	"github.com/ebsalem/portal/client"
	"github.com/ebsalem/portal/cognito"
	"github.com/ebsalem/portal/tokenstore"
)

// ErrorType represents the category of a session failure
type ErrorType string

const (
	// ErrorTypeAuthAbsent covers 401/403 and an unreachable backend; it resolves to unauthenticated
	ErrorTypeAuthAbsent ErrorType = "auth_absent"
	// ErrorTypeDecoding is a malformed JWT; treated as "no role information"
	ErrorTypeDecoding ErrorType = "decoding"
	// ErrorTypeUnexpected is anything else and is shown to the user
	ErrorTypeUnexpected ErrorType = "unexpected"
	// ErrorTypeInProgress is returned when a login is already running
	ErrorTypeInProgress ErrorType = "in_progress"
)

// DomainError represents a structured session error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

var (
	ErrAuthAbsent      = NewDomainError(ErrorTypeAuthAbsent, "not signed in", nil)
	ErrDecoding        = NewDomainError(ErrorTypeDecoding, "token could not be decoded", nil)
	ErrUnexpected      = NewDomainError(ErrorTypeUnexpected, "unexpected error", nil)
	ErrLoginInProgress = NewDomainError(ErrorTypeInProgress, "login already in progress", nil)
	ErrLoginSuperseded = NewDomainError(ErrorTypeAuthAbsent, "signed out while login was completing", nil)
)

// errSessionChanged stops an operation overtaken by a login or logout
var errSessionChanged = errors.New("session changed")

// classify wraps err in a DomainError of the matching type
func classify(message string, err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	switch {
	case client.IsAuthAbsent(err),
		tokenstore.IsInvalidGrant(err),
		errors.Is(err, tokenstore.ErrNoTokens):
		return NewDomainError(ErrorTypeAuthAbsent, message, err)
	case errors.Is(err, cognito.ErrMalformedToken):
		return NewDomainError(ErrorTypeDecoding, message, err)
	default:
		return NewDomainError(ErrorTypeUnexpected, message, err)
	}
}

// IsAuthAbsentError checks if an error is an expected "no session" outcome
func IsAuthAbsentError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeAuthAbsent
	}
	return client.IsAuthAbsent(err)
}

// IsDecodingError checks if an error is a token decoding error
func IsDecodingError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeDecoding
	}
	return false
}

// IsUnexpectedError checks if an error should be surfaced to the user
func IsUnexpectedError(err error) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == ErrorTypeUnexpected
	}
	return false
}

// UserMessage renders err as the message shown on the snapshot
func UserMessage(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		if domainErr.Err != nil {
			return domainErr.Message + ": " + domainErr.Err.Error()
		}
		return domainErr.Message
	}
	return err.Error()
}
