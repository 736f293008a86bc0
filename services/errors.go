package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeConflict     ErrorType = "conflict"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeUnavailable  ErrorType = "unavailable"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
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

// Is matches on type and message, so two reasons of the same type stay distinguishable
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Message == t.Message
}

// Wrap returns a copy of e carrying cause. Sentinels are never mutated.
func (e *DomainError) Wrap(cause error) *DomainError {
	return &DomainError{
		Type:    e.Type,
		Message: e.Message,
		Err:     cause,
		Details: make(map[string]interface{}),
	}
}

// WithDetail returns a copy of e with the detail added
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{
		Type:    e.Type,
		Message: e.Message,
		Err:     e.Err,
		Details: details,
	}
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Domain error variables

var (
	// Token rejection reasons
	ErrTokenMalformed        = NewDomainError(ErrorTypeUnauthorized, "token malformed", nil)
	ErrTokenSignatureInvalid = NewDomainError(ErrorTypeUnauthorized, "token signature invalid", nil)
	ErrTokenExpired          = NewDomainError(ErrorTypeUnauthorized, "token expired", nil)
	ErrTokenWrongUse         = NewDomainError(ErrorTypeUnauthorized, "token used for the wrong purpose", nil)
	ErrTokenNotFound         = NewDomainError(ErrorTypeUnauthorized, "invalid token", nil)
	ErrTokenRevoked          = NewDomainError(ErrorTypeUnauthorized, "token has been revoked", nil)
	ErrTokenMismatch         = NewDomainError(ErrorTypeUnauthorized, "access and refresh tokens do not belong together", nil)
	ErrSubjectDisabled       = NewDomainError(ErrorTypeUnauthorized, "subject missing or disabled", nil)
	ErrMissingToken          = NewDomainError(ErrorTypeUnauthorized, "missing bearer token", nil)
	ErrInvalidCredentials    = NewDomainError(ErrorTypeUnauthorized, "invalid credentials", nil)

	// Not Found Errors
	ErrUserNotFound = NewDomainError(ErrorTypeNotFound, "user not found", nil)

	// Validation Errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)

	// Conflict Errors
	ErrUserAlreadyExists = NewDomainError(ErrorTypeConflict, "username or email already in use", nil)

	// Internal Errors
	ErrDuplicateToken = NewDomainError(ErrorTypeInternal, "issued token collided with a stored token", nil)

	// Unavailable Errors
	ErrStoreUnavailable = NewDomainError(ErrorTypeUnavailable, "token store unavailable", nil)
)

// Error type checking helper functions

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsForbiddenError checks if an error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsConflictError checks if an error is a conflict error
func IsConflictError(err error) bool {
	return GetErrorType(err) == ErrorTypeConflict
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeInternal
}

// IsUnavailableError checks if an error means a backing store could not be reached
func IsUnavailableError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnavailable
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}
