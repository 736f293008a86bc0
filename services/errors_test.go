package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "resource not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "resource not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeUnavailable,
				Message: "token store unavailable",
				Err:     errors.New("dial tcp: refused"),
			},
			wantMsg: "unavailable: token store unavailable (dial tcp: refused)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeUnauthorized,
				Message: "token expired",
			},
			wantMsg: "unauthorized: token expired",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeInternal, "internal error", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{name: "same sentinel", err: ErrTokenRevoked, target: ErrTokenRevoked, want: true},
		{name: "wrapped copy matches sentinel", err: ErrTokenExpired.Wrap(errors.New("exp")), target: ErrTokenExpired, want: true},
		{name: "same type different reason", err: ErrTokenExpired, target: ErrTokenRevoked, want: false},
		{name: "different type", err: ErrInvalidInput, target: ErrTokenRevoked, want: false},
		{name: "not a domain error", err: ErrTokenRevoked, target: errors.New("regular error"), want: false},
		{name: "fmt wrapped", err: fmt.Errorf("refresh: %w", ErrTokenMismatch), target: ErrTokenMismatch, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WrapLeavesSentinelUntouched(t *testing.T) {
	cause := errors.New("cause")

	wrapped := ErrStoreUnavailable.Wrap(cause)

	assert.Nil(t, ErrStoreUnavailable.Err)
	assert.Equal(t, cause, wrapped.Err)
	assert.ErrorIs(t, wrapped, cause)
	assert.ErrorIs(t, wrapped, ErrStoreUnavailable)
}

func TestDomainError_WithDetail(t *testing.T) {
	base := NewDomainError(ErrorTypeValidation, "validation error", nil)

	err := base.WithDetail("field", "email").WithDetail("value", "invalid-email")

	assert.Equal(t, "email", err.Details["field"])
	assert.Equal(t, "invalid-email", err.Details["value"])
	assert.Empty(t, base.Details)
}

func TestErrorTypeHelpers(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		want  bool
	}{
		{"not found", ErrUserNotFound, IsNotFoundError, true},
		{"wrapped not found", fmt.Errorf("wrapped: %w", ErrUserNotFound), IsNotFoundError, true},
		{"validation", ErrInvalidInput, IsValidationError, true},
		{"unauthorized reason", ErrTokenSignatureInvalid, IsUnauthorizedError, true},
		{"credentials", ErrInvalidCredentials, IsUnauthorizedError, true},
		{"validation is not unauthorized", ErrInvalidInput, IsUnauthorizedError, false},
		{"forbidden", NewDomainError(ErrorTypeForbidden, "no", nil), IsForbiddenError, true},
		{"conflict", ErrUserAlreadyExists, IsConflictError, true},
		{"duplicate token is internal", ErrDuplicateToken, IsInternalError, true},
		{"unavailable", ErrStoreUnavailable, IsUnavailableError, true},
		{"regular error", errors.New("regular"), IsNotFoundError, false},
		{"nil error", nil, IsInternalError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.err))
		})
	}
}

func TestTokenRejectionsAreUnauthorized(t *testing.T) {
	for _, err := range []*DomainError{
		ErrTokenMalformed,
		ErrTokenSignatureInvalid,
		ErrTokenExpired,
		ErrTokenWrongUse,
		ErrTokenNotFound,
		ErrTokenRevoked,
		ErrTokenMismatch,
		ErrSubjectDisabled,
		ErrMissingToken,
	} {
		assert.Equal(t, ErrorTypeUnauthorized, err.Type, err.Message)
	}
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeUnauthorized, GetErrorType(ErrTokenExpired))
	assert.Equal(t, ErrorTypeConflict, GetErrorType(fmt.Errorf("x: %w", ErrUserAlreadyExists)))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("regular")))
}

func TestGetErrorDetails(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "validation error", nil).
		WithDetail("field", "email").
		WithDetail("reason", "invalid format")

	details := GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, "email", details["field"])
	assert.Equal(t, "invalid format", details["reason"])

	assert.Nil(t, GetErrorDetails(errors.New("regular error")))
}

func TestWrapInternal(t *testing.T) {
	baseErr := errors.New("signing failed")
	wrapped := WrapInternal("failed to issue tokens", baseErr)

	assert.True(t, IsInternalError(wrapped))
	assert.Equal(t, baseErr, errors.Unwrap(wrapped))
}
