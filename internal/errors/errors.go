package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// DomainError represents a domain-specific error with a code and message
type DomainError struct {
	Code    string
	Message string
	Err     error // underlying error for wrapping
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is and errors.As
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with domain error context
func WrapError(domainErr *DomainError, err error) *DomainError {
	return &DomainError{
		Code:    domainErr.Code,
		Message: domainErr.Message,
		Err:     err,
	}
}

// Predefined domain errors
var (
	// User errors
	ErrUserNotFound = NewDomainError("USER_NOT_FOUND", "user not found")
	ErrEmailExists  = NewDomainError("EMAIL_EXISTS", "email already exists")
	ErrSelfDeletion = NewDomainError("SELF_DELETION", "users cannot delete themselves")

	// Authentication errors. Credential failures stay generic so the caller
	// cannot tell which of email/password was wrong.
	ErrInvalidCredentials = NewDomainError("INVALID_CREDENTIALS", "invalid credentials")
	ErrUnauthorized       = NewDomainError("UNAUTHORIZED", "unauthorized")
	ErrInvalidToken       = NewDomainError("INVALID_TOKEN", "invalid or expired token")
	ErrTokenExpired       = NewDomainError("TOKEN_EXPIRED", "token has expired")
	ErrWrongTokenType     = NewDomainError("WRONG_TOKEN_TYPE", "token is not valid for this operation")
	ErrAccountInactive    = NewDomainError("ACCOUNT_INACTIVE", "account is inactive")
	ErrEmailNotVerified   = NewDomainError("EMAIL_NOT_VERIFIED", "email verification required")

	// Refresh token errors. Reuse detection is an internal signal; callers
	// always see the generic invalid refresh token message.
	ErrInvalidRefreshToken = NewDomainError("INVALID_REFRESH_TOKEN", "invalid refresh token")
	ErrTokenReuseDetected  = NewDomainError("TOKEN_REUSE", "refresh token reuse detected")

	// Lockout errors
	ErrAccountLocked = NewDomainError("ACCOUNT_LOCKED", "account is temporarily locked")

	// Authorization errors
	ErrForbidden = NewDomainError("FORBIDDEN", "insufficient permissions")

	// Validation errors
	ErrInvalidInput      = NewDomainError("INVALID_INPUT", "invalid input")
	ErrPasswordMismatch  = NewDomainError("PASSWORD_MISMATCH", "new password and confirmation do not match")
	ErrIncorrectPassword = NewDomainError("INCORRECT_PASSWORD", "current password is incorrect")
	ErrRateLimited       = NewDomainError("RATE_LIMITED", "too many requests, try again later")

	// System errors
	ErrInternal           = NewDomainError("INTERNAL_ERROR", "internal server error")
	ErrServiceUnavailable = NewDomainError("SERVICE_UNAVAILABLE", "service unavailable")
)

// AccountLockedError carries the lockout deadline so clients can tell the
// user when to retry.
type AccountLockedError struct {
	LockedUntil time.Time
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account is locked until %s", e.LockedUntil.UTC().Format(time.RFC3339))
}

// Unwrap exposes the ErrAccountLocked sentinel for errors.Is comparisons
func (e *AccountLockedError) Unwrap() error {
	return ErrAccountLocked
}

// NewAccountLockedError builds a lockout error with the retry deadline
func NewAccountLockedError(until time.Time) *AccountLockedError {
	return &AccountLockedError{LockedUntil: until}
}

// ForbiddenError names the role required by the guard that rejected the
// request. Naming the role is not a secrecy concern.
type ForbiddenError struct {
	RequiredRole string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("access denied: %s role required", e.RequiredRole)
}

func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

// NewForbiddenError builds an authorization error naming the required role
func NewForbiddenError(requiredRole string) *ForbiddenError {
	return &ForbiddenError{RequiredRole: requiredRole}
}

// IsDomainError checks if an error is a domain error
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

// GetDomainError extracts the domain error from an error
func GetDomainError(err error) *DomainError {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// ToHTTPStatus maps domain errors to HTTP status codes
// This should only be used in the handler/presentation layer
func ToHTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var lockedErr *AccountLockedError
	if errors.As(err, &lockedErr) {
		return http.StatusForbidden
	}

	var forbiddenErr *ForbiddenError
	if errors.As(err, &forbiddenErr) {
		return http.StatusForbidden
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErrorToHTTPStatus(domainErr)
	}

	// Default to internal server error for unknown errors
	return http.StatusInternalServerError
}

// domainErrorToHTTPStatus maps specific domain errors to HTTP status codes
func domainErrorToHTTPStatus(err *DomainError) int {
	switch err.Code {
	// 400 Bad Request
	case "INVALID_INPUT", "PASSWORD_MISMATCH":
		return http.StatusBadRequest

	// 401 Unauthorized
	case "UNAUTHORIZED", "INVALID_CREDENTIALS", "INVALID_TOKEN",
		"TOKEN_EXPIRED", "WRONG_TOKEN_TYPE", "INVALID_REFRESH_TOKEN",
		"TOKEN_REUSE", "INCORRECT_PASSWORD", "ACCOUNT_INACTIVE",
		"EMAIL_NOT_VERIFIED":
		return http.StatusUnauthorized

	// 403 Forbidden
	case "FORBIDDEN", "ACCOUNT_LOCKED", "SELF_DELETION":
		return http.StatusForbidden

	// 404 Not Found
	case "USER_NOT_FOUND":
		return http.StatusNotFound

	// 409 Conflict
	case "EMAIL_EXISTS":
		return http.StatusConflict

	// 429 Too Many Requests
	case "RATE_LIMITED":
		return http.StatusTooManyRequests

	// 503 Service Unavailable
	case "SERVICE_UNAVAILABLE":
		return http.StatusServiceUnavailable

	// 500 Internal Server Error (default)
	default:
		return http.StatusInternalServerError
	}
}

// GetErrorMessage safely extracts error message
func GetErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var lockedErr *AccountLockedError
	if errors.As(err, &lockedErr) {
		return lockedErr.Error()
	}

	var forbiddenErr *ForbiddenError
	if errors.As(err, &forbiddenErr) {
		return forbiddenErr.Error()
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}

	return err.Error()
}
