package domain

import (
	"errors"
	"fmt"
)

// Authentication failures. At the HTTP boundary all of these collapse into a
// single generic 401.
var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrUnexpectedTokenType = errors.New("unexpected token type")
	ErrSessionNotFound     = errors.New("session not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
)

// Infrastructure failures.
var (
	ErrPersistence        = errors.New("persistence failure")
	ErrTokenStore         = errors.New("token store failure")
	ErrCompensationFailed = errors.New("compensating transaction failed")
)

var (
	ErrUserExists = errors.New("user already exists")
	ErrForbidden  = errors.New("access forbidden")
)

// IsAuthFailure reports whether err belongs to the authentication class.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrUnexpectedTokenType) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrInvalidCredentials)
}

// DeletionError is returned when the durable part of a user deletion failed
// and every deactivated token pair was put back into the index.
type DeletionError struct {
	UserID   string
	Restored int
	Cause    error
}

func (e *DeletionError) Error() string {
	return fmt.Sprintf("delete user %s: %v (restored %d token pairs)", e.UserID, e.Cause, e.Restored)
}

func (e *DeletionError) Unwrap() error { return e.Cause }

// CompensationError is returned when the durable part of a user deletion
// failed and restoring the index failed as well. Index and durable store may
// now disagree; nothing retries this automatically.
type CompensationError struct {
	UserID     string
	SessionIDs []string
	Cause      error
	RestoreErr error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("delete user %s: %v; %v: %v", e.UserID, e.Cause, ErrCompensationFailed, e.RestoreErr)
}

func (e *CompensationError) Unwrap() []error {
	return []error{ErrCompensationFailed, e.Cause, e.RestoreErr}
}
