package service

import "errors"

var (
	// ErrValidation is returned when request or user input is malformed
	ErrValidation = errors.New("validation failed")

	// ErrUserNotFound is returned for an unknown user id
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when the id or email is already registered
	ErrUserExists = errors.New("user already exists")

	// ErrNotManager is returned when a team view is asked of a non-manager
	ErrNotManager = errors.New("user is not a manager")
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}
