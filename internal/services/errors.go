package services

import "errors"

var (
	// ErrEmailTaken means an account with that email already exists
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials covers unknown email and failed password
	// verification alike; callers cannot tell which.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidResetToken covers unknown, expired and already
	// consumed reset tokens alike.
	ErrInvalidResetToken = errors.New("invalid or expired reset token")
)

// ValidationError marks malformed or missing input. Its message is safe
// to surface to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a validation error with a caller-safe message
func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}
