package relay_errors

import (
	"errors"
)

// Common errors
var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotRegistered = errors.New("session has no registered user")
	ErrAlreadyExists = errors.New("already exists")
	ErrTimeout       = errors.New("operation timed out")
	ErrShuttingDown  = errors.New("relay is shutting down")
)
