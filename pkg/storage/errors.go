package storage

import (
	"errors"
	"fmt"
)

// Common storage errors
var (
	// ErrNotFound indicates the requested object was not found
	ErrNotFound = errors.New("storage: object not found")

	// ErrAccessDenied indicates access was denied
	ErrAccessDenied = errors.New("storage: access denied")

	// ErrInvalidPath indicates an invalid path was provided
	ErrInvalidPath = errors.New("storage: invalid path")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("storage: invalid configuration")

	// ErrNotSupported indicates the operation is not supported
	ErrNotSupported = errors.New("storage: operation not supported")

	// ErrPartialContent indicates only part of an object was retrieved
	ErrPartialContent = errors.New("storage: partial content")
)

// Error represents a storage error with additional context
type Error struct {
	Op       string // Operation that failed
	Path     string // Path involved in the operation
	Provider string // Storage provider type
	Err      error  // Underlying error
}

// Error returns the string representation of the error
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("storage %s: %s failed for %s: %v", e.Provider, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("storage %s: %s failed: %v", e.Provider, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new storage error
func NewError(op string, path string, provider Provider, err error) error {
	return &Error{
		Op:       op,
		Path:     path,
		Provider: string(provider),
		Err:      err,
	}
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied checks if an error is an access denied error
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsInvalidPath checks if an error is an invalid path error
func IsInvalidPath(err error) bool {
	return errors.Is(err, ErrInvalidPath)
}
