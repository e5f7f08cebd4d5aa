package domain

import "errors"

// Common domain errors
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidInput     = errors.New("invalid input")
	ErrPathDenied       = errors.New("path access denied")
	ErrURLDenied        = errors.New("url blocked")
	ErrDownloadFailed   = errors.New("download failed")
	ErrStorageCorrupted = errors.New("storage corrupted")

	// Auth errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRateLimited        = errors.New("too many attempts")
)

// PolicyError carries the policy violation detail alongside its
// machine-checkable kind (ErrPathDenied or ErrURLDenied).
type PolicyError struct {
	Kind   error
	Detail string
}

// Error returns the error message
func (e *PolicyError) Error() string {
	if e.Detail != "" {
		return e.Kind.Error() + ": " + e.Detail
	}
	return e.Kind.Error()
}

// Unwrap returns the error kind for errors.Is checks
func (e *PolicyError) Unwrap() error {
	return e.Kind
}

// PathDenied creates a PolicyError of kind ErrPathDenied
func PathDenied(detail string) error {
	return &PolicyError{Kind: ErrPathDenied, Detail: detail}
}

// URLDenied creates a PolicyError of kind ErrURLDenied
func URLDenied(detail string) error {
	return &PolicyError{Kind: ErrURLDenied, Detail: detail}
}
