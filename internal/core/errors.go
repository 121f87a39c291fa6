package core

import (
	"errors"
	"fmt"
)

var (
	// Error kinds callers switch on.
	ErrInvalidInput            = errors.New("invalid input")
	ErrNotFound                = errors.New("not found")
	ErrUnauthorized            = errors.New("invalid password")
	ErrRateLimited             = errors.New("too many requests")
	ErrCodeGenerationExhausted = errors.New("failed to generate unique short code")
	ErrStorage                 = errors.New("storage failure")

	// Specific causes. Each one matches its kind with errors.Is.
	ErrInvalidURL    = fmt.Errorf("%w: url must be an absolute http or https URL", ErrInvalidInput)
	ErrInvalidCode   = fmt.Errorf("%w: code must be 3-64 characters of A-Z, a-z, 0-9, _ or -", ErrInvalidInput)
	ErrInvalidExpiry = fmt.Errorf("%w: expiry must be in the future", ErrInvalidInput)
	ErrNoPassword    = fmt.Errorf("%w: no password required", ErrInvalidInput)
	ErrConflict      = errors.New("code already exists")
)

// StorageError wraps a persistence failure with the operation that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes every StorageError match ErrStorage.
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err indicates a uniqueness conflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsInvalidInput reports whether err was caused by bad caller input.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
