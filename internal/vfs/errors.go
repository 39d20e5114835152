package vfs

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by all backends. Backends map their native
// failures onto these sentinels so that wrappers and the sync engine
// can discriminate with errors.Is.
var (
	// ErrNotFound is returned when the leaf path does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrParentDirMissing is returned when a write fails because the
	// parent directory does not exist. Recoverable by creating it.
	ErrParentDirMissing = errors.New("parent directory missing")

	// ErrInvalid is returned when a path names the wrong kind of node,
	// e.g. a directory where a file is expected.
	ErrInvalid = errors.New("resource invalid")

	// ErrUnsupported is returned for operations a backend cannot
	// perform, e.g. writes on a read-only backend.
	ErrUnsupported = errors.New("operation unsupported")

	// ErrConnection is returned after a backend has exhausted its own
	// transient-failure retries.
	ErrConnection = errors.New("connection error")
)

// NotFound wraps ErrNotFound with the offending path.
func NotFound(path string) error {
	return fmt.Errorf("%s: %w", path, ErrNotFound)
}

// ParentDirMissing wraps ErrParentDirMissing with the offending path.
func ParentDirMissing(path string) error {
	return fmt.Errorf("%s: %w", path, ErrParentDirMissing)
}

// Unsupported wraps ErrUnsupported with the operation and path.
func Unsupported(op, path string) error {
	return fmt.Errorf("%s %s: %w", op, path, ErrUnsupported)
}

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
