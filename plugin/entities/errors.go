package entities

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error patterns.
// These allow both errors.Is() checks and errors.As() for detailed information.
var (
	// ErrUnitLoad is returned when a plugin file cannot be read, executed
	// or scanned.
	ErrUnitLoad = errors.New("plugin load failed")

	// ErrInvalidPath is returned when a candidate plugin path is not
	// absolute.
	ErrInvalidPath = errors.New("plugin path must be absolute")

	// ErrMemberNotFound is returned when a name lookup matches no loaded
	// capability.
	ErrMemberNotFound = errors.New("capability not found")
)

// LoadError indicates a plugin file failed to load. It identifies the
// offending file and carries the underlying cause.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
}

// Unwrap exposes the underlying cause for errors.Is/errors.As.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is implements error matching for errors.Is() checks.
// This allows: errors.Is(err, entities.ErrUnitLoad)
func (e *LoadError) Is(target error) bool {
	return target == ErrUnitLoad
}

// InvalidPathError indicates a candidate plugin path is not absolute.
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("plugin path must be absolute: %s", e.Path)
}

// Is implements error matching for errors.Is() checks.
// This allows: errors.Is(err, entities.ErrInvalidPath)
func (e *InvalidPathError) Is(target error) bool {
	return target == ErrInvalidPath
}

// NotFoundError indicates a name lookup matched no loaded capability.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("capability not found: %s", e.Name)
}

// Is implements error matching for errors.Is() checks.
// This allows: errors.Is(err, entities.ErrMemberNotFound)
func (e *NotFoundError) Is(target error) bool {
	return target == ErrMemberNotFound
}
