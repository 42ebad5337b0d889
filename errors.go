package opfs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a path segment, root or stored handle is absent
	ErrNotFound = errors.New("not found")
	// ErrTypeMismatch is returned when a file was expected but a directory exists or vice versa
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrPermission is returned when access to the local directory was declined or revoked
	ErrPermission = errors.New("permission denied")
	// ErrAlreadyExists is returned on root/bucket name collisions
	ErrAlreadyExists = errors.New("already exists")
	// ErrQuotaExceeded is returned when a commit would exceed the root's quota
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrInvalidName is returned for empty, dot or separator-containing names
	ErrInvalidName = errors.New("invalid name")
	// ErrNotEmpty is returned when removing a non-empty directory without recursion
	ErrNotEmpty = errors.New("directory not empty")
)

// PathError records a failed operation on a logical path within a root
type PathError struct {
	Op   string
	Root string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s:%s: %v", e.Op, e.Root, e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// WrapPath wraps err into a [PathError] unless it is nil or already one
func WrapPath(op, root, path string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PathError
	if errors.As(err, &pe) {
		return err
	}
	return &PathError{Op: op, Root: root, Path: path, Err: err}
}

// ValidateName checks a single entry name the way every substrate does
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
