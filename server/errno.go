package server

import (
	"context"
	"errors"
	"syscall"

	opfs "github.com/sashapodgoreanu/opfs-poc"
)

// toErrno maps an operation error to the errno returned to the kernel. A
// type mismatch is ENOTDIR unless the caller expected a file.
func toErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, opfs.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, opfs.ErrTypeMismatch):
		return syscall.ENOTDIR
	case errors.Is(err, opfs.ErrPermission):
		return syscall.EACCES
	case errors.Is(err, opfs.ErrAlreadyExists):
		return syscall.EEXIST
	case errors.Is(err, opfs.ErrQuotaExceeded):
		return syscall.EDQUOT
	case errors.Is(err, opfs.ErrInvalidName):
		return syscall.EINVAL
	case errors.Is(err, opfs.ErrNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return syscall.EINTR
	default:
		return syscall.EIO
	}
}

// fileErrno is toErrno for operations on a path expected to be a file
func fileErrno(err error) syscall.Errno {
	if errors.Is(err, opfs.ErrTypeMismatch) {
		return syscall.EISDIR
	}
	return toErrno(err)
}
