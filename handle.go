// Package opfs contains the core domain types and interfaces for the storage
// explorer: the node view-model, the handle-based storage substrate surface and
// the storage root registry contract.
package opfs

import (
	"context"
	"io"
	"iter"
)

// Handle is an opaque reference to a file or directory within a root
type Handle interface {
	// Name returns the entry name (last path component). The top-level
	// directory of a root returns the root name.
	Name() string
	Kind() Kind
}

// DirectoryHandle is a container within a storage root. Implementations must
// return [ErrNotFound], [ErrTypeMismatch], [ErrNotEmpty] and [ErrInvalidName]
// (wrapped or not) for the corresponding failures.
type DirectoryHandle interface {
	Handle

	// GetDirectoryHandle returns the child directory name, creating it when
	// create is set and it does not exist yet
	GetDirectoryHandle(ctx context.Context, name string, create bool) (DirectoryHandle, error)

	// GetFileHandle returns the child file name, creating an empty file when
	// create is set and it does not exist yet
	GetFileHandle(ctx context.Context, name string, create bool) (FileHandle, error)

	// RemoveEntry removes the child name. Non-empty directories require recursive.
	RemoveEntry(ctx context.Context, name string, recursive bool) error

	// Entries lazily enumerates the direct children. Order is whatever the
	// underlying store yields and must not be relied on.
	Entries(ctx context.Context) iter.Seq2[Handle, error]
}

// FileHandle is a file within a storage root
type FileHandle interface {
	Handle

	// Text returns the full content of the file
	Text(ctx context.Context) (string, error)

	// Size returns the committed size of the file in bytes
	Size(ctx context.Context) (int64, error)

	// CreateWritable opens the file for exclusive write. Nothing written is
	// visible to readers until Close commits it.
	CreateWritable(ctx context.Context) (WritableStream, error)
}

// WritableStream buffers writes until Close commits them as the new file
// content. Abort discards everything written so far.
type WritableStream interface {
	io.Writer
	Close() error
	Abort() error
}

// OpenOptions control how a [Backend] opens a root namespace
type OpenOptions struct {
	Create     bool
	Durability Durability
}

// Backend provides the independent namespaces that back storage roots.
// Implementations should handle resource management (clients, connections etc).
type Backend interface {
	// Root returns the top-level directory of the named namespace. Without
	// opts.Create a missing namespace is [ErrNotFound].
	Root(ctx context.Context, name string, opts OpenOptions) (DirectoryHandle, error)

	// RemoveRoot deletes the namespace and everything in it
	RemoveRoot(ctx context.Context, name string) error

	// Type returns the backend type identifier ("mem", "os", "s3")
	Type() string

	Close() error
}

// BackendProvider creates a [Backend] from its raw JSON configuration. The
// JSON carries a "type" field used to select the provider.
type BackendProvider interface {
	NewBackend(raw []byte) (Backend, error)
}
