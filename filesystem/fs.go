// Package filesystem implements the path based operations of the explorer on
// top of the handle based storage substrate: path resolution, tree building
// and mutations. Every operation addresses an entry by root tag and logical
// path and re-resolves it from the root; no handles are kept between calls.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/internal/metrics"
	"github.com/sashapodgoreanu/opfs-poc/internal/util"
)

// FileSystem runs mutation and read operations against the roots provided
// by an injected opener
type FileSystem struct {
	roots opfs.RootOpener
}

func New(roots opfs.RootOpener) *FileSystem {
	return &FileSystem{roots: roots}
}

// finish records metrics and logs for an operation and wraps err into an
// [opfs.PathError]
func finish(op, root, path string, start time.Time, err error) error {
	metrics.RecordOperation(op, err, time.Since(start))
	logger := util.GetLogger(op)
	if err != nil {
		err = opfs.WrapPath(op, root, path, err)
		logger.Debug().Err(err).Str("root", root).Str("path", path).Msg("Operation failed")
		return err
	}
	logger.Trace().Str("root", root).Str("path", path).Dur("took", time.Since(start)).Msg("Operation done")
	return nil
}

func isMismatch(err error) bool {
	return errors.Is(err, opfs.ErrTypeMismatch)
}

// CreateFile creates the file at path and any missing parent directories.
// An existing file is left untouched. A directory at path is
// [opfs.ErrTypeMismatch].
func (fs *FileSystem) CreateFile(ctx context.Context, root, path string) (n opfs.Node, err error) {
	start := time.Now()
	defer func() { err = finish("createFile", root, path, start, err) }()

	clean, err := CleanPath(path)
	if err != nil {
		return opfs.Node{}, err
	}
	if clean == "" {
		return opfs.Node{}, fmt.Errorf("root is a directory: %w", opfs.ErrTypeMismatch)
	}
	dir, err := fs.roots.OpenRoot(ctx, root)
	if err != nil {
		return opfs.Node{}, err
	}
	f, err := ResolveFile(ctx, dir, clean, true)
	if err != nil {
		return opfs.Node{}, err
	}
	size, err := f.Size(ctx)
	if err != nil {
		return opfs.Node{}, err
	}
	return opfs.Node{Name: f.Name(), Path: clean, Kind: opfs.KindFile, Root: root, Size: size}, nil
}

// CreateDirectory creates the directory at path and any missing parents, like
// mkdir -p. A file at path is [opfs.ErrTypeMismatch].
func (fs *FileSystem) CreateDirectory(ctx context.Context, root, path string) (n opfs.Node, err error) {
	start := time.Now()
	defer func() { err = finish("createDirectory", root, path, start, err) }()

	clean, err := CleanPath(path)
	if err != nil {
		return opfs.Node{}, err
	}
	if clean == "" {
		return opfs.Node{}, fmt.Errorf("%w: empty path", opfs.ErrInvalidName)
	}
	dir, err := fs.roots.OpenRoot(ctx, root)
	if err != nil {
		return opfs.Node{}, err
	}
	d, err := ResolveDirectory(ctx, dir, clean, true)
	if err != nil {
		return opfs.Node{}, err
	}
	return opfs.Node{Name: d.Name(), Path: clean, Kind: opfs.KindDirectory, Root: root, Children: []opfs.Node{}}, nil
}

// DeleteEntry removes the entry at path. Directories are removed with all
// their descendants. The entry must exist and be of the given kind.
func (fs *FileSystem) DeleteEntry(ctx context.Context, root, path string, kind opfs.Kind) (err error) {
	start := time.Now()
	defer func() { err = finish("deleteEntry", root, path, start, err) }()

	dirs, final, err := SplitPath(path)
	if err != nil {
		return err
	}
	if final == "" {
		return fmt.Errorf("%w: cannot delete the root container", opfs.ErrInvalidName)
	}
	dir, err := fs.roots.OpenRoot(ctx, root)
	if err != nil {
		return err
	}
	parent := dir
	for _, name := range dirs {
		if parent, err = parent.GetDirectoryHandle(ctx, name, false); err != nil {
			return err
		}
	}

	switch kind {
	case opfs.KindFile:
		_, err = parent.GetFileHandle(ctx, final, false)
	case opfs.KindDirectory:
		_, err = parent.GetDirectoryHandle(ctx, final, false)
	default:
		err = fmt.Errorf("%w: cannot delete entries of kind %q", opfs.ErrInvalidName, kind)
	}
	if err != nil {
		return err
	}
	return parent.RemoveEntry(ctx, final, kind == opfs.KindDirectory)
}

// ReadFile returns the full text content of the file at path
func (fs *FileSystem) ReadFile(ctx context.Context, root, path string) (content string, err error) {
	start := time.Now()
	defer func() { err = finish("readFile", root, path, start, err) }()

	dir, err := fs.roots.OpenRoot(ctx, root)
	if err != nil {
		return "", err
	}
	f, err := ResolveFile(ctx, dir, path, false)
	if err != nil {
		return "", err
	}
	return f.Text(ctx)
}

// WriteFile replaces the content of the file at path, creating it and its
// parents if absent. The new content becomes visible at once when the
// writable stream commits; a failed write leaves the previous content.
// A file created by a failed call is removed again. Parent directories it
// created stay.
func (fs *FileSystem) WriteFile(ctx context.Context, root, path, content string) (err error) {
	start := time.Now()
	defer func() { err = finish("writeFile", root, path, start, err) }()

	dirs, final, err := SplitPath(path)
	if err != nil {
		return err
	}
	if final == "" {
		return fmt.Errorf("root is a directory: %w", opfs.ErrTypeMismatch)
	}
	dir, err := fs.roots.OpenRoot(ctx, root)
	if err != nil {
		return err
	}
	parent, err := ResolveDirectory(ctx, dir, strings.Join(dirs, "/"), true)
	if err != nil {
		return err
	}

	created := false
	f, err := parent.GetFileHandle(ctx, final, false)
	if errors.Is(err, opfs.ErrNotFound) {
		f, err = parent.GetFileHandle(ctx, final, true)
		created = err == nil
	}
	if err != nil {
		return err
	}
	if err := commit(ctx, f, content); err != nil {
		if created {
			if rmErr := parent.RemoveEntry(ctx, final, false); rmErr != nil {
				util.GetLogger("WriteFile").Warn().Err(rmErr).Str("root", root).Str("path", path).Msg("Removing new file after failed write")
			}
		}
		return err
	}
	return nil
}

// UpdateFile replaces the content of an existing file. Unlike [WriteFile] it
// fails with [opfs.ErrNotFound] when the file or one of its parents is gone.
func (fs *FileSystem) UpdateFile(ctx context.Context, root, path, content string) (err error) {
	start := time.Now()
	defer func() { err = finish("updateFile", root, path, start, err) }()

	dir, err := fs.roots.OpenRoot(ctx, root)
	if err != nil {
		return err
	}
	f, err := ResolveFile(ctx, dir, path, false)
	if err != nil {
		return err
	}
	return commit(ctx, f, content)
}

// commit writes content through a writable stream of f. The stream is
// aborted on any write failure.
func commit(ctx context.Context, f opfs.FileHandle, content string) error {
	w, err := f.CreateWritable(ctx)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, content); err != nil {
		if abortErr := w.Abort(); abortErr != nil {
			util.GetLogger("commit").Warn().Err(abortErr).Str("file", f.Name()).Msg("Abort failed")
		}
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	metrics.RecordBytesWritten(len(content))
	return nil
}

// Stat returns the node at path without children. Directories are reported
// unfetched (nil Children).
func (fs *FileSystem) Stat(ctx context.Context, root, path string) (n opfs.Node, err error) {
	start := time.Now()
	defer func() { err = finish("stat", root, path, start, err) }()

	clean, err := CleanPath(path)
	if err != nil {
		return opfs.Node{}, err
	}
	dir, err := fs.roots.OpenRoot(ctx, root)
	if err != nil {
		return opfs.Node{}, err
	}
	if clean == "" {
		return opfs.Node{Name: root, Kind: opfs.KindBucket, Root: root}, nil
	}
	h, err := Lookup(ctx, dir, clean)
	if err != nil {
		return opfs.Node{}, err
	}
	return nodeOf(ctx, h, clean, root)
}

// List returns the direct children of the directory at path, unfetched
func (fs *FileSystem) List(ctx context.Context, root, path string) (nodes []opfs.Node, err error) {
	start := time.Now()
	defer func() { err = finish("list", root, path, start, err) }()

	clean, err := CleanPath(path)
	if err != nil {
		return nil, err
	}
	dir, err := fs.roots.OpenRoot(ctx, root)
	if err != nil {
		return nil, err
	}
	d, err := ResolveDirectory(ctx, dir, clean, false)
	if err != nil {
		return nil, err
	}
	nodes = []opfs.Node{}
	for h, err := range d.Entries(ctx) {
		if err != nil {
			return nil, err
		}
		n, err := nodeOf(ctx, h, opfs.JoinPath(clean, h.Name()), root)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func nodeOf(ctx context.Context, h opfs.Handle, path, root string) (opfs.Node, error) {
	n := opfs.Node{Name: h.Name(), Path: path, Kind: h.Kind(), Root: root}
	if f, ok := h.(opfs.FileHandle); ok {
		size, err := f.Size(ctx)
		if err != nil {
			return opfs.Node{}, err
		}
		n.Kind, n.Size = opfs.KindFile, size
	}
	return n, nil
}

// Tree re-walks the whole root and returns it as a bucket node
func (fs *FileSystem) Tree(ctx context.Context, root string) (n opfs.Node, err error) {
	start := time.Now()
	defer func() { err = finish("buildTree", root, "", start, err) }()

	dir, err := fs.roots.OpenRoot(ctx, root)
	if err != nil {
		return opfs.Node{}, err
	}
	n, err = Snapshot(ctx, dir, root)
	if err != nil {
		return opfs.Node{}, err
	}
	metrics.SetTreeNodes(root, CountNodes(n.Children))
	return n, nil
}
