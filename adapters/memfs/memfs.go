// Package memfs is an in-memory storage backend. Every root is an independent
// tree of directories and files that lives as long as the backend.
package memfs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	opfs "github.com/sashapodgoreanu/opfs-poc"
)

const Type = "mem"

// Config is the raw JSON configuration of the mem backend
type Config struct {
	Type string `json:"type"`
}

// Provider creates mem backends
type Provider struct{}

func (Provider) NewBackend(raw []byte) (opfs.Backend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return New(), nil
}

// Backend implements [opfs.Backend] in memory
type Backend struct {
	roots *xsync.Map[string, *Dir]
}

func New() *Backend {
	return &Backend{roots: xsync.NewMap[string, *Dir]()}
}

func (b *Backend) Root(ctx context.Context, name string, opts opfs.OpenOptions) (opfs.DirectoryHandle, error) {
	if err := opfs.ValidateName(name); err != nil {
		return nil, err
	}
	if opts.Create {
		d, _ := b.roots.LoadOrStore(name, newDir(name))
		return d, nil
	}
	d, ok := b.roots.Load(name)
	if !ok {
		return nil, fmt.Errorf("root %q: %w", name, opfs.ErrNotFound)
	}
	return d, nil
}

// RemoveRoot drops the root tree. Removing a missing root is a no-op.
func (b *Backend) RemoveRoot(ctx context.Context, name string) error {
	b.roots.Delete(name)
	return nil
}

func (b *Backend) Type() string {
	return Type
}

func (b *Backend) Close() error {
	b.roots.Clear()
	return nil
}

// entry is either a *Dir or a *File
type entry interface {
	opfs.Handle
}

// Dir implements [opfs.DirectoryHandle]
type Dir struct {
	name     string
	children *xsync.Map[string, entry]
}

func newDir(name string) *Dir {
	return &Dir{name: name, children: xsync.NewMap[string, entry]()}
}

func (d *Dir) Name() string    { return d.name }
func (d *Dir) Kind() opfs.Kind { return opfs.KindDirectory }

func (d *Dir) GetDirectoryHandle(ctx context.Context, name string, create bool) (opfs.DirectoryHandle, error) {
	if err := opfs.ValidateName(name); err != nil {
		return nil, err
	}
	var e entry
	if create {
		e, _ = d.children.LoadOrStore(name, newDir(name))
	} else {
		var ok bool
		if e, ok = d.children.Load(name); !ok {
			return nil, fmt.Errorf("directory %q: %w", name, opfs.ErrNotFound)
		}
	}
	sub, ok := e.(*Dir)
	if !ok {
		return nil, fmt.Errorf("%q is a file: %w", name, opfs.ErrTypeMismatch)
	}
	return sub, nil
}

func (d *Dir) GetFileHandle(ctx context.Context, name string, create bool) (opfs.FileHandle, error) {
	if err := opfs.ValidateName(name); err != nil {
		return nil, err
	}
	var e entry
	if create {
		e, _ = d.children.LoadOrStore(name, &File{name: name, modTime: time.Now()})
	} else {
		var ok bool
		if e, ok = d.children.Load(name); !ok {
			return nil, fmt.Errorf("file %q: %w", name, opfs.ErrNotFound)
		}
	}
	f, ok := e.(*File)
	if !ok {
		return nil, fmt.Errorf("%q is a directory: %w", name, opfs.ErrTypeMismatch)
	}
	return f, nil
}

func (d *Dir) RemoveEntry(ctx context.Context, name string, recursive bool) error {
	if err := opfs.ValidateName(name); err != nil {
		return err
	}
	e, ok := d.children.Load(name)
	if !ok {
		return fmt.Errorf("entry %q: %w", name, opfs.ErrNotFound)
	}
	if sub, isDir := e.(*Dir); isDir && !recursive && sub.children.Size() > 0 {
		return fmt.Errorf("%q: %w", name, opfs.ErrNotEmpty)
	}
	d.children.Delete(name)
	return nil
}

func (d *Dir) Entries(ctx context.Context) iter.Seq2[opfs.Handle, error] {
	return func(yield func(opfs.Handle, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		d.children.Range(func(_ string, e entry) bool {
			return yield(e, nil)
		})
	}
}

// File implements [opfs.FileHandle]
type File struct {
	name    string
	mu      sync.RWMutex
	data    []byte
	modTime time.Time
}

func (f *File) Name() string    { return f.name }
func (f *File) Kind() opfs.Kind { return opfs.KindFile }

func (f *File) Text(ctx context.Context) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return string(f.data), nil
}

func (f *File) Size(ctx context.Context) (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int64(len(f.data)), nil
}

// ModTime returns the time of the last commit
func (f *File) ModTime() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.modTime
}

func (f *File) CreateWritable(ctx context.Context) (opfs.WritableStream, error) {
	return &writable{file: f}, nil
}

// writable buffers everything until Close swaps it in as the file content
type writable struct {
	file   *File
	buf    bytes.Buffer
	closed bool
}

func (w *writable) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed stream of %q", w.file.name)
	}
	return w.buf.Write(p)
}

func (w *writable) Close() error {
	if w.closed {
		return fmt.Errorf("stream of %q already closed", w.file.name)
	}
	w.closed = true
	w.file.mu.Lock()
	w.file.data = bytes.Clone(w.buf.Bytes())
	w.file.modTime = time.Now()
	w.file.mu.Unlock()
	return nil
}

func (w *writable) Abort() error {
	w.closed = true
	w.buf.Reset()
	return nil
}

var (
	_ opfs.Backend         = (*Backend)(nil)
	_ opfs.DirectoryHandle = (*Dir)(nil)
	_ opfs.FileHandle      = (*File)(nil)
)
