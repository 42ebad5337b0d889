// Package osfs stores roots as directories on the local disk. It also backs
// the user-granted local directory.
package osfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/internal/util"
)

const Type = "os"

const (
	tempPrefix = ".opfs-"
	tempSuffix = ".tmp"
)

// Config is the raw JSON configuration of the os backend
type Config struct {
	Type string `json:"type"`
	Dir  string `json:"dir"` // Directory holding one subdirectory per root
}

// Provider creates os backends
type Provider struct{}

func (Provider) NewBackend(raw []byte) (opfs.Backend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("os backend requires dir")
	}
	return New(cfg.Dir)
}

// Backend implements [opfs.Backend] with one directory per root
type Backend struct {
	dir string
}

// New creates the backend, creating dir if needed
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create roots dir: %w", err)
	}
	return &Backend{dir: dir}, nil
}

func (b *Backend) Root(ctx context.Context, name string, opts opfs.OpenOptions) (opfs.DirectoryHandle, error) {
	if err := opfs.ValidateName(name); err != nil {
		return nil, err
	}
	p := filepath.Join(b.dir, name)
	if opts.Create {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return nil, mapErr(err)
		}
	}
	return OpenDir(p, name, opts.Durability)
}

// RemoveRoot deletes the root directory. Removing a missing root is a no-op.
func (b *Backend) RemoveRoot(ctx context.Context, name string) error {
	if err := opfs.ValidateName(name); err != nil {
		return err
	}
	return mapErr(os.RemoveAll(filepath.Join(b.dir, name)))
}

func (b *Backend) Type() string {
	return Type
}

func (b *Backend) Close() error {
	return nil
}

// OpenDir returns a handle for an existing directory on disk
func OpenDir(path, name string, durability opfs.Durability) (*Dir, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, mapErr(err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", path, opfs.ErrTypeMismatch)
	}
	return &Dir{path: path, name: name, durability: durability}, nil
}

// Dir implements [opfs.DirectoryHandle]
type Dir struct {
	path       string
	name       string
	durability opfs.Durability
}

func (d *Dir) Name() string    { return d.name }
func (d *Dir) Kind() opfs.Kind { return opfs.KindDirectory }

// Path returns the directory location on disk
func (d *Dir) Path() string { return d.path }

func (d *Dir) child(name string) (string, error) {
	if err := opfs.ValidateName(name); err != nil {
		return "", err
	}
	if isTemp(name) {
		return "", fmt.Errorf("%w: %q is reserved", opfs.ErrInvalidName, name)
	}
	return filepath.Join(d.path, name), nil
}

func (d *Dir) GetDirectoryHandle(ctx context.Context, name string, create bool) (opfs.DirectoryHandle, error) {
	p, err := d.child(name)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(p)
	switch {
	case err == nil && !fi.IsDir():
		return nil, fmt.Errorf("%q is a file: %w", name, opfs.ErrTypeMismatch)
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && create:
		if err := os.Mkdir(p, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
			return nil, mapErr(err)
		}
	default:
		return nil, mapErr(err)
	}
	return &Dir{path: p, name: name, durability: d.durability}, nil
}

func (d *Dir) GetFileHandle(ctx context.Context, name string, create bool) (opfs.FileHandle, error) {
	p, err := d.child(name)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(p)
	switch {
	case err == nil && fi.IsDir():
		return nil, fmt.Errorf("%q is a directory: %w", name, opfs.ErrTypeMismatch)
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && create:
		f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil && !errors.Is(err, fs.ErrExist) {
			return nil, mapErr(err)
		}
		if f != nil {
			f.Close()
		}
	default:
		return nil, mapErr(err)
	}
	return &File{path: p, name: name, durability: d.durability}, nil
}

func (d *Dir) RemoveEntry(ctx context.Context, name string, recursive bool) error {
	p, err := d.child(name)
	if err != nil {
		return err
	}
	fi, err := os.Lstat(p)
	if err != nil {
		return mapErr(err)
	}
	if !fi.IsDir() {
		return mapErr(os.Remove(p))
	}
	if recursive {
		return mapErr(os.RemoveAll(p))
	}
	ents, err := os.ReadDir(p)
	if err != nil {
		return mapErr(err)
	}
	if len(ents) > 0 {
		return fmt.Errorf("%q: %w", name, opfs.ErrNotEmpty)
	}
	return mapErr(os.Remove(p))
}

// Entries lists regular files and directories. Symlinks, devices,
// uncommitted temp files and names no logical path can address (such as
// "a\b") are skipped.
func (d *Dir) Entries(ctx context.Context) iter.Seq2[opfs.Handle, error] {
	return func(yield func(opfs.Handle, error) bool) {
		ents, err := os.ReadDir(d.path)
		if err != nil {
			yield(nil, mapErr(err))
			return
		}
		for _, e := range ents {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if opfs.ValidateName(e.Name()) != nil {
				continue
			}
			p := filepath.Join(d.path, e.Name())
			var h opfs.Handle
			switch {
			case e.IsDir():
				h = &Dir{path: p, name: e.Name(), durability: d.durability}
			case e.Type().IsRegular() && !isTemp(e.Name()):
				h = &File{path: p, name: e.Name(), durability: d.durability}
			default:
				continue
			}
			if !yield(h, nil) {
				return
			}
		}
	}
}

// File implements [opfs.FileHandle]
type File struct {
	path       string
	name       string
	durability opfs.Durability
}

func (f *File) Name() string    { return f.name }
func (f *File) Kind() opfs.Kind { return opfs.KindFile }

func (f *File) Text(ctx context.Context) (string, error) {
	b, err := os.ReadFile(f.path)
	if err != nil {
		return "", mapErr(err)
	}
	return string(b), nil
}

func (f *File) Size(ctx context.Context) (int64, error) {
	fi, err := os.Stat(f.path)
	if err != nil {
		return 0, mapErr(err)
	}
	return fi.Size(), nil
}

// CreateWritable writes into a hidden temp file next to the target which is
// renamed into place on Close
func (f *File) CreateWritable(ctx context.Context) (opfs.WritableStream, error) {
	tmp, err := os.CreateTemp(filepath.Dir(f.path), tempPrefix+"*"+tempSuffix)
	if err != nil {
		return nil, mapErr(err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, mapErr(err)
	}
	return &writable{file: f, tmp: tmp}, nil
}

type writable struct {
	file *File
	tmp  *os.File
	done bool
}

func (w *writable) Write(p []byte) (int, error) {
	if w.done {
		return 0, fmt.Errorf("write to closed stream of %q", w.file.name)
	}
	return w.tmp.Write(p)
}

func (w *writable) Close() error {
	if w.done {
		return fmt.Errorf("stream of %q already closed", w.file.name)
	}
	w.done = true
	logger := util.GetLogger("OSFS.Commit")

	strict := w.file.durability == opfs.DurabilityStrict
	if strict {
		if err := w.tmp.Sync(); err != nil {
			w.discard()
			return fmt.Errorf("sync %s: %w", w.file.path, err)
		}
	}
	if err := w.tmp.Close(); err != nil {
		os.Remove(w.tmp.Name())
		return fmt.Errorf("close %s: %w", w.file.path, err)
	}
	if err := os.Rename(w.tmp.Name(), w.file.path); err != nil {
		os.Remove(w.tmp.Name())
		return mapErr(err)
	}
	if strict {
		if err := syncDir(filepath.Dir(w.file.path)); err != nil {
			logger.Warn().Err(err).Str("path", w.file.path).Msg("Directory sync failed after commit")
			return fmt.Errorf("sync directory of %s: %w", w.file.path, err)
		}
	}
	logger.Trace().Str("path", w.file.path).Bool("strict", strict).Msg("Committed")
	return nil
}

func (w *writable) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.discard()
	return nil
}

func (w *writable) discard() {
	w.tmp.Close()
	os.Remove(w.tmp.Name())
}

// syncDir flushes the directory entry of a renamed file
var syncDir = func(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

func isTemp(name string) bool {
	return strings.HasPrefix(name, tempPrefix) && strings.HasSuffix(name, tempSuffix)
}

// mapErr translates os errors into the substrate sentinels
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", opfs.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", opfs.ErrPermission, err)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %w", opfs.ErrAlreadyExists, err)
	default:
		return err
	}
}

var (
	_ opfs.Backend         = (*Backend)(nil)
	_ opfs.DirectoryHandle = (*Dir)(nil)
	_ opfs.FileHandle      = (*File)(nil)
)
