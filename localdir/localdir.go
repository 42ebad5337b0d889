// Package localdir manages the user-granted local directory: asking the user
// to pick it, remembering the grant across sessions and re-validating access
// before every reuse.
package localdir

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/adapters/osfs"
	"github.com/sashapodgoreanu/opfs-poc/internal/util"
	"golang.org/x/sys/unix"
)

// HandleKey is the fixed key the grant is persisted under
const HandleKey = "local-directory"

// Picker asks the user for a directory. A declined prompt returns
// [opfs.ErrPermission].
type Picker interface {
	Pick(ctx context.Context) (string, error)
}

// HandleStore persists granted handles. Implemented by the catalog.
type HandleStore interface {
	SaveHandle(ctx context.Context, key, path string) error
	LoadHandle(ctx context.Context, key string) (string, time.Time, error)
	DeleteHandle(ctx context.Context, key string) error
}

// Grant describes the persisted grant
type Grant struct {
	Path      string    `json:"path"`
	GrantedAt time.Time `json:"granted_at"`
	// Valid reports whether access is still permitted
	Valid bool `json:"valid"`
}

// Access holds the granted local directory for one session
type Access struct {
	store      HandleStore
	durability opfs.Durability

	mu  sync.Mutex
	dir *osfs.Dir
}

func New(store HandleStore, durability opfs.Durability) *Access {
	return &Access{store: store, durability: durability}
}

// validate checks path is an existing directory the process can list and
// modify
func validate(path string) error {
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		if errors.Is(err, unix.ENOENT) {
			return fmt.Errorf("%s: %w", path, opfs.ErrNotFound)
		}
		return fmt.Errorf("%s: %w: %w", path, opfs.ErrPermission, err)
	}
	return nil
}

func (a *Access) open(path string) (*osfs.Dir, error) {
	if err := validate(path); err != nil {
		return nil, err
	}
	return osfs.OpenDir(path, opfs.LocalRoot, a.durability)
}

// Grant asks picker for a directory, validates and persists it
func (a *Access) Grant(ctx context.Context, picker Picker) (opfs.DirectoryHandle, error) {
	logger := util.GetLogger("LocalGrant")

	path, err := picker.Pick(ctx)
	if err != nil {
		return nil, err
	}
	if path, err = filepath.Abs(path); err != nil {
		return nil, err
	}
	dir, err := a.open(path)
	if err != nil {
		return nil, err
	}
	if err := a.store.SaveHandle(ctx, HandleKey, path); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.dir = dir
	a.mu.Unlock()
	logger.Info().Str("path", path).Msg("Local directory granted")
	return dir, nil
}

// Restore reopens the persisted grant. Nothing stored is [opfs.ErrNotFound].
// A directory that is gone or no longer accessible is [opfs.ErrPermission];
// the stored grant is kept so the user can re-grant it.
func (a *Access) Restore(ctx context.Context) (opfs.DirectoryHandle, error) {
	logger := util.GetLogger("LocalRestore")

	path, _, err := a.store.LoadHandle(ctx, HandleKey)
	if err != nil {
		return nil, err
	}
	dir, err := a.open(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Stored local directory is no longer accessible")
		a.mu.Lock()
		a.dir = nil
		a.mu.Unlock()
		if errors.Is(err, opfs.ErrPermission) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", opfs.ErrPermission, err)
	}

	a.mu.Lock()
	a.dir = dir
	a.mu.Unlock()
	return dir, nil
}

// Forget drops the persisted grant
func (a *Access) Forget(ctx context.Context) error {
	a.mu.Lock()
	a.dir = nil
	a.mu.Unlock()
	return a.store.DeleteHandle(ctx, HandleKey)
}

// Status reports the persisted grant without opening it
func (a *Access) Status(ctx context.Context) (Grant, error) {
	path, at, err := a.store.LoadHandle(ctx, HandleKey)
	if err != nil {
		return Grant{}, err
	}
	return Grant{Path: path, GrantedAt: at, Valid: validate(path) == nil}, nil
}

// Granted reports whether a directory is held by this session
func (a *Access) Granted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dir != nil
}

// OpenRoot implements [opfs.RootOpener] for [opfs.LocalRoot]. Access is
// re-validated on every call.
func (a *Access) OpenRoot(ctx context.Context, name string) (opfs.DirectoryHandle, error) {
	if name != opfs.LocalRoot {
		return nil, fmt.Errorf("root %q: %w", name, opfs.ErrNotFound)
	}
	a.mu.Lock()
	dir := a.dir
	a.mu.Unlock()
	if dir == nil {
		return a.Restore(ctx)
	}
	if err := validate(dir.Path()); err != nil {
		a.mu.Lock()
		a.dir = nil
		a.mu.Unlock()
		if errors.Is(err, opfs.ErrPermission) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", opfs.ErrPermission, err)
	}
	return dir, nil
}

var _ opfs.RootOpener = (*Access)(nil)
