// Package explorer is the stateful shell over the filesystem operations. A
// Session owns the displayed trees, the open file and the status line and
// replaces them only with values returned by the core operations.
package explorer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/filesystem"
	"github.com/sashapodgoreanu/opfs-poc/internal/util"
	"github.com/sashapodgoreanu/opfs-poc/localdir"
)

// Session holds the explorer state. Operations are serialised; each one
// finishes before the next starts.
type Session struct {
	fs       *filesystem.FileSystem
	registry opfs.Registry
	local    *localdir.Access
	now      func() time.Time

	mu     sync.Mutex
	trees  []opfs.Node
	editor Editor
	status Status
}

type SessionOption func(*Session)

// WithClock replaces time.Now for status timestamps
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// NewSession creates a session over registry and, when non-nil, the local
// directory access
func NewSession(registry opfs.Registry, local *localdir.Access, opts ...SessionOption) *Session {
	s := &Session{
		fs:       filesystem.New(Roots{Registry: registry, Local: local}),
		registry: registry,
		local:    local,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FileSystem returns the operations the session runs on
func (s *Session) FileSystem() *filesystem.FileSystem { return s.fs }

// Trees returns the displayed trees, one bucket node per root
func (s *Session) Trees() []opfs.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.trees)
}

func (s *Session) Editor() Editor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editor
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(level Level, format string, args ...any) {
	s.status = Status{Level: level, Message: fmt.Sprintf(format, args...), At: s.now()}
}

// fail stores err in the status line and returns it unchanged
func (s *Session) fail(err error) error {
	s.status = Status{Level: LevelError, Message: Describe(err), At: s.now()}
	util.GetLogger("Explorer").Debug().Err(err).Msg("Operation failed")
	return err
}

// rootRank orders the default root first and the local root last
func rootRank(name string) int {
	switch name {
	case opfs.DefaultRoot:
		return 0
	case opfs.LocalRoot:
		return 2
	default:
		return 1
	}
}

func byRoot(a, b opfs.Node) int {
	if c := cmp.Compare(rootRank(a.Name), rootRank(b.Name)); c != 0 {
		return c
	}
	return cmp.Compare(a.Name, b.Name)
}

func (s *Session) dropTree(root string) {
	s.trees = slices.DeleteFunc(s.trees, func(n opfs.Node) bool { return n.Root == root })
}

// reload re-walks root and replaces its node. A root that no longer opens is
// dropped from the view.
func (s *Session) reload(ctx context.Context, root string) error {
	t, err := s.fs.Tree(ctx, root)
	if err != nil {
		if errors.Is(err, opfs.ErrNotFound) || errors.Is(err, opfs.ErrPermission) {
			s.dropTree(root)
		}
		return err
	}
	if i := slices.IndexFunc(s.trees, func(n opfs.Node) bool { return n.Root == root }); i >= 0 {
		s.trees[i] = t
		return nil
	}
	s.trees = append(s.trees, t)
	slices.SortStableFunc(s.trees, byRoot)
	return nil
}

// Refresh re-walks every root. The local root is included only when a
// directory is granted.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	roots, err := s.registry.ListRoots(ctx)
	if err != nil {
		return s.fail(err)
	}
	names := make([]string, 0, len(roots)+1)
	for _, d := range roots {
		names = append(names, d.Name)
	}
	if s.local != nil && s.local.Granted() {
		names = append(names, opfs.LocalRoot)
	}

	trees := make([]opfs.Node, 0, len(names))
	var errs []error
	for _, name := range names {
		t, err := s.fs.Tree(ctx, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		trees = append(trees, t)
	}
	s.trees = trees
	if len(errs) > 0 {
		// the first failure is the one shown
		return s.fail(errs[0])
	}
	s.setStatus(LevelInfo, "Loaded %d roots", len(trees))
	return nil
}

func (s *Session) CreateFile(ctx context.Context, root, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.fs.CreateFile(ctx, root, path)
	if err != nil {
		return s.fail(err)
	}
	if err := s.reload(ctx, root); err != nil {
		return s.fail(err)
	}
	s.setStatus(LevelInfo, "Created file %s:%s", root, n.Path)
	return nil
}

func (s *Session) CreateDirectory(ctx context.Context, root, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.fs.CreateDirectory(ctx, root, path)
	if err != nil {
		return s.fail(err)
	}
	if err := s.reload(ctx, root); err != nil {
		return s.fail(err)
	}
	s.setStatus(LevelInfo, "Created directory %s:%s", root, n.Path)
	return nil
}

// within reports whether path is target or below it
func within(path, target string) bool {
	return path == target || strings.HasPrefix(path, target+"/")
}

// Delete removes the entry at path. An open file at or below it is closed.
func (s *Session) Delete(ctx context.Context, root, path string, kind opfs.Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.fs.DeleteEntry(ctx, root, path, kind); err != nil {
		return s.fail(err)
	}
	clean, _ := filesystem.CleanPath(path)
	if s.editor.State != EditorClosed && s.editor.Root == root && within(s.editor.Path, clean) {
		s.editor = Editor{}
	}
	if err := s.reload(ctx, root); err != nil {
		return s.fail(err)
	}
	s.setStatus(LevelInfo, "Deleted %s %s:%s", kind, root, clean)
	return nil
}

func (s *Session) CreateBucket(ctx context.Context, name string, opts opfs.RootOptions) (opfs.RootDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.registry.CreateRoot(ctx, name, opts)
	if err != nil {
		return opfs.RootDescriptor{}, s.fail(err)
	}
	if err := s.reload(ctx, name); err != nil {
		return d, s.fail(err)
	}
	s.setStatus(LevelInfo, "Created bucket %s", name)
	return d, nil
}

func (s *Session) DeleteBucket(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registry.DeleteRoot(ctx, name); err != nil {
		return s.fail(err)
	}
	s.dropTree(name)
	if s.editor.Root == name {
		s.editor = Editor{}
	}
	s.setStatus(LevelInfo, "Deleted bucket %s", name)
	return nil
}

func (s *Session) noLocal() error {
	return s.fail(fmt.Errorf("local directory support: %w", opfs.ErrNotFound))
}

// GrantLocal asks picker for the local directory and shows it
func (s *Session) GrantLocal(ctx context.Context, picker localdir.Picker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.local == nil {
		return s.noLocal()
	}
	if _, err := s.local.Grant(ctx, picker); err != nil {
		return s.fail(err)
	}
	if err := s.reload(ctx, opfs.LocalRoot); err != nil {
		return s.fail(err)
	}
	s.setStatus(LevelInfo, "Local directory granted")
	return nil
}

// RestoreLocal reopens a previously granted local directory. Having none is
// not a failure.
func (s *Session) RestoreLocal(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.local == nil {
		return s.noLocal()
	}
	if _, err := s.local.Restore(ctx); err != nil {
		if errors.Is(err, opfs.ErrNotFound) {
			s.setStatus(LevelInfo, "No local directory granted")
			return nil
		}
		s.dropTree(opfs.LocalRoot)
		return s.fail(err)
	}
	if err := s.reload(ctx, opfs.LocalRoot); err != nil {
		return s.fail(err)
	}
	s.setStatus(LevelInfo, "Local directory restored")
	return nil
}

func (s *Session) ForgetLocal(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.local == nil {
		return s.noLocal()
	}
	if err := s.local.Forget(ctx); err != nil {
		return s.fail(err)
	}
	s.dropTree(opfs.LocalRoot)
	if s.editor.Root == opfs.LocalRoot {
		s.editor = Editor{}
	}
	s.setStatus(LevelInfo, "Local directory forgotten")
	return nil
}
