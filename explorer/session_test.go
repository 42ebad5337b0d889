package explorer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/adapters/memfs"
	"github.com/sashapodgoreanu/opfs-poc/internal/catalog"
	"github.com/sashapodgoreanu/opfs-poc/localdir"
	"github.com/sashapodgoreanu/opfs-poc/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newSession(t *testing.T) *Session {
	t.Helper()
	c, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	reg := registry.New(memfs.New(), c)
	local := localdir.New(c, opfs.DurabilityRelaxed)
	return NewSession(reg, local, WithClock(func() time.Time { return fixedNow }))
}

func treeNames(s *Session) []string {
	var names []string
	for _, n := range s.Trees() {
		names = append(names, n.Name)
	}
	return names
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newSession(t)

	require.NoError(t, s.Refresh(ctx))
	assert.Equal(t, []string{"root"}, treeNames(s))
	assert.Equal(t, Status{Level: LevelInfo, Message: "Loaded 1 roots", At: fixedNow}, s.Status())

	_, err := s.CreateBucket(ctx, "zeta", opfs.RootOptions{})
	require.NoError(t, err)
	_, err = s.CreateBucket(ctx, "alpha", opfs.RootOptions{Quota: 1024})
	require.NoError(t, err)
	require.NoError(t, s.GrantLocal(ctx, localdir.PathPicker(t.TempDir())))
	assert.Equal(t, []string{"root", "alpha", "zeta", "local"}, treeNames(s))

	require.NoError(t, s.Refresh(ctx))
	assert.Equal(t, []string{"root", "alpha", "zeta", "local"}, treeNames(s))
	assert.Equal(t, "Loaded 4 roots", s.Status().Message)
}

func TestMutationsReplaceRootTree(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newSession(t)
	require.NoError(t, s.Refresh(ctx))

	before := s.Trees()
	require.NoError(t, s.CreateFile(ctx, "root", "a/b/c"))
	assert.Empty(t, before[0].Children, "earlier snapshot is not patched")

	trees := s.Trees()
	_, ok := opfs.Find(trees[0].Children, "a/b/c")
	assert.True(t, ok)
	assert.Equal(t, "Created file root:a/b/c", s.Status().Message)

	require.NoError(t, s.CreateDirectory(ctx, "root", "a/d"))
	_, ok = opfs.Find(s.Trees()[0].Children, "a/d")
	assert.True(t, ok)

	require.NoError(t, s.Delete(ctx, "root", "a", opfs.KindDirectory))
	assert.Empty(t, s.Trees()[0].Children)
	assert.Equal(t, "Deleted directory root:a", s.Status().Message)
}

func TestFailuresGoToStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newSession(t)

	require.NoError(t, s.CreateDirectory(ctx, "root", "a"))
	err := s.CreateFile(ctx, "root", "a")
	require.ErrorIs(t, err, opfs.ErrTypeMismatch)

	st := s.Status()
	assert.Equal(t, LevelError, st.Level)
	assert.Equal(t, "Cannot create file root:a: a file was expected but a directory is there, or the other way round", st.Message)

	require.NoError(t, s.CreateFile(ctx, "root", "ok"))
	assert.Equal(t, LevelInfo, s.Status().Level, "success replaces the previous error")

	err = s.Delete(ctx, "missing", "x", opfs.KindFile)
	require.ErrorIs(t, err, opfs.ErrNotFound)
	assert.Contains(t, s.Status().Message, "missing:x")
}

func TestDeleteBucket(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newSession(t)

	_, err := s.CreateBucket(ctx, "cache1", opfs.RootOptions{Quota: 1024, Expires: fixedNow.Add(time.Minute)})
	require.NoError(t, err)
	require.NoError(t, s.FileSystem().WriteFile(ctx, "cache1", "f", "data"))
	require.NoError(t, s.Open(ctx, "cache1", "f"))

	require.NoError(t, s.DeleteBucket(ctx, "cache1"))
	assert.NotContains(t, treeNames(s), "cache1")
	assert.Equal(t, EditorClosed, s.Editor().State)

	err = s.DeleteBucket(ctx, "root")
	require.ErrorIs(t, err, opfs.ErrPermission)
	assert.Equal(t, LevelError, s.Status().Level)
}

func TestEditor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newSession(t)
	fs := s.FileSystem()
	require.NoError(t, fs.WriteFile(ctx, "root", "notes/a.txt", "alpha"))
	require.NoError(t, fs.WriteFile(ctx, "root", "notes/b.txt", "beta"))

	assert.ErrorIs(t, s.Edit("x"), opfs.ErrNotFound, "nothing open")
	assert.ErrorIs(t, s.Save(ctx), opfs.ErrNotFound)

	require.NoError(t, s.Open(ctx, "root", "/notes/a.txt"))
	assert.Equal(t, Editor{State: EditorOpen, Root: "root", Path: "notes/a.txt", Content: "alpha"}, s.Editor())

	require.NoError(t, s.Edit("alpha2"))
	assert.Equal(t, EditorDirty, s.Editor().State)
	assert.Equal(t, "alpha2", s.Editor().Text())

	require.NoError(t, s.Edit("alpha"))
	assert.Equal(t, EditorOpen, s.Editor().State, "back to persisted content")

	require.NoError(t, s.Edit("alpha2"))
	require.NoError(t, s.Save(ctx))
	assert.Equal(t, Editor{State: EditorOpen, Root: "root", Path: "notes/a.txt", Content: "alpha2"}, s.Editor())
	got, err := fs.ReadFile(ctx, "root", "notes/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "alpha2", got)

	n, ok := opfs.Find(s.Trees()[0].Children, "notes/a.txt")
	require.True(t, ok)
	assert.Equal(t, int64(6), n.Size)

	require.NoError(t, s.Save(ctx))
	assert.Equal(t, "Nothing to save", s.Status().Message)

	t.Run("open while dirty warns", func(t *testing.T) {
		require.NoError(t, s.Edit("unsaved"))
		require.NoError(t, s.Open(ctx, "root", "notes/b.txt"))
		assert.Equal(t, Status{Level: LevelWarn, Message: "Discarded unsaved edits to root:notes/a.txt", At: fixedNow}, s.Status())
		assert.Equal(t, "beta", s.Editor().Content)
	})

	t.Run("close", func(t *testing.T) {
		s.Close()
		assert.Equal(t, Editor{}, s.Editor())
		assert.Equal(t, LevelInfo, s.Status().Level)
	})
}

func TestEditor_ReopenKeepsEdits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newSession(t)
	fs := s.FileSystem()
	require.NoError(t, fs.WriteFile(ctx, "root", "doc", "v1"))

	require.NoError(t, s.Open(ctx, "root", "doc"))
	require.NoError(t, s.Edit("mine"))
	require.NoError(t, fs.WriteFile(ctx, "root", "doc", "theirs"))

	require.NoError(t, s.Open(ctx, "root", "/doc"))
	assert.Equal(t, Editor{State: EditorDirty, Root: "root", Path: "doc", Content: "theirs", Edited: "mine"}, s.Editor())
	assert.Equal(t, Status{Level: LevelInfo, Message: "Kept unsaved edits to root:doc", At: fixedNow}, s.Status())

	require.NoError(t, s.Save(ctx))
	got, err := fs.ReadFile(ctx, "root", "doc")
	require.NoError(t, err)
	assert.Equal(t, "mine", got)

	t.Run("edits matching the file on disk are clean", func(t *testing.T) {
		require.NoError(t, s.Edit("next"))
		require.NoError(t, fs.WriteFile(ctx, "root", "doc", "next"))
		require.NoError(t, s.Open(ctx, "root", "doc"))
		assert.Equal(t, Editor{State: EditorOpen, Root: "root", Path: "doc", Content: "next"}, s.Editor())
		assert.Equal(t, "Opened root:doc", s.Status().Message)
	})
}

func TestEditor_SaveAfterExternalDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newSession(t)
	fs := s.FileSystem()
	require.NoError(t, fs.WriteFile(ctx, "root", "doc", "v1"))

	require.NoError(t, s.Open(ctx, "root", "doc"))
	require.NoError(t, s.Edit("v2"))
	require.NoError(t, fs.DeleteEntry(ctx, "root", "doc", opfs.KindFile))

	err := s.Save(ctx)
	require.ErrorIs(t, err, opfs.ErrNotFound)
	assert.Equal(t, EditorDirty, s.Editor().State, "edits are kept")
	assert.Equal(t, "v2", s.Editor().Text())

	_, err = fs.Stat(ctx, "root", "doc")
	assert.ErrorIs(t, err, opfs.ErrNotFound, "file is not recreated")
}

func TestEditor_DeleteClosesOpenFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newSession(t)
	require.NoError(t, s.FileSystem().WriteFile(ctx, "root", "d/f", "x"))
	require.NoError(t, s.FileSystem().WriteFile(ctx, "root", "dd", "y"))

	require.NoError(t, s.Open(ctx, "root", "dd"))
	require.NoError(t, s.Delete(ctx, "root", "d", opfs.KindDirectory))
	assert.Equal(t, EditorOpen, s.Editor().State, "sibling with shared prefix stays open")

	require.NoError(t, s.Open(ctx, "root", "dd"))
	require.NoError(t, s.Delete(ctx, "root", "dd", opfs.KindFile))
	assert.Equal(t, EditorClosed, s.Editor().State)
}

func TestLocal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newSession(t)

	require.NoError(t, s.RestoreLocal(ctx))
	assert.Equal(t, "No local directory granted", s.Status().Message)

	err := s.GrantLocal(ctx, localdir.PathPicker(""))
	require.ErrorIs(t, err, opfs.ErrPermission)
	assert.Equal(t, "Failed: no directory picked: permission denied", s.Status().Message)

	dir := t.TempDir()
	require.NoError(t, s.GrantLocal(ctx, localdir.PathPicker(dir)))
	require.NoError(t, s.CreateFile(ctx, opfs.LocalRoot, "hello.txt"))
	assert.FileExists(t, filepath.Join(dir, "hello.txt"))
	require.NoError(t, s.RestoreLocal(ctx))

	require.NoError(t, s.ForgetLocal(ctx))
	assert.NotContains(t, treeNames(s), "local")
	err = s.CreateFile(ctx, opfs.LocalRoot, "again.txt")
	assert.ErrorIs(t, err, opfs.ErrNotFound)
}

func TestNoLocalSupport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, err := catalog.Open(":memory:")
	require.NoError(t, err)
	defer c.Close()
	s := NewSession(registry.New(memfs.New(), c), nil)

	assert.ErrorIs(t, s.GrantLocal(ctx, localdir.PathPicker(t.TempDir())), opfs.ErrNotFound)
	assert.ErrorIs(t, s.RestoreLocal(ctx), opfs.ErrNotFound)
	assert.ErrorIs(t, s.CreateFile(ctx, opfs.LocalRoot, "x"), opfs.ErrNotFound)
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"path error", opfs.WrapPath("readFile", "b1", "x/y", opfs.ErrNotFound), "Cannot read b1:x/y: it does not exist"},
		{"root only", opfs.WrapPath("buildTree", "local", "", opfs.ErrPermission), "Cannot load local: access to the local directory was declined or revoked; grant it again"},
		{"unknown op", opfs.WrapPath("rename", "root", "a", opfs.ErrInvalidName), "Cannot rename root:a: the name is not valid"},
		{"quota", opfs.WrapPath("writeFile", "b1", "f", fmt.Errorf("commit: %w", opfs.ErrQuotaExceeded)), "Cannot write b1:f: the bucket quota would be exceeded"},
		{"exists", opfs.WrapPath("createFile", "root", "f", opfs.ErrAlreadyExists), "Cannot create file root:f: the name is already taken"},
		{"not empty", opfs.WrapPath("deleteEntry", "root", "d", opfs.ErrNotEmpty), "Cannot delete root:d: the directory is not empty"},
		{"cancelled", opfs.WrapPath("buildTree", "root", "", context.Canceled), "Cannot load root: the operation was interrupted"},
		{"other path error", opfs.WrapPath("stat", "root", "x", errors.New("disk on fire")), "Cannot stat root:x: disk on fire"},
		{"plain error", fmt.Errorf("bucket %q is reserved: %w", "root", opfs.ErrAlreadyExists), `Failed: bucket "root" is reserved: already exists`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.err))
		})
	}
}
