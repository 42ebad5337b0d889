package filesystem

import (
	"context"
	"fmt"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/internal/util"
)

// ResolveOptions control the creation side effects of [Resolve]
type ResolveOptions struct {
	// CreateIntermediate creates missing directories along the path
	CreateIntermediate bool
	// CreateFinal creates the final entry if it is absent
	CreateFinal bool
	// FinalKind is the expected kind of the final entry: KindFile or KindDirectory
	FinalKind opfs.Kind
}

// Resolve walks path from dir and returns the handle of the final entry.
//
// Intermediate segments are resolved in order as directories. The final
// segment is resolved as opts.FinalKind. A missing entry that is not created
// is [opfs.ErrNotFound]; an entry of the other kind is [opfs.ErrTypeMismatch].
// Entries created before a failure are left in place.
func Resolve(ctx context.Context, dir opfs.DirectoryHandle, path string, opts ResolveOptions) (opfs.Handle, error) {
	logger := util.GetLogger("Resolve")

	dirs, final, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	if final == "" {
		if opts.FinalKind == opfs.KindFile {
			return nil, fmt.Errorf("root is a directory: %w", opfs.ErrTypeMismatch)
		}
		return dir, nil
	}

	cur := dir
	for i, name := range dirs {
		next, err := cur.GetDirectoryHandle(ctx, name, opts.CreateIntermediate)
		if err != nil {
			logger.Trace().Err(err).Str("path", path).Int("segment", i).Msg("Intermediate lookup failed")
			return nil, err
		}
		cur = next
	}

	switch opts.FinalKind {
	case opfs.KindFile:
		return cur.GetFileHandle(ctx, final, opts.CreateFinal)
	case opfs.KindDirectory:
		return cur.GetDirectoryHandle(ctx, final, opts.CreateFinal)
	default:
		return nil, fmt.Errorf("cannot resolve %q as %q", path, opts.FinalKind)
	}
}

// ResolveDirectory resolves path as a directory. The empty path returns dir.
func ResolveDirectory(ctx context.Context, dir opfs.DirectoryHandle, path string, create bool) (opfs.DirectoryHandle, error) {
	h, err := Resolve(ctx, dir, path, ResolveOptions{
		CreateIntermediate: create,
		CreateFinal:        create,
		FinalKind:          opfs.KindDirectory,
	})
	if err != nil {
		return nil, err
	}
	return h.(opfs.DirectoryHandle), nil
}

// ResolveFile resolves path as a file. With create, missing directories and
// the file itself are created.
func ResolveFile(ctx context.Context, dir opfs.DirectoryHandle, path string, create bool) (opfs.FileHandle, error) {
	h, err := Resolve(ctx, dir, path, ResolveOptions{
		CreateIntermediate: create,
		CreateFinal:        create,
		FinalKind:          opfs.KindFile,
	})
	if err != nil {
		return nil, err
	}
	return h.(opfs.FileHandle), nil
}

// Lookup resolves path without creating anything and without knowing its kind
func Lookup(ctx context.Context, dir opfs.DirectoryHandle, path string) (opfs.Handle, error) {
	dirs, final, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	if final == "" {
		return dir, nil
	}
	parent := dir
	for _, name := range dirs {
		if parent, err = parent.GetDirectoryHandle(ctx, name, false); err != nil {
			return nil, err
		}
	}
	h, err := parent.GetFileHandle(ctx, final, false)
	if err == nil {
		return h, nil
	}
	if !isMismatch(err) {
		return nil, err
	}
	return parent.GetDirectoryHandle(ctx, final, false)
}
