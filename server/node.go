package server

import (
	"context"
	"os"
	"sync"
	"syscall"
	"time"

	gofs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/filesystem"
	"github.com/sashapodgoreanu/opfs-poc/internal/util"
)

const (
	dirMode  = syscall.S_IFDIR | 0o755
	fileMode = syscall.S_IFREG | 0o644
)

// mount is shared by every node of one mounted root
type mount struct {
	fsys    *filesystem.FileSystem
	root    string
	mounted time.Time
}

// node is one entry of the mounted root, addressed by its logical path.
// Every call re-resolves the path; no storage handles are cached.
type node struct {
	gofs.Inode
	m    *mount
	path string
}

var (
	_ gofs.NodeLookuper  = (*node)(nil)
	_ gofs.NodeReaddirer = (*node)(nil)
	_ gofs.NodeGetattrer = (*node)(nil)
	_ gofs.NodeSetattrer = (*node)(nil)
	_ gofs.NodeOpener    = (*node)(nil)
	_ gofs.NodeMkdirer   = (*node)(nil)
	_ gofs.NodeCreater   = (*node)(nil)
	_ gofs.NodeUnlinker  = (*node)(nil)
	_ gofs.NodeRmdirer   = (*node)(nil)
)

func (m *mount) fillAttr(n opfs.Node, out *fuse.Attr) {
	if n.IsContainer() {
		out.Mode = dirMode
		out.Nlink = 2
	} else {
		out.Mode = fileMode
		out.Nlink = 1
		out.Size = uint64(n.Size)
		out.Blocks = (out.Size + 511) / 512
	}
	out.Owner = fuse.Owner{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}
	out.SetTimes(nil, &m.mounted, &m.mounted)
}

func (n *node) child(ctx context.Context, nd opfs.Node, out *fuse.EntryOut) *gofs.Inode {
	n.m.fillAttr(nd, &out.Attr)
	mode := uint32(fileMode)
	if nd.IsContainer() {
		mode = dirMode
	}
	return n.NewInode(ctx, &node{m: n.m, path: nd.Path}, gofs.StableAttr{Mode: mode})
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	nd, err := n.m.fsys.Stat(ctx, n.m.root, opfs.JoinPath(n.path, name))
	if err != nil {
		return nil, toErrno(err)
	}
	return n.child(ctx, nd, out), 0
}

func (n *node) Readdir(ctx context.Context) (gofs.DirStream, syscall.Errno) {
	nodes, err := n.m.fsys.List(ctx, n.m.root, n.path)
	if err != nil {
		return nil, toErrno(err)
	}
	entries := make([]fuse.DirEntry, 0, len(nodes))
	for _, nd := range nodes {
		mode := uint32(fileMode)
		if nd.IsContainer() {
			mode = dirMode
		}
		entries = append(entries, fuse.DirEntry{Name: nd.Name, Mode: mode})
	}
	return gofs.NewListDirStream(entries), 0
}

func (n *node) Getattr(ctx context.Context, f gofs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	if h, ok := f.(*handle); ok {
		return h.Getattr(ctx, out)
	}
	nd, err := n.m.fsys.Stat(ctx, n.m.root, n.path)
	if err != nil {
		return toErrno(err)
	}
	n.m.fillAttr(nd, &out.Attr)
	return 0
}

// Setattr supports truncation only; modes, owners and times are fixed
func (n *node) Setattr(ctx context.Context, f gofs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if size, ok := in.GetSize(); ok {
		h, open := f.(*handle)
		if !open {
			var errno syscall.Errno
			if h, errno = n.open(ctx, false); errno != 0 {
				return errno
			}
		}
		h.truncate(size)
		if !open {
			if errno := h.Flush(ctx); errno != 0 {
				return errno
			}
		}
	}
	return n.Getattr(ctx, f, out)
}

func (n *node) open(ctx context.Context, truncate bool) (*handle, syscall.Errno) {
	h := &handle{m: n.m, path: n.path}
	if truncate {
		h.dirty = true
		return h, 0
	}
	content, err := n.m.fsys.ReadFile(ctx, n.m.root, n.path)
	if err != nil {
		return nil, fileErrno(err)
	}
	h.data = []byte(content)
	return h, 0
}

func (n *node) Open(ctx context.Context, flags uint32) (gofs.FileHandle, uint32, syscall.Errno) {
	h, errno := n.open(ctx, flags&syscall.O_TRUNC != 0)
	if errno != 0 {
		return nil, 0, errno
	}
	return h, fuse.FOPEN_DIRECT_IO, 0
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofs.Inode, syscall.Errno) {
	path := opfs.JoinPath(n.path, name)
	if _, err := n.m.fsys.Stat(ctx, n.m.root, path); err == nil {
		return nil, syscall.EEXIST
	}
	nd, err := n.m.fsys.CreateDirectory(ctx, n.m.root, path)
	if err != nil {
		return nil, toErrno(err)
	}
	return n.child(ctx, nd, out), 0
}

func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofs.Inode, gofs.FileHandle, uint32, syscall.Errno) {
	nd, err := n.m.fsys.CreateFile(ctx, n.m.root, opfs.JoinPath(n.path, name))
	if err != nil {
		return nil, nil, 0, fileErrno(err)
	}
	inode := n.child(ctx, nd, out)
	h, errno := inode.Operations().(*node).open(ctx, flags&syscall.O_TRUNC != 0)
	if errno != 0 {
		return nil, nil, 0, errno
	}
	return inode, h, fuse.FOPEN_DIRECT_IO, 0
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	err := n.m.fsys.DeleteEntry(ctx, n.m.root, opfs.JoinPath(n.path, name), opfs.KindFile)
	return fileErrno(err)
}

// Rmdir removes empty directories only
func (n *node) Rmdir(ctx context.Context, name string) syscall.Errno {
	path := opfs.JoinPath(n.path, name)
	children, err := n.m.fsys.List(ctx, n.m.root, path)
	if err != nil {
		return toErrno(err)
	}
	if len(children) > 0 {
		return syscall.ENOTEMPTY
	}
	return toErrno(n.m.fsys.DeleteEntry(ctx, n.m.root, path, opfs.KindDirectory))
}

// handle buffers the whole file. Writes are committed with one WriteFile on
// flush, so readers never see a partial write.
type handle struct {
	m    *mount
	path string

	mu    sync.Mutex
	data  []byte
	dirty bool
}

var (
	_ gofs.FileReader    = (*handle)(nil)
	_ gofs.FileWriter    = (*handle)(nil)
	_ gofs.FileFlusher   = (*handle)(nil)
	_ gofs.FileFsyncer   = (*handle)(nil)
	_ gofs.FileReleaser  = (*handle)(nil)
	_ gofs.FileGetattrer = (*handle)(nil)
)

func (h *handle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if off >= int64(len(h.data)) {
		return fuse.ReadResultData(nil), 0
	}
	end := min(off+int64(len(dest)), int64(len(h.data)))
	return fuse.ReadResultData(h.data[off:end]), 0
}

func (h *handle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if end := off + int64(len(data)); end > int64(len(h.data)) {
		h.data = append(h.data, make([]byte, end-int64(len(h.data)))...)
	}
	copy(h.data[off:], data)
	h.dirty = true
	return uint32(len(data)), 0
}

func (h *handle) truncate(size uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if size <= uint64(len(h.data)) {
		h.data = h.data[:size]
	} else {
		h.data = append(h.data, make([]byte, size-uint64(len(h.data)))...)
	}
	h.dirty = true
}

func (h *handle) Flush(ctx context.Context) syscall.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.dirty {
		return 0
	}
	if err := h.m.fsys.WriteFile(ctx, h.m.root, h.path, string(h.data)); err != nil {
		return fileErrno(err)
	}
	h.dirty = false
	return 0
}

func (h *handle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return h.Flush(ctx)
}

func (h *handle) Release(ctx context.Context) syscall.Errno {
	if errno := h.Flush(ctx); errno != 0 {
		logger := util.GetLogger("Fuse.Release")
		logger.Warn().Str("root", h.m.root).Str("path", h.path).Str("errno", errno.Error()).Msg("Dropped unflushed writes")
		return errno
	}
	return 0
}

func (h *handle) Getattr(ctx context.Context, out *fuse.AttrOut) syscall.Errno {
	h.mu.Lock()
	size := int64(len(h.data))
	h.mu.Unlock()
	h.m.fillAttr(opfs.Node{Kind: opfs.KindFile, Size: size}, &out.Attr)
	return 0
}
