package registry

import (
	"context"
	"fmt"
	"iter"
	"sync"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/filesystem"
	"github.com/sashapodgoreanu/opfs-poc/internal/util"
)

// quota is the commit check shared by every handle of one opened bucket
type quota struct {
	root  opfs.DirectoryHandle
	name  string
	limit int64
	mu    *sync.Mutex
}

// usage sums the committed file sizes of the bucket except the file at exclude
func (q *quota) usage(ctx context.Context, exclude string) (int64, error) {
	nodes, err := filesystem.BuildTree(ctx, q.root, "", q.name)
	if err != nil {
		return 0, err
	}
	var total int64
	opfs.Walk(nodes, func(n opfs.Node) bool {
		if n.Kind == opfs.KindFile && n.Path != exclude {
			total += n.Size
		}
		return true
	})
	return total, nil
}

// quotaDir wraps the handles it hands out so their streams are checked
type quotaDir struct {
	opfs.DirectoryHandle
	q    *quota
	path string
}

func (d *quotaDir) wrap(h opfs.Handle) opfs.Handle {
	p := opfs.JoinPath(d.path, h.Name())
	switch h := h.(type) {
	case opfs.DirectoryHandle:
		return &quotaDir{DirectoryHandle: h, q: d.q, path: p}
	case opfs.FileHandle:
		return &quotaFile{FileHandle: h, q: d.q, path: p}
	}
	return h
}

func (d *quotaDir) GetDirectoryHandle(ctx context.Context, name string, create bool) (opfs.DirectoryHandle, error) {
	h, err := d.DirectoryHandle.GetDirectoryHandle(ctx, name, create)
	if err != nil {
		return nil, err
	}
	return d.wrap(h).(opfs.DirectoryHandle), nil
}

func (d *quotaDir) GetFileHandle(ctx context.Context, name string, create bool) (opfs.FileHandle, error) {
	h, err := d.DirectoryHandle.GetFileHandle(ctx, name, create)
	if err != nil {
		return nil, err
	}
	return d.wrap(h).(opfs.FileHandle), nil
}

func (d *quotaDir) Entries(ctx context.Context) iter.Seq2[opfs.Handle, error] {
	return func(yield func(opfs.Handle, error) bool) {
		for h, err := range d.DirectoryHandle.Entries(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(d.wrap(h), nil) {
				return
			}
		}
	}
}

type quotaFile struct {
	opfs.FileHandle
	q    *quota
	path string
}

func (f *quotaFile) CreateWritable(ctx context.Context) (opfs.WritableStream, error) {
	w, err := f.FileHandle.CreateWritable(ctx)
	if err != nil {
		return nil, err
	}
	return &quotaWritable{WritableStream: w, ctx: ctx, file: f}, nil
}

// quotaWritable counts the buffered bytes and refuses to commit past the limit
type quotaWritable struct {
	opfs.WritableStream
	ctx  context.Context
	file *quotaFile
	n    int64
}

func (w *quotaWritable) Write(p []byte) (int, error) {
	n, err := w.WritableStream.Write(p)
	w.n += int64(n)
	return n, err
}

func (w *quotaWritable) Close() error {
	logger := util.GetLogger("Quota")
	q := w.file.q
	q.mu.Lock()
	defer q.mu.Unlock()

	used, err := q.usage(w.ctx, w.file.path)
	if err != nil {
		w.abort()
		return fmt.Errorf("measure usage of %q: %w", q.name, err)
	}
	if used+w.n > q.limit {
		logger.Debug().Str("root", q.name).Str("path", w.file.path).
			Int64("used", used).Int64("write", w.n).Int64("quota", q.limit).Msg("Commit refused")
		w.abort()
		return fmt.Errorf("%w: %d + %d bytes over %d in %q", opfs.ErrQuotaExceeded, used, w.n, q.limit, q.name)
	}
	return w.WritableStream.Close()
}

func (w *quotaWritable) abort() {
	if err := w.WritableStream.Abort(); err != nil {
		util.GetLogger("Quota").Warn().Err(err).Str("root", w.file.q.name).Str("path", w.file.path).Msg("Abort of refused commit failed")
	}
}
