package s3fs

import (
	"bytes"
	"context"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory bucket. Listing pages hold at most pageSize items.
type fakeClient struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
	deletes  int
}

func newFakeClient(pageSize int) *fakeClient {
	return &fakeClient{objects: map[string][]byte{}, pageSize: pageSize}
}

func (c *fakeClient) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.objects))
	for k := range c.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *fakeClient) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	delim := aws.ToString(in.Delimiter)
	token := aws.ToString(in.ContinuationToken)
	limit := c.pageSize
	if in.MaxKeys != nil && int(*in.MaxKeys) < limit {
		limit = int(*in.MaxKeys)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	seen := map[string]bool{}
	count := 0
	for _, k := range c.keys() {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if cp, ok := strings.CutPrefix(token, "cp:"); ok && (k <= cp || strings.HasPrefix(k, cp)) {
			continue
		}
		if last, ok := strings.CutPrefix(token, "k:"); ok && k <= last {
			continue
		}
		if count == limit {
			out.IsTruncated = aws.Bool(true)
			break
		}
		rest := strings.TrimPrefix(k, prefix)
		if i := strings.Index(rest, delim); delim != "" && i >= 0 {
			cp := prefix + rest[:i+1]
			if !seen[cp] {
				seen[cp] = true
				out.CommonPrefixes = append(out.CommonPrefixes, types.CommonPrefix{Prefix: aws.String(cp)})
				out.NextContinuationToken = aws.String("cp:" + cp)
				count++
			}
			continue
		}
		c.mu.Lock()
		size := int64(len(c.objects[k]))
		c.mu.Unlock()
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(size)})
		out.NextContinuationToken = aws.String("k:" + k)
		count++
	}
	return out, nil
}

func (c *fakeClient) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func (c *fakeClient) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (c *fakeClient) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (c *fakeClient) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (c *fakeClient) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	for _, id := range in.Delete.Objects {
		delete(c.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func newTestRoot(t *testing.T, pageSize int) (*fakeClient, *Backend, opfs.DirectoryHandle) {
	t.Helper()
	c := newFakeClient(pageSize)
	b := New(c, "bucket", "/opfs/")
	root, err := b.Root(context.Background(), "root", opfs.OpenOptions{Create: true})
	require.NoError(t, err)
	return c, b, root
}

func listNames(t *testing.T, dir opfs.DirectoryHandle) []string {
	t.Helper()
	var out []string
	for h, err := range dir.Entries(context.Background()) {
		require.NoError(t, err)
		out = append(out, string(h.Kind())+":"+h.Name())
	}
	slices.Sort(out)
	return out
}

func TestBackend_RootMarker(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newFakeClient(1000)
	b := New(c, "bucket", "opfs")

	_, err := b.Root(ctx, "b1", opfs.OpenOptions{})
	require.ErrorIs(t, err, opfs.ErrNotFound)

	_, err = b.Root(ctx, "b1", opfs.OpenOptions{Create: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"opfs/b1/"}, c.keys())

	require.NoError(t, b.RemoveRoot(ctx, "b1"))
	assert.Empty(t, c.keys())
}

func TestDir_Layout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, root := newTestRoot(t, 1000)

	a, err := root.GetDirectoryHandle(ctx, "a", true)
	require.NoError(t, err)
	f, err := a.GetFileHandle(ctx, "f.txt", true)
	require.NoError(t, err)

	w, err := f.CreateWritable(ctx)
	require.NoError(t, err)
	_, err = io.WriteString(w, "hello")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, []string{"opfs/root/", "opfs/root/a/", "opfs/root/a/f.txt"}, c.keys())

	text, err := f.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
	size, err := f.Size(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 5, size)
}

func TestDir_KindMismatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, _, root := newTestRoot(t, 1000)

	_, err := root.GetDirectoryHandle(ctx, "d", true)
	require.NoError(t, err)
	_, err = root.GetFileHandle(ctx, "f", true)
	require.NoError(t, err)

	_, err = root.GetFileHandle(ctx, "d", true)
	assert.ErrorIs(t, err, opfs.ErrTypeMismatch)
	_, err = root.GetDirectoryHandle(ctx, "f", true)
	assert.ErrorIs(t, err, opfs.ErrTypeMismatch)
	_, err = root.GetFileHandle(ctx, "missing", false)
	assert.ErrorIs(t, err, opfs.ErrNotFound)
}

func TestDir_EntriesPaginates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, _, root := newTestRoot(t, 2)

	for _, name := range []string{"d1", "d2"} {
		d, err := root.GetDirectoryHandle(ctx, name, true)
		require.NoError(t, err)
		_, err = d.GetFileHandle(ctx, "nested", true)
		require.NoError(t, err)
	}
	for _, name := range []string{"f1", "f2", "f3"} {
		_, err := root.GetFileHandle(ctx, name, true)
		require.NoError(t, err)
	}

	assert.Equal(t, []string{
		"directory:d1", "directory:d2",
		"file:f1", "file:f2", "file:f3",
	}, listNames(t, root))
}

func TestDir_EntriesSkipsUnaddressableKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, root := newTestRoot(t, 1000)

	c.objects["opfs/root/ok"] = nil
	c.objects["opfs/root/ spaced"] = nil
	c.objects[`opfs/root/a\b`] = nil
	c.objects["opfs/root/.."] = nil
	c.objects["opfs/root//orphan"] = nil

	assert.Equal(t, []string{"file: spaced", "file:ok"}, listNames(t, root))
	_, err := root.GetFileHandle(ctx, " spaced", false)
	assert.NoError(t, err)
}

func TestDir_RemoveEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _, root := newTestRoot(t, 1000)

	a, err := root.GetDirectoryHandle(ctx, "a", true)
	require.NoError(t, err)
	_, err = a.GetFileHandle(ctx, "f", true)
	require.NoError(t, err)
	_, err = root.GetDirectoryHandle(ctx, "empty", true)
	require.NoError(t, err)

	assert.ErrorIs(t, root.RemoveEntry(ctx, "a", false), opfs.ErrNotEmpty)
	require.NoError(t, root.RemoveEntry(ctx, "empty", false))
	require.NoError(t, root.RemoveEntry(ctx, "a", true))
	assert.ErrorIs(t, root.RemoveEntry(ctx, "a", true), opfs.ErrNotFound)
	assert.Equal(t, []string{"opfs/root/"}, c.keys())
}

func TestWritable_AbortSkipsUpload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, _, root := newTestRoot(t, 1000)

	f, err := root.GetFileHandle(ctx, "f", true)
	require.NoError(t, err)
	w, err := f.CreateWritable(ctx)
	require.NoError(t, err)
	_, _ = io.WriteString(w, "discarded")
	require.NoError(t, w.Abort())

	text, err := f.Text(ctx)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestIsNotFound(t *testing.T) {
	t.Parallel()

	assert.False(t, isNotFound(nil))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.False(t, isNotFound(io.EOF))
}
