package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "nested", "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestBuckets_CRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newCatalog(t)

	created := time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)
	cache := opfs.RootDescriptor{
		ID:         "id-1",
		Name:       "cache1",
		Quota:      1024,
		Expires:    created.Add(time.Minute),
		Durability: opfs.DurabilityStrict,
		CreatedAt:  created,
	}
	require.NoError(t, c.InsertBucket(ctx, cache))
	require.NoError(t, c.InsertBucket(ctx, opfs.RootDescriptor{
		ID: "id-2", Name: "archive", Durability: opfs.DurabilityRelaxed, CreatedAt: created,
	}))

	got, err := c.GetBucket(ctx, "cache1")
	require.NoError(t, err)
	assert.Equal(t, cache, got)

	list, err := c.ListBuckets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "archive", list[0].Name, "ordered by name")
	assert.True(t, list[0].Expires.IsZero(), "no expiry round-trips as zero time")

	err = c.InsertBucket(ctx, opfs.RootDescriptor{ID: "id-3", Name: "cache1", CreatedAt: created})
	assert.ErrorIs(t, err, opfs.ErrAlreadyExists)

	require.NoError(t, c.DeleteBucket(ctx, "cache1"))
	_, err = c.GetBucket(ctx, "cache1")
	assert.ErrorIs(t, err, opfs.ErrNotFound)
	assert.ErrorIs(t, c.DeleteBucket(ctx, "cache1"), opfs.ErrNotFound)
}

func TestExpiredBuckets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newCatalog(t)
	now := time.Now()

	for _, d := range []opfs.RootDescriptor{
		{ID: "1", Name: "past", Expires: now.Add(-time.Second), CreatedAt: now},
		{ID: "2", Name: "exact", Expires: now, CreatedAt: now},
		{ID: "3", Name: "future", Expires: now.Add(time.Hour), CreatedAt: now},
		{ID: "4", Name: "never", CreatedAt: now},
	} {
		require.NoError(t, c.InsertBucket(ctx, d))
	}

	expired, err := c.ExpiredBuckets(ctx, now)
	require.NoError(t, err)
	var names []string
	for _, d := range expired {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"exact", "past"}, names)
}

func TestHandles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := newCatalog(t)

	_, _, err := c.LoadHandle(ctx, "local-directory")
	require.ErrorIs(t, err, opfs.ErrNotFound)

	require.NoError(t, c.SaveHandle(ctx, "local-directory", "/home/me/notes"))
	require.NoError(t, c.SaveHandle(ctx, "local-directory", "/home/me/docs"))

	path, at, err := c.LoadHandle(ctx, "local-directory")
	require.NoError(t, err)
	assert.Equal(t, "/home/me/docs", path, "second grant replaces the first")
	assert.WithinDuration(t, time.Now(), at, time.Minute)

	require.NoError(t, c.DeleteHandle(ctx, "local-directory"))
	require.NoError(t, c.DeleteHandle(ctx, "local-directory"))
	_, _, err = c.LoadHandle(ctx, "local-directory")
	assert.ErrorIs(t, err, opfs.ErrNotFound)
}

func TestOpen_Reopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")

	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.InsertBucket(ctx, opfs.RootDescriptor{ID: "1", Name: "b1", CreatedAt: time.Now()}))
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()
	_, err = c.GetBucket(ctx, "b1")
	assert.NoError(t, err, "rows survive reopen")
}
