// Package registry implements the storage root registry: the default root
// plus named buckets with quota, expiry and durability settings. Bucket
// metadata lives in the catalog, contents in the storage backend.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/internal/metrics"
	"github.com/sashapodgoreanu/opfs-poc/internal/util"
)

var bucketName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// BucketStore persists bucket descriptors. Implemented by the catalog.
type BucketStore interface {
	InsertBucket(ctx context.Context, d opfs.RootDescriptor) error
	GetBucket(ctx context.Context, name string) (opfs.RootDescriptor, error)
	ListBuckets(ctx context.Context) ([]opfs.RootDescriptor, error)
	ExpiredBuckets(ctx context.Context, now time.Time) ([]opfs.RootDescriptor, error)
	DeleteBucket(ctx context.Context, name string) error
}

type Option func(*Registry)

// WithClock replaces time.Now, used for bucket creation times and sweeps
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithDefaultDurability sets the durability of the default root and of
// buckets created without one
func WithDefaultDurability(d opfs.Durability) Option {
	return func(r *Registry) { r.durability = d }
}

// Registry implements [opfs.Registry]
type Registry struct {
	backend    opfs.Backend
	buckets    BucketStore
	now        func() time.Time
	durability opfs.Durability

	// commits serialises quota checked commits per bucket
	commits *xsync.Map[string, *sync.Mutex]
}

func New(backend opfs.Backend, buckets BucketStore, opts ...Option) *Registry {
	r := &Registry{
		backend:    backend,
		buckets:    buckets,
		now:        time.Now,
		durability: opfs.DurabilityRelaxed,
		commits:    xsync.NewMap[string, *sync.Mutex](),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) defaultDescriptor() opfs.RootDescriptor {
	return opfs.RootDescriptor{Name: opfs.DefaultRoot, Default: true, Durability: r.durability}
}

// ListRoots returns the default root first, then every bucket by name.
// Expired buckets are listed until the sweeper reclaims them.
func (r *Registry) ListRoots(ctx context.Context) ([]opfs.RootDescriptor, error) {
	buckets, err := r.buckets.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	return append([]opfs.RootDescriptor{r.defaultDescriptor()}, buckets...), nil
}

// Describe returns the descriptor of one root
func (r *Registry) Describe(ctx context.Context, name string) (opfs.RootDescriptor, error) {
	if name == opfs.DefaultRoot {
		return r.defaultDescriptor(), nil
	}
	return r.buckets.GetBucket(ctx, name)
}

// OpenRoot returns the top-level directory of a root. The default root is
// created on first use; buckets must exist in the catalog. Handles of
// buckets with a quota enforce it on every commit.
func (r *Registry) OpenRoot(ctx context.Context, name string) (opfs.DirectoryHandle, error) {
	d, err := r.Describe(ctx, name)
	if err != nil {
		return nil, err
	}
	dir, err := r.backend.Root(ctx, name, opfs.OpenOptions{Create: true, Durability: d.Durability})
	if err != nil {
		return nil, fmt.Errorf("open root %q: %w", name, err)
	}
	if d.Quota <= 0 {
		return dir, nil
	}
	mu, _ := r.commits.LoadOrStore(name, &sync.Mutex{})
	q := &quota{root: dir, name: name, limit: d.Quota, mu: mu}
	return &quotaDir{DirectoryHandle: dir, q: q}, nil
}

// CreateRoot registers a new bucket and creates its backend namespace
func (r *Registry) CreateRoot(ctx context.Context, name string, opts opfs.RootOptions) (opfs.RootDescriptor, error) {
	logger := util.GetLogger("CreateRoot")

	if name == opfs.DefaultRoot || name == opfs.LocalRoot {
		return opfs.RootDescriptor{}, fmt.Errorf("bucket %q is reserved: %w", name, opfs.ErrAlreadyExists)
	}
	if !bucketName.MatchString(name) {
		return opfs.RootDescriptor{}, fmt.Errorf("%w: bucket %q must match %s", opfs.ErrInvalidName, name, bucketName)
	}
	if opts.Quota < 0 {
		return opfs.RootDescriptor{}, fmt.Errorf("%w: negative quota %d", opfs.ErrInvalidName, opts.Quota)
	}
	durability := opts.Durability
	if durability == "" {
		durability = r.durability
	}

	d := opfs.RootDescriptor{
		ID:         uuid.NewString(),
		Name:       name,
		Quota:      opts.Quota,
		Expires:    opts.Expires,
		Durability: durability,
		CreatedAt:  r.now(),
	}
	if err := r.buckets.InsertBucket(ctx, d); err != nil {
		return opfs.RootDescriptor{}, err
	}
	if _, err := r.backend.Root(ctx, name, opfs.OpenOptions{Create: true, Durability: durability}); err != nil {
		if rbErr := r.buckets.DeleteBucket(ctx, name); rbErr != nil {
			logger.Error().Err(rbErr).Str("root", name).Msg("Failed to roll back catalog row")
		}
		return opfs.RootDescriptor{}, fmt.Errorf("create bucket %q: %w", name, err)
	}
	logger.Info().Str("root", name).Int64("quota", d.Quota).Time("expires", d.Expires).
		Str("durability", string(d.Durability)).Msg("Created bucket")
	return d, nil
}

// DeleteRoot removes a bucket with all its contents. The default root cannot
// be deleted.
func (r *Registry) DeleteRoot(ctx context.Context, name string) error {
	logger := util.GetLogger("DeleteRoot")

	if name == opfs.DefaultRoot {
		return fmt.Errorf("default root cannot be deleted: %w", opfs.ErrPermission)
	}
	if _, err := r.buckets.GetBucket(ctx, name); err != nil {
		return err
	}
	if err := r.backend.RemoveRoot(ctx, name); err != nil {
		return fmt.Errorf("remove bucket %q: %w", name, err)
	}
	if err := r.buckets.DeleteBucket(ctx, name); err != nil {
		return err
	}
	r.commits.Delete(name)
	metrics.DeleteTreeNodes(name)
	logger.Info().Str("root", name).Msg("Deleted bucket")
	return nil
}

var _ opfs.Registry = (*Registry)(nil)
