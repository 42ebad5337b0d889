package opfs

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultRoot is the name of the default private root. It always exists.
	DefaultRoot = "root"
	// LocalRoot tags nodes of the user-granted local directory
	LocalRoot = "local"
)

// Durability is the commit preference of a root. DurabilityStrict commits to
// stable storage before acknowledging a write, DurabilityRelaxed allows the
// backend to defer it.
type Durability string

const (
	DurabilityStrict  Durability = "strict"
	DurabilityRelaxed Durability = "relaxed"
)

// ParseDurability accepts "strict" and "relaxed". The empty string means relaxed.
func ParseDurability(s string) (Durability, error) {
	switch Durability(s) {
	case DurabilityStrict:
		return DurabilityStrict, nil
	case DurabilityRelaxed, "":
		return DurabilityRelaxed, nil
	default:
		return "", fmt.Errorf("unknown durability %q (want strict or relaxed)", s)
	}
}

func (d Durability) MarshalText() ([]byte, error) {
	return []byte(d), nil
}

func (d *Durability) UnmarshalText(text []byte) error {
	parsed, err := ParseDurability(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// RootOptions configure a new partition root
type RootOptions struct {
	// Quota is the maximum number of bytes stored in the root. 0 means unlimited.
	Quota int64
	// Expires is the deadline after which the root may be reclaimed. Zero means never.
	Expires    time.Time
	Durability Durability
}

// RootDescriptor describes a storage root returned by [Registry.ListRoots]
type RootDescriptor struct {
	ID         string     `json:"id,omitempty"`
	Name       string     `json:"name"`
	Default    bool       `json:"default"`
	Quota      int64      `json:"quota,omitempty"`
	Expires    time.Time  `json:"expires,omitzero"`
	Durability Durability `json:"durability"`
	CreatedAt  time.Time  `json:"created_at,omitzero"`
}

// Expired reports whether the root's expiry deadline has passed at now
func (d RootDescriptor) Expired(now time.Time) bool {
	return !d.Expires.IsZero() && !now.Before(d.Expires)
}

// RootOpener opens storage roots by name
type RootOpener interface {
	OpenRoot(ctx context.Context, name string) (DirectoryHandle, error)
}

// Registry enumerates and manages the storage roots of the private store
type Registry interface {
	RootOpener
	ListRoots(ctx context.Context) ([]RootDescriptor, error)
	CreateRoot(ctx context.Context, name string, opts RootOptions) (RootDescriptor, error)
	DeleteRoot(ctx context.Context, name string) error
}
