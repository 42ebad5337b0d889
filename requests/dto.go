package requests

import (
	"time"

	opfs "github.com/sashapodgoreanu/opfs-poc"
)

// BucketRequestDTO is the JSON/YAML representation of [BucketRequest]
type BucketRequestDTO struct {
	Name  string `json:"name" yaml:"name"`
	Quota *int64 `json:"quota,omitempty" yaml:"quota,omitempty"` // bytes, 0 = unlimited
	// ExpiresIn is a duration relative to the time the request is applied,
	// i.e. "60s". Mutually exclusive with ExpiresAt.
	ExpiresIn  *string          `json:"expires_in,omitempty" yaml:"expires_in,omitempty"`
	ExpiresAt  *time.Time       `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Durability *opfs.Durability `json:"durability,omitempty" yaml:"durability,omitempty"`
	Nodes      []NodeRequestDTO `json:"nodes,omitempty" yaml:"nodes,omitempty"`
}

// NodeRequestDTO is the JSON/YAML representation of [NodeRequest]
type NodeRequestDTO struct {
	Path string    `json:"path" yaml:"path"`
	Type opfs.Kind `json:"type" yaml:"type"` // "file" or "directory"
	// Content is written to files. Without it an existing file is left as is.
	Content *string `json:"content,omitempty" yaml:"content,omitempty"`
}

// BucketRequest asks for a bucket and optional seed entries
type BucketRequest struct {
	Name    string
	Options opfs.RootOptions
	Nodes   []NodeRequest
}

type NodeRequest struct {
	Path    string
	Kind    opfs.Kind
	Content *string
}
