package opfs

import "strings"

// Kind tags a [Node]. Valid kinds are KindFile "file", KindDirectory "directory"
// and KindBucket "bucket"
type Kind string

const (
	KindFile      Kind = "file"
	KindDirectory Kind = "directory"
	// KindBucket marks the top-level node of a storage root
	KindBucket Kind = "bucket"
)

// Node is a view-model of one entry of a storage root. Nodes are rebuilt from
// the underlying store on every load and carry no identity beyond Root+Path.
type Node struct {
	Name string `json:"name"`
	// Path is the full logical path from the storage root without a leading
	// slash. The root container itself has an empty path.
	Path string `json:"path"`
	Kind Kind   `json:"kind"`
	Root string `json:"root"`
	Size int64  `json:"size,omitempty"`
	// Children is nil for files and for containers that were not fetched.
	// Fetched containers always have a non-nil slice (possibly empty).
	Children []Node `json:"children"`
}

// IsContainer reports whether the node can hold children
func (n Node) IsContainer() bool {
	return n.Kind == KindDirectory || n.Kind == KindBucket
}

// Walk visits nodes depth-first, parents before children. Returning false
// from fn stops the walk.
func Walk(nodes []Node, fn func(n Node) bool) bool {
	for _, n := range nodes {
		if !fn(n) {
			return false
		}
		if !Walk(n.Children, fn) {
			return false
		}
	}
	return true
}

// Find returns the first node with the given path
func Find(nodes []Node, path string) (Node, bool) {
	var found Node
	ok := false
	Walk(nodes, func(n Node) bool {
		if n.Path == path && n.Kind != KindBucket {
			found, ok = n, true
			return false
		}
		return true
	})
	return found, ok
}

// JoinPath appends name to a logical parent path
func JoinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return strings.TrimSuffix(parent, "/") + "/" + name
}
