package config

import "time"

// MountOptions holds the settings of a FUSE mount of one root.
// No go-fuse types are exposed here.
type MountOptions struct {
	Debug        bool          // fuse debug logs
	FsName       string        // FsName prefix; the mounted root is appended
	Name         string        // mount's Name (shown as the fs type)
	AttrTimeout  time.Duration // attribute cache timeout (Default 1s)
	EntryTimeout time.Duration // entry cache timeout (Default 1s)
}

// SourceName is the FsName a mount of root shows in the mount table
func (o MountOptions) SourceName(root string) string {
	if o.FsName == "" {
		return root
	}
	return o.FsName + ":" + root
}
