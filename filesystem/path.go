package filesystem

import (
	"fmt"
	"strings"

	opfs "github.com/sashapodgoreanu/opfs-poc"
)

// SplitPath splits a logical path into its intermediate directory names and
// the final name. A single leading or trailing "/" is ignored; whitespace is
// part of the name. The empty path names the root itself and yields an empty
// final.
func SplitPath(path string) (dirs []string, final string, err error) {
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return nil, "", nil
	}

	segs := strings.Split(path, "/")
	for _, s := range segs {
		if err := opfs.ValidateName(s); err != nil {
			return nil, "", fmt.Errorf("path %q: %w", path, err)
		}
	}
	return segs[:len(segs)-1], segs[len(segs)-1], nil
}

// CleanPath returns the canonical form of a logical path
func CleanPath(path string) (string, error) {
	dirs, final, err := SplitPath(path)
	if err != nil {
		return "", err
	}
	if final == "" {
		return "", nil
	}
	return strings.Join(append(dirs, final), "/"), nil
}
