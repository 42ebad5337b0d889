package filesystem

import (
	"context"

	opfs "github.com/sashapodgoreanu/opfs-poc"
)

// BuildTree enumerates dir depth-first and returns its children as nodes.
// basePath is the logical path of dir and rootTag the root every node is
// tagged with. Directory nodes always carry a non-nil Children slice. Any
// enumeration or size error fails the whole build.
func BuildTree(ctx context.Context, dir opfs.DirectoryHandle, basePath, rootTag string) ([]opfs.Node, error) {
	nodes := []opfs.Node{}
	for h, err := range dir.Entries(ctx) {
		if err != nil {
			return nil, err
		}
		n := opfs.Node{
			Name: h.Name(),
			Path: opfs.JoinPath(basePath, h.Name()),
			Kind: h.Kind(),
			Root: rootTag,
		}
		switch h := h.(type) {
		case opfs.DirectoryHandle:
			n.Kind = opfs.KindDirectory
			if n.Children, err = BuildTree(ctx, h, n.Path, rootTag); err != nil {
				return nil, err
			}
		case opfs.FileHandle:
			n.Kind = opfs.KindFile
			if n.Size, err = h.Size(ctx); err != nil {
				return nil, err
			}
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// Snapshot builds the full tree of a root wrapped in a single bucket node
// with an empty path
func Snapshot(ctx context.Context, root opfs.DirectoryHandle, rootTag string) (opfs.Node, error) {
	children, err := BuildTree(ctx, root, "", rootTag)
	if err != nil {
		return opfs.Node{}, err
	}
	return opfs.Node{
		Name:     rootTag,
		Kind:     opfs.KindBucket,
		Root:     rootTag,
		Children: children,
	}, nil
}

// CountNodes returns the number of nodes below and including nodes
func CountNodes(nodes []opfs.Node) int {
	n := 0
	opfs.Walk(nodes, func(opfs.Node) bool {
		n++
		return true
	})
	return n
}
