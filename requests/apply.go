package requests

import (
	"context"
	"errors"
	"fmt"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/filesystem"
	"github.com/sashapodgoreanu/opfs-poc/internal/util"
)

// Result reports what [Apply] did for one bucket
type Result struct {
	Name    string `json:"name"`
	Created bool   `json:"created"`
	Nodes   int    `json:"nodes"`
}

// Apply creates the requested buckets and their seed entries. Buckets that
// already exist keep their settings; their entries are still applied. The
// first failure stops the run.
func Apply(ctx context.Context, reg opfs.Registry, fsys *filesystem.FileSystem, reqs []BucketRequest) ([]Result, error) {
	logger := util.GetLogger("Apply")

	results := make([]Result, 0, len(reqs))
	for _, req := range reqs {
		res := Result{Name: req.Name, Created: true}
		if _, err := reg.CreateRoot(ctx, req.Name, req.Options); err != nil {
			if !errors.Is(err, opfs.ErrAlreadyExists) {
				return results, err
			}
			// reserved names collide too; the root must still open
			if _, err := reg.OpenRoot(ctx, req.Name); err != nil {
				return results, fmt.Errorf("bucket %q: %w", req.Name, err)
			}
			res.Created = false
		}
		for _, n := range req.Nodes {
			if err := applyNode(ctx, fsys, req.Name, n); err != nil {
				return results, err
			}
			res.Nodes++
		}
		logger.Debug().Str("root", req.Name).Bool("created", res.Created).Int("nodes", res.Nodes).Msg("Bucket applied")
		results = append(results, res)
	}
	return results, nil
}

func applyNode(ctx context.Context, fsys *filesystem.FileSystem, root string, n NodeRequest) error {
	switch {
	case n.Kind == opfs.KindDirectory:
		_, err := fsys.CreateDirectory(ctx, root, n.Path)
		return err
	case n.Content != nil:
		return fsys.WriteFile(ctx, root, n.Path, *n.Content)
	default:
		_, err := fsys.CreateFile(ctx, root, n.Path)
		return err
	}
}
