package explorer

import (
	"context"
	"fmt"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/localdir"
)

// Roots opens [opfs.LocalRoot] through the granted local directory and every
// other root through the registry
type Roots struct {
	Registry opfs.Registry
	// Local may be nil when no local directory support is configured
	Local *localdir.Access
}

func (r Roots) OpenRoot(ctx context.Context, name string) (opfs.DirectoryHandle, error) {
	if name == opfs.LocalRoot {
		if r.Local == nil {
			return nil, fmt.Errorf("root %q: %w", name, opfs.ErrNotFound)
		}
		return r.Local.OpenRoot(ctx, name)
	}
	return r.Registry.OpenRoot(ctx, name)
}

var _ opfs.RootOpener = Roots{}
