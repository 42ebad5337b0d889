package adapters

import (
	"encoding/json"
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"
	opfs "github.com/sashapodgoreanu/opfs-poc"
)

// Registry ties backend providers to a "type" key
type Registry struct {
	providers *xsync.Map[string, opfs.BackendProvider]
}

func NewRegistry() *Registry {
	return &Registry{providers: xsync.NewMap[string, opfs.BackendProvider]()}
}

// Register ties a provider to a “type” key and should be called for each
// backend type during app init. The first registration of a type wins.
func (r *Registry) Register(backendType string, p opfs.BackendProvider) {
	r.providers.LoadOrStore(backendType, p)
}

// GetProvider returns the provider registered for backendType
func (r *Registry) GetProvider(backendType string) (opfs.BackendProvider, error) {
	p, ok := r.providers.Load(backendType)
	if !ok {
		return nil, fmt.Errorf("no provider for %q", backendType)
	}
	return p, nil
}

// NewBackend picks the right provider based on the "type" field.
// All expected backend types should be registered with [Registry.Register]
// before calling this function.
func (r *Registry) NewBackend(raw []byte) (opfs.Backend, error) {
	var meta struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	if meta.Type == "" {
		return nil, fmt.Errorf("backend config is missing the type field")
	}
	p, err := r.GetProvider(meta.Type)
	if err != nil {
		return nil, err
	}
	return p.NewBackend(raw)
}
