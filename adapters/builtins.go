package adapters

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/adapters/memfs"
	"github.com/sashapodgoreanu/opfs-poc/adapters/osfs"
	"github.com/sashapodgoreanu/opfs-poc/adapters/s3fs"
	"github.com/sashapodgoreanu/opfs-poc/config"
)

type BuiltInBackendType = string

const (
	MemBackendType BuiltInBackendType = memfs.Type
	OSBackendType  BuiltInBackendType = osfs.Type
	S3BackendType  BuiltInBackendType = s3fs.Type
)

// RegisterBuiltins registers all built-in backends by default
// or only the specific ones if keys are provided
func RegisterBuiltins(r *Registry, backends ...BuiltInBackendType) {
	if len(backends) == 0 {
		backends = append(backends, MemBackendType, OSBackendType, S3BackendType)
	}

	for _, key := range backends {
		switch key {
		case MemBackendType:
			r.Register(key, memfs.Provider{})
		case OSBackendType:
			r.Register(key, osfs.Provider{})
		case S3BackendType:
			r.Register(key, s3fs.Provider{})
		}
	}
}

// RootsDir is the directory holding one subdirectory per root for the os backend
func RootsDir(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "roots")
}

// BackendConfig renders the raw JSON config of the backend selected by cfg
func BackendConfig(cfg *config.Config) ([]byte, error) {
	switch cfg.Backend {
	case MemBackendType:
		return json.Marshal(memfs.Config{Type: memfs.Type})
	case OSBackendType:
		return json.Marshal(osfs.Config{Type: osfs.Type, Dir: RootsDir(cfg)})
	case S3BackendType:
		return json.Marshal(s3fs.Config{
			Type:         s3fs.Type,
			Endpoint:     cfg.S3.Endpoint,
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Prefix:       cfg.S3.Prefix,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown backend %q (want mem, os or s3)", cfg.Backend)
	}
}

// New creates the backend selected by cfg using the built-in providers
func New(cfg *config.Config) (opfs.Backend, error) {
	raw, err := BackendConfig(cfg)
	if err != nil {
		return nil, err
	}
	r := NewRegistry()
	RegisterBuiltins(r)
	return r.NewBackend(raw)
}
