package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/sashapodgoreanu/opfs-poc/internal/util"
	"gopkg.in/yaml.v3"
)

// CLI verbosity values accepted by [ConfigOverride.LogLvl]
const (
	ErrorVerbose = iota + 1
	WarnVerbose
	InfoVerbose
	DebugVerbose
	TraceVerbose
)

// Default configuration constants. See [Config] for field descriptions.
const (
	DefaultLogLvl = util.InfoLevel

	// DefaultBackend stores roots as directories on the local disk
	DefaultBackend = "os"

	DefaultDurability = opfs.DurabilityRelaxed

	// DefaultSweepSchedule is the cron spec for reclaiming expired buckets
	DefaultSweepSchedule = "@every 1m"

	DefaultS3Region = "us-east-1"
	DefaultS3Prefix = "opfs"

	// DefaultAttrTimeout is the FUSE attribute cache timeout
	DefaultAttrTimeout = time.Second

	// DefaultEntryTimeout is the FUSE directory entry cache timeout
	DefaultEntryTimeout = time.Second

	DefaultFsName = "opfs"
	DefaultName   = "opfs"
)

// DefaultDataDir is where roots and the catalog live unless configured.
// Falls back to a relative directory when the user config dir is unknown.
func DefaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".opfs"
	}
	return filepath.Join(dir, "opfs")
}

// S3Config holds the settings of the s3 backend
type S3Config struct {
	Endpoint     string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Bucket       string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Region       string `yaml:"region,omitempty" json:"region,omitempty"`
	Prefix       string `yaml:"prefix,omitempty" json:"prefix,omitempty"` // Key prefix all roots live under
	AccessKey    string `yaml:"access_key,omitempty" json:"access_key,omitempty"`
	SecretKey    string `yaml:"secret_key,omitempty" json:"secret_key,omitempty"`
	UsePathStyle bool   `yaml:"use_path_style,omitempty" json:"use_path_style,omitempty"`
}

// Config contains runtime configuration values for the explorer.
type Config struct {
	MountOptions
	LogLvl            util.LogLevel   // Internal log level (Default info)
	DataDir           string          // Directory holding disk roots (Default <user config dir>/opfs)
	CatalogPath       string          // SQLite catalog file (Default <DataDir>/catalog.db)
	Backend           string          // Root storage backend: mem, os or s3 (Default os)
	S3                S3Config        // Settings for the s3 backend
	DefaultDurability opfs.Durability // Durability of the default root and buckets created without one (Default relaxed)
	SweepSchedule     string          // Cron spec for the expired bucket sweeper (Default "@every 1m")
	MetricsAddr       string          // Listen address for /metrics while mounted; empty disables it
}

// ConfigOverride uses pointer fields to distinguish between unset and zero values
// when loading partial configuration. See [Config] for field descriptions.
type ConfigOverride struct {
	// LogLvl is a CLI style verbosity between 1 (error) and 5 (trace)
	LogLvl            *int             `yaml:"verbose,omitempty" json:"verbose,omitempty"`
	DataDir           *string          `yaml:"data_dir,omitempty" json:"data_dir,omitempty"`
	CatalogPath       *string          `yaml:"catalog_path,omitempty" json:"catalog_path,omitempty"`
	Backend           *string          `yaml:"backend,omitempty" json:"backend,omitempty"`
	S3                *S3Config        `yaml:"s3,omitempty" json:"s3,omitempty"`
	DefaultDurability *opfs.Durability `yaml:"default_durability,omitempty" json:"default_durability,omitempty"`
	SweepSchedule     *string          `yaml:"sweep_schedule,omitempty" json:"sweep_schedule,omitempty"`
	MetricsAddr       *string          `yaml:"metrics_addr,omitempty" json:"metrics_addr,omitempty"`
	AttrTimeout       *time.Duration   `yaml:"attr_timeout,omitempty" json:"attr_timeout,omitempty"`
	EntryTimeout      *time.Duration   `yaml:"entry_timeout,omitempty" json:"entry_timeout,omitempty"`
	Debug             *bool            `yaml:"fuse_debug,omitempty" json:"fuse_debug,omitempty"`
	FsName            *string          `yaml:"fs_name,omitempty" json:"fs_name,omitempty"`
	Name              *string          `yaml:"name,omitempty" json:"name,omitempty"`
}

// NewDefaultConfig creates a new Config with all default values.
func NewDefaultConfig() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		MountOptions: MountOptions{
			FsName:       DefaultFsName,
			Name:         DefaultName,
			AttrTimeout:  DefaultAttrTimeout,
			EntryTimeout: DefaultEntryTimeout,
		},
		LogLvl:      DefaultLogLvl,
		DataDir:     dataDir,
		CatalogPath: filepath.Join(dataDir, "catalog.db"),
		Backend:     DefaultBackend,
		S3: S3Config{
			Region: DefaultS3Region,
			Prefix: DefaultS3Prefix,
		},
		DefaultDurability: DefaultDurability,
		SweepSchedule:     DefaultSweepSchedule,
	}
}

// NewConfig creates a Config from defaults with override applied on top.
// A nil override returns the defaults.
func NewConfig(override *ConfigOverride) *Config {
	cfg := NewDefaultConfig()
	if override != nil {
		cfg.Merge(override)
	}
	return cfg
}

// Merge applies non-nil values from override onto this Config.
// This allows partial configuration updates while preserving existing values.
// The catalog follows a moved DataDir unless it is set explicitly.
func (c *Config) Merge(override *ConfigOverride) {
	if override.LogLvl != nil {
		c.LogLvl = util.VerbosityLevel(*override.LogLvl)
	}
	if override.DataDir != nil {
		if c.CatalogPath == filepath.Join(c.DataDir, "catalog.db") {
			c.CatalogPath = filepath.Join(*override.DataDir, "catalog.db")
		}
		c.DataDir = *override.DataDir
	}
	if override.CatalogPath != nil {
		c.CatalogPath = *override.CatalogPath
	}
	if override.Backend != nil {
		c.Backend = *override.Backend
	}
	if override.S3 != nil {
		c.S3.merge(override.S3)
	}
	if override.DefaultDurability != nil {
		c.DefaultDurability = *override.DefaultDurability
	}
	if override.SweepSchedule != nil {
		c.SweepSchedule = *override.SweepSchedule
	}
	if override.MetricsAddr != nil {
		c.MetricsAddr = *override.MetricsAddr
	}
	if override.AttrTimeout != nil {
		c.AttrTimeout = *override.AttrTimeout
	}
	if override.EntryTimeout != nil {
		c.EntryTimeout = *override.EntryTimeout
	}
	if override.Debug != nil {
		c.Debug = *override.Debug
	}
	if override.FsName != nil {
		c.FsName = *override.FsName
	}
	if override.Name != nil {
		c.Name = *override.Name
	}
}

// merge copies the non-empty fields of o
func (s *S3Config) merge(o *S3Config) {
	if o.Endpoint != "" {
		s.Endpoint = o.Endpoint
	}
	if o.Bucket != "" {
		s.Bucket = o.Bucket
	}
	if o.Region != "" {
		s.Region = o.Region
	}
	if o.Prefix != "" {
		s.Prefix = o.Prefix
	}
	if o.AccessKey != "" {
		s.AccessKey = o.AccessKey
	}
	if o.SecretKey != "" {
		s.SecretKey = o.SecretKey
	}
	if o.UsePathStyle {
		s.UsePathStyle = true
	}
}

// LoadConfigOverrideFile loads configuration overrides from a file without merging.
// Supports both YAML (.yaml, .yml) and JSON (.json) formats.
func LoadConfigOverrideFile(path string) (*ConfigOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var override ConfigOverride

	// Determine format by file extension
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &override); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config file extension: %s", path)
	}

	return &override, nil
}

// NewConfigFromFile creates a new Config by merging file overrides with defaults.
// This is a convenience function that combines NewDefaultConfig, LoadConfigOverrideFile, and Merge.
func NewConfigFromFile(path string) (*Config, error) {
	override, err := LoadConfigOverrideFile(path)
	if err != nil {
		return nil, err
	}
	return NewConfig(override), nil
}
