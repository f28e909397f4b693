// Package config loads the snapsync configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "15m" as well as integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration: %s", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the top-level configuration.
type Config struct {
	// RootFolderID is the storage folder all collection folders live
	// under. Required.
	RootFolderID string `yaml:"root_folder_id"`

	// Collections lists explicit collection ids to synchronize. Empty
	// means discover via the remote search endpoint.
	Collections []string `yaml:"collections,omitempty"`

	// StateDir holds the rotation pointer and other local state.
	// Defaults to the directory the config file lives in.
	StateDir string `yaml:"state_dir,omitempty"`

	// Interval between passes in daemon mode. Zero means one-shot.
	Interval Duration `yaml:"interval,omitempty"`

	// MaxRuntime bounds a single pass's wall clock. Zero means
	// unbounded.
	MaxRuntime Duration `yaml:"max_runtime,omitempty"`

	// ConflictMode is "guard" (default) or "overwrite".
	ConflictMode string `yaml:"conflict_mode,omitempty"`

	// AllowDestructiveSchema enables remote property deletion during
	// schema reconciliation.
	AllowDestructiveSchema bool `yaml:"allow_destructive_schema,omitempty"`

	// ArchiveRetention bounds archived snapshot versions per
	// collection.
	ArchiveRetention int `yaml:"archive_retention,omitempty"`

	Lifecycle LifecycleConfig `yaml:"lifecycle,omitempty"`
	Remote    RemoteConfig    `yaml:"remote,omitempty"`
	Storage   StorageConfig   `yaml:"storage,omitempty"`
	Redis     RedisConfig     `yaml:"redis,omitempty"`
}

// LifecycleConfig tunes the stamp applied to newly created pages.
type LifecycleConfig struct {
	Disabled bool   `yaml:"disabled,omitempty"`
	Property string `yaml:"property,omitempty"` // default "Lifecycle"
	Initial  string `yaml:"initial,omitempty"`  // default "new"
}

// RemoteConfig points at the collection service. The API token comes
// from the SNAPSYNC_REMOTE_TOKEN environment variable, never the file.
type RemoteConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
}

// StorageConfig points at the file-storage service. The bearer token
// comes from the SNAPSYNC_STORAGE_TOKEN environment variable.
type StorageConfig struct {
	BaseURL   string `yaml:"base_url,omitempty"`
	UploadURL string `yaml:"upload_url,omitempty"`
}

// RedisConfig enables the distributed locker. Empty Addr keeps the
// in-process locker.
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// Load reads and validates a configuration file. A missing file returns
// defaults plus an error the caller may treat as fatal or not.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ConflictMode == "" {
		c.ConflictMode = "guard"
	}
	if c.ArchiveRetention == 0 {
		c.ArchiveRetention = 10
	}
	if c.Lifecycle.Property == "" {
		c.Lifecycle.Property = "Lifecycle"
	}
	if c.Lifecycle.Initial == "" {
		c.Lifecycle.Initial = "new"
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.RootFolderID == "" {
		return fmt.Errorf("root_folder_id is required")
	}
	switch c.ConflictMode {
	case "guard", "overwrite":
	default:
		return fmt.Errorf("conflict_mode must be \"guard\" or \"overwrite\", got %q", c.ConflictMode)
	}
	if c.ArchiveRetention < 0 {
		return fmt.Errorf("archive_retention must not be negative")
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}
	if c.MaxRuntime < 0 {
		return fmt.Errorf("max_runtime must not be negative")
	}
	return nil
}
