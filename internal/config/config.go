package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	DefaultRetryAttempts      = 5
	DefaultRetryDelayMillis   = 1000
	DefaultChunkSizeMax       = 15 * 1024 * 1024
	DefaultSmallFileMax       = 2 * 1024 * 1024
	DefaultCheckPercent       = 10
	DefaultNetworkConcurrency = 3
	DefaultLogMaxSizeMB       = 10
	DefaultLogMaxBackups      = 5
)

// Config represents the main configuration for cv.
type Config struct {
	HostID      string           `toml:"host_id"`
	BaseDir     string           `toml:"base_dir"`
	LogDir      string           `toml:"log_dir"`
	MetricsFile string           `toml:"metrics_file,omitempty"`
	Backends    []BackendConfig  `toml:"backends"`
	Retry       RetryConfig      `toml:"retry"`
	Encryption  EncryptionConfig `toml:"encryption"`
	Database    DatabaseConfig   `toml:"database"`
	Filesystem  FilesystemConfig `toml:"filesystem"`
	Backup      BackupConfig     `toml:"backup"`
	Check       CheckConfig      `toml:"check"`
	Log         LogConfig        `toml:"log"`
}

// EncryptionConfig locates the passphrase-protected main key.
type EncryptionConfig struct {
	Type    string `toml:"type"` // "age" (default) or "test"
	KeyPath string `toml:"key_path"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string     `toml:"ignore"`
	Roots  []RootConfig `toml:"roots"`
}

// RootConfig is a directory to back up.
type RootConfig struct {
	Path string `toml:"path"`
	Kind string `toml:"kind"` // "document" (default) or "media"
}

// BackendConfig represents configuration for a storage backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BackendConfig struct {
	Type      string `toml:"type"` // "memory", "filesystem", "s3" or "gcs"
	Name      string `toml:"name"`
	Removable bool   `toml:"removable,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// GCS-specific fields (only used when Type == "gcs")
	GCSBucket string `toml:"gcs_bucket,omitempty"`
	GCSPrefix string `toml:"gcs_prefix,omitempty"`
}

// RetryConfig controls how transient backend failures are retried.
type RetryConfig struct {
	Attempts       int   `toml:"attempts"`
	InitialDelayMS int64 `toml:"initial_delay_ms"`
}

// DatabaseConfig represents configuration for the local cache database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

type BackupConfig struct {
	ChunkSizeMax int64 `toml:"chunk_size_max"`
	SmallFileMax int64 `toml:"small_file_max"`
}

type CheckConfig struct {
	Percent            int `toml:"percent"`
	NetworkConcurrency int `toml:"network_concurrency"`
}

// LogConfig controls rotation of the log file.
type LogConfig struct {
	MaxSizeMB  int  `toml:"max_size_mb"`
	MaxBackups int  `toml:"max_backups"`
	MaxAgeDays int  `toml:"max_age_days"`
	Compress   bool `toml:"compress"`
}

// NewConfig creates a new Config with the provided values and defaults.
func NewConfig(hostID, baseDir string) *Config {
	cfg := &Config{
		HostID:  hostID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Backends: []BackendConfig{
			{Type: "filesystem", Name: "local", FSRoot: filepath.Join(baseDir, "storage")},
		},
		Encryption: EncryptionConfig{
			Type:    "age",
			KeyPath: filepath.Join(baseDir, "keys", "cv.key"),
		},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero numeric settings with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = DefaultRetryAttempts
	}
	if c.Retry.InitialDelayMS <= 0 {
		c.Retry.InitialDelayMS = DefaultRetryDelayMillis
	}
	if c.Backup.ChunkSizeMax <= 0 {
		c.Backup.ChunkSizeMax = DefaultChunkSizeMax
	}
	if c.Backup.SmallFileMax <= 0 {
		c.Backup.SmallFileMax = DefaultSmallFileMax
	}
	if c.Check.Percent <= 0 {
		c.Check.Percent = DefaultCheckPercent
	}
	if c.Check.NetworkConcurrency <= 0 {
		c.Check.NetworkConcurrency = DefaultNetworkConcurrency
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Log.MaxBackups <= 0 {
		c.Log.MaxBackups = DefaultLogMaxBackups
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	if c.HostID == "" {
		return fmt.Errorf("host_id is not set")
	}
	if len(c.Backends) == 0 {
		return fmt.Errorf("no backend configured")
	}
	if c.Backup.SmallFileMax > c.Backup.ChunkSizeMax {
		return fmt.Errorf("small_file_max (%d) exceeds chunk_size_max (%d)", c.Backup.SmallFileMax, c.Backup.ChunkSizeMax)
	}
	if c.Check.Percent > 100 {
		return fmt.Errorf("check percent %d is above 100", c.Check.Percent)
	}
	for _, r := range c.Filesystem.Roots {
		if !filepath.IsAbs(r.Path) {
			return fmt.Errorf("root %q is not an absolute path", r.Path)
		}
		switch r.Kind {
		case "", "document", "media":
		default:
			return fmt.Errorf("root %q has unknown kind %q", r.Path, r.Kind)
		}
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader and applies defaults.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// The config may hold storage credentials.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
