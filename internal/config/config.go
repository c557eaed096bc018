package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for webdl.
type Config struct {
	HostID     string           `toml:"host_id"`
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Store      StoreConfig      `toml:"store"`
	Client     ClientConfig     `toml:"client"`
	Driver     DriverConfig     `toml:"driver"`
	Database   DatabaseConfig   `toml:"database"`
	Mirrors    []MirrorConfig   `toml:"mirrors"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// StoreConfig locates the archive and selects its on-disk encodings.
type StoreConfig struct {
	Root           string `toml:"root"`
	Site           string `toml:"site"`                      // subdirectory of root, e.g. "zhihu"
	MediaDir       string `toml:"media_dir,omitempty"`       // defaults to <root>/<site>/media
	Format         string `toml:"format"`                    // "yaml" (default) or "cbor"
	RawCompression string `toml:"raw_compression,omitempty"` // "none" (default), "zstd" or "lz4"
	Hash           string `toml:"hash"`                      // "sha256" (default) or "blake3"
}

// SiteRoot is the store directory of the configured site.
func (c StoreConfig) SiteRoot() string {
	return filepath.Join(c.Root, c.Site)
}

// ClientConfig configures requests to the remote API.
type ClientConfig struct {
	BaseURL         string            `toml:"base_url"`
	UserAgent       string            `toml:"user_agent,omitempty"`
	RequestInterval Duration          `toml:"request_interval"`
	Timeout         Duration          `toml:"timeout"`
	Signer          string            `toml:"signer"` // "none" (default) or "headers"
	Headers         map[string]string `toml:"headers,omitempty"`
}

// DriverConfig controls what a fetch includes.
type DriverConfig struct {
	Comments      bool `toml:"comments"`
	RelativeLinks bool `toml:"relative_links"`
}

// EncryptionConfig holds paths to the age key pair sealing the session cookie file.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
	SessionPath    string `toml:"session_path"`
}

// MirrorConfig represents configuration for a mirror backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type MirrorConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`
	// Static credentials; the default AWS credential chain is used when empty.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// DatabaseConfig represents configuration for the history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// NewConfig creates a new Config with the provided values and defaults for everything else.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:  hostID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Store: StoreConfig{
			Root:   filepath.Join(baseDir, "store"),
			Site:   "zhihu",
			Format: "yaml",
			Hash:   "sha256",
		},
		Client: ClientConfig{
			BaseURL:         "https://www.zhihu.com",
			RequestInterval: Duration(defaultRequestInterval),
			Timeout:         Duration(defaultTimeout),
			Signer:          "none",
		},
		Driver: DriverConfig{
			RelativeLinks: true,
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "webdl.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "webdl.key"),
			SessionPath:    filepath.Join(baseDir, "session.age"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
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

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
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
