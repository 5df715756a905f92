package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Pairing contains configuration for the pairing listener and handshake.
type Pairing struct {
	// ListenAddr is the TCP address the pairing websocket binds to.
	ListenAddr string `toml:"listen_addr"`
	// AdvertiseHost overrides the host placed in the pairing descriptor.
	// When empty the first non-loopback IPv4 address is used.
	AdvertiseHost           string `toml:"advertise_host"`
	CodeLength              int    `toml:"code_length"`
	TimeoutSeconds          int    `toml:"timeout_seconds"`
	HandshakeTimeoutSeconds int    `toml:"handshake_timeout_seconds"`
	KeepaliveSeconds        int    `toml:"keepalive_seconds"`
	MaxAttempts             int    `toml:"max_attempts"`
}

// Transfer contains configuration for uploads to a paired device.
type Transfer struct {
	Concurrency          int `toml:"concurrency"`
	UploadTimeoutSeconds int `toml:"upload_timeout_seconds"`
	RetryBackoffMillis   int `toml:"retry_backoff_ms"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Metrics contains configuration for run metrics export.
type Metrics struct {
	// Textfile, when set, receives a Prometheus text exposition after each run
	// (suitable for the node_exporter textfile collector).
	Textfile string `toml:"textfile"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Config encapsulates all configuration values for tunedrop.
//
// Configuration sections by subsystem:
//   - Paths: device database and log locations
//   - Pairing: websocket listener, code length, timeouts
//   - Transfer: upload concurrency, per-request timeout, retry backoff
//   - Logging: log format and level
//   - Metrics: optional Prometheus textfile output
//   - Notifications: ntfy push notification settings
type Config struct {
	Paths         Paths         `toml:"paths"`
	Pairing       Pairing       `toml:"pairing"`
	Transfer      Transfer      `toml:"transfer"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("tunedrop.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the device database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "library.db")
}

// LockPath returns the location of the single-session lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "tunedrop.lock")
}

// PairingTimeout returns how long to wait for a human to enter the code.
func (c *Config) PairingTimeout() time.Duration {
	return time.Duration(c.Pairing.TimeoutSeconds) * time.Second
}

// HandshakeTimeout bounds a single handshake once a peer has connected.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Pairing.HandshakeTimeoutSeconds) * time.Second
}

// KeepaliveInterval returns the websocket ping interval.
func (c *Config) KeepaliveInterval() time.Duration {
	return time.Duration(c.Pairing.KeepaliveSeconds) * time.Second
}

// UploadTimeout bounds one upload attempt.
func (c *Config) UploadTimeout() time.Duration {
	return time.Duration(c.Transfer.UploadTimeoutSeconds) * time.Second
}

// RetryBackoff is the wait before the single retry of a reset upload.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Transfer.RetryBackoffMillis) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
