// Package config loads client settings from ~/.wirevpn/config.yaml, a .env
// file and WIREVPN_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"wirevpn/internal/storage"
	"wirevpn/internal/vpn"
	"wirevpn/internal/vpn/daemon"
)

// StorageConfig selects where tokens and the entry cache live.
type StorageConfig struct {
	// Backend is "sqlite", "keyring" or "memory".
	Backend string `yaml:"backend"`
	// Path of the sqlite file. Relative paths are under Dir().
	Path string `yaml:"path"`
}

// Config represents the client configuration.
type Config struct {
	// Mode is "development" or "production".
	Mode string `yaml:"mode"`
	// Shell is "browser" or "native".
	Shell string `yaml:"shell"`
	// Origin is the daemon address used when the base URL is same-origin.
	Origin       string        `yaml:"origin"`
	DaemonPort   int           `yaml:"daemon_port"`
	PollInterval time.Duration `yaml:"poll_interval"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`

	// NativeHost is the bridge address probed at startup. Empty disables detection.
	NativeHost string `yaml:"native_host"`

	CDNSources   []string `yaml:"cdn_sources,omitempty"`
	DefaultEntry string   `yaml:"default_entry"`

	Storage StorageConfig `yaml:"storage"`
	// TokenSecret is the hex master key sealing stored tokens. WIREVPN_TOKEN_SECRET also works.
	TokenSecret string `yaml:"token_secret,omitempty"`


	LogLevel  string `yaml:"log_level"`
	SentryDSN string `yaml:"sentry_dsn"`

	// Connect holds the defaults for `wirevpn connect`.
	Connect vpn.ClientConfig `yaml:"connect"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Mode:         daemon.ModeDevelopment,
		Shell:        daemon.ShellBrowser,
		Origin:       "http://127.0.0.1:7890",
		DaemonPort:   daemon.DefaultPort,
		PollInterval: daemon.DefaultPollInterval,
		HTTPTimeout:  15 * time.Second,
		Storage: StorageConfig{
			Backend: storage.BackendSQLite,
			Path:    "wirevpn.db",
		},
		LogLevel: "info",
	}
}

// Dir returns the per-user config directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error getting home directory: %w", err)
	}
	return filepath.Join(home, ".wirevpn"), nil
}

// DefaultPath returns ~/.wirevpn/config.yaml.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file at path (DefaultPath when empty), then .env,
// then the environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := DefaultConfig()

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		decoder := yaml.NewDecoder(file)
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("error parsing configuration: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("error opening configuration: %w", err)
	}

	// Load .env file if it exists
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"WIREVPN_MODE":            &c.Mode,
		"WIREVPN_SHELL":           &c.Shell,
		"WIREVPN_ORIGIN":          &c.Origin,
		"WIREVPN_NATIVE_HOST":     &c.NativeHost,
		"WIREVPN_DEFAULT_ENTRY":   &c.DefaultEntry,
		"WIREVPN_STORAGE_BACKEND": &c.Storage.Backend,
		"WIREVPN_STORAGE_PATH":    &c.Storage.Path,
		"WIREVPN_LOG_LEVEL":       &c.LogLevel,
		"WIREVPN_SENTRY_DSN":      &c.SentryDSN,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v := os.Getenv("WIREVPN_DAEMON_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("WIREVPN_DAEMON_PORT: %w", err)
		}
		c.DaemonPort = port
	}
	if v := os.Getenv("WIREVPN_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WIREVPN_POLL_INTERVAL: %w", err)
		}
		c.PollInterval = d
	}
	if v := os.Getenv("WIREVPN_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("WIREVPN_HTTP_TIMEOUT: %w", err)
		}
		c.HTTPTimeout = d
	}
	if v := os.Getenv("WIREVPN_CDN_SOURCES"); v != "" {
		c.CDNSources = nil
		for _, src := range strings.Split(v, ",") {
			if src = strings.TrimSpace(src); src != "" {
				c.CDNSources = append(c.CDNSources, src)
			}
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Mode {
	case daemon.ModeDevelopment, daemon.ModeProduction:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	switch c.Shell {
	case daemon.ShellBrowser, daemon.ShellNative:
	default:
		return fmt.Errorf("unknown shell %q", c.Shell)
	}
	switch c.Storage.Backend {
	case storage.BackendSQLite, storage.BackendKeyring, storage.BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	if c.DaemonPort <= 0 || c.DaemonPort > 65535 {
		return fmt.Errorf("daemon_port %d out of range", c.DaemonPort)
	}
	return nil
}

// Save writes the configuration to path (DefaultPath when empty).
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error serializing configuration: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("error saving configuration: %w", err)
	}
	return nil
}

// DaemonEnv returns the runtime environment that picks the daemon base URL.
func (c *Config) DaemonEnv() daemon.Env {
	return daemon.Env{Mode: c.Mode, Shell: c.Shell, Port: c.DaemonPort}
}

// StoragePath resolves the sqlite path against Dir().
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path == "" || filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path, nil
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Storage.Path), nil
}

// SecretPath is where a generated token secret is kept: token.secret next
// to the config file at configPath (DefaultPath when empty).
func SecretPath(configPath string) (string, error) {
	if configPath == "" {
		p, err := DefaultPath()
		if err != nil {
			return "", err
		}
		configPath = p
	}
	return filepath.Join(filepath.Dir(configPath), "token.secret"), nil
}
