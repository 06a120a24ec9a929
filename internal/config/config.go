// Package config resolves ksv settings from built-in defaults, an optional
// TOML file, the environment and command-line overrides, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/illarion/ksv/internal/logger"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrExists        = errors.New("config file already exists")
)

const (
	DefaultVault    = ".ksv"
	DefaultLogLevel = "warn"
	DefaultTemplate = "owasp-password"
	ConfigPathEnv   = "KSV_CONFIG"
)

// Config holds the resolved settings. Password is only read from the
// environment, never from the config file.
type Config struct {
	Vault           string `toml:"vault" env:"KSV_VAULT"`
	Password        string `toml:"-" env:"KSV_PASSWORD"`
	LogLevel        string `toml:"log_level" env:"KSV_LOG_LEVEL"`
	Keyring         bool   `toml:"keyring" env:"KSV_KEYRING"`
	DefaultTemplate string `toml:"default_template" env:"KSV_DEFAULT_TEMPLATE"`

	// Path of the config file that was read, empty when none
	Path string `toml:"-"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Vault:           DefaultVault,
		LogLevel:        DefaultLogLevel,
		Keyring:         true,
		DefaultTemplate: DefaultTemplate,
	}
}

// DefaultPath returns $KSV_CONFIG, or config.toml under the user config dir
func DefaultPath() string {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ksv", "config.toml")
}

// Load layers defaults, the TOML file at path and the environment.
// An empty path falls back to DefaultPath, where a missing file is fine;
// an explicitly named file must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			if !explicit && errors.Is(err, fs.ErrNotExist) {
				path = ""
			} else {
				return nil, err
			}
		}
	}
	cfg.Path = path

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	return cfg, cfg.Validate()
}

func (c *Config) decodeFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return nil
}

// Override applies the non-empty fields of o on top of c, then validates
func (c *Config) Override(o Config) error {
	// false cannot be told apart from unset, so callers toggle Keyring directly
	o.Keyring = c.Keyring
	if err := mergo.Merge(c, o, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge overrides: %w", err)
	}
	return c.Validate()
}

// Validate checks the resolved settings
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Vault) == "" {
		return fmt.Errorf("%w: vault path is empty", ErrInvalidConfig)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if strings.TrimSpace(c.DefaultTemplate) == "" {
		return fmt.Errorf("%w: default template is empty", ErrInvalidConfig)
	}
	return nil
}

// Save writes the file-backed settings to path as TOML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := c.Encode(f); err != nil {
		return err
	}
	return f.Close()
}

// Encode writes the file-backed settings to w as TOML
func (c *Config) Encode(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(c); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
