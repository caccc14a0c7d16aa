package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CalendarConfig describes one calendar the mirror may write to. Calendars
// are ICS files on disk; a read-only calendar is never chosen as an upsert
// target but is still scanned on delete.
type CalendarConfig struct {
	// Name is a human-friendly label used in logs.
	Name string `yaml:"name"`
	// Path is the location of the ICS file.
	Path string `yaml:"path"`
	// Primary marks the preferred upsert target.
	Primary bool `yaml:"primary"`
	// ReadOnly excludes the calendar from writes.
	ReadOnly bool `yaml:"read_only"`
}

// Config is the top-level server configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path"`

	// TokenSecret signs API tokens. Generated on first run.
	TokenSecret string `yaml:"token_secret"`

	// Calendars lists the mirror's calendar files.
	Calendars []CalendarConfig `yaml:"calendars"`
}

// Default returns a configuration that works with no edits: one writable
// primary calendar next to the database.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		DBPath: "./expiry.db",
		Calendars: []CalendarConfig{
			{Name: "Expiry Reminders", Path: "./expiry.ics", Primary: true},
		},
	}
}

// Load reads the config at path. On first run it writes the defaults (with a
// freshly generated token secret) to path with 0600 permissions.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		cfg.TokenSecret = newSecret()
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./expiry.db"
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func newSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// rand.Read only fails on a broken platform; fall back to a fixed
		// marker the operator will notice and replace.
		return "change-me"
	}
	return hex.EncodeToString(buf)
}
