package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the dexcache command configuration. Values come from an optional
// YAML file and are overridden by flags.
type Config struct {
	// Archive is the application archive to load.
	Archive string `yaml:"archive"`

	// Dir is the destination directory for extracted records.
	Dir string `yaml:"dir"`

	// Store configures where the fingerprint is persisted.
	Store StoreConfig `yaml:"store"`

	// Log configures diagnostic output on stderr.
	Log LogConfig `yaml:"log"`
}

// StoreConfig selects a metadata store backend.
type StoreConfig struct {
	// Kind is "file", "sqlite", or "none". Default: file
	Kind string `yaml:"kind"`

	// Path is the record file or database path.
	// Default: <dir>/../dexcache.prefs.json for file, <dir>/../dexcache.db for sqlite
	Path string `yaml:"path"`

	// Durability is "apply" or "commit" for the file store. Default: apply
	Durability string `yaml:"durability"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is debug, info, warn, or error. Default: info
	Level string `yaml:"level"`

	// Format is "text" or "json". Default: text
	Format string `yaml:"format"`
}

func defaultConfig() Config {
	return Config{
		Store: StoreConfig{Kind: "file", Durability: "apply"},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// loadConfigFile overlays the YAML file at path onto cfg.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks required fields and enumerations.
func (c *Config) Validate() error {
	if c.Archive == "" {
		return fmt.Errorf("archive is required")
	}
	if c.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	switch c.Store.Kind {
	case "file", "sqlite", "none":
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	if c.Store.Kind != "none" && c.Store.Path != "" && within(c.Dir, c.Store.Path) {
		return fmt.Errorf("store path %s is inside dir %s, where it would be deleted as a stale file", c.Store.Path, c.Dir)
	}
	switch c.Store.Durability {
	case "apply", "commit":
	default:
		return fmt.Errorf("unknown store durability %q", c.Store.Durability)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// within reports whether path is dir or lies below it.
func within(dir, path string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

func newLogger(cfg LogConfig) *slog.Logger {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
