// Package config provides configuration loading and structs for the shiboru
// server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Search  SearchConfig  `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the scroll session database path.
type StorageConfig struct {
	ScrollDBPath string `yaml:"scroll_db_path"`
}

// SearchConfig holds execution defaults applied to incoming requests.
type SearchConfig struct {
	DefaultSize      int   `yaml:"default_size"`
	MaxSize          int   `yaml:"max_size"`
	TrackTotalHits   *bool `yaml:"track_total_hits"`
	SegmentSize      int   `yaml:"segment_size"`
	ScrollTTLMinutes int   `yaml:"scroll_ttl_minutes"`
}

// TrackTotalHitsOrDefault returns the tracking default; true when unset.
func (s *SearchConfig) TrackTotalHitsOrDefault() bool {
	if s.TrackTotalHits != nil {
		return *s.TrackTotalHits
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies
// defaults. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.ScrollDBPath = expandPath(cfg.Storage.ScrollDBPath, configDir)

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are
// relative to configDir; other relative paths are relative to the home
// directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
