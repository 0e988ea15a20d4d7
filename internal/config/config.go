// Package config reads and writes the project configuration kept under the
// .specsync directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Dir is the project metadata directory, relative to the repo root.
const Dir = ".specsync"

// FileName is the config file name inside Dir.
const FileName = "config.yaml"

// Preferences holds the tunable selection limits. Nil means unlimited.
type Preferences struct {
	TestLimit        *int `yaml:"test_limit,omitempty"`
	DestructiveLimit *int `yaml:"destructive_limit,omitempty"`
}

// Config is the on-disk project configuration.
type Config struct {
	ProjectID   string      `yaml:"project_id"`
	APIURL      string      `yaml:"api_url,omitempty"`
	APIKey      string      `yaml:"api_key,omitempty"`
	Preferences Preferences `yaml:"preferences,omitempty"`
}

// Default returns a fresh configuration with the standard limits.
func Default(projectID string) *Config {
	testLimit := 10
	destructiveLimit := 2
	return &Config{
		ProjectID: projectID,
		Preferences: Preferences{
			TestLimit:        &testLimit,
			DestructiveLimit: &destructiveLimit,
		},
	}
}

// Path returns the config file path for a repo root.
func Path(root string) string {
	return filepath.Join(root, Dir, FileName)
}

// Load reads the configuration from a repo root. The API key can be
// overridden via the SPECSYNC_API_KEY environment variable.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(Path(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no configuration found, run init first")
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if key := os.Getenv("SPECSYNC_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	return &cfg, nil
}

// Save writes the configuration under the repo root, creating the metadata
// directory if needed.
func Save(root string, cfg *Config) error {
	dir := filepath.Join(root, Dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", Dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(Path(root), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// TestLimit returns the configured test limit, nil when unlimited.
func (c *Config) TestLimit() *int {
	return c.Preferences.TestLimit
}

// DestructiveLimit returns the configured destructive agent limit, nil when
// unlimited.
func (c *Config) DestructiveLimit() *int {
	return c.Preferences.DestructiveLimit
}
