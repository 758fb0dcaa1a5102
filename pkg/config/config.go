package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the queue core's entire configuration surface: a storage
// path, a retention cap, and the queues to create at startup.
type Config struct {
	// DBPath is the directory a persistent store is opened in. Nil means
	// an ephemeral store, discarded on shutdown.
	DBPath *string `yaml:"db_path,omitempty"`

	// MaxKeyUpdates is the per-key retention cap. Nil means unbounded.
	// A pointer to 0 disables persistence of event bodies; a pointer to
	// M>0 retains the M most recent events per key.
	MaxKeyUpdates *int `yaml:"max_key_updates,omitempty"`

	// Default lists queues to create when the core starts.
	Default []string `yaml:"default,omitempty"`
}

// Load reads and parses a YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}

// Persistent reports whether cfg describes a persistent store.
func (c *Config) Persistent() bool {
	return c != nil && c.DBPath != nil && *c.DBPath != ""
}
