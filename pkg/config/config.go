// Package config holds the run configuration. An optional YAML file
// provides defaults; command-line flags override individual values in the
// CLI layer.
package config

import (
	"bytes"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the default name of the configuration file.
const ConfigFileName = "janus.config.yaml"

// Config carries every tunable of a sync run.
type Config struct {
	// Threads sizes all worker pools. Zero means the logical CPU count.
	Threads int `yaml:"threads"`
	// BufferSizeKB is the streaming chunk size for hashing and copying.
	// Zero means 64 KiB.
	BufferSizeKB int `yaml:"bufferSizeKB"`

	// Delete removes destination entries absent from the source.
	Delete bool `yaml:"delete"`
	// Verify re-hashes every written file before its atomic rename.
	Verify bool `yaml:"verify"`
	// PreserveMode replicates permission drift onto unchanged files.
	PreserveMode bool `yaml:"preserveMode"`
	// PreserveMtime replicates timestamp drift onto unchanged files.
	PreserveMtime bool `yaml:"preserveMtime"`

	// LogLevel is one of debug, info, notice, warn, error.
	LogLevel string `yaml:"logLevel"`
	// Quiet discards progress events and suppresses info output.
	Quiet bool `yaml:"quiet"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Threads:       runtime.NumCPU(),
		BufferSizeKB:  64,
		LogLevel:      "info",
		PreserveMtime: true,
	}
}

// Load reads a YAML configuration file over the defaults. Unknown keys are
// rejected so typos surface instead of silently doing nothing.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate normalizes zero values and rejects nonsense.
func (c *Config) Validate() error {
	if c.Threads < 0 {
		return fmt.Errorf("threads must not be negative, got %d", c.Threads)
	}
	if c.Threads == 0 {
		c.Threads = runtime.NumCPU()
	}
	if c.BufferSizeKB < 0 {
		return fmt.Errorf("bufferSizeKB must not be negative, got %d", c.BufferSizeKB)
	}
	if c.BufferSizeKB == 0 {
		c.BufferSizeKB = 64
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

// BufferSize returns the streaming chunk size in bytes.
func (c Config) BufferSize() int64 {
	return int64(c.BufferSizeKB) * 1024
}
