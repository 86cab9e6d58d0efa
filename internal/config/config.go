// Package config loads and persists the sandkasten configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SandboxConfig holds settings for the sandbox executor and primitive.
type SandboxConfig struct {
	// Disable turns off sandboxing entirely. Spawns still succeed, without
	// any restriction applied.
	Disable bool `json:"disable"`
	// BestEffort applies the highest Landlock ABI the kernel supports
	// instead of failing on older kernels.
	BestEffort bool `json:"best_effort"`
	// AllowTrivialBypass enables the exact-match escape hatch for trivial
	// test binaries (echo). Off by default; intended for self-tests only.
	AllowTrivialBypass bool `json:"allow_trivial_bypass"`
	// AdditionalReadOnlyPaths are granted read access in every profile.
	AdditionalReadOnlyPaths []string `json:"additional_read_only_paths,omitempty"`
	// AdditionalReadWritePaths are granted read/write access in every profile.
	AdditionalReadWritePaths []string `json:"additional_read_write_paths,omitempty"`
}

// Config is the top-level sandkasten configuration.
type Config struct {
	LogLevel     string        `json:"log_level"`
	LogFile      string        `json:"log_file"`
	DatabasePath string        `json:"database_path"`
	Sandbox      SandboxConfig `json:"sandbox"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	dir := configDir()
	return &Config{
		LogLevel:     "info",
		LogFile:      filepath.Join(dir, "sandkasten.log"),
		DatabasePath: filepath.Join(dir, "sandkasten.db"),
		Sandbox: SandboxConfig{
			BestEffort: true,
		},
	}
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(configDir(), "config.json")
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "sandkasten")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".sandkasten")
}

// Load reads the config file at path. A missing file yields Default().
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
