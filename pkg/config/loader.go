package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// ConfigFileName is the expected file inside the config directory.
const ConfigFileName = "maildigest.yaml"

// Initialize loads, merges, and validates configuration from configDir.
// This is the primary entry point.
//
// Steps performed:
//  1. Read maildigest.yaml (missing file means pure defaults)
//  2. Expand environment variables
//  3. Parse YAML
//  4. Merge user values over built-in defaults
//  5. Validate and resolve the timezone
func Initialize(configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized",
		"user", cfg.User.Email,
		"timezone", cfg.Mailbox.Timezone,
		"model", cfg.LLM.Model,
		"output_dir", cfg.Output.Dir)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	defaults := DefaultConfig()

	path := filepath.Join(configDir, ConfigFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Warn("No config file found, using built-in defaults", "path", path)
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	data = ExpandEnv(data)

	user := &Config{}
	if err := yaml.Unmarshal(data, user); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	// User values win over defaults; zero-valued user fields fall through.
	if err := mergo.Merge(user, defaults); err != nil {
		return nil, fmt.Errorf("failed to merge defaults: %w", err)
	}

	return user, nil
}
