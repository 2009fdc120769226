package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file, layered over Default().
// An empty path returns the defaults. The oracle API key is always
// resolved from the environment, never from the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "PAINRANK_API_KEY"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// APIKey resolves the oracle API key from the configured environment
// variable.
func (l LLMConfig) APIKey() string {
	return os.Getenv(l.APIKeyEnv)
}
