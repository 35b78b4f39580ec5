package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath returns the conventional config location under the
// user's home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".threadbridge", "config.yaml"), nil
}

// Load reads and validates a Config from path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as
// needed. Config files may carry bot tokens, so the file is written
// owner-only (0o600) like the thread log.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// Default returns a minimal, valid single-platform Config used by
// tests and as the seed for an onboarding run. It only produces a
// structurally valid starting point; platform credentials still need
// to be filled in by hand.
func Default() Config {
	return Config{
		Version:      2,
		WorkingDir:   "~/.threadbridge/workspace",
		WorktreeMode: WorktreePrompt,
		Platforms: []PlatformConfig{
			{
				ID:          "mattermost-main",
				Type:        PlatformMattermost,
				DisplayName: "Team Mattermost",
				URL:         "https://example.invalid",
				Token:       "REPLACE_ME",
				ChannelID:   "town-square",
				BotName:     "threadbridge",
			},
		},
	}
}
