// Package config loads and validates the YAML configuration that
// describes which chat platforms threadbridge should bridge and how
// sessions on them should behave. The interactive setup wizard that
// produces this file is out of scope; this package only loads,
// validates and (for onboarding/tests) writes it.
package config

import (
	"fmt"
	"regexp"
	"strings"
)

// WorktreeMode controls whether a session offers to create a git
// worktree before starting the assistant process.
type WorktreeMode string

const (
	WorktreePrompt  WorktreeMode = "prompt"
	WorktreeOff     WorktreeMode = "off"
	WorktreeRequire WorktreeMode = "require"
)

// PlatformType identifies which concrete Platform Port binding a
// platform entry should be constructed with.
type PlatformType string

const (
	PlatformMattermost PlatformType = "mattermost"
	PlatformSlack      PlatformType = "slack"
)

// Config is the root of threadbridge's configuration file.
type Config struct {
	Version      int              `yaml:"version"`
	WorkingDir   string           `yaml:"workingDir"`
	Chrome       bool             `yaml:"chrome"`
	WorktreeMode WorktreeMode     `yaml:"worktreeMode"`
	Platforms    []PlatformConfig `yaml:"platforms"`
}

// PlatformConfig is one bridged chat platform. Exactly one of the
// Mattermost or Slack field groups is populated, selected by Type.
type PlatformConfig struct {
	ID              string       `yaml:"id"`
	Type            PlatformType `yaml:"type"`
	DisplayName     string       `yaml:"displayName"`
	BotName         string       `yaml:"botName"`
	ChannelID       string       `yaml:"channelId"`
	AllowedUsers    []string     `yaml:"allowedUsers"`
	SkipPermissions bool         `yaml:"skipPermissions"`

	// Mattermost-only.
	URL   string `yaml:"url,omitempty"`
	Token string `yaml:"token,omitempty"`

	// Slack-only.
	BotToken string `yaml:"botToken,omitempty"`
	AppToken string `yaml:"appToken,omitempty"`
}

var slugRE = regexp.MustCompile(`^[a-z0-9-]+$`)

// Validate enforces basic shape rules: slug ids, URL scheme, token
// prefixes, channel id prefixes.
func (c *Config) Validate() error {
	if c.Version != 2 {
		return fmt.Errorf("config: unsupported version %d, expected 2", c.Version)
	}
	switch c.WorktreeMode {
	case "", WorktreePrompt, WorktreeOff, WorktreeRequire:
	default:
		return fmt.Errorf("config: invalid worktreeMode %q", c.WorktreeMode)
	}
	if len(c.Platforms) == 0 {
		return fmt.Errorf("config: at least one platform must be configured")
	}
	seen := make(map[string]bool, len(c.Platforms))
	for i := range c.Platforms {
		p := &c.Platforms[i]
		if err := p.validate(); err != nil {
			return fmt.Errorf("config: platforms[%d]: %w", i, err)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate platform id %q", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

func (p *PlatformConfig) validate() error {
	if p.ID == "" || !slugRE.MatchString(p.ID) {
		return fmt.Errorf("id %q must match [a-z0-9-]+", p.ID)
	}
	switch p.Type {
	case PlatformMattermost:
		if p.URL == "" {
			return fmt.Errorf("mattermost platform %q requires url", p.ID)
		}
		if !strings.HasPrefix(p.URL, "http://") && !strings.HasPrefix(p.URL, "https://") {
			return fmt.Errorf("mattermost platform %q url must be http(s)", p.ID)
		}
		if p.Token == "" {
			return fmt.Errorf("mattermost platform %q requires token", p.ID)
		}
	case PlatformSlack:
		if !strings.HasPrefix(p.BotToken, "xoxb-") {
			return fmt.Errorf("slack platform %q botToken must start with xoxb-", p.ID)
		}
		if !strings.HasPrefix(p.AppToken, "xapp-") {
			return fmt.Errorf("slack platform %q appToken must start with xapp-", p.ID)
		}
		if p.ChannelID == "" || (p.ChannelID[0] != 'C' && p.ChannelID[0] != 'G') {
			return fmt.Errorf("slack platform %q channelId must start with C or G", p.ID)
		}
	default:
		return fmt.Errorf("platform %q has unknown type %q", p.ID, p.Type)
	}
	return nil
}
