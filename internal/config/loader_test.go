package config

import (
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	d := t.TempDir()
	path := filepath.Join(d, "config.yaml")
	cfg := Default()

	if err := Save(&cfg, path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Version != cfg.Version {
		t.Fatalf("version mismatch: got %d want %d", got.Version, cfg.Version)
	}
	if len(got.Platforms) != 1 || got.Platforms[0].ID != "mattermost-main" {
		t.Fatalf("unexpected platforms: %+v", got.Platforms)
	}
}

func TestValidateRejectsBadVersion(t *testing.T) {
	cfg := Default()
	cfg.Version = 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestValidateRejectsDuplicateID(t *testing.T) {
	cfg := Default()
	cfg.Platforms = append(cfg.Platforms, cfg.Platforms[0])
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate platform id")
	}
}

func TestValidateRejectsBadSlackTokens(t *testing.T) {
	cfg := Default()
	cfg.Platforms = []PlatformConfig{{
		ID:        "slack-main",
		Type:      PlatformSlack,
		BotToken:  "wrong-prefix",
		AppToken:  "xapp-123",
		ChannelID: "C123",
	}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for bad bot token prefix")
	}
}

func TestValidateRejectsUnknownPlatformType(t *testing.T) {
	cfg := Default()
	cfg.Platforms[0].Type = "telegram"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown platform type")
	}
}
