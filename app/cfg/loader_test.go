package cfg

import (
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}

	version := GetVersion()
	if version != "dev" && version != "unknown" {
		t.Logf("Version: %s", version)
	}
}

func TestLoadArgs_Defaults(t *testing.T) {
	cfg, err := LoadArgs(nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.DBPath != "data/rss-relay.db" {
		t.Errorf("Expected default db path, got '%s'", cfg.DBPath)
	}
	if cfg.ConcurrentRequests != 20 {
		t.Errorf("Expected 20 concurrent requests, got %d", cfg.ConcurrentRequests)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %s", cfg.HTTPTimeout)
	}
	if cfg.Version != GetVersion() {
		t.Errorf("Expected version '%s', got '%s'", GetVersion(), cfg.Version)
	}
}

func TestLoadArgs_Flags(t *testing.T) {
	cfg, err := LoadArgs([]string{
		"--config", "instances.yaml",
		"--port", "9090",
		"--fallback-user-agent", "Agent A",
		"--fallback-user-agent", "Agent B",
		"--post-min-interval", "5",
		"--log-format", "json",
		"--log-file", "/tmp/relay.log",
		"--debug",
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.ConfigPath != "instances.yaml" {
		t.Errorf("Expected config path 'instances.yaml', got '%s'", cfg.ConfigPath)
	}
	if cfg.Port != "9090" {
		t.Errorf("Expected port '9090', got '%s'", cfg.Port)
	}
	if len(cfg.FallbackUserAgents) != 2 || cfg.FallbackUserAgents[1] != "Agent B" {
		t.Errorf("Expected two fallback user agents, got %v", cfg.FallbackUserAgents)
	}
	if cfg.PostMinInterval != 5*time.Second {
		t.Errorf("Expected 5s post interval, got %s", cfg.PostMinInterval)
	}
	if cfg.Log.Format != "json" || cfg.Log.File != "/tmp/relay.log" || !cfg.Log.Debug {
		t.Errorf("Unexpected log configuration: %+v", cfg.Log)
	}
}

func TestLoadArgs_PositionalConfigPath(t *testing.T) {
	cfg, err := LoadArgs([]string{"--config", "flag.yaml", "positional.yaml"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.ConfigPath != "positional.yaml" {
		t.Errorf("Expected positional path to win, got '%s'", cfg.ConfigPath)
	}
}

func TestLoadArgs_PostIntervalFloor(t *testing.T) {
	cfg, err := LoadArgs([]string{"--post-min-interval", "0"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.PostMinInterval != time.Second {
		t.Errorf("Expected interval floored to 1s, got %s", cfg.PostMinInterval)
	}
}

func TestLoadArgs_InvalidLogFormat(t *testing.T) {
	if _, err := LoadArgs([]string{"--log-format", "xml"}); err == nil {
		t.Error("Expected error for unsupported log format")
	}
}

func TestApplyTimezone(t *testing.T) {
	original := time.Local
	defer func() { time.Local = original }()

	if err := applyTimezone("America/New_York"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if time.Local.String() != "America/New_York" {
		t.Errorf("Expected America/New_York, got %s", time.Local)
	}

	if err := applyTimezone("Not/AZone"); err == nil {
		t.Error("Expected error for invalid timezone")
	}
	if err := applyTimezone(""); err != nil {
		t.Errorf("Empty timezone should be a no-op, got %v", err)
	}
}
