package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"raidbot/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Limits.CompletionsPerHour != 5 || cfg.Limits.PerAddress != 3 {
		t.Fatalf("unexpected defaults: %+v", cfg.Limits)
	}
	if cfg.ChatTimeout() != 5*time.Second {
		t.Fatalf("chat timeout = %s", cfg.ChatTimeout())
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	doc := []byte(`chat:
  api_base: https://api.example/bot
  token: abc
  timeout_ms: 2000
limits:
  completions_per_hour: 10
broadcast:
  pace_ms: 250
`)
	if err := os.WriteFile(filepath.Join(dir, "raidbot.yml"), doc, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Limits.CompletionsPerHour != 10 {
		t.Fatalf("limit = %d", cfg.Limits.CompletionsPerHour)
	}
	// Values absent from the file keep their defaults.
	if cfg.Limits.PerAddress != 3 {
		t.Fatalf("per_address = %d", cfg.Limits.PerAddress)
	}
	if cfg.Pace() != 250*time.Millisecond {
		t.Fatalf("pace = %s", cfg.Pace())
	}
}

func TestFromYAMLRejectsUnknownFields(t *testing.T) {
	if _, err := config.FromYAML([]byte("chatt:\n  token: x\n")); err == nil {
		t.Fatal("unknown top-level key should fail")
	}
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	cfg.Limits.CompletionsPerHour = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero completion limit should fail validation")
	}
	cfg = config.Default()
	cfg.Chat.APIBase = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing api base should fail validation")
	}
}
