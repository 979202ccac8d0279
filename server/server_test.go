package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")
	raw := `{"port": 8080, "redis": {"addr": "localhost:6380", "db": 2}}`
	if err := os.WriteFile(cfgPath, []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := getConfig(cfgPath)
	if err != nil {
		t.Fatalf("cannot read config: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Port)
	}
	if cfg.Redis.Addr != "localhost:6380" || cfg.Redis.Idx != 2 {
		t.Errorf("redis = %+v", cfg.Redis)
	}
}

func TestGetConfigDefaults(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.json")

	cfg, err := getConfig(cfgPath)
	if err != nil {
		t.Fatalf("cannot read config: %v", err)
	}
	if cfg.Port != 443 || cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("defaults = %+v", cfg)
	}

	// The file must now exist with the defaults written back.
	if _, err := os.Stat(cfgPath); err != nil {
		t.Error("config.json was not created")
	}
}
