package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
database:
  url: "postgres://localhost/extraction"
redis:
  url: "localhost:6379"
`)

	cfg, err := LoadConfig(path, false)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.HTTP.Port != 8080 {
		t.Errorf("port default: got %d", cfg.HTTP.Port)
	}
	// The submission lock must expire fast after a crash, not linger.
	if cfg.Redis.LockTTL != 30*time.Second {
		t.Errorf("lock ttl default: got %v", cfg.Redis.LockTTL)
	}
	if cfg.Engine.SinglePassMaxPages != 60 || cfg.Engine.ParallelMinPages != 150 || cfg.Engine.WindowPages != 25 {
		t.Errorf("strategy defaults: got %+v", cfg.Engine)
	}
	if cfg.Engine.JobTokenCeiling != 2_000_000 || cfg.Engine.JobWallClock != 30*time.Minute {
		t.Errorf("ceiling defaults: got %+v", cfg.Engine)
	}
}

func TestLoadConfig_RejectsInvertedThresholds(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
database:
  url: "postgres://localhost/extraction"
redis:
  url: "localhost:6379"
engine:
  single_pass_max_pages: 200
  parallel_min_pages: 150
`)

	if _, err := LoadConfig(path, false); err == nil {
		t.Fatal("expected threshold validation to fail")
	}
}
