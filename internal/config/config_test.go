package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("REDIS_ADDR", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Missions.Schedule != "@daily" || cfg.Store.MaxAttempts != 5 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.UseRedis() {
		t.Fatalf("no redis address should mean the memory store")
	}
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := []byte(`
server:
  port: "9000"
redis:
  addr: "localhost:6379"
quiz:
  ttl: "5m"
session:
  questionTimeLimit: "45s"
`)
	if err := os.WriteFile(path, yaml, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PORT", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "postgres://quiz@localhost/quiz")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9000" || !cfg.UseRedis() {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Auth.JWTSecret != "s3cret" || cfg.Postgres.URL != "postgres://quiz@localhost/quiz" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if got := TTLDuration(cfg.Session.QuestionTimeLimit, time.Second); got != 45*time.Second {
		t.Fatalf("expected 45s, got %v", got)
	}

	t.Setenv("PORT", "7000")
	t.Setenv("STORE_BACKEND", "memory")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Server.Port != "7000" || cfg.UseRedis() {
		t.Fatalf("expected env port and memory backend, got %+v", cfg)
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("redis:\n  db: 2\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("REDIS_DB", "abc")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for a non-numeric REDIS_DB")
	}

	t.Setenv("REDIS_DB", "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.DB != 2 {
		t.Fatalf("unset variable should keep the file value, got %d", cfg.Redis.DB)
	}

	t.Setenv("REDIS_DB", "5")
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redis.DB != 5 {
		t.Fatalf("expected REDIS_DB override, got %d", cfg.Redis.DB)
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("empty should fall back, got %v", got)
	}
	if got := TTLDuration("soon", time.Minute); got != time.Minute {
		t.Fatalf("invalid should fall back, got %v", got)
	}
	if got := TTLDuration("90s", time.Minute); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
}
