package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("EDIT_LOCK_TTL", "")

	cfg, err := Load("dev")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" || cfg.Env != "dev" {
		t.Fatalf("got %+v", cfg)
	}
	if cfg.EditLockTTL != 15*time.Second {
		t.Fatalf("got EditLockTTL %v", cfg.EditLockTTL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("EDIT_LOCK_TTL", "2s")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load("prod")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9999" || cfg.EditLockTTL != 2*time.Second || cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("got %+v", cfg)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("PERSIST_INTERVAL", "soon")
	if _, err := Load("dev"); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}
