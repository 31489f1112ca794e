// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds everything the service reads at startup. Redis and Postgres
// are optional: an empty address disables the corresponding collaborator.
type Config struct {
	Port string
	Env  string

	RedisAddr   string
	DatabaseURL string

	EditLockTTL     time.Duration
	SweepInterval   time.Duration
	PersistInterval time.Duration
}

// Load reads configuration from environment variables with sensible
// defaults for local development.
func Load(env string) (*Config, error) {
	cfg := &Config{
		Port:            getenv("PORT", "8080"),
		Env:             env,
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		EditLockTTL:     15 * time.Second,
		SweepInterval:   5 * time.Second,
		PersistInterval: 30 * time.Second,
	}

	var err error
	if cfg.EditLockTTL, err = getduration("EDIT_LOCK_TTL", cfg.EditLockTTL); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getduration("EDIT_LOCK_SWEEP_INTERVAL", cfg.SweepInterval); err != nil {
		return nil, err
	}
	if cfg.PersistInterval, err = getduration("PERSIST_INTERVAL", cfg.PersistInterval); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
