package config

import (
	"testing"
	"time"
)

func TestInit_Defaults(t *testing.T) {
	cfg := Init()

	if cfg.Mode != "server" {
		t.Fatalf("expected default mode server, got %q", cfg.Mode)
	}
	if cfg.StoreBackend != "cassandra" {
		t.Fatalf("expected default store backend cassandra, got %q", cfg.StoreBackend)
	}
	if cfg.JWTTTL != 24*time.Hour {
		t.Fatalf("expected default JWT TTL 24h, got %s", cfg.JWTTTL)
	}
	if cfg.TagsCacheTTL != 5*time.Minute {
		t.Fatalf("expected default tags cache TTL 5m, got %s", cfg.TagsCacheTTL)
	}
}

func TestInit_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "MONGO")
	t.Setenv("MONGO_TIMEOUT", "3s")
	t.Setenv("KAFKA_READ_TIMEOUT", "not-a-duration")
	t.Setenv("BCRYPT_COST", "12")

	cfg := Init()

	if cfg.StoreBackend != "mongo" {
		t.Fatalf("expected lowercased backend mongo, got %q", cfg.StoreBackend)
	}
	if cfg.MongoTimeout != 3*time.Second {
		t.Fatalf("expected mongo timeout 3s, got %s", cfg.MongoTimeout)
	}
	if cfg.KafkaReadTO != 10*time.Second {
		t.Fatalf("invalid duration should fall back to 10s, got %s", cfg.KafkaReadTO)
	}
	if cfg.BcryptCost != 12 {
		t.Fatalf("expected bcrypt cost 12, got %d", cfg.BcryptCost)
	}
}

func TestParseDuration(t *testing.T) {
	if d := parseDuration("250ms", time.Second); d != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", d)
	}
	if d := parseDuration("", time.Second); d != time.Second {
		t.Fatalf("expected fallback 1s, got %s", d)
	}
}
