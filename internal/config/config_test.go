package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SWARM_CONFIG", "")
	t.Setenv("TRADES_CONCURRENCY", "")
	t.Setenv("AGGREGATE_INTERVAL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TradesConcurrency != 3 {
		t.Errorf("TradesConcurrency: expected 3, got %d", cfg.TradesConcurrency)
	}
	if cfg.AggregateInterval != 5*time.Second {
		t.Errorf("AggregateInterval: expected 5s, got %v", cfg.AggregateInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should be valid: %v", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swarm.yaml")
	yaml := "router_mode: pool\npool_api_url: http://pools.local\ntrades_concurrency: 4\nconfirm_timeout: 90s\n"
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("SWARM_CONFIG", path)
	t.Setenv("TRADES_CONCURRENCY", "16")
	t.Setenv("ROUTER_MODE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RouterMode != "pool" || cfg.PoolAPIURL != "http://pools.local" {
		t.Errorf("file values not applied: %q %q", cfg.RouterMode, cfg.PoolAPIURL)
	}
	if cfg.ConfirmTimeout != 90*time.Second {
		t.Errorf("ConfirmTimeout: expected 90s, got %v", cfg.ConfirmTimeout)
	}
	if cfg.TradesConcurrency != 16 {
		t.Errorf("env must win over file: got %d", cfg.TradesConcurrency)
	}
	if cfg.WebhooksConcurrency != 10 {
		t.Errorf("missing file keys keep defaults: got %d", cfg.WebhooksConcurrency)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("SWARM_CONFIG", "")
	t.Setenv("MAX_ATTEMPTS", "three")
	t.Setenv("WEBHOOK_TIMEOUT", "soon")

	_, err := Load()
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected ValidationErrors, got %v", err)
	}
	if len(verrs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(verrs), verrs)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("SWARM_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.RouterMode = "dex"
	cfg.TradesConcurrency = 0
	cfg.APIPort = 70000
	cfg.CircuitBreakerCooldown = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}

	msg := err.Error()
	for _, field := range []string{"ROUTER_MODE", "TRADES_CONCURRENCY", "API_PORT", "CIRCUIT_BREAKER_COOLDOWN"} {
		if !strings.Contains(msg, field) {
			t.Errorf("expected %s in %q", field, msg)
		}
	}
}

func TestRequireVault(t *testing.T) {
	cfg := Default()
	if err := cfg.RequireVault(); err == nil {
		t.Error("expected error without VAULT_KEY")
	}
	cfg.VaultKey = "secret"
	if err := cfg.RequireVault(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestMaskedJSON(t *testing.T) {
	cfg := Default()
	cfg.DatabaseURL = "postgres://swarm:hunter2@db:5432/swarm"
	cfg.VaultKey = "topsecret"

	out := cfg.MaskedJSON()
	if strings.Contains(out, "hunter2") || strings.Contains(out, "topsecret") {
		t.Errorf("secrets leaked: %s", out)
	}
	if !strings.Contains(out, "swarm:%2A%2A%2A@db") && !strings.Contains(out, "swarm:***@db") {
		t.Errorf("masked url missing: %s", out)
	}
}
