package config

import (
	"fmt"
	"strings"
)

// Допустимые диапазоны.
const (
	MinPort = 1
	MaxPort = 65535
)

// ValidationError — ошибка одного параметра.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors — набор ошибок конфигурации.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	parts := make([]string, len(e))
	for i, err := range e {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(parts, "\n  - "))
}

// Validate проверяет конфигурацию. Возвращает nil или ValidationErrors.
func (c Config) Validate() error {
	var errs ValidationErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if c.DatabaseURL == "" {
		add("DB_URL", "required")
	}
	if c.DBMaxConns <= 0 {
		add("DB_MAX_CONNS", "must be positive")
	}

	switch c.RouterMode {
	case "aggregator":
		if c.AggregatorURL == "" {
			add("AGGREGATOR_URL", "required for aggregator router")
		}
	case "pool":
		if c.PoolAPIURL == "" {
			add("POOL_API_URL", "required for pool router")
		}
	default:
		add("ROUTER_MODE", fmt.Sprintf("must be aggregator or pool, got %q", c.RouterMode))
	}

	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		add("COMMITMENT", fmt.Sprintf("must be processed, confirmed or finalized, got %q", c.Commitment))
	}

	if c.RateLimitRPS <= 0 {
		add("RATE_LIMIT_RPS", "must be positive")
	}
	if c.RateLimitBurst <= 0 {
		add("RATE_LIMIT_BURST", "must be positive")
	}

	for _, f := range []struct {
		field string
		value int
	}{
		{"TRADES_CONCURRENCY", c.TradesConcurrency},
		{"DISTRIBUTIONS_CONCURRENCY", c.DistributionsConcurrency},
		{"WEBHOOKS_CONCURRENCY", c.WebhooksConcurrency},
		{"MAX_ATTEMPTS", c.MaxAttempts},
	} {
		if f.value <= 0 {
			add(f.field, "must be positive")
		}
	}

	if c.CircuitBreakerThreshold < 0 {
		add("CIRCUIT_BREAKER_THRESHOLD", "must not be negative")
	}
	if c.CircuitBreakerThreshold > 0 && c.CircuitBreakerCooldown <= 0 {
		add("CIRCUIT_BREAKER_COOLDOWN", "must be positive when circuit breaker is enabled")
	}

	durations := []struct {
		field string
		value int64
	}{
		{"ROUTER_TIMEOUT", int64(c.RouterTimeout)},
		{"CONFIRM_TIMEOUT", int64(c.ConfirmTimeout)},
		{"BUNDLE_TIMEOUT", int64(c.BundleTimeout)},
		{"WEBHOOK_TIMEOUT", int64(c.WebhookTimeout)},
		{"AGGREGATE_INTERVAL", int64(c.AggregateInterval)},
	}
	for _, d := range durations {
		if d.value <= 0 {
			add(d.field, "must be positive")
		}
	}

	for _, p := range []struct {
		field string
		port  int
	}{
		{"API_PORT", c.APIPort},
		{"WORKER_PORT", c.WorkerPort},
		{"AGGREGATOR_PORT", c.AggregatorPort},
	} {
		if p.port < MinPort || p.port > MaxPort {
			add(p.field, fmt.Sprintf("must be between %d and %d", MinPort, MaxPort))
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// RequireVault проверяет наличие ключа хранилища (нужен воркеру).
func (c Config) RequireVault() error {
	if c.VaultKey == "" {
		return ValidationErrors{{Field: "VAULT_KEY", Message: "required"}}
	}
	return nil
}
