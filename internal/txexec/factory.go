package txexec

import (
	"errors"
	"sync"
	"time"

	"github.com/shaiso/Swarm/internal/chain"
	"github.com/shaiso/Swarm/internal/circuitbreaker"
	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/relay"
	"github.com/shaiso/Swarm/internal/retry"
)

// ErrMissingRelayKey — relay включён, но ключ не задан.
var ErrMissingRelayKey = errors.New("relay enabled but relay key is missing")

// Defaults — глобальные значения конфигурации исполнителя.
type Defaults struct {
	RelayEndpoint          string
	TipLamports            uint64
	BundleTransactionLimit int
	BundleTimeout          time.Duration
}

// ResolveConfig собирает ExecutorConfig с приоритетом
// настройка пользователя > параметр кампании > выключено.
func ResolveConfig(user *domain.UserSettings, campaign domain.CampaignParams, defaults Defaults) domain.ExecutorConfig {
	cfg := domain.ExecutorConfig{
		RelayEndpoint:          defaults.RelayEndpoint,
		TipLamports:            defaults.TipLamports,
		BundleTransactionLimit: defaults.BundleTransactionLimit,
		BundleTimeoutMs:        defaults.BundleTimeout.Milliseconds(),
	}

	if campaign.UseRelay != nil {
		cfg.UseRelay = *campaign.UseRelay
	}
	if campaign.TipLamports > 0 {
		cfg.TipLamports = campaign.TipLamports
	}

	if user != nil {
		if user.UseRelay != nil {
			cfg.UseRelay = *user.UseRelay
		}
		cfg.RelayKey = user.RelayKey
		if user.RelayEndpoint != "" {
			cfg.RelayEndpoint = user.RelayEndpoint
		}
		if user.TipLamports > 0 {
			cfg.TipLamports = user.TipLamports
		}
		if user.BundleTimeoutMs > 0 {
			cfg.BundleTimeoutMs = user.BundleTimeoutMs
		}
	}

	return cfg
}

// RelayDialer создаёт клиента block engine.
type RelayDialer func(endpoint, key string) relay.Client

// Factory выбирает исполнителя по конфигурации.
type Factory struct {
	chain  chain.Client
	direct *Direct
	dial   RelayDialer

	mu     sync.Mutex
	relays map[string]relay.Client
}

// NewFactory создаёт Factory. dial может быть nil — тогда используется
// relay.New с общим circuit breaker.
func NewFactory(chainClient chain.Client, direct DirectConfig, dial RelayDialer, breaker *circuitbreaker.Breaker) *Factory {
	if dial == nil {
		dial = func(endpoint, key string) relay.Client {
			return relay.New(endpoint, key, 0, breaker)
		}
	}
	return &Factory{
		chain:  chainClient,
		direct: NewDirect(chainClient, direct),
		dial:   dial,
		relays: make(map[string]relay.Client),
	}
}

// For возвращает исполнителя для cfg.
//
// UseRelay без RelayKey или RelayEndpoint — ошибка конфигурации.
func (f *Factory) For(cfg domain.ExecutorConfig) (Executor, error) {
	if !cfg.UseRelay {
		return f.direct, nil
	}

	if cfg.RelayKey == "" {
		return nil, retry.Configurationf("%w", ErrMissingRelayKey)
	}
	if cfg.RelayEndpoint == "" {
		return nil, retry.Configurationf("relay enabled but relay endpoint is missing")
	}

	return NewRelayedBundle(f.chain, f.relayClient(cfg.RelayEndpoint, cfg.RelayKey), BundleConfig{
		TipLamports:      cfg.TipLamports,
		TransactionLimit: cfg.BundleTransactionLimit,
		Timeout:          time.Duration(cfg.BundleTimeoutMs) * time.Millisecond,
	}), nil
}

// relayClient кэширует клиентов по паре endpoint/key.
func (f *Factory) relayClient(endpoint, key string) relay.Client {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := endpoint + "|" + key
	if c, ok := f.relays[id]; ok {
		return c
	}
	c := f.dial(endpoint, key)
	f.relays[id] = c
	return c
}
