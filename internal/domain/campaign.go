package domain

import (
	"time"

	"github.com/google/uuid"
)

// Campaign — торговая кампания по одному токену.
//
// Кампания владеет набором кошельков. При запуске для каждого
// активного кошелька ставится buy job, после покупки — sell job,
// и так по кругу, пока кампания активна.
type Campaign struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	Name      string         `json:"name"`
	TokenMint string         `json:"token_mint"`
	Status    CampaignStatus `json:"status"`
	Params    CampaignParams `json:"params"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CampaignParams — параметры торговли кампании.
type CampaignParams struct {
	// BuyAmountLamports — объём одной покупки в lamports.
	BuyAmountLamports uint64 `json:"buy_amount_lamports"`

	// SellPercent — доля баланса токена для продажи (1..100).
	SellPercent int `json:"sell_percent"`

	// SlippageBps — допустимое проскальзывание в базисных пунктах.
	SlippageBps int `json:"slippage_bps"`

	// Pool — пул для прямого свопа (pump, raydium, ...). Пусто — auto.
	Pool string `json:"pool,omitempty"`

	// SellDelayMs — задержка между покупкой и продажей.
	SellDelayMs int64 `json:"sell_delay_ms"`

	// BuyDelayMs — задержка между продажей и следующей покупкой.
	BuyDelayMs int64 `json:"buy_delay_ms"`

	// JobPriority — приоритет trade jobs кампании.
	JobPriority int `json:"job_priority"`

	// UseRelay — параметр кампании для выбора relayed bundle стратегии.
	// Nil — не задан.
	UseRelay *bool `json:"use_relay,omitempty"`

	// TipLamports — tip для relay (переопределяет глобальный).
	TipLamports uint64 `json:"tip_lamports,omitempty"`
}

// Wallet — кошелёк, участвующий в кампании.
type Wallet struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	CampaignID *uuid.UUID `json:"campaign_id,omitempty"`
	Address    string     `json:"address"`

	// SealedKey — приватный ключ, зашифрованный vault. Никогда не отдаётся наружу.
	SealedKey []byte `json:"-"`

	Active    bool      `json:"active"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UserSettings — пользовательские настройки исполнения транзакций.
type UserSettings struct {
	UserID uuid.UUID `json:"user_id"`

	// UseRelay — пользовательское переопределение стратегии. Nil — не задано.
	UseRelay *bool `json:"use_relay,omitempty"`

	RelayKey        string `json:"-"`
	RelayEndpoint   string `json:"relay_endpoint,omitempty"`
	TipLamports     uint64 `json:"tip_lamports,omitempty"`
	BundleTimeoutMs int64  `json:"bundle_timeout_ms,omitempty"`
}

// ExecutorConfig — конфигурация выбора стратегии исполнения транзакций.
type ExecutorConfig struct {
	UseRelay               bool   `json:"use_relay"`
	RelayKey               string `json:"-"`
	RelayEndpoint          string `json:"relay_endpoint,omitempty"`
	TipLamports            uint64 `json:"tip_lamports,omitempty"`
	BundleTransactionLimit int    `json:"bundle_transaction_limit,omitempty"`
	BundleTimeoutMs        int64  `json:"bundle_timeout_ms,omitempty"`
}
