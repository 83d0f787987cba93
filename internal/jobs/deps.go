package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"github.com/shaiso/Swarm/internal/distribution"
	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/trading"
	"github.com/shaiso/Swarm/internal/txexec"
	"github.com/shaiso/Swarm/internal/webhook"
	"github.com/shaiso/Swarm/internal/worker"
)

// CampaignStore реализуется repo.CampaignRepo.
type CampaignStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
}

// RunStore реализуется repo.RunRepo.
type RunStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CampaignRun, error)
}

// WalletStore реализуется repo.WalletRepo.
type WalletStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	CreateBatch(ctx context.Context, wallets []domain.Wallet) error
}

// SettingsStore реализуется repo.SettingsRepo.
type SettingsStore interface {
	Get(ctx context.Context, userID uuid.UUID) (*domain.UserSettings, error)
}

// ExecutionStore реализуется repo.ExecutionRepo.
type ExecutionStore interface {
	Insert(ctx context.Context, e *domain.Execution) (bool, error)
}

// Trader реализуется trading.Service.
type Trader interface {
	ExecuteBuy(ctx context.Context, req trading.BuyRequest) (*trading.TradeResult, error)
	ExecuteSell(ctx context.Context, req trading.SellRequest) (*trading.TradeResult, error)
}

// Distributor реализуется distribution.Service.
type Distributor interface {
	DistributeSol(ctx context.Context, source solana.PrivateKey, count int, progress distribution.ProgressFunc) (*distribution.Result, error)
}

// KeyVault реализуется vault.Vault.
type KeyVault interface {
	SealKey(key solana.PrivateKey) ([]byte, error)
	OpenKey(sealed []byte) (solana.PrivateKey, error)
}

// Notifier реализуется webhook.Notifier.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventID, event string, payload any) (int, error)
}

// EventPublisher реализуется mq.Publisher и realtime.Hub.
type EventPublisher interface {
	Broadcast(ctx context.Context, event domain.Event) error
}

// Deliverer реализуется webhook.Deliverer.
type Deliverer interface {
	Deliver(ctx context.Context, p webhook.DeliverPayload) (*domain.WebhookDelivery, error)
}

// Deps — зависимости обработчиков.
// Settings, Executions, Notifier и Events опциональны.
type Deps struct {
	Campaigns  CampaignStore
	Runs       RunStore
	Wallets    WalletStore
	Settings   SettingsStore
	Executions ExecutionStore
	Vault      KeyVault

	Trader      Trader
	Distributor Distributor
	Deliverer   Deliverer

	Notifier Notifier
	Events   EventPublisher

	// ExecutorDefaults — глобальные значения для txexec.ResolveConfig.
	ExecutorDefaults txexec.Defaults

	Logger *slog.Logger
	Now    func() time.Time
}

// Register регистрирует обработчики, для которых заданы сервисы.
func Register(reg *worker.Registry, d Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	if d.Trader != nil {
		reg.Register(domain.JobTypeBuy, &TradeHandler{side: trading.SideBuy, deps: d})
		reg.Register(domain.JobTypeSell, &TradeHandler{side: trading.SideSell, deps: d})
	}
	if d.Distributor != nil {
		reg.Register(domain.JobTypeDistribute, &DistributeHandler{deps: d})
	}
	if d.Deliverer != nil {
		reg.Register(domain.JobTypeWebhookDelivery, &WebhookHandler{deliverer: d.Deliverer})
	}
}
