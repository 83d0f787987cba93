package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/queue"
	"github.com/shaiso/Swarm/internal/repo"
	"github.com/shaiso/Swarm/internal/retry"
)

// CampaignStore — доступ к кампаниям. Реализуется repo.CampaignRepo.
type CampaignStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Campaign, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to domain.CampaignStatus) error
}

// RunStore — доступ к runs. Реализуется repo.RunRepo.
type RunStore interface {
	Create(ctx context.Context, run *domain.CampaignRun) error
	UpdateActiveStatus(ctx context.Context, campaignID uuid.UUID, status domain.RunStatus) (uuid.UUID, error)
}

// WalletStore — доступ к кошелькам. Реализуется repo.WalletRepo.
type WalletStore interface {
	ListActiveByCampaign(ctx context.Context, campaignID uuid.UUID) ([]domain.Wallet, error)
}

// EventPublisher рассылает события кампании. Реализуется mq.Publisher.
type EventPublisher interface {
	Broadcast(ctx context.Context, event domain.Event) error
}

// Notifier уведомляет webhooks пользователя. Реализуется webhook.Notifier.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, eventID, event string, payload any) (int, error)
}

// ManagedQueues — очереди, из которых удаляются jobs кампании.
// Доставки webhooks не удаляются: уведомления о прошлых событиях досылаются.
var ManagedQueues = []string{domain.QueueTrades, domain.QueueDistributions}

// Config — зависимости Coordinator.
type Config struct {
	Campaigns CampaignStore
	Runs      RunStore
	Wallets   WalletStore
	Broker    queue.Broker

	// Events и Notifier опциональны.
	Events   EventPublisher
	Notifier Notifier

	// Queues — очищаемые очереди (default: ManagedQueues).
	Queues []string

	// Stagger — сдвиг первого buy между кошельками.
	Stagger time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// Coordinator управляет жизненным циклом кампаний.
type Coordinator struct {
	campaigns CampaignStore
	runs      RunStore
	wallets   WalletStore
	broker    queue.Broker
	events    EventPublisher
	notifier  Notifier

	queues  []string
	stagger time.Duration

	logger *slog.Logger
	now    func() time.Time
}

// New создаёт Coordinator.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		campaigns: cfg.Campaigns,
		runs:      cfg.Runs,
		wallets:   cfg.Wallets,
		broker:    cfg.Broker,
		events:    cfg.Events,
		notifier:  cfg.Notifier,
		queues:    cfg.Queues,
		stagger:   cfg.Stagger,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if len(c.queues) == 0 {
		c.queues = ManagedQueues
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Start запускает кампанию из DRAFT: создаёт run и ставит buy jobs.
func (c *Coordinator) Start(ctx context.Context, campaignID uuid.UUID) (*domain.CampaignRun, error) {
	campaign, err := c.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	if campaign.Status != domain.CampaignStatusDraft {
		return nil, invalidTransition(campaign.Status, "start")
	}

	wallets, err := c.activeWallets(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if err := c.transition(ctx, campaign, domain.CampaignStatusActive); err != nil {
		return nil, err
	}

	run := &domain.CampaignRun{
		ID:         uuid.New(),
		CampaignID: campaignID,
		Status:     domain.RunStatusRunning,
		StartedAt:  c.now().UTC(),
	}
	if err := c.runs.Create(ctx, run); err != nil {
		if rbErr := c.campaigns.TransitionStatus(ctx, campaignID, domain.CampaignStatusActive, domain.CampaignStatusDraft); rbErr != nil {
			c.logger.Error("failed to roll back campaign status", "campaign_id", campaignID, "error", rbErr)
		}
		if errors.Is(err, repo.ErrAlreadyExists) {
			return nil, retry.Businessf("%w: campaign already has an active run", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("create run: %w", err)
	}

	queued, err := c.enqueueBuys(ctx, campaign, run.ID, wallets)
	if err != nil {
		return run, err
	}

	c.logger.Info("campaign started", "campaign_id", campaignID, "run_id", run.ID, "jobs", queued)
	c.announce(ctx, campaign, run.ID, domain.RunStatusRunning, domain.CampaignStatusActive, map[string]any{"queuedJobs": queued})
	return run, nil
}

// Pause приостанавливает ACTIVE кампанию.
func (c *Coordinator) Pause(ctx context.Context, campaignID uuid.UUID) error {
	campaign, err := c.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("get campaign: %w", err)
	}
	if campaign.Status != domain.CampaignStatusActive {
		return invalidTransition(campaign.Status, "pause")
	}

	return c.halt(ctx, campaign, domain.RunStatusPaused, domain.CampaignStatusPaused)
}

// Stop останавливает ACTIVE или PAUSED кампанию окончательно.
func (c *Coordinator) Stop(ctx context.Context, campaignID uuid.UUID) error {
	campaign, err := c.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("get campaign: %w", err)
	}
	if !campaign.Status.CanTransitionTo(domain.CampaignStatusStopped) {
		return invalidTransition(campaign.Status, "stop")
	}

	return c.halt(ctx, campaign, domain.RunStatusStopped, domain.CampaignStatusStopped)
}

// Resume возобновляет PAUSED кампанию.
// В любом другом статусе возвращает ErrInvalidTransition, ничего не меняя.
func (c *Coordinator) Resume(ctx context.Context, campaignID uuid.UUID) error {
	campaign, err := c.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("get campaign: %w", err)
	}
	if campaign.Status != domain.CampaignStatusPaused {
		return invalidTransition(campaign.Status, "resume")
	}

	wallets, err := c.activeWallets(ctx, campaignID)
	if err != nil {
		return err
	}

	if err := c.transition(ctx, campaign, domain.CampaignStatusActive); err != nil {
		return err
	}

	runID, err := c.runs.UpdateActiveStatus(ctx, campaignID, domain.RunStatusRunning)
	if err != nil {
		if rbErr := c.campaigns.TransitionStatus(ctx, campaignID, domain.CampaignStatusActive, domain.CampaignStatusPaused); rbErr != nil {
			c.logger.Error("failed to roll back campaign status", "campaign_id", campaignID, "error", rbErr)
		}
		return fmt.Errorf("resume run: %w", err)
	}

	queued, err := c.enqueueBuys(ctx, campaign, runID, wallets)
	if err != nil {
		return err
	}

	c.logger.Info("campaign resumed", "campaign_id", campaignID, "run_id", runID, "jobs", queued)
	c.announce(ctx, campaign, runID, domain.RunStatusRunning, domain.CampaignStatusActive, map[string]any{"queuedJobs": queued})
	return nil
}

// halt общий путь pause и stop: очистка очередей, run, кампания.
func (c *Coordinator) halt(ctx context.Context, campaign *domain.Campaign, runStatus domain.RunStatus, next domain.CampaignStatus) error {
	removed, err := queue.RemoveCampaignJobs(ctx, c.broker, campaign.ID, c.queues...)
	if err != nil {
		return fmt.Errorf("remove campaign jobs: %w", err)
	}

	runID, err := c.runs.UpdateActiveStatus(ctx, campaign.ID, runStatus)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		c.logger.Warn("campaign has no active run", "campaign_id", campaign.ID)
	case err != nil:
		return fmt.Errorf("update run status: %w", err)
	}

	if err := c.transition(ctx, campaign, next); err != nil {
		return err
	}

	// jobs, которые в этот момент выполнялись, могли успеть поставить follow-up
	late, err := queue.RemoveCampaignJobs(ctx, c.broker, campaign.ID, c.queues...)
	if err != nil {
		c.logger.Warn("second sweep of campaign jobs failed", "campaign_id", campaign.ID, "error", err)
	}
	removed += late

	c.logger.Info("campaign halted",
		"campaign_id", campaign.ID,
		"run_id", runID,
		"status", next,
		"removed_jobs", removed,
	)
	c.announce(ctx, campaign, runID, runStatus, next, map[string]any{"removedJobs": removed})
	return nil
}

func (c *Coordinator) transition(ctx context.Context, campaign *domain.Campaign, next domain.CampaignStatus) error {
	err := c.campaigns.TransitionStatus(ctx, campaign.ID, campaign.Status, next)
	if errors.Is(err, repo.ErrInvalidState) {
		return retry.Businessf("%w: campaign status changed concurrently", ErrInvalidTransition)
	}
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	campaign.Status = next
	return nil
}

func (c *Coordinator) activeWallets(ctx context.Context, campaignID uuid.UUID) ([]domain.Wallet, error) {
	wallets, err := c.wallets.ListActiveByCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	if len(wallets) == 0 {
		return nil, retry.Businessf("%w", ErrNoActiveWallets)
	}
	return wallets, nil
}

// enqueueBuys открывает новую цепочку buy → sell для каждого кошелька.
func (c *Coordinator) enqueueBuys(ctx context.Context, campaign *domain.Campaign, runID uuid.UUID, wallets []domain.Wallet) (int, error) {
	for i, w := range wallets {
		chain := uuid.NewString()
		_, err := c.broker.Enqueue(ctx, domain.QueueTrades, domain.JobTypeBuy,
			domain.TradePayload{WalletID: w.ID, Chain: chain},
			queue.EnqueueOptions{
				JobID:      domain.TradeJobID(domain.JobTypeBuy, chain, 0),
				Priority:   campaign.Params.JobPriority,
				Delay:      time.Duration(i) * c.stagger,
				CampaignID: campaign.ID,
				RunID:      runID,
			})
		if err != nil {
			return i, fmt.Errorf("enqueue buy for wallet %s: %w", w.ID, err)
		}
	}
	return len(wallets), nil
}

// announce публикует run-status событие и уведомляет webhooks. Ошибки только логируются.
func (c *Coordinator) announce(ctx context.Context, campaign *domain.Campaign, runID uuid.UUID, runStatus domain.RunStatus, status domain.CampaignStatus, extra map[string]any) {
	data := map[string]any{
		"runId":          runID,
		"status":         runStatus,
		"campaignStatus": status,
	}
	for k, v := range extra {
		data[k] = v
	}
	event := domain.NewEvent(domain.EventTypeRunStatus, campaign.ID, data)

	if c.events != nil {
		if err := c.events.Broadcast(ctx, event); err != nil {
			c.logger.Warn("failed to broadcast run status", "campaign_id", campaign.ID, "error", err)
		}
	}

	if c.notifier != nil {
		payload := map[string]any{
			"campaign_id": campaign.ID,
			"run_id":      runID,
			"status":      status,
		}
		if _, err := c.notifier.Notify(ctx, campaign.UserID, event.ID, domain.EventCampaignStatusChanged, payload); err != nil {
			c.logger.Warn("failed to notify webhooks", "campaign_id", campaign.ID, "error", err)
		}
	}
}

func invalidTransition(from domain.CampaignStatus, command string) error {
	return retry.Businessf("%w: cannot %s campaign in status %s", ErrInvalidTransition, command, from)
}
