package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/mq"
	"github.com/shaiso/Swarm/internal/queue"
)

// CampaignController — команды жизненного цикла. Реализуется coordinator.Coordinator.
type CampaignController interface {
	Start(ctx context.Context, campaignID uuid.UUID) (*domain.CampaignRun, error)
	Pause(ctx context.Context, campaignID uuid.UUID) error
	Resume(ctx context.Context, campaignID uuid.UUID) error
	Stop(ctx context.Context, campaignID uuid.UUID) error
}

// RunReader реализуется repo.RunRepo.
type RunReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.CampaignRun, error)
	ListByCampaign(ctx context.Context, campaignID uuid.UUID, limit int) ([]domain.CampaignRun, error)
}

// JobReader реализуется repo.JobRepo.
type JobReader interface {
	GetByID(ctx context.Context, id string) (*domain.JobRecord, error)
}

// DeliveryReader реализуется repo.DeliveryRepo.
type DeliveryReader interface {
	ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit int) ([]domain.WebhookDelivery, error)
}

// DeadLetterSource реализуется mq.DeadLetterReader.
type DeadLetterSource interface {
	Fetch(ctx context.Context, queue string, limit int, remove bool) ([]mq.DeadLetter, error)
}

// EventSource реализуется realtime.EventBuffer.
type EventSource interface {
	Since(campaignID uuid.UUID, since time.Time, limit int) []domain.Event
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	campaigns   CampaignController
	runs        RunReader
	jobs        JobReader
	deliveries  DeliveryReader
	deadLetters DeadLetterSource
	events      EventSource
	broker      queue.Broker
	stream      http.Handler
	logger      *slog.Logger
}

// Config — конфигурация для создания Handler.
// DeadLetters, Events, Deliveries и Stream опциональны: без них
// соответствующие маршруты не регистрируются.
type Config struct {
	Campaigns   CampaignController
	Runs        RunReader
	Jobs        JobReader
	Deliveries  DeliveryReader
	DeadLetters DeadLetterSource
	Events      EventSource
	Broker      queue.Broker

	// Stream — WebSocket endpoint событий (realtime.Hub).
	Stream http.Handler

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		campaigns:   cfg.Campaigns,
		runs:        cfg.Runs,
		jobs:        cfg.Jobs,
		deliveries:  cfg.Deliveries,
		deadLetters: cfg.DeadLetters,
		events:      cfg.Events,
		broker:      cfg.Broker,
		stream:      cfg.Stream,
		logger:      logger,
	}
}
