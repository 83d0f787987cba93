// Swarm Worker — выполняет jobs очередей trades, distributions и webhooks.
//
// Worker:
//   - Берёт jobs из Redis-брокера (lease, priority, delay)
//   - Выполняет buy/sell, распределение SOL и доставку webhooks
//   - Повторяет с backoff, исчерпанные jobs отправляет в DLQ (RabbitMQ)
//   - Публикует события кампаний в swarm.events
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/shaiso/Swarm/internal/chain"
	"github.com/shaiso/Swarm/internal/circuitbreaker"
	"github.com/shaiso/Swarm/internal/config"
	"github.com/shaiso/Swarm/internal/distribution"
	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/idempotency"
	"github.com/shaiso/Swarm/internal/jobs"
	"github.com/shaiso/Swarm/internal/metrics"
	"github.com/shaiso/Swarm/internal/mq"
	"github.com/shaiso/Swarm/internal/queue"
	"github.com/shaiso/Swarm/internal/repo"
	"github.com/shaiso/Swarm/internal/telemetry"
	"github.com/shaiso/Swarm/internal/trading"
	"github.com/shaiso/Swarm/internal/txexec"
	"github.com/shaiso/Swarm/internal/vault"
	"github.com/shaiso/Swarm/internal/webhook"
	"github.com/shaiso/Swarm/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting swarm-worker")

	cfg, err := config.Load()
	if err == nil {
		err = cfg.RequireVault()
	}
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Debug("configuration loaded", "config", cfg.MaskedJSON())

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	keys, err := vault.New(cfg.VaultKey)
	if err != nil {
		logger.Error("failed to init vault", "error", err)
		os.Exit(1)
	}

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Redis: брокер jobs и ключи идемпотентности
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	logger.Info("redis connected")

	broker := queue.WithMaxAttempts(queue.NewRedisBroker(rdb), cfg.MaxAttempts)

	// RabbitMQ: DLQ и события (обязателен)
	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to rabbitmq", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()

	if err := mq.SetupTopology(ctx, mqConn, domain.QueueTrades, domain.QueueDistributions, domain.QueueWebhooks); err != nil {
		logger.Error("failed to setup topology", "error", err)
		os.Exit(1)
	}
	publisher := mq.NewPublisher(mqConn, logger)
	logger.Info("RabbitMQ connected")

	sink := metrics.NewPrometheusSink(prometheus.DefaultRegisterer)

	// Репозитории
	campaignRepo := repo.NewCampaignRepo(pool)
	runRepo := repo.NewRunRepo(pool)
	walletRepo := repo.NewWalletRepo(pool)
	settingsRepo := repo.NewSettingsRepo(pool)
	executionRepo := repo.NewExecutionRepo(pool)
	jobRepo := repo.NewJobRepo(pool)
	webhookRepo := repo.NewWebhookRepo(pool)
	deliveryRepo := repo.NewDeliveryRepo(pool)

	// Сеть: RPC и relay за общим circuit breaker
	breaker := circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
	rpc := chain.NewRPC(cfg.SolanaRPCURL, chain.Commitment(cfg.Commitment), breaker)
	defer rpc.Close()

	direct := txexec.DirectConfig{
		Commitment:     chain.Commitment(cfg.Commitment),
		ConfirmTimeout: cfg.ConfirmTimeout,
	}
	executors := txexec.NewFactory(rpc, direct, nil, breaker)

	routerURL := cfg.AggregatorURL
	if cfg.RouterMode == trading.RouterPool {
		routerURL = cfg.PoolAPIURL
	}
	router, err := trading.NewRouter(cfg.RouterMode, routerURL, cfg.RouterTimeout)
	if err != nil {
		logger.Error("failed to create swap router", "error", err)
		os.Exit(1)
	}

	trader := trading.NewService(trading.Config{
		Chain:     rpc,
		Router:    router,
		Executors: executors,
		Limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst),
		Metrics:   sink,
		Logger:    logger,
	})

	distributor := distribution.NewService(distribution.Config{
		Chain:             rpc,
		Executor:          txexec.NewDirect(rpc, direct),
		PerWalletLamports: cfg.DistributeLamports,
		Metrics:           sink,
		Logger:            logger,
	})

	deliverer := webhook.NewDeliverer(webhook.DelivererConfig{
		Webhooks:   webhookRepo,
		Deliveries: deliveryRepo,
		Enqueuer:   broker,
		Sender:     webhook.NewSender(cfg.WebhookTimeout),
		Breaker:    circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown),
		Metrics:    sink,
		Logger:     logger,
	})

	registry := worker.NewRegistry()
	jobs.Register(registry, jobs.Deps{
		Campaigns:   campaignRepo,
		Runs:        runRepo,
		Wallets:     walletRepo,
		Settings:    settingsRepo,
		Executions:  executionRepo,
		Vault:       keys,
		Trader:      trader,
		Distributor: distributor,
		Deliverer:   deliverer,
		Notifier:    webhook.NewNotifier(webhookRepo, broker, logger),
		Events:      publisher,
		ExecutorDefaults: txexec.Defaults{
			RelayEndpoint: cfg.RelayEndpoint,
			TipLamports:   cfg.TipLamports,
			BundleTimeout: cfg.BundleTimeout,
		},
		Logger: logger,
	})

	store := idempotency.NewRedisStore(rdb)

	// lease покрывает все попытки подтверждения одного job
	leaseFor := max(5*time.Minute, time.Duration(cfg.MaxAttempts)*max(cfg.ConfirmTimeout, cfg.BundleTimeout)+time.Minute)

	newPool := func(queueName string, concurrency int) *worker.Pool {
		return worker.NewPool(worker.PoolConfig{
			Queue:       queueName,
			Concurrency: concurrency,
			Broker:      broker,
			Registry:    registry,
			Idempotency: store,
			DeadLetters: publisher,
			Recorder:    jobRepo,
			Metrics:     sink,
			LeaseFor:    leaseFor,
			Logger:      logger,
		})
	}

	manager := worker.NewManager(logger,
		newPool(domain.QueueTrades, cfg.TradesConcurrency),
		newPool(domain.QueueDistributions, cfg.DistributionsConcurrency),
		newPool(domain.QueueWebhooks, cfg.WebhooksConcurrency),
	)

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: config.Addr(cfg.WorkerPort), Handler: mux}
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Блокируемся до сигнала, пулы дорабатывают текущие jobs
	if err := manager.Run(ctx); err != nil {
		logger.Error("worker pools failed", "error", err)
	}

	shutdown(server, logger)
	logger.Info("swarm-worker stopped")
}

func shutdown(server *http.Server, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
