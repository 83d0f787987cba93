// Swarm API — HTTP API управления кампаниями и WebSocket событий.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Swarm/internal/api"
	"github.com/shaiso/Swarm/internal/config"
	"github.com/shaiso/Swarm/internal/coordinator"
	"github.com/shaiso/Swarm/internal/metrics"
	"github.com/shaiso/Swarm/internal/mq"
	"github.com/shaiso/Swarm/internal/queue"
	"github.com/shaiso/Swarm/internal/realtime"
	"github.com/shaiso/Swarm/internal/repo"
	"github.com/shaiso/Swarm/internal/status"
	"github.com/shaiso/Swarm/internal/telemetry"
	"github.com/shaiso/Swarm/internal/webhook"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swarm_api_health_requests_total",
		Help: "Total health checks handled by swarm-api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting swarm-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	broker := queue.WithMaxAttempts(queue.NewRedisBroker(rdb), cfg.MaxAttempts)

	sink := metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
	hub := realtime.NewHub(nil, sink, logger)

	// События идут через RabbitMQ, если он доступен; иначе прямо в Hub
	var events coordinator.EventPublisher = hub
	var deadLetters api.DeadLetterSource

	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, events stay local and DLQ is disabled", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		events = mq.NewPublisher(mqConn, logger)
		deadLetters = mq.NewDeadLetterReader(mqConn)

		go func() {
			if err := hub.Consume(ctx, mqConn); err != nil {
				logger.Error("event consumer stopped", "error", err)
			}
		}()
	}

	// Создаём репозитории
	campaignRepo := repo.NewCampaignRepo(pool)
	runRepo := repo.NewRunRepo(pool)
	walletRepo := repo.NewWalletRepo(pool)
	jobRepo := repo.NewJobRepo(pool)
	webhookRepo := repo.NewWebhookRepo(pool)
	deliveryRepo := repo.NewDeliveryRepo(pool)

	coord := coordinator.New(coordinator.Config{
		Campaigns: campaignRepo,
		Runs:      runRepo,
		Wallets:   walletRepo,
		Broker:    broker,
		Events:    events,
		Notifier:  webhook.NewNotifier(webhookRepo, broker, logger),
		Logger:    logger,
	})

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		Campaigns:   coord,
		Runs:        runRepo,
		Jobs:        jobRepo,
		Deliveries:  deliveryRepo,
		DeadLetters: deadLetters,
		Events:      hub.Buffer(),
		Broker:      broker,
		Stream:      hub,
		Logger:      logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	// Периодическая очистка буфера событий
	go func() {
		sweep := status.Task{
			Name: "event-buffer-sweep",
			Spec: status.Every(time.Minute),
			Run: func(context.Context) error {
				if n := hub.Buffer().Sweep(); n > 0 {
					logger.Debug("expired events removed", "count", n)
				}
				return nil
			},
		}
		if err := status.Schedule(ctx, logger, sweep); err != nil {
			logger.Error("scheduler failed", "error", err)
		}
	}()

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    config.Addr(cfg.APIPort),
		Handler: mux,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}
