// Swarm Aggregator — периодически пересчитывает статистику активных runs.
//
// Несколько экземпляров могут работать одновременно: тик выполняет
// только держатель advisory lock.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Swarm/internal/config"
	"github.com/shaiso/Swarm/internal/metrics"
	"github.com/shaiso/Swarm/internal/mq"
	"github.com/shaiso/Swarm/internal/repo"
	"github.com/shaiso/Swarm/internal/status"
	"github.com/shaiso/Swarm/internal/telemetry"
)

const aggregatorLockKey int64 = 424242

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting swarm-aggregator")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	aggCfg := status.Config{
		Runs:      repo.NewRunRepo(pool),
		Jobs:      repo.NewJobRepo(pool),
		Latencies: repo.NewExecutionRepo(pool),
		Metrics:   metrics.NewPrometheusSink(prometheus.DefaultRegisterer),
		Logger:    logger,
	}

	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, run-status events disabled", "error", err)
	} else {
		defer mqConn.Close()
		aggCfg.Events = mq.NewPublisher(mqConn, logger)
	}

	tick := status.New(aggCfg).TickTask(cfg.AggregateInterval)
	lock := &leaderLock{pool: pool}
	defer lock.release()

	run := tick.Run
	tick.Run = func(ctx context.Context) error {
		// не лидер — пропускаем тик
		if ok, err := lock.acquire(ctx); err != nil || !ok {
			return err
		}
		return run(ctx)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: config.Addr(cfg.AggregatorPort), Handler: mux}
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	if err := status.Schedule(ctx, logger, tick); err != nil {
		logger.Error("scheduler failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	logger.Info("swarm-aggregator stopped")
}

// leaderLock — session-level advisory lock на выделенном соединении.
type leaderLock struct {
	pool *pgxpool.Pool
	conn *pgxpool.Conn
}

func (l *leaderLock) acquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		return true, nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, err
	}

	var ok bool
	if err := conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", aggregatorLockKey).Scan(&ok); err != nil {
		conn.Release()
		return false, err
	}
	if !ok {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

func (l *leaderLock) release() {
	if l.conn == nil {
		return
	}
	_, _ = l.conn.Exec(context.Background(), "select pg_advisory_unlock($1)", aggregatorLockKey)
	l.conn.Release()
	l.conn = nil
}
