package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Swarm/internal/domain"
	"github.com/shaiso/Swarm/internal/idempotency"
	"github.com/shaiso/Swarm/internal/metrics"
	"github.com/shaiso/Swarm/internal/queue"
	"github.com/shaiso/Swarm/internal/retry"
	"github.com/shaiso/Swarm/internal/telemetry"
)

// Default configuration values.
const (
	defaultConcurrency  = 1
	defaultLeaseFor     = 5 * time.Minute
	defaultPollInterval = 500 * time.Millisecond
	settleTimeout       = 10 * time.Second

	// inFlightDelay — через сколько вернуть job, ключ которого занят другим исполнителем.
	inFlightDelay = 5 * time.Second
)

// Dead-letter reasons.
const (
	ReasonExhausted    = "exhausted"
	ReasonNonRetryable = "non_retryable"
)

// PoolConfig — конфигурация Pool.
type PoolConfig struct {
	// Queue — имя очереди брокера.
	Queue string

	// Concurrency — количество одновременно выполняемых jobs (default: 1).
	Concurrency int

	Broker      queue.Broker
	Registry    *Registry
	Idempotency idempotency.Store
	DeadLetters DeadLetterSink

	// Recorder — запись состояния jobs (опционально).
	Recorder JobRecorder

	// Metrics (опционально).
	Metrics metrics.Sink

	// LeaseFor — время lease; должно превышать максимальное время выполнения job.
	LeaseFor time.Duration

	// PollInterval — пауза при пустой очереди.
	PollInterval time.Duration

	// ClaimTTL — время жизни незавершённого захвата ключа.
	// Не превышает LeaseFor: после истечения lease захват упавшего воркера тоже истекает.
	ClaimTTL time.Duration

	Logger *slog.Logger
}

// Pool выполняет jobs одной очереди с ограниченной конкурентностью.
//
// Каждый слот в цикле берёт job через Lease и проводит его через
// контракт выполнения: захват ключа идемпотентности, Execute, затем
// удаление (успех), повтор с backoff или dead letter.
type Pool struct {
	queue       string
	concurrency int

	broker      queue.Broker
	registry    *Registry
	store       idempotency.Store
	deadLetters DeadLetterSink
	recorder    JobRecorder
	metrics     metrics.Sink

	leaseFor     time.Duration
	pollInterval time.Duration
	claimTTL     time.Duration

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewPool создаёт Pool.
func NewPool(cfg PoolConfig) *Pool {
	p := &Pool{
		queue:        cfg.Queue,
		concurrency:  cfg.Concurrency,
		broker:       cfg.Broker,
		registry:     cfg.Registry,
		store:        cfg.Idempotency,
		deadLetters:  cfg.DeadLetters,
		recorder:     cfg.Recorder,
		metrics:      cfg.Metrics,
		leaseFor:     cfg.LeaseFor,
		pollInterval: cfg.PollInterval,
		claimTTL:     cfg.ClaimTTL,
		logger:       cfg.Logger,
	}

	if p.concurrency <= 0 {
		p.concurrency = defaultConcurrency
	}
	if p.leaseFor <= 0 {
		p.leaseFor = defaultLeaseFor
	}
	if p.pollInterval <= 0 {
		p.pollInterval = defaultPollInterval
	}
	if p.claimTTL <= 0 {
		p.claimTTL = idempotency.DefaultClaimTTL
	}
	p.claimTTL = min(p.claimTTL, p.leaseFor)
	if p.registry == nil {
		p.registry = NewRegistry()
	}
	if p.store == nil {
		p.store = idempotency.NewMemoryStore()
	}
	if p.recorder == nil {
		p.recorder = nopRecorder{}
	}
	if p.metrics == nil {
		p.metrics = metrics.Noop{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("queue", p.queue)

	return p
}

// Queue возвращает имя очереди пула.
func (p *Pool) Queue() string { return p.queue }

// Run запускает слоты и блокируется до отмены ctx.
// Выполняющиеся jobs доводятся до конца.
func (p *Pool) Run(ctx context.Context) error {
	p.Start(ctx)
	<-ctx.Done()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
	return nil
}

// Start запускает слоты в фоне.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancelFunc = cancel

	p.logger.Info("starting worker pool", "concurrency", p.concurrency, "lease_for", p.leaseFor)

	for slot := range p.concurrency {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.loop(ctx, slot)
		}()
	}
}

// Stop останавливает слоты и ждёт завершения выполняющихся jobs.
func (p *Pool) Stop() {
	if p.cancelFunc != nil {
		p.cancelFunc()
	}
	p.wg.Wait()
}

func (p *Pool) loop(ctx context.Context, slot int) {
	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := p.processNext(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Error("lease failed", "slot", slot, "error", err)
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.pollInterval):
		}
	}
}

// RunOnce синхронно выполняет один job очереди.
// Возвращает false, если очередь пуста.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	return p.processNext(ctx)
}

// processNext берёт и выполняет один job. Возвращает false, если очередь пуста.
func (p *Pool) processNext(ctx context.Context) (bool, error) {
	job, err := p.broker.Lease(ctx, p.queue, p.leaseFor)
	if errors.Is(err, queue.ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	p.process(ctx, job)
	return true, nil
}

// process проводит job через контракт выполнения.
func (p *Pool) process(ctx context.Context, job *domain.Job) {
	start := time.Now()
	logger := telemetry.WithJobID(p.logger, job.ID).With("type", job.Type, "attempt", job.AttemptsMade+1)
	if job.CampaignID != uuid.Nil {
		logger = telemetry.WithCampaignID(logger, job.CampaignID.String())
	}
	if job.RunID != uuid.Nil {
		logger = telemetry.WithRunID(logger, job.RunID.String())
	}

	p.metrics.JobStarted(p.queue)
	p.metrics.JobsInFlight(p.queue, 1)
	defer p.metrics.JobsInFlight(p.queue, -1)

	p.record(ctx, job, domain.JobStatusRunning, job.AttemptsMade+1, nil, "")

	if job.PendingDeadLetter != "" {
		p.deadLetter(ctx, logger, job, job.PendingDeadLetter, errors.New(job.LastError), start)
		return
	}

	handler, err := p.registry.Get(job.Type)
	if err != nil {
		p.fail(ctx, logger, job, err, start)
		return
	}

	key, err := handler.IdempotencyKey(job)
	if err != nil {
		p.fail(ctx, logger, job, retry.AsPermanent(fmt.Errorf("idempotency key: %w", err)), start)
		return
	}

	if key != "" {
		claim, err := p.store.Claim(ctx, key, p.claimTTL)
		if err != nil {
			p.fail(ctx, logger, job, fmt.Errorf("claim idempotency key: %w", err), start)
			return
		}

		switch claim.State {
		case idempotency.StateCompleted:
			logger.Info("job already processed, reusing result", "key", key)
			p.complete(ctx, logger, job, claim.Result, metrics.OutcomeSkipped, start)
			return
		case idempotency.StateInFlight:
			// копия job у другого исполнителя: ждём, пока ключ завершится или истечёт
			p.deferInFlight(ctx, logger, job, key)
			return
		}
	}

	jc := &JobContext{
		job:      job,
		store:    p.store,
		broker:   p.broker,
		recorder: p.recorder,
		logger:   logger,
	}

	logger.Info("job started")
	result, execErr := handler.Execute(ctx, job, jc)

	settleCtx, cancel := settleContext(ctx)
	defer cancel()

	if execErr != nil {
		if key != "" {
			if err := p.store.Release(settleCtx, key); err != nil {
				logger.Warn("failed to release idempotency key", "key", key, "error", err)
			}
		}

		// shutdown посреди выполнения: попытку не засчитываем
		if ctx.Err() != nil {
			p.requeue(settleCtx, logger, job, execErr)
			return
		}

		p.fail(settleCtx, logger, job, execErr, start)
		return
	}

	if key != "" {
		if err := p.store.Complete(settleCtx, key, result, idempotency.DefaultResultTTL); err != nil {
			logger.Error("failed to store idempotency result", "key", key, "error", err)
		}
	}

	p.complete(settleCtx, logger, job, result, metrics.OutcomeSucceeded, start)
}

// complete удаляет job из брокера после успеха.
func (p *Pool) complete(ctx context.Context, logger *slog.Logger, job *domain.Job, result json.RawMessage, outcome string, start time.Time) {
	if err := p.broker.Remove(ctx, job.ID); err != nil {
		logger.Error("failed to remove completed job", "error", err)
	}

	p.record(ctx, job, domain.JobStatusSucceeded, job.AttemptsMade+1, result, "")
	p.metrics.JobFinished(p.queue, outcome, time.Since(start))

	logger.Info("job succeeded", "outcome", outcome, "duration", time.Since(start))
}

// fail решает судьбу job после ошибки: повтор с backoff или dead letter.
func (p *Pool) fail(ctx context.Context, logger *slog.Logger, job *domain.Job, cause error, start time.Time) {
	made := job.AttemptsMade
	job.AttemptsMade = made + 1
	job.LastError = cause.Error()

	kind := retry.KindOf(cause)

	if !retry.IsRetryable(cause) {
		logger.Warn("job failed with non-retryable error", "kind", kind, "error", cause)
		p.deadLetter(ctx, logger, job, ReasonNonRetryable+":"+kind.String(), cause, start)
		return
	}

	if !job.CanRetry() {
		logger.Warn("job attempts exhausted", "max_attempts", job.MaxAttempts, "error", cause)
		p.deadLetter(ctx, logger, job, ReasonExhausted, cause, start)
		return
	}

	delay := retry.DelayFor(cause, made)
	if err := p.broker.Retry(ctx, job, delay); err != nil {
		logger.Error("failed to requeue job, lease will expire", "error", err)
		return
	}

	p.record(ctx, job, domain.JobStatusQueued, job.AttemptsMade, nil, job.LastError)
	p.metrics.JobFinished(p.queue, metrics.OutcomeRetried, time.Since(start))

	logger.Warn("job failed, retry scheduled", "kind", kind, "delay", delay, "error", cause)
}

// deadLetter публикует job в DLQ и удаляет из брокера.
// Если публикация не удалась, job возвращается в очередь с максимальной задержкой.
func (p *Pool) deadLetter(ctx context.Context, logger *slog.Logger, job *domain.Job, reason string, cause error, start time.Time) {
	if p.deadLetters == nil {
		logger.Error("no dead-letter sink configured, keeping job queued", "reason", reason)
		p.parkJob(ctx, logger, job, reason)
		return
	}

	if err := p.deadLetters.DeadLetter(ctx, job, reason, cause); err != nil {
		logger.Error("failed to publish dead letter, keeping job queued", "reason", reason, "error", err)
		p.parkJob(ctx, logger, job, reason)
		return
	}

	job.PendingDeadLetter = ""
	if err := p.broker.Remove(ctx, job.ID); err != nil {
		logger.Error("failed to remove dead-lettered job", "error", err)
	}

	p.record(ctx, job, domain.JobStatusDead, job.AttemptsMade, nil, job.LastError)
	p.metrics.JobFinished(p.queue, metrics.OutcomeDead, time.Since(start))

	logger.Error("job moved to dead letters", "reason", reason, "attempts", job.AttemptsMade, "error", cause)
}

// parkJob возвращает job в очередь с максимальной задержкой.
// Следующая выдача сразу повторит публикацию в DLQ, не выполняя job.
func (p *Pool) parkJob(ctx context.Context, logger *slog.Logger, job *domain.Job, reason string) {
	job.PendingDeadLetter = reason
	if err := p.broker.Retry(ctx, job, retry.DefaultPolicy.Max); err != nil {
		logger.Error("failed to park job, lease will expire", "error", err)
	}
}

// deferInFlight откладывает job без учёта попытки.
func (p *Pool) deferInFlight(ctx context.Context, logger *slog.Logger, job *domain.Job, key string) {
	if err := p.broker.Retry(ctx, job, inFlightDelay); err != nil {
		logger.Warn("failed to defer in-flight job, lease will expire", "key", key, "error", err)
		return
	}
	logger.Info("job key is in flight elsewhere, deferred", "key", key, "delay", inFlightDelay)
}

// requeue возвращает job без учёта попытки (остановка воркера).
func (p *Pool) requeue(ctx context.Context, logger *slog.Logger, job *domain.Job, cause error) {
	job.LastError = cause.Error()
	if err := p.broker.Retry(ctx, job, 0); err != nil {
		logger.Warn("failed to requeue interrupted job, lease will expire", "error", err)
		return
	}
	p.record(ctx, job, domain.JobStatusQueued, job.AttemptsMade, nil, job.LastError)
	logger.Info("job interrupted by shutdown, requeued")
}

func (p *Pool) record(ctx context.Context, job *domain.Job, status domain.JobStatus, attempts int, result json.RawMessage, errMsg string) {
	rec := &domain.JobRecord{
		ID:         job.ID,
		Queue:      job.Queue,
		Type:       job.Type,
		CampaignID: job.CampaignID,
		RunID:      job.RunID,
		Status:     status,
		Attempts:   attempts,
		Error:      errMsg,
		Result:     result,
		UpdatedAt:  time.Now().UTC(),
	}
	if status == domain.JobStatusSucceeded {
		rec.Progress = 100
	}
	if err := p.recorder.Upsert(ctx, rec); err != nil {
		p.logger.Warn("failed to record job state", "job_id", job.ID, "status", status, "error", err)
	}
}

// settleContext отвязывает завершающие операции от отмены ctx воркера.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}
